// Package catalog manages the persisted work-item ledger that drives batch
// runs. The catalog file on disk is always a complete, valid JSON document:
// every mutation rewrites the whole file atomically, so a crash can only
// lose the in-flight item, never previously recorded progress.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Static errors for catalog operations.
var (
	// ErrCatalogIO is returned when the catalog file cannot be read or
	// written. It is fatal to a batch run.
	ErrCatalogIO = errors.New("catalog: I/O failure")
	// ErrItemNotFound is returned when no item matches the given video ID.
	ErrItemNotFound = errors.New("catalog: item not found")
)

// Item is one catalog entry: a single video's upload and thumbnail state.
// VideoID is the stable identifier; PeerTubeID is only present once the
// video exists on the instance, and Thumbnail flips from false to true
// exactly once, after a verified successful thumbnail publish.
type Item struct {
	VideoID    string `json:"video_id"`
	Filename   string `json:"filename,omitempty"`
	Title      string `json:"title"`
	PeerTubeID string `json:"peertube_id,omitempty"`
	YouTubeID  string `json:"youtube_id,omitempty"`
	Thumbnail  bool   `json:"thumbnail"`
	SHA256     string `json:"sha256_hash,omitempty"`
}

// EligibleForThumbnail reports whether this item should be processed by a
// thumbnail batch run: it must exist on PeerTube and not yet be done.
func (it Item) EligibleForThumbnail() bool {
	return it.PeerTubeID != "" && !it.Thumbnail
}

// Catalog is an ordered collection of items backed by a JSON file.
type Catalog struct {
	path  string
	Items []Item
}

// Load reads the entire catalog from path. A missing or malformed file
// wraps ErrCatalogIO.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrCatalogIO, path, err)
	}

	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrCatalogIO, path, err)
	}

	return &Catalog{path: path, Items: items}, nil
}

// New creates an empty catalog backed by path. The file is not created
// until the first Save.
func New(path string) *Catalog {
	return &Catalog{path: path}
}

// Path returns the backing file path.
func (c *Catalog) Path() string {
	return c.path
}

// Save rewrites the entire catalog atomically: the document is written to
// a temp file in the same directory and renamed over the target, so no
// reader ever observes a half-written ledger.
func (c *Catalog) Save() error {
	data, err := json.MarshalIndent(c.Items, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal: %w", ErrCatalogIO, err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(c.path)
	tmp, err := os.CreateTemp(dir, ".catalog-tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", ErrCatalogIO, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: write temp file: %w", ErrCatalogIO, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: chmod temp file: %w", ErrCatalogIO, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("%w: close temp file: %w", ErrCatalogIO, err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		cleanup()
		return fmt.Errorf("%w: rename into place: %w", ErrCatalogIO, err)
	}

	return nil
}

// Partition splits the items into those eligible for a thumbnail run and
// the rest (already done, or not yet on PeerTube), preserving catalog order.
func (c *Catalog) Partition() (eligible, skipped []Item) {
	for _, it := range c.Items {
		if it.EligibleForThumbnail() {
			eligible = append(eligible, it)
		} else {
			skipped = append(skipped, it)
		}
	}
	return eligible, skipped
}

// Find returns the item with the given video ID.
func (c *Catalog) Find(videoID string) (Item, error) {
	for _, it := range c.Items {
		if it.VideoID == videoID {
			return it, nil
		}
	}
	return Item{}, fmt.Errorf("%w: %s", ErrItemNotFound, videoID)
}

// MarkThumbnailDone flips the completion flag for the item with the given
// video ID and immediately persists the whole catalog. The flag is only
// ever set, never cleared.
func (c *Catalog) MarkThumbnailDone(videoID string) error {
	for i := range c.Items {
		if c.Items[i].VideoID == videoID {
			c.Items[i].Thumbnail = true
			return c.Save()
		}
	}
	return fmt.Errorf("%w: %s", ErrItemNotFound, videoID)
}

// SetPlatformIDs records the platform video IDs assigned by an upload and
// immediately persists the whole catalog. Empty arguments leave the
// corresponding field untouched.
func (c *Catalog) SetPlatformIDs(videoID, peertubeID, youtubeID string) error {
	for i := range c.Items {
		if c.Items[i].VideoID == videoID {
			if peertubeID != "" {
				c.Items[i].PeerTubeID = peertubeID
			}
			if youtubeID != "" {
				c.Items[i].YouTubeID = youtubeID
			}
			return c.Save()
		}
	}
	return fmt.Errorf("%w: %s", ErrItemNotFound, videoID)
}
