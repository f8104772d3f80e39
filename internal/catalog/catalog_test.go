package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCatalogFile(t *testing.T, items []Item) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metadata.json")
	data, err := json.Marshal(items)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("round trip preserves order and fields", func(t *testing.T) {
		items := []Item{
			{VideoID: "v1", Title: "Intro", PeerTubeID: "pt-1", Thumbnail: true},
			{VideoID: "v2", Title: "Chapter 1", PeerTubeID: "pt-2"},
			{VideoID: "v3", Title: "Chapter 2"},
		}
		path := writeCatalogFile(t, items)

		c, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, items, c.Items)
	})

	t.Run("missing file wraps ErrCatalogIO", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrCatalogIO)
	})

	t.Run("malformed JSON wraps ErrCatalogIO", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

		_, err := Load(path)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrCatalogIO)
	})
}

func TestSave_AtomicRewrite(t *testing.T) {
	path := writeCatalogFile(t, []Item{{VideoID: "v1", Title: "Intro"}})

	c, err := Load(path)
	require.NoError(t, err)
	c.Items = append(c.Items, Item{VideoID: "v2", Title: "Chapter 1"})
	require.NoError(t, c.Save())

	// Whole document is valid after the rewrite.
	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Len(t, reloaded.Items, 2)
	assert.Equal(t, "v2", reloaded.Items[1].VideoID)

	// No temp files left behind in the catalog directory.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(path), entries[0].Name())
}

func TestPartition(t *testing.T) {
	items := []Item{
		{VideoID: "v1", Title: "has id, pending", PeerTubeID: "pt-1"},
		{VideoID: "v2", Title: "already done", PeerTubeID: "pt-2", Thumbnail: true},
		{VideoID: "v3", Title: "not on peertube"},
		{VideoID: "v4", Title: "also pending", PeerTubeID: "pt-4"},
	}
	c := &Catalog{Items: items}

	eligible, skipped := c.Partition()
	require.Len(t, eligible, 2)
	assert.Equal(t, "v1", eligible[0].VideoID)
	assert.Equal(t, "v4", eligible[1].VideoID)
	require.Len(t, skipped, 2)
}

func TestMarkThumbnailDone(t *testing.T) {
	t.Run("flips flag and persists immediately", func(t *testing.T) {
		path := writeCatalogFile(t, []Item{
			{VideoID: "v1", Title: "Intro", PeerTubeID: "pt-1"},
			{VideoID: "v2", Title: "Chapter 1", PeerTubeID: "pt-2"},
		})
		c, err := Load(path)
		require.NoError(t, err)

		require.NoError(t, c.MarkThumbnailDone("v1"))

		// The on-disk ledger already reflects the completion.
		reloaded, err := Load(path)
		require.NoError(t, err)
		assert.True(t, reloaded.Items[0].Thumbnail)
		assert.False(t, reloaded.Items[1].Thumbnail)
	})

	t.Run("unknown id returns ErrItemNotFound", func(t *testing.T) {
		path := writeCatalogFile(t, []Item{{VideoID: "v1"}})
		c, err := Load(path)
		require.NoError(t, err)

		err = c.MarkThumbnailDone("ghost")
		assert.ErrorIs(t, err, ErrItemNotFound)
	})
}

func TestSetPlatformIDs(t *testing.T) {
	path := writeCatalogFile(t, []Item{{VideoID: "v1", Title: "Intro"}})
	c, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, c.SetPlatformIDs("v1", "pt-9", ""))
	require.NoError(t, c.SetPlatformIDs("v1", "", "yt-3"))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "pt-9", reloaded.Items[0].PeerTubeID)
	assert.Equal(t, "yt-3", reloaded.Items[0].YouTubeID)
}

func TestFind(t *testing.T) {
	c := &Catalog{Items: []Item{{VideoID: "v1", Title: "Intro"}}}

	it, err := c.Find("v1")
	require.NoError(t, err)
	assert.Equal(t, "Intro", it.Title)

	_, err = c.Find("missing")
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestEligibleForThumbnail(t *testing.T) {
	tests := []struct {
		name string
		item Item
		want bool
	}{
		{"pending with peertube id", Item{PeerTubeID: "pt-1"}, true},
		{"already done", Item{PeerTubeID: "pt-1", Thumbnail: true}, false},
		{"no peertube id", Item{}, false},
		{"done without id", Item{Thumbnail: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.item.EligibleForThumbnail())
		})
	}
}
