// Package youtube provides a minimal YouTube Data API v3 client for
// uploading course videos and keeping them in course playlists. The client
// takes a ready-made bearer token; the OAuth flow that produces it is
// external.
package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"time"
)

const (
	defaultAPIURL    = "https://www.googleapis.com/youtube/v3"
	defaultUploadURL = "https://www.googleapis.com/upload/youtube/v3"

	// CategoryEducation is the YouTube category ID for education content.
	CategoryEducation = "27"
)

// Static errors for YouTube client operations.
var (
	// ErrTokenRequired is returned when no access token is provided.
	ErrTokenRequired = errors.New("youtube: access token is required")
	// ErrUploadFailed is returned when the videos.insert call is rejected.
	ErrUploadFailed = errors.New("youtube: upload failed")
	// ErrRequestFailed is returned when a request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("youtube: request failed")
	// ErrPlaylistNotFound is returned when no playlist matches the title.
	ErrPlaylistNotFound = errors.New("youtube: playlist not found")
)

// VideoMeta describes the video being uploaded.
type VideoMeta struct {
	Title       string
	Description string
	CategoryID  string // defaults to CategoryEducation
	Privacy     string // public, unlisted, private; defaults to unlisted
}

// UploadResult is the outcome of a successful upload.
type UploadResult struct {
	ID       string
	WatchURL string
}

// Client defines the YouTube operations the upload pipeline needs.
type Client interface {
	// UploadVideo uploads the file at videoPath and returns the new video ID.
	UploadVideo(ctx context.Context, videoPath string, meta VideoMeta) (UploadResult, error)

	// FindPlaylist returns the ID of the caller's playlist with the given
	// title, or ErrPlaylistNotFound.
	FindPlaylist(ctx context.Context, title string) (string, error)

	// CreatePlaylist creates a playlist and returns its ID.
	CreatePlaylist(ctx context.Context, title, description, privacy string) (string, error)

	// AddToPlaylist appends a video to a playlist.
	AddToPlaylist(ctx context.Context, playlistID, videoID string) error
}

// HTTPClient is the HTTP implementation of the Client interface.
type HTTPClient struct {
	token      string
	apiURL     string
	uploadURL  string
	httpClient *http.Client
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = c
	}
}

// WithAPIURL overrides the Data API base URL.
func WithAPIURL(u string) ClientOption {
	return func(hc *HTTPClient) {
		hc.apiURL = u
	}
}

// WithUploadURL overrides the upload base URL.
func WithUploadURL(u string) ClientOption {
	return func(hc *HTTPClient) {
		hc.uploadURL = u
	}
}

// NewClient creates a new YouTube HTTP client with a bearer token.
func NewClient(token string, opts ...ClientOption) (*HTTPClient, error) {
	if token == "" {
		return nil, ErrTokenRequired
	}

	c := &HTTPClient{
		token:      token,
		apiURL:     defaultAPIURL,
		uploadURL:  defaultUploadURL,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

type videoResource struct {
	ID      string `json:"id,omitempty"`
	Snippet struct {
		Title       string `json:"title"`
		Description string `json:"description,omitempty"`
		CategoryID  string `json:"categoryId,omitempty"`
	} `json:"snippet"`
	Status struct {
		PrivacyStatus           string `json:"privacyStatus"`
		SelfDeclaredMadeForKids bool   `json:"selfDeclaredMadeForKids"`
	} `json:"status"`
}

// UploadVideo performs a multipart (metadata + media) videos.insert call.
func (c *HTTPClient) UploadVideo(ctx context.Context, videoPath string, meta VideoMeta) (UploadResult, error) {
	file, err := os.Open(videoPath)
	if err != nil {
		return UploadResult{}, fmt.Errorf("open video file: %w", err)
	}
	defer file.Close()

	var resource videoResource
	resource.Snippet.Title = meta.Title
	resource.Snippet.Description = meta.Description
	resource.Snippet.CategoryID = meta.CategoryID
	if resource.Snippet.CategoryID == "" {
		resource.Snippet.CategoryID = CategoryEducation
	}
	resource.Status.PrivacyStatus = meta.Privacy
	if resource.Status.PrivacyStatus == "" {
		resource.Status.PrivacyStatus = "unlisted"
	}

	metaJSON, err := json.Marshal(resource)
	if err != nil {
		return UploadResult{}, fmt.Errorf("marshal video metadata: %w", err)
	}

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		metaHeader := textproto.MIMEHeader{}
		metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
		part, err := writer.CreatePart(metaHeader)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := part.Write(metaJSON); err != nil {
			pw.CloseWithError(err)
			return
		}

		mediaHeader := textproto.MIMEHeader{}
		mediaHeader.Set("Content-Type", "video/mp4")
		part, err = writer.CreatePart(mediaHeader)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			pw.CloseWithError(err)
			return
		}

		pw.CloseWithError(writer.Close())
	}()

	endpoint := fmt.Sprintf("%s/videos?uploadType=multipart&part=snippet,status", c.uploadURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		return UploadResult{}, fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "multipart/related; boundary="+writer.Boundary())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return UploadResult{}, fmt.Errorf("execute upload: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return UploadResult{}, fmt.Errorf("read upload response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return UploadResult{}, fmt.Errorf("%w: status %d: %s", ErrUploadFailed, resp.StatusCode, string(body))
	}

	var uploaded videoResource
	if err := json.Unmarshal(body, &uploaded); err != nil {
		return UploadResult{}, fmt.Errorf("decode upload response: %w", err)
	}

	return UploadResult{
		ID:       uploaded.ID,
		WatchURL: fmt.Sprintf("https://www.youtube.com/watch?v=%s", uploaded.ID),
	}, nil
}

type playlistResource struct {
	ID      string `json:"id"`
	Snippet struct {
		Title       string `json:"title"`
		Description string `json:"description,omitempty"`
	} `json:"snippet"`
	Status *struct {
		PrivacyStatus string `json:"privacyStatus"`
	} `json:"status,omitempty"`
}

type playlistListResponse struct {
	Items         []playlistResource `json:"items"`
	NextPageToken string             `json:"nextPageToken"`
}

// FindPlaylist pages through the caller's playlists looking for an exact
// title match.
func (c *HTTPClient) FindPlaylist(ctx context.Context, title string) (string, error) {
	pageToken := ""
	for {
		endpoint := fmt.Sprintf("%s/playlists?part=snippet&mine=true&maxResults=50", c.apiURL)
		if pageToken != "" {
			endpoint += "&pageToken=" + url.QueryEscape(pageToken)
		}

		var page playlistListResponse
		if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return "", err
		}

		for _, pl := range page.Items {
			if pl.Snippet.Title == title {
				return pl.ID, nil
			}
		}

		if page.NextPageToken == "" {
			return "", fmt.Errorf("%w: %q", ErrPlaylistNotFound, title)
		}
		pageToken = page.NextPageToken
	}
}

// CreatePlaylist creates a playlist and returns its ID.
func (c *HTTPClient) CreatePlaylist(ctx context.Context, title, description, privacy string) (string, error) {
	if privacy == "" {
		privacy = "unlisted"
	}

	payload := map[string]interface{}{
		"snippet": map[string]string{
			"title":       title,
			"description": description,
		},
		"status": map[string]string{
			"privacyStatus": privacy,
		},
	}

	endpoint := fmt.Sprintf("%s/playlists?part=snippet,status", c.apiURL)

	var created playlistResource
	if err := c.doJSON(ctx, http.MethodPost, endpoint, payload, &created); err != nil {
		return "", err
	}

	return created.ID, nil
}

// AddToPlaylist appends a video to the end of a playlist.
func (c *HTTPClient) AddToPlaylist(ctx context.Context, playlistID, videoID string) error {
	payload := map[string]interface{}{
		"snippet": map[string]interface{}{
			"playlistId": playlistID,
			"resourceId": map[string]string{
				"kind":    "youtube#video",
				"videoId": videoID,
			},
		},
	}

	endpoint := fmt.Sprintf("%s/playlistItems?part=snippet", c.apiURL)
	return c.doJSON(ctx, http.MethodPost, endpoint, payload, nil)
}

// doJSON performs an authenticated JSON request against the Data API.
func (c *HTTPClient) doJSON(ctx context.Context, method, endpoint string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
