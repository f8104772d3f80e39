package peertube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Static errors for PeerTube client operations.
var (
	// ErrInstanceURLRequired is returned when the instance URL is not provided.
	ErrInstanceURLRequired = errors.New("peertube: instance URL is required")
	// ErrAuthenticationFailed is returned when the credential exchange fails.
	ErrAuthenticationFailed = errors.New("peertube: authentication failed")
	// ErrNotAuthenticated is returned when an authenticated call is made before Login.
	ErrNotAuthenticated = errors.New("peertube: not authenticated, call Login first")
	// ErrNoFileURL is returned when a video exposes no downloadable rendition,
	// e.g. while it is still transcoding.
	ErrNoFileURL = errors.New("peertube: video has no downloadable file URL")
	// ErrUploadRejected is returned when the instance rejects an upload with a
	// non-2xx status. The remote payload is included verbatim.
	ErrUploadRejected = errors.New("peertube: upload rejected")
	// ErrRequestFailed is returned for any other non-2xx API response.
	ErrRequestFailed = errors.New("peertube: request failed")
	// ErrNoChannels is returned when the account owns no video channels.
	ErrNoChannels = errors.New("peertube: no channels found for account")
)

// Client is the PeerTube API client. A single authenticated client is
// reused for a whole batch run.
type Client struct {
	instanceURL    string
	uploadEndpoint string
	username       string
	password       string
	token          string
	httpClient     *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(pc *Client) {
		pc.httpClient = c
	}
}

// WithUploadEndpoint routes video uploads through a dedicated endpoint
// (some instances front uploads with a separate host).
func WithUploadEndpoint(endpoint string) Option {
	return func(pc *Client) {
		pc.uploadEndpoint = strings.TrimRight(endpoint, "/")
	}
}

// WithToken pre-sets the access token, skipping Login. Used in tests.
func WithToken(token string) Option {
	return func(pc *Client) {
		pc.token = token
	}
}

// NewClient creates a PeerTube client for the given instance and account.
func NewClient(instanceURL, username, password string, opts ...Option) (*Client, error) {
	if instanceURL == "" {
		return nil, ErrInstanceURLRequired
	}

	c := &Client{
		instanceURL: strings.TrimRight(instanceURL, "/"),
		username:    username,
		password:    password,
		httpClient:  &http.Client{Timeout: 5 * time.Minute},
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.uploadEndpoint == "" {
		c.uploadEndpoint = c.instanceURL
	}

	return c, nil
}

// Login performs the two-step PeerTube credential exchange: fetch the
// local OAuth client, then trade the account credentials for an access
// token. The token is held for the lifetime of the client.
func (c *Client) Login(ctx context.Context) error {
	var oc oauthClientResponse
	if err := c.getJSON(ctx, c.instanceURL+"/api/v1/oauth-clients/local", &oc); err != nil {
		return fmt.Errorf("%w: fetch oauth client: %w", ErrAuthenticationFailed, err)
	}

	form := url.Values{
		"client_id":     {oc.ClientID},
		"client_secret": {oc.ClientSecret},
		"grant_type":    {"password"},
		"response_type": {"code"},
		"username":      {c.username},
		"password":      {c.password},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.instanceURL+"/api/v1/users/token", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: create token request: %w", ErrAuthenticationFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read token response: %w", ErrAuthenticationFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d: %s", ErrAuthenticationFailed, resp.StatusCode, string(body))
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return fmt.Errorf("%w: parse token response: %w", ErrAuthenticationFailed, err)
	}
	if tok.AccessToken == "" {
		return fmt.Errorf("%w: empty access token", ErrAuthenticationFailed)
	}

	c.token = tok.AccessToken
	return nil
}

// Authenticated reports whether the client holds an access token.
func (c *Client) Authenticated() bool {
	return c.token != ""
}

// VideoFileURL looks up a video and returns the direct URL of its
// highest-resolution rendition. Web-compatible files are preferred; HLS
// playlist files are the fallback, then the playlist URL itself. A video
// with no usable URL (still transcoding, for instance) returns ErrNoFileURL.
func (c *Client) VideoFileURL(ctx context.Context, videoID string) (string, error) {
	var details videoDetails
	endpoint := fmt.Sprintf("%s/api/v1/videos/%s", c.instanceURL, url.PathEscape(videoID))
	if err := c.getJSON(ctx, endpoint, &details); err != nil {
		return "", fmt.Errorf("lookup video %s: %w", videoID, err)
	}

	if u := bestFileURL(details.Files); u != "" {
		return u, nil
	}

	for _, pl := range details.StreamingPlaylists {
		if u := bestFileURL(pl.Files); u != "" {
			return u, nil
		}
		if pl.PlaylistURL != "" {
			return pl.PlaylistURL, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrNoFileURL, videoID)
}

// bestFileURL returns the fileUrl of the highest-resolution rendition.
func bestFileURL(files []videoFile) string {
	if len(files) == 0 {
		return ""
	}
	sorted := make([]videoFile, len(files))
	copy(sorted, files)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Resolution.ID > sorted[j].Resolution.ID
	})
	for _, f := range sorted {
		if f.FileURL != "" {
			return f.FileURL
		}
	}
	return ""
}

// UploadThumbnail publishes a thumbnail image for the given video via an
// authenticated multipart update. Any non-2xx response is a terminal
// failure carrying the remote payload; uploads are never retried here.
func (c *Client) UploadThumbnail(ctx context.Context, videoID, imagePath string) error {
	if c.token == "" {
		return ErrNotAuthenticated
	}

	endpoint := fmt.Sprintf("%s/api/v1/videos/%s", c.instanceURL, url.PathEscape(videoID))
	status, body, err := c.doMultipart(ctx, http.MethodPut, endpoint, nil, "thumbnailfile", imagePath)
	if err != nil {
		return fmt.Errorf("upload thumbnail for %s: %w", videoID, err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("%w: status %d: %s", ErrUploadRejected, status, string(body))
	}

	return nil
}

// UploadVideo uploads a video file with its metadata. When meta.ChannelID
// is zero, the account's default channel is resolved first.
func (c *Client) UploadVideo(ctx context.Context, videoPath string, meta VideoMeta) (UploadResult, error) {
	if c.token == "" {
		return UploadResult{}, ErrNotAuthenticated
	}

	channelID := meta.ChannelID
	if channelID == 0 {
		id, err := c.ResolveChannelID(ctx)
		if err != nil {
			return UploadResult{}, err
		}
		channelID = id
	}

	fields := map[string]string{
		"name":            meta.Title,
		"description":     meta.Description,
		"channelId":       strconv.FormatInt(channelID, 10),
		"privacy":         strconv.Itoa(meta.Privacy),
		"category":        strconv.Itoa(meta.Category),
		"language":        meta.Language,
		"nsfw":            "false",
		"waitTranscoding": "true",
	}

	endpoint := c.uploadEndpoint + "/api/v1/videos/upload"
	status, body, err := c.doMultipart(ctx, http.MethodPost, endpoint, fields, "videofile", videoPath)
	if err != nil {
		return UploadResult{}, fmt.Errorf("upload video: %w", err)
	}
	if status < 200 || status >= 300 {
		return UploadResult{}, fmt.Errorf("%w: status %d: %s", ErrUploadRejected, status, string(body))
	}

	var res uploadResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return UploadResult{}, fmt.Errorf("peertube: parse upload response: %w", err)
	}

	return UploadResult{
		ID:       strconv.FormatInt(res.Video.ID, 10),
		UUID:     res.Video.UUID,
		WatchURL: fmt.Sprintf("%s/w/%s", c.instanceURL, res.Video.UUID),
	}, nil
}

// ResolveChannelID finds the account's default channel, falling back to
// the first channel the account owns.
func (c *Client) ResolveChannelID(ctx context.Context) (int64, error) {
	var ch channelResponse
	endpoint := fmt.Sprintf("%s/api/v1/video-channels/%s_channel", c.instanceURL, url.PathEscape(c.username))
	if err := c.getJSON(ctx, endpoint, &ch); err == nil && ch.ID != 0 {
		return ch.ID, nil
	}

	var list channelListResponse
	endpoint = fmt.Sprintf("%s/api/v1/accounts/%s/video-channels", c.instanceURL, url.PathEscape(c.username))
	if err := c.getJSON(ctx, endpoint, &list); err != nil {
		return 0, fmt.Errorf("peertube: resolve channel: %w", err)
	}
	if len(list.Data) == 0 {
		return 0, ErrNoChannels
	}
	return list.Data[0].ID, nil
}

// getJSON performs an authenticated GET and decodes the JSON response.
func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("peertube: create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("peertube: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("peertube: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(body))
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("peertube: unmarshal response: %w", err)
		}
	}

	return nil
}

// doMultipart sends an authenticated multipart request with optional form
// fields and a single file part, returning the status code and body.
func (c *Client) doMultipart(ctx context.Context, method, endpoint string, fields map[string]string, fileField, filePath string) (int, []byte, error) {
	f, err := os.Open(filePath) // #nosec G304 - path is produced by this process
	if err != nil {
		return 0, nil, fmt.Errorf("peertube: open %s: %w", filePath, err)
	}
	defer func() { _ = f.Close() }()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		var werr error
		defer func() { _ = pw.CloseWithError(werr) }()

		for k, v := range fields {
			if werr = mw.WriteField(k, v); werr != nil {
				return
			}
		}

		part, perr := mw.CreateFormFile(fileField, filepath.Base(filePath))
		if perr != nil {
			werr = perr
			return
		}
		if _, werr = io.Copy(part, f); werr != nil {
			return
		}
		werr = mw.Close()
	}()

	req, err := http.NewRequestWithContext(ctx, method, endpoint, pr)
	if err != nil {
		return 0, nil, fmt.Errorf("peertube: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("peertube: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("peertube: read response: %w", err)
	}

	return resp.StatusCode, body, nil
}
