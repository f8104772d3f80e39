// Package peertube provides an HTTP client for the PeerTube REST API:
// password-grant authentication, video metadata lookup, thumbnail publishing
// and video uploads.
package peertube

// oauthClientResponse is the response from /api/v1/oauth-clients/local.
type oauthClientResponse struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// tokenResponse is the response from /api/v1/users/token.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
}

// resolution identifies a rendition's vertical resolution (e.g. 1080).
type resolution struct {
	ID    int    `json:"id"`
	Label string `json:"label,omitempty"`
}

// videoFile is one downloadable rendition of a video.
type videoFile struct {
	Resolution resolution `json:"resolution"`
	FileURL    string     `json:"fileUrl"`
}

// streamingPlaylist is an HLS playlist with its per-rendition files.
type streamingPlaylist struct {
	PlaylistURL string      `json:"playlistUrl"`
	Files       []videoFile `json:"files"`
}

// videoDetails is the subset of /api/v1/videos/{id} this client consumes.
type videoDetails struct {
	ID                 int64               `json:"id"`
	UUID               string              `json:"uuid"`
	Name               string              `json:"name"`
	Files              []videoFile         `json:"files"`
	StreamingPlaylists []streamingPlaylist `json:"streamingPlaylists"`
}

// uploadResponse is the response from /api/v1/videos/upload.
type uploadResponse struct {
	Video struct {
		ID   int64  `json:"id"`
		UUID string `json:"uuid"`
	} `json:"video"`
}

// channelResponse is a single video channel.
type channelResponse struct {
	ID int64 `json:"id"`
}

// channelListResponse is the response from /api/v1/accounts/{name}/video-channels.
type channelListResponse struct {
	Data []channelResponse `json:"data"`
}

// VideoMeta holds the metadata sent with a video upload.
type VideoMeta struct {
	Title       string
	Description string
	ChannelID   int64  // 0 means resolve the account's default channel
	Privacy     int    // 1=public, 2=unlisted, 3=private
	Category    int    // PeerTube category ID
	Language    string // ISO 639 language code
}

// UploadResult describes a successfully uploaded video.
type UploadResult struct {
	ID       string
	UUID     string
	WatchURL string
}
