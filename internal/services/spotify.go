// Spotify import source
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/shared"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"
)

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Artists    []SpotifyArtist `json:"artists"`
	DurationMS int             `json:"duration_ms"`
	IsLocal    bool            `json:"is_local"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyPlaylistTrack represents a track within a playlist context. Track is nil for removed items.
type SpotifyPlaylistTrack struct {
	AddedAt string        `json:"added_at"`
	Track   *SpotifyTrack `json:"track"`
}

// SpotifyPlaylistTracks is one page of playlist items.
type SpotifyPlaylistTracks struct {
	Items []SpotifyPlaylistTrack `json:"items"`
	Total int                    `json:"total"`
	Next  *string                `json:"next"`
}

// SpotifyPlaylist represents a Spotify playlist with its first page of tracks.
type SpotifyPlaylist struct {
	ID     string                `json:"id"`
	Name   string                `json:"name"`
	Tracks SpotifyPlaylistTracks `json:"tracks"`
}

// SourceTrack converts a Spotify track into an import descriptor.
func (t SpotifyTrack) SourceTrack() models.SourceTrack {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return models.SourceTrack{
		Name:       t.Name,
		Artist:     strings.Join(names, ", "),
		DurationMs: int64(t.DurationMS),
	}
}

// SpotifyService reads playlists from the Spotify Web API.
// Uses [oauth2] for authentication; refresh tokens are exchanged transparently by the client.
type SpotifyService struct {
	config     *oauth2.Config
	token      *oauth2.Token
	httpClient *http.Client
	apiBase    string
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
func NewSpotifyService(credentials map[string]string) (*SpotifyService, error) {
	clientID := credentials["client_id"]
	if clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}
	clientSecret := credentials["client_secret"]
	if clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}
	redirectURI := credentials["redirect_uri"]
	if redirectURI == "" {
		redirectURI = "http://localhost:3000/callback"
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       []string{"playlist-read-private", "playlist-read-collaborative"},
		Endpoint:     oauth2.Endpoint{AuthURL: spotifyAuthURL, TokenURL: spotifyTokenURL},
	}

	return &SpotifyService{config: config, httpClient: http.DefaultClient, apiBase: spotifyBaseURL}, nil
}

// Name returns the service name.
func (s *SpotifyService) Name() string {
	return "Spotify"
}

// AuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) AuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a token and authenticates the service with it.
func (s *SpotifyService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := s.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to exchange auth code: %v", shared.ErrAuthFailed, err)
	}
	s.token = token
	s.httpClient = s.config.Client(ctx, token)
	return token, nil
}

// Token returns the current token, which may have been refreshed since authentication.
func (s *SpotifyService) Token() (*oauth2.Token, error) {
	if s.token == nil {
		return nil, shared.ErrNotAuthenticated
	}
	if ts, ok := s.httpClient.Transport.(*oauth2.Transport); ok {
		return ts.Source.Token()
	}
	return s.token, nil
}

// Authenticate configures the HTTP client from "access_token" and optional "refresh_token", or
// exchanges an "auth_code".
func (s *SpotifyService) Authenticate(ctx context.Context, credentials map[string]string) error {
	access, refresh := credentials["access_token"], credentials["refresh_token"]
	if access != "" || refresh != "" {
		s.token = &oauth2.Token{AccessToken: access, RefreshToken: refresh, TokenType: "Bearer"}
		s.httpClient = s.config.Client(ctx, s.token)
		return nil
	}

	if code := credentials["auth_code"]; code != "" {
		_, err := s.Exchange(ctx, code)
		return err
	}

	return fmt.Errorf("%w: missing access_token, refresh_token or auth_code", shared.ErrMissingCredentials)
}

// doRequest performs an authenticated GET. endpoint may be a path or an absolute "next" URL.
func (s *SpotifyService) doRequest(ctx context.Context, endpoint string, result any) error {
	if s.token == nil {
		return shared.ErrNotAuthenticated
	}

	apiURL := endpoint
	if !strings.HasPrefix(endpoint, "http") {
		apiURL = s.apiBase + endpoint
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, endpoint)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: spotify status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Playlist retrieves a playlist and follows pagination until every track is loaded.
func (s *SpotifyService) Playlist(ctx context.Context, playlistID string) (*SpotifyPlaylist, error) {
	var pl SpotifyPlaylist
	if err := s.doRequest(ctx, "/playlists/"+url.PathEscape(playlistID), &pl); err != nil {
		return nil, err
	}

	next := pl.Tracks.Next
	for next != nil && *next != "" {
		var page SpotifyPlaylistTracks
		if err := s.doRequest(ctx, *next, &page); err != nil {
			return nil, err
		}
		pl.Tracks.Items = append(pl.Tracks.Items, page.Items...)
		next = page.Next
	}
	return &pl, nil
}

// SourcePlaylist flattens a playlist into import descriptors, skipping removed and local items.
func (s *SpotifyService) SourcePlaylist(ctx context.Context, playlistID string) (*SourcePlaylist, error) {
	pl, err := s.Playlist(ctx, playlistID)
	if err != nil {
		return nil, err
	}

	out := &SourcePlaylist{ID: pl.ID, Name: pl.Name}
	for _, item := range pl.Tracks.Items {
		if item.Track == nil || item.Track.IsLocal || item.Track.Name == "" {
			continue
		}
		out.Tracks = append(out.Tracks, item.Track.SourceTrack())
	}
	return out, nil
}
