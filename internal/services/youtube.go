// YouTube Music search provider
//
// Communicates with the FastAPI proxy server running on port 8080, which wraps the ytmusicapi
// Python library.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/shared"
)

const defaultYTBaseURL string = "http://localhost:8080"

// YouTubeArtist represents an artist in YouTube Music responses.
type YouTubeArtist struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// YouTubeTrack represents a song result from the proxy.
type YouTubeTrack struct {
	VideoID     string          `json:"videoId"`
	Title       string          `json:"title"`
	Artists     []YouTubeArtist `json:"artists"`
	Duration    string          `json:"duration"`
	DurationSec int             `json:"duration_seconds"`
}

// SearchResult converts the proxy representation into a provider-neutral candidate.
func (t YouTubeTrack) SearchResult() models.SearchResult {
	r := models.SearchResult{
		ID:                t.VideoID,
		Title:             t.Title,
		DurationFormatted: t.Duration,
		DurationMs:        int64(t.DurationSec) * 1000,
	}
	if len(t.Artists) > 0 {
		r.ChannelName = t.Artists[0].Name
	}
	if r.DurationFormatted == "" && t.DurationSec > 0 {
		r.DurationFormatted = shared.FormatClock(r.DurationMs)
	}
	return r
}

// YouTubeService searches YouTube Music through the proxy.
type YouTubeService struct {
	baseURL    string
	authFile   string
	httpClient *http.Client
}

// NewYouTubeService creates a new YouTube Music service instance.
func NewYouTubeService(baseURL string, client *http.Client) *YouTubeService {
	if baseURL == "" {
		baseURL = defaultYTBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &YouTubeService{baseURL: baseURL, httpClient: client}
}

// Name returns the service name.
func (y *YouTubeService) Name() string {
	return "YouTube Music"
}

// Authenticate stores the path of the browser headers file forwarded to the proxy.
func (y *YouTubeService) Authenticate(authFile string) error {
	if authFile == "" {
		return fmt.Errorf("%w: missing auth file", shared.ErrMissingCredentials)
	}
	y.authFile = authFile
	return nil
}

func (y *YouTubeService) doRequest(ctx context.Context, method, endpoint string, result any) error {
	req, err := http.NewRequestWithContext(ctx, method, y.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if y.authFile != "" {
		req.Header.Set("X-Auth-File", y.authFile)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := y.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp struct {
			Detail string `json:"detail"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Detail != "" {
			return fmt.Errorf("%w: youtube music (status %d): %s", shared.ErrAPIRequest, resp.StatusCode, errResp.Detail)
		}
		return fmt.Errorf("%w: youtube music status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// Search returns up to limit songs matching query, in proxy relevance order.
//
// Calls GET /api/search?q={query}&filter=songs&limit={limit} on the proxy.
func (y *YouTubeService) Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	params := url.Values{"q": {query}, "filter": {"songs"}}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var tracks []YouTubeTrack
	if err := y.doRequest(ctx, http.MethodGet, "/api/search?"+params.Encode(), &tracks); err != nil {
		return nil, err
	}

	results := make([]models.SearchResult, 0, len(tracks))
	for _, t := range tracks {
		if t.VideoID == "" {
			continue
		}
		results = append(results, t.SearchResult())
		if limit > 0 && len(results) == limit {
			break
		}
	}
	return results, nil
}
