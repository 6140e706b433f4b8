package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/desertthunder/ytplay/internal/shared"
)

func TestYouTubeService(t *testing.T) {
	t.Run("NewYouTubeService", func(t *testing.T) {
		t.Run("creates service with default URL", func(t *testing.T) {
			if svc := NewYouTubeService("", nil); svc.baseURL != defaultYTBaseURL {
				t.Errorf("expected baseURL to be %s, got %s", defaultYTBaseURL, svc.baseURL)
			}
		})

		t.Run("creates service with custom URL", func(t *testing.T) {
			customURL := "http://localhost:9000"
			if svc := NewYouTubeService(customURL, nil); svc.baseURL != customURL {
				t.Errorf("expected baseURL to be %s, got %s", customURL, svc.baseURL)
			}
		})
	})

	t.Run("Name", func(t *testing.T) {
		if svc := NewYouTubeService("", nil); svc.Name() != "YouTube Music" {
			t.Errorf("expected name to be 'YouTube Music', got %s", svc.Name())
		}
	})

	t.Run("Authenticate", func(t *testing.T) {
		svc := NewYouTubeService("", nil)
		if err := svc.Authenticate("/path/to/browser.json"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if svc.authFile != "/path/to/browser.json" {
			t.Errorf("unexpected authFile %s", svc.authFile)
		}
		if err := svc.Authenticate(""); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("Search", func(t *testing.T) {
		var gotQuery, gotFilter, gotLimit, gotAuth string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/search" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			gotQuery = r.URL.Query().Get("q")
			gotFilter = r.URL.Query().Get("filter")
			gotLimit = r.URL.Query().Get("limit")
			gotAuth = r.Header.Get("X-Auth-File")
			json.NewEncoder(w).Encode([]map[string]any{
				{"videoId": "v1", "title": "Song", "artists": []map[string]string{{"name": "Artist"}}, "duration": "3:45", "duration_seconds": 225},
				{"videoId": "", "title": "Episode"},
				{"videoId": "v2", "title": "Song (Live)", "artists": []map[string]string{}, "duration_seconds": 250},
				{"videoId": "v3", "title": "Extra"},
			})
		}))
		defer server.Close()

		svc := NewYouTubeService(server.URL, server.Client())
		svc.Authenticate("/headers.json")

		results, err := svc.Search(context.Background(), "song artist", 2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gotQuery != "song artist" || gotFilter != "songs" || gotLimit != "2" || gotAuth != "/headers.json" {
			t.Errorf("unexpected request q=%q filter=%q limit=%q auth=%q", gotQuery, gotFilter, gotLimit, gotAuth)
		}
		if len(results) != 2 {
			t.Fatalf("expected 2 results, got %d", len(results))
		}
		first := results[0]
		if first.ID != "v1" || first.ChannelName != "Artist" || first.DurationFormatted != "3:45" || first.DurationMs != 225000 {
			t.Errorf("unexpected first result %+v", first)
		}
		if results[1].DurationFormatted != "4:10" {
			t.Errorf("expected derived duration 4:10, got %q", results[1].DurationFormatted)
		}
	})

	t.Run("Search error detail", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			json.NewEncoder(w).Encode(map[string]string{"detail": "upstream down"})
		}))
		defer server.Close()

		_, err := NewYouTubeService(server.URL, server.Client()).Search(context.Background(), "q", 5)
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Fatalf("expected ErrAPIRequest, got %v", err)
		}
		if want := "upstream down"; !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in error, got %v", want, err)
		}
	})
}
