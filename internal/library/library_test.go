package library

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/ytplay/internal/models"
)

func track(id string) models.SearchResult {
	return models.SearchResult{ID: id, Title: "Title " + id, DurationFormatted: "3:00", DurationMs: 180000}
}

func TestStore(t *testing.T) {
	t.Run("Save and Load", func(t *testing.T) {
		s := NewStore(t.TempDir(), nil)

		if err := s.Save("Road Trip", []models.SearchResult{track("a"), track("b")}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		pl, err := s.Load("Road Trip")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if pl.Name != "Road Trip" || len(pl.Tracks) != 2 || pl.Tracks[1].ID != "b" {
			t.Errorf("unexpected playlist %+v", pl)
		}
	})

	t.Run("Save preserves created time", func(t *testing.T) {
		s := NewStore(t.TempDir(), nil)
		if err := s.Save("p", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		first, _ := s.Load("p")
		if err := s.Save("p", []models.SearchResult{track("a")}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, _ := s.Load("p")
		if !second.CreatedAt.Equal(first.CreatedAt) {
			t.Error("created time should survive a re-save")
		}
		if first.Tracks == nil {
			t.Error("empty playlists should encode an empty track list")
		}
	})

	t.Run("Load missing", func(t *testing.T) {
		s := NewStore(t.TempDir(), nil)
		if _, err := s.Load("nope"); !errors.Is(err, ErrPlaylistNotFound) {
			t.Errorf("expected ErrPlaylistNotFound, got %v", err)
		}
	})

	t.Run("List", func(t *testing.T) {
		root := t.TempDir()
		s := NewStore(root, nil)
		for _, name := range []string{"b", "a"} {
			if err := s.Save(name, nil); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if err := os.MkdirAll(filepath.Join(root, "no-metadata"), 0o755); err != nil {
			t.Fatal(err)
		}

		names, err := s.List()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Join(names, ",") != "a,b" {
			t.Errorf("expected a,b got %v", names)
		}

		empty := NewStore(filepath.Join(root, "missing"), nil)
		if names, err := empty.List(); err != nil || len(names) != 0 {
			t.Errorf("expected empty list for missing root, got %v %v", names, err)
		}
	})

	t.Run("raw metadata round trip keeps unknown fields", func(t *testing.T) {
		s := NewStore(t.TempDir(), nil)
		raw := []byte(`{"name":"p","cover":"art.png","tracks":[{"id":"a","extra":1}]}`)
		if err := s.WriteMetadata("p", raw); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got, err := s.ReadMetadata("p")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(got) != string(raw) {
			t.Errorf("expected raw bytes back, got %s", got)
		}

		if err := s.WriteMetadata("p", []byte(`[1,2]`)); err == nil {
			t.Error("expected error for non-object metadata")
		}
	})

	t.Run("RemoveTrack edits every playlist that references the id", func(t *testing.T) {
		s := NewStore(t.TempDir(), nil)
		if err := s.Save("one", []models.SearchResult{track("x"), track("y")}); err != nil {
			t.Fatal(err)
		}
		if err := s.Save("two", []models.SearchResult{track("y")}); err != nil {
			t.Fatal(err)
		}
		if err := s.WriteMetadata("three", []byte(`{"name":"three","cover":"c.png","tracks":[{"id":"x"},{"id":"z"}]}`)); err != nil {
			t.Fatal(err)
		}
		trackDir, _ := s.TrackDir("one")
		if err := os.MkdirAll(trackDir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(trackDir, "x.mp3"), []byte("audio"), 0o644); err != nil {
			t.Fatal(err)
		}

		changed, err := s.RemoveTrack("x")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Join(changed, ",") != "one,three" {
			t.Errorf("expected one,three to change, got %v", changed)
		}

		for _, name := range []string{"one", "two", "three"} {
			raw, err := s.ReadMetadata(name)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var doc struct {
				Tracks []struct {
					ID string `json:"id"`
				} `json:"tracks"`
			}
			if err := json.Unmarshal(raw, &doc); err != nil {
				t.Fatalf("invalid metadata: %v", err)
			}
			for _, tr := range doc.Tracks {
				if tr.ID == "x" {
					t.Errorf("playlist %s still contains x", name)
				}
			}
		}

		raw, _ := s.ReadMetadata("three")
		if !strings.Contains(string(raw), "c.png") {
			t.Error("unknown fields should be preserved")
		}
		if _, err := os.Stat(filepath.Join(trackDir, "x.mp3")); !os.IsNotExist(err) {
			t.Error("materialized file should be removed")
		}
	})

	t.Run("invalid names", func(t *testing.T) {
		s := NewStore(t.TempDir(), nil)
		if err := s.Save("  ", nil); err == nil {
			t.Error("expected error for blank name")
		}
	})
}

func TestSanitizeName(t *testing.T) {
	tc := map[string]string{
		"Road Trip":    "Road Trip",
		"a/b\\c":       "a_b_c",
		"../escape":    "_escape",
		"what?":        "what_",
		"  padded  ":   "padded",
		"tail dots...": "tail dots",
	}
	for in, want := range tc {
		if got := SanitizeName(in); got != want {
			t.Errorf("SanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}
