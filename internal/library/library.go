// Package library implements the playlist store: one directory per playlist holding a
// playlist.json metadata file and, for materialized imports, a tracks/ directory of audio files.
//
// Metadata is also exposed raw ([Store.ReadMetadata], [Store.WriteMetadata]) because the
// download manager edits it directly when a track becomes permanently unavailable.
package library

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/shared"
)

const (
	metadataFile = "playlist.json"
	tracksDir    = "tracks"
)

// ErrPlaylistNotFound is returned when no metadata exists for a playlist name.
var ErrPlaylistNotFound = shared.ErrPlaylistNotFound

// Playlist is the on-disk metadata of a playlist.
type Playlist struct {
	Name      string                `json:"name"`
	Tracks    []models.SearchResult `json:"tracks"`
	CreatedAt time.Time             `json:"createdAt"`
	UpdatedAt time.Time             `json:"updatedAt"`
}

// Store reads and writes playlists under a root directory.
type Store struct {
	root   string
	mu     sync.Mutex
	logger *log.Logger
	now    func() time.Time
}

// NewStore creates a store rooted at dir.
func NewStore(dir string, logger *log.Logger) *Store {
	return &Store{
		root:   dir,
		logger: shared.WithLogger(logger, "component", "library"),
		now:    time.Now,
	}
}

// Root returns the store directory.
func (s *Store) Root() string { return s.root }

// Save writes tracks as the full contents of playlist name, replacing any existing tracks.
func (s *Store) Save(name string, tracks []models.SearchResult) error {
	dir, err := s.dir(name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	pl := Playlist{Name: name, Tracks: slices.Clone(tracks), CreatedAt: now, UpdatedAt: now}
	if pl.Tracks == nil {
		pl.Tracks = []models.SearchResult{}
	}
	if existing, err := s.readLocked(dir); err == nil {
		pl.CreatedAt = existing.CreatedAt
	}

	data, err := json.MarshalIndent(pl, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode playlist: %w", err)
	}
	return shared.WriteFileAtomic(filepath.Join(dir, metadataFile), data, 0o644)
}

// Load returns the tracks of playlist name.
func (s *Store) Load(name string) (*Playlist, error) {
	dir, err := s.dir(name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked(dir)
}

// List returns the names of all playlists with metadata, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read library: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, e.Name(), metadataFile)); err == nil {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

// ReadMetadata returns the raw metadata JSON of playlist name.
func (s *Store) ReadMetadata(name string) ([]byte, error) {
	dir, err := s.dir(name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readRawLocked(dir)
}

// WriteMetadata replaces the raw metadata JSON of playlist name. data must be a JSON object.
func (s *Store) WriteMetadata(name string, data []byte) error {
	dir, err := s.dir(name)
	if err != nil {
		return err
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("%w: metadata must be a JSON object: %v", shared.ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return shared.WriteFileAtomic(filepath.Join(dir, metadataFile), data, 0o644)
}

// RemoveTrack deletes trackID from every playlist that references it and returns the names of the
// playlists that changed. Metadata is edited raw so fields this package does not know survive.
func (s *Store) RemoveTrack(trackID string) ([]string, error) {
	names, err := s.List()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []string
	var errs []error
	for _, name := range names {
		dir := filepath.Join(s.root, name)
		raw, err := s.readRawLocked(dir)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		updated, removed, err := removeTrackFromMetadata(raw, trackID)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if !removed {
			continue
		}

		if err := shared.WriteFileAtomic(filepath.Join(dir, metadataFile), updated, 0o644); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if files, _ := filepath.Glob(filepath.Join(dir, tracksDir, trackID+".*")); len(files) > 0 {
			for _, f := range files {
				os.Remove(f)
			}
		}
		changed = append(changed, name)
		s.logger.Info("removed track from playlist", "track", trackID, "playlist", name)
	}
	return changed, errors.Join(errs...)
}

// TrackDir returns the directory that holds materialized audio for playlist name.
func (s *Store) TrackDir(name string) (string, error) {
	dir, err := s.dir(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, tracksDir), nil
}

func (s *Store) dir(name string) (string, error) {
	clean := SanitizeName(name)
	if clean == "" {
		return "", fmt.Errorf("%w: empty playlist name", shared.ErrInvalidInput)
	}
	return filepath.Join(s.root, clean), nil
}

func (s *Store) readRawLocked(dir string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrPlaylistNotFound, filepath.Base(dir))
		}
		return nil, fmt.Errorf("failed to read playlist metadata: %w", err)
	}
	return data, nil
}

func (s *Store) readLocked(dir string) (*Playlist, error) {
	data, err := s.readRawLocked(dir)
	if err != nil {
		return nil, err
	}
	var pl Playlist
	if err := json.Unmarshal(data, &pl); err != nil {
		return nil, fmt.Errorf("failed to decode playlist metadata: %w", err)
	}
	return &pl, nil
}

func removeTrackFromMetadata(raw []byte, trackID string) ([]byte, bool, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, false, fmt.Errorf("failed to decode metadata: %w", err)
	}
	tracksRaw, ok := doc["tracks"]
	if !ok {
		return raw, false, nil
	}

	var tracks []map[string]any
	if err := json.Unmarshal(tracksRaw, &tracks); err != nil {
		return nil, false, fmt.Errorf("failed to decode tracks: %w", err)
	}

	kept := tracks[:0]
	for _, t := range tracks {
		if id, _ := t["id"].(string); id == trackID {
			continue
		}
		kept = append(kept, t)
	}
	if len(kept) == len(tracks) {
		return raw, false, nil
	}

	encoded, err := json.Marshal(kept)
	if err != nil {
		return nil, false, err
	}
	doc["tracks"] = encoded
	if _, ok := doc["updatedAt"]; ok {
		doc["updatedAt"], _ = json.Marshal(time.Now())
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	return out, true, err
}

// SanitizeName maps a playlist name to a safe directory name.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, name)
	name = strings.Trim(name, ". ")
	return name
}
