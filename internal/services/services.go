package services

import (
	"context"

	"github.com/desertthunder/ytplay/internal/models"
)

// SearchProvider resolves a free text query into candidates in relevance order.
type SearchProvider interface {
	Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error)
	Name() string
}

// SourceProvider lists the tracks of an external playlist for import.
type SourceProvider interface {
	SourcePlaylist(ctx context.Context, playlistID string) (*SourcePlaylist, error)
	Name() string
}

// SourcePlaylist is an external playlist flattened into import descriptors.
type SourcePlaylist struct {
	ID     string
	Name   string
	Tracks []models.SourceTrack
}
