package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/shared"
)

// CachedTrackRepository records metadata about files in the download cache.
//
// Rows are upserted on every successful fetch, so a re-download after eviction refreshes the
// existing entry instead of failing on the primary key.
type CachedTrackRepository struct {
	db *sql.DB
}

// NewCachedTrackRepository creates a new CachedTrackRepository with the given database connection
func NewCachedTrackRepository(db *sql.DB) *CachedTrackRepository {
	return &CachedTrackRepository{db: db}
}

// RecordCached inserts or refreshes the entry for track.TrackID.
func (r *CachedTrackRepository) RecordCached(ctx context.Context, track models.CachedTrack) error {
	if track.TrackID == "" {
		return fmt.Errorf("%w: empty track id", shared.ErrInvalidInput)
	}

	query := `
		INSERT INTO cached_tracks (track_id, title, path, size_bytes, bitrate, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(track_id) DO UPDATE SET
			title = excluded.title,
			path = excluded.path,
			size_bytes = excluded.size_bytes,
			bitrate = excluded.bitrate,
			fetched_at = excluded.fetched_at
	`
	_, err := r.db.ExecContext(ctx, query, track.TrackID, track.Title, track.Path, track.SizeBytes, track.Bitrate, track.FetchedAt)
	if err != nil {
		return fmt.Errorf("failed to record cached track: %w", err)
	}
	return nil
}

// DeleteCached forgets trackID. Deleting an unknown id is not an error.
func (r *CachedTrackRepository) DeleteCached(ctx context.Context, trackID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cached_tracks WHERE track_id = ?`, trackID); err != nil {
		return fmt.Errorf("failed to delete cached track: %w", err)
	}
	return nil
}

// Get retrieves the entry for trackID.
func (r *CachedTrackRepository) Get(ctx context.Context, trackID string) (*models.CachedTrack, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT track_id, title, path, size_bytes, bitrate, fetched_at
		FROM cached_tracks
		WHERE track_id = ?
	`, trackID)

	track, err := scanCachedTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrTrackNotFound, trackID)
	}
	if err != nil {
		return nil, err
	}
	return track, nil
}

// List returns every entry, most recently fetched first.
func (r *CachedTrackRepository) List(ctx context.Context) ([]*models.CachedTrack, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT track_id, title, path, size_bytes, bitrate, fetched_at
		FROM cached_tracks
		ORDER BY fetched_at DESC, track_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cached tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*models.CachedTrack
	for rows.Next() {
		track, err := scanCachedTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cached tracks: %w", err)
	}
	return tracks, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCachedTrack(s scanner) (*models.CachedTrack, error) {
	var t models.CachedTrack
	if err := s.Scan(&t.TrackID, &t.Title, &t.Path, &t.SizeBytes, &t.Bitrate, &t.FetchedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan cached track: %w", err)
	}
	return &t, nil
}
