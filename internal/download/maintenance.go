package download

import (
	"context"
	"os"
	"slices"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/desertthunder/ytplay/internal/cache"
)

// DefaultTempMaxAge is how old a partial file must be before the startup sweep deletes it.
const DefaultTempMaxAge = time.Hour

// Stats summarizes the cache directory.
type Stats struct {
	Files int
	Bytes int64
}

// PruneResult reports what [Manager.EvictToSize] deleted.
type PruneResult struct {
	Removed   int
	Freed     int64
	Remaining int64
}

// Stats counts valid cache entries and their total size.
func (m *Manager) Stats() (Stats, error) {
	entries, err := m.index.Entries()
	if err != nil {
		return Stats{}, err
	}
	var s Stats
	for _, e := range entries {
		s.Files++
		s.Bytes += e.Size
	}
	return s, nil
}

// SweepTemp deletes partial and intermediate files last modified more than maxAge ago.
func (m *Manager) SweepTemp(maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		maxAge = DefaultTempMaxAge
	}
	temps, err := m.index.TempFiles()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, t := range temps {
		if t.ModTime.After(cutoff) {
			continue
		}
		if err := os.Remove(t.Path); err != nil && !os.IsNotExist(err) {
			m.logger.Warn("failed to remove temp file", "path", t.Path, "err", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		m.logger.Info("swept temp files", "removed", removed)
	}
	return removed, nil
}

// EvictToSize deletes the oldest cached files, by modification time, until the cache holds at most
// maxBytes. A zero ceiling is a no-op.
func (m *Manager) EvictToSize(ctx context.Context, maxBytes uint64) (PruneResult, error) {
	entries, err := m.index.Entries()
	if err != nil {
		return PruneResult{}, err
	}

	var total int64
	for _, e := range entries {
		total += e.Size
	}
	res := PruneResult{Remaining: total}
	if maxBytes == 0 || uint64(total) <= maxBytes {
		return res, nil
	}

	slices.SortFunc(entries, func(a, b cache.Entry) int { return a.ModTime.Compare(b.ModTime) })
	for _, e := range entries {
		if uint64(res.Remaining) <= maxBytes {
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := os.Remove(e.Path); err != nil && !os.IsNotExist(err) {
			m.logger.Warn("failed to evict", "path", e.Path, "err", err)
			continue
		}
		if m.recorder != nil {
			if err := m.recorder.DeleteCached(ctx, e.TrackID); err != nil {
				m.logger.Warn("failed to forget cached track", "track", e.TrackID, "err", err)
			}
		}
		res.Removed++
		res.Freed += e.Size
		res.Remaining -= e.Size
	}

	m.logger.Info("evicted cache entries",
		"removed", res.Removed,
		"freed", humanize.Bytes(uint64(res.Freed)),
		"remaining", humanize.Bytes(uint64(res.Remaining)),
		"ceiling", humanize.Bytes(maxBytes),
	)
	return res, nil
}
