package download

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/ytplay/internal/cache"
	"github.com/desertthunder/ytplay/internal/models"
)

const recodeMarker = ".part.recode"

// CompressProgress is reported once per cached file processed by [Manager.CompressExisting].
type CompressProgress struct {
	TrackID string
	Done    int
	Total   int
	Err     error
}

// CompressExisting re-encodes every cached file at quality q and makes q the quality of future
// downloads. Per-file failures are reported to sink and leave the original file in place; only
// cancellation aborts the batch. sink may be nil and is never called concurrently.
func (m *Manager) CompressExisting(ctx context.Context, q models.AudioQuality, sink func(CompressProgress)) error {
	m.SetAudioQuality(q)

	entries, err := m.index.Entries()
	if err != nil {
		return err
	}

	var (
		mu   sync.Mutex
		done int
	)
	report := func(p CompressProgress) {
		mu.Lock()
		defer mu.Unlock()
		done++
		p.Done, p.Total = done, len(entries)
		if sink != nil {
			sink(p)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for _, e := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			err := m.recompress(gctx, e, q.Bitrate())
			if err != nil {
				m.logger.Warn("re-encode failed", "track", e.TrackID, "err", err)
			}
			report(CompressProgress{TrackID: e.TrackID, Err: err})
			return nil
		})
	}
	return g.Wait()
}

func (m *Manager) recompress(ctx context.Context, e cache.Entry, bitrate string) error {
	tmp := strings.TrimSuffix(e.Path, m.index.Ext()) + recodeMarker + m.index.Ext()
	defer os.Remove(tmp)

	if err := m.extractor.Transcode(ctx, e.Path, tmp, bitrate); err != nil {
		return &DownloadError{TrackID: e.TrackID, Kind: ErrTranscodeFailure, Err: err}
	}
	if _, err := m.validate(ctx, tmp); err != nil {
		return &DownloadError{TrackID: e.TrackID, Kind: ErrValidationFailure, Err: err}
	}
	if err := os.Rename(tmp, e.Path); err != nil {
		return &DownloadError{TrackID: e.TrackID, Kind: ErrValidationFailure, Err: errors.Join(errors.New("replace failed"), err)}
	}
	return nil
}
