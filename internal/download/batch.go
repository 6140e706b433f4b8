package download

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/ytplay/internal/match"
	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/shared"
)

// Searcher resolves a free text query into candidates in relevance order.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error)
}

// BatchOptions tunes [Manager.DownloadBatch].
type BatchOptions struct {
	Tolerance     int64
	SearchLimit   int
	SearchTimeout time.Duration
}

// BatchResult is the outcome for one source track. Match is nil when nothing was close enough.
type BatchResult struct {
	Source models.SourceTrack
	Match  *models.SearchResult
	Path   string
	Err    error
}

// DownloadBatch resolves each source track against searcher and downloads the best match.
//
// Matching uses [match.BatchImportTolerance] unless opts overrides it. Results are returned in
// input order; an error is returned only when ctx is cancelled.
func (m *Manager) DownloadBatch(ctx context.Context, searcher Searcher, tracks []models.SourceTrack, opts BatchOptions) ([]BatchResult, error) {
	if opts.Tolerance <= 0 {
		opts.Tolerance = match.BatchImportTolerance
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = 10
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = 15 * time.Second
	}

	results := make([]BatchResult, len(tracks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)

	for i, src := range tracks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = m.resolveAndDownload(gctx, searcher, src, opts)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (m *Manager) resolveAndDownload(ctx context.Context, searcher Searcher, src models.SourceTrack, opts BatchOptions) BatchResult {
	res := BatchResult{Source: src}

	sctx, cancel := context.WithTimeout(ctx, opts.SearchTimeout)
	candidates, err := searcher.Search(sctx, shared.BuildSearchQuery(src.Name, src.Artist), opts.SearchLimit)
	cancel()
	if err != nil {
		res.Err = err
		return res
	}

	res.Match = match.SelectBest(candidates, src.DurationMs, opts.Tolerance)
	if res.Match == nil {
		return res
	}

	res.Path, res.Err = m.QueueDownload(ctx, res.Match.ID, res.Match.Title, false)
	return res
}
