package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytplay/internal/download"
	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/shared"
)

// CacheStats prints the number and total size of cached files.
func (r *Runner) CacheStats(ctx context.Context, cmd *cli.Command) error {
	p, err := r.openPipeline(ctx, pipelineOpts{})
	if err != nil {
		return err
	}
	defer p.Close()

	stats, err := p.downloads.Stats()
	if err != nil {
		return fmt.Errorf("failed to read cache: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{
			"dir":     p.index.Dir(),
			"files":   stats.Files,
			"bytes":   stats.Bytes,
			"quality": p.downloads.Quality(),
		}, cmd.Bool("pretty"))
	}

	r.writePlain("Cache:   %s\n", p.index.Dir())
	r.writePlain("Files:   %d\n", stats.Files)
	r.writePlain("Size:    %s\n", humanize.Bytes(uint64(stats.Bytes)))
	if limit, err := r.config.Cache.MaxBytes(); err == nil && limit > 0 {
		r.writePlain("Limit:   %s\n", humanize.Bytes(limit))
	}
	r.writePlain("Quality: %s\n", p.downloads.Quality())
	return nil
}

// CacheSweep deletes partial and intermediate files older than --max-age.
func (r *Runner) CacheSweep(ctx context.Context, cmd *cli.Command) error {
	p, err := r.openPipeline(ctx, pipelineOpts{})
	if err != nil {
		return err
	}
	defer p.Close()

	maxAge := cmd.Duration("max-age")
	if maxAge <= 0 {
		maxAge = r.config.Cache.TempMaxAge()
	}

	removed, err := p.downloads.SweepTemp(maxAge)
	if err != nil {
		return fmt.Errorf("failed to sweep cache: %w", err)
	}
	return r.writePlain("✓ Removed %d stale temp file(s)\n", removed)
}

// CachePrune evicts the oldest cached files until the cache fits --max-size.
func (r *Runner) CachePrune(ctx context.Context, cmd *cli.Command) error {
	limit, err := r.config.Cache.MaxBytes()
	if err != nil {
		return err
	}
	if s := cmd.String("max-size"); s != "" {
		if limit, err = humanize.ParseBytes(s); err != nil {
			return fmt.Errorf("%w: max-size: %v", shared.ErrInvalidArgument, err)
		}
	}
	if limit == 0 {
		return fmt.Errorf("%w: no size ceiling configured; pass --max-size", shared.ErrMissingArgument)
	}

	p, err := r.openPipeline(ctx, pipelineOpts{})
	if err != nil {
		return err
	}
	defer p.Close()

	res, err := p.downloads.EvictToSize(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to prune cache: %w", err)
	}
	return r.writePlain("✓ Removed %d file(s), freed %s, %s remaining\n",
		res.Removed, humanize.Bytes(uint64(res.Freed)), humanize.Bytes(uint64(res.Remaining)))
}

// CacheCompress re-encodes the whole cache at --quality and makes it the download quality.
func (r *Runner) CacheCompress(ctx context.Context, cmd *cli.Command) error {
	quality, err := models.ParseAudioQuality(cmd.String("quality"))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}

	p, err := r.openPipeline(ctx, pipelineOpts{})
	if err != nil {
		return err
	}
	defer p.Close()

	failed := 0
	err = p.downloads.CompressExisting(ctx, quality, func(pr download.CompressProgress) {
		if pr.Err != nil {
			failed++
			r.writePlain("%s [%d/%d] %s: %v\n", r.palette.Err("✗"), pr.Done, pr.Total, pr.TrackID, pr.Err)
			return
		}
		r.writePlain("%s [%d/%d] %s\n", r.palette.OK("✓"), pr.Done, pr.Total, pr.TrackID)
	})
	if err != nil {
		return fmt.Errorf("compression stopped: %w", err)
	}

	r.writePlainln("✓ Cache re-encoded at %s (%s), %d failure(s)", quality, quality.Bitrate(), failed)
	return nil
}
