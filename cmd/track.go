package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytplay/internal/match"
	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/shared"
)

// TrackPath prints a playable path for a track, fetching it through the download pool if needed.
func (r *Runner) TrackPath(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: track id", shared.ErrMissingArgument)
	}

	p, err := r.openPipeline(ctx, pipelineOpts{})
	if err != nil {
		return err
	}
	defer p.Close()

	if q := cmd.String("quality"); q != "" {
		quality, err := models.ParseAudioQuality(q)
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
		}
		p.downloads.SetAudioQuality(quality)
	}

	path, err := p.downloads.QueueDownload(ctx, id, cmd.String("title"), cmd.Bool("preload"))
	if err != nil {
		return err
	}
	if path == "" {
		r.logger.Warn("track unavailable", "track", id)
		return nil
	}
	return r.writePlain("%s\n", path)
}

// TrackCached reports whether a track is already in the cache.
func (r *Runner) TrackCached(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: track id", shared.ErrMissingArgument)
	}

	p, err := r.openPipeline(ctx, pipelineOpts{})
	if err != nil {
		return err
	}
	defer p.Close()

	if p.downloads.IsCached(id) {
		return r.writePlain("%s cached\n", r.palette.OK("✓"))
	}
	return r.writePlain("%s not cached\n", r.palette.Err("✗"))
}

// Search runs a one-off search. With --duration only the closest result within the dialog
// tolerance is printed.
func (r *Runner) Search(ctx context.Context, cmd *cli.Command) error {
	query := strings.TrimSpace(cmd.StringArg("query"))
	if query == "" {
		return fmt.Errorf("%w: query", shared.ErrMissingArgument)
	}
	limit := int(cmd.Int("limit"))
	if limit <= 0 {
		limit = r.config.Search.Limit
	}

	p, err := r.openPipeline(ctx, pipelineOpts{})
	if err != nil {
		return err
	}
	defer p.Close()

	searchCtx, cancel := context.WithTimeout(ctx, r.config.Search.Timeout())
	defer cancel()

	results, err := p.searcher.Search(searchCtx, query, limit)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	if d := cmd.String("duration"); d != "" {
		target, ok := shared.ParseClock(d)
		if !ok {
			return fmt.Errorf("%w: duration %q is not M:SS", shared.ErrInvalidArgument, d)
		}
		tolerance := r.config.Imports.DialogToleranceMS
		if tolerance <= 0 {
			tolerance = match.DialogTolerance
		}
		best := match.SelectBest(results, target, tolerance)
		if cmd.Bool("json") {
			return r.writeJSON(best, cmd.Bool("pretty"))
		}
		if best == nil {
			return r.writePlain("%s no result within %s of %s\n", r.palette.Err("✗"), shared.FormatClock(tolerance), d)
		}
		return r.writePlain("%s %s - %s [%s] (%s)\n", r.palette.OK("✓"), best.ChannelName, best.Title, best.DurationFormatted, best.ID)
	}

	if cmd.Bool("json") {
		return r.writeJSON(results, cmd.Bool("pretty"))
	}

	r.writePlain("Found %d results:\n\n", len(results))
	for i, res := range results {
		r.writePlain("%d. %s - %s [%s]\n", i+1, res.ChannelName, res.Title, res.DurationFormatted)
		r.writePlain("   ID: %s\n", res.ID)
	}
	return nil
}
