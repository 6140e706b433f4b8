package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytplay/internal/download"
	"github.com/desertthunder/ytplay/internal/match"
	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/shared"
)

// readTracksFile decodes a JSON array of source tracks.
func readTracksFile(path string) ([]models.SourceTrack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tracks file: %w", err)
	}
	var tracks []models.SourceTrack
	if err := json.Unmarshal(data, &tracks); err != nil {
		return nil, fmt.Errorf("%w: tracks file: %v", shared.ErrInvalidArgument, err)
	}
	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w: tracks file %s is empty", shared.ErrInvalidArgument, path)
	}
	return tracks, nil
}

type batchOutput struct {
	Source models.SourceTrack   `json:"source"`
	Match  *models.SearchResult `json:"match,omitempty"`
	Path   string               `json:"path,omitempty"`
	Error  string               `json:"error,omitempty"`
}

// DownloadBatch resolves every track in a file with the batch tolerance and downloads the matches.
func (r *Runner) DownloadBatch(ctx context.Context, cmd *cli.Command) error {
	tracks, err := readTracksFile(cmd.String("file"))
	if err != nil {
		return err
	}

	p, err := r.openPipeline(ctx, pipelineOpts{})
	if err != nil {
		return err
	}
	defer p.Close()

	tolerance := r.config.Imports.BatchToleranceMS
	if tolerance <= 0 {
		tolerance = match.BatchImportTolerance
	}

	r.logger.Info("starting batch download", "tracks", len(tracks), "tolerance", shared.FormatClock(tolerance))
	results, err := p.downloads.DownloadBatch(ctx, p.searcher, tracks, download.BatchOptions{
		Tolerance:     tolerance,
		SearchLimit:   r.config.Search.Limit,
		SearchTimeout: r.config.Search.Timeout(),
	})
	if err != nil {
		return err
	}

	out := make([]batchOutput, len(results))
	var matched []models.SearchResult
	downloaded := 0
	for i, res := range results {
		out[i] = batchOutput{Source: res.Source, Match: res.Match, Path: res.Path}
		if res.Err != nil {
			out[i].Error = res.Err.Error()
		}
		if res.Match != nil {
			matched = append(matched, *res.Match)
		}
		if res.Path != "" {
			downloaded++
		}
	}

	if name := cmd.String("playlist"); name != "" && len(matched) > 0 {
		if err := p.library.Save(name, matched); err != nil {
			return fmt.Errorf("failed to save playlist: %w", err)
		}
		r.logger.Info("playlist saved", "name", name, "tracks", len(matched))
	}

	if cmd.Bool("json") {
		return r.writeJSON(out, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("Batch: %d matched, %d downloaded of %d", len(matched), downloaded, len(tracks)))
	for i, o := range out {
		switch {
		case o.Path != "":
			r.writePlain("%s %d. %s - %s → %s\n", r.palette.OK("✓"), i+1, o.Source.Artist, o.Source.Name, o.Path)
		case o.Match != nil:
			r.writePlain("%s %d. %s - %s → %s (%s)\n", r.palette.Warn("!"), i+1, o.Source.Artist, o.Source.Name, o.Match.ID, o.Error)
		default:
			r.writePlain("%s %d. %s - %s\n", r.palette.Err("✗"), i+1, o.Source.Artist, o.Source.Name)
		}
	}
	return nil
}
