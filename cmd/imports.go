package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytplay/internal/formatter"
	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/shared"
	"github.com/desertthunder/ytplay/internal/tasks"
)

// startImports opens the pipeline and loads persisted tasks.
func (r *Runner) startImports(ctx context.Context) (*pipeline, error) {
	p, err := r.openPipeline(ctx, pipelineOpts{})
	if err != nil {
		return nil, err
	}
	if err := p.imports.Start(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// followImports prints progress events until the returned stop function is called.
func (r *Runner) followImports(p *pipeline) func() {
	events, unsubscribe := p.imports.Subscribe(64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			switch ev.Kind {
			case tasks.TaskProgress:
				r.writePlain("  %s\n", ev.Message)
			case tasks.TaskCompleted, tasks.TaskPaused, tasks.TaskResumed, tasks.TaskCancelled:
				r.writePlain("→ %s\n", ev.Message)
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			<-done
		})
	}
}

// ImportCreate creates an import task from a tracks file or a Spotify playlist.
func (r *Runner) ImportCreate(ctx context.Context, cmd *cli.Command) error {
	name := cmd.String("name")
	file, spotifyID := cmd.String("file"), cmd.String("spotify")

	var tracks []models.SourceTrack
	switch {
	case file != "" && spotifyID != "":
		return fmt.Errorf("%w: cannot specify both --file and --spotify", shared.ErrInvalidArgument)
	case file != "":
		var err error
		if tracks, err = readTracksFile(file); err != nil {
			return err
		}
	case spotifyID != "":
		source, err := r.spotifySource(ctx)
		if err != nil {
			return err
		}
		pl, err := source.SourcePlaylist(ctx, spotifyID)
		if err != nil {
			return fmt.Errorf("failed to load playlist from %s: %w", source.Name(), err)
		}
		tracks = pl.Tracks
		if name == "" {
			name = pl.Name
		}
		r.logger.Info("loaded source playlist", "service", source.Name(), "name", pl.Name, "tracks", len(tracks))
	default:
		return fmt.Errorf("%w: either --file or --spotify must be provided", shared.ErrMissingArgument)
	}

	wait := cmd.Bool("wait")
	p, err := r.openPipeline(ctx, pipelineOpts{})
	if err != nil {
		return err
	}
	defer p.Close()

	if !wait {
		// Without the processor the task is only persisted; the next start resumes it.
		if err := p.imports.Load(ctx); err != nil {
			return err
		}
		id, err := p.imports.CreateTask(name, tracks, cmd.Bool("download"))
		if err != nil {
			return err
		}
		r.writePlain("✓ Created import %s: %s (%d tracks)\n", id, name, len(tracks))
		r.writePlain("Run 'ytplay import run' or 'ytplay serve' to process it.\n")
		return nil
	}

	if err := p.imports.Start(ctx); err != nil {
		return err
	}
	stop := r.followImports(p)
	defer stop()

	id, err := p.imports.CreateTask(name, tracks, cmd.Bool("download"))
	if err != nil {
		return err
	}
	r.writePlain("✓ Created import %s: %s (%d tracks)\n", id, name, len(tracks))

	if err := p.imports.Wait(ctx); err != nil {
		return err
	}
	stop()
	return r.printTaskSummary(p, id)
}

// ImportList prints active import tasks, or all of them with --all.
func (r *Runner) ImportList(ctx context.Context, cmd *cli.Command) error {
	p, err := r.startImports(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	list := p.imports.ListActive()
	if cmd.Bool("all") {
		list = p.imports.List()
	}

	if cmd.Bool("json") {
		if list == nil {
			list = []*models.ImportTask{}
		}
		return r.writeJSON(list, cmd.Bool("pretty"))
	}

	if len(list) == 0 {
		return r.writePlain("No import tasks.\n")
	}

	r.writePlain("%-36s  %-9s  %-9s  %s\n", "ID", "STATUS", "PROGRESS", "PLAYLIST")
	for _, t := range list {
		progress := fmt.Sprintf("%d/%d", t.ProcessedTracks, t.TotalTracks())
		r.writePlain("%-36s  %s  %-9s  %s (%d found, %s)\n",
			t.ID, r.palette.TaskStatus(t.Status), progress, t.PlaylistName, t.FoundTracks, humanize.Time(t.CreatedAt))
	}
	return nil
}

// ImportShow prints the per-track results of a task.
func (r *Runner) ImportShow(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: task id", shared.ErrMissingArgument)
	}

	p, err := r.startImports(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	task, err := p.imports.Get(id)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(task, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("%s (%s)", task.PlaylistName, task.Status))
	r.writePlain("Progress: %d/%d processed, %d found\n\n", task.ProcessedTracks, task.TotalTracks(), task.FoundTracks)
	for i, res := range task.Results {
		line := fmt.Sprintf("%s %d. %s - %s [%s]", r.palette.TrackStatus(res.Status), i+1,
			res.Source.Artist, res.Source.Name, shared.FormatClock(res.Source.DurationMs))
		if res.Match != nil {
			line += fmt.Sprintf(" → %s [%s] (%s)", res.Match.Title, res.Match.DurationFormatted, res.Match.ID)
		}
		r.writePlain("%s\n", line)
	}
	return nil
}

// ImportPause pauses a task. A task interrupted by a restart stays paused and is no longer
// auto-resumed.
func (r *Runner) ImportPause(ctx context.Context, cmd *cli.Command) error {
	return r.importAction(ctx, cmd, func(p *pipeline, id string) error {
		err := p.imports.Pause(id)
		if errors.Is(err, tasks.ErrInvalidTransition) {
			if t, getErr := p.imports.Get(id); getErr == nil && t.Status == models.TaskPaused {
				return r.writePlain("Import %s is already paused\n", id)
			}
		}
		if err != nil {
			return err
		}
		return r.writePlain("✓ Paused import %s\n", id)
	})
}

// ImportResume resumes a paused task and processes it in the foreground.
func (r *Runner) ImportResume(ctx context.Context, cmd *cli.Command) error {
	return r.importAction(ctx, cmd, func(p *pipeline, id string) error {
		stop := r.followImports(p)
		defer stop()
		if err := p.imports.Resume(id); err != nil {
			return err
		}
		if err := p.imports.Wait(ctx); err != nil {
			return err
		}
		stop()
		return r.printTaskSummary(p, id)
	})
}

// ImportCancel cancels a task, optionally saving what was found as a partial playlist.
func (r *Runner) ImportCancel(ctx context.Context, cmd *cli.Command) error {
	return r.importAction(ctx, cmd, func(p *pipeline, id string) error {
		savePartial := cmd.Bool("save-partial")
		if err := p.imports.Cancel(id, savePartial); err != nil {
			return err
		}
		if savePartial {
			return r.writePlain("✓ Cancelled import %s and saved the partial playlist\n", id)
		}
		return r.writePlain("✓ Cancelled import %s\n", id)
	})
}

// ImportRemove forgets a completed task.
func (r *Runner) ImportRemove(ctx context.Context, cmd *cli.Command) error {
	return r.importAction(ctx, cmd, func(p *pipeline, id string) error {
		if err := p.imports.Remove(id); err != nil {
			return err
		}
		return r.writePlain("✓ Removed import %s\n", id)
	})
}

// ImportRun resumes tasks interrupted by the last shutdown and processes the queue until idle.
func (r *Runner) ImportRun(ctx context.Context, cmd *cli.Command) error {
	p, err := r.startImports(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	stop := r.followImports(p)
	defer stop()

	ids := p.imports.Interrupted()
	if cmd.Bool("all") {
		ids = ids[:0]
		for _, t := range p.imports.ListActive() {
			if t.Status == models.TaskPaused {
				ids = append(ids, t.ID)
			}
		}
	}
	if len(ids) == 0 {
		return r.writePlain("Nothing to resume.\n")
	}

	start := time.Now()
	for _, id := range ids {
		if err := p.imports.Resume(id); err != nil {
			r.logger.Warn("failed to resume import", "task", id, "error", err)
		}
	}
	if err := p.imports.Wait(ctx); err != nil {
		return err
	}
	stop()

	r.writePlainln("✓ Processed %d import(s) in %s", len(ids), time.Since(start).Round(time.Second))
	return nil
}

// ImportExport writes a report of a task.
func (r *Runner) ImportExport(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	return r.importAction(ctx, cmd, func(p *pipeline, id string) error {
		task, err := p.imports.Get(id)
		if err != nil {
			return err
		}
		path, err := formatter.WriteReport(task, format, cmd.String("output"))
		if err != nil {
			return err
		}
		r.logger.Info("report written", "task", id, "path", path)
		return r.writePlain("✓ Report written to %s\n", path)
	})
}

func (r *Runner) importAction(ctx context.Context, cmd *cli.Command, fn func(*pipeline, string) error) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: task id", shared.ErrMissingArgument)
	}
	p, err := r.startImports(ctx)
	if err != nil {
		return err
	}
	defer p.Close()
	return fn(p, id)
}

func (r *Runner) printTaskSummary(p *pipeline, id string) error {
	task, err := p.imports.Get(id)
	if err != nil {
		return err
	}
	r.writePlainln("%s %s: %d/%d tracks found", r.palette.TaskStatus(task.Status), task.PlaylistName, task.FoundTracks, task.TotalTracks())
	return nil
}
