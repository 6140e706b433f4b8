package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytplay/internal/library"
	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/services"
	"github.com/desertthunder/ytplay/internal/shared"
	tu "github.com/desertthunder/ytplay/internal/testing"
)

type testEnv struct {
	dir       string
	config    *shared.Config
	out       *bytes.Buffer
	search    *tu.MockSearchProvider
	extractor *tu.MockExtractor
	runner    *Runner
}

type fakeSource struct {
	playlist *services.SourcePlaylist
}

func (f *fakeSource) SourcePlaylist(ctx context.Context, id string) (*services.SourcePlaylist, error) {
	if f.playlist == nil || f.playlist.ID != id {
		return nil, shared.ErrPlaylistNotFound
	}
	return f.playlist, nil
}

func (f *fakeSource) Name() string { return "fake" }

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	config := shared.DefaultConfig()
	config.Cache.Dir = filepath.Join(dir, "cache")
	config.Cache.MinDelayMS = 0
	config.Library.Dir = filepath.Join(dir, "playlists")
	config.Imports.Store = "json"
	config.Imports.JSONPath = filepath.Join(dir, "tasks.json")
	config.Imports.TrackDelayMS = 0

	env := &testEnv{
		dir:    dir,
		config: config,
		out:    &bytes.Buffer{},
		search: &tu.MockSearchProvider{Results: map[string][]models.SearchResult{
			"Song One Alpha": {
				{ID: "a1", Title: "Song One", ChannelName: "Alpha", DurationMs: 200_000, DurationFormatted: "3:20"},
				{ID: "a2", Title: "Song One (Live)", ChannelName: "Alpha", DurationMs: 400_000, DurationFormatted: "6:40"},
			},
			"Song Two Beta": {
				{ID: "b1", Title: "Song Two", ChannelName: "Beta", DurationMs: 500_000, DurationFormatted: "8:20"},
			},
		}},
		extractor: &tu.MockExtractor{},
	}
	env.runner = NewRunner(RunnerOpts{
		Config:    config,
		Search:    env.search,
		Extractor: env.extractor,
		Spotify: &fakeSource{playlist: &services.SourcePlaylist{
			ID:     "pl1",
			Name:   "From Source",
			Tracks: []models.SourceTrack{{Name: "Song One", Artist: "Alpha", DurationMs: 200_000}},
		}},
		Output: env.out,
	})
	return env
}

func (e *testEnv) run(t *testing.T, args ...string) error {
	t.Helper()
	e.out.Reset()
	app := &cli.Command{Name: "ytplay", Commands: e.runner.register()}
	return app.Run(context.Background(), append([]string{"ytplay"}, args...))
}

func (e *testEnv) writeTracks(t *testing.T) string {
	t.Helper()
	path := filepath.Join(e.dir, "tracks.json")
	tu.MustWriteFile(t, path, []byte(`[
		{"name": "Song One", "artist": "Alpha", "durationMs": 200000},
		{"name": "Song Two", "artist": "Beta feat. Gamma", "durationMs": 180000}
	]`))
	return path
}

func (e *testEnv) listTasks(t *testing.T) []models.ImportTask {
	t.Helper()
	if err := e.run(t, "import", "list", "--all", "--json"); err != nil {
		t.Fatalf("import list failed: %v", err)
	}
	var list []models.ImportTask
	if err := json.Unmarshal(e.out.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode task list %q: %v", e.out.String(), err)
	}
	return list
}

func TestReadTracksFile(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		tu.MustWriteFile(t, path, []byte(content))
		return path
	}

	tests := []struct {
		name    string
		path    string
		want    int
		wantErr error
	}{
		{name: "valid", path: write("ok.json", `[{"name":"a","artist":"b","durationMs":1000}]`), want: 1},
		{name: "empty array", path: write("empty.json", `[]`), wantErr: shared.ErrInvalidArgument},
		{name: "invalid json", path: write("bad.json", `{`), wantErr: shared.ErrInvalidArgument},
		{name: "missing file", path: filepath.Join(dir, "missing.json")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracks, err := readTracksFile(tt.path)
			if tt.want == 0 {
				if err == nil {
					t.Fatal("expected error")
				}
				if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(tracks) != tt.want {
				t.Errorf("expected %d tracks, got %d", tt.want, len(tracks))
			}
		})
	}
}

func TestSetupConfigCommand(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(env.dir, "nested", "config.toml")

	if err := env.run(t, "setup", "config", "--config", path); err != nil {
		t.Fatalf("setup config failed: %v", err)
	}
	tu.AssertFileExists(t, path)

	config, err := shared.LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load written config: %v", err)
	}
	if config.Cache.Workers != 5 {
		t.Errorf("expected 5 workers, got %d", config.Cache.Workers)
	}
}

func TestSearchCommand(t *testing.T) {
	t.Run("lists results", func(t *testing.T) {
		env := newTestEnv(t)
		if err := env.run(t, "search", "Song One Alpha"); err != nil {
			t.Fatalf("search failed: %v", err)
		}
		out := env.out.String()
		if !strings.Contains(out, "Found 2 results") {
			t.Errorf("expected result count, got %q", out)
		}
		if !strings.Contains(out, "ID: a2") {
			t.Errorf("expected second result, got %q", out)
		}
	})

	t.Run("duration picks closest within tolerance", func(t *testing.T) {
		env := newTestEnv(t)
		if err := env.run(t, "search", "--duration", "3:25", "Song One Alpha"); err != nil {
			t.Fatalf("search failed: %v", err)
		}
		out := env.out.String()
		if !strings.Contains(out, "(a1)") || strings.Contains(out, "a2") {
			t.Errorf("expected only a1, got %q", out)
		}
	})

	t.Run("duration outside tolerance", func(t *testing.T) {
		env := newTestEnv(t)
		if err := env.run(t, "search", "--duration", "5:00", "Song One Alpha"); err != nil {
			t.Fatalf("search failed: %v", err)
		}
		if !strings.Contains(env.out.String(), "no result within 1:00") {
			t.Errorf("expected no match, got %q", env.out.String())
		}
	})

	t.Run("invalid duration", func(t *testing.T) {
		env := newTestEnv(t)
		err := env.run(t, "search", "--duration", "abc", "Song One Alpha")
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("missing query", func(t *testing.T) {
		env := newTestEnv(t)
		err := env.run(t, "search", "  ")
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})
}

func TestTrackCommands(t *testing.T) {
	env := newTestEnv(t)

	if err := env.run(t, "track", "cached", "a1"); err != nil {
		t.Fatalf("track cached failed: %v", err)
	}
	if !strings.Contains(env.out.String(), "not cached") {
		t.Errorf("expected not cached, got %q", env.out.String())
	}

	if err := env.run(t, "track", "path", "a1"); err != nil {
		t.Fatalf("track path failed: %v", err)
	}
	want := filepath.Join(env.config.Cache.Dir, "a1.mp3")
	if got := strings.TrimSpace(env.out.String()); got != want {
		t.Errorf("expected path %q, got %q", want, got)
	}
	tu.AssertFileExists(t, want)

	if err := env.run(t, "track", "path", "a1"); err != nil {
		t.Fatalf("second track path failed: %v", err)
	}
	if calls := env.extractor.Calls(); len(calls) != 1 {
		t.Errorf("expected cached file to be reused, got %d extractions", len(calls))
	}

	if err := env.run(t, "track", "cached", "a1"); err != nil {
		t.Fatalf("track cached failed: %v", err)
	}
	if out := env.out.String(); strings.Contains(out, "not cached") || !strings.Contains(out, "cached") {
		t.Errorf("expected cached, got %q", out)
	}

	if err := env.run(t, "track", "path", "--quality", "ultra", "a2"); !errors.Is(err, shared.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for bad quality, got %v", err)
	}
}

func TestCacheCommands(t *testing.T) {
	env := newTestEnv(t)
	if err := env.run(t, "track", "path", "a1"); err != nil {
		t.Fatalf("track path failed: %v", err)
	}

	if err := env.run(t, "cache", "stats", "--json"); err != nil {
		t.Fatalf("cache stats failed: %v", err)
	}
	var stats struct {
		Files   int    `json:"files"`
		Bytes   int64  `json:"bytes"`
		Quality string `json:"quality"`
	}
	if err := json.Unmarshal(env.out.Bytes(), &stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if stats.Files != 1 || stats.Bytes != int64(len("audio")) || stats.Quality != "medium" {
		t.Errorf("unexpected stats %+v", stats)
	}

	if err := env.run(t, "cache", "compress", "--quality", "low"); err != nil {
		t.Fatalf("cache compress failed: %v", err)
	}
	if !strings.Contains(env.out.String(), "[1/1] a1") {
		t.Errorf("expected progress line, got %q", env.out.String())
	}

	if err := env.run(t, "cache", "sweep"); err != nil {
		t.Fatalf("cache sweep failed: %v", err)
	}
	if !strings.Contains(env.out.String(), "Removed 0 stale temp file(s)") {
		t.Errorf("unexpected sweep output %q", env.out.String())
	}

	if err := env.run(t, "cache", "prune", "--max-size", "1B"); err != nil {
		t.Fatalf("cache prune failed: %v", err)
	}
	if !strings.Contains(env.out.String(), "Removed 1 file(s)") {
		t.Errorf("unexpected prune output %q", env.out.String())
	}

	if err := env.run(t, "cache", "prune", "--max-size", "lots"); !errors.Is(err, shared.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestDownloadBatchCommand(t *testing.T) {
	env := newTestEnv(t)
	file := env.writeTracks(t)

	if err := env.run(t, "download", "batch", "--file", file, "--playlist", "Mix"); err != nil {
		t.Fatalf("download batch failed: %v", err)
	}
	if !strings.Contains(env.out.String(), "Batch: 1 matched, 1 downloaded of 2") {
		t.Errorf("unexpected batch output %q", env.out.String())
	}

	pl, err := library.NewStore(env.config.Library.Dir, nil).Load("Mix")
	if err != nil {
		t.Fatalf("expected playlist to be saved: %v", err)
	}
	if len(pl.Tracks) != 1 || pl.Tracks[0].ID != "a1" {
		t.Errorf("unexpected playlist tracks %+v", pl.Tracks)
	}
}

func TestImportCommands(t *testing.T) {
	t.Run("create and wait", func(t *testing.T) {
		env := newTestEnv(t)
		file := env.writeTracks(t)

		if err := env.run(t, "import", "create", "--name", "Road Trip", "--file", file, "--wait"); err != nil {
			t.Fatalf("import create failed: %v", err)
		}
		if !strings.Contains(env.out.String(), "Road Trip: 1/2 tracks found") {
			t.Errorf("unexpected summary %q", env.out.String())
		}

		queries := env.search.Queries()
		if len(queries) != 2 || queries[1] != "Song Two Beta" {
			t.Errorf("expected featured artist to be dropped from the query, got %v", queries)
		}

		pl, err := library.NewStore(env.config.Library.Dir, nil).Load("Road Trip")
		if err != nil {
			t.Fatalf("expected playlist to be saved: %v", err)
		}
		if len(pl.Tracks) != 1 || pl.Tracks[0].ID != "a1" {
			t.Errorf("unexpected playlist tracks %+v", pl.Tracks)
		}

		list := env.listTasks(t)
		if len(list) != 1 || list[0].Status != models.TaskCompleted {
			t.Fatalf("expected one completed task, got %+v", list)
		}
		id := list[0].ID

		if err := env.run(t, "import", "list", "--json"); err != nil {
			t.Fatalf("import list failed: %v", err)
		}
		if strings.TrimSpace(env.out.String()) != "[]" {
			t.Errorf("expected completed task to be inactive, got %q", env.out.String())
		}

		report := filepath.Join(env.dir, "report.md")
		if err := env.run(t, "import", "export", "--format", "md", "--output", report, id); err != nil {
			t.Fatalf("import export failed: %v", err)
		}
		if content := tu.MustReadFile(t, report); !strings.Contains(content, "# Road Trip") {
			t.Errorf("unexpected report %q", content)
		}

		if err := env.run(t, "import", "remove", id); err != nil {
			t.Fatalf("import remove failed: %v", err)
		}
		if list := env.listTasks(t); len(list) != 0 {
			t.Errorf("expected no tasks after remove, got %+v", list)
		}
	})

	t.Run("create without wait is resumed by run", func(t *testing.T) {
		env := newTestEnv(t)
		file := env.writeTracks(t)

		if err := env.run(t, "import", "create", "--name", "Later", "--file", file); err != nil {
			t.Fatalf("import create failed: %v", err)
		}
		if !strings.Contains(env.out.String(), "ytplay import run") {
			t.Errorf("expected run hint, got %q", env.out.String())
		}
		if len(env.search.Queries()) != 0 {
			t.Errorf("expected no searches before run, got %v", env.search.Queries())
		}

		list := env.listTasks(t)
		if len(list) != 1 || list[0].Status != models.TaskPaused {
			t.Fatalf("expected one paused task, got %+v", list)
		}

		if err := env.run(t, "import", "run"); err != nil {
			t.Fatalf("import run failed: %v", err)
		}
		if !strings.Contains(env.out.String(), "Processed 1 import(s)") {
			t.Errorf("expected the listed task to stay interrupted and resume, got %q", env.out.String())
		}

		list = env.listTasks(t)
		if len(list) != 1 || list[0].Status != models.TaskCompleted || list[0].FoundTracks != 1 {
			t.Errorf("expected completed task with one match, got %+v", list)
		}
	})

	t.Run("paused interrupted tasks need run --all", func(t *testing.T) {
		env := newTestEnv(t)
		file := env.writeTracks(t)

		if err := env.run(t, "import", "create", "--name", "Later", "--file", file); err != nil {
			t.Fatalf("import create failed: %v", err)
		}
		list := env.listTasks(t)
		if len(list) != 1 {
			t.Fatalf("expected one task, got %+v", list)
		}

		if err := env.run(t, "import", "pause", list[0].ID); err != nil {
			t.Fatalf("import pause failed: %v", err)
		}
		if err := env.run(t, "import", "pause", list[0].ID); err != nil {
			t.Fatalf("import pause failed: %v", err)
		}
		if !strings.Contains(env.out.String(), "already paused") {
			t.Errorf("unexpected pause output %q", env.out.String())
		}

		if err := env.run(t, "import", "run"); err != nil {
			t.Fatalf("import run failed: %v", err)
		}
		if !strings.Contains(env.out.String(), "Nothing to resume") {
			t.Errorf("unexpected run output %q", env.out.String())
		}

		if err := env.run(t, "import", "run", "--all"); err != nil {
			t.Fatalf("import run failed: %v", err)
		}
		if !strings.Contains(env.out.String(), "Processed 1 import(s)") {
			t.Errorf("unexpected run output %q", env.out.String())
		}

		list = env.listTasks(t)
		if len(list) != 1 || list[0].Status != models.TaskCompleted || list[0].FoundTracks != 1 {
			t.Errorf("expected completed task with one match, got %+v", list)
		}
	})

	t.Run("run resumes tasks interrupted by the previous process", func(t *testing.T) {
		env := newTestEnv(t)
		file := env.writeTracks(t)

		if err := env.run(t, "import", "create", "--name", "Next", "--file", file); err != nil {
			t.Fatalf("import create failed: %v", err)
		}
		if err := env.run(t, "import", "run"); err != nil {
			t.Fatalf("import run failed: %v", err)
		}
		if !strings.Contains(env.out.String(), "Processed 1 import(s)") {
			t.Errorf("unexpected run output %q", env.out.String())
		}
	})

	t.Run("cancel with partial save", func(t *testing.T) {
		env := newTestEnv(t)
		file := env.writeTracks(t)

		if err := env.run(t, "import", "create", "--name", "Partial", "--file", file); err != nil {
			t.Fatalf("import create failed: %v", err)
		}
		id := env.listTasks(t)[0].ID

		if err := env.run(t, "import", "cancel", "--save-partial", id); err != nil {
			t.Fatalf("import cancel failed: %v", err)
		}
		if list := env.listTasks(t); len(list) != 0 {
			t.Errorf("expected cancelled task to be dropped, got %+v", list)
		}
	})

	t.Run("create from source playlist", func(t *testing.T) {
		env := newTestEnv(t)

		if err := env.run(t, "import", "create", "--spotify", "pl1", "--wait"); err != nil {
			t.Fatalf("import create failed: %v", err)
		}
		if !strings.Contains(env.out.String(), "From Source: 1/1 tracks found") {
			t.Errorf("unexpected summary %q", env.out.String())
		}
	})

	t.Run("argument errors", func(t *testing.T) {
		env := newTestEnv(t)

		if err := env.run(t, "import", "create"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
		if err := env.run(t, "import", "create", "--file", "x.json", "--spotify", "pl1"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		if err := env.run(t, "import", "show", "missing"); err == nil {
			t.Error("expected error for unknown task")
		}
	})
}

func TestServeCommand(t *testing.T) {
	t.Run("invalid cache size is reported before startup", func(t *testing.T) {
		env := newTestEnv(t)
		env.config.Cache.MaxSize = "lots"

		err := env.run(t, "serve")
		if !errors.Is(err, shared.ErrInvalidConfig) {
			t.Fatalf("expected ErrInvalidConfig, got %v", err)
		}
		if _, statErr := os.Stat(env.config.Imports.JSONPath); !os.IsNotExist(statErr) {
			t.Errorf("expected no task store to be touched, got %v", statErr)
		}
	})
}
