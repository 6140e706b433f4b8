package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/ytplay/internal/cache"
	"github.com/desertthunder/ytplay/internal/download"
	"github.com/desertthunder/ytplay/internal/library"
	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/notifier"
	"github.com/desertthunder/ytplay/internal/repositories"
	"github.com/desertthunder/ytplay/internal/services"
	"github.com/desertthunder/ytplay/internal/shared"
	"github.com/desertthunder/ytplay/internal/tasks"
)

// manualResume keeps one-shot commands from auto-resuming interrupted imports while they run.
const manualResume = 24 * time.Hour

// pipeline is the set of components a command works with. Close releases all of them.
type pipeline struct {
	db        *sql.DB
	index     *cache.Index
	library   *library.Store
	searcher  *cache.CachedSearcher
	downloads *download.Manager
	imports   *tasks.Manager
	notifier  notifier.Notifier
	logger    *log.Logger

	mu      sync.Mutex
	removed []func(trackID string, playlists []string)
}

type pipelineOpts struct {
	// autoResume applies the configured resume delay to interrupted imports.
	autoResume bool
}

func (r *Runner) openPipeline(ctx context.Context, opts pipelineOpts) (*pipeline, error) {
	cfg := r.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	quality, err := models.ParseAudioQuality(cfg.Cache.Quality)
	if err != nil {
		return nil, fmt.Errorf("%w: cache.quality: %v", shared.ErrInvalidConfig, err)
	}

	if err := os.MkdirAll(cfg.Cache.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	p := &pipeline{
		index:    cache.NewIndex(cfg.Cache.Dir, cfg.Cache.Format),
		library:  library.NewStore(cfg.Library.Dir, r.logger),
		notifier: notifier.New(cfg.Notify, r.logger),
		logger:   r.logger,
	}

	var store tasks.Store
	var recorder download.Recorder
	switch cfg.Imports.Store {
	case "json":
		store = tasks.NewFileStore(cfg.Imports.JSONPath)
	default:
		db, err := shared.NewDatabase(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		shared.ConfigureDatabase(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
		if err := shared.RunMigrations(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		p.db = db
		store = repositories.NewImportTaskRepository(db)
		recorder = repositories.NewCachedTrackRepository(db)
	}

	provider, err := r.searchProvider()
	if err != nil {
		p.Close()
		return nil, err
	}
	p.searcher = cache.NewCachedSearcher(provider, cache.NewSearchCache(cfg.Search.CacheCapacity, cfg.Search.CacheTTL()))

	extractor := r.extractor
	if extractor == nil {
		extractor = services.NewYtDlp(cfg.Tools)
	}

	p.downloads, err = download.NewManager(download.Options{
		Index:        p.index,
		Extractor:    extractor,
		Playlists:    p.library,
		Recorder:     recorder,
		Workers:      cfg.Cache.Workers,
		MinDelay:     cfg.Cache.MinDelay(),
		FetchTimeout: cfg.Cache.FetchTimeout(),
		Quality:      quality,
		Logger:       r.logger,
		OnRemoved:    p.trackRemoved,
	})
	if err != nil {
		p.Close()
		return nil, err
	}

	resumeDelay := manualResume
	if opts.autoResume {
		resumeDelay = cfg.Imports.ResumeDelay()
	}

	p.imports, err = tasks.NewManager(tasks.Options{
		Searcher:        p.searcher,
		Store:           store,
		Playlists:       p.library,
		Downloader:      p.downloads,
		Notifier:        p.notifier,
		Logger:          r.logger,
		TrackDelay:      cfg.Imports.TrackDelay(),
		SearchTimeout:   cfg.Search.Timeout(),
		ResumeDelay:     resumeDelay,
		DownloadTimeout: cfg.Imports.DownloadTimeout(),
		Tolerance:       cfg.Imports.TaskToleranceMS,
		SearchLimit:     cfg.Search.Limit,
	})
	if err != nil {
		p.Close()
		return nil, err
	}

	return p, nil
}

// searchProvider returns the injected provider or builds the configured one.
func (r *Runner) searchProvider() (services.SearchProvider, error) {
	if r.search != nil {
		return r.search, nil
	}
	switch r.config.Search.Provider {
	case "ytdlp":
		return services.NewYtDlp(r.config.Tools), nil
	default:
		yt := services.NewYouTubeService(r.config.Credentials.YouTube.ProxyURL, r.httpClient)
		if path := r.config.Credentials.YouTube.HeadersPath; path != "" {
			if err := yt.Authenticate(path); err != nil {
				return nil, err
			}
		}
		return yt, nil
	}
}

// spotifySource returns the injected source or an authenticated Spotify service.
func (r *Runner) spotifySource(ctx context.Context) (services.SourceProvider, error) {
	if r.spotify != nil {
		return r.spotify, nil
	}
	creds := r.config.Credentials.Spotify
	svc, err := services.NewSpotifyService(creds.Map())
	if err != nil {
		return nil, err
	}
	if err := svc.Authenticate(ctx, creds.Map()); err != nil {
		return nil, fmt.Errorf("%w: run 'ytplay auth spotify' first", err)
	}
	return svc, nil
}

// onRemoved registers fn to run after an age-restricted track was dropped from playlists.
func (p *pipeline) onRemoved(fn func(trackID string, playlists []string)) {
	p.mu.Lock()
	p.removed = append(p.removed, fn)
	p.mu.Unlock()
}

func (p *pipeline) trackRemoved(trackID string, playlists []string) {
	p.logger.Warn("removed unavailable track", "track", trackID, "playlists", len(playlists))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	body := fmt.Sprintf("%s is age restricted and was removed from %d playlist(s)", trackID, len(playlists))
	if err := p.notifier.Notify(ctx, "Track unavailable", body); err != nil {
		p.logger.Warn("failed to send notification", "error", err)
	}

	p.mu.Lock()
	hooks := append(([]func(string, []string))(nil), p.removed...)
	p.mu.Unlock()
	for _, fn := range hooks {
		fn(trackID, playlists)
	}
}

// Close stops the import manager and download pool and closes the database.
func (p *pipeline) Close() {
	if p.imports != nil {
		p.imports.Close()
	}
	if p.downloads != nil {
		p.downloads.Close()
	}
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			p.logger.Warn("failed to close database", "error", err)
		}
	}
}
