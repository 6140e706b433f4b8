package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ytplay/internal/server"
)

const (
	evictInterval   = time.Hour
	shutdownTimeout = 10 * time.Second
)

// Serve runs the HTTP API with the import processor in the background until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	maxBytes, err := r.config.Cache.MaxBytes()
	if err != nil {
		return err
	}

	p, err := r.openPipeline(ctx, pipelineOpts{autoResume: true})
	if err != nil {
		return err
	}
	defer p.Close()

	// =========================================================================
	// Cache housekeeping
	if n, err := p.downloads.SweepTemp(r.config.Cache.TempMaxAge()); err != nil {
		r.logger.Warn("startup temp sweep failed", "error", err)
	} else if n > 0 {
		r.logger.Info("startup temp sweep", "removed", n)
	}
	r.evict(ctx, p, maxBytes)

	// =========================================================================
	// Import processor
	if err := p.imports.Start(ctx); err != nil {
		return fmt.Errorf("failed to start import manager: %w", err)
	}

	// =========================================================================
	// API
	hub := server.NewHub(0)
	api := server.NewAPI(ctx, p.downloads, p.imports, hub, r.logger)
	go api.Forward(ctx)

	p.onRemoved(func(trackID string, playlists []string) {
		hub.Publish(server.Message{
			Event: "track_removed",
			Data:  map[string]any{"trackId": trackID, "playlists": playlists},
		})
	})

	router := server.NewRouter(r.logger)
	router.Mount("/", api.Routes())
	srv := server.New(ctx, r.config.Server.Addr(), router)

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Info("serving API", "addr", srv.Addr)
		serverErrors <- srv.ListenAndServe()
	}()

	ticker := time.NewTicker(evictInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)
		case <-ctx.Done():
			r.logger.Info("start shutdown")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				r.logger.Error("failed to gracefully shutdown the server", "err", err)
				if err := srv.Close(); err != nil {
					return fmt.Errorf("could not stop server gracefully: %w", err)
				}
			}
			return nil
		case <-ticker.C:
			r.evict(ctx, p, maxBytes)
		}
	}
}

func (r *Runner) evict(ctx context.Context, p *pipeline, maxBytes uint64) {
	if maxBytes == 0 {
		return
	}
	res, err := p.downloads.EvictToSize(ctx, maxBytes)
	if err != nil {
		r.logger.Warn("cache eviction failed", "error", err)
		return
	}
	if res.Removed > 0 {
		r.logger.Info("cache evicted", "removed", res.Removed, "freed", humanize.Bytes(uint64(res.Freed)))
	}
}
