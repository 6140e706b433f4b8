package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"

	"github.com/desertthunder/ytplay/internal/server"
	"github.com/desertthunder/ytplay/internal/services"
	"github.com/desertthunder/ytplay/internal/shared"
)

const oauthTimeout = 2 * time.Minute

// AuthSpotify performs OAuth2 authentication flow for Spotify.
//
// Starts a local HTTP server, opens browser for user authorization, and exchanges auth code for tokens.
func (r *Runner) AuthSpotify(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	if configPath != "" {
		r.configPath = configPath
		if _, err := os.Stat(configPath); err == nil {
			config, err := shared.LoadConfig(configPath)
			if err != nil {
				r.logger.Warnf("failed to load config, using current %v", err)
			} else {
				r.config = config
			}
		}
	}

	creds := r.config.Credentials.Spotify
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return fmt.Errorf("%w: Spotify client_id and client_secret must be set in %s", shared.ErrInvalidArgument, r.configPath)
	}

	spotifyService, err := services.NewSpotifyService(creds.Map())
	if err != nil {
		return fmt.Errorf("failed to create Spotify service: %w", err)
	}

	token, err := r.doOAuth(ctx, spotifyService, "authorization")
	if err != nil {
		return err
	}

	if err := r.saveTokens(token); err != nil {
		return err
	}

	r.writePlainln("✓ Authorization successful")
	r.writePlain("✓ Tokens saved to %s\n\n", r.configPath)
	r.writePlain("You can now use: ytplay import create --spotify <playlist id>\n")

	return nil
}

// saveTokens stores token in the config and writes it to the config path when one is set.
func (r *Runner) saveTokens(token *oauth2.Token) error {
	if r.config == nil {
		return errors.New("config is nil")
	}
	if token == nil {
		return fmt.Errorf("failed to update spotify configuration: %w", errors.New("token cannot be nil"))
	}

	r.config.Credentials.Spotify.SetTokens(token.AccessToken, token.RefreshToken)
	if r.configPath == "" {
		return nil
	}
	if err := shared.SaveConfig(r.configPath, r.config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

type oauthService interface {
	server.Exchanger
	AuthURL(state string) string
}

// doOAuth executes the OAuth2 authorization flow with a local HTTP server
func (r *Runner) doOAuth(ctx context.Context, oauthSrv oauthService, prefix string) (*oauth2.Token, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}

	authURL := oauthSrv.AuthURL(state)
	oauthHandler := server.NewOAuthHandler(oauthSrv, state)
	router := server.NewRouter(r.logger)
	server.Register(router, oauthHandler)

	serverAddr := r.config.Server.Addr()
	httpServer := server.New(ctx, serverAddr, router)

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting OAuth server for %s at %v", prefix, serverAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	time.Sleep(100 * time.Millisecond)

	r.writePlain("→ Opening browser for Spotify %s...\n", prefix)
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (2 minute timeout)...\n")

	timeout := time.NewTimer(oauthTimeout)
	defer timeout.Stop()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("error shutting down server", "error", err)
		}
	}()

	var result server.OAuthResult

	select {
	case result = <-oauthHandler.Result():
	case err := <-serverErrors:
		return nil, fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout.C:
		return nil, fmt.Errorf("%w: authorization timed out after 2 minutes", shared.ErrTimeout)
	}

	if result.Error() != nil {
		return nil, fmt.Errorf("authorization failed: %w", result.Error())
	}

	if result.Token == nil {
		return nil, fmt.Errorf("no token received")
	}

	return result.Token, nil
}
