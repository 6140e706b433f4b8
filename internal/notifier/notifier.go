// Package notifier delivers fire-and-forget completion notices.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/ytplay/internal/shared"
)

// Notifier shows a notice with a title and body.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// LogNotifier writes notices to a logger.
type LogNotifier struct {
	Logger *log.Logger
}

func (n *LogNotifier) Notify(_ context.Context, title, body string) error {
	shared.WithLogger(n.Logger).Info(title, "message", body)
	return nil
}

// DiscordNotifier posts notices to a Discord webhook.
type DiscordNotifier struct {
	WebhookURL string
	Client     *http.Client
}

func (d *DiscordNotifier) Notify(ctx context.Context, title, body string) error {
	if d.WebhookURL == "" {
		return fmt.Errorf("%w: webhook URL is not set", shared.ErrMissingConfig)
	}

	payload, err := json.Marshal(map[string]string{"content": fmt.Sprintf("**%s**\n%s", title, body)})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: webhook failed with status %d", shared.ErrAPIRequest, resp.StatusCode)
	}
	return nil
}

// Multi fans a notice out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, title, body string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, title, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// New returns a log notifier, fanned out to Discord when a webhook is configured.
func New(cfg shared.NotifyConfig, logger *log.Logger) Notifier {
	logNotifier := &LogNotifier{Logger: shared.WithLogger(logger, "component", "notifier")}
	if cfg.DiscordWebhookURL == "" {
		return logNotifier
	}
	return Multi{logNotifier, &DiscordNotifier{WebhookURL: cfg.DiscordWebhookURL}}
}
