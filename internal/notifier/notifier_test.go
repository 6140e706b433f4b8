package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/ytplay/internal/shared"
	tu "github.com/desertthunder/ytplay/internal/testing"
)

type recordingNotifier struct {
	calls int
	err   error
}

func (r *recordingNotifier) Notify(context.Context, string, string) error {
	r.calls++
	return r.err
}

func TestDiscordNotifier(t *testing.T) {
	t.Run("posts content to the webhook", func(t *testing.T) {
		var got map[string]string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("expected POST, got %s", r.Method)
			}
			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("unexpected content type %s", ct)
			}
			json.NewDecoder(r.Body).Decode(&got)
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		n := &DiscordNotifier{WebhookURL: server.URL, Client: server.Client()}
		if err := n.Notify(context.Background(), "Import complete", "Road Trip: 2/3 tracks found"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := "**Import complete**\nRoad Trip: 2/3 tracks found"; got["content"] != want {
			t.Errorf("expected content %q, got %q", want, got["content"])
		}
	})

	t.Run("non-2xx status is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		err := (&DiscordNotifier{WebhookURL: server.URL}).Notify(context.Background(), "t", "b")
		if !errors.Is(err, shared.ErrAPIRequest) || !strings.Contains(err.Error(), "429") {
			t.Errorf("expected status error, got %v", err)
		}
	})

	t.Run("transport failure", func(t *testing.T) {
		client := &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("connection refused"))}
		n := &DiscordNotifier{WebhookURL: "http://127.0.0.1:1/hook", Client: client}
		err := n.Notify(context.Background(), "t", "b")
		if err == nil || !strings.Contains(err.Error(), "connection refused") {
			t.Errorf("expected transport error, got %v", err)
		}
	})

	t.Run("missing webhook", func(t *testing.T) {
		err := (&DiscordNotifier{}).Notify(context.Background(), "t", "b")
		if !errors.Is(err, shared.ErrMissingConfig) {
			t.Errorf("expected ErrMissingConfig, got %v", err)
		}
	})
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := &LogNotifier{Logger: log.New(&buf)}
	if err := n.Notify(context.Background(), "Import complete", "Road Trip: 1/1 tracks found"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Import complete") || !strings.Contains(out, "Road Trip") {
		t.Errorf("expected notice in log output, got %q", out)
	}

	if err := (&LogNotifier{}).Notify(context.Background(), "t", "b"); err != nil {
		t.Errorf("nil logger should be discarded, got %v", err)
	}
}

func TestMulti(t *testing.T) {
	ok := &recordingNotifier{}
	failing := &recordingNotifier{err: errors.New("boom")}
	err := Multi{failing, ok}.Notify(context.Background(), "t", "b")
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("expected joined error, got %v", err)
	}
	if ok.calls != 1 || failing.calls != 1 {
		t.Errorf("expected every notifier to be called, got %d and %d", ok.calls, failing.calls)
	}
}

func TestNew(t *testing.T) {
	if _, ok := New(shared.NotifyConfig{}, nil).(*LogNotifier); !ok {
		t.Error("expected a log notifier without webhook")
	}
	m, ok := New(shared.NotifyConfig{DiscordWebhookURL: "http://example.invalid"}, nil).(Multi)
	if !ok || len(m) != 2 {
		t.Errorf("expected log and discord notifiers, got %#v", m)
	}
}
