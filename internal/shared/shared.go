// package shared defines helpers used across the pipeline: logging, ids, configuration, storage and text normalization.
package shared

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// NewLogger creates a new [log.Logger] instance with the specified [io.Writer], with timestamps and caller reporting enabled.
//
// The writer defaults to [os.Stderr]
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := log.Options{ReportTimestamp: true, ReportCaller: true}
	return log.NewWithOptions(w, opts)
}

// WithLogger creates a child [log.Logger] with the specified key-value pairs added to all log entries.
//
// A nil parent yields a logger that discards output so components can be built without one.
func WithLogger(l *log.Logger, kv ...any) *log.Logger {
	if l == nil {
		l = log.New(io.Discard)
	}
	return l.With(kv...)
}

// SetLogLevel parses level (debug, info, warn, error) and applies it to l.
// Unknown levels leave the logger untouched and are returned as an error.
func SetLogLevel(l *log.Logger, level string) error {
	if strings.TrimSpace(level) == "" {
		return nil
	}
	ll, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	l.SetLevel(ll)
	return nil
}

// GenerateID generates a time-ordered v7 [uuid.UUID] as a string, falling back to v4.
func GenerateID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// GenerateState returns a random URL-safe token for OAuth2 CSRF protection.
func GenerateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
