// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/desertthunder/ytplay/internal/download"
	"github.com/desertthunder/ytplay/internal/models"
)

// MockSearchProvider is a test double for [services.SearchProvider] keyed by exact query.
type MockSearchProvider struct {
	Results map[string][]models.SearchResult
	Err     error

	mu      sync.Mutex
	queries []string
}

func (m *MockSearchProvider) Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	m.mu.Lock()
	m.queries = append(m.queries, query)
	m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	results := m.Results[query]
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *MockSearchProvider) Name() string { return "mock" }

// Queries returns every query seen so far, in order.
func (m *MockSearchProvider) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}

// MockExtractor is a test double for [download.Extractor] that writes Content to the requested
// output file.
type MockExtractor struct {
	Content []byte
	Err     error

	mu    sync.Mutex
	calls []string
}

func (m *MockExtractor) Extract(ctx context.Context, req download.ExtractRequest) error {
	m.mu.Lock()
	m.calls = append(m.calls, req.TrackID)
	m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	content := m.Content
	if content == nil {
		content = []byte("audio")
	}
	return os.WriteFile(req.OutputStem+"."+req.Format, content, 0o644)
}

func (m *MockExtractor) Transcode(ctx context.Context, input, output, bitrate string) error {
	if m.Err != nil {
		return m.Err
	}
	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	return os.WriteFile(output, data, 0o644)
}

// Calls returns the track ids passed to Extract.
func (m *MockExtractor) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

// MustWriteFile creates path and its parent directories with content.
func MustWriteFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
