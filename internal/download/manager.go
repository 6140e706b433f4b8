package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/desertthunder/ytplay/internal/cache"
	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/shared"
)

const (
	DefaultWorkers      = 5
	DefaultMinDelay     = 200 * time.Millisecond
	DefaultFetchTimeout = 2 * time.Minute
)

// fallbackExts are containers probed when the extractor did not produce the target format.
var fallbackExts = []string{".m4a", ".webm", ".opus", ".ogg", ".mp4", ".flac", ".wav"}

// ExtractRequest asks the extractor to write the audio of TrackID to OutputStem + "." + Format.
type ExtractRequest struct {
	TrackID    string
	OutputStem string
	Format     string
	Bitrate    string
}

// Extractor is the audio extraction and transcode tool.
type Extractor interface {
	Extract(ctx context.Context, req ExtractRequest) error
	Transcode(ctx context.Context, input, output, bitrate string) error
}

// Prober reports the duration of a local audio file. Extractors that implement it get their
// output checked for a positive duration.
type Prober interface {
	ProbeDuration(ctx context.Context, path string) (time.Duration, error)
}

// PlaylistEditor removes a track from every persisted playlist.
type PlaylistEditor interface {
	RemoveTrack(trackID string) ([]string, error)
}

// Recorder keeps metadata about cached files.
type Recorder interface {
	RecordCached(ctx context.Context, track models.CachedTrack) error
	DeleteCached(ctx context.Context, trackID string) error
}

// Options configures a [Manager]. Index and Extractor are required.
type Options struct {
	Index        *cache.Index
	Extractor    Extractor
	Playlists    PlaylistEditor
	Recorder     Recorder
	Workers      int
	MinDelay     time.Duration
	FetchTimeout time.Duration
	Quality      models.AudioQuality
	Logger       *log.Logger

	// OnRemoved is called after an age-restricted track was removed from playlists.
	OnRemoved func(trackID string, playlists []string)
}

// Manager owns the cache directory and every fetch into it.
type Manager struct {
	index     *cache.Index
	extractor Extractor
	playlists PlaylistEditor
	recorder  Recorder
	onRemoved func(string, []string)
	logger    *log.Logger

	workers      int
	fetchTimeout time.Duration
	minDelay     time.Duration
	sem          *semaphore.Weighted
	limiter      *rate.Limiter
	group        singleflight.Group

	gateMu    sync.Mutex
	lastStart time.Time

	mu      sync.RWMutex
	quality models.AudioQuality

	fetchMu  sync.Mutex
	inFlight map[string]int

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a manager from opts, applying defaults for zero values.
func NewManager(opts Options) (*Manager, error) {
	if opts.Index == nil {
		return nil, fmt.Errorf("%w: cache index is required", shared.ErrInvalidInput)
	}
	if opts.Extractor == nil {
		return nil, fmt.Errorf("%w: extractor is required", shared.ErrInvalidInput)
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.MinDelay <= 0 {
		opts.MinDelay = DefaultMinDelay
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.Quality == "" {
		opts.Quality = models.QualityMedium
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		index:        opts.Index,
		extractor:    opts.Extractor,
		playlists:    opts.Playlists,
		recorder:     opts.Recorder,
		onRemoved:    opts.OnRemoved,
		logger:       shared.WithLogger(opts.Logger, "component", "download"),
		workers:      opts.Workers,
		fetchTimeout: opts.FetchTimeout,
		minDelay:     opts.MinDelay,
		sem:          semaphore.NewWeighted(int64(opts.Workers)),
		limiter:      rate.NewLimiter(rate.Every(opts.MinDelay), 1),
		quality:      opts.Quality,
		inFlight:     make(map[string]int),
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// Close aborts queued and running fetches.
func (m *Manager) Close() {
	m.cancel()
}

// SetAudioQuality changes the bitrate of future downloads. Existing files are untouched.
func (m *Manager) SetAudioQuality(q models.AudioQuality) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quality = q
}

// Quality returns the current target quality.
func (m *Manager) Quality() models.AudioQuality {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.quality
}

// IsCached reports whether trackID has a valid cache entry.
func (m *Manager) IsCached(trackID string) bool {
	_, ok := m.index.Lookup(trackID)
	return ok
}

// Pending returns the number of distinct track ids currently being fetched.
func (m *Manager) Pending() int {
	m.fetchMu.Lock()
	defer m.fetchMu.Unlock()
	return len(m.inFlight)
}

// QueueDownload returns a playable path for trackID, fetching it if needed.
//
// Concurrent calls for the same id share one fetch. An empty path with a nil error means the track
// is unavailable (age restricted) or, for preload requests, that the fetch failed. The fetch itself
// outlives ctx; ctx only bounds how long this caller waits.
func (m *Manager) QueueDownload(ctx context.Context, trackID, title string, preload bool) (string, error) {
	if trackID == "" {
		if preload {
			return "", nil
		}
		return "", fmt.Errorf("%w: empty track id", shared.ErrInvalidInput)
	}
	if err := shared.ValidateTrackID(trackID); err != nil {
		return "", err
	}

	if path, ok := m.index.Lookup(trackID); ok {
		return path, nil
	}

	m.attach(trackID)
	defer m.detach(trackID)

	ch := m.group.DoChan(trackID, func() (any, error) {
		return m.fetch(m.ctx, trackID, title)
	})

	select {
	case <-ctx.Done():
		if preload {
			return "", nil
		}
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			if preload {
				m.logger.Warn("preload failed", "track", trackID, "err", res.Err)
				return "", nil
			}
			m.logger.Error("download failed", "track", trackID, "title", title, "err", res.Err)
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (m *Manager) attach(trackID string) {
	m.fetchMu.Lock()
	m.inFlight[trackID]++
	m.fetchMu.Unlock()
}

func (m *Manager) detach(trackID string) {
	m.fetchMu.Lock()
	if m.inFlight[trackID]--; m.inFlight[trackID] <= 0 {
		delete(m.inFlight, trackID)
	}
	m.fetchMu.Unlock()
}

// fetch runs one physical fetch. It is only ever entered once per in-flight track id.
func (m *Manager) fetch(ctx context.Context, trackID, title string) (string, error) {
	if path, ok := m.index.Lookup(trackID); ok {
		return path, nil
	}

	if err := m.sem.Acquire(ctx, 1); err != nil {
		return "", &DownloadError{TrackID: trackID, Kind: ErrUpstreamFailure, Err: err}
	}
	defer m.sem.Release(1)

	if err := m.limiter.Wait(ctx); err != nil {
		return "", &DownloadError{TrackID: trackID, Kind: ErrUpstreamFailure, Err: err}
	}

	fctx, cancel := context.WithTimeout(ctx, m.fetchTimeout)
	defer cancel()

	m.logger.Debug("fetching", "track", trackID, "title", title)
	path, err := m.download(fctx, trackID, title)
	if err != nil {
		m.cleanupPartial(trackID)
		if errors.Is(err, ErrAgeRestricted) {
			m.removeEverywhere(trackID)
			return "", nil
		}
		return "", err
	}
	return path, nil
}

func (m *Manager) download(ctx context.Context, trackID, title string) (string, error) {
	if err := os.MkdirAll(m.index.Dir(), 0o755); err != nil {
		return "", &DownloadError{TrackID: trackID, Kind: ErrUpstreamFailure, Err: err}
	}

	bitrate := m.Quality().Bitrate()
	partial := m.index.PartialPath(trackID)
	req := ExtractRequest{
		TrackID:    trackID,
		OutputStem: m.index.PartialStem(trackID),
		Format:     strings.TrimPrefix(m.index.Ext(), "."),
		Bitrate:    bitrate,
	}

	if err := m.awaitStart(ctx); err != nil {
		return "", &DownloadError{TrackID: trackID, Kind: ErrUpstreamFailure, Err: err}
	}
	if err := m.extractor.Extract(ctx, req); err != nil {
		return "", classify(trackID, err)
	}

	if !exists(partial) {
		intermediate := findIntermediate(req.OutputStem)
		if intermediate == "" {
			return "", &DownloadError{TrackID: trackID, Kind: ErrValidationFailure, Err: errors.New("extractor produced no output")}
		}
		err := m.extractor.Transcode(ctx, intermediate, partial, bitrate)
		os.Remove(intermediate)
		if err != nil {
			return "", &DownloadError{TrackID: trackID, Kind: ErrTranscodeFailure, Err: err}
		}
	}

	size, err := m.validate(ctx, partial)
	if err != nil {
		return "", &DownloadError{TrackID: trackID, Kind: ErrValidationFailure, Err: err}
	}

	final := m.index.Path(trackID)
	if err := os.Rename(partial, final); err != nil {
		return "", &DownloadError{TrackID: trackID, Kind: ErrValidationFailure, Err: err}
	}

	if m.recorder != nil {
		rec := models.CachedTrack{TrackID: trackID, Title: title, Path: final, SizeBytes: size, Bitrate: bitrate, FetchedAt: time.Now()}
		if err := m.recorder.RecordCached(ctx, rec); err != nil {
			m.logger.Warn("failed to record cached track", "track", trackID, "err", err)
		}
	}
	return final, nil
}

// awaitStart holds the caller until minDelay has passed since the previous extractor start. The
// limiter in fetch paces admissions; this gate makes the gap between actual starts exact.
func (m *Manager) awaitStart(ctx context.Context) error {
	m.gateMu.Lock()
	defer m.gateMu.Unlock()

	if wait := time.Until(m.lastStart.Add(m.minDelay)); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.lastStart = time.Now()
	return nil
}

// validate checks that path is a non-empty file and, when the extractor can probe, that it has a duration.
func (m *Manager) validate(ctx context.Context, path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if info.Size() == 0 {
		return 0, errors.New("output file is empty")
	}
	if p, ok := m.extractor.(Prober); ok {
		d, err := p.ProbeDuration(ctx, path)
		if err != nil {
			return 0, fmt.Errorf("probe failed: %w", err)
		}
		if d <= 0 {
			return 0, errors.New("output has no duration")
		}
	}
	return info.Size(), nil
}

func (m *Manager) removeEverywhere(trackID string) {
	m.logger.Warn("track is age restricted, removing from playlists", "track", trackID)
	if m.recorder != nil {
		if err := m.recorder.DeleteCached(context.Background(), trackID); err != nil {
			m.logger.Warn("failed to forget cached track", "track", trackID, "err", err)
		}
	}
	if m.playlists == nil {
		return
	}
	changed, err := m.playlists.RemoveTrack(trackID)
	if err != nil {
		m.logger.Error("failed to remove track from playlists", "track", trackID, "err", err)
	}
	if m.onRemoved != nil {
		m.onRemoved(trackID, changed)
	}
}

func (m *Manager) cleanupPartial(trackID string) {
	prefix := filepath.Base(m.index.PartialStem(trackID))
	entries, err := os.ReadDir(m.index.Dir())
	if err != nil {
		return
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) {
			os.Remove(filepath.Join(m.index.Dir(), e.Name()))
		}
	}
}

func findIntermediate(stem string) string {
	for _, ext := range fallbackExts {
		if p := stem + ext; exists(p) {
			return p
		}
	}
	return ""
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
