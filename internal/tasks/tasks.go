package tasks

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/ytplay/internal/match"
	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/shared"
)

const (
	DefaultTrackDelay      = time.Second
	DefaultSearchTimeout   = 15 * time.Second
	DefaultResumeDelay     = 5 * time.Second
	DefaultDownloadTimeout = 2 * time.Minute
	DefaultSearchLimit     = 10
	DefaultPartialSuffix   = " (partial)"
)

var (
	ErrTaskNotFound      = errors.New("import task not found")
	ErrInvalidTransition = errors.New("invalid task status transition")
	ErrAlreadyStarted    = errors.New("task manager already started")
)

// Searcher resolves a text query to candidates in relevance order.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error)
}

// Downloader materializes a track into the shared cache.
type Downloader interface {
	QueueDownload(ctx context.Context, trackID, title string, preload bool) (string, error)
}

// PlaylistSaver writes finished imports.
type PlaylistSaver interface {
	Save(name string, tracks []models.SearchResult) error
	TrackDir(name string) (string, error)
}

// Notifier shows a completion notice.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// Options configures a [Manager]. Searcher and Store are required.
//
// A zero TrackDelay processes tracks back to back and a zero ResumeDelay resumes interrupted
// tasks as soon as the manager starts.
type Options struct {
	Searcher   Searcher
	Store      Store
	Playlists  PlaylistSaver
	Downloader Downloader
	Notifier   Notifier
	Logger     *log.Logger

	TrackDelay      time.Duration
	SearchTimeout   time.Duration
	ResumeDelay     time.Duration
	DownloadTimeout time.Duration
	Tolerance       int64
	SearchLimit     int
	PartialSuffix   string

	Now   func() time.Time
	NewID func() string
}

// Manager owns the import task list and its sequential processor.
type Manager struct {
	opts   Options
	logger *log.Logger

	mu     sync.Mutex
	tasks  map[string]*models.ImportTask
	order  []string
	queue  []string
	queued map[string]bool
	busy   bool
	idle   chan struct{} // closed while the queue is empty and nothing is processing
	subs   map[int]chan Event
	subID  int

	persistMu sync.Mutex

	wake    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	loaded  bool
	started bool
	resume  *time.Timer
}

// NewManager creates a manager. Call [Manager.Start] to load persisted tasks and begin processing.
func NewManager(opts Options) (*Manager, error) {
	if opts.Searcher == nil {
		return nil, fmt.Errorf("%w: searcher is required", shared.ErrInvalidInput)
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("%w: task store is required", shared.ErrInvalidInput)
	}
	if opts.TrackDelay < 0 {
		opts.TrackDelay = 0
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = DefaultSearchTimeout
	}
	if opts.ResumeDelay < 0 {
		opts.ResumeDelay = DefaultResumeDelay
	}
	if opts.DownloadTimeout <= 0 {
		opts.DownloadTimeout = DefaultDownloadTimeout
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = match.BackgroundTaskTolerance
	}
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = DefaultSearchLimit
	}
	if opts.PartialSuffix == "" {
		opts.PartialSuffix = DefaultPartialSuffix
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = shared.GenerateID
	}

	idle := make(chan struct{})
	close(idle)
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		opts:   opts,
		logger: shared.WithLogger(opts.Logger, "component", "tasks"),
		tasks:  make(map[string]*models.ImportTask),
		queued: make(map[string]bool),
		idle:   idle,
		subs:   make(map[int]chan Event),
		wake:   make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}, nil
}

// Load reads persisted tasks without starting the processor. It runs at most once.
//
// Tasks persisted as running cannot have survived the restart, so they are stored back as paused
// and flagged interrupted. The flag outlives this process: [Manager.Interrupted] and the
// auto-resume in [Manager.Start] read it until the task is paused, resumed or cancelled.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	if m.loaded {
		m.mu.Unlock()
		return nil
	}
	m.loaded = true
	m.mu.Unlock()

	loaded, err := m.opts.Store.LoadTasks(ctx)
	if err != nil {
		m.logger.Warn("failed to load import tasks", "error", err)
	}

	reclassified := 0
	m.mu.Lock()
	for _, t := range loaded {
		if t == nil || t.ID == "" || t.Status == models.TaskCancelled {
			continue
		}
		if _, dup := m.tasks[t.ID]; dup {
			continue
		}
		if t.Status == models.TaskRunning {
			t.Status = models.TaskPaused
			t.Interrupted = true
			reclassified++
		}
		if t.Status != models.TaskPaused {
			t.Interrupted = false
		}
		if !t.Done() && t.Results[t.ProcessedTracks].Status == models.TrackSearching {
			t.Results[t.ProcessedTracks].Status = models.TrackPending
		}
		m.tasks[t.ID] = t
		m.order = append(m.order, t.ID)
	}
	m.mu.Unlock()

	if reclassified > 0 {
		m.logger.Info("reclassified interrupted imports", "count", reclassified)
		m.persist()
	}
	return nil
}

// Start loads persisted tasks if [Manager.Load] has not run yet, schedules interrupted tasks to
// resume once ResumeDelay has elapsed and starts the processor.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	if err := m.Load(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	if ids := m.interruptedLocked(); len(ids) > 0 {
		m.resume = time.AfterFunc(m.opts.ResumeDelay, func() { m.resumeInterrupted(ids) })
		m.logger.Info("scheduled resume of interrupted imports", "count", len(ids), "resume_in", m.opts.ResumeDelay)
	}
	m.mu.Unlock()

	go m.loop()
	return nil
}

func (m *Manager) resumeInterrupted(ids []string) {
	for _, id := range ids {
		err := m.Resume(id)
		if err != nil && !errors.Is(err, ErrInvalidTransition) && !errors.Is(err, ErrTaskNotFound) {
			m.logger.Warn("failed to auto-resume import", "task", id, "error", err)
		}
	}
}

// Interrupted returns the ids of paused tasks that were running when a previous process stopped
// and have not been touched since.
func (m *Manager) Interrupted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interruptedLocked()
}

func (m *Manager) interruptedLocked() []string {
	var ids []string
	for _, id := range m.order {
		if t := m.tasks[id]; t.Interrupted && t.Status == models.TaskPaused {
			ids = append(ids, id)
		}
	}
	return ids
}

// Close stops the processor after the current track and cancels any pending auto-resume.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.resume != nil {
		m.resume.Stop()
	}
	started := m.started
	m.mu.Unlock()

	m.cancel()
	if started {
		<-m.done
	}
}

// Subscribe returns a channel of task events and a function that unsubscribes it.
func (m *Manager) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, max(buffer, 0))

	m.mu.Lock()
	id := m.subID
	m.subID++
	m.subs[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
			close(ch)
		})
	}
}

// publishLocked sends without blocking. Holding mu keeps unsubscribe from closing a channel
// mid-send.
func (m *Manager) publishLocked(ev Event) {
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (m *Manager) publish(ev Event) {
	m.mu.Lock()
	m.publishLocked(ev)
	m.mu.Unlock()
}

// CreateTask builds a running task from tracks, persists it and queues it for processing.
func (m *Manager) CreateTask(name string, tracks []models.SourceTrack, download bool) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: playlist name is required", shared.ErrInvalidInput)
	}
	if len(tracks) == 0 {
		return "", fmt.Errorf("%w: no tracks to import", shared.ErrInvalidInput)
	}

	task := models.NewImportTask(m.opts.NewID(), name, tracks, m.opts.Now())
	task.Download = download

	m.mu.Lock()
	m.tasks[task.ID] = task
	m.order = append(m.order, task.ID)
	m.enqueueLocked(task.ID)
	snapshot := task.Clone()
	m.mu.Unlock()

	m.logger.Info("import created", "task", task.ID, "playlist", name, "tracks", len(tracks))
	m.persist()
	m.publish(createdEvent(snapshot))
	return task.ID, nil
}

// Pause stops a running task before its next track. On a task paused by a restart it clears the
// interrupted flag so the task is no longer resumed automatically.
func (m *Manager) Pause(id string) error {
	return m.transition(id, models.TaskPaused, TaskPaused)
}

// Resume continues a paused task from its first unprocessed track.
func (m *Manager) Resume(id string) error {
	return m.transition(id, models.TaskRunning, TaskResumed)
}

func (m *Manager) transition(id string, next models.TaskStatus, kind EventKind) error {
	m.mu.Lock()
	task, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	// Pausing an interrupted task keeps it paused and stops the auto-resume.
	held := next == models.TaskPaused && task.Status == models.TaskPaused && task.Interrupted
	if !held && !task.Status.CanTransition(next) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, task.Status, next)
	}
	task.Status = next
	task.Interrupted = false
	if next == models.TaskRunning {
		m.enqueueLocked(id)
	}
	snapshot := task.Clone()
	m.mu.Unlock()

	m.logger.Info("import status changed", "task", id, "status", next, "processed", snapshot.ProcessedTracks, "total", snapshot.TotalTracks())
	m.persist()
	m.publish(statusEvent(kind, snapshot))
	return nil
}

// Cancel removes an active task. With savePartial the tracks found so far are saved as a playlist
// named after the task with a partial suffix.
func (m *Manager) Cancel(id string, savePartial bool) error {
	m.mu.Lock()
	task, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if !task.Status.CanTransition(models.TaskCancelled) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, task.Status, models.TaskCancelled)
	}
	task.Status = models.TaskCancelled
	m.removeLocked(id)
	snapshot := task.Clone()
	m.mu.Unlock()

	if savePartial {
		m.savePlaylist(snapshot.PlaylistName+m.opts.PartialSuffix, snapshot.Found())
	}
	m.logger.Info("import cancelled", "task", id, "save_partial", savePartial, "found", snapshot.FoundTracks)
	m.persist(id)
	m.publish(statusEvent(TaskCancelled, snapshot))
	return nil
}

// Remove drops a completed task from the list.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	task, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if task.Status != models.TaskCompleted {
		m.mu.Unlock()
		return fmt.Errorf("%w: only completed tasks can be removed", ErrInvalidTransition)
	}
	m.removeLocked(id)
	m.mu.Unlock()

	m.persist(id)
	m.publish(removedEvent(id))
	return nil
}

// ListActive returns running and paused tasks in creation order.
func (m *Manager) ListActive() []*models.ImportTask {
	m.mu.Lock()
	defer m.mu.Unlock()

	active := make([]*models.ImportTask, 0, len(m.order))
	for _, id := range m.order {
		if t := m.tasks[id]; t.Status.Active() {
			active = append(active, t.Clone())
		}
	}
	return active
}

// List returns every known task, including completed ones, in creation order.
func (m *Manager) List() []*models.ImportTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Get returns a snapshot of one task.
func (m *Manager) Get(id string) (*models.ImportTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return t.Clone(), nil
}

// Wait blocks until the queue is drained and no task is being processed.
func (m *Manager) Wait(ctx context.Context) error {
	for {
		m.mu.Lock()
		if len(m.queue) == 0 && !m.busy {
			m.mu.Unlock()
			return nil
		}
		idle := m.idle
		m.mu.Unlock()

		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *Manager) enqueueLocked(id string) {
	if m.queued[id] {
		return
	}
	if len(m.queue) == 0 && !m.busy {
		m.idle = make(chan struct{})
	}
	m.queue = append(m.queue, id)
	m.queued[id] = true

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) removeLocked(id string) {
	delete(m.tasks, id)
	m.order = slices.DeleteFunc(m.order, func(v string) bool { return v == id })
	if m.queued[id] {
		delete(m.queued, id)
		m.queue = slices.DeleteFunc(m.queue, func(v string) bool { return v == id })
		if len(m.queue) == 0 && !m.busy {
			close(m.idle)
		}
	}
}

func (m *Manager) snapshotLocked() []*models.ImportTask {
	out := make([]*models.ImportTask, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.tasks[id].Clone())
	}
	return out
}

// persist deletes removed from the store and upserts the current task list. Tasks this manager
// never loaded are left alone, so another process sharing the store keeps its rows. persistMu
// orders writes so the newest snapshot lands last.
func (m *Manager) persist(removed ...string) {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, id := range removed {
		if err := m.opts.Store.DeleteTask(ctx, id); err != nil {
			m.logger.Warn("failed to delete import task", "task", id, "error", err)
		}
	}

	m.mu.Lock()
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	if err := m.opts.Store.SaveTasks(ctx, snapshot); err != nil {
		m.logger.Warn("failed to persist import tasks", "error", err)
	}
}

func (m *Manager) loop() {
	defer close(m.done)
	for {
		id, ok := m.next()
		if !ok {
			select {
			case <-m.ctx.Done():
				return
			case <-m.wake:
				continue
			}
		}
		m.process(id)
	}
}

// next pops the head of the queue and marks the processor busy, or marks it idle when there is
// nothing left to do.
func (m *Manager) next() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx.Err() != nil || len(m.queue) == 0 {
		if m.busy {
			m.busy = false
			if len(m.queue) == 0 {
				close(m.idle)
			}
		}
		return "", false
	}
	id := m.queue[0]
	m.queue = m.queue[1:]
	delete(m.queued, id)
	m.busy = true
	return id, true
}

// process resolves the remaining tracks of one task, one at a time.
func (m *Manager) process(id string) {
	logger := m.logger.With("task", id)

	for {
		m.mu.Lock()
		task, ok := m.tasks[id]
		if !ok || task.Status != models.TaskRunning {
			m.mu.Unlock()
			return
		}
		if task.Done() {
			m.mu.Unlock()
			m.complete(id)
			return
		}

		i := task.ProcessedTracks
		src := task.Results[i].Source
		task.Results[i].Status = models.TrackSearching
		m.publishLocked(searchingEvent(task.Clone(), src))
		m.mu.Unlock()

		results, err := m.search(src)
		if err != nil {
			logger.Warn("search failed", "track", src.Name, "artist", src.Artist, "error", err)
			results = nil
		}
		best := match.SelectBest(results, src.DurationMs, m.opts.Tolerance)

		m.mu.Lock()
		task, ok = m.tasks[id]
		if !ok || task.Status == models.TaskCancelled {
			m.mu.Unlock()
			return
		}
		r := &task.Results[i]
		r.Results = results
		if best != nil {
			r.Status = models.TrackFound
			r.Match = best
			task.FoundTracks++
		} else {
			r.Status = models.TrackNotFound
		}
		task.ProcessedTracks++
		snapshot := task.Clone()
		m.mu.Unlock()

		m.persist()
		m.publish(progressEvent(snapshot, snapshot.Results[i]))

		if best != nil && snapshot.Download {
			m.materialize(logger, snapshot.PlaylistName, *best)
		}

		if !snapshot.Done() && !m.sleep(m.opts.TrackDelay) {
			return
		}
	}
}

func (m *Manager) search(src models.SourceTrack) ([]models.SearchResult, error) {
	query := shared.BuildSearchQuery(src.Name, src.Artist)
	if query == "" {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(m.ctx, m.opts.SearchTimeout)
	defer cancel()
	return m.opts.Searcher.Search(ctx, query, m.opts.SearchLimit)
}

// materialize fetches a found track through the download pool and copies it into the playlist's
// track directory. Failures are logged only.
func (m *Manager) materialize(logger *log.Logger, playlist string, track models.SearchResult) {
	if m.opts.Downloader == nil || m.opts.Playlists == nil {
		return
	}
	if err := shared.ValidateTrackID(track.ID); err != nil {
		logger.Warn("skipping download of unusable track id", "track", track.ID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(m.ctx, m.opts.DownloadTimeout)
	defer cancel()

	src, err := m.opts.Downloader.QueueDownload(ctx, track.ID, track.Title, true)
	if err != nil {
		logger.Warn("download failed", "track", track.ID, "error", err)
		return
	}
	if src == "" {
		return
	}

	dir, err := m.opts.Playlists.TrackDir(playlist)
	if err != nil {
		logger.Warn("failed to resolve playlist track directory", "playlist", playlist, "error", err)
		return
	}
	dst := filepath.Join(dir, track.ID+filepath.Ext(src))
	if err := shared.CopyFileAtomic(src, dst); err != nil {
		logger.Warn("failed to copy track into playlist", "track", track.ID, "error", err)
	}
}

func (m *Manager) complete(id string) {
	m.mu.Lock()
	task, ok := m.tasks[id]
	if !ok || !task.Status.CanTransition(models.TaskCompleted) {
		m.mu.Unlock()
		return
	}
	now := m.opts.Now()
	task.Status = models.TaskCompleted
	task.CompletedAt = &now
	snapshot := task.Clone()
	m.mu.Unlock()

	m.savePlaylist(snapshot.PlaylistName, snapshot.Found())
	m.logger.Info("import completed", "task", id, "found", snapshot.FoundTracks, "total", snapshot.TotalTracks())

	if m.opts.Notifier != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := m.opts.Notifier.Notify(ctx, "Import complete", completionBody(snapshot)); err != nil {
			m.logger.Warn("failed to send notification", "task", id, "error", err)
		}
		cancel()
	}

	m.persist()
	m.publish(completedEvent(snapshot))
}

// savePlaylist writes the matched tracks. Nothing is written when no track matched.
func (m *Manager) savePlaylist(name string, tracks []models.SearchResult) {
	if m.opts.Playlists == nil || len(tracks) == 0 {
		return
	}
	if err := m.opts.Playlists.Save(name, tracks); err != nil {
		m.logger.Warn("failed to save playlist", "playlist", name, "error", err)
	}
}

// sleep waits d or until the manager is closed, reporting whether processing should continue.
func (m *Manager) sleep(d time.Duration) bool {
	if d <= 0 {
		return m.ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-m.ctx.Done():
		return false
	}
}
