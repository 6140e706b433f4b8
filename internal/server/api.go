package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/desertthunder/ytplay/internal/download"
	"github.com/desertthunder/ytplay/internal/models"
	"github.com/desertthunder/ytplay/internal/shared"
	"github.com/desertthunder/ytplay/internal/tasks"
)

// Downloads is the Download/Cache Manager surface used by the API.
type Downloads interface {
	QueueDownload(ctx context.Context, trackID, title string, preload bool) (string, error)
	IsCached(trackID string) bool
	SetAudioQuality(q models.AudioQuality)
	Quality() models.AudioQuality
	CompressExisting(ctx context.Context, q models.AudioQuality, sink func(download.CompressProgress)) error
}

// Imports is the import task manager surface used by the API.
type Imports interface {
	CreateTask(name string, tracks []models.SourceTrack, download bool) (string, error)
	List() []*models.ImportTask
	ListActive() []*models.ImportTask
	Get(id string) (*models.ImportTask, error)
	Pause(id string) error
	Resume(id string) error
	Cancel(id string, savePartial bool) error
	Remove(id string) error
	Subscribe(buffer int) (<-chan tasks.Event, func())
}

// API serves the pipeline operations as JSON over HTTP.
type API struct {
	downloads   Downloads
	imports     Imports
	hub         *Hub
	logger      *log.Logger
	ctx         context.Context
	compressing atomic.Bool
}

// NewAPI creates an API. ctx bounds background work such as re-compression.
func NewAPI(ctx context.Context, downloads Downloads, imports Imports, hub *Hub, logger *log.Logger) *API {
	if hub == nil {
		hub = NewHub(0)
	}
	return &API{
		downloads: downloads,
		imports:   imports,
		hub:       hub,
		logger:    shared.WithLogger(logger, "component", "api"),
		ctx:       ctx,
	}
}

// Hub returns the event hub behind /api/events.
func (a *API) Hub() *Hub { return a.hub }

// Forward relays import task events to the hub until ctx is done.
func (a *API) Forward(ctx context.Context) {
	events, unsubscribe := a.imports.Subscribe(64)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			a.hub.Publish(taskMessage(ev))
		}
	}
}

// Routes returns the API router.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/api/health", a.health)

	r.Route("/api/tracks/{id}", func(r chi.Router) {
		r.Get("/path", a.trackPath)
		r.Get("/cached", a.trackCached)
	})

	r.Get("/api/settings/quality", a.getQuality)
	r.Put("/api/settings/quality", a.setQuality)
	r.Post("/api/cache/compress", a.compress)

	r.Route("/api/imports", func(r chi.Router) {
		r.Get("/", a.listImports)
		r.Post("/", a.createImport)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", a.getImport)
			r.Delete("/", a.removeImport)
			r.Post("/pause", a.pauseImport)
			r.Post("/resume", a.resumeImport)
			r.Post("/cancel", a.cancelImport)
		})
	})

	r.Method(http.MethodGet, "/api/events", a.hub)
	return r
}

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "clients": a.hub.Clients()})
}

func (a *API) trackPath(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	preload, _ := strconv.ParseBool(r.URL.Query().Get("preload"))

	path, err := a.downloads.QueueDownload(r.Context(), id, r.URL.Query().Get("title"), preload)
	if err != nil {
		writeError(w, downloadStatus(err), err)
		return
	}
	if path == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}

func (a *API) trackCached(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"cached": a.downloads.IsCached(chi.URLParam(r, "id"))})
}

type qualityRequest struct {
	Quality string `json:"quality"`
}

func (a *API) getQuality(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"quality": string(a.downloads.Quality())})
}

func (a *API) setQuality(w http.ResponseWriter, r *http.Request) {
	q, ok := decodeQuality(w, r)
	if !ok {
		return
	}
	a.downloads.SetAudioQuality(q)
	writeJSON(w, http.StatusOK, map[string]string{"quality": string(q)})
}

func (a *API) compress(w http.ResponseWriter, r *http.Request) {
	q, ok := decodeQuality(w, r)
	if !ok {
		return
	}
	if !a.compressing.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, errors.New("compression already running"))
		return
	}

	go func() {
		defer a.compressing.Store(false)
		err := a.downloads.CompressExisting(a.ctx, q, func(p download.CompressProgress) {
			a.hub.Publish(compressMessage(p))
		})
		if err != nil {
			a.logger.Warn("compress existing failed", "quality", q, "err", err)
			a.hub.Publish(Message{Event: "compress_failed", Data: map[string]string{"error": err.Error()}})
			return
		}
		a.hub.Publish(Message{Event: "compress_done", Data: map[string]string{"quality": string(q)}})
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"quality": string(q)})
}

type createImportRequest struct {
	Name     string               `json:"name"`
	Tracks   []models.SourceTrack `json:"tracks"`
	Download bool                 `json:"download"`
}

func (a *API) createImport(w http.ResponseWriter, r *http.Request) {
	var req createImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	id, err := a.imports.CreateTask(req.Name, req.Tracks, req.Download)
	if err != nil {
		writeError(w, taskStatus(err), err)
		return
	}
	task, err := a.imports.Get(id)
	if err != nil {
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (a *API) listImports(w http.ResponseWriter, r *http.Request) {
	list := a.imports.ListActive()
	if all, _ := strconv.ParseBool(r.URL.Query().Get("all")); all {
		list = a.imports.List()
	}
	if list == nil {
		list = []*models.ImportTask{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) getImport(w http.ResponseWriter, r *http.Request) {
	task, err := a.imports.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, taskStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (a *API) removeImport(w http.ResponseWriter, r *http.Request) {
	if err := a.imports.Remove(chi.URLParam(r, "id")); err != nil {
		writeError(w, taskStatus(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) pauseImport(w http.ResponseWriter, r *http.Request) {
	a.taskAction(w, r, a.imports.Pause)
}

func (a *API) resumeImport(w http.ResponseWriter, r *http.Request) {
	a.taskAction(w, r, a.imports.Resume)
}

func (a *API) cancelImport(w http.ResponseWriter, r *http.Request) {
	savePartial, _ := strconv.ParseBool(r.URL.Query().Get("save_partial"))
	a.taskAction(w, r, func(id string) error {
		return a.imports.Cancel(id, savePartial)
	})
}

func (a *API) taskAction(w http.ResponseWriter, r *http.Request, action func(string) error) {
	id := chi.URLParam(r, "id")
	if err := action(id); err != nil {
		writeError(w, taskStatus(err), err)
		return
	}
	task, err := a.imports.Get(id)
	if err != nil {
		// cancelled tasks are dropped
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func decodeQuality(w http.ResponseWriter, r *http.Request) (models.AudioQuality, bool) {
	var req qualityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return "", false
	}
	q, err := models.ParseAudioQuality(req.Quality)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return "", false
	}
	return q, true
}

func downloadStatus(err error) int {
	switch {
	case errors.Is(err, shared.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, download.ErrUpstreamTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func taskStatus(err error) int {
	switch {
	case errors.Is(err, tasks.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, tasks.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, shared.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
