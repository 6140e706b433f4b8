package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler is an http.Handler that knows the path patterns it serves.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the path patterns this handler serves
}

// NewRouter returns a chi router with request ids, panic recovery and request logging.
func NewRouter(logger *log.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, Logging(logger))
	return r
}

// Register mounts every route of h on r for all methods.
func Register(r chi.Router, h Handler) {
	for _, route := range h.Routes() {
		r.Handle(route, h)
	}
}

// Logging logs one line per request at debug level, and at warn for server errors.
func Logging(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			kv := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			}
			if ww.Status() >= http.StatusInternalServerError {
				logger.Warn("request failed", kv...)
				return
			}
			logger.Debug("request", kv...)
		})
	}
}

// New builds an http.Server for handler. Write timeouts are left unset so event streams stay open;
// request contexts derive from ctx.
func New(ctx context.Context, addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
