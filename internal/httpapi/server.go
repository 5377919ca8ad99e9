// Package httpapi serves study results, progress streaming and metrics over
// HTTP.
package httpapi

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"strategy-lab/internal/observability"
	"strategy-lab/internal/progress"
	"strategy-lab/internal/storage"
)

// Options configures a Server.
type Options struct {
	Addr string

	// Trials is read by the study endpoints.
	Trials storage.TrialStore

	// Launcher handles POST /studies. Optional; the route answers 503 without it.
	Launcher *Launcher

	// Hub serves GET /ws/progress. Optional.
	Hub *progress.Hub

	Metrics *observability.Metrics

	// Gatherer backs GET /metrics. Defaults to the prometheus default registry.
	Gatherer prometheus.Gatherer

	Logger *zap.Logger
}

// Server is the strategy-lab HTTP server.
type Server struct {
	router *mux.Router
	server *http.Server
	opts   Options
}

// NewServer creates a server and registers its routes.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}

	s := &Server{router: mux.NewRouter(), opts: opts}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)

	s.router.HandleFunc("/health", s.health).Methods(http.MethodGet)
	s.router.HandleFunc("/studies", s.startStudy).Methods(http.MethodPost)
	s.router.HandleFunc("/studies/{study}", s.studyStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/studies/{study}/trials", s.studyTrials).Methods(http.MethodGet)
	s.router.HandleFunc("/studies/{study}/best", s.studyBest).Methods(http.MethodGet)

	if s.opts.Hub != nil {
		s.router.Handle("/ws/progress", s.opts.Hub).Methods(http.MethodGet)
	}

	if s.opts.Gatherer != nil {
		s.router.Handle("/metrics", observability.HandlerFor(s.opts.Gatherer)).Methods(http.MethodGet)
	} else {
		s.router.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.opts.Logger.Info("http server listening", zap.String("addr", s.opts.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.opts.Logger.Info("shutting down http server")
	if s.opts.Hub != nil {
		s.opts.Hub.Close()
	}
	return s.server.Shutdown(ctx)
}

type ctxKey struct{}

// RequestID returns the id assigned to the request, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// requestIDMiddleware adds unique request ID to each request
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, requestID)))
	})
}

// requestLoggingMiddleware logs every request and counts it by route template.
func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.opts.Metrics.RecordHTTPRequest(route, wrapper.statusCode)

		s.opts.Logger.Debug("http request",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapper.statusCode),
			zap.Duration("duration", time.Since(start)))
	})
}

// responseWrapper captures the status code. It forwards Hijack so websocket
// upgrades pass through the middleware.
type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}
