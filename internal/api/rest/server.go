package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/oshokin/drowsy-alarm/internal/api/view"
	"github.com/oshokin/drowsy-alarm/internal/camera"
	"github.com/oshokin/drowsy-alarm/internal/domain/detection"
	"github.com/oshokin/drowsy-alarm/internal/logger"
	"github.com/oshokin/drowsy-alarm/internal/metrics"
)

const (
	defaultEpisodeLimit = 20
	maxEpisodeLimit     = 500
	readHeaderTimeout   = 5 * time.Second
	shutdownTimeout     = 5 * time.Second
)

// Controller drives the monitoring engine. *monitor.Service implements it.
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context)
	Running() bool
	Snapshot() *detection.Snapshot
	SetCalibration(ctx context.Context, on bool) *detection.Snapshot
}

// EpisodeLister lists journaled episodes. *journal.Journal implements it.
type EpisodeLister interface {
	RecentEpisodes(ctx context.Context, limit int) ([]detection.Episode, error)
}

// Server is the HTTP presentation API.
type Server struct {
	// controller drives the engine.
	controller Controller
	// hub streams snapshots, may be nil.
	hub *Hub
	// episodes is nil when the journal is disabled.
	episodes EpisodeLister
	// metrics is nil when metrics are disabled.
	metrics *metrics.Metrics
	// handler is the fully wrapped router.
	handler http.Handler
}

// Option configures the server.
type Option func(*Server)

// WithHub enables the /ws snapshot stream.
func WithHub(hub *Hub) Option {
	return func(s *Server) {
		s.hub = hub
	}
}

// WithEpisodes enables /episodes.
func WithEpisodes(episodes EpisodeLister) Option {
	return func(s *Server) {
		s.episodes = episodes
	}
}

// WithMetrics enables /metrics and per-route request metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// calibrationRequest is the body of PUT /calibration.
type calibrationRequest struct {
	Enabled *bool `json:"enabled"`
}

// engineResponse is returned by the engine routes.
type engineResponse struct {
	Running bool `json:"running"`
}

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
}

// NewServer builds the router.
func NewServer(controller Controller, opts ...Option) *Server {
	s := &Server{
		controller: controller,
	}

	for _, opt := range opts {
		opt(s)
	}

	router := mux.NewRouter()

	s.route(router, "/health", s.health, http.MethodGet)
	s.route(router, "/status", s.status, http.MethodGet)
	s.route(router, "/calibration", s.calibration, http.MethodGet)
	s.route(router, "/calibration", s.setCalibration, http.MethodPut)
	s.route(router, "/engine/start", s.startEngine, http.MethodPost)
	s.route(router, "/engine/stop", s.stopEngine, http.MethodPost)
	s.route(router, "/episodes", s.listEpisodes, http.MethodGet)

	if s.metrics != nil {
		router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	// The upgrade needs the raw writer, so /ws is not wrapped by metrics.
	if s.hub != nil {
		router.Handle("/ws", s.hub).Methods(http.MethodGet)
	}

	accessLog := zap.NewStdLog(logger.Logger().Desugar()).Writer()

	s.handler = handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(
		handlers.CORS(
			handlers.AllowedOrigins([]string{"*"}),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Content-Type"}),
		)(handlers.LoggingHandler(accessLog, router)),
	)

	return s
}

// Handler returns the wrapped router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves HTTP on address until ctx is done.
func (s *Server) Run(ctx context.Context, address string) error {
	ctx = logger.WithName(ctx, "rest")

	listenConfig := net.ListenConfig{}

	listener, err := listenConfig.Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	return s.Serve(ctx, listener)
}

// Serve serves HTTP on listener until ctx is done.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	done := make(chan struct{})

	go func() {
		defer close(done)

		<-ctx.Done()

		logger.Info(ctx, "Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if s.hub != nil {
			s.hub.Close()
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WarnKV(ctx, "HTTP server shutdown failed", "error", err)
		}
	}()

	logger.InfoKV(ctx, "HTTP server is listening", "address", listener.Addr().String())

	err := server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		<-done
		return nil
	}

	return fmt.Errorf("failed to serve HTTP: %w", err)
}

func (s *Server) route(router *mux.Router, path string, h http.HandlerFunc, method string) {
	var handler http.Handler = h
	if s.metrics != nil {
		handler = s.metrics.WrapHandler(method+" "+path, handler)
	}

	router.Handle(path, handler).Methods(method)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, view.FromSnapshot(s.controller.Snapshot()))
}

func (s *Server) calibration(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, view.FromSnapshot(s.controller.Snapshot()).Calibration)
}

func (s *Server) setCalibration(w http.ResponseWriter, r *http.Request) {
	var req calibrationRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}

	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, errors.New("field enabled is required"))
		return
	}

	snapshot := s.controller.SetCalibration(r.Context(), *req.Enabled)

	writeJSON(w, http.StatusOK, view.FromSnapshot(snapshot).Calibration)
}

func (s *Server) startEngine(w http.ResponseWriter, r *http.Request) {
	err := s.controller.Start(r.Context())

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, engineResponse{Running: true})
	case errors.Is(err, camera.ErrDenied):
		writeError(w, http.StatusForbidden, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) stopEngine(w http.ResponseWriter, r *http.Request) {
	s.controller.Stop(r.Context())

	writeJSON(w, http.StatusOK, engineResponse{Running: s.controller.Running()})
}

func (s *Server) listEpisodes(w http.ResponseWriter, r *http.Request) {
	if s.episodes == nil {
		writeError(w, http.StatusNotFound, errors.New("episode journal is disabled"))
		return
	}

	limit := defaultEpisodeLimit

	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxEpisodeLimit {
			writeError(w, http.StatusBadRequest, fmt.Errorf("limit must be between 1 and %d", maxEpisodeLimit))
			return
		}

		limit = parsed
	}

	episodes, err := s.episodes.RecentEpisodes(r.Context(), limit)
	if err != nil {
		logger.ErrorKV(r.Context(), "Failed to list episodes", "error", err)
		writeError(w, http.StatusInternalServerError, err)

		return
	}

	result := make([]view.Episode, 0, len(episodes))
	for _, e := range episodes {
		result = append(result, view.FromEpisode(e))
	}

	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
