// Package server exposes segmentation over HTTP and WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/realtime-ai/vadseg/pkg/logger"
	"github.com/realtime-ai/vadseg/pkg/metrics"
	"github.com/realtime-ai/vadseg/pkg/segment"
	"github.com/realtime-ai/vadseg/pkg/vad"
)

// Server serves POST /v1/segments, the /v1/stream WebSocket, /metrics and
// /healthz.
type Server struct {
	config  *Config
	segCfg  segment.Config
	metrics *metrics.Metrics
	log     *logrus.Entry
	probers *proberPool

	// Session management
	sessions   map[string]context.CancelFunc
	sessionsMu sync.RWMutex

	// HTTP server
	httpServer *http.Server
	mux        *http.ServeMux
	handler    http.Handler

	// WebSocket upgrader
	upgrader websocket.Upgrader

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records request and segmentation metrics to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the server logger.
func WithLogger(l *logrus.Entry) Option {
	return func(s *Server) { s.log = l }
}

// New creates a server that builds probers with factory and segments with
// segCfg unless a request overrides it.
func New(config *Config, factory vad.Factory, segCfg segment.Config, opts ...Option) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := segCfg.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:   config,
		segCfg:   segCfg,
		log:      logger.WithComponent("server"),
		probers:  newProberPool(factory, config.MaxStreams),
		sessions: make(map[string]context.CancelFunc),
		mux:      http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("POST "+config.SegmentsPath, s.authorized(s.handleSegments))
	s.mux.HandleFunc("GET "+config.StreamPath, s.authorized(s.handleStream))
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", metrics.Handler())
	s.handler = metrics.Middleware(s.metrics)(s.mux)
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts listening on config.Addr.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.ctx },
	}

	s.log.Infof("starting on %s", s.config.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop cancels every session, shuts the HTTP server down and destroys the
// probers.
func (s *Server) Stop(ctx context.Context) error {
	s.cancel()

	s.sessionsMu.Lock()
	for _, cancel := range s.sessions {
		cancel()
	}
	s.sessionsMu.Unlock()

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	return errors.Join(err, s.probers.close())
}

// SessionCount returns the number of open WebSocket sessions.
func (s *Server) SessionCount() int {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	return len(s.sessions)
}

func (s *Server) registerSession(id string, cancel context.CancelFunc) {
	s.sessionsMu.Lock()
	s.sessions[id] = cancel
	s.sessionsMu.Unlock()
}

func (s *Server) unregisterSession(id string) {
	s.sessionsMu.Lock()
	delete(s.sessions, id)
	s.sessionsMu.Unlock()
}

// segmenter borrows a prober and wraps it for one request. release must be
// called with the request's error.
func (s *Server) segmenter(cfg segment.Config, log *logrus.Entry) (*segment.Segmenter, func(error), error) {
	pr, err := s.probers.get()
	if err != nil {
		return nil, nil, err
	}
	seg, err := segment.New(pr, cfg, segment.WithMetrics(s.metrics), segment.WithLogger(log))
	if err != nil {
		s.probers.put(pr, false)
		return nil, nil, err
	}
	release := func(err error) {
		s.probers.put(pr, isProberFailure(err))
	}
	return seg, release, nil
}

// isProberFailure reports whether err leaves the prober unusable.
func isProberFailure(err error) bool {
	return errors.Is(err, vad.ErrClosed)
}

func (s *Server) authorized(next http.HandlerFunc) http.HandlerFunc {
	if s.config.AuthToken == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") ||
			strings.TrimPrefix(authHeader, "Bearer ") != s.config.AuthToken {
			writeError(w, http.StatusUnauthorized, errors.New("unauthorized"))
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"active_streams": s.probers.active(),
		"sessions":       s.SessionCount(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
