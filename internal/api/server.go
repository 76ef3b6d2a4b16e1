// Package api exposes the supervisor's inspection and control surface
// over HTTP: the worker state table, quorum health, prometheus metrics,
// a websocket event stream and publish-only restart/terminate controls.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Paintersrp/warden/internal/control"
	"github.com/Paintersrp/warden/internal/events"
	"github.com/Paintersrp/warden/internal/metrics"
	"github.com/Paintersrp/warden/internal/statetable"
)

const (
	defaultAddr            = "127.0.0.1:7663"
	defaultReadHeader      = 5 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// Config controls construction of the API server.
type Config struct {
	Addr              string
	Table             statetable.Table
	Publisher         control.Publisher
	Quorum            func() bool
	Stream            *events.Stream
	Listener          net.Listener
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server wraps an http.Server exposing supervisor controls.
type Server struct {
	cfg             Config
	srv             *http.Server
	listener        net.Listener
	shutdownTimeout time.Duration
	upgrader        websocket.Upgrader
}

// NewServer constructs a Server with sane defaults.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Table == nil {
		return nil, fmt.Errorf("state table is required")
	}
	if cfg.Publisher == nil {
		return nil, fmt.Errorf("control publisher is required")
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = defaultAddr
	}

	s := &Server{
		cfg:             cfg,
		listener:        cfg.Listener,
		shutdownTimeout: cfg.ShutdownTimeout,
	}
	if s.shutdownTimeout == 0 {
		s.shutdownTimeout = defaultShutdownTimeout
	}

	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	r.Get("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}).ServeHTTP)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/workers", s.handleWorkers)
		r.Post("/restart", s.handleRestart)
		r.Post("/terminate", s.handleTerminate)
		r.Get("/events", s.handleEvents)
	})

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	if s.srv.ReadHeaderTimeout == 0 {
		s.srv.ReadHeaderTimeout = defaultReadHeader
	}
	return s, nil
}

// Run starts serving until the provided context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	errCh := make(chan error, 1)
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
			defer cancel()
			_ = s.srv.Shutdown(shutdownCtx)
		case <-stop:
		}
	}()

	go func() {
		var err error
		if s.listener != nil {
			err = s.srv.Serve(s.listener)
		} else {
			err = s.srv.ListenAndServe()
		}
		errCh <- err
	}()

	err := <-errCh
	close(stop)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.srv.Addr
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ready := s.cfg.Quorum == nil || s.cfg.Quorum()
	status := http.StatusOK
	body := map[string]string{"status": "ok"}
	if !ready {
		status = http.StatusServiceUnavailable
		body["status"] = "waiting for workers"
	}
	writeJSON(w, status, body)
}

func (s *Server) handleWorkers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Table.Snapshot())
}

type restartRequest struct {
	Workers []string `json:"workers"`
	Payload string   `json:"payload"`
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	var req restartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	names := control.MessageAllProcesses
	if len(req.Workers) > 0 {
		names = strings.Join(req.Workers, ",")
	}
	msg := names
	if req.Payload != "" {
		msg += ":" + req.Payload
	}
	if err := s.cfg.Publisher.Publish(msg); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "restart dispatched"})
}

func (s *Server) handleTerminate(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Publisher.Publish(control.MessageTerminate); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "terminate dispatched"})
}

type eventPayload struct {
	Timestamp time.Time   `json:"ts"`
	Worker    string      `json:"worker"`
	Pid       int         `json:"pid,omitempty"`
	Type      events.Type `json:"type"`
	Level     string      `json:"level"`
	Message   string      `json:"msg"`
	Source    string      `json:"source"`
	Error     string      `json:"error,omitempty"`
	RestartID string      `json:"restartId,omitempty"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Stream == nil {
		http.Error(w, "event stream unavailable", http.StatusNotFound)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch, release, ok := s.cfg.Stream.Subscribe(64)
	if !ok {
		return
	}
	defer release()

	// Reader goroutine: subscribers only listen, but we must consume
	// control frames to notice the peer going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			payload := eventPayload{
				Timestamp: evt.Timestamp,
				Worker:    evt.Worker,
				Pid:       evt.Pid,
				Type:      evt.Type,
				Level:     evt.Level,
				Message:   evt.Message,
				Source:    evt.Source,
				RestartID: evt.RestartID,
			}
			if evt.Err != nil {
				payload.Error = evt.Err.Error()
			}
			if err := conn.WriteJSON(payload); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
