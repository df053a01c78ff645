// Package webserver serves the operator endpoints: health, metrics, recent logs,
// bot state and websocket streams of logs and bus events.
package webserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ichi0g0y/alliance-bot/internal/settings"
	"github.com/ichi0g0y/alliance-bot/internal/shared/logger"
	"github.com/ichi0g0y/alliance-bot/internal/types"
	"github.com/ichi0g0y/alliance-bot/internal/version"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger reports whether the database is reachable; *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// EventLister lists open events; *localdb.Store satisfies it.
type EventLister interface {
	ListActiveEvents(ctx context.Context) ([]types.ActiveEvent, error)
}

type SettingsLister interface {
	GetAllSettings(ctx context.Context) ([]settings.Setting, error)
}

type Options struct {
	Addr     string
	DB       Pinger
	Gatherer prometheus.Gatherer
	Events   EventLister
	Settings SettingsLister
}

type Server struct {
	opts       Options
	mux        *http.ServeMux
	logs       *wsHub
	events     *wsHub
	httpServer *http.Server
	stopOnce   sync.Once
}

// New builds the server and starts its websocket hubs. Call Shutdown to release them.
func New(opts Options) *Server {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		opts:   opts,
		mux:    http.NewServeMux(),
		logs:   newWSHub("logs"),
		events: newWSHub("events"),
	}

	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))

	s.mux.HandleFunc("/api/logs", corsMiddleware(s.handleLogs))
	s.mux.HandleFunc("/api/logs/download", corsMiddleware(s.handleLogsDownload))
	s.mux.HandleFunc("/api/logs/clear", corsMiddleware(s.handleLogsClear))
	s.mux.HandleFunc("/api/events", corsMiddleware(s.handleActiveEvents))
	s.mux.HandleFunc("/api/settings", corsMiddleware(s.handleSettings))

	// WebSocketは独自のUpgrade処理
	s.mux.HandleFunc("/ws/logs", s.handleLogsStream)
	s.mux.HandleFunc("/ws/events", s.handleEventsStream)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start listens on Options.Addr and streams captured logs to /ws/logs.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.mux,
		WriteTimeout: 30 * time.Second,
		ReadTimeout:  10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger.Info("Starting web server", zap.String("address", s.opts.Addr))

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	// Wait briefly to catch immediate binding errors
	select {
	case err := <-errChan:
		if err != nil {
			logger.Error("Failed to start web server", zap.Error(err))
			return fmt.Errorf("failed to start web server on %s: %w", s.opts.Addr, err)
		}
	case <-time.After(100 * time.Millisecond):
	}

	logger.SetBroadcastCallback(s.StreamLog)
	return nil
}

// Shutdown stops the listener, disconnects websocket clients and detaches
// the log stream. Safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) {
	s.stopOnce.Do(func() {
		logger.SetBroadcastCallback(nil)

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(ctx); err != nil {
				logger.Error("Failed to shutdown web server gracefully", zap.Error(err))
			} else {
				logger.Info("Web server shutdown complete")
			}
		}
		s.logs.stop()
		s.events.stop()
	})
}

// corsMiddleware adds CORS headers to HTTP handlers
func corsMiddleware(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		handler(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":     "ok",
		"version":    version.String(),
		"ws_clients": s.logs.clientCount() + s.events.clientCount(),
	}
	if s.opts.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.opts.DB.PingContext(ctx); err != nil {
			body["status"] = "degraded"
			body["db_error"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, body)
			return
		}
	}
	writeJSON(w, http.StatusOK, body)
}
