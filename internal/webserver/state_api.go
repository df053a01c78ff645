package webserver

import (
	"context"
	"net/http"

	"github.com/ichi0g0y/alliance-bot/internal/broadcast"
	"github.com/ichi0g0y/alliance-bot/internal/shared/logger"
	"go.uber.org/zap"
)

func (s *Server) handleActiveEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.opts.Events == nil {
		http.Error(w, "Event tracking not available", http.StatusServiceUnavailable)
		return
	}

	events, err := s.opts.Events.ListActiveEvents(r.Context())
	if err != nil {
		logger.Error("Failed to list active events", zap.Error(err))
		http.Error(w, "Failed to list active events", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.opts.Settings == nil {
		http.Error(w, "Settings not available", http.StatusServiceUnavailable)
		return
	}

	all, err := s.opts.Settings.GetAllSettings(r.Context())
	if err != nil {
		logger.Error("Failed to list settings", zap.Error(err))
		http.Error(w, "Failed to list settings", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": all})
}

func (s *Server) handleEventsStream(w http.ResponseWriter, r *http.Request) {
	s.events.serve(w, r, nil)
}

// EventPublisher returns a bus publisher that forwards events to /ws/events clients.
func (s *Server) EventPublisher() broadcast.Publisher {
	return &eventPublisher{hub: s.events}
}

type eventPublisher struct {
	hub *wsHub
}

func (p *eventPublisher) Publish(ctx context.Context, topic string, event any) error {
	data, err := encodeWSMessage(topic, event)
	if err != nil {
		return err
	}
	if !p.hub.publish(data) {
		logger.Debug("WebSocket event dropped", zap.String("topic", topic))
	}
	return nil
}

// Close is a no-op; the hub belongs to the Server.
func (p *eventPublisher) Close() error {
	return nil
}
