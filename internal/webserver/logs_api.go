package webserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ichi0g0y/alliance-bot/internal/shared/logger"
	"go.uber.org/zap"
)

const streamBacklog = 50

// StreamLog forwards a captured log entry to /ws/logs clients.
func (s *Server) StreamLog(entry logger.LogEntry) {
	data, err := encodeWSMessage("log", entry)
	if err != nil {
		return
	}
	// ここでログを出すと再帰するので黙って捨てる
	s.logs.publish(data)
}

// handleLogs returns recent logs
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := 100 // デフォルト100件
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = l
	}

	logs := logger.GetLogBuffer().GetRecent(limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"logs":      logs,
		"count":     len(logs),
		"timestamp": time.Now().UTC(),
	})
}

// handleLogsDownload downloads logs as a file
func (s *Server) handleLogsDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}

	buffer := logger.GetLogBuffer()
	stamp := time.Now().UTC().Format("20060102-150405")

	switch format {
	case "json":
		data, err := buffer.ToJSON()
		if err != nil {
			http.Error(w, "Failed to generate JSON", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=alliance-bot-logs-%s.json", stamp))
		_, _ = w.Write(data)

	case "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=alliance-bot-logs-%s.txt", stamp))
		_, _ = w.Write([]byte(buffer.ToText()))

	default:
		http.Error(w, "Invalid format. Use 'json' or 'text'", http.StatusBadRequest)
	}
}

// handleLogsStream provides real-time log streaming via WebSocket
func (s *Server) handleLogsStream(w http.ResponseWriter, r *http.Request) {
	recent := logger.GetLogBuffer().GetRecent(streamBacklog)
	initial := make([][]byte, 0, len(recent))
	for _, entry := range recent {
		if data, err := encodeWSMessage("log", entry); err == nil {
			initial = append(initial, data)
		}
	}
	s.logs.serve(w, r, initial)
}

func (s *Server) handleLogsClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	logger.GetLogBuffer().Clear()
	logger.Info("Log buffer cleared")

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Log buffer cleared",
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("Failed to encode JSON response", zap.Error(err))
	}
}
