package webserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ichi0g0y/alliance-bot/internal/broadcast"
	"github.com/ichi0g0y/alliance-bot/internal/settings"
	"github.com/ichi0g0y/alliance-bot/internal/shared/logger"
	"github.com/ichi0g0y/alliance-bot/internal/types"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreAnyFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreAnyFunction("net/http.(*persistConn).writeLoop"))
}

type fakePinger struct{ err error }

func (f fakePinger) PingContext(context.Context) error { return f.err }

type fakeEvents struct {
	events []types.ActiveEvent
	err    error
}

func (f fakeEvents) ListActiveEvents(context.Context) ([]types.ActiveEvent, error) { return f.events, f.err }

type fakeSettings struct{}

func (fakeSettings) GetAllSettings(context.Context) ([]settings.Setting, error) {
	return []settings.Setting{{Key: settings.KeyLogChannel, Value: "42", HasValue: true}}, nil
}

func newTestServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	s := New(opts)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Shutdown(context.Background())
		ts.Close()
	})
	return s, ts
}

func get(t *testing.T, ts *httptest.Server, path string) (int, string) {
	t.Helper()
	resp, err := ts.Client().Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body failed: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestHealth(t *testing.T) {
	_, ok := newTestServer(t, Options{DB: fakePinger{}})
	if code, body := get(t, ok, "/healthz"); code != http.StatusOK || !strings.Contains(body, `"status":"ok"`) || !strings.Contains(body, `"version":"v`) {
		t.Fatalf("got=%d %s", code, body)
	}

	_, bad := newTestServer(t, Options{DB: fakePinger{err: errors.New("disk gone")}})
	code, body := get(t, bad, "/healthz")
	if code != http.StatusServiceUnavailable || !strings.Contains(body, "disk gone") {
		t.Fatalf("got=%d %s", code, body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "alliance_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Add(3)

	_, ts := newTestServer(t, Options{Gatherer: reg})
	code, body := get(t, ts, "/metrics")
	if code != http.StatusOK || !strings.Contains(body, "alliance_test_total 3") {
		t.Fatalf("got=%d %s", code, body)
	}
}

func TestLogsAPI(t *testing.T) {
	logger.Init(false)
	logger.GetLogBuffer().Clear()
	logger.Info("ops endpoint check")

	_, ts := newTestServer(t, Options{})

	code, body := get(t, ts, "/api/logs?limit=5")
	if code != http.StatusOK {
		t.Fatalf("got=%d want=200", code)
	}
	var resp struct {
		Logs  []logger.LogEntry `json:"logs"`
		Count int               `json:"count"`
	}
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if resp.Count == 0 || resp.Logs[0].Message != "ops endpoint check" {
		t.Fatalf("unexpected logs: %+v", resp)
	}

	tests := []struct {
		path     string
		wantCode int
		wantBody string
	}{
		{path: "/api/logs/download", wantCode: http.StatusOK, wantBody: `"message": "ops endpoint check"`},
		{path: "/api/logs/download?format=text", wantCode: http.StatusOK, wantBody: "[INFO] ops endpoint check"},
		{path: "/api/logs/download?format=xml", wantCode: http.StatusBadRequest, wantBody: "Invalid format"},
		{path: "/api/logs/clear", wantCode: http.StatusMethodNotAllowed},
	}
	for _, tc := range tests {
		code, body := get(t, ts, tc.path)
		if code != tc.wantCode || !strings.Contains(body, tc.wantBody) {
			t.Fatalf("%s: got=%d %q want=%d %q", tc.path, code, body, tc.wantCode, tc.wantBody)
		}
	}

	resp2, err := ts.Client().Post(ts.URL+"/api/logs/clear", "application/json", nil)
	if err != nil {
		t.Fatalf("POST clear failed: %v", err)
	}
	resp2.Body.Close()
	// クリア自体のログだけが残る
	if n := len(logger.GetLogBuffer().GetRecent(0)); n != 1 {
		t.Fatalf("got=%d entries after clear want=1", n)
	}
}

func TestStateAPI(t *testing.T) {
	_, ts := newTestServer(t, Options{
		Events:   fakeEvents{events: []types.ActiveEvent{{MessageID: 9, Title: "Raid Night", HostID: 7}}},
		Settings: fakeSettings{},
	})

	code, body := get(t, ts, "/api/events")
	if code != http.StatusOK || !strings.Contains(body, `"title":"Raid Night"`) || !strings.Contains(body, `"count":1`) {
		t.Fatalf("got=%d %s", code, body)
	}
	code, body = get(t, ts, "/api/settings")
	if code != http.StatusOK || !strings.Contains(body, `"key":"log_channel_id"`) {
		t.Fatalf("got=%d %s", code, body)
	}

	_, broken := newTestServer(t, Options{Events: fakeEvents{err: errors.New("locked")}})
	if code, _ := get(t, broken, "/api/events"); code != http.StatusInternalServerError {
		t.Fatalf("got=%d want=500", code)
	}
	if code, _ := get(t, broken, "/api/settings"); code != http.StatusServiceUnavailable {
		t.Fatalf("got=%d want=503", code)
	}
}

func dialWS(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial %s failed: %v", path, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitClients(t *testing.T, h *wsHub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.clientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("hub %s has %d clients, want %d", h.name, h.clientCount(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readWS(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]any
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	return msg
}

func TestEventsStream(t *testing.T) {
	s, ts := newTestServer(t, Options{})
	conn := dialWS(t, ts, "/ws/events")
	waitClients(t, s.events, 1)

	pub := broadcast.Multi{&broadcast.NoopPublisher{}, s.EventPublisher()}
	if err := pub.Publish(context.Background(), broadcast.TopicEventClosed, broadcast.EventClosed{Title: "Raid Night"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	msg := readWS(t, conn)
	data, _ := msg["data"].(map[string]any)
	if msg["type"] != broadcast.TopicEventClosed || data["title"] != "Raid Night" {
		t.Fatalf("unexpected message: %v", msg)
	}
}

func TestLogsStreamSendsBacklogThenLive(t *testing.T) {
	logger.Init(false)
	logger.GetLogBuffer().Clear()
	logger.Info("before connect")

	s, ts := newTestServer(t, Options{})
	conn := dialWS(t, ts, "/ws/logs")

	first := readWS(t, conn)
	entry, _ := first["data"].(map[string]any)
	if first["type"] != "log" || entry["message"] != "before connect" {
		t.Fatalf("unexpected backlog message: %v", first)
	}

	waitClients(t, s.logs, 1)
	s.StreamLog(logger.LogEntry{Level: "WARN", Message: "live entry"})
	for {
		msg := readWS(t, conn)
		if e, _ := msg["data"].(map[string]any); e["message"] == "live entry" {
			break
		}
	}
}

func TestShutdownDisconnectsClients(t *testing.T) {
	s, ts := newTestServer(t, Options{})
	conn := dialWS(t, ts, "/ws/events")
	waitClients(t, s.events, 1)

	s.Shutdown(context.Background())
	s.Shutdown(context.Background())

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("connection should be closed after Shutdown")
	}
	if s.EventPublisher().Publish(context.Background(), "x", nil) != nil {
		t.Fatalf("publishing after shutdown should be a silent drop")
	}
}
