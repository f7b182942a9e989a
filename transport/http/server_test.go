package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/slighter12/maya-livelink-go/commands"
	"github.com/slighter12/maya-livelink-go/config"
	"github.com/slighter12/maya-livelink-go/jsonrpc"
	"github.com/slighter12/maya-livelink-go/livelink"
	"github.com/slighter12/maya-livelink-go/metric"
	"github.com/slighter12/maya-livelink-go/runtimebridge"
	"github.com/slighter12/maya-livelink-go/scene"
	"github.com/slighter12/maya-livelink-go/subject"
)

const serverScene = `
frame: 12
nodes:
  - name: crate
    translate: [1, 2, 3]
  - name: shotCam
    children:
      - name: shotCamShape
        type: camera
`

func newTestHTTPServer(t *testing.T, transports ...string) *Server {
	t.Helper()

	g, err := scene.Parse([]byte(serverScene))
	if err != nil {
		t.Fatalf("parse scene: %v", err)
	}

	reg := prometheus.NewRegistry()
	m, err := metric.NewMetrics(reg)
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	cfg := config.NewConfig()
	if len(transports) > 0 {
		cfg.Provider.Transports = nil
		for _, kind := range transports {
			cfg.Provider.Transports = append(cfg.Provider.Transports, config.Transport{Type: kind, Enabled: true})
		}
	}

	hub := NewHub(cfg.Provider.Name, cfg.Provider.SubscriberBuffer, m)
	bridge := runtimebridge.New(subject.Env{Scene: g, Transport: hub}, g, runtimebridge.Options{
		ValidationInterval: time.Hour,
		CommandTimeout:     2 * time.Second,
		Metrics:            m,
		Notify:             hub.Notify,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = bridge.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	manager := commands.NewManager()
	manager.RegisterDefaults(commands.Deps{Loop: bridge, Scene: g})

	return NewServer(cfg, Deps{
		Hub:      hub,
		Commands: manager,
		Store:    bridge.Store(),
		Gatherer: reg,
	})
}

func doRequest(t *testing.T, server *Server, method, path string, body []byte) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, decoded
}

func postRPC(t *testing.T, server *Server, body map[string]any) (int, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("encode request: %v", err)
	}
	rec, decoded := doRequest(t, server, http.MethodPost, pathRPC, raw)
	return rec.Code, decoded
}

func mustMap(t *testing.T, v any) map[string]any {
	t.Helper()
	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("expected object, got %T (%v)", v, v)
	}
	return m
}

func TestRPCAddSubjectStreamsSchema(t *testing.T) {
	server := newTestHTTPServer(t)
	sub := server.Hub().Subscribe(config.TransportSSE)
	defer server.Hub().Unsubscribe(sub)
	nextEnvelope(t, sub)

	status, resp := postRPC(t, server, map[string]any{
		"jsonrpc": jsonrpc.Version,
		"id":      1,
		"method":  "add-subject",
		"params":  map[string]any{"path": "|shotCam"},
	})
	if status != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%v)", status, resp)
	}
	if resp["error"] != nil {
		t.Fatalf("add-subject returned error: %v", resp["error"])
	}
	row := mustMap(t, mustMap(t, resp["result"])["subject"])
	if row["name"] != "shotCam" || row["role"] != "Camera" {
		t.Fatalf("unexpected subject row: %v", row)
	}

	schema := nextEnvelope(t, sub)
	if schema.Type != MessageSchema || schema.Subject != "shotCam" || schema.Schema.Camera == nil {
		t.Fatalf("expected camera schema, got %+v", schema)
	}

	// The reply is sent only after the snapshot is published.
	rec, subjects := doRequest(t, server, http.MethodGet, pathSubjects, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	rows, ok := subjects["subjects"].([]any)
	if !ok || len(rows) != 1 {
		t.Fatalf("expected one subject row, got %v", subjects["subjects"])
	}
}

func TestRPCCommandErrorsMapToCodes(t *testing.T) {
	server := newTestHTTPServer(t)

	_, resp := postRPC(t, server, map[string]any{
		"jsonrpc": jsonrpc.Version,
		"id":      "missing",
		"method":  "commands/call",
		"params":  map[string]any{"name": "remove-subject", "arguments": map[string]any{"path": "|nope"}},
	})
	rpcErr := mustMap(t, resp["error"])
	if rpcErr["code"] != float64(jsonrpc.ErrInvalidParams) {
		t.Fatalf("expected invalid params code, got %v", rpcErr)
	}

	_, resp = postRPC(t, server, map[string]any{
		"jsonrpc": jsonrpc.Version,
		"id":      2,
		"method":  "teleport",
	})
	rpcErr = mustMap(t, resp["error"])
	if rpcErr["code"] != float64(jsonrpc.ErrMethodNotFound) {
		t.Fatalf("expected method not found code, got %v", rpcErr)
	}
}

func TestRPCNotificationAccepted(t *testing.T) {
	server := newTestHTTPServer(t)
	rec, _ := doRequest(t, server, http.MethodPost, pathRPC, []byte(`{"jsonrpc":"2.0","method":"ping"}`))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("expected empty body, got %q", rec.Body.String())
	}
}

func TestRPCRejectsMalformedFrames(t *testing.T) {
	server := newTestHTTPServer(t)
	cases := []struct {
		name string
		body string
		code jsonrpc.ErrorCode
	}{
		{"parse error", `{"jsonrpc":`, jsonrpc.ErrParseError},
		{"batch", `[{"jsonrpc":"2.0","id":1,"method":"ping"}]`, jsonrpc.ErrInvalidRequest},
		{"empty", ``, jsonrpc.ErrInvalidRequest},
		{"array params", `{"jsonrpc":"2.0","id":1,"method":"ping","params":[]}`, jsonrpc.ErrInvalidParams},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, resp := doRequest(t, server, http.MethodPost, pathRPC, []byte(tc.body))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rec.Code)
			}
			rpcErr := mustMap(t, resp["error"])
			if rpcErr["code"] != float64(tc.code) {
				t.Fatalf("expected code %d, got %v", tc.code, rpcErr["code"])
			}
		})
	}
}

func TestRPCBodyTooLarge(t *testing.T) {
	server := newTestHTTPServer(t)
	body := `{"jsonrpc":"2.0","id":1,"method":"ping","params":{"pad":"` + strings.Repeat("x", maxJSONRPCBodyBytes) + `"}}`
	rec, _ := doRequest(t, server, http.MethodPost, pathRPC, []byte(body))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status 413, got %d", rec.Code)
	}
}

func TestSubjectsReportsStaleSnapshot(t *testing.T) {
	server := newTestHTTPServer(t)
	server.now = func() time.Time { return time.Now().Add(server.store.StaleAfter() + time.Minute) }

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, pathSubjects, nil)
	rec := httptest.NewRecorder()
	if err := server.handleSubjects(e.NewContext(req, rec)); err != nil {
		t.Fatalf("handleSubjects failed: %v", err)
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "bridge_snapshot_stale") {
		t.Fatalf("expected stale reason, got %s", rec.Body.String())
	}
}

func TestStatusIncludesSubscribersAndSnapshot(t *testing.T) {
	server := newTestHTTPServer(t)
	sub := server.Hub().Subscribe(config.TransportWebSocket)
	defer server.Hub().Unsubscribe(sub)

	rec, body := doRequest(t, server, http.MethodGet, pathStatus, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	bridge := mustMap(t, body["bridge"])
	if bridge["fresh"] != true {
		t.Fatalf("expected fresh snapshot, got %v", bridge)
	}
	snapshot := mustMap(t, bridge["snapshot"])
	if snapshot["frame"] != float64(12) {
		t.Fatalf("expected frame 12, got %v", snapshot["frame"])
	}
	subs, ok := body["subscribers"].([]any)
	if !ok || len(subs) != 1 || mustMap(t, subs[0])["transport"] != config.TransportWebSocket {
		t.Fatalf("unexpected subscribers: %v", body["subscribers"])
	}
}

func TestInfoAndRoutesFollowEnabledTransports(t *testing.T) {
	server := newTestHTTPServer(t, config.TransportSSE)

	rec, body := doRequest(t, server, http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	endpoints := mustMap(t, body["endpoints"])
	if endpoints["sse"] != pathStream {
		t.Fatalf("expected sse endpoint, got %v", endpoints)
	}
	if _, ok := endpoints["websocket"]; ok {
		t.Fatalf("did not expect websocket endpoint, got %v", endpoints)
	}

	rec, _ = doRequest(t, server, http.MethodGet, pathWebSocket, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected disabled websocket route to 404, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestHTTPServer(t)
	server.Hub().PublishSchema("Crate", livelink.RoleTransform, livelink.StaticSchema{})

	rec, _ := doRequest(t, server, http.MethodGet, pathMetrics, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "livelink_transport_schemas_published_total") {
		t.Fatalf("expected schema counter in metrics output")
	}
}

func TestStreamReplaysSchemasOverSSE(t *testing.T) {
	server := newTestHTTPServer(t, config.TransportSSE)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	status, _ := postRPC(t, server, map[string]any{
		"jsonrpc": jsonrpc.Version,
		"id":      1,
		"method":  "add-subject",
		"params":  map[string]any{"path": "|crate"},
	})
	if status != http.StatusOK {
		t.Fatalf("add-subject failed with status %d", status)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+pathStream, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Fatalf("expected event stream, got %q", ct)
	}

	type sseEvent struct{ name, data string }
	var events []sseEvent
	var current string
	scanner := bufio.NewScanner(resp.Body)
	for len(events) < 2 && scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: ") && current != "":
			events = append(events, sseEvent{name: current, data: strings.TrimPrefix(line, "data: ")})
			current = ""
		}
	}

	if len(events) != 2 || events[0].name != MessageHello || events[1].name != MessageSchema {
		t.Fatalf("expected hello then schema, got %+v (%v)", events, scanner.Err())
	}
	lastData := events[1].data
	var env Envelope
	if err := json.Unmarshal([]byte(lastData), &env); err != nil {
		t.Fatalf("decode schema event: %v", err)
	}
	if env.Subject != "crate" {
		t.Fatalf("expected crate schema, got %+v", env)
	}
}

func TestWebSocketStreamsAndAnswersRPC(t *testing.T) {
	server := newTestHTTPServer(t, config.TransportWebSocket)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + pathWebSocket
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hello Envelope
	if err := conn.ReadJSON(&hello); err != nil || hello.Type != MessageHello {
		t.Fatalf("expected hello, got %+v (%v)", hello, err)
	}

	if err := conn.WriteJSON(map[string]any{
		"jsonrpc": jsonrpc.Version,
		"id":      "ws-1",
		"method":  "add-subject",
		"params":  map[string]any{"path": "|crate", "name": "Crate"},
	}); err != nil {
		t.Fatalf("write request: %v", err)
	}

	var sawSchema, sawReply bool
	for !sawSchema || !sawReply {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read message: %v", err)
		}
		switch {
		case msg["type"] == MessageSchema:
			if msg["subject"] != "Crate" {
				t.Fatalf("unexpected schema: %v", msg)
			}
			sawSchema = true
		case msg["jsonrpc"] == jsonrpc.Version && msg["id"] == "ws-1":
			if msg["error"] != nil {
				t.Fatalf("add-subject over websocket failed: %v", msg["error"])
			}
			sawReply = true
		}
	}
}

func TestWebSocketAnswersEmptyFrame(t *testing.T) {
	server := newTestHTTPServer(t, config.TransportWebSocket)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + pathWebSocket
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hello Envelope
	if err := conn.ReadJSON(&hello); err != nil || hello.Type != MessageHello {
		t.Fatalf("expected hello, got %+v (%v)", hello, err)
	}

	for _, frame := range []string{"", "  \n\t"} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			t.Fatalf("write frame %q: %v", frame, err)
		}
		var reply struct {
			Type    string                `json:"type"`
			JSONRPC string                `json:"jsonrpc"`
			Error   *jsonrpc.JSONRPCError `json:"error"`
		}
		for reply.JSONRPC == "" {
			reply.Type = ""
			if err := conn.ReadJSON(&reply); err != nil {
				t.Fatalf("read reply for %q: %v", frame, err)
			}
			if reply.Type != "" {
				reply.JSONRPC = ""
			}
		}
		if reply.Error == nil || reply.Error.Code != jsonrpc.ErrInvalidRequest || reply.Error.Message != "Invalid request" {
			t.Fatalf("expected invalid request for %q, got %+v", frame, reply)
		}
	}
}
