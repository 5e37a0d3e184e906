package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FaresOuhachi/HR-Payroll-Agent/events"
	"github.com/FaresOuhachi/HR-Payroll-Agent/governance"
	"github.com/FaresOuhachi/HR-Payroll-Agent/graph"
	"github.com/FaresOuhachi/HR-Payroll-Agent/types"
)

// starterFunc 把函数适配为 Starter
type starterFunc func(ctx context.Context, sessionID, input string, caller governance.Caller) (*graph.RunResult, error)

func (f starterFunc) Start(ctx context.Context, sessionID, input string, caller governance.Caller) (*graph.RunResult, error) {
	return f(ctx, sessionID, input, caller)
}

func streamServer(t *testing.T, hub *events.Hub, starter Starter) *httptest.Server {
	t.Helper()
	h := NewStreamHandler(hub, starter, nil, zap.NewNop())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/sessions/{id}/events", h.HandleSSE)
	mux.HandleFunc("GET /v1/sessions/{id}/ws", h.HandleWebSocket)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func waitSubscribers(t *testing.T, hub *events.Hub, sessionID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Subscribers(sessionID) == n },
		2*time.Second, 5*time.Millisecond)
}

func TestStreamHandler_SSE(t *testing.T) {
	hub := events.NewHub(8, nil)
	srv := streamServer(t, hub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/sessions/s-1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": subscribed to s-1\n", line)

	waitSubscribers(t, hub, "s-1", 1)
	hub.Emit(context.Background(), events.Event{SessionID: "s-2", Seq: 1, Kind: events.KindRouted})
	hub.Emit(context.Background(), events.Event{SessionID: "s-1", Seq: 3, Kind: events.KindClassified, Node: "CLASSIFY"})

	var frame []string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if line == "" {
			if len(frame) > 0 {
				break
			}
			continue
		}
		frame = append(frame, line)
	}
	require.Len(t, frame, 3)
	assert.Equal(t, "id: 3", frame[0])
	assert.Equal(t, "event: classified", frame[1])

	var ev events.Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frame[2], "data: ")), &ev))
	assert.Equal(t, "s-1", ev.SessionID)
	assert.Equal(t, events.KindClassified, ev.Kind)

	cancel()
	waitSubscribers(t, hub, "s-1", 0)
}

func TestStreamHandler_SSEHeartbeat(t *testing.T) {
	hub := events.NewHub(8, nil)
	h := NewStreamHandler(hub, nil, nil, nil)
	h.SetHeartbeat(20 * time.Millisecond)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/sessions/{id}/events", h.HandleSSE)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/sessions/s-1/events", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	_, err = reader.ReadString('\n')
	require.NoError(t, err)
	_, err = reader.ReadString('\n')
	require.NoError(t, err)

	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": ping\n", line)
}

func TestStreamHandler_WebSocketForwardsEvents(t *testing.T) {
	hub := events.NewHub(8, nil)
	srv := streamServer(t, hub, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/sessions/s-1/ws", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	waitSubscribers(t, hub, "s-1", 1)
	hub.Emit(ctx, events.Event{SessionID: "s-1", Seq: 7, Kind: events.KindApprovalRequired})

	var frame StreamFrame
	require.NoError(t, wsjson.Read(ctx, conn, &frame))
	assert.Equal(t, FrameEvent, frame.Type)
	require.NotNil(t, frame.Event)
	assert.EqualValues(t, 7, frame.Event.Seq)
	assert.Equal(t, events.KindApprovalRequired, frame.Event.Kind)

	require.NoError(t, wsjson.Write(ctx, conn, InboundFrame{Type: "ping"}))
	require.NoError(t, wsjson.Read(ctx, conn, &frame))
	assert.Equal(t, FramePong, frame.Type)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
	waitSubscribers(t, hub, "s-1", 0)
}

func TestStreamHandler_WebSocketRunFrames(t *testing.T) {
	hub := events.NewHub(8, nil)
	var (
		mu     sync.Mutex
		inputs []string
	)
	starter := starterFunc(func(_ context.Context, sessionID, input string, _ governance.Caller) (*graph.RunResult, error) {
		mu.Lock()
		inputs = append(inputs, input)
		mu.Unlock()
		if input == "fail" {
			return &graph.RunResult{SessionID: sessionID, Status: graph.RunFailed},
				fmt.Errorf("%w: busy", graph.ErrInvalidSession)
		}
		return &graph.RunResult{SessionID: sessionID, Status: graph.RunCompleted, Seq: 5}, nil
	})
	srv := streamServer(t, hub, starter)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/sessions/s-9/ws", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var frame StreamFrame

	require.NoError(t, wsjson.Write(ctx, conn, InboundFrame{Type: "run", Input: "net pay for E001"}))
	require.NoError(t, wsjson.Read(ctx, conn, &frame))
	assert.Equal(t, FrameResult, frame.Type)
	require.NotNil(t, frame.Result)
	assert.Equal(t, "s-9", frame.Result.SessionID)
	assert.Equal(t, graph.RunCompleted, frame.Result.Status)

	frame = StreamFrame{}
	require.NoError(t, wsjson.Write(ctx, conn, InboundFrame{Type: "run", Input: "fail"}))
	require.NoError(t, wsjson.Read(ctx, conn, &frame))
	assert.Equal(t, FrameError, frame.Type)
	assert.Equal(t, string(types.ErrInvalidSession), frame.Error.Code)
	require.NotNil(t, frame.Result)
	assert.Equal(t, graph.RunFailed, frame.Result.Status)

	frame = StreamFrame{}
	require.NoError(t, wsjson.Write(ctx, conn, InboundFrame{Type: "run"}))
	require.NoError(t, wsjson.Read(ctx, conn, &frame))
	assert.Equal(t, FrameError, frame.Type)
	assert.Equal(t, string(types.ErrInvalidRequest), frame.Error.Code)

	frame = StreamFrame{}
	require.NoError(t, wsjson.Write(ctx, conn, InboundFrame{Type: "subscribe"}))
	require.NoError(t, wsjson.Read(ctx, conn, &frame))
	assert.Equal(t, FrameError, frame.Type)
	assert.Contains(t, frame.Error.Message, "subscribe")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"net pay for E001", "fail"}, inputs)
}

func TestStreamHandler_WebSocketRejectsCrossOrigin(t *testing.T) {
	hub := events.NewHub(8, nil)
	srv := streamServer(t, hub, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/sessions/s-1/ws",
		&websocket.DialOptions{HTTPHeader: http.Header{"Origin": []string{"https://evil.example"}}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, hub.Subscribers("s-1"))
}
