package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/FaresOuhachi/HR-Payroll-Agent/events"
	"github.com/FaresOuhachi/HR-Payroll-Agent/governance"
	"github.com/FaresOuhachi/HR-Payroll-Agent/graph"
	"github.com/FaresOuhachi/HR-Payroll-Agent/types"
)

// =============================================================================
// 📡 会话事件流（SSE 与 WebSocket）
// =============================================================================

// Subscriber 提供按会话的事件订阅，通常是 *events.Hub
type Subscriber interface {
	Subscribe(sessionID string) *events.Subscription
}

// Starter starts runs from inbound WebSocket frames.
type Starter interface {
	Start(ctx context.Context, sessionID, input string, caller governance.Caller) (*graph.RunResult, error)
}

// Frame types sent over the WebSocket stream.
const (
	FrameEvent  = "event"
	FrameResult = "result"
	FrameError  = "error"
	FramePong   = "pong"
)

// StreamFrame 是 WebSocket 出站帧
type StreamFrame struct {
	Type   string           `json:"type"`
	Event  *events.Event    `json:"event,omitempty"`
	Result *graph.RunResult `json:"result,omitempty"`
	Error  *Problem         `json:"error,omitempty"`
}

// InboundFrame 是 WebSocket 入站帧：{"type":"run","input":"..."} 或 {"type":"ping"}
type InboundFrame struct {
	Type  string `json:"type"`
	Input string `json:"input,omitempty"`
}

// StreamHandler 事件流处理器
type StreamHandler struct {
	hub            Subscriber
	engine         Starter
	heartbeat      time.Duration
	originPatterns []string
	logger         *zap.Logger
}

// NewStreamHandler 创建事件流处理器。originPatterns 为空时只接受同源 WebSocket。
func NewStreamHandler(hub Subscriber, engine Starter, originPatterns []string, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{
		hub:            hub,
		engine:         engine,
		heartbeat:      15 * time.Second,
		originPatterns: originPatterns,
		logger:         logger.With(zap.String("handler", "stream")),
	}
}

// SetHeartbeat 调整心跳间隔
func (h *StreamHandler) SetHeartbeat(d time.Duration) {
	if d > 0 {
		h.heartbeat = d
	}
}

// HandleSSE 处理 GET /v1/sessions/{id}/events
// @Summary 订阅会话事件（Server-Sent Events）
// @Tags stream
// @Produce text/event-stream
// @Param id path string true "会话 ID"
// @Router /v1/sessions/{id}/events [get]
func (h *StreamHandler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.PathValue("id"))
	if sessionID == "" {
		badRequest(w, "session id is required", h.logger)
		return
	}

	rc := http.NewResponseController(w)
	// 流式连接不受服务器 WriteTimeout 约束
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Debug("clear write deadline failed", zap.Error(err))
	}

	sub := h.hub.Subscribe(sessionID)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, ": subscribed to %s\n\n", sessionID)
	if err := rc.Flush(); err != nil {
		h.logger.Warn("streaming unsupported by response writer", zap.Error(err))
		return
	}

	h.logger.Debug("sse subscriber attached", zap.String("session_id", sessionID), zap.String("subscription", sub.ID))

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if err := writeSSE(w, ev); err != nil {
				h.logger.Debug("sse write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeSSE(w http.ResponseWriter, ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, ev.Kind, data)
	return err
}

// HandleWebSocket 处理 GET /v1/sessions/{id}/ws
// @Summary 会话事件的双向 WebSocket；入站 run 帧开始新的一轮
// @Tags stream
// @Param id path string true "会话 ID"
// @Router /v1/sessions/{id}/ws [get]
func (h *StreamHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.PathValue("id"))
	if sessionID == "" {
		badRequest(w, "session id is required", h.logger)
		return
	}

	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		// Accept 已写出错误响应
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub := h.hub.Subscribe(sessionID)
	defer sub.Close()

	ws := &wsWriter{conn: conn}
	go h.readLoop(ctx, cancel, conn, ws, sessionID, CallerFrom(r.Context()))

	h.logger.Debug("websocket subscriber attached", zap.String("session_id", sessionID))

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev, ok := <-sub.C:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "subscription closed")
				return
			}
			if err := ws.write(ctx, StreamFrame{Type: FrameEvent, Event: &ev}); err != nil {
				h.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, h.heartbeat)
			err := conn.Ping(pingCtx)
			pingCancel()
			if err != nil {
				h.logger.Debug("websocket ping failed", zap.Error(err))
				return
			}
		}
	}
}

// readLoop 处理入站帧。run 帧同步执行，同一连接上的运行依次进行。
func (h *StreamHandler) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, ws *wsWriter, sessionID string, caller governance.Caller) {
	defer cancel()
	for {
		var in InboundFrame
		if err := wsjson.Read(ctx, conn, &in); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				h.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}

		switch in.Type {
		case "run":
			if strings.TrimSpace(in.Input) == "" {
				_ = ws.write(ctx, errorFrame(types.NewError(types.ErrInvalidRequest, "input is required")))
				continue
			}
			result, err := h.engine.Start(context.WithoutCancel(ctx), sessionID, in.Input, caller)
			if err != nil {
				frame := errorFrame(graph.ToTypedError(err))
				frame.Result = result
				_ = ws.write(ctx, frame)
				continue
			}
			_ = ws.write(ctx, StreamFrame{Type: FrameResult, Result: result})
		case "ping":
			_ = ws.write(ctx, StreamFrame{Type: FramePong})
		default:
			_ = ws.write(ctx, errorFrame(types.NewError(types.ErrInvalidRequest,
				fmt.Sprintf("unknown frame type %q", in.Type))))
		}
	}
}

func errorFrame(err *types.Error) StreamFrame {
	return StreamFrame{
		Type: FrameError,
		Error: &Problem{
			Code:      string(err.Code),
			Message:   err.Message,
			Retryable: err.Retryable,
		},
	}
}

// wsWriter 串行化写操作，事件转发与运行结果来自不同 goroutine
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) write(ctx context.Context, frame StreamFrame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return wsjson.Write(ctx, w.conn, frame)
}
