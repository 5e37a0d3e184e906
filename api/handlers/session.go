package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FaresOuhachi/HR-Payroll-Agent/governance"
	"github.com/FaresOuhachi/HR-Payroll-Agent/graph"
	"github.com/FaresOuhachi/HR-Payroll-Agent/types"
)

// =============================================================================
// 🕸️ 会话与运行 Handler
// =============================================================================

// Engine is the part of graph.Engine the HTTP layer drives.
type Engine interface {
	Start(ctx context.Context, sessionID, input string, caller governance.Caller) (*graph.RunResult, error)
	Recover(ctx context.Context, sessionID string) (*graph.RunResult, error)
	Cancel(ctx context.Context, sessionID, reason string) (*graph.RunResult, error)
	Status(ctx context.Context, sessionID string) (*graph.SessionStatus, error)
	History(ctx context.Context, sessionID string) ([]graph.Snapshot, error)
}

var _ Engine = (*graph.Engine)(nil)

// SessionHandler 会话处理器
type SessionHandler struct {
	engine Engine
	logger *zap.Logger
}

// RunRequest starts a turn. An empty session id opens a new session.
type RunRequest struct {
	SessionID string `json:"session_id,omitempty" validate:"omitempty,max=128,excludesall=/ "`
	Input     string `json:"input" validate:"required"`
}

// CancelRequest 取消请求，请求体可省略
type CancelRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=512"`
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(engine Engine, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{
		engine: engine,
		logger: logger.With(zap.String("handler", "session")),
	}
}

// HandleRun 处理 POST /v1/run
// @Summary 开始一轮对话
// @Tags session
// @Accept json
// @Produce json
// @Param request body RunRequest true "会话与输入"
// @Success 200 {object} Envelope{data=graph.RunResult}
// @Failure 409 {object} Envelope "会话正在运行"
// @Failure 503 {object} Envelope "分类或模型暂不可用，可重试"
// @Router /v1/run [post]
func (h *SessionHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if !bindJSON(w, r, &req, h.logger) {
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	// 客户端断开不应打断已开始的转换；运行超时由引擎控制
	ctx := context.WithoutCancel(r.Context())
	result, err := h.engine.Start(ctx, req.SessionID, req.Input, CallerFrom(r.Context()))
	if err != nil {
		WriteEngineError(w, err, result, h.logger)
		return
	}
	WriteSuccess(w, result)
}

// HandleStatus 处理 GET /v1/sessions/{id}
// @Summary 会话状态
// @Tags session
// @Produce json
// @Param id path string true "会话 ID"
// @Success 200 {object} Envelope{data=graph.SessionStatus}
// @Failure 404 {object} Envelope "会话不存在"
// @Router /v1/sessions/{id} [get]
func (h *SessionHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	status, err := h.engine.Status(r.Context(), id)
	if err != nil {
		WriteEngineError(w, err, nil, h.logger)
		return
	}
	WriteSuccess(w, status)
}

// HandleCheckpoints 处理 GET /v1/sessions/{id}/checkpoints
// @Summary 会话检查点链
// @Tags session
// @Produce json
// @Param id path string true "会话 ID"
// @Success 200 {object} Envelope{data=[]graph.Snapshot}
// @Router /v1/sessions/{id}/checkpoints [get]
func (h *SessionHandler) HandleCheckpoints(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	history, err := h.engine.History(r.Context(), id)
	if err != nil {
		WriteEngineError(w, err, nil, h.logger)
		return
	}
	WriteSuccess(w, history)
}

// HandleCancel 处理 POST /v1/sessions/{id}/cancel
// @Summary 取消会话
// @Tags session
// @Accept json
// @Produce json
// @Param id path string true "会话 ID"
// @Param request body CancelRequest false "取消原因"
// @Success 200 {object} Envelope{data=graph.RunResult}
// @Router /v1/sessions/{id}/cancel [post]
func (h *SessionHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req CancelRequest
	if r.ContentLength > 0 {
		if !decodeBody(w, r, &req, h.logger) {
			return
		}
	}

	result, err := h.engine.Cancel(context.WithoutCancel(r.Context()), id, req.Reason)
	if err != nil {
		WriteEngineError(w, err, nil, h.logger)
		return
	}
	WriteSuccess(w, result)
}

// HandleRecover 处理 POST /v1/sessions/{id}/recover
// @Summary 从最后一个检查点恢复运行
// @Tags session
// @Produce json
// @Param id path string true "会话 ID"
// @Success 200 {object} Envelope{data=graph.RunResult}
// @Router /v1/sessions/{id}/recover [post]
func (h *SessionHandler) HandleRecover(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	result, err := h.engine.Recover(context.WithoutCancel(r.Context()), id)
	if err != nil {
		WriteEngineError(w, err, result, h.logger)
		return
	}
	WriteSuccess(w, result)
}

func (h *SessionHandler) sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		badRequest(w, "session id is required", h.logger)
		return "", false
	}
	return id, true
}

// CallerFrom builds the governance caller from the authenticated identity.
// The role is filled in by the engine from the active specialist.
func CallerFrom(ctx context.Context) governance.Caller {
	if id, ok := types.IdentityFrom(ctx); ok {
		return governance.Caller{Principal: id.Subject}
	}
	return governance.Caller{Principal: "anonymous"}
}
