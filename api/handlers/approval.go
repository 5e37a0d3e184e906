package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/FaresOuhachi/HR-Payroll-Agent/approval"
	"github.com/FaresOuhachi/HR-Payroll-Agent/graph"
	"github.com/FaresOuhachi/HR-Payroll-Agent/types"
)

// =============================================================================
// ✅ 审批 Handler
// =============================================================================

// Approvals is the approval workflow as seen by the API.
type Approvals interface {
	Get(ctx context.Context, id string) (*approval.Record, error)
	List(ctx context.Context, filter approval.Filter) ([]*approval.Record, error)
	Decide(ctx context.Context, id string, d approval.Decision) (*approval.Record, error)
}

var _ Approvals = (*approval.Workflow)(nil)

// SessionReader 读取会话状态，用于在决定后返回会话的新位置
type SessionReader interface {
	Status(ctx context.Context, sessionID string) (*graph.SessionStatus, error)
}

// ApprovalHandler 审批处理器
type ApprovalHandler struct {
	approvals    Approvals
	sessions     SessionReader
	approverRole string
	logger       *zap.Logger
}

// DecideRequest 审批决定请求
type DecideRequest struct {
	Decision approval.Verdict `json:"decision" validate:"required,oneof=approve reject"`
	Reason   string           `json:"reason,omitempty" validate:"max=1024"`
}

// DecideResponse 审批决定结果与会话当前状态
type DecideResponse struct {
	Approval *approval.Record    `json:"approval"`
	Session  *graph.SessionStatus `json:"session,omitempty"`
}

// NewApprovalHandler 创建审批处理器。approverRole 非空时只有携带该角色的身份可以决定。
func NewApprovalHandler(approvals Approvals, sessions SessionReader, approverRole string, logger *zap.Logger) *ApprovalHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalHandler{
		approvals:    approvals,
		sessions:     sessions,
		approverRole: approverRole,
		logger:       logger.With(zap.String("handler", "approval")),
	}
}

// HandleList 处理 GET /v1/approvals?status=&session_id=&limit=
// @Summary 审批列表
// @Tags approval
// @Produce json
// @Param status query string false "pending / approved / rejected"
// @Param session_id query string false "会话 ID"
// @Param limit query int false "最大条数"
// @Success 200 {object} Envelope{data=[]approval.Record}
// @Router /v1/approvals [get]
func (h *ApprovalHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := approval.Filter{
		Status:    approval.Status(strings.ToLower(q.Get("status"))),
		SessionID: q.Get("session_id"),
	}
	switch filter.Status {
	case "", approval.StatusPending, approval.StatusApproved, approval.StatusRejected:
	default:
		badRequest(w, "status must be pending, approved or rejected", h.logger)
		return
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			badRequest(w, "limit must be a non-negative integer", h.logger)
			return
		}
		filter.Limit = limit
	}

	records, err := h.approvals.List(r.Context(), filter)
	if err != nil {
		WriteEngineError(w, err, nil, h.logger)
		return
	}
	if records == nil {
		records = []*approval.Record{}
	}
	WriteSuccess(w, records)
}

// HandleGet 处理 GET /v1/approvals/{id}
// @Summary 审批详情
// @Tags approval
// @Produce json
// @Param id path string true "审批 ID"
// @Success 200 {object} Envelope{data=approval.Record}
// @Failure 404 {object} Envelope "审批不存在"
// @Router /v1/approvals/{id} [get]
func (h *ApprovalHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := h.approvals.Get(r.Context(), id)
	if err != nil {
		WriteEngineError(w, err, nil, h.logger)
		return
	}
	WriteSuccess(w, rec)
}

// HandleDecide 处理 POST /v1/approvals/{id}/decide
// @Summary 批准或拒绝挂起的工具调用
// @Tags approval
// @Accept json
// @Produce json
// @Param id path string true "审批 ID"
// @Param request body DecideRequest true "决定"
// @Success 200 {object} Envelope{data=DecideResponse}
// @Failure 403 {object} Envelope "无审批权限"
// @Failure 404 {object} Envelope "审批不存在"
// @Failure 409 {object} Envelope "已被决定"
// @Router /v1/approvals/{id}/decide [post]
func (h *ApprovalHandler) HandleDecide(w http.ResponseWriter, r *http.Request) {
	var req DecideRequest
	if !bindJSON(w, r, &req, h.logger) {
		return
	}

	decider := "anonymous"
	id, authenticated := types.IdentityFrom(r.Context())
	if authenticated {
		decider = id.Subject
	}
	if h.approverRole != "" && (!authenticated || !id.HasRole(h.approverRole)) {
		WriteError(w, types.NewError(types.ErrForbidden,
			"deciding approvals requires the "+h.approverRole+" role"), h.logger)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	rec, err := h.approvals.Decide(ctx, r.PathValue("id"), approval.Decision{
		Verdict: req.Decision,
		Decider: decider,
		Reason:  req.Reason,
	})
	if err != nil {
		WriteEngineError(w, err, nil, h.logger)
		return
	}

	resp := DecideResponse{Approval: rec}
	if h.sessions != nil {
		status, err := h.sessions.Status(ctx, rec.SessionID)
		if err != nil {
			h.logger.Warn("session status after decision unavailable",
				zap.String("approval_id", rec.ID), zap.Error(err))
		} else {
			resp.Session = status
		}
	}
	WriteSuccess(w, resp)
}
