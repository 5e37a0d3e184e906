package approval

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FaresOuhachi/HR-Payroll-Agent/governance"
)

// DecisionHandler resumes the suspended run behind an approval. It owns the
// compare-and-set (normally by calling Workflow.Resolve) so the resolution and
// the resumption are decided by the same caller.
type DecisionHandler func(ctx context.Context, approvalID string, d Decision) error

// Workflow 审批工作流
type Workflow struct {
	store  Store
	logger *zap.Logger

	mu      sync.RWMutex
	handler DecisionHandler

	now func() time.Time
}

func NewWorkflow(store Store, logger *zap.Logger) *Workflow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Workflow{
		store:  store,
		logger: logger.With(zap.String("component", "approval_workflow")),
		now:    time.Now,
	}
}

// OnDecision binds the resume handler invoked by Decide.
func (w *Workflow) OnDecision(h DecisionHandler) {
	w.mu.Lock()
	w.handler = h
	w.mu.Unlock()
}

// approvalNamespace 派生审批 id 的 UUID 命名空间
var approvalNamespace = uuid.MustParse("6f1c2a7e-3d4b-5e8f-9a0b-1c2d3e4f5a6b")

// ApprovalID is the id of the approval gating checkpoint seq of a session.
// Re-running the same step after a failed checkpoint write yields the same id.
func ApprovalID(sessionID string, seq int64) string {
	return "apr_" + uuid.NewSHA1(approvalNamespace, []byte(sessionID+"#"+strconv.FormatInt(seq, 10))).String()
}

// RequestApproval is the only way a record is created; it is always pending.
// A second request for the same session and seq returns the stored record.
func (w *Workflow) RequestApproval(ctx context.Context, sessionID string, seq int64, call governance.ToolCall, requester string) (*Record, error) {
	rec := &Record{
		ID:        ApprovalID(sessionID, seq),
		SessionID: sessionID,
		Seq:       seq,
		ToolCall:  call,
		Requester: requester,
		Status:    StatusPending,
		CreatedAt: w.now(),
	}
	err := w.store.Create(ctx, rec)
	if errors.Is(err, ErrExists) {
		existing, err := w.store.Get(ctx, rec.ID)
		if err != nil {
			return nil, fmt.Errorf("request approval: %w", err)
		}
		w.logger.Info("approval request reused",
			zap.String("approval_id", existing.ID),
			zap.String("session_id", sessionID),
			zap.Int64("seq", seq),
			zap.String("status", string(existing.Status)))
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("request approval: %w", err)
	}
	w.logger.Info("approval requested",
		zap.String("approval_id", rec.ID),
		zap.String("session_id", sessionID),
		zap.Int64("seq", seq),
		zap.String("tool", call.Name))
	return rec, nil
}

// Resolve atomically moves a pending record to approved or rejected.
func (w *Workflow) Resolve(ctx context.Context, id string, d Decision) (*Record, error) {
	status, err := d.Verdict.Status()
	if err != nil {
		return nil, err
	}
	rec, err := w.store.Resolve(ctx, id, status, d.Decider, d.Reason, w.now())
	if err != nil {
		return nil, err
	}
	w.logger.Info("approval resolved",
		zap.String("approval_id", id),
		zap.String("status", string(status)),
		zap.String("decider", d.Decider))
	return rec, nil
}

// Decide applies a human decision exactly once and resumes the run through
// the bound handler. Without a handler the decision is only recorded.
func (w *Workflow) Decide(ctx context.Context, id string, d Decision) (*Record, error) {
	if _, err := d.Verdict.Status(); err != nil {
		return nil, err
	}

	w.mu.RLock()
	h := w.handler
	w.mu.RUnlock()

	if h == nil {
		return w.Resolve(ctx, id, d)
	}
	if err := h(ctx, id, d); err != nil {
		return nil, err
	}
	return w.store.Get(ctx, id)
}

func (w *Workflow) Get(ctx context.Context, id string) (*Record, error) {
	return w.store.Get(ctx, id)
}

func (w *Workflow) List(ctx context.Context, filter Filter) ([]*Record, error) {
	return w.store.List(ctx, filter)
}
