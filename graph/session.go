package graph

import (
	"context"
	"time"

	"github.com/FaresOuhachi/HR-Payroll-Agent/checkpoint"
)

// SessionStatus 会话当前状态摘要
type SessionStatus struct {
	SessionID         string          `json:"session_id"`
	Seq               int64           `json:"seq"`
	Node              Node            `json:"node"`
	Terminal          bool            `json:"terminal"`
	Suspended         bool            `json:"suspended"`
	Running           bool            `json:"running"`
	Specialist        string          `json:"specialist,omitempty"`
	Classification    *Classification `json:"classification,omitempty"`
	PendingApprovalID string          `json:"pending_approval_id,omitempty"`
	Answer            *Answer         `json:"answer,omitempty"`
	Iterations        int             `json:"iterations"`
	Turn              int             `json:"turn"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Snapshot is one decoded checkpoint of a session's chain.
type Snapshot struct {
	Seq       int64       `json:"seq"`
	Node      Node        `json:"node"`
	State     *GraphState `json:"state"`
	CreatedAt time.Time   `json:"created_at"`
}

// Status returns a summary of the latest checkpoint. Running is only known
// for runs in this process.
func (e *Engine) Status(ctx context.Context, sessionID string) (*SessionStatus, error) {
	latest, err := e.store.ReadLatest(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	state, err := decodeState(latest.State)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	_, running := e.active[sessionID]
	e.mu.Unlock()

	node := Node(latest.Node)
	return &SessionStatus{
		SessionID:         sessionID,
		Seq:               latest.Seq,
		Node:              node,
		Terminal:          node.Terminal(),
		Suspended:         node == NodeSuspendedApproval,
		Running:           running,
		Specialist:        state.Specialist,
		Classification:    state.Classification,
		PendingApprovalID: state.PendingApprovalID,
		Answer:            state.Answer,
		Iterations:        state.Iterations,
		Turn:              state.Turn,
		UpdatedAt:         latest.CreatedAt,
	}, nil
}

// History returns the retained checkpoint chain in ascending order.
func (e *Engine) History(ctx context.Context, sessionID string) ([]Snapshot, error) {
	records, err := e.store.List(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, checkpoint.ErrNoSuchSession
	}
	out := make([]Snapshot, 0, len(records))
	for _, rec := range records {
		state, err := decodeState(rec.State)
		if err != nil {
			return nil, err
		}
		out = append(out, Snapshot{Seq: rec.Seq, Node: Node(rec.Node), State: state, CreatedAt: rec.CreatedAt})
	}
	return out, nil
}
