package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/FaresOuhachi/HR-Payroll-Agent/governance"
)

var (
	// ErrNotFound is returned for an unknown approval id.
	ErrNotFound = errors.New("approval not found")
	// ErrAlreadyResolved is returned when a record is no longer pending.
	ErrAlreadyResolved = errors.New("approval already resolved")
	// ErrExists is returned by Store.Create when the id is already taken.
	ErrExists = errors.New("approval already exists")
	// ErrInvalidDecision is returned for verdicts other than approve/reject.
	ErrInvalidDecision = errors.New("invalid approval decision")
)

// Status 审批状态
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Verdict is the human answer to an approval request.
type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictReject  Verdict = "reject"
)

// Status maps a verdict to the status it resolves a record into.
func (v Verdict) Status() (Status, error) {
	switch v {
	case VerdictApprove:
		return StatusApproved, nil
	case VerdictReject:
		return StatusRejected, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDecision, v)
	}
}

// Decision 审批决定
type Decision struct {
	Verdict Verdict `json:"decision"`
	Decider string  `json:"decider"`
	Reason  string  `json:"reason,omitempty"`
}

// Record is the audit row for one approval gate. It is created pending and
// mutated exactly once.
type Record struct {
	ID        string              `json:"id"`
	SessionID string              `json:"session_id"`
	Seq       int64               `json:"seq"`
	ToolCall  governance.ToolCall `json:"tool_call"`
	Requester string              `json:"requester"`
	Status    Status              `json:"status"`
	Decider   string              `json:"decider,omitempty"`
	Reason    string              `json:"reason,omitempty"`
	DecidedAt *time.Time          `json:"decided_at,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

// Pending reports whether the record still awaits a decision.
func (r *Record) Pending() bool { return r.Status == StatusPending }

func (r *Record) clone() *Record {
	c := *r
	c.ToolCall.Arguments = append([]byte(nil), r.ToolCall.Arguments...)
	if r.DecidedAt != nil {
		t := *r.DecidedAt
		c.DecidedAt = &t
	}
	return &c
}

// Filter 列表过滤条件
type Filter struct {
	Status    Status
	SessionID string
	Limit     int
}

func (f Filter) matches(r *Record) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.SessionID != "" && r.SessionID != f.SessionID {
		return false
	}
	return true
}

// Store persists approval records. Resolve is an atomic compare-and-set from
// pending; exactly one concurrent caller wins, the rest get ErrAlreadyResolved.
// Create fails with ErrExists when the id is already stored.
type Store interface {
	Create(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context, filter Filter) ([]*Record, error)
	Resolve(ctx context.Context, id string, status Status, decider, reason string, at time.Time) (*Record, error)
}
