package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoSuchSession is returned by ReadLatest when a session has no checkpoints.
	ErrNoSuchSession = errors.New("no such session")
	// ErrNotFound is returned by ReadAt for a missing sequence.
	ErrNotFound = errors.New("checkpoint not found")
	// ErrSequenceConflict is returned when a write is not exactly latest+1.
	ErrSequenceConflict = errors.New("checkpoint sequence conflict")
	// ErrInvalidRecord is returned for records missing a session id or state.
	ErrInvalidRecord = errors.New("invalid checkpoint record")
)

// Record is one immutable snapshot in a session's chain. State is the
// serialized graph state; the store never interprets it.
type Record struct {
	SessionID string          `json:"session_id"`
	Seq       int64           `json:"seq"`
	Node      string          `json:"node"`
	State     json.RawMessage `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
}

func (r *Record) validate() error {
	if r == nil || r.SessionID == "" {
		return fmt.Errorf("%w: session id is required", ErrInvalidRecord)
	}
	if r.Seq < 0 {
		return fmt.Errorf("%w: negative sequence %d", ErrInvalidRecord, r.Seq)
	}
	if len(r.State) == 0 {
		return fmt.Errorf("%w: empty state", ErrInvalidRecord)
	}
	return nil
}

func (r *Record) clone() *Record {
	c := *r
	c.State = append(json.RawMessage(nil), r.State...)
	return &c
}

// Store is the durable checkpoint chain consumed by the execution graph.
//
// Write is atomic per session: it succeeds only when rec.Seq is exactly one
// past the current latest (0 for a new session) and otherwise fails with
// ErrSequenceConflict without side effects. Stores never lock across sessions.
type Store interface {
	Write(ctx context.Context, rec *Record) error
	ReadLatest(ctx context.Context, sessionID string) (*Record, error)
	ReadAt(ctx context.Context, sessionID string, seq int64) (*Record, error)
	// List returns the retained chain in ascending sequence order.
	List(ctx context.Context, sessionID string) ([]*Record, error)
	// Prune drops all but the newest keep records and reports how many were
	// removed. The latest record is always retained.
	Prune(ctx context.Context, sessionID string, keep int) (int, error)
	Ping(ctx context.Context) error
	Close() error
}
