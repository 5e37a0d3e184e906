package events

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Kind 事件类型
type Kind string

const (
	KindClassified       Kind = "classified"
	KindRouted           Kind = "routed"
	KindContextRetrieved Kind = "context_retrieved"
	KindToolInvoked      Kind = "tool_invoked"
	KindToolResult       Kind = "tool_result"
	KindApprovalRequired Kind = "approval_required"
	KindApprovalResolved Kind = "approval_resolved"
	KindAnswered         Kind = "answered"
	KindFailed           Kind = "failed"
)

// Event is emitted once per durable transition. Seq is the checkpoint
// sequence that made the transition durable.
type Event struct {
	SessionID string         `json:"session_id"`
	Seq       int64          `json:"seq"`
	Kind      Kind           `json:"kind"`
	Node      string         `json:"node,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Emitter is a fire-and-forget sink. Implementations must not block the
// caller for long and must never fail the transition that produced the event.
type Emitter interface {
	Emit(ctx context.Context, ev Event)
}

// EmitterFunc 函数适配器
type EmitterFunc func(ctx context.Context, ev Event)

func (f EmitterFunc) Emit(ctx context.Context, ev Event) { f(ctx, ev) }

// Nop discards events.
var Nop Emitter = EmitterFunc(func(context.Context, Event) {})

// MultiEmitter fans an event out to several sinks. A panicking sink is
// logged and skipped.
type MultiEmitter struct {
	sinks  []Emitter
	logger *zap.Logger
}

func NewMultiEmitter(logger *zap.Logger, sinks ...Emitter) *MultiEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MultiEmitter{sinks: sinks, logger: logger.With(zap.String("component", "event_emitter"))}
}

func (m *MultiEmitter) Emit(ctx context.Context, ev Event) {
	for _, s := range m.sinks {
		m.emitSafe(ctx, s, ev)
	}
}

func (m *MultiEmitter) emitSafe(ctx context.Context, s Emitter, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("event sink panicked",
				zap.String("session_id", ev.SessionID),
				zap.String("kind", string(ev.Kind)),
				zap.Any("recover", r))
		}
	}()
	s.Emit(ctx, ev)
}
