package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/FaresOuhachi/HR-Payroll-Agent/approval"
	"github.com/FaresOuhachi/HR-Payroll-Agent/checkpoint"
	"github.com/FaresOuhachi/HR-Payroll-Agent/config"
	"github.com/FaresOuhachi/HR-Payroll-Agent/events"
	"github.com/FaresOuhachi/HR-Payroll-Agent/governance"
	"github.com/FaresOuhachi/HR-Payroll-Agent/guardrails"
	"github.com/FaresOuhachi/HR-Payroll-Agent/internal/ctxkeys"
	"github.com/FaresOuhachi/HR-Payroll-Agent/llm"
	"github.com/FaresOuhachi/HR-Payroll-Agent/retrieval"
	"github.com/FaresOuhachi/HR-Payroll-Agent/router"
	"github.com/FaresOuhachi/HR-Payroll-Agent/specialist"
	"github.com/FaresOuhachi/HR-Payroll-Agent/types"
)

const tracerName = "github.com/FaresOuhachi/HR-Payroll-Agent/graph"

// RunStatus 一次运行结束时的状态
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunSuspended RunStatus = "suspended"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// RunResult is returned by Start, Resume and Recover once the run reaches
// TERMINAL or SUSPENDED_APPROVAL.
type RunResult struct {
	SessionID      string          `json:"session_id"`
	Seq            int64           `json:"seq"`
	Node           Node            `json:"node"`
	Status         RunStatus       `json:"status"`
	Specialist     string          `json:"specialist,omitempty"`
	Classification *Classification `json:"classification,omitempty"`
	Answer         *Answer         `json:"answer,omitempty"`
	ApprovalID     string          `json:"approval_id,omitempty"`
	Turn           int             `json:"turn"`
	Events         []events.Event  `json:"events,omitempty"`
}

// Options 执行引擎依赖。Retriever、Guard、Emitter、Lock、Observer 可选。
type Options struct {
	Store       checkpoint.Store
	Router      *router.Router
	Specialists *specialist.Set
	Governor    *governance.Governor
	Registry    *governance.Registry
	Approvals   *approval.Workflow
	Retriever   retrieval.Retriever
	Guard       *guardrails.Guard
	Emitter     events.Emitter
	Lock        RunLock
	Observer    Observer
	Config      config.EngineConfig
	// RetainCheckpoints 终止后每个会话保留的检查点数量，0 表示不裁剪
	RetainCheckpoints int
	Logger            *zap.Logger
}

type activeRun struct {
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// cancelError is the context cause of a run interrupted by Cancel.
type cancelError struct{ reason string }

func (e cancelError) Error() string        { return "run cancelled: " + e.reason }
func (e cancelError) Is(target error) bool { return target == ErrCancelled }

// errInterrupted is returned by a node whose collaborator was cut short by
// cancellation; the run loop then writes the cancellation checkpoint.
var errInterrupted = errors.New("step interrupted")

// Engine 执行图引擎
type Engine struct {
	store       checkpoint.Store
	router      *router.Router
	specialists *specialist.Set
	governor    *governance.Governor
	registry    *governance.Registry
	approvals   *approval.Workflow
	retriever   retrieval.Retriever
	guard       *guardrails.Guard
	emitter     events.Emitter
	lock        RunLock
	observer    Observer
	cfg         config.EngineConfig
	retain      int
	tracer      trace.Tracer
	logger      *zap.Logger
	now         func() time.Time

	mu     sync.Mutex
	active map[string]*activeRun
}

// New 创建执行引擎，并把审批决定绑定到 Resume
func New(opts Options) (*Engine, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("graph: checkpoint store is required")
	case opts.Router == nil:
		return nil, errors.New("graph: router is required")
	case opts.Specialists == nil:
		return nil, errors.New("graph: specialists are required")
	case opts.Governor == nil || opts.Registry == nil:
		return nil, errors.New("graph: governor and tool registry are required")
	case opts.Approvals == nil:
		return nil, errors.New("graph: approval workflow is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := opts.Config
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = config.DefaultEngineConfig().MaxIterations
	}
	if cfg.RetrievalTopK <= 0 {
		cfg.RetrievalTopK = config.DefaultEngineConfig().RetrievalTopK
	}

	e := &Engine{
		store:       opts.Store,
		router:      opts.Router,
		specialists: opts.Specialists,
		governor:    opts.Governor,
		registry:    opts.Registry,
		approvals:   opts.Approvals,
		retriever:   opts.Retriever,
		guard:       opts.Guard,
		emitter:     opts.Emitter,
		lock:        opts.Lock,
		observer:    opts.Observer,
		cfg:         cfg,
		retain:      opts.RetainCheckpoints,
		tracer:      otel.Tracer(tracerName),
		logger:      logger.With(zap.String("component", "graph_engine")),
		now:         time.Now,
		active:      make(map[string]*activeRun),
	}
	if e.emitter == nil {
		e.emitter = events.Nop
	}
	if e.lock == nil {
		e.lock = NewMemoryRunLock()
	}
	if e.observer == nil {
		e.observer = nopObserver{}
	}

	opts.Approvals.OnDecision(func(ctx context.Context, id string, d approval.Decision) error {
		_, err := e.Resume(ctx, id, d)
		return err
	})
	return e, nil
}

// =============================================================================
// 运行入口
// =============================================================================

// Start begins a turn on sessionID. A new session starts at sequence 0; a
// terminal or suspended session continues its chain with its history.
func (e *Engine) Start(ctx context.Context, sessionID, input string, caller governance.Caller) (*RunResult, error) {
	if sessionID == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "session id is required")
	}

	runCtx, end, err := e.begin(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer end()

	state := &GraphState{}
	var seq int64
	latest, err := e.store.ReadLatest(runCtx, sessionID)
	switch {
	case errors.Is(err, checkpoint.ErrNoSuchSession):
	case err != nil:
		return nil, fmt.Errorf("read latest checkpoint: %w", err)
	default:
		node := Node(latest.Node)
		if !node.Terminal() && node != NodeSuspendedApproval {
			return nil, fmt.Errorf("%w: session %s is stranded at %s (seq %d), recover it first",
				ErrInvalidSession, sessionID, node, latest.Seq)
		}
		if state, err = decodeState(latest.State); err != nil {
			return nil, err
		}
		if node == NodeSuspendedApproval {
			if err := e.retireApproval(runCtx, sessionID, state.PendingApprovalID, "superseded by a new turn"); err != nil {
				return nil, err
			}
		}
		seq = latest.Seq + 1
		state.clearPending()
		state.Specialist = ""
		state.Classification = nil
		state.Context = nil
		state.ContextRetrieved = false
		state.InputRejection = ""
		state.Iterations = 0
	}

	text, rejection, err := e.checkInput(runCtx, input)
	if err != nil {
		return nil, err
	}
	state.Turn++
	state.Caller = caller
	state.InputRejection = rejection
	state.appendMessage(llm.Message{Role: llm.RoleUser, Content: text})

	cp, err := e.write(runCtx, sessionID, seq, NodeStart, state)
	if err != nil {
		return nil, err
	}
	e.logger.Info("run started", append([]zap.Field{
		zap.String("session_id", sessionID),
		zap.Int64("seq", seq),
		zap.Int("turn", state.Turn),
	}, ctxkeys.Fields(ctx)...)...)
	return e.drive(runCtx, cp, nil)
}

// Resume applies a human decision to a suspended run. The compare-and-set
// on the approval record happens first, so of two concurrent calls exactly
// one proceeds and the other fails with approval.ErrAlreadyResolved.
func (e *Engine) Resume(ctx context.Context, approvalID string, d approval.Decision) (*RunResult, error) {
	rec, err := e.approvals.Get(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	if !rec.Pending() {
		return nil, fmt.Errorf("%w: %s is %s", approval.ErrAlreadyResolved, approvalID, rec.Status)
	}

	resolved, err := e.approvals.Resolve(ctx, approvalID, d)
	if err != nil {
		return nil, err
	}
	e.observer.ObserveApproval(string(resolved.Status))

	runCtx, end, err := e.begin(ctx, resolved.SessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: decision on %s recorded but not applied", err, approvalID)
	}
	defer end()
	return e.applyDecision(runCtx, resolved)
}

// Recover re-steps a stranded run from its last durable checkpoint. A
// suspended session whose approval was already decided is resumed.
func (e *Engine) Recover(ctx context.Context, sessionID string) (*RunResult, error) {
	runCtx, end, err := e.begin(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer end()

	latest, err := e.store.ReadLatest(runCtx, sessionID)
	if err != nil {
		return nil, err
	}

	switch Node(latest.Node) {
	case NodeTerminal:
		return e.result(latest, nil)
	case NodeSuspendedApproval:
		state, err := decodeState(latest.State)
		if err != nil {
			return nil, err
		}
		rec, err := e.approvals.Get(runCtx, state.PendingApprovalID)
		if err != nil {
			return nil, err
		}
		if rec.Pending() {
			return e.result(latest, nil)
		}
		e.logger.Info("applying recorded approval decision",
			zap.String("session_id", sessionID),
			zap.String("approval_id", rec.ID),
			zap.String("status", string(rec.Status)))
		return e.applyDecision(runCtx, rec)
	default:
		e.logger.Info("recovering run",
			zap.String("session_id", sessionID),
			zap.Int64("seq", latest.Seq),
			zap.String("node", latest.Node))
		return e.drive(runCtx, latest, nil)
	}
}

// Cancel marks the session terminal with a cancellation answer. A run in
// flight in this process is interrupted and writes the terminal checkpoint
// itself. Cancelling a terminal session returns its current result.
func (e *Engine) Cancel(ctx context.Context, sessionID, reason string) (*RunResult, error) {
	if reason == "" {
		reason = "cancelled by request"
	}

	e.mu.Lock()
	run := e.active[sessionID]
	e.mu.Unlock()
	if run != nil {
		run.cancel(cancelError{reason: reason})
		select {
		case <-run.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	release, err := e.lock.Acquire(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrLockHeld) {
			return nil, fmt.Errorf("%w: session %s is running in another process", ErrInvalidSession, sessionID)
		}
		return nil, err
	}
	defer release()

	latest, err := e.store.ReadLatest(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if Node(latest.Node).Terminal() {
		return e.result(latest, nil)
	}
	cp, evs, err := e.cancelAt(ctx, latest, reason)
	if err != nil {
		return nil, err
	}
	return e.result(cp, evs)
}

// Step executes exactly one node and durably writes the next checkpoint at
// cp.Seq+1 before returning it. Nothing is emitted when the write fails.
func (e *Engine) Step(ctx context.Context, cp *checkpoint.Record) (*checkpoint.Record, []events.Event, error) {
	next, evs, _, err := e.step(ctx, cp)
	return next, evs, err
}

// =============================================================================
// 运行循环
// =============================================================================

// begin takes the run lock and registers a cancellable run context. end
// releases the lock before signalling waiters in Cancel.
func (e *Engine) begin(ctx context.Context, sessionID string) (context.Context, func(), error) {
	release, err := e.lock.Acquire(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrLockHeld) {
			return nil, nil, fmt.Errorf("%w: a run is already in progress for session %s", ErrInvalidSession, sessionID)
		}
		return nil, nil, err
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	var stop context.CancelFunc = func() {}
	if e.cfg.RunTimeout > 0 {
		runCtx, stop = context.WithTimeout(runCtx, e.cfg.RunTimeout)
	}
	run := &activeRun{cancel: cancel, done: make(chan struct{})}

	e.mu.Lock()
	e.active[sessionID] = run
	e.mu.Unlock()

	var once sync.Once
	end := func() {
		once.Do(func() {
			stop()
			cancel(nil)
			e.mu.Lock()
			if e.active[sessionID] == run {
				delete(e.active, sessionID)
			}
			e.mu.Unlock()
			release()
			close(run.done)
		})
	}
	return runCtx, end, nil
}

// drive steps until TERMINAL or SUSPENDED_APPROVAL.
func (e *Engine) drive(ctx context.Context, cp *checkpoint.Record, collected []events.Event) (*RunResult, error) {
	started := time.Now()
	var cause error

	for {
		node := Node(cp.Node)
		if node.Terminal() || node == NodeSuspendedApproval {
			break
		}

		if ctx.Err() != nil {
			why := context.Cause(ctx)
			if !errors.Is(why, context.DeadlineExceeded) {
				next, evs, err := e.cancelAt(ctx, cp, cancelReason(why))
				if err != nil {
					return nil, err
				}
				collected = append(collected, evs...)
				cp = next
				continue
			}
			if node != NodeAnswer {
				next, err := e.forceAnswer(ctx, cp, FailureTimeout, "The request timed out before it could be completed.")
				if err != nil {
					return nil, err
				}
				cp = next
				continue
			}
		}

		next, evs, stepCause, err := e.step(ctx, cp)
		if errors.Is(err, errInterrupted) {
			continue
		}
		if err != nil {
			e.observer.ObserveRun("error", time.Since(started))
			return nil, err
		}
		collected = append(collected, evs...)
		if stepCause != nil {
			cause = stepCause
		}
		cp = next
	}

	result, err := e.result(cp, collected)
	if err != nil {
		return nil, err
	}
	e.observer.ObserveRun(string(result.Status), time.Since(started))

	if result.Node.Terminal() {
		e.prune(ctx, cp.SessionID)
	}
	if result.Answer.Failed() {
		if ferr := failureError(result.Answer.FailureKind, cause); ferr != nil {
			return result, ferr
		}
	}
	return result, nil
}

func cancelReason(cause error) string {
	var ce cancelError
	if errors.As(cause, &ce) {
		return ce.reason
	}
	if cause == nil {
		return "context cancelled"
	}
	return cause.Error()
}

// applyDecision moves a suspended session forward with a resolved approval.
// The state is reloaded from the suspension checkpoint.
func (e *Engine) applyDecision(ctx context.Context, rec *approval.Record) (*RunResult, error) {
	latest, err := e.store.ReadLatest(ctx, rec.SessionID)
	if err != nil {
		return nil, err
	}
	if latest.Seq != rec.Seq || Node(latest.Node) != NodeSuspendedApproval {
		return nil, fmt.Errorf("%w: session %s moved past approval %s (now seq %d at %s); decision recorded",
			ErrInvalidSession, rec.SessionID, rec.ID, latest.Seq, latest.Node)
	}

	cp, err := e.store.ReadAt(ctx, rec.SessionID, rec.Seq)
	if err != nil {
		return nil, err
	}
	state, err := decodeState(cp.State)
	if err != nil {
		return nil, err
	}
	if state.PendingApprovalID != rec.ID {
		return nil, fmt.Errorf("%w: session %s is suspended on %s, not %s",
			ErrInvalidSession, rec.SessionID, state.PendingApprovalID, rec.ID)
	}
	state.PendingApprovalID = ""

	var to Node
	switch rec.Status {
	case approval.StatusApproved:
		call := rec.ToolCall
		state.PendingToolCall = &call
		to = NodeToolExecute
	case approval.StatusRejected:
		msg := fmt.Sprintf("The request to run %s was rejected by an approver.", rec.ToolCall.Name)
		if rec.Reason != "" {
			msg += " Reason: " + rec.Reason
		}
		state.Answer = &Answer{
			Content:     msg,
			FailureKind: FailureToolDenied,
			Metadata: map[string]any{
				"approval_id": rec.ID,
				"decision":    string(rec.Status),
				"tool":        rec.ToolCall.Name,
			},
		}
		to = NodeAnswer
	default:
		return nil, fmt.Errorf("%w: approval %s is still pending", ErrInvalidSession, rec.ID)
	}

	next, err := e.transition(ctx, cp, to, state)
	if err != nil {
		return nil, err
	}
	evs := e.emit(ctx, next, NodeSuspendedApproval, []pendingEvent{{
		kind: events.KindApprovalResolved,
		payload: map[string]any{
			"approval_id": rec.ID,
			"status":      string(rec.Status),
			"decider":     rec.Decider,
			"tool":        rec.ToolCall.Name,
		},
	}})
	e.logger.Info("approval applied",
		zap.String("session_id", rec.SessionID),
		zap.String("approval_id", rec.ID),
		zap.String("status", string(rec.Status)))
	return e.drive(ctx, next, evs)
}

// cancelAt writes the cancellation TERMINAL checkpoint after cp.
func (e *Engine) cancelAt(ctx context.Context, cp *checkpoint.Record, reason string) (*checkpoint.Record, []events.Event, error) {
	state, err := decodeState(cp.State)
	if err != nil {
		return nil, nil, err
	}
	meta := map[string]any{"reason": reason, "cancelled_at": cp.Node}
	if state.PendingApprovalID != "" {
		meta["approval_id"] = state.PendingApprovalID
		if err := e.retireApproval(ctx, cp.SessionID, state.PendingApprovalID, "cancelled"); err != nil {
			return nil, nil, err
		}
	}
	state.clearPending()
	state.Answer = &Answer{
		Content:     "The run was cancelled: " + reason,
		FailureKind: FailureCancelled,
		Metadata:    meta,
	}

	next, err := e.transition(ctx, cp, NodeTerminal, state)
	if err != nil {
		return nil, nil, err
	}
	e.logger.Warn("run cancelled",
		zap.String("session_id", cp.SessionID),
		zap.String("node", cp.Node),
		zap.String("reason", reason))
	evs := e.emit(ctx, next, Node(cp.Node), []pendingEvent{{
		kind:    events.KindFailed,
		payload: map[string]any{"failure_kind": string(FailureCancelled), "reason": reason},
	}})
	return next, evs, nil
}

// systemDecider 引擎自行关闭审批时记录的决定者
const systemDecider = "system"

// retireApproval rejects the pending approval of a suspension the session is
// leaving, so no approver can act on it afterwards. A decision an approver
// already recorded is never overwritten: the caller gets ErrInvalidSession
// and the session has to be recovered to apply it.
func (e *Engine) retireApproval(ctx context.Context, sessionID, approvalID, reason string) error {
	if approvalID == "" {
		return nil
	}
	_, err := e.approvals.Resolve(ctx, approvalID, approval.Decision{
		Verdict: approval.VerdictReject,
		Decider: systemDecider,
		Reason:  reason,
	})
	switch {
	case err == nil:
		e.observer.ObserveApproval(string(approval.StatusRejected))
		e.logger.Info("pending approval retired",
			zap.String("session_id", sessionID),
			zap.String("approval_id", approvalID),
			zap.String("reason", reason))
		return nil
	case errors.Is(err, approval.ErrNotFound):
		e.logger.Warn("suspended on an unknown approval",
			zap.String("session_id", sessionID),
			zap.String("approval_id", approvalID))
		return nil
	case errors.Is(err, approval.ErrAlreadyResolved):
		return fmt.Errorf("%w: approval %s on session %s is already decided, recover the session to apply it",
			ErrInvalidSession, approvalID, sessionID)
	default:
		return fmt.Errorf("retire approval %s: %w", approvalID, err)
	}
}

// forceAnswer replaces the pending work of cp with a failure answer.
func (e *Engine) forceAnswer(ctx context.Context, cp *checkpoint.Record, kind FailureKind, msg string) (*checkpoint.Record, error) {
	state, err := decodeState(cp.State)
	if err != nil {
		return nil, err
	}
	state.clearPending()
	state.Answer = &Answer{Content: msg, FailureKind: kind, Metadata: map[string]any{"node": cp.Node}}
	return e.transition(ctx, cp, NodeAnswer, state)
}

// =============================================================================
// 单步执行
// =============================================================================

type pendingEvent struct {
	kind    events.Kind
	payload map[string]any
}

// outcome is what a node decided; it becomes durable only after the write.
type outcome struct {
	to     Node
	state  *GraphState
	events []pendingEvent
	cause  error
}

func (e *Engine) step(ctx context.Context, cp *checkpoint.Record) (*checkpoint.Record, []events.Event, error, error) {
	ctx, span := e.tracer.Start(ctx, "graph.step", trace.WithAttributes(
		attribute.String("session.id", cp.SessionID),
		attribute.String("graph.node", cp.Node),
		attribute.Int64("checkpoint.seq", cp.Seq),
	))
	defer span.End()

	state, err := decodeState(cp.State)
	if err != nil {
		return nil, nil, nil, err
	}
	from := Node(cp.Node)

	out, err := e.execute(ctx, cp, from, state)
	if err != nil {
		if !errors.Is(err, errInterrupted) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, nil, nil, err
	}

	next, err := e.transition(ctx, cp, out.to, out.state)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, nil, err
	}
	span.SetAttributes(attribute.String("graph.next_node", next.Node))
	return next, e.emit(ctx, next, from, out.events), out.cause, nil
}

// transition validates and durably writes the checkpoint after cp.
func (e *Engine) transition(ctx context.Context, cp *checkpoint.Record, to Node, state *GraphState) (*checkpoint.Record, error) {
	from := Node(cp.Node)
	if !CanTransition(from, to) {
		return nil, ErrInvalidTransition{From: from, To: to}
	}
	if err := state.checkInvariant(to); err != nil {
		return nil, err
	}
	next, err := e.write(ctx, cp.SessionID, cp.Seq+1, to, state)
	if err != nil {
		return nil, err
	}
	e.observer.ObserveTransition(string(from), string(to))
	e.logger.Debug("transition",
		zap.String("session_id", cp.SessionID),
		zap.Int64("seq", next.Seq),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	return next, nil
}

// write persists a checkpoint even when the run context is already done.
func (e *Engine) write(ctx context.Context, sessionID string, seq int64, node Node, state *GraphState) (*checkpoint.Record, error) {
	raw, err := encodeState(state)
	if err != nil {
		return nil, err
	}
	rec := &checkpoint.Record{
		SessionID: sessionID,
		Seq:       seq,
		Node:      string(node),
		State:     raw,
		CreatedAt: e.now(),
	}

	started := time.Now()
	err = e.store.Write(context.WithoutCancel(ctx), rec)
	e.observer.ObserveCheckpointWrite(time.Since(started), err)
	if err != nil {
		e.logger.Error("checkpoint write failed",
			zap.String("session_id", sessionID),
			zap.Int64("seq", seq),
			zap.String("node", string(node)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: session %s seq %d: %w", ErrCheckpointWrite, sessionID, seq, err)
	}
	return rec, nil
}

// emit publishes events for a durable checkpoint. Sinks never fail the step.
func (e *Engine) emit(ctx context.Context, cp *checkpoint.Record, from Node, pending []pendingEvent) []events.Event {
	if len(pending) == 0 {
		return nil
	}
	out := make([]events.Event, 0, len(pending))
	ectx := context.WithoutCancel(ctx)
	for _, p := range pending {
		ev := events.Event{
			SessionID: cp.SessionID,
			Seq:       cp.Seq,
			Kind:      p.kind,
			Node:      string(from),
			Payload:   p.payload,
			Timestamp: cp.CreatedAt,
		}
		e.emitter.Emit(ectx, ev)
		out = append(out, ev)
	}
	return out
}

func (e *Engine) prune(ctx context.Context, sessionID string) {
	if e.retain <= 0 {
		return
	}
	n, err := e.store.Prune(context.WithoutCancel(ctx), sessionID, e.retain)
	if err != nil {
		e.logger.Warn("checkpoint prune failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	if n > 0 {
		e.logger.Debug("checkpoints pruned", zap.String("session_id", sessionID), zap.Int("removed", n))
	}
}

// checkInput runs the input guardrails. A rejected input is still recorded,
// redacted, so the refusal answer has a turn to belong to.
func (e *Engine) checkInput(ctx context.Context, input string) (string, string, error) {
	if e.guard == nil {
		if input == "" {
			return "", "", types.NewError(types.ErrInvalidRequest, "input is required")
		}
		return input, "", nil
	}
	check, err := e.guard.CheckInput(ctx, input)
	if err != nil {
		return "", "", err
	}
	if check.Rejected {
		return e.guard.RedactPII(input), check.Reason, nil
	}
	return check.Text, "", nil
}

func (e *Engine) result(cp *checkpoint.Record, evs []events.Event) (*RunResult, error) {
	state, err := decodeState(cp.State)
	if err != nil {
		return nil, err
	}
	r := &RunResult{
		SessionID:      cp.SessionID,
		Seq:            cp.Seq,
		Node:           Node(cp.Node),
		Specialist:     state.Specialist,
		Classification: state.Classification,
		Answer:         state.Answer,
		ApprovalID:     state.PendingApprovalID,
		Turn:           state.Turn,
		Events:         evs,
	}
	switch {
	case r.Node == NodeSuspendedApproval:
		r.Status = RunSuspended
	case r.Answer != nil && r.Answer.FailureKind == FailureCancelled:
		r.Status = RunCancelled
	case r.Answer.Failed():
		r.Status = RunFailed
	default:
		r.Status = RunCompleted
	}
	return r, nil
}
