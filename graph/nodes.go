package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/FaresOuhachi/HR-Payroll-Agent/checkpoint"
	"github.com/FaresOuhachi/HR-Payroll-Agent/events"
	"github.com/FaresOuhachi/HR-Payroll-Agent/governance"
	"github.com/FaresOuhachi/HR-Payroll-Agent/llm"
	"github.com/FaresOuhachi/HR-Payroll-Agent/specialist"
)

const (
	msgInputRejected    = "I can't process this request because it did not pass input validation."
	msgClassification   = "I couldn't determine how to handle your request. Please try again."
	msgModelUnavailable = "The assistant is temporarily unavailable. Please try again shortly."
	msgModelRefused     = "I'm unable to help with that request."
	msgIterationLimit   = "I could not complete this request within the allowed number of steps."
)

func (e *Engine) execute(ctx context.Context, cp *checkpoint.Record, node Node, s *GraphState) (outcome, error) {
	switch node {
	case NodeStart:
		return e.nodeStart(s), nil
	case NodeClassify:
		return e.nodeClassify(ctx, s)
	case NodeRoute:
		return e.nodeRoute(s), nil
	case NodeSpecialistReason:
		return e.nodeReason(ctx, cp, s)
	case NodeToolGovern:
		return e.nodeGovern(ctx, cp, s)
	case NodeToolExecute:
		return e.nodeExecute(ctx, s)
	case NodeAnswer:
		return e.nodeAnswer(ctx, s)
	default:
		return outcome{}, fmt.Errorf("%w: nothing to step at %s (seq %d)", ErrInvalidSession, node, cp.Seq)
	}
}

// fail moves the run to ANSWER with a failure answer.
func fail(s *GraphState, kind FailureKind, msg string, meta map[string]any, cause error) outcome {
	s.clearPending()
	if meta == nil {
		meta = map[string]any{}
	}
	if cause != nil {
		meta["error"] = cause.Error()
	}
	s.Answer = &Answer{Content: msg, FailureKind: kind, Metadata: meta}
	return outcome{to: NodeAnswer, state: s, cause: cause}
}

// collaboratorFailure classifies an error returned by a model, retriever or
// tool call. Cancellation interrupts the step instead of producing an answer.
func collaboratorFailure(ctx context.Context, err error, fallback FailureKind) (FailureKind, error) {
	if ctx.Err() != nil && !errors.Is(context.Cause(ctx), context.DeadlineExceeded) {
		return "", errInterrupted
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return FailureTimeout, nil
	}
	if errors.Is(err, llm.ErrModelRefused) {
		return FailureModelRefused, nil
	}
	return fallback, nil
}

func (e *Engine) nodeStart(s *GraphState) outcome {
	if s.InputRejection != "" {
		return fail(s, FailureInputRejected, msgInputRejected,
			map[string]any{"reason": s.InputRejection}, nil)
	}
	return outcome{to: NodeClassify, state: s}
}

func (e *Engine) nodeClassify(ctx context.Context, s *GraphState) (outcome, error) {
	input := lastUser(s.History)
	route, err := e.router.Classify(ctx, input, s.History)
	if err != nil {
		kind, ierr := collaboratorFailure(ctx, err, FailureClassification)
		if ierr != nil {
			return outcome{}, ierr
		}
		msg := msgClassification
		if kind == FailureTimeout {
			msg = "The request timed out while classifying it."
		}
		e.logger.Warn("classification failed", zap.Error(err))
		return fail(s, kind, msg, nil, err), nil
	}

	s.Specialist = route.Specialist
	s.Classification = &Classification{
		Specialist: route.Specialist,
		Label:      route.Label,
		Confidence: route.Confidence,
		Fallback:   route.Fallback,
	}
	return outcome{
		to:    NodeRoute,
		state: s,
		events: []pendingEvent{{
			kind: events.KindClassified,
			payload: map[string]any{
				"label":      route.Label,
				"specialist": route.Specialist,
				"confidence": route.Confidence,
				"fallback":   route.Fallback,
			},
		}},
	}, nil
}

func (e *Engine) nodeRoute(s *GraphState) outcome {
	sp, err := e.specialists.Get(s.Specialist)
	if err != nil {
		return fail(s, FailureClassification, msgClassification, nil, err)
	}
	s.Iterations = 0
	return outcome{
		to:    NodeSpecialistReason,
		state: s,
		events: []pendingEvent{{
			kind:    events.KindRouted,
			payload: map[string]any{"specialist": string(sp.Kind()), "tools": len(sp.Tools())},
		}},
	}
}

func (e *Engine) nodeReason(ctx context.Context, cp *checkpoint.Record, s *GraphState) (outcome, error) {
	if s.Iterations >= e.cfg.MaxIterations {
		e.logger.Warn("iteration limit exceeded",
			zap.String("session_id", cp.SessionID),
			zap.String("specialist", s.Specialist),
			zap.Int("iterations", s.Iterations))
		return fail(s, FailureIterationLimitExceeded, msgIterationLimit,
			map[string]any{"iterations": s.Iterations, "max_iterations": e.cfg.MaxIterations}, nil), nil
	}

	sp, err := e.specialists.Get(s.Specialist)
	if err != nil {
		return fail(s, FailureClassification, msgClassification, nil, err), nil
	}
	s.Iterations++

	prop, err := sp.Reason(ctx, specialist.View{
		History:          s.History,
		Context:          s.Context,
		ContextRetrieved: s.ContextRetrieved,
	})
	if err != nil {
		kind, ierr := collaboratorFailure(ctx, err, FailureModelUnavailable)
		if ierr != nil {
			return outcome{}, ierr
		}
		msg := msgModelUnavailable
		switch kind {
		case FailureModelRefused:
			msg = msgModelRefused
		case FailureTimeout:
			msg = "The request timed out while the assistant was reasoning."
		}
		e.logger.Warn("specialist failed", zap.String("specialist", s.Specialist), zap.Error(err))
		return fail(s, kind, msg, map[string]any{"specialist": s.Specialist}, err), nil
	}

	switch prop.Kind {
	case specialist.ProposeToolCall:
		s.PendingToolCall = prop.ToolCall
		return outcome{to: NodeToolGovern, state: s}, nil

	case specialist.ProposeContextQuery:
		snippets, err := e.retrieve(ctx, prop.Query)
		if err != nil {
			return outcome{}, err
		}
		s.Context = snippets
		s.ContextRetrieved = true
		sources := make([]string, 0, len(snippets))
		for _, sn := range snippets {
			sources = append(sources, sn.Source)
		}
		return outcome{
			to:    NodeSpecialistReason,
			state: s,
			events: []pendingEvent{{
				kind:    events.KindContextRetrieved,
				payload: map[string]any{"query": prop.Query, "sources": sources},
			}},
		}, nil

	default:
		s.Answer = &Answer{Content: prop.Answer, Metadata: map[string]any{"specialist": s.Specialist}}
		return outcome{to: NodeAnswer, state: s}, nil
	}
}

// retrieve is best-effort: a failing retriever yields no context.
func (e *Engine) retrieve(ctx context.Context, query string) ([]llm.ContextSnippet, error) {
	if e.retriever == nil {
		return nil, nil
	}
	results, err := e.retriever.Retrieve(ctx, query, e.cfg.RetrievalTopK)
	if err != nil {
		if _, ierr := collaboratorFailure(ctx, err, FailureModelUnavailable); ierr != nil {
			return nil, ierr
		}
		e.logger.Warn("context retrieval failed", zap.String("query", query), zap.Error(err))
		return nil, nil
	}
	out := make([]llm.ContextSnippet, 0, len(results))
	for _, r := range results {
		out = append(out, llm.ContextSnippet{Source: r.Source, Text: r.Text, Score: r.Score})
	}
	return out, nil
}

func (e *Engine) nodeGovern(ctx context.Context, cp *checkpoint.Record, s *GraphState) (outcome, error) {
	call := s.PendingToolCall
	caller := governance.Caller{Principal: s.Caller.Principal, Role: s.Specialist}
	d := e.governor.Evaluate(ctx, caller, call.Name, call.Arguments)
	e.observer.ObserveGovernance(string(d.Verdict))
	call.Risk = d.Risk

	switch d.Verdict {
	case governance.VerdictAllow:
		return outcome{to: NodeToolExecute, state: s}, nil

	case governance.VerdictRequireApproval:
		requester := s.Caller.Principal
		if requester == "" {
			requester = s.Specialist
		}
		// 审批记录指向即将写入的挂起检查点
		rec, err := e.approvals.RequestApproval(ctx, cp.SessionID, cp.Seq+1, *call, requester)
		if err != nil {
			return outcome{}, err
		}
		s.PendingToolCall = nil
		s.PendingApprovalID = rec.ID

		payload := map[string]any{
			"approval_id": rec.ID,
			"tool":        call.Name,
			"risk":        string(d.Risk),
			"reason":      d.Reason,
		}
		if d.Quantity != nil {
			payload["quantity"] = *d.Quantity
		}
		if d.Threshold != nil {
			payload["threshold"] = *d.Threshold
		}
		e.logger.Info("run suspended for approval",
			zap.String("session_id", cp.SessionID),
			zap.String("approval_id", rec.ID),
			zap.String("tool", call.Name),
			zap.String("reason", d.Reason))
		return outcome{
			to:     NodeSuspendedApproval,
			state:  s,
			events: []pendingEvent{{kind: events.KindApprovalRequired, payload: payload}},
		}, nil

	default:
		meta := map[string]any{"tool": call.Name, "reason": d.Reason}
		if len(d.Violations) > 0 {
			fields := make([]string, 0, len(d.Violations))
			for _, v := range d.Violations {
				fields = append(fields, v.Error())
			}
			meta["violations"] = fields
		}
		e.logger.Info("tool call denied",
			zap.String("tool", call.Name),
			zap.String("role", caller.Role),
			zap.String("reason", d.Reason))
		return fail(s, FailureToolDenied,
			fmt.Sprintf("I'm not permitted to run %s: %s", call.Name, d.Reason), meta, nil), nil
	}
}

func (e *Engine) nodeExecute(ctx context.Context, s *GraphState) (outcome, error) {
	call := *s.PendingToolCall
	execCtx := ctx
	if e.cfg.ToolTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, e.cfg.ToolTimeout)
		defer cancel()
	}

	res := e.registry.Execute(execCtx, call)
	if ctx.Err() != nil && !errors.Is(context.Cause(ctx), context.DeadlineExceeded) {
		return outcome{}, errInterrupted
	}

	status := "ok"
	switch {
	case res.TimedOut:
		status = "timeout"
	case res.Failed():
		status = "error"
	}
	e.observer.ObserveToolExecution(call.Name, status, res.Duration)

	evs := []pendingEvent{
		{
			kind:    events.KindToolInvoked,
			payload: map[string]any{"tool": call.Name, "call_id": call.ID, "risk": string(call.Risk)},
		},
		{
			kind: events.KindToolResult,
			payload: map[string]any{
				"tool":        call.Name,
				"call_id":     call.ID,
				"status":      status,
				"duration_ms": res.Duration.Milliseconds(),
			},
		},
	}

	if res.TimedOut {
		o := fail(s, FailureTimeout, fmt.Sprintf("The %s tool timed out.", call.Name),
			map[string]any{"tool": call.Name}, nil)
		o.events = evs
		return o, nil
	}
	if res.Failed() {
		o := fail(s, FailureToolFailure, fmt.Sprintf("I couldn't complete %s: %s", call.Name, res.Error),
			map[string]any{"tool": call.Name}, nil)
		o.events = evs
		return o, nil
	}

	s.PendingToolCall = nil
	s.appendMessage(llm.Message{
		Role:       llm.RoleTool,
		Name:       call.Name,
		ToolCallID: call.ID,
		Content:    string(res.Result),
	})
	return outcome{to: NodeSpecialistReason, state: s, events: evs}, nil
}

func (e *Engine) nodeAnswer(ctx context.Context, s *GraphState) (outcome, error) {
	ans := s.Answer
	if e.guard != nil {
		check, err := e.guard.CheckOutput(context.WithoutCancel(ctx), ans.Content)
		if err != nil {
			return outcome{}, err
		}
		if check.Modified {
			if ans.Metadata == nil {
				ans.Metadata = map[string]any{}
			}
			ans.Metadata["output_modified"] = true
			ans.Content = check.Text
		}
	}
	s.appendMessage(llm.Message{Role: llm.RoleAssistant, Content: ans.Content})

	kind := events.KindAnswered
	payload := map[string]any{"content": ans.Content}
	if ans.Failed() {
		kind = events.KindFailed
		payload["failure_kind"] = string(ans.FailureKind)
	}
	e.logger.Info("run answered",
		zap.String("specialist", s.Specialist),
		zap.String("failure_kind", string(ans.FailureKind)))
	return outcome{to: NodeTerminal, state: s, events: []pendingEvent{{kind: kind, payload: payload}}}, nil
}

func lastUser(history []llm.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == llm.RoleUser {
			return strings.TrimSpace(history[i].Content)
		}
	}
	return ""
}
