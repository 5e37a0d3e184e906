package graph

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FaresOuhachi/HR-Payroll-Agent/approval"
	"github.com/FaresOuhachi/HR-Payroll-Agent/checkpoint"
	"github.com/FaresOuhachi/HR-Payroll-Agent/config"
	"github.com/FaresOuhachi/HR-Payroll-Agent/events"
	"github.com/FaresOuhachi/HR-Payroll-Agent/governance"
	"github.com/FaresOuhachi/HR-Payroll-Agent/guardrails"
	"github.com/FaresOuhachi/HR-Payroll-Agent/llm"
	"github.com/FaresOuhachi/HR-Payroll-Agent/payroll"
	"github.com/FaresOuhachi/HR-Payroll-Agent/retrieval"
	"github.com/FaresOuhachi/HR-Payroll-Agent/router"
	"github.com/FaresOuhachi/HR-Payroll-Agent/specialist"
)

var demoDepartments = []string{"Engineering", "Sales", "Finance", "HR"}

type harness struct {
	engine    *Engine
	store     checkpoint.Store
	approvals *approval.Workflow
	apStore   approval.Store
	registry  *governance.Registry
	governor  *governance.Governor
	emitter   *recordingEmitter
	observer  *recordingObserver
}

type harnessConfig struct {
	classifier llm.Classifier
	generator  llm.Generator
	store      checkpoint.Store
	apStore    approval.Store
	engine     config.EngineConfig
	noGuard    bool
}

type harnessOption func(*harnessConfig)

func withClassifier(c llm.Classifier) harnessOption {
	return func(hc *harnessConfig) { hc.classifier = c }
}

func withGenerator(g llm.Generator) harnessOption {
	return func(hc *harnessConfig) { hc.generator = g }
}

func withStore(s checkpoint.Store) harnessOption {
	return func(hc *harnessConfig) { hc.store = s }
}

func withApprovalStore(s approval.Store) harnessOption {
	return func(hc *harnessConfig) { hc.apStore = s }
}

func withEngineConfig(f func(*config.EngineConfig)) harnessOption {
	return func(hc *harnessConfig) { f(&hc.engine) }
}

// fixedClassifier always returns label with the given confidence.
func fixedClassifier(label string, confidence float64) llm.Classifier {
	return llm.ClassifierFunc(func(context.Context, string) (*llm.Classification, error) {
		return &llm.Classification{Label: label, Confidence: confidence}, nil
	})
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	hc := harnessConfig{
		classifier: llm.NewRuleClassifier(),
		generator:  llm.NewRuleGenerator(demoDepartments),
		store:      checkpoint.NewMemoryStore(),
		apStore:    approval.NewMemoryStore(),
		engine:     config.DefaultEngineConfig(),
	}
	for _, o := range opts {
		o(&hc)
	}

	logger := zap.NewNop()
	reg := governance.NewRegistry(logger)
	svc := payroll.NewService(payroll.NewMemoryDirectory(payroll.DemoEmployees()), 0)
	require.NoError(t, svc.Register(reg))

	gcfg := config.DefaultGovernanceConfig()
	gov := governance.NewGovernor(reg, governance.NewPolicy(gcfg.Allowlists, gcfg.Thresholds), logger)
	specs := specialist.NewSet(specialist.Options{Generator: hc.generator, Governor: gov, Logger: logger})
	rcfg := config.DefaultRouterConfig()
	rt := router.New(hc.classifier, router.Config{
		Threshold: rcfg.ConfidenceThreshold,
		Fallback:  rcfg.FallbackSpecialist,
		Known:     specs.Names(),
	}, logger)
	wf := approval.NewWorkflow(hc.apStore, logger)

	var guard *guardrails.Guard
	if !hc.noGuard {
		guard = guardrails.New(config.DefaultGuardrailsConfig(), logger)
	}

	h := &harness{
		store:     hc.store,
		approvals: wf,
		apStore:   hc.apStore,
		registry:  reg,
		governor:  gov,
		emitter:   &recordingEmitter{},
		observer:  newRecordingObserver(),
	}
	eng, err := New(Options{
		Store:       hc.store,
		Router:      rt,
		Specialists: specs,
		Governor:    gov,
		Registry:    reg,
		Approvals:   wf,
		Retriever:   retrieval.NewHandbook(retrieval.DefaultPolicies(), logger),
		Guard:       guard,
		Emitter:     h.emitter,
		Observer:    h.observer,
		Config:      hc.engine,
		Logger:      logger,
	})
	require.NoError(t, err)
	h.engine = eng
	return h
}

func (h *harness) nodes(t *testing.T, sessionID string) []Node {
	t.Helper()
	snaps, err := h.engine.History(context.Background(), sessionID)
	require.NoError(t, err)
	out := make([]Node, 0, len(snaps))
	for i, s := range snaps {
		require.Equal(t, int64(i), s.Seq, "sequence gap at index %d", i)
		out = append(out, s.Node)
	}
	return out
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingEmitter) Emit(_ context.Context, ev events.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingEmitter) kinds(sessionID string) []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Kind
	for _, ev := range r.events {
		if ev.SessionID == sessionID {
			out = append(out, ev.Kind)
		}
	}
	return out
}

type recordingObserver struct {
	mu          sync.Mutex
	transitions int
	runs        map[string]int
	verdicts    map[string]int
	approvals   map[string]int
	writeErrors int
	tools       map[string]int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		runs:      map[string]int{},
		verdicts:  map[string]int{},
		approvals: map[string]int{},
		tools:     map[string]int{},
	}
}

func (o *recordingObserver) ObserveTransition(string, string) {
	o.mu.Lock()
	o.transitions++
	o.mu.Unlock()
}

func (o *recordingObserver) ObserveRun(outcome string, _ time.Duration) {
	o.mu.Lock()
	o.runs[outcome]++
	o.mu.Unlock()
}

func (o *recordingObserver) ObserveGovernance(verdict string) {
	o.mu.Lock()
	o.verdicts[verdict]++
	o.mu.Unlock()
}

func (o *recordingObserver) ObserveApproval(status string) {
	o.mu.Lock()
	o.approvals[status]++
	o.mu.Unlock()
}

func (o *recordingObserver) ObserveCheckpointWrite(_ time.Duration, err error) {
	if err != nil {
		o.mu.Lock()
		o.writeErrors++
		o.mu.Unlock()
	}
}

func (o *recordingObserver) ObserveToolExecution(tool, _ string, _ time.Duration) {
	o.mu.Lock()
	o.tools[tool]++
	o.mu.Unlock()
}

func (o *recordingObserver) toolCount(tool string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.tools[tool]
}

// flakyStore fails the first write at failSeq.
type flakyStore struct {
	checkpoint.Store
	mu      sync.Mutex
	failSeq int64
	failed  bool
}

var errInjected = errors.New("injected write failure")

func (s *flakyStore) Write(ctx context.Context, rec *checkpoint.Record) error {
	s.mu.Lock()
	if !s.failed && rec.Seq == s.failSeq {
		s.failed = true
		s.mu.Unlock()
		return errInjected
	}
	s.mu.Unlock()
	return s.Store.Write(ctx, rec)
}
