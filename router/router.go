package router

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/FaresOuhachi/HR-Payroll-Agent/llm"
)

// ErrClassificationFailure wraps any classifier error.
var ErrClassificationFailure = errors.New("classification failure")

// Route 路由结果
type Route struct {
	Specialist string  `json:"specialist"`
	Confidence float64 `json:"confidence"`
	Label      string  `json:"label"`
	Fallback   bool    `json:"fallback"`
	Reason     string  `json:"reason,omitempty"`
}

// Config 路由策略
type Config struct {
	Threshold float64
	Fallback  string
	Known     []string
}

// Router thresholds classifier output. It adds no randomness: the same
// classification always yields the same route.
type Router struct {
	classifier llm.Classifier
	mu         sync.RWMutex
	threshold  float64
	fallback   string
	known      map[string]bool
	logger     *zap.Logger
}

func New(classifier llm.Classifier, cfg Config, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Fallback == "" {
		cfg.Fallback = "general"
	}
	known := make(map[string]bool, len(cfg.Known)+1)
	for _, k := range cfg.Known {
		known[k] = true
	}
	known[cfg.Fallback] = true
	return &Router{
		classifier: classifier,
		threshold:  cfg.Threshold,
		fallback:   cfg.Fallback,
		known:      known,
		logger:     logger.With(zap.String("component", "router")),
	}
}

// Classify calls the classifier once. The history is not sent to the
// classifier; it is accepted so callers can pass GraphState through unchanged.
func (r *Router) Classify(ctx context.Context, input string, _ []llm.Message) (Route, error) {
	c, err := r.classifier.Classify(ctx, input)
	if err != nil {
		return Route{}, fmt.Errorf("%w: %w", ErrClassificationFailure, err)
	}
	if c == nil {
		return Route{}, fmt.Errorf("%w: empty classification", ErrClassificationFailure)
	}
	route := r.decide(*c)
	r.logger.Debug("classified",
		zap.String("label", c.Label),
		zap.Float64("confidence", c.Confidence),
		zap.String("specialist", route.Specialist),
		zap.Bool("fallback", route.Fallback))
	return route, nil
}

// SetThreshold 更新置信度阈值（配置热重载）
func (r *Router) SetThreshold(v float64) {
	r.mu.Lock()
	old := r.threshold
	r.threshold = v
	r.mu.Unlock()
	r.logger.Info("confidence threshold updated", zap.Float64("old", old), zap.Float64("new", v))
}

// Threshold 返回当前阈值
func (r *Router) Threshold() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.threshold
}

func (r *Router) decide(c llm.Classification) Route {
	threshold := r.Threshold()
	route := Route{Specialist: c.Label, Confidence: clamp(c.Confidence), Label: c.Label}
	switch {
	case !r.known[c.Label]:
		route.Fallback, route.Reason = true, fmt.Sprintf("unknown label %q", c.Label)
	case route.Confidence < threshold:
		route.Fallback, route.Reason = true, fmt.Sprintf("confidence %.2f below threshold %.2f", route.Confidence, threshold)
	case tied(c.Scores):
		route.Fallback, route.Reason = true, "tie between top labels"
	}
	if route.Fallback {
		route.Specialist = r.fallback
	}
	return route
}

func tied(scores map[string]float64) bool {
	if len(scores) < 2 {
		return false
	}
	vals := make([]float64, 0, len(scores))
	for _, v := range scores {
		vals = append(vals, v)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(vals)))
	return vals[0] == vals[1]
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
