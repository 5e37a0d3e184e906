package governance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrToolNotFound      = errors.New("tool not found")
	ErrToolAlreadyExists = errors.New("tool already registered")
)

const defaultToolTimeout = 30 * time.Second

type registeredTool struct {
	desc ToolDescriptor
	fn   ToolFunc
}

// Registry maps tool names to descriptors and callables.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]registeredTool
	logger *zap.Logger
}

// NewRegistry 创建工具注册中心。
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		tools:  make(map[string]registeredTool),
		logger: logger.With(zap.String("component", "tool_registry")),
	}
}

// Register adds a tool. Names are unique and descriptors cannot be replaced.
func (r *Registry) Register(desc ToolDescriptor, fn ToolFunc) error {
	if err := desc.validate(); err != nil {
		return err
	}
	if fn == nil {
		return fmt.Errorf("tool %s: function is required", desc.Name)
	}
	if desc.Timeout == 0 {
		desc.Timeout = defaultToolTimeout
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[desc.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyExists, desc.Name)
	}
	r.tools[desc.Name] = registeredTool{desc: desc, fn: fn}

	r.logger.Info("tool registered",
		zap.String("name", desc.Name),
		zap.String("risk", string(desc.Risk)),
		zap.Bool("side_effecting", desc.SideEffecting))
	return nil
}

// Descriptor returns the descriptor of a registered tool.
func (r *Registry) Descriptor(name string) (ToolDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return ToolDescriptor{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return t.desc, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// List returns all descriptors sorted by name.
func (r *Registry) List() []ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ToolDescriptor, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Select returns the descriptors for names, skipping unknown ones.
func (r *Registry) Select(names []string) []ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ToolDescriptor, 0, len(names))
	for _, n := range names {
		if t, ok := r.tools[n]; ok {
			out = append(out, t.desc)
		}
	}
	return out
}

// Execute runs a call with the tool's timeout. A deadline from ctx that expires
// first also counts as a timeout.
func (r *Registry) Execute(ctx context.Context, call ToolCall) ToolResult {
	start := time.Now()
	result := ToolResult{ToolCallID: call.ID, Name: call.Name}

	r.mu.RLock()
	t, ok := r.tools[call.Name]
	r.mu.RUnlock()
	if !ok {
		result.Error = fmt.Sprintf("tool not found: %s", call.Name)
		result.Duration = time.Since(start)
		return result
	}

	execCtx, cancel := context.WithTimeout(ctx, t.desc.Timeout)
	defer cancel()

	type outcome struct {
		res json.RawMessage
		err error
	}
	// 带缓冲，超时后 goroutine 也能退出
	done := make(chan outcome, 1)
	go func() {
		res, err := t.fn(execCtx, call.Arguments)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		result.Duration = time.Since(start)
		if o.err != nil {
			result.Error = o.err.Error()
			result.TimedOut = errors.Is(o.err, context.DeadlineExceeded)
			r.logger.Warn("tool execution failed",
				zap.String("name", call.Name),
				zap.Error(o.err),
				zap.Duration("duration", result.Duration))
			return result
		}
		result.Result = o.res
		r.logger.Debug("tool executed",
			zap.String("name", call.Name),
			zap.Duration("duration", result.Duration))

	case <-execCtx.Done():
		result.Duration = time.Since(start)
		result.TimedOut = errors.Is(execCtx.Err(), context.DeadlineExceeded)
		if result.TimedOut {
			result.Error = fmt.Sprintf("execution timeout after %s", result.Duration.Round(time.Millisecond))
		} else {
			result.Error = "execution cancelled"
		}
		r.logger.Warn("tool execution interrupted",
			zap.String("name", call.Name),
			zap.Bool("timed_out", result.TimedOut))
	}

	return result
}
