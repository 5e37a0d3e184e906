package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// AllSessions subscribes to every session's events.
const AllSessions = "*"

var subscriptionCounter int64

// Subscription 会话事件订阅
type Subscription struct {
	ID        string
	SessionID string
	C         <-chan Event

	ch     chan Event
	hub    *Hub
	closed sync.Once
}

// Close unsubscribes and closes C.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s)
}

// Hub delivers events to per-session subscribers, used by the SSE and
// WebSocket streams. Slow subscribers lose events instead of stalling the
// engine.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]map[string]*Subscription
	buffer  int
	dropped atomic.Int64
	logger  *zap.Logger
}

func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:   make(map[string]map[string]*Subscription),
		buffer: buffer,
		logger: logger.With(zap.String("component", "event_hub")),
	}
}

// Subscribe registers a subscriber for sessionID (or AllSessions).
func (h *Hub) Subscribe(sessionID string) *Subscription {
	ch := make(chan Event, h.buffer)
	sub := &Subscription{
		ID:        fmt.Sprintf("sub-%d", atomic.AddInt64(&subscriptionCounter, 1)),
		SessionID: sessionID,
		C:         ch,
		ch:        ch,
		hub:       h,
	}

	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[string]*Subscription)
	}
	h.subs[sessionID][sub.ID] = sub
	h.mu.Unlock()
	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	sub.closed.Do(func() {
		h.mu.Lock()
		if set, ok := h.subs[sub.SessionID]; ok {
			delete(set, sub.ID)
			if len(set) == 0 {
				delete(h.subs, sub.SessionID)
			}
		}
		// 在持有写锁时关闭，Emit 持读锁发送，不会向已关闭通道写入
		close(sub.ch)
		h.mu.Unlock()
	})
}

func (h *Hub) Emit(_ context.Context, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.deliver(h.subs[ev.SessionID], ev)
	if ev.SessionID != AllSessions {
		h.deliver(h.subs[AllSessions], ev)
	}
}

func (h *Hub) deliver(set map[string]*Subscription, ev Event) {
	for _, sub := range set {
		select {
		case sub.ch <- ev:
		default:
			h.dropped.Add(1)
			h.logger.Debug("subscriber buffer full, dropping event",
				zap.String("subscription", sub.ID),
				zap.String("session_id", ev.SessionID),
				zap.String("kind", string(ev.Kind)))
		}
	}
}

// Subscribers returns the number of subscribers for a session.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}

// Dropped returns how many deliveries were dropped because a buffer was full.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }
