package checkpoint

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

type memoryChain struct {
	mu      sync.RWMutex
	records map[int64]*Record
	latest  int64
}

// MemoryStore keeps chains in process memory. Each session has its own lock.
type MemoryStore struct {
	chains sync.Map // sessionID -> *memoryChain
	now    func() time.Time
}

// NewMemoryStore 创建内存检查点存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (s *MemoryStore) chain(sessionID string, create bool) (*memoryChain, bool) {
	if c, ok := s.chains.Load(sessionID); ok {
		return c.(*memoryChain), true
	}
	if !create {
		return nil, false
	}
	c, _ := s.chains.LoadOrStore(sessionID, &memoryChain{records: make(map[int64]*Record), latest: -1})
	return c.(*memoryChain), true
}

func (s *MemoryStore) Write(_ context.Context, rec *Record) error {
	if err := rec.validate(); err != nil {
		return err
	}
	c, _ := s.chain(rec.SessionID, true)

	c.mu.Lock()
	defer c.mu.Unlock()

	if rec.Seq != c.latest+1 {
		return fmt.Errorf("%w: session %s expected seq %d, got %d", ErrSequenceConflict, rec.SessionID, c.latest+1, rec.Seq)
	}
	stored := rec.clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}
	c.records[rec.Seq] = stored
	c.latest = rec.Seq
	return nil
}

func (s *MemoryStore) ReadLatest(_ context.Context, sessionID string) (*Record, error) {
	c, ok := s.chain(sessionID, false)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchSession, sessionID)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.latest < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchSession, sessionID)
	}
	return c.records[c.latest].clone(), nil
}

func (s *MemoryStore) ReadAt(_ context.Context, sessionID string, seq int64) (*Record, error) {
	c, ok := s.chain(sessionID, false)
	if !ok {
		return nil, fmt.Errorf("%w: %s@%d", ErrNotFound, sessionID, seq)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[seq]
	if !ok {
		return nil, fmt.Errorf("%w: %s@%d", ErrNotFound, sessionID, seq)
	}
	return rec.clone(), nil
}

func (s *MemoryStore) List(_ context.Context, sessionID string) ([]*Record, error) {
	c, ok := s.chain(sessionID, false)
	if !ok {
		return nil, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Record, 0, len(c.records))
	for _, rec := range c.records {
		out = append(out, rec.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (s *MemoryStore) Prune(_ context.Context, sessionID string, keep int) (int, error) {
	if keep < 1 {
		keep = 1
	}
	c, ok := s.chain(sessionID, false)
	if !ok {
		return 0, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for seq := range c.records {
		if seq <= c.latest-int64(keep) {
			delete(c.records, seq)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
