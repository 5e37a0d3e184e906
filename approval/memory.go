package approval

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore 内存审批存储
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (s *MemoryStore) Create(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.ID]; exists {
		return fmt.Errorf("%w: %s", ErrExists, rec.ID)
	}
	s.records[rec.ID] = rec.clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec.clone(), nil
}

func (s *MemoryStore) List(_ context.Context, filter Filter) ([]*Record, error) {
	s.mu.RLock()
	out := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		if filter.matches(rec) {
			out = append(out, rec.clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Resolve(_ context.Context, id string, status Status, decider, reason string, at time.Time) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !rec.Pending() {
		return nil, fmt.Errorf("%w: %s is %s", ErrAlreadyResolved, id, rec.Status)
	}
	rec.Status = status
	rec.Decider = decider
	rec.Reason = reason
	rec.DecidedAt = &at
	return rec.clone(), nil
}
