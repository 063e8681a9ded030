package directory

import (
	"context"
	"sync"
	"time"
)

// memoryStore keeps both collections in process memory, guarded by a single
// mutex. The directory is small and low-frequency; coarse locking keeps the
// disjointness invariant trivial to uphold.
type memoryStore struct {
	mu    sync.Mutex
	byID  map[int64]*Participant
	order []int64
}

// NewMemoryStore constructs the in-memory Store used by default. State lives
// only for the process lifetime.
func NewMemoryStore() Store {
	return &memoryStore{
		byID: make(map[int64]*Participant),
	}
}

func (s *memoryStore) Register(_ context.Context, p Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[p.ID]; exists {
		return ErrAlreadyRegistered
	}
	stored := p
	s.byID[p.ID] = &stored
	s.order = append(s.order, p.ID)
	return nil
}

func (s *memoryStore) Approve(_ context.Context, id int64) (Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok || p.Status != StatusPending {
		return Participant{}, ErrNotPending
	}
	p.Status = StatusActive
	p.Portfolio.TradingEnabled = true
	p.ApprovedAt = time.Now().UTC()
	return *p, nil
}

func (s *memoryStore) Find(_ context.Context, id int64) (Participant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return Participant{}, false, nil
	}
	return *p, true, nil
}

func (s *memoryStore) ListPending(_ context.Context) ([]Participant, error) {
	return s.list(StatusPending), nil
}

func (s *memoryStore) ListActive(_ context.Context) ([]Participant, error) {
	return s.list(StatusActive), nil
}

// list returns copies in insertion order so callers iterating a snapshot are
// unaffected by concurrent mutation.
func (s *memoryStore) list(status Status) []Participant {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Participant, 0, len(s.order))
	for _, id := range s.order {
		if p, ok := s.byID[id]; ok && p.Status == status {
			out = append(out, *p)
		}
	}
	return out
}

func (s *memoryStore) Counts(_ context.Context) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, active := 0, 0
	for _, p := range s.byID {
		switch p.Status {
		case StatusPending:
			pending++
		case StatusActive:
			active++
		}
	}
	return pending, active, nil
}
