package store

import (
	"context"
	"sync"

	"github.com/cmsrelay/internal/domain"
)

type memoryEntry struct {
	req      domain.AuthRequest
	consumed bool
}

// MemoryStore keeps AuthRequests in process memory.
// Consumed entries stay behind as tombstones until they expire.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]*memoryEntry
	now   clock
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]*memoryEntry),
		now:   systemClock,
	}
}

// Save records req under its state. A live unconsumed record with the same state is
// replaced (the user reopened the popup); a consumed one is never reissued.
func (s *MemoryStore) Save(_ context.Context, req *domain.AuthRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.items[req.State]; ok && existing.consumed && !existing.req.Expired(s.now()) {
		return "", domain.ErrStateConsumed
	}

	s.items[req.State] = &memoryEntry{req: *req}
	return "", nil
}

// Consume returns the record for state and marks it used
func (s *MemoryStore) Consume(_ context.Context, state, _ string) (*domain.AuthRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.items[state]
	if !ok {
		return nil, domain.ErrStateNotFound
	}
	if entry.consumed {
		return nil, domain.ErrStateConsumed
	}
	if entry.req.Expired(s.now()) {
		return nil, domain.ErrStateExpired
	}

	entry.consumed = true
	req := entry.req
	return &req, nil
}

// Purge drops every expired record and tombstone
func (s *MemoryStore) Purge(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for state, entry := range s.items {
		if entry.req.Expired(now) {
			delete(s.items, state)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of records, tombstones included
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *MemoryStore) Close() error {
	return nil
}
