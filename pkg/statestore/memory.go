package statestore

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by unit tests. It enforces the
// same per-key locking and TTL-expiry contract as NATSStore without
// requiring a running broker.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	expiry  map[string]time.Time
	locks   keyLocks
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
		expiry:  make(map[string]time.Time),
	}
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, sagaID string, initial Record, ttl time.Duration) error {
	unlock := s.locks.lock(sagaID)
	defer unlock()

	now := time.Now()
	initial.SagaID = sagaID
	initial.CreatedAt = now
	initial.UpdatedAt = now
	if initial.CallStack == nil {
		initial.CallStack = []Step{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[sagaID] = initial
	if ttl > 0 {
		s.expiry[sagaID] = now.Add(ttl)
	}
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, sagaID string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if exp, ok := s.expiry[sagaID]; ok && time.Now().After(exp) {
		delete(s.records, sagaID)
		delete(s.expiry, sagaID)
		return Record{}, ErrNotFound
	}

	rec, ok := s.records[sagaID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Update implements Store.
func (s *MemoryStore) Update(ctx context.Context, sagaID string, patch Patch) (Record, error) {
	unlock := s.locks.lock(sagaID)
	defer unlock()

	rec, err := s.Get(ctx, sagaID)
	if err != nil {
		return Record{}, err
	}

	if rec.Status.Terminal() && patch.Status == nil && len(patch.AppendSteps) == 0 {
		return rec, ErrAlreadyTerminal
	}

	applyPatch(&rec, patch)

	s.mu.Lock()
	s.records[sagaID] = rec
	s.mu.Unlock()

	return rec, nil
}

// Complete implements Store.
func (s *MemoryStore) Complete(ctx context.Context, sagaID string, formattedResponse string) (Record, error) {
	completed := StatusCompleted
	return s.Update(ctx, sagaID, Patch{Status: &completed, FormattedResponse: &formattedResponse})
}

// Fail implements Store.
func (s *MemoryStore) Fail(ctx context.Context, sagaID string, errMessage string, isIrrelevant bool) (Record, error) {
	failed := StatusError
	return s.Update(ctx, sagaID, Patch{Status: &failed, ErrorMessage: &errMessage, IsIrrelevant: &isIrrelevant})
}
