package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// BucketName is the JetStream KV bucket holding saga records. NATS KV gives
// us per-key TTL natively, so expiry needs no sweeper goroutine.
const BucketName = "SAGA_RECORDS"

// NATSStore implements Store over a JetStream KV bucket. Writes on the same
// key are serialised by a per-key mutex (Get takes no lock), matching the spec's
// read-modify-write-under-lock requirement; JetStream's revision-checked
// Update call then guards against cross-process races on the same key.
type NATSStore struct {
	kv    jetstream.KeyValue
	ttl   time.Duration
	locks keyLocks
}

// NewNATSStore opens (creating if absent) the KV bucket used for saga state.
func NewNATSStore(ctx context.Context, js jetstream.JetStream, defaultTTL time.Duration) (*NATSStore, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: BucketName,
		TTL:    defaultTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &NATSStore{kv: kv, ttl: defaultTTL}, nil
}

// Create implements Store.
func (s *NATSStore) Create(ctx context.Context, sagaID string, initial Record, ttl time.Duration) error {
	unlock := s.locks.lock(sagaID)
	defer unlock()

	now := time.Now()
	initial.SagaID = sagaID
	initial.CreatedAt = now
	initial.UpdatedAt = now
	if initial.CallStack == nil {
		initial.CallStack = []Step{}
	}

	data, err := json.Marshal(initial)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	if _, err := s.kv.Create(ctx, sagaID, data); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Get implements Store.
func (s *NATSStore) Get(ctx context.Context, sagaID string) (Record, error) {
	entry, err := s.kv.Get(ctx, sagaID)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var rec Record
	if err := json.Unmarshal(entry.Value(), &rec); err != nil {
		return Record{}, fmt.Errorf("unmarshal record: %w", err)
	}
	return rec, nil
}

// Update implements Store. It applies patch under the per-key lock, using
// JetStream's CAS-style Update (revision check) to guard against a
// concurrent writer from another process instance.
func (s *NATSStore) Update(ctx context.Context, sagaID string, patch Patch) (Record, error) {
	unlock := s.locks.lock(sagaID)
	defer unlock()

	for {
		entry, err := s.kv.Get(ctx, sagaID)
		if err != nil {
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				return Record{}, ErrNotFound
			}
			return Record{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		var rec Record
		if err := json.Unmarshal(entry.Value(), &rec); err != nil {
			return Record{}, fmt.Errorf("unmarshal record: %w", err)
		}

		if rec.Status.Terminal() && patch.Status == nil && len(patch.AppendSteps) == 0 {
			return rec, ErrAlreadyTerminal
		}

		applyPatch(&rec, patch)

		data, err := json.Marshal(rec)
		if err != nil {
			return Record{}, fmt.Errorf("marshal record: %w", err)
		}

		if _, err := s.kv.Update(ctx, sagaID, data, entry.Revision()); err != nil {
			if errors.Is(err, jetstream.ErrKeyExists) {
				continue // another writer raced us; retry the read-modify-write
			}
			return Record{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return rec, nil
	}
}

// Complete implements Store.
func (s *NATSStore) Complete(ctx context.Context, sagaID string, formattedResponse string) (Record, error) {
	completed := StatusCompleted
	return s.Update(ctx, sagaID, Patch{
		Status:            &completed,
		FormattedResponse: &formattedResponse,
	})
}

// Fail implements Store.
func (s *NATSStore) Fail(ctx context.Context, sagaID string, errMessage string, isIrrelevant bool) (Record, error) {
	failed := StatusError
	return s.Update(ctx, sagaID, Patch{
		Status:       &failed,
		ErrorMessage: &errMessage,
		IsIrrelevant: &isIrrelevant,
	})
}

func applyPatch(rec *Record, patch Patch) {
	if patch.Status != nil {
		rec.Status = *patch.Status
	}
	if patch.GeneratedSQL != nil {
		rec.GeneratedSQL = patch.GeneratedSQL
	}
	if patch.RawResults != nil {
		rec.RawResults = patch.RawResults
	}
	if patch.FormattedResponse != nil {
		rec.FormattedResponse = patch.FormattedResponse
	}
	if patch.IsIrrelevant != nil {
		rec.IsIrrelevant = *patch.IsIrrelevant
	}
	if patch.ErrorMessage != nil {
		rec.ErrorMessage = patch.ErrorMessage
	}
	if patch.RetriesRemaining != nil {
		rec.RetriesRemaining = *patch.RetriesRemaining
	}
	if patch.FailedSQL != nil {
		rec.FailedSQL = patch.FailedSQL
	}
	if patch.DatabaseError != nil {
		rec.DatabaseError = patch.DatabaseError
	}
	rec.CallStack = append(rec.CallStack, patch.AppendSteps...)
	rec.TotalDurationMS += patch.AddDurationMS
	rec.TotalTokens += patch.AddTokens
	rec.UpdatedAt = time.Now()
}

// keyLocks hands out a per-key mutex, so writers of different keys do not
// contend on one lock.
type keyLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (k *keyLocks) lock(key string) func() {
	k.mu.Lock()
	if k.m == nil {
		k.m = make(map[string]*sync.Mutex)
	}
	l, ok := k.m[key]
	if !ok {
		l = &sync.Mutex{}
		k.m[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
