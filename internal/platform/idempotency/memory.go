package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const defaultMemoryCapacity = 4096

// MemoryStore keeps records in a bounded LRU whose entries also expire after the TTL.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	records *expirable.LRU[string, Record]
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs a store holding at most capacity keys for ttl each.
func NewMemoryStore(capacity int, ttl time.Duration) *MemoryStore {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		ttl:     ttl,
		records: expirable.NewLRU[string, Record](capacity, nil, ttl),
	}
}

// Reserve implements Store.
func (s *MemoryStore) Reserve(_ context.Context, key, fingerprint string, now time.Time) (Reservation, error) {
	id := sha256Hex([]byte(key))
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records.Get(id)
	if !ok || !now.Before(record.ExpiresAt) {
		record = Record{Key: key, Fingerprint: fingerprint, ExpiresAt: now.Add(s.ttl)}
		s.records.Add(id, record)
		return Reservation{State: ReservationStateNew, Record: record}, nil
	}
	if record.Fingerprint != fingerprint {
		return Reservation{}, ErrFingerprintMismatch
	}
	if record.Completed {
		return Reservation{State: ReservationStateCompleted, Record: record}, nil
	}
	return Reservation{State: ReservationStatePending, Record: record}, nil
}

// SaveResponse implements Store.
func (s *MemoryStore) SaveResponse(_ context.Context, key, fingerprint string, resp Response, now time.Time) error {
	id := sha256Hex([]byte(key))
	s.mu.Lock()
	defer s.mu.Unlock()

	if record, ok := s.records.Get(id); ok && record.Fingerprint != fingerprint {
		return ErrFingerprintMismatch
	}
	s.records.Add(id, Record{
		Key:         key,
		Fingerprint: fingerprint,
		Completed:   true,
		Response: Response{
			Status:  resp.Status,
			Headers: sanitizeHeaders(resp.Headers),
			Body:    append([]byte(nil), resp.Body...),
		},
		ExpiresAt: now.Add(s.ttl),
	})
	return nil
}

// Release implements Store.
func (s *MemoryStore) Release(_ context.Context, key, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records.Remove(sha256Hex([]byte(key)))
	return nil
}

// Len reports the number of live keys.
func (s *MemoryStore) Len() int {
	return s.records.Len()
}
