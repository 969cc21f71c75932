// Package engagement stores synthetic engagement counts so filler numbers stay stable per viewer.
package engagement

import (
	"context"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	domain "github.com/kalitka1293/instagram-scan/internal/domain"
	"github.com/kalitka1293/instagram-scan/internal/repositories"
)

// MemoryStore is a bounded in-process EngagementStore. The least recently used entries are
// evicted once capacity is reached.
type MemoryStore struct {
	mu    sync.Mutex
	cache *lru.Cache[domain.EngagementKey, int64]
}

var _ repositories.EngagementStore = (*MemoryStore)(nil)

// NewMemoryStore constructs a MemoryStore holding at most capacity entries.
func NewMemoryStore(capacity int) (*MemoryStore, error) {
	if capacity <= 0 {
		return nil, errors.New("engagement memory store: capacity must be positive")
	}
	cache, err := lru.New[domain.EngagementKey, int64](capacity)
	if err != nil {
		return nil, fmt.Errorf("engagement memory store: %w", err)
	}
	return &MemoryStore{cache: cache}, nil
}

// LoadOrStore returns the cached value for key, storing value on a miss.
func (s *MemoryStore) LoadOrStore(ctx context.Context, key domain.EngagementKey, value int64) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.cache.Get(key); ok {
		return existing, true, nil
	}
	s.cache.Add(key, value)
	return value, false, nil
}

// Len reports the number of cached entries.
func (s *MemoryStore) Len() int {
	return s.cache.Len()
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close drops every entry.
func (s *MemoryStore) Close() error {
	s.cache.Purge()
	return nil
}
