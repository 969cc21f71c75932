package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kalitka1293/instagram-scan/internal/repositories"
)

// ErrTariffNotFound is returned when no catalog entry carries the requested name.
var ErrTariffNotFound = errors.New("tariff catalog: tariff not found")

// TariffCatalogDeps bundles collaborators of the tariff catalog cache.
type TariffCatalogDeps struct {
	Repository repositories.TariffRepository
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

// TariffCatalog holds the last fetched canonical tariff list. Price decisions always go through
// Resolve, which refetches the catalog first.
type TariffCatalog struct {
	repo   repositories.TariffRepository
	clock  func() time.Time
	logger func(ctx context.Context, event string, fields map[string]any)

	mu        sync.RWMutex
	tariffs   []Tariff
	fetchedAt time.Time
}

// NewTariffCatalog validates dependencies and constructs the cache.
func NewTariffCatalog(deps TariffCatalogDeps) (*TariffCatalog, error) {
	if deps.Repository == nil {
		return nil, errors.New("tariff catalog: repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &TariffCatalog{
		repo: deps.Repository,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Refresh fetches the full catalog and replaces the cached copy.
func (c *TariffCatalog) Refresh(ctx context.Context) ([]Tariff, error) {
	tariffs, err := c.repo.ListTariffs(ctx)
	if err != nil {
		c.logger(ctx, "tariffs.fetch_failed", map[string]any{"error": err.Error()})
		return nil, fmt.Errorf("tariff catalog: fetch: %w", err)
	}

	c.mu.Lock()
	c.tariffs = append([]Tariff(nil), tariffs...)
	c.fetchedAt = c.clock()
	c.mu.Unlock()
	return tariffs, nil
}

// Cached returns the last fetched catalog and when it was fetched.
func (c *TariffCatalog) Cached() ([]Tariff, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Tariff(nil), c.tariffs...), c.fetchedAt
}

// Resolve refetches the catalog and returns the tariff whose name equals name exactly.
func (c *TariffCatalog) Resolve(ctx context.Context, name string) (Tariff, error) {
	tariffs, err := c.Refresh(ctx)
	if err != nil {
		return Tariff{}, err
	}
	for _, tariff := range tariffs {
		if tariff.Name == name {
			return tariff, nil
		}
	}
	return Tariff{}, fmt.Errorf("%w: %q", ErrTariffNotFound, name)
}
