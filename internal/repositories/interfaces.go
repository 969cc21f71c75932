package repositories

import (
	"context"

	domain "github.com/kalitka1293/instagram-scan/internal/domain"
)

// RepositoryError wraps low-level gateway failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsInvalid() bool
	IsUnavailable() bool
}

// ProfileRepository fetches the profile of a handle together with the data bundled with it.
type ProfileRepository interface {
	FetchProfile(ctx context.Context, handle, viewer string) (domain.ProfileResult, error)
}

// EnrichmentRepository reports the progress of the enrichment job for a handle.
// PollEnrichment is idempotent and safe to call repeatedly.
type EnrichmentRepository interface {
	PollEnrichment(ctx context.Context, handle string) (domain.EnrichmentResult, error)
}

// TariffRepository returns the full canonical tariff catalog.
type TariffRepository interface {
	ListTariffs(ctx context.Context) ([]domain.Tariff, error)
}

// EntitlementRepository reports a viewer's subscription status.
type EntitlementRepository interface {
	GetEntitlement(ctx context.Context, viewer string) (domain.SubscriptionEntitlement, error)
}

// PurchaseRepository commits a paid purchase. The transaction token may be nil.
type PurchaseRepository interface {
	CommitPurchase(ctx context.Context, viewer string, tariffID int64, transactionToken *string) (domain.PurchaseReceipt, error)
}

// SubscriptionRepository changes the state of a viewer's recurring subscription.
type SubscriptionRepository interface {
	PauseSubscription(ctx context.Context, viewer string) (domain.PurchaseReceipt, error)
	ResumeSubscription(ctx context.Context, viewer string) (domain.PurchaseReceipt, error)
	CancelSubscription(ctx context.Context, viewer string, cancellation domain.Cancellation) (domain.PurchaseReceipt, error)
	TerminateSubscription(ctx context.Context, viewer string) (domain.PurchaseReceipt, error)
}

// EngagementStore caches synthetic engagement counts per viewer. Entries are write-once:
// LoadOrStore returns the existing value when present and stores value otherwise.
type EngagementStore interface {
	LoadOrStore(ctx context.Context, key domain.EngagementKey, value int64) (stored int64, loaded bool, err error)
	Ping(ctx context.Context) error
	Close() error
}

// HealthRepository aggregates dependency probes for readiness reporting.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
