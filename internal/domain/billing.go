package domain

import (
	"math"
	"time"
)

// Tariff is a purchasable plan as published by the back-end catalog.
type Tariff struct {
	ID            int64
	Name          string
	Price         float64
	DurationDays  int
	RequestsCount int
	IsActive      bool
	AutoRenewal   bool
}

// AmountMinor returns the tariff price in minor currency units (kopecks).
func (t Tariff) AmountMinor() int64 {
	return int64(math.Round(t.Price * 100))
}

// SubscriptionEntitlement is the viewer's paid status as reported by the back-end.
type SubscriptionEntitlement struct {
	Active        bool
	TariffID      int64
	TariffName    string
	EndsAt        *time.Time
	RemainingReqs int
	CheckedAt     time.Time
}

// PurchaseReceipt is the back-end response to a purchase commit or a subscription change.
type PurchaseReceipt struct {
	Success bool
	Message string
}

// Cancellation identifies the card a subscription was paid with. Only the first six and last four
// digits ever leave the process.
type Cancellation struct {
	CardFirstSix string
	CardLastFour string
	AccountID    string
	Reason       string
}

// Plan is the locally defined, presentational description of a purchasable plan.
// Its price is advisory; the matching Tariff is authoritative.
type Plan struct {
	Name             string
	DisplayPrice     string
	Duration         string
	Subtitle         string
	Features         []string
	RecurringConsent string
}

// RequiresRecurringConsent reports whether the plan needs the auto-payment consent in addition to the terms.
func (p Plan) RequiresRecurringConsent() bool {
	return p.RecurringConsent != ""
}

// PlanSelection is the transient plan choice of one checkout flow.
type PlanSelection struct {
	PlanIndex int
}
