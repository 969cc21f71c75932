package services

import domain "github.com/kalitka1293/instagram-scan/internal/domain"

// Gate decides how a section is presented for the viewer's entitlement.
//
// Active profiles are always clear and offer a load-more link to pricing. Without a subscription
// every other section is blurred behind the paywall. With a subscription a section is clear, but a
// real-backed section that found nothing says so instead of asking the viewer to pay again.
func Gate(kind domain.SectionKind, hasSubscription bool, realCount int) domain.GateDecision {
	decision := PendingGate(kind, hasSubscription)
	if decision.CTA != domain.CTANone || realCount > 0 {
		return decision
	}
	if spec, ok := domain.LookupSection(kind); ok && spec.RealBacked() {
		decision.CTA = domain.CTADataUnavailable
	}
	return decision
}

// PendingGate is the decision for a section whose data has not arrived yet. Nothing has been
// found missing at that point, so a subscriber never sees the data-unavailable notice.
func PendingGate(kind domain.SectionKind, hasSubscription bool) domain.GateDecision {
	if kind == domain.SectionActiveProfiles {
		return domain.GateDecision{Visible: true, CTA: domain.CTALoadMore}
	}
	if !hasSubscription {
		return domain.GateDecision{Visible: true, Blurred: true, CTA: domain.CTAPaywall}
	}
	return domain.GateDecision{Visible: true, CTA: domain.CTANone}
}
