package observability

import (
	"context"
	"errors"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/kalitka1293/instagram-scan"

// Metrics groups the counters and histograms recorded by the console.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	requests        metric.Int64Counter
	requestLatency  metric.Float64Histogram
	sessionsStarted metric.Int64Counter
	pollAttempts    metric.Int64Counter
	sessionsSettled metric.Int64Counter
	backendCalls    metric.Int64Counter
	checkouts       metric.Int64Counter
	subscriptions   metric.Int64Counter
}

// NewMetrics registers instruments on the supplied meter, or on the global provider when nil.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}

	var errs []error
	m := &Metrics{}
	var err error

	m.requests, err = meter.Int64Counter("console.http.requests",
		metric.WithDescription("HTTP requests served by the console API"))
	errs = append(errs, err)
	m.requestLatency, err = meter.Float64Histogram("console.http.latency",
		metric.WithDescription("HTTP request latency"), metric.WithUnit("ms"))
	errs = append(errs, err)
	m.sessionsStarted, err = meter.Int64Counter("analysis.sessions.started",
		metric.WithDescription("Analysis sessions started"))
	errs = append(errs, err)
	m.pollAttempts, err = meter.Int64Counter("analysis.poll.attempts",
		metric.WithDescription("Enrichment poll attempts"))
	errs = append(errs, err)
	m.sessionsSettled, err = meter.Int64Counter("analysis.sessions.settled",
		metric.WithDescription("Analysis sessions reaching a settled status"))
	errs = append(errs, err)
	m.backendCalls, err = meter.Int64Counter("backend.calls",
		metric.WithDescription("Calls made to the analysis back-end"))
	errs = append(errs, err)
	m.checkouts, err = meter.Int64Counter("checkout.launches",
		metric.WithDescription("Checkout widget launches"))
	errs = append(errs, err)
	m.subscriptions, err = meter.Int64Counter("subscription.changes",
		metric.WithDescription("Pause, resume and cancel requests"))
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordRequest counts a served request and its latency in milliseconds.
func (m *Metrics) RecordRequest(ctx context.Context, route, method string, status int, latencyMS float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("route", SanitizeRoute(route)),
		attribute.String("method", SanitizeMethod(method)),
		attribute.String("status", strconv.Itoa(status)),
	)
	m.requests.Add(ctx, 1, attrs)
	m.requestLatency.Record(ctx, latencyMS, attrs)
}

// RecordSessionStarted counts a submitted handle that produced a session.
func (m *Metrics) RecordSessionStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.sessionsStarted.Add(ctx, 1)
}

// RecordPollAttempt counts one enrichment poll with its observed status.
func (m *Metrics) RecordPollAttempt(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.pollAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordSessionSettled counts a session reaching its final status.
func (m *Metrics) RecordSessionSettled(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.sessionsSettled.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordBackendCall counts a gateway call by operation and outcome.
func (m *Metrics) RecordBackendCall(ctx context.Context, op, outcome string) {
	if m == nil {
		return
	}
	m.backendCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
}

// RecordCheckout counts a checkout attempt by provider and outcome.
func (m *Metrics) RecordCheckout(ctx context.Context, provider, outcome string) {
	if m == nil {
		return
	}
	m.checkouts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
	))
}

// RecordSubscriptionChange counts a subscription change by action and outcome.
func (m *Metrics) RecordSubscriptionChange(ctx context.Context, action, outcome string) {
	if m == nil {
		return
	}
	m.subscriptions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	))
}
