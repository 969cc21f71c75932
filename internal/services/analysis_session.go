package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/kalitka1293/instagram-scan/internal/domain"
	"github.com/kalitka1293/instagram-scan/internal/platform/observability"
	"github.com/kalitka1293/instagram-scan/internal/platform/textutil"
	"github.com/kalitka1293/instagram-scan/internal/repositories"
)

const (
	defaultPollInterval = 3 * time.Second

	msgProfileNotFound    = "Профиль не найден"
	msgProfileInvalid     = "Некорректное имя пользователя"
	msgBackendUnavailable = "Ошибка при анализе профиля"
	msgPollBudgetSpent    = "Анализ занимает слишком много времени"
	msgEnrichmentFailed   = "Не удалось получить данные о подписчиках"
)

var (
	// ErrAnalysisInvalidHandle is returned when the handle is empty after normalisation.
	ErrAnalysisInvalidHandle = errors.New("analysis: handle is required")

	// ErrAnalysisProfileNotFound is returned when the back-end has no account for the handle.
	ErrAnalysisProfileNotFound = errors.New("analysis: profile not found")

	// ErrAnalysisProfileInvalid is returned when the back-end rejects the handle.
	ErrAnalysisProfileInvalid = errors.New("analysis: profile request rejected")

	// ErrAnalysisUnavailable is returned when the profile fetch fails for transient reasons.
	ErrAnalysisUnavailable = errors.New("analysis: back-end unavailable")

	// ErrAnalysisSessionClosed is returned by Submit after Close.
	ErrAnalysisSessionClosed = errors.New("analysis: session closed")
)

// AnalysisSessionDeps bundles collaborators of a viewer's analysis session.
type AnalysisSessionDeps struct {
	Profiles        repositories.ProfileRepository
	Enrichment      repositories.EnrichmentRepository
	Entitlements    EntitlementSource
	Metrics         *observability.Metrics
	Clock           func() time.Time
	Logger          func(ctx context.Context, event string, fields map[string]any)
	TokenGen        func() string
	Sleep           func(ctx context.Context, d time.Duration) error
	PollInterval    time.Duration
	MaxPollAttempts int
	PollDeadline    time.Duration
}

// AnalysisSession is the per-viewer analysis state machine:
//
//	Idle -> ProfileLoading -> ProfileReady -> PollingEnrichment -> EnrichmentReady | EnrichmentFailed
//
// A failed profile fetch returns the session to Idle. Each Submit starts a new session under a
// fresh guard token; writes from a superseded poll loop are dropped.
type AnalysisSession struct {
	viewer       string
	profiles     repositories.ProfileRepository
	enrichment   repositories.EnrichmentRepository
	entitlements EntitlementSource
	metrics      *observability.Metrics
	clock        func() time.Time
	logger       func(ctx context.Context, event string, fields map[string]any)
	tokenGen     func() string
	sleep        func(ctx context.Context, d time.Duration) error
	interval     time.Duration
	maxAttempts  int
	deadline     time.Duration

	mu      sync.Mutex
	state   domain.SessionSnapshot
	seed    *domain.ActivityBundle
	changed chan struct{}
	cancel  context.CancelFunc
	closed  bool
}

// NewAnalysisSession constructs an idle session for viewer.
func NewAnalysisSession(viewer string, deps AnalysisSessionDeps) (*AnalysisSession, error) {
	if deps.Profiles == nil {
		return nil, errors.New("analysis session: profile repository is required")
	}
	if deps.Enrichment == nil {
		return nil, errors.New("analysis session: enrichment repository is required")
	}
	if deps.MaxPollAttempts < 0 || deps.PollDeadline < 0 {
		return nil, errors.New("analysis session: poll limits must not be negative")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	tokenGen := deps.TokenGen
	if tokenGen == nil {
		tokenGen = func() string { return ulid.Make().String() }
	}
	sleep := deps.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	interval := deps.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	viewer = strings.TrimSpace(viewer)
	s := &AnalysisSession{
		viewer:       viewer,
		profiles:     deps.Profiles,
		enrichment:   deps.Enrichment,
		entitlements: deps.Entitlements,
		metrics:      deps.Metrics,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger:      logger,
		tokenGen:    tokenGen,
		sleep:       sleep,
		interval:    interval,
		maxAttempts: deps.MaxPollAttempts,
		deadline:    deps.PollDeadline,
		changed:     make(chan struct{}),
	}
	s.state = domain.SessionSnapshot{Viewer: viewer, Status: domain.AnalysisIdle}
	return s, nil
}

// Snapshot returns a copy of the current session state. Profile, activities and comments are
// never mutated once published, so the copy shares them.
func (s *AnalysisSession) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Wait blocks until the session reaches a settled status or ctx is done.
func (s *AnalysisSession) Wait(ctx context.Context) (SessionSnapshot, error) {
	for {
		s.mu.Lock()
		snapshot := s.state
		changed := s.changed
		s.mu.Unlock()

		if snapshot.Status.Settled() {
			return snapshot, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return snapshot, ctx.Err()
		}
	}
}

// Close stops the poll loop of the current session, if any. Later submissions are rejected.
func (s *AnalysisSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Submit starts analysing handle. A blank handle is rejected without touching state or the
// network. The profile fetch runs before Submit returns; enrichment polling continues in the
// background after a successful fetch.
func (s *AnalysisSession) Submit(ctx context.Context, rawHandle string) (SessionSnapshot, error) {
	handle := textutil.NormalizeHandle(rawHandle)
	if handle == "" {
		return s.Snapshot(), ErrAnalysisInvalidHandle
	}

	token := s.tokenGen()
	now := s.clock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return s.Snapshot(), ErrAnalysisSessionClosed
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.seed = nil
	s.state = domain.SessionSnapshot{
		Token:     token,
		Viewer:    s.viewer,
		Handle:    handle,
		Status:    domain.AnalysisProfileLoading,
		StartedAt: now,
		UpdatedAt: now,
	}
	s.notifyLocked()
	s.mu.Unlock()

	s.metrics.RecordSessionStarted(ctx)
	s.logger(ctx, "analysis.submitted", map[string]any{
		"viewerId": s.viewer,
		"handle":   observability.SanitizeHandle(handle),
		"token":    token,
	})

	result, err := s.profiles.FetchProfile(ctx, handle, s.viewer)
	if err != nil {
		return s.failProfile(ctx, token, handle, err)
	}

	if result.EntitlementKnown && s.entitlements != nil {
		s.entitlements.Seed(s.viewer, result.EntitlementActive)
	}

	profile := result.Profile
	comments := result.Comments
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return s.Snapshot(), ErrAnalysisSessionClosed
	}
	if s.state.Token != token {
		s.mu.Unlock()
		cancel()
		return s.Snapshot(), nil
	}
	s.seed = result.SeedActivities
	s.state.Profile = &profile
	s.state.Comments = comments
	s.state.Status = domain.AnalysisProfileReady
	s.state.UpdatedAt = s.clock()
	s.notifyLocked()

	s.state.Status = domain.AnalysisPollingEnrichment
	s.cancel = cancel
	s.notifyLocked()
	snapshot := s.state
	s.mu.Unlock()

	go s.poll(loopCtx, token, handle)
	return snapshot, nil
}

func (s *AnalysisSession) failProfile(ctx context.Context, token, handle string, err error) (SessionSnapshot, error) {
	mapped, message := classifyProfileError(err)
	s.logger(ctx, "analysis.profile_failed", map[string]any{
		"viewerId": s.viewer,
		"handle":   observability.SanitizeHandle(handle),
		"error":    err.Error(),
	})
	s.metrics.RecordSessionSettled(ctx, "profile_failed")

	s.mu.Lock()
	if s.state.Token == token {
		s.state.Status = domain.AnalysisIdle
		s.state.ErrorMessage = message
		s.state.UpdatedAt = s.clock()
		s.notifyLocked()
	}
	snapshot := s.state
	s.mu.Unlock()
	return snapshot, fmt.Errorf("%w: %w", mapped, err)
}

func classifyProfileError(err error) (error, string) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrAnalysisUnavailable, msgBackendUnavailable
	}
	detail := repositories.ErrorDetail(err)
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrAnalysisProfileNotFound, firstNonBlank(detail, msgProfileNotFound)
		case repoErr.IsInvalid():
			return ErrAnalysisProfileInvalid, firstNonBlank(detail, msgProfileInvalid)
		}
	}
	return ErrAnalysisUnavailable, firstNonBlank(detail, msgBackendUnavailable)
}

// poll runs the enrichment loop of one session. Polls are strictly sequential.
func (s *AnalysisSession) poll(ctx context.Context, token, handle string) {
	started := s.clock()
	for attempt := 1; ; attempt++ {
		if s.maxAttempts > 0 && attempt > s.maxAttempts {
			s.settleFailed(ctx, token, msgPollBudgetSpent, "attempts_exhausted")
			return
		}
		if s.deadline > 0 && s.clock().Sub(started) >= s.deadline {
			s.settleFailed(ctx, token, msgPollBudgetSpent, "deadline_exceeded")
			return
		}

		result, err := s.enrichment.PollEnrichment(ctx, handle)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.metrics.RecordPollAttempt(ctx, "error")
			s.logger(ctx, "analysis.poll_failed", map[string]any{
				"handle":  observability.SanitizeHandle(handle),
				"attempt": attempt,
				"error":   err.Error(),
			})
			s.settleFailed(ctx, token, firstNonBlank(repositories.ErrorDetail(err), msgEnrichmentFailed), "poll_error")
			return
		}
		s.metrics.RecordPollAttempt(ctx, string(result.Status))

		switch {
		case result.Status == domain.EnrichmentCompleted:
			s.settleReady(ctx, token, attempt, result.MutualConnections)
			return
		case result.Status.InProgress():
			if !s.update(token, func(state *domain.SessionSnapshot) {
				state.PollAttempt = attempt
				state.PollStatus = result.Status
			}) {
				return
			}
			if err := s.sleep(ctx, s.interval); err != nil {
				return
			}
		default:
			s.settleFailed(ctx, token, firstNonBlank(result.Message, msgEnrichmentFailed), "job_failed")
			return
		}
	}
}

func (s *AnalysisSession) settleReady(ctx context.Context, token string, attempt int, connections []domain.MutualConnection) {
	bundle := buildActivityBundle(token, connections, s.clock())
	if s.update(token, func(state *domain.SessionSnapshot) {
		state.Status = domain.AnalysisEnrichmentReady
		state.PollAttempt = attempt
		state.PollStatus = domain.EnrichmentCompleted
		state.Activities = &bundle
	}) {
		s.metrics.RecordSessionSettled(ctx, string(domain.AnalysisEnrichmentReady))
		s.logger(ctx, "analysis.enrichment_ready", map[string]any{
			"viewerId":    s.viewer,
			"connections": len(connections),
			"attempts":    attempt,
		})
	}
}

// settleFailed ends the session in EnrichmentFailed. Activity data that came with the profile
// reply, if any, becomes the session's bundle.
func (s *AnalysisSession) settleFailed(ctx context.Context, token, message, reason string) {
	if s.update(token, func(state *domain.SessionSnapshot) {
		state.Status = domain.AnalysisEnrichmentFailed
		state.PollStatus = domain.EnrichmentFailed
		state.ErrorMessage = message
		if s.seed != nil {
			seed := *s.seed
			state.Activities = &seed
		}
	}) {
		s.metrics.RecordSessionSettled(ctx, string(domain.AnalysisEnrichmentFailed))
		s.logger(ctx, "analysis.enrichment_failed", map[string]any{
			"viewerId": s.viewer,
			"reason":   reason,
		})
	}
}

// update applies fn when token still names the current session and reports whether it did.
func (s *AnalysisSession) update(token string, fn func(*domain.SessionSnapshot)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Token != token {
		return false
	}
	fn(&s.state)
	s.state.UpdatedAt = s.clock()
	s.notifyLocked()
	return true
}

func (s *AnalysisSession) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
