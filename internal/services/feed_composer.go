package services

import (
	"context"
	"errors"
	"math"

	domain "github.com/kalitka1293/instagram-scan/internal/domain"
	"github.com/kalitka1293/instagram-scan/internal/platform/textutil"
)

const (
	labelAnalysing      = "Идет анализ..."
	labelAwaiting       = "Ожидание анализа..."
	labelNotDetected    = "Не удалось обнаружить"
	labelNoActivity     = "Активность не обнаружена"
	labelPaywall        = "Активируйте тариф всего за 19 руб."
	labelDataMissing    = "Не удалось спарсить данные"
	labelLoadMore       = "Показать больше"
	placeholderComment  = "что-то написал"
	recentPostsShown    = 6
	missingProfileCount = 0
)

// FeedRequest identifies what to compose.
type FeedRequest struct {
	Viewer   string
	Session  SessionSnapshot
	Entitled bool
	Tab      domain.Tab
}

// FeedComposerDeps bundles collaborators of the feed composer.
type FeedComposerDeps struct {
	Synthetic *SyntheticFeed
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

// FeedComposer merges session data, synthetic filler and entitlement decisions into sections,
// following domain.SectionTable.
type FeedComposer struct {
	synthetic *SyntheticFeed
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewFeedComposer validates dependencies and constructs the composer.
func NewFeedComposer(deps FeedComposerDeps) (*FeedComposer, error) {
	if deps.Synthetic == nil {
		return nil, errors.New("feed composer: synthetic feed is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &FeedComposer{synthetic: deps.Synthetic, logger: logger}, nil
}

// Compose returns the sections of req.Tab in table order.
func (c *FeedComposer) Compose(ctx context.Context, req FeedRequest) ([]Section, error) {
	specs := domain.SectionsForTab(req.Tab)
	sections := make([]Section, 0, len(specs))
	for _, spec := range specs {
		section, err := c.ComposeSection(ctx, spec, req)
		if err != nil {
			return nil, err
		}
		sections = append(sections, section)
	}
	return sections, nil
}

// ComposeSection renders one section. Until the session settles on enrichment every section is a
// loading placeholder.
func (c *FeedComposer) ComposeSection(ctx context.Context, spec domain.SectionSpec, req FeedRequest) (Section, error) {
	section := Section{Kind: spec.Kind, Title: spec.Title, ShowsEngagement: spec.Synthetic.IncludeStats}

	if !enrichmentSettled(req.Session.Status) {
		section.State = domain.SectionLoading
		section.LoadingLabel = labelAwaiting
		if req.Session.PollStatus == domain.EnrichmentProcessing {
			section.LoadingLabel = labelAnalysing
		}
		section.Gate = PendingGate(spec.Kind, req.Entitled)
		section.CTALabel = ctaLabel(section.Gate.CTA)
		return section, nil
	}

	section.State = domain.SectionReady
	var (
		items     []ActivityItem
		realCount int
		err       error
	)
	switch spec.Source {
	case domain.SourceReal:
		items = truncate(realSlice(req.Session, spec.Real), spec.Limit)
		realCount = len(items)
	case domain.SourceSynthetic:
		items, err = c.syntheticItems(ctx, spec, req)
		if err != nil {
			return Section{}, err
		}
	case domain.SourceMixed:
		items, realCount = c.mixedComments(spec, req.Session)
	}

	section.Items = items
	section.Gate = Gate(spec.Kind, req.Entitled, realCount)
	if len(items) == 0 {
		section.EmptyLabel = labelNoActivity
		if section.Gate.Blurred {
			section.EmptyLabel = labelNotDetected
		}
	}
	section.CTALabel = ctaLabel(section.Gate.CTA)
	return section, nil
}

func ctaLabel(cta domain.CTA) string {
	switch cta {
	case domain.CTAPaywall:
		return labelPaywall
	case domain.CTADataUnavailable:
		return labelDataMissing
	case domain.CTALoadMore:
		return labelLoadMore
	}
	return ""
}

func (c *FeedComposer) syntheticItems(ctx context.Context, spec domain.SectionSpec, req FeedRequest) ([]ActivityItem, error) {
	items, err := c.synthetic.Generate(ctx, SyntheticRequest{
		Viewer:       req.Viewer,
		Token:        req.Session.Token,
		Seed:         spec.Seed,
		Count:        spec.Synthetic.Count,
		ActionLabel:  spec.Synthetic.ActionLabel,
		IncludeStats: spec.Synthetic.IncludeStats,
		PostCount:    req.Session.PostCount(missingProfileCount),
	})
	if err != nil {
		c.logger(ctx, "feed.synthetic_failed", map[string]any{
			"section": string(spec.Kind),
			"error":   err.Error(),
		})
		return nil, err
	}
	return truncate(items, spec.Limit), nil
}

// mixedComments alternates real comments and blurred placeholders, real first, up to the section
// limit. Once real comments run out the remaining placeholders follow in order.
func (c *FeedComposer) mixedComments(spec domain.SectionSpec, session SessionSnapshot) ([]ActivityItem, int) {
	realItems := realSlice(session, spec.Real)
	placeholders := c.synthetic.Placeholders(spec.Seed, spec.Limit-len(realItems), placeholderComment)

	mixed := make([]ActivityItem, 0, spec.Limit)
	realIdx, fillIdx := 0, 0
	for i := 0; i < spec.Limit; i++ {
		switch {
		case i%2 == 0 && realIdx < len(realItems):
			mixed = append(mixed, realItems[realIdx])
			realIdx++
		case fillIdx < len(placeholders):
			mixed = append(mixed, placeholders[fillIdx])
			fillIdx++
		case realIdx < len(realItems):
			mixed = append(mixed, realItems[realIdx])
			realIdx++
		}
	}
	return mixed, len(realItems)
}

func realSlice(session SessionSnapshot, selector domain.SliceSelector) []ActivityItem {
	if selector.Slice == domain.SliceComments {
		return commentItems(window(session.Comments, selector.From, selector.To))
	}
	if session.Activities == nil {
		return nil
	}
	var source []ActivityItem
	switch selector.Slice {
	case domain.SliceLikes:
		source = session.Activities.RecentLikes
	case domain.SliceFollows:
		source = session.Activities.RecentFollows
	}
	return window(source, selector.From, selector.To)
}

func commentItems(comments []domain.Comment) []ActivityItem {
	items := make([]ActivityItem, 0, len(comments))
	for _, comment := range comments {
		display := comment.FullName
		if display == "" {
			display = comment.Username
		}
		items = append(items, ActivityItem{
			Username:    comment.Username,
			DisplayName: display,
			AvatarRef:   comment.AvatarURL,
			Text:        comment.Text,
			Provenance:  domain.ProvenanceReal,
		})
	}
	return items
}

func truncate(items []ActivityItem, limit int) []ActivityItem {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func enrichmentSettled(status domain.AnalysisStatus) bool {
	return status == domain.AnalysisEnrichmentReady || status == domain.AnalysisEnrichmentFailed
}

type popularMetricSpec struct {
	key    string
	label  string
	derive func(p *domain.ProfileSnapshot) float64
	sample int64
}

var popularMetricSpecs = []popularMetricSpec{
	{"reposts", "Репосты", func(p *domain.ProfileSnapshot) float64 { return float64(p.PostsCount) * 0.15 }, 89},
	{"reach", "Охват", func(p *domain.ProfileSnapshot) float64 { return float64(p.Followers) * 1.2 }, 12456},
	{"views", "Просмотры", func(p *domain.ProfileSnapshot) float64 { return float64(p.Followers) * 0.8 }, 24891},
	{"likes", "Лайки", func(p *domain.ProfileSnapshot) float64 { return float64(p.PostsCount) * float64(p.Followers) * 0.03 }, 2847},
	{"comments", "Комментарии", func(p *domain.ProfileSnapshot) float64 { return float64(p.PostsCount) * float64(p.Followers) * 0.005 }, 1203},
	{"stories", "Истории", func(p *domain.ProfileSnapshot) float64 { return float64(p.PostsCount) * 2.1 }, 234},
	{"reels", "Рилс", func(p *domain.ProfileSnapshot) float64 { return float64(p.PostsCount) * 0.6 }, 89},
	{"group_chats", "Групповые чаты", func(p *domain.ProfileSnapshot) float64 { return float64(p.Following) * 0.02 }, 5},
}

// PopularMetrics derives the popular tab grid from the profile counts. Without a profile the
// grid shows fixed sample values.
func PopularMetrics(session SessionSnapshot) []PopularMetric {
	metrics := make([]PopularMetric, 0, len(popularMetricSpecs))
	for _, spec := range popularMetricSpecs {
		value := spec.sample
		if session.Profile != nil {
			value = int64(math.Floor(spec.derive(session.Profile)))
		}
		metrics = append(metrics, PopularMetric{
			Key:       spec.key,
			Label:     spec.label,
			Value:     value,
			Formatted: textutil.FormatCompact(value),
		})
	}
	return metrics
}

// RecentPosts returns the first posts of the analysed profile shown on the popular tab.
func RecentPosts(session SessionSnapshot) []domain.Post {
	if session.Profile == nil {
		return nil
	}
	return append([]domain.Post(nil), window(session.Profile.RecentPosts, 0, recentPostsShown)...)
}
