package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	domain "github.com/kalitka1293/instagram-scan/internal/domain"
	"github.com/kalitka1293/instagram-scan/internal/repositories"
)

const (
	defaultSyntheticPostCount = 10
	placeholderAuthor         = "кто-то написал"
)

var syntheticNamePool = []struct {
	handle  string
	display string
}{
	{"alex_photo", "Александр Петров"},
	{"maria_style", "Мария Стиль"},
	{"john_travel", "Джон Тревел"},
	{"anna_art", "Анна Арт"},
	{"mike_fitness", "Майк Фитнес"},
	{"lisa_food", "Лиза Фуд"},
	{"david_music", "Дэвид Мьюзик"},
	{"kate_fashion", "Кейт Фешн"},
}

// SyntheticRequest describes one batch of filler items for a section.
type SyntheticRequest struct {
	Viewer       string
	Token        string
	Seed         int
	Count        int
	ActionLabel  string
	IncludeStats bool
	// PostCount bounds cached engagement values. Values <= 0 fall back to the default of 10.
	PostCount int64
}

// SyntheticFeedDeps bundles collaborators of the synthetic generator.
type SyntheticFeedDeps struct {
	Store  repositories.EngagementStore
	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

// SyntheticFeed produces stable filler activity for sections without real data backing.
type SyntheticFeed struct {
	store  repositories.EngagementStore
	clock  func() time.Time
	logger func(ctx context.Context, event string, fields map[string]any)
}

// NewSyntheticFeed validates dependencies and constructs the generator.
func NewSyntheticFeed(deps SyntheticFeedDeps) (*SyntheticFeed, error) {
	if deps.Store == nil {
		return nil, errors.New("synthetic feed: engagement store is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &SyntheticFeed{
		store: deps.Store,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// AvatarID returns the avatar identity of the index-th item of a section. Ids of sections with
// distinct seeds never overlap while a section holds fewer than 100 items.
func AvatarID(seed, index int) int {
	return seed*100 + index + 1
}

func avatarURL(id int) string {
	return fmt.Sprintf("https://picsum.photos/100/100?random=%d", id)
}

// Generate returns req.Count filler items. The draw is seeded by (token, seed), so the same
// section renders identically within a session. With IncludeStats the engagement count is read
// through the engagement store; the first value stored for (viewer, seed, username) wins.
func (g *SyntheticFeed) Generate(ctx context.Context, req SyntheticRequest) ([]domain.ActivityItem, error) {
	if req.Count <= 0 {
		return nil, nil
	}
	postCount := req.PostCount
	if postCount <= 0 {
		postCount = defaultSyntheticPostCount
	}

	rng := rand.New(rand.NewPCG(tokenSeed(req.Token), uint64(req.Seed)))
	now := g.clock()
	items := make([]domain.ActivityItem, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		pick := syntheticNamePool[rng.IntN(len(syntheticNamePool))]
		username := fmt.Sprintf("%s%d", pick.handle, rng.IntN(100))

		var count int64
		if req.IncludeStats {
			candidate := rng.Int64N(postCount + 1)
			stored, err := g.engagement(ctx, domain.EngagementKey{Viewer: req.Viewer, Seed: req.Seed, Username: username}, candidate)
			if err != nil {
				return nil, err
			}
			count = stored
		} else {
			count = 5 + rng.Int64N(50)
		}

		status := "Сейчас"
		if rng.Float64() > 0.6 {
			status = "Новый!"
		}

		items = append(items, domain.ActivityItem{
			Username:        username,
			DisplayName:     pick.display,
			AvatarRef:       avatarURL(AvatarID(req.Seed, i)),
			ActionLabel:     req.ActionLabel,
			StatusLabel:     status,
			Timestamp:       now,
			EngagementCount: &count,
			Provenance:      domain.ProvenanceSynthetic,
		})
	}
	return items, nil
}

// Placeholders returns blurred comment placeholders for the mixed comments section.
func (g *SyntheticFeed) Placeholders(seed, count int, text string) []domain.ActivityItem {
	if count <= 0 {
		return nil
	}
	now := g.clock()
	items := make([]domain.ActivityItem, 0, count)
	for i := 0; i < count; i++ {
		items = append(items, domain.ActivityItem{
			Username:    placeholderAuthor,
			DisplayName: placeholderAuthor,
			AvatarRef:   avatarURL(AvatarID(seed, i)),
			Text:        text,
			Timestamp:   now,
			Placeholder: true,
			Provenance:  domain.ProvenanceSynthetic,
		})
	}
	return items
}

func (g *SyntheticFeed) engagement(ctx context.Context, key domain.EngagementKey, candidate int64) (int64, error) {
	stored, _, err := g.store.LoadOrStore(ctx, key, candidate)
	if err == nil {
		return stored, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return 0, ctxErr
	}
	g.logger(ctx, "synthetic.engagement_store_failed", map[string]any{
		"seed":  key.Seed,
		"error": err.Error(),
	})
	return candidate, nil
}
