package services

import (
	"hash/fnv"
	"math/rand/v2"
	"time"

	domain "github.com/kalitka1293/instagram-scan/internal/domain"
)

type bundleSlice struct {
	from, to     int
	action       string
	threshold    float64
	aboveStatus  string
	belowStatus  string
	assignTarget func(*domain.ActivityBundle, []domain.ActivityItem)
}

// Slices of the shuffled mutual connections that feed each activity list. Likes and follows
// overlap on purpose; comments and messages read further down the list.
var bundleSlices = []bundleSlice{
	{
		from: 0, to: 10, action: "оценил (а) ваш пост", threshold: 0.5,
		aboveStatus: "Новый!", belowStatus: "Сейчас",
		assignTarget: func(b *domain.ActivityBundle, items []domain.ActivityItem) { b.RecentLikes = items },
	},
	{
		from: 0, to: 8, action: "подписался на вас", threshold: 0.7,
		aboveStatus: "Новый!", belowStatus: "5 мин назад",
		assignTarget: func(b *domain.ActivityBundle, items []domain.ActivityItem) { b.RecentFollows = items },
	},
	{
		from: 18, to: 26, action: "прокомментировал ваш пост", threshold: 0.6,
		aboveStatus: "Сейчас", belowStatus: "10 мин назад",
		assignTarget: func(b *domain.ActivityBundle, items []domain.ActivityItem) { b.RecentComments = items },
	},
	{
		from: 26, to: 30, action: "отправил сообщение", threshold: 0.8,
		aboveStatus: "Новый!", belowStatus: "30 мин назад",
		assignTarget: func(b *domain.ActivityBundle, items []domain.ActivityItem) { b.RecentMessages = items },
	},
}

// buildActivityBundle turns raw enrichment output into the four real activity lists.
// The shuffle is seeded by the session token, so rebuilding for the same session is stable.
func buildActivityBundle(token string, connections []domain.MutualConnection, now time.Time) domain.ActivityBundle {
	rng := rand.New(rand.NewPCG(tokenSeed(token), 0))

	shuffled := make([]domain.MutualConnection, len(connections))
	copy(shuffled, connections)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	var bundle domain.ActivityBundle
	for _, slice := range bundleSlices {
		rows := window(shuffled, slice.from, slice.to)
		if len(rows) == 0 {
			continue
		}
		items := make([]domain.ActivityItem, 0, len(rows))
		for _, row := range rows {
			status := slice.belowStatus
			if rng.Float64() > slice.threshold {
				status = slice.aboveStatus
			}
			display := row.FullName
			if display == "" {
				display = row.Username
			}
			items = append(items, domain.ActivityItem{
				Username:    row.Username,
				DisplayName: display,
				AvatarRef:   row.AvatarURL,
				ActionLabel: slice.action,
				StatusLabel: status,
				Timestamp:   now,
				Provenance:  domain.ProvenanceReal,
			})
		}
		slice.assignTarget(&bundle, items)
	}
	return bundle
}

// window returns rows[from:to] clamped to the slice bounds.
func window[T any](rows []T, from, to int) []T {
	if from < 0 {
		from = 0
	}
	if to > len(rows) {
		to = len(rows)
	}
	if from >= to {
		return nil
	}
	return rows[from:to]
}

func tokenSeed(token string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(token))
	return h.Sum64()
}
