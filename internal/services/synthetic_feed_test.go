package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	domain "github.com/kalitka1293/instagram-scan/internal/domain"
)

type stubEngagementStore struct {
	mu     sync.Mutex
	values map[domain.EngagementKey]int64
	writes int
	err    error
}

func newStubEngagementStore() *stubEngagementStore {
	return &stubEngagementStore{values: map[domain.EngagementKey]int64{}}
}

func (s *stubEngagementStore) LoadOrStore(_ context.Context, key domain.EngagementKey, value int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, false, s.err
	}
	if existing, ok := s.values[key]; ok {
		return existing, true, nil
	}
	s.values[key] = value
	s.writes++
	return value, false, nil
}

func (s *stubEngagementStore) Ping(context.Context) error { return s.err }

func (s *stubEngagementStore) Close() error { return nil }

func newTestSyntheticFeed(t *testing.T, store *stubEngagementStore) *SyntheticFeed {
	t.Helper()
	feed, err := NewSyntheticFeed(SyntheticFeedDeps{
		Store: store,
		Clock: func() time.Time { return time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewSyntheticFeed: %v", err)
	}
	return feed
}

func TestSyntheticGenerateIsStablePerSessionAndSeed(t *testing.T) {
	feed := newTestSyntheticFeed(t, newStubEngagementStore())
	req := SyntheticRequest{Viewer: "viewer-1", Token: "token-1", Seed: 5, Count: 4, ActionLabel: "активная переписка"}

	first, err := feed.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	second, err := feed.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(first) != 4 {
		t.Fatalf("expected 4 items, got %d", len(first))
	}
	for i := range first {
		if first[i].Username != second[i].Username || *first[i].EngagementCount != *second[i].EngagementCount {
			t.Fatalf("item %d differs between renders: %+v vs %+v", i, first[i], second[i])
		}
		if first[i].ActionLabel != "активная переписка" || first[i].Provenance != domain.ProvenanceSynthetic {
			t.Fatalf("unexpected item %+v", first[i])
		}
		count := *first[i].EngagementCount
		if count < 5 || count > 54 {
			t.Fatalf("expected uncached count in [5,54], got %d", count)
		}
	}
}

func TestSyntheticUsernamesComeFromPool(t *testing.T) {
	feed := newTestSyntheticFeed(t, newStubEngagementStore())
	items, err := feed.Generate(context.Background(), SyntheticRequest{Token: "t", Seed: 9, Count: 50})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, item := range items {
		matched := false
		for _, entry := range syntheticNamePool {
			if strings.HasPrefix(item.Username, entry.handle) && item.DisplayName == entry.display {
				suffix := strings.TrimPrefix(item.Username, entry.handle)
				if len(suffix) >= 1 && len(suffix) <= 2 {
					matched = true
				}
			}
		}
		if !matched {
			t.Fatalf("username %q / %q not drawn from pool with 0-99 suffix", item.Username, item.DisplayName)
		}
	}
}

func TestSyntheticEngagementStatsAreCachedPerViewer(t *testing.T) {
	store := newStubEngagementStore()
	feed := newTestSyntheticFeed(t, store)
	req := SyntheticRequest{Viewer: "viewer-1", Token: "token-1", Seed: 6, Count: 4, IncludeStats: true, PostCount: 7}

	first, err := feed.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, item := range first {
		if *item.EngagementCount < 0 || *item.EngagementCount > 7 {
			t.Fatalf("expected cached count in [0,7], got %d", *item.EngagementCount)
		}
	}

	// A new session draws different candidates, but cached usernames keep their first value.
	later := req
	later.Token = "token-2"
	for attempt := 0; attempt < 20; attempt++ {
		later.Token = later.Token + "x"
		items, err := feed.Generate(context.Background(), later)
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		for _, item := range items {
			key := domain.EngagementKey{Viewer: "viewer-1", Seed: 6, Username: item.Username}
			if stored := store.values[key]; stored != *item.EngagementCount {
				t.Fatalf("expected cached %d for %s, got %d", stored, item.Username, *item.EngagementCount)
			}
		}
	}
}

func TestSyntheticEngagementDefaultsPostCount(t *testing.T) {
	feed := newTestSyntheticFeed(t, newStubEngagementStore())
	items, err := feed.Generate(context.Background(), SyntheticRequest{Viewer: "v", Token: "t", Seed: 6, Count: 40, IncludeStats: true})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, item := range items {
		if *item.EngagementCount < 0 || *item.EngagementCount > defaultSyntheticPostCount {
			t.Fatalf("expected count in [0,10], got %d", *item.EngagementCount)
		}
	}
}

func TestSyntheticStoreFailureDegradesToDraw(t *testing.T) {
	store := newStubEngagementStore()
	store.err = errors.New("disk full")
	var events []string
	feed, err := NewSyntheticFeed(SyntheticFeedDeps{
		Store:  store,
		Logger: func(_ context.Context, event string, _ map[string]any) { events = append(events, event) },
	})
	if err != nil {
		t.Fatalf("NewSyntheticFeed: %v", err)
	}
	items, err := feed.Generate(context.Background(), SyntheticRequest{Viewer: "v", Token: "t", Seed: 6, Count: 2, IncludeStats: true, PostCount: 3})
	if err != nil {
		t.Fatalf("expected store failure to be tolerated, got %v", err)
	}
	if len(items) != 2 || len(events) != 2 {
		t.Fatalf("expected 2 items and 2 logged failures, got %d/%v", len(items), events)
	}
}

func TestSyntheticAvatarIDsNeverCollideAcrossSections(t *testing.T) {
	feed := newTestSyntheticFeed(t, newStubEngagementStore())
	seen := map[string]domain.SectionKind{}
	for _, spec := range domain.SectionTable {
		items, err := feed.Generate(context.Background(), SyntheticRequest{
			Viewer: "v", Token: "t", Seed: spec.Seed, Count: 6, IncludeStats: spec.Synthetic.IncludeStats,
		})
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		items = append(items, feed.Placeholders(spec.Seed, 5, "x")...)
		local := map[string]bool{}
		for _, item := range items {
			if owner, ok := seen[item.AvatarRef]; ok && owner != spec.Kind {
				t.Fatalf("avatar %s shared by %s and %s", item.AvatarRef, owner, spec.Kind)
			}
			local[item.AvatarRef] = true
		}
		for ref := range local {
			seen[ref] = spec.Kind
		}
	}
	if AvatarID(6, 0) != 601 || AvatarID(10, 3) != 1004 {
		t.Fatalf("unexpected avatar ids %d %d", AvatarID(6, 0), AvatarID(10, 3))
	}
}

func TestSyntheticPlaceholdersAreBlurredComments(t *testing.T) {
	feed := newTestSyntheticFeed(t, newStubEngagementStore())
	items := feed.Placeholders(10, 3, "что-то написал")
	if len(items) != 3 {
		t.Fatalf("expected 3 placeholders, got %d", len(items))
	}
	for _, item := range items {
		if !item.Placeholder || item.Text != "что-то написал" || item.Provenance != domain.ProvenanceSynthetic {
			t.Fatalf("unexpected placeholder %+v", item)
		}
	}
	if feed.Placeholders(10, 0, "x") != nil {
		t.Fatal("expected no placeholders for zero count")
	}
}

func TestNewSyntheticFeedRequiresStore(t *testing.T) {
	if _, err := NewSyntheticFeed(SyntheticFeedDeps{}); err == nil {
		t.Fatal("expected error without store")
	}
}
