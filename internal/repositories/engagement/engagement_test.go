package engagement

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/kalitka1293/instagram-scan/internal/domain"
	"github.com/kalitka1293/instagram-scan/internal/repositories"
)

func storesUnderTest(t *testing.T) map[string]repositories.EngagementStore {
	t.Helper()
	memory, err := NewMemoryStore(100)
	require.NoError(t, err)
	sqlite, err := OpenSQLite(context.Background(), ":memory:", 100)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = memory.Close()
		_ = sqlite.Close()
	})
	return map[string]repositories.EngagementStore{"memory": memory, "sqlite": sqlite}
}

func TestLoadOrStoreIsWriteOnce(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := domain.EngagementKey{Viewer: "v1", Seed: 6, Username: "alex_photo42"}

			got, loaded, err := store.LoadOrStore(ctx, key, 7)
			require.NoError(t, err)
			assert.False(t, loaded)
			assert.Equal(t, int64(7), got)

			got, loaded, err = store.LoadOrStore(ctx, key, 3)
			require.NoError(t, err)
			assert.True(t, loaded)
			assert.Equal(t, int64(7), got)
		})
	}
}

func TestLoadOrStoreScopesByViewerAndSeed(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := domain.EngagementKey{Viewer: "v1", Seed: 6, Username: "maria_life7"}

			_, _, err := store.LoadOrStore(ctx, base, 1)
			require.NoError(t, err)

			other := base
			other.Viewer = "v2"
			got, loaded, err := store.LoadOrStore(ctx, other, 2)
			require.NoError(t, err)
			assert.False(t, loaded)
			assert.Equal(t, int64(2), got)

			otherSeed := base
			otherSeed.Seed = 7
			got, loaded, err = store.LoadOrStore(ctx, otherSeed, 3)
			require.NoError(t, err)
			assert.False(t, loaded)
			assert.Equal(t, int64(3), got)
		})
	}
}

func TestConcurrentLoadOrStoreAgrees(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			key := domain.EngagementKey{Viewer: "v1", Seed: 6, Username: "dmitry_style3"}
			results := make([]int64, 16)
			var wg sync.WaitGroup
			for i := range results {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					got, _, err := store.LoadOrStore(context.Background(), key, int64(i))
					assert.NoError(t, err)
					results[i] = got
				}(i)
			}
			wg.Wait()
			for _, got := range results {
				assert.Equal(t, results[0], got)
			}
		})
	}
}

func TestMemoryStoreEvictsLeastRecentlyUsed(t *testing.T) {
	store, err := NewMemoryStore(2)
	require.NoError(t, err)
	ctx := context.Background()

	a := domain.EngagementKey{Viewer: "v", Seed: 1, Username: "a"}
	b := domain.EngagementKey{Viewer: "v", Seed: 1, Username: "b"}
	c := domain.EngagementKey{Viewer: "v", Seed: 1, Username: "c"}

	_, _, _ = store.LoadOrStore(ctx, a, 1)
	_, _, _ = store.LoadOrStore(ctx, b, 2)
	_, _, _ = store.LoadOrStore(ctx, a, 9)
	_, _, _ = store.LoadOrStore(ctx, c, 3)

	assert.Equal(t, 2, store.Len())
	got, loaded, err := store.LoadOrStore(ctx, b, 5)
	require.NoError(t, err)
	assert.False(t, loaded, "b should have been evicted")
	assert.Equal(t, int64(5), got)
}

func TestNewMemoryStoreRejectsZeroCapacity(t *testing.T) {
	_, err := NewMemoryStore(0)
	require.Error(t, err)
}

func TestSQLiteStoreTrimsPerViewer(t *testing.T) {
	base := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	store, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "engagement.db"), 3, WithSQLiteClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _, err := store.LoadOrStore(ctx, domain.EngagementKey{Viewer: "v1", Seed: 6, Username: fmt.Sprintf("user%d", i)}, int64(i))
		require.NoError(t, err)
	}
	_, _, err = store.LoadOrStore(ctx, domain.EngagementKey{Viewer: "v2", Seed: 6, Username: "user0"}, 1)
	require.NoError(t, err)

	count, err := store.CountForViewer(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	count, err = store.CountForViewer(ctx, "v2")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, loaded, err := store.LoadOrStore(ctx, domain.EngagementKey{Viewer: "v1", Seed: 6, Username: "user0"}, 42)
	require.NoError(t, err)
	assert.False(t, loaded, "oldest row should have been trimmed")
	got, loaded, err := store.LoadOrStore(ctx, domain.EngagementKey{Viewer: "v1", Seed: 6, Username: "user4"}, 42)
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.Equal(t, int64(4), got)
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engagement.db")
	ctx := context.Background()
	key := domain.EngagementKey{Viewer: "v1", Seed: 6, Username: "anna_art11"}

	store, err := OpenSQLite(ctx, path, 10)
	require.NoError(t, err)
	_, _, err = store.LoadOrStore(ctx, key, 12)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := OpenSQLite(ctx, path, 10)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	got, loaded, err := reopened.LoadOrStore(ctx, key, 99)
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.Equal(t, int64(12), got)
	require.NoError(t, reopened.Ping(ctx))
}
