package badger

import (
	"context"
	"testing"
	"time"

	"github.com/repset/warmup/internal/interfaces"
	"github.com/repset/warmup/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

func setupTestDB(t *testing.T) (*BadgerDB, func()) {
	t.Helper()

	options := badgerhold.DefaultOptions
	options.Dir = t.TempDir()
	options.ValueDir = options.Dir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		t.Fatalf("Failed to open badger store: %v", err)
	}

	db := &BadgerDB{store: store}
	return db, func() { store.Close() }
}

func testRecord(table, id string, data map[string]interface{}) *models.CachedRecord {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &models.CachedRecord{
		Table:     table,
		ID:        id,
		Data:      data,
		LastSaved: now,
		Metadata: models.CacheEntryMeta{
			Source:   models.CacheSourceWarming,
			CachedAt: now,
		},
	}
}

func TestCachePutGetRoundTrip(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := arbor.NewLogger()
	cache := NewCacheStorage(db, logger)
	ctx := context.Background()

	record := testRecord(models.TableWorkoutLogs, "w1", map[string]interface{}{
		"id":   "w1",
		"name": "Push Day",
	})
	require.NoError(t, cache.Put(ctx, record, 0))

	loaded, err := cache.Get(ctx, models.TableWorkoutLogs, "w1")
	require.NoError(t, err)
	assert.Equal(t, "w1", loaded.ID)
	assert.Equal(t, models.TableWorkoutLogs, loaded.Table)
	assert.Equal(t, "Push Day", loaded.Data["name"])
	assert.Equal(t, models.CacheSourceWarming, loaded.Metadata.Source)
	assert.Equal(t, record.LastSaved.Unix(), loaded.LastSaved.Unix())
}

func TestCacheGetCountsHitsAndMisses(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := arbor.NewLogger()
	cache := NewCacheStorage(db, logger)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, testRecord(models.TableUsers, "u1", map[string]interface{}{"id": "u1"}), 0))

	_, err := cache.Get(ctx, models.TableUsers, "u1")
	require.NoError(t, err)

	_, err = cache.Get(ctx, models.TableUsers, "absent")
	require.ErrorIs(t, err, interfaces.ErrKeyNotFound)

	stats, err := cache.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 50.0, stats.HitRate, 0.01)
	assert.Equal(t, 1, stats.Entries)
}

func TestCachePeekLeavesCountersAlone(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := arbor.NewLogger()
	cache := NewCacheStorage(db, logger)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, testRecord(models.TableUsers, "u1", map[string]interface{}{"id": "u1"}), 0))

	_, err := cache.Peek(ctx, models.TableUsers, "u1")
	require.NoError(t, err)

	_, err = cache.Peek(ctx, models.TableUsers, "absent")
	require.ErrorIs(t, err, interfaces.ErrKeyNotFound)

	stats, err := cache.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Hits)
	assert.Zero(t, stats.Misses)
	assert.InDelta(t, 100.0, stats.HitRate, 0.01) // no reads observed yet
}

func TestCacheTTLExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("TTL expiry waits on badger's one second clock")
	}

	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := arbor.NewLogger()
	cache := NewCacheStorage(db, logger)
	ctx := context.Background()

	// Badger rounds expiry down to whole seconds, so the short entry may
	// drop any time inside the first two seconds. The durable entry proves
	// zero ttl means no expiry.
	short := testRecord(models.TableWorkoutLogs, "short", map[string]interface{}{"id": "short"})
	durable := testRecord(models.TableWorkoutLogs, "durable", map[string]interface{}{"id": "durable"})
	require.NoError(t, cache.Put(ctx, short, time.Second))
	require.NoError(t, cache.Put(ctx, durable, 0))

	time.Sleep(2100 * time.Millisecond)

	_, err := cache.Get(ctx, models.TableWorkoutLogs, "short")
	assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)

	_, err = cache.Get(ctx, models.TableWorkoutLogs, "durable")
	assert.NoError(t, err)
}

func TestCacheInvalidate(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := arbor.NewLogger()
	cache := NewCacheStorage(db, logger)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, testRecord(models.TableExercises, "e1", map[string]interface{}{"id": "e1"}), 0))
	require.NoError(t, cache.Invalidate(ctx, models.TableExercises, "e1"))

	_, err := cache.Peek(ctx, models.TableExercises, "e1")
	assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)

	// Absent keys are not an error
	assert.NoError(t, cache.Invalidate(ctx, models.TableExercises, "never-existed"))
}

func TestCacheInvalidateTableScopedByPrefix(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := arbor.NewLogger()
	cache := NewCacheStorage(db, logger)
	ctx := context.Background()

	for _, id := range []string{"w1", "w2", "w3"} {
		require.NoError(t, cache.Put(ctx, testRecord(models.TableWorkoutLogs, id, map[string]interface{}{"id": id}), 0))
	}
	require.NoError(t, cache.Put(ctx, testRecord(models.TableUsers, "u1", map[string]interface{}{"id": "u1"}), 0))

	removed, err := cache.InvalidateTable(ctx, models.TableWorkoutLogs)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	keys, err := cache.Keys(ctx, models.TableWorkoutLogs)
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, err = cache.Peek(ctx, models.TableUsers, "u1")
	assert.NoError(t, err, "other tables must survive table invalidation")
}

func TestCacheKeysPerTable(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := arbor.NewLogger()
	cache := NewCacheStorage(db, logger)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, testRecord(models.TableUsers, "u1", map[string]interface{}{"id": "u1"}), 0))
	require.NoError(t, cache.Put(ctx, testRecord(models.TableWorkoutLogs, "w2", map[string]interface{}{"id": "w2"}), 0))
	require.NoError(t, cache.Put(ctx, testRecord(models.TableWorkoutLogs, "w1", map[string]interface{}{"id": "w1"}), 0))

	keys, err := cache.Keys(ctx, models.TableWorkoutLogs)
	require.NoError(t, err)
	assert.Equal(t, []string{"w1", "w2"}, keys, "badger iterates keys in order")

	keys, err = cache.Keys(ctx, models.TableUsers)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, keys)

	keys, err = cache.Keys(ctx, models.TablePrograms)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestCachePutValidation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := arbor.NewLogger()
	cache := NewCacheStorage(db, logger)
	ctx := context.Background()

	assert.Error(t, cache.Put(ctx, nil, 0))
	assert.Error(t, cache.Put(ctx, &models.CachedRecord{Table: "", ID: "x"}, 0))
	assert.Error(t, cache.Put(ctx, &models.CachedRecord{Table: models.TableUsers, ID: ""}, 0))
}

func TestCacheRunGCOnFreshStore(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := arbor.NewLogger()
	cache := NewCacheStorage(db, logger)

	// Nothing to reclaim on a fresh store; must not surface as an error
	reclaimed, err := cache.RunGC()
	assert.NoError(t, err)
	assert.False(t, reclaimed)
}
