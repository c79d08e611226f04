package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/repset/warmup/internal/interfaces"
	"github.com/repset/warmup/internal/models"
	"github.com/ternarybob/arbor"
)

// Cache entries live on the raw badger keyspace rather than badgerhold so
// each record can carry its own TTL. Key format: cache:{table}:{id}
const cacheKeyPrefix = "cache:"

// gcDiscardRatio reclaims value log files with at least half garbage
const gcDiscardRatio = 0.5

// cacheStorage implements cache storage using BadgerDB
type cacheStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	hits   int64
	misses int64
}

// NewCacheStorage creates a new cache storage service
func NewCacheStorage(db *BadgerDB, logger arbor.ILogger) interfaces.CacheStorage {
	return &cacheStorage{
		db:     db,
		logger: logger,
	}
}

// Put stores a record under its table and id; zero ttl means no expiry
func (s *cacheStorage) Put(ctx context.Context, record *models.CachedRecord, ttl time.Duration) error {
	if record == nil {
		return fmt.Errorf("record is required")
	}
	if record.Table == "" || record.ID == "" {
		return fmt.Errorf("record table and id are required")
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal cached record: %w", err)
	}

	key := cacheKey(record.Table, record.ID)
	err = s.db.Badger().Update(func(txn *badgerdb.Txn) error {
		entry := badgerdb.NewEntry(key, data)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("failed to store cache entry %s/%s: %w", record.Table, record.ID, err)
	}

	return nil
}

// Get retrieves a cached record and counts the lookup as a hit or miss.
// Expired entries surface as misses; badger drops them from reads at expiry.
func (s *cacheStorage) Get(ctx context.Context, table, id string) (*models.CachedRecord, error) {
	record, err := s.read(table, id)
	if err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			atomic.AddInt64(&s.misses, 1)
		}
		return nil, err
	}

	atomic.AddInt64(&s.hits, 1)
	return record, nil
}

// Peek retrieves without touching the hit/miss counters
func (s *cacheStorage) Peek(ctx context.Context, table, id string) (*models.CachedRecord, error) {
	return s.read(table, id)
}

// Invalidate removes one cached record; absent keys are not an error
func (s *cacheStorage) Invalidate(ctx context.Context, table, id string) error {
	err := s.db.Badger().Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(cacheKey(table, id))
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate cache entry %s/%s: %w", table, id, err)
	}

	s.logger.Debug().Str("table", table).Str("id", id).Msg("Cache entry invalidated")
	return nil
}

// InvalidateTable removes every cached record for a table
func (s *cacheStorage) InvalidateTable(ctx context.Context, table string) (int, error) {
	removed := 0
	prefix := tablePrefix(table)

	err := s.db.Badger().Update(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if err := txn.Delete(key); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate table %s: %w", table, err)
	}

	if removed > 0 {
		s.logger.Debug().Str("table", table).Int("removed", removed).Msg("Cache table invalidated")
	}
	return removed, nil
}

// Keys returns the record ids currently cached for a table
func (s *cacheStorage) Keys(ctx context.Context, table string) ([]string, error) {
	ids := []string{}
	prefix := tablePrefix(table)

	err := s.db.Badger().View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			ids = append(ids, strings.TrimPrefix(key, string(prefix)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list cache keys for %s: %w", table, err)
	}

	return ids, nil
}

// Stats returns hit/miss counters and the live entry count
func (s *cacheStorage) Stats(ctx context.Context) (models.CacheStats, error) {
	entries := 0
	prefix := []byte(cacheKeyPrefix)

	err := s.db.Badger().View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			entries++
		}
		return nil
	})
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("failed to count cache entries: %w", err)
	}

	hits := atomic.LoadInt64(&s.hits)
	misses := atomic.LoadInt64(&s.misses)

	stats := models.CacheStats{
		Hits:    hits,
		Misses:  misses,
		HitRate: 100,
		Entries: entries,
	}
	if total := hits + misses; total > 0 {
		stats.HitRate = float64(hits) / float64(total) * 100
	}

	return stats, nil
}

// RunGC runs one value log garbage collection cycle.
// ErrNoRewrite means nothing needed reclaiming, not a failure.
func (s *cacheStorage) RunGC() (bool, error) {
	err := s.db.Badger().RunValueLogGC(gcDiscardRatio)
	if err == nil {
		s.logger.Debug().Msg("Badger value log GC reclaimed space")
		return true, nil
	}
	if errors.Is(err, badgerdb.ErrNoRewrite) {
		return false, nil
	}
	return false, fmt.Errorf("value log GC failed: %w", err)
}

// read loads and decodes one cache entry outside the counter paths
func (s *cacheStorage) read(table, id string) (*models.CachedRecord, error) {
	var record models.CachedRecord

	err := s.db.Badger().View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(cacheKey(table, id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if err != nil {
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil, interfaces.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to read cache entry %s/%s: %w", table, id, err)
	}

	return &record, nil
}

func cacheKey(table, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", cacheKeyPrefix, table, id))
}

func tablePrefix(table string) []byte {
	return []byte(fmt.Sprintf("%s%s:", cacheKeyPrefix, table))
}
