// Package interfaces provides service interfaces for dependency injection.
package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/repset/warmup/internal/models"
)

// ErrKeyNotFound is returned when a record is not present in the store
var ErrKeyNotFound = errors.New("key not found")

// CacheStorage - interface for the local record cache
type CacheStorage interface {
	// Put stores a record under its table and id; zero ttl means no expiry
	Put(ctx context.Context, record *models.CachedRecord, ttl time.Duration) error

	// Get retrieves a cached record and counts the lookup as a hit or miss.
	// Returns ErrKeyNotFound when absent or expired.
	Get(ctx context.Context, table, id string) (*models.CachedRecord, error)

	// Peek retrieves without touching the hit/miss counters. Used by the
	// conflict path, which is not a user read.
	Peek(ctx context.Context, table, id string) (*models.CachedRecord, error)

	// Invalidate removes one cached record; absent keys are not an error
	Invalidate(ctx context.Context, table, id string) error

	// InvalidateTable removes every cached record for a table, returning the count removed
	InvalidateTable(ctx context.Context, table string) (int, error)

	// Keys returns the record ids currently cached for a table
	Keys(ctx context.Context, table string) ([]string, error)

	// Stats returns hit/miss counters and the live entry count
	Stats(ctx context.Context) (models.CacheStats, error)

	// RunGC runs one value-log garbage collection cycle.
	// Returns true when space was reclaimed.
	RunGC() (bool, error)
}

// StorageManager aggregates the storage backends behind one lifecycle
type StorageManager interface {
	// CacheStorage returns the record cache store
	CacheStorage() CacheStorage

	// ReportStorage returns the maintenance report store
	ReportStorage() ReportStorage

	// Close closes the underlying database
	Close() error
}

// ReportStorage - interface for maintenance report persistence
type ReportStorage interface {
	// Save persists a completed report
	Save(report *models.MaintenanceReport) error

	// Latest returns the most recent report by completion time.
	// Returns ErrKeyNotFound when no reports exist.
	Latest() (*models.MaintenanceReport, error)

	// List returns up to limit reports, newest first; limit <= 0 returns all
	List(limit int) ([]*models.MaintenanceReport, error)

	// Prune deletes all but the newest keep reports, returning the number removed
	Prune(keep int) (int, error)
}
