package interfaces

import "context"

// RecordService - remote record API consumed by warming, saves and seeding.
// Payloads are generic maps; field names follow the remote schema (camelCase).
type RecordService interface {
	// GetRecord fetches one record by id
	GetRecord(ctx context.Context, table, id string) (map[string]interface{}, error)

	// ListRecords fetches up to limit records matching the filter fields;
	// limit <= 0 means no limit
	ListRecords(ctx context.Context, table string, filter map[string]string, limit int) ([]map[string]interface{}, error)

	// CreateRecord creates a record and returns its id
	CreateRecord(ctx context.Context, table string, data map[string]interface{}) (string, error)

	// UpdateRecord applies a partial update to an existing record
	UpdateRecord(ctx context.Context, table, id string, data map[string]interface{}) error

	// DeleteRecord removes a record
	DeleteRecord(ctx context.Context, table, id string) error
}
