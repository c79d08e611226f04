package badger

import (
	"fmt"

	"github.com/repset/warmup/internal/interfaces"
	"github.com/repset/warmup/internal/models"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// reportStorage persists maintenance reports via badgerhold, keyed by run id
type reportStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewReportStorage creates a new maintenance report storage service
func NewReportStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ReportStorage {
	return &reportStorage{
		db:     db,
		logger: logger,
	}
}

// Save persists a completed report
func (s *reportStorage) Save(report *models.MaintenanceReport) error {
	if report == nil {
		return fmt.Errorf("report is required")
	}
	if report.RunID == "" {
		return fmt.Errorf("report run id is required")
	}

	if err := s.db.Store().Upsert(report.RunID, report); err != nil {
		return fmt.Errorf("failed to save maintenance report %s: %w", report.RunID, err)
	}

	return nil
}

// Latest returns the most recent report by completion time
func (s *reportStorage) Latest() (*models.MaintenanceReport, error) {
	var reports []models.MaintenanceReport
	query := badgerhold.Where("RunID").Ne("").SortBy("CompletedAt").Reverse().Limit(1)

	if err := s.db.Store().Find(&reports, query); err != nil {
		return nil, fmt.Errorf("failed to load latest maintenance report: %w", err)
	}
	if len(reports) == 0 {
		return nil, interfaces.ErrKeyNotFound
	}

	return &reports[0], nil
}

// List returns up to limit reports, newest first; limit <= 0 returns all
func (s *reportStorage) List(limit int) ([]*models.MaintenanceReport, error) {
	query := badgerhold.Where("RunID").Ne("").SortBy("CompletedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var reports []models.MaintenanceReport
	if err := s.db.Store().Find(&reports, query); err != nil {
		return nil, fmt.Errorf("failed to list maintenance reports: %w", err)
	}

	result := make([]*models.MaintenanceReport, len(reports))
	for i := range reports {
		result[i] = &reports[i]
	}
	return result, nil
}

// Prune deletes all but the newest keep reports
func (s *reportStorage) Prune(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	var reports []models.MaintenanceReport
	query := badgerhold.Where("RunID").Ne("").SortBy("CompletedAt").Reverse()
	if err := s.db.Store().Find(&reports, query); err != nil {
		return 0, fmt.Errorf("failed to list maintenance reports for pruning: %w", err)
	}

	if len(reports) <= keep {
		return 0, nil
	}

	removed := 0
	for _, report := range reports[keep:] {
		if err := s.db.Store().Delete(report.RunID, &models.MaintenanceReport{}); err != nil {
			if err == badgerhold.ErrNotFound {
				continue
			}
			return removed, fmt.Errorf("failed to prune maintenance report %s: %w", report.RunID, err)
		}
		removed++
	}

	if removed > 0 {
		s.logger.Debug().Int("removed", removed).Int("kept", keep).Msg("Pruned maintenance reports")
	}
	return removed, nil
}
