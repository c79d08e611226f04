package interfaces

import (
	"context"

	"github.com/repset/warmup/internal/models"
)

// SeedService populates a fresh remote environment from a YAML scenario
type SeedService interface {
	// Seed loads, validates and applies the scenario at path. When an
	// operation fails, the completed ones are rolled back in reverse order.
	Seed(ctx context.Context, path string) (*models.SeedResult, error)
}
