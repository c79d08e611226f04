package interfaces

import "github.com/repset/warmup/internal/models"

// HealthService evaluates cache health and plans corrective warming.
type HealthService interface {
	// Snapshot computes a fresh health check from current queue and stats
	// state. Nothing is stored between checks.
	Snapshot() models.HealthSnapshot

	// DetermineWarmingStrategy maps a snapshot to a corrective warming plan:
	// progressive when critical, smart when warning, none when healthy.
	DetermineWarmingStrategy(snap models.HealthSnapshot) models.WarmingPlan
}
