// Package seeding populates a fresh remote environment from a YAML
// scenario. Each record class is one tracked operation with a registered
// rollback, so a mid-run failure unwinds the finished steps in reverse
// completion order.
package seeding

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/repset/warmup/internal/interfaces"
	"github.com/repset/warmup/internal/models"
	"github.com/repset/warmup/internal/services/ops"
)

// Operation names, in seeding order. Programs reference exercises by name,
// so the catalog must exist before programs are created.
const (
	opSeedUsers     = "seed_users"
	opSeedExercises = "seed_exercises"
	opSeedPrograms  = "seed_programs"
)

// Service implements interfaces.SeedService against the remote record API.
type Service struct {
	remote   interfaces.RecordService
	validate *validator.Validate
	retry    ops.RetryOptions
	logger   arbor.ILogger
}

var _ interfaces.SeedService = (*Service)(nil)

// NewService creates a seeding service.
func NewService(remote interfaces.RecordService, logger arbor.ILogger) *Service {
	return &Service{
		remote:   remote,
		validate: validator.New(),
		retry:    ops.DefaultRetryOptions(),
		logger:   logger,
	}
}

// Seed loads and validates the scenario at path, then creates its users,
// exercises and programs. Each step runs under retry tracking; when a step
// fails, records created by the finished steps are deleted again.
func (s *Service) Seed(ctx context.Context, path string) (*models.SeedResult, error) {
	scenario, err := s.loadScenario(path)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("scenario", scenario.Name).
		Int("users", len(scenario.Users)).
		Int("exercises", len(scenario.Exercises)).
		Int("programs", len(scenario.Programs)).
		Msg("Seeding scenario")

	// Each Seed call owns its tracker, so concurrent runs cannot
	// interleave their rollback histories.
	tracker := ops.NewTracker(s.logger)
	executor := ops.NewExecutor(tracker, s.logger)

	users, err := s.createAll(ctx, executor, opSeedUsers, scenario.Name, models.TableUsers, userPayloads(scenario.Users))
	if err != nil {
		return nil, s.unwind(ctx, executor, err)
	}

	exercises, err := s.createAll(ctx, executor, opSeedExercises, scenario.Name, models.TableExercises, exercisePayloads(scenario.Exercises))
	if err != nil {
		return nil, s.unwind(ctx, executor, err)
	}

	programs, err := s.createAll(ctx, executor, opSeedPrograms, scenario.Name, models.TablePrograms, programPayloads(scenario.Programs))
	if err != nil {
		return nil, s.unwind(ctx, executor, err)
	}

	result := &models.SeedResult{
		Scenario:   scenario.Name,
		Users:      users,
		Exercises:  exercises,
		Programs:   programs,
		Operations: tracker.Completed(),
	}

	s.logger.Info().
		Str("scenario", result.Scenario).
		Int("users", result.Users).
		Int("exercises", result.Exercises).
		Int("programs", result.Programs).
		Msg("Seeding completed")

	return result, nil
}

// loadScenario reads and validates a scenario file. Nothing is written to
// the remote until the whole file has passed validation.
func (s *Service) loadScenario(path string) (*models.SeedScenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario models.SeedScenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("failed to parse scenario file %s: %w", path, err)
	}

	if err := s.validate.Struct(&scenario); err != nil {
		return nil, fmt.Errorf("invalid seed scenario %s: %w", path, err)
	}

	return &scenario, nil
}

// createAll runs one seeding step under the executor. The rollback handler
// is registered before the first create so every id that reaches the remote
// is covered, even when a later attempt fails halfway.
func (s *Service) createAll(ctx context.Context, executor *ops.Executor, name, scenarioName, table string, payloads []map[string]interface{}) (int, error) {
	if len(payloads) == 0 {
		return 0, nil
	}

	var created []string
	executor.RegisterRollback(name, func(ctx context.Context) error {
		return s.deleteCreated(ctx, table, created)
	})

	result, err := executor.ExecuteWithRetry(ctx, name, func(ctx context.Context) (interface{}, error) {
		// Resume from where the previous attempt stopped instead of
		// recreating records that already landed.
		for len(created) < len(payloads) {
			id, err := s.remote.CreateRecord(ctx, table, payloads[len(created)])
			if err != nil {
				return nil, fmt.Errorf("failed to create %s record: %w", table, err)
			}
			created = append(created, id)
		}
		return len(created), nil
	}, scenarioName, s.retry)
	if err != nil {
		// Recovery only unwinds completed steps, so records created by
		// the failed attempts are removed here.
		if len(created) > 0 {
			if cleanupErr := s.deleteCreated(ctx, table, created); cleanupErr != nil {
				s.logger.Warn().
					Str("operation", name).
					Err(cleanupErr).
					Msg("Failed to remove partial records of failed step")
			}
		}
		return 0, err
	}

	count, _ := result.(int)

	s.logger.Info().
		Str("operation", name).
		Str("table", table).
		Int("created", count).
		Msg("Seeding step completed")

	return count, nil
}

// deleteCreated removes seeded records newest-first. A failing delete does
// not stop the others; all failures surface together.
func (s *Service) deleteCreated(ctx context.Context, table string, ids []string) error {
	var errs []error
	for i := len(ids) - 1; i >= 0; i-- {
		if err := s.remote.DeleteRecord(ctx, table, ids[i]); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete %s/%s: %w", table, ids[i], err))
		}
	}
	return errors.Join(errs...)
}

// unwind rolls back the completed steps after a failed one and reports the
// combined outcome. The original failure stays the primary error.
func (s *Service) unwind(ctx context.Context, executor *ops.Executor, cause error) error {
	recovery, recErr := executor.HandlePartialFailure(ctx, cause, ops.RecoveryOptions{ForceCleanup: true})
	if recErr != nil {
		return fmt.Errorf("seeding failed and cleanup was incomplete: %w", recErr)
	}

	if recovery.CleanupPerformed {
		s.logger.Info().
			Strs("rolled_back", recovery.RolledBack).
			Msg("Seeded records rolled back")
	}

	return fmt.Errorf("seeding failed: %w", cause)
}

func userPayloads(users []models.SeedUser) []map[string]interface{} {
	payloads := make([]map[string]interface{}, 0, len(users))
	for _, u := range users {
		data := map[string]interface{}{
			"displayName": u.Name,
			"email":       u.Email,
		}
		if u.Level != "" {
			data["level"] = u.Level
		}
		payloads = append(payloads, data)
	}
	return payloads
}

func exercisePayloads(exercises []models.SeedExercise) []map[string]interface{} {
	payloads := make([]map[string]interface{}, 0, len(exercises))
	for _, e := range exercises {
		data := map[string]interface{}{
			"name":       e.Name,
			"category":   e.Category,
			"bodyweight": e.Bodyweight,
		}
		if len(e.Muscles) > 0 {
			data["muscles"] = e.Muscles
		}
		payloads = append(payloads, data)
	}
	return payloads
}

func programPayloads(programs []models.SeedProgram) []map[string]interface{} {
	payloads := make([]map[string]interface{}, 0, len(programs))
	for _, p := range programs {
		payloads = append(payloads, map[string]interface{}{
			"name":        p.Name,
			"weeks":       p.Weeks,
			"daysPerWeek": p.DaysPerWeek,
			"exercises":   p.Exercises,
		})
	}
	return payloads
}
