package models

// Seed scenario definitions are loaded from YAML and validated with
// go-playground/validator before any remote writes happen.

// SeedScenario defines the records seeded into a fresh remote environment.
type SeedScenario struct {
	Name      string         `yaml:"name" validate:"required"`
	Users     []SeedUser     `yaml:"users" validate:"required,min=1,dive"`
	Exercises []SeedExercise `yaml:"exercises" validate:"dive"`
	Programs  []SeedProgram  `yaml:"programs" validate:"dive"`
}

// SeedUser is one user account to create.
type SeedUser struct {
	Name  string `yaml:"name" validate:"required"`
	Email string `yaml:"email" validate:"required,email"`
	Level string `yaml:"level" validate:"omitempty,oneof=beginner intermediate advanced"`
}

// SeedExercise is one exercise catalog entry to create.
type SeedExercise struct {
	Name       string   `yaml:"name" validate:"required"`
	Category   string   `yaml:"category" validate:"required"`
	Bodyweight bool     `yaml:"bodyweight"`
	Muscles    []string `yaml:"muscles"`
}

// SeedProgram is one workout program to create. Exercises reference catalog
// entries by name.
type SeedProgram struct {
	Name        string   `yaml:"name" validate:"required"`
	Weeks       int      `yaml:"weeks" validate:"min=1"`
	DaysPerWeek int      `yaml:"days_per_week" validate:"min=1,max=7"`
	Exercises   []string `yaml:"exercises" validate:"required,min=1"`
}

// SeedResult summarizes a completed seeding run.
type SeedResult struct {
	Scenario   string   `json:"scenario"`
	Users      int      `json:"users"`
	Exercises  int      `json:"exercises"`
	Programs   int      `json:"programs"`
	Operations []string `json:"operations"` // completed operation names in order
}
