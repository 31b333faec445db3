package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Checkpoint     string       `yaml:"checkpoint" validate:"required"`
	EpisodesPerRun int          `yaml:"episodes_per_run" validate:"gte=1"`
	Runs           int          `yaml:"runs" validate:"gte=1"`
	Seeds          []int64      `yaml:"seeds"`
	HardSuccess    HardSuccess  `yaml:"hard_success"`
	Runner         Runner       `yaml:"runner"`
	LatencyStages  []string     `yaml:"latency_stages" validate:"dive,required"`
	Sweeps         []SweepEntry `yaml:"sweeps" validate:"required,min=1,dive"`
	Results        Results      `yaml:"results"`
}

// HardSuccess names the hard-success predicate used by the classifier.
type HardSuccess struct {
	Rule          string `yaml:"rule" validate:"omitempty,oneof=zero_collision success_only max_collisions"`
	MaxCollisions int    `yaml:"max_collisions" validate:"gte=0"`
}

// Runner configures the episode runner adapter.
type Runner struct {
	Kind           string            `yaml:"kind" validate:"omitempty,oneof=docker exec"`
	Image          string            `yaml:"image" validate:"required_if=Kind docker"`
	Command        []string          `yaml:"command" validate:"required_if=Kind exec"`
	TimeoutMinutes int               `yaml:"timeout_minutes" validate:"gte=0"`
	GPUs           bool              `yaml:"gpus"`
	CPULimit       float64           `yaml:"cpu_limit" validate:"gte=0"`
	MemoryLimit    int64             `yaml:"memory_limit" validate:"gte=0"`
	Env            map[string]string `yaml:"env"`
}

// SweepEntry is one row of the sweep grid as written in the config file.
// Zero-valued episode/run/seed fields inherit the top-level values.
type SweepEntry struct {
	Task             string       `yaml:"task" validate:"required"`
	Category         string       `yaml:"category" validate:"required"`
	Distractors      []Distractor `yaml:"distractors" validate:"dive"`
	DistractorCounts []int        `yaml:"distractor_counts" validate:"dive,gte=0"`
	EpisodesPerRun   int          `yaml:"episodes_per_run" validate:"gte=0"`
	Runs             int          `yaml:"runs" validate:"gte=0"`
	Seeds            []int64      `yaml:"seeds"`
}

type Results struct {
	Dir string `yaml:"dir"`
}

// Timeout is the per-episode wall-clock limit.
func (r Runner) Timeout() time.Duration {
	if r.TimeoutMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(r.TimeoutMinutes) * time.Minute
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes, defaults and validates a config document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Runner.Kind == "" {
		cfg.Runner.Kind = "docker"
	}
	if cfg.HardSuccess.Rule == "" {
		cfg.HardSuccess.Rule = "zero_collision"
	}
	if cfg.Results.Dir == "" {
		cfg.Results.Dir = "results"
	}
}
