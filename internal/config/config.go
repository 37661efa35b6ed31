// Package config defines pipeline configuration and loading.
//
// Conventions follow the rest of the codebase: a Config built from defaults,
// layered with an optional YAML file and environment variables, validated
// before use. All thresholds the stages consume live here; no stage carries
// its own magic numbers.
package config

import (
	"fmt"
	"runtime"
)

// Default configuration values.
const (
	defaultFastReturnHours = 1.0
	defaultMinBattles      = 10
	defaultChurnDays       = 7.0
	defaultTrainRatio      = 0.8
	defaultRandomSeed      = 42
	defaultSampleRate      = 1.0
	defaultNumTrees        = 200
	defaultMaxDepth        = 12
	defaultMinLeafSize     = 5
	defaultBattlesPath     = "battles.csv"
	defaultArtifactsDir    = "artifacts"
	defaultScanBatchSize   = 8192
)

// Config contains the full pipeline configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// BattlesPath locates the raw battle log CSV.
	BattlesPath string `koanf:"battles_path"`

	// ArtifactsDir receives the persisted intermediate tables and the
	// model metadata record.
	ArtifactsDir string `koanf:"artifacts_dir"`

	// PostgresDSN, when non-empty, enables persisting the intermediate
	// tables to Postgres in addition to the artifact files.
	PostgresDSN string `koanf:"postgres_dsn"`

	// MetricsAddr, when non-empty, exposes /metrics on that address for
	// the duration of the run.
	MetricsAddr string `koanf:"metrics_addr"`

	// SampleRate is the fraction of battle rows processed (0, 1].
	SampleRate float64 `koanf:"sample_rate"`

	// ScanBatchSize is the number of rows decoded per scan batch.
	ScanBatchSize int `koanf:"scan_batch_size"`

	// FastReturnThresholdHours is the gap below which a return counts
	// as fast.
	FastReturnThresholdHours float64 `koanf:"fast_return_threshold_hours"`

	// MinBattles is the minimum entries a player needs to qualify.
	MinBattles int `koanf:"min_battles"`

	// ChurnThresholdDays labels a player churned when their last battle
	// is older than this, relative to the dataset horizon.
	ChurnThresholdDays float64 `koanf:"churn_threshold_days"`

	// TrainRatio is the fraction of players assigned to the train split.
	TrainRatio float64 `koanf:"train_ratio"`

	// RandomSeed drives the split and the forest; fixed for
	// reproducibility.
	RandomSeed int64 `koanf:"random_seed"`

	// VolumeStratify additionally stratifies the split by high/low
	// battle volume.
	VolumeStratify bool `koanf:"volume_stratify"`

	// WorkerCount sets the number of fold workers.
	WorkerCount int `koanf:"worker_count"`

	// Forest hyperparameters.
	NumTrees    int `koanf:"num_trees"`
	MaxDepth    int `koanf:"max_depth"`
	MinLeafSize int `koanf:"min_leaf_size"`
}

// Option applies a configuration option to the Config.
type Option func(*Config)

// WithBattlesPath sets the battle log location.
func WithBattlesPath(path string) Option {
	return func(c *Config) {
		if path != "" {
			c.BattlesPath = path
		}
	}
}

// WithSampleRate sets the fraction of the log to process.
func WithSampleRate(rate float64) Option {
	return func(c *Config) {
		if rate > 0 && rate <= 1 {
			c.SampleRate = rate
		}
	}
}

// WithRandomSeed sets the seed shared by the split and the forest.
func WithRandomSeed(seed int64) Option {
	return func(c *Config) { c.RandomSeed = seed }
}

// New returns a Config populated with defaults, then options applied.
func New(opts ...Option) *Config {
	c := &Config{
		LogLevel:                 "info",
		BattlesPath:              defaultBattlesPath,
		ArtifactsDir:             defaultArtifactsDir,
		SampleRate:               defaultSampleRate,
		ScanBatchSize:            defaultScanBatchSize,
		FastReturnThresholdHours: defaultFastReturnHours,
		MinBattles:               defaultMinBattles,
		ChurnThresholdDays:       defaultChurnDays,
		TrainRatio:               defaultTrainRatio,
		RandomSeed:               defaultRandomSeed,
		WorkerCount:              runtime.NumCPU(),
		NumTrees:                 defaultNumTrees,
		MaxDepth:                 defaultMaxDepth,
		MinLeafSize:              defaultMinLeafSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Validate checks invariants that would otherwise fail deep inside a stage.
func (c *Config) Validate() error {
	if c.BattlesPath == "" {
		return fmt.Errorf("%w: battles_path must not be empty", ErrInvalidConfig)
	}
	if c.SampleRate <= 0 || c.SampleRate > 1 {
		return fmt.Errorf("%w: sample_rate must be in (0, 1], got %g", ErrInvalidConfig, c.SampleRate)
	}
	if c.FastReturnThresholdHours <= 0 {
		return fmt.Errorf("%w: fast_return_threshold_hours must be positive, got %g", ErrInvalidConfig, c.FastReturnThresholdHours)
	}
	if c.MinBattles < 1 {
		return fmt.Errorf("%w: min_battles must be at least 1, got %d", ErrInvalidConfig, c.MinBattles)
	}
	if c.ChurnThresholdDays < 0 {
		return fmt.Errorf("%w: churn_threshold_days must not be negative, got %g", ErrInvalidConfig, c.ChurnThresholdDays)
	}
	if c.TrainRatio <= 0 || c.TrainRatio >= 1 {
		return fmt.Errorf("%w: train_ratio must be in (0, 1), got %g", ErrInvalidConfig, c.TrainRatio)
	}
	if c.NumTrees < 1 {
		return fmt.Errorf("%w: num_trees must be at least 1, got %d", ErrInvalidConfig, c.NumTrees)
	}
	return nil
}
