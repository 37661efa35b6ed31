// Package app wires the pipeline stages into a single batch run.
//
// Each stage takes an explicit input table and returns an explicit output;
// there is no ambient state, so the dependency graph is exactly the call
// order in Run.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arenalab/churnsight/internal/adapters/artifact"
	"github.com/arenalab/churnsight/internal/adapters/fold"
	"github.com/arenalab/churnsight/internal/adapters/source"
	"github.com/arenalab/churnsight/internal/adapters/store"
	"github.com/arenalab/churnsight/internal/config"
	"github.com/arenalab/churnsight/internal/domain/aggregate"
	"github.com/arenalab/churnsight/internal/domain/behavior"
	"github.com/arenalab/churnsight/internal/domain/churn"
	"github.com/arenalab/churnsight/internal/domain/learn"
	"github.com/arenalab/churnsight/internal/domain/model"
	"github.com/arenalab/churnsight/internal/domain/temporal"
	"github.com/arenalab/churnsight/internal/domain/timeline"
	"github.com/arenalab/churnsight/pkg/logger"
	"github.com/arenalab/churnsight/pkg/metrics"
)

// Summary reports what a completed run produced.
type Summary struct {
	RunID               string
	Players             int
	QualifiedPlayers    int
	DroppedBattles      int64
	DuplicateTimestamps int64
	Horizon             time.Time
	Buckets             []model.TiltBucketRow
	Model               *learn.TrainedModel
}

// Pipeline runs the full batch: scan, timeline, fold, aggregate, tilt,
// churn, train, persist.
type Pipeline struct {
	cfg     *config.Config
	scanner source.Scanner
	logger  logger.Logger

	// persistArtifacts is disabled in tests that only care about the
	// in-memory results.
	persistArtifacts bool
}

// Option applies a configuration option to the Pipeline.
type Option func(*Pipeline)

// WithScanner overrides the battle log scanner, mainly for tests.
func WithScanner(s source.Scanner) Option {
	return func(p *Pipeline) {
		if s != nil {
			p.scanner = s
		}
	}
}

// WithLogger sets a custom logger for the pipeline.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithoutArtifacts disables writing artifact files and store rows.
func WithoutArtifacts() Option {
	return func(p *Pipeline) { p.persistArtifacts = false }
}

// New constructs a Pipeline for the given configuration.
func New(cfg *config.Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg: cfg,
		scanner: source.NewCSVScanner(cfg.BattlesPath,
			source.WithBatchSize(cfg.ScanBatchSize),
			source.WithSampleRate(cfg.SampleRate),
		),
		logger:           logger.Get().Named("pipeline"),
		persistArtifacts: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes the pipeline end to end. Per-row and per-player problems
// are recovered and counted inside their stages; configuration and
// label-set problems abort with a descriptive error.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	runID := uuid.New().String()
	p.logger.Info(ctx, "pipeline starting",
		logger.String("run_id", runID),
		logger.String("battles_path", p.cfg.BattlesPath),
		logger.Float64("sample_rate", p.cfg.SampleRate),
		logger.Int64("random_seed", p.cfg.RandomSeed),
	)

	// Stage 1: stream the log into grouped, time-ordered timelines.
	builder := timeline.New()
	groups, err := p.stageTimeline(ctx, builder)
	if err != nil {
		return nil, err
	}

	// Stage 2: parallel per-player temporal folds.
	enriched, err := p.stageFold(ctx, groups)
	if err != nil {
		return nil, err
	}

	// Stages 3-4: filter thin histories, aggregate to profiles.
	agg := aggregate.New(aggregate.WithMinBattles(p.cfg.MinBattles))
	start := time.Now()
	profiles := agg.Aggregate(ctx, enriched)
	metrics.RecordStageDuration("aggregate", time.Since(start).Seconds())

	// Qualifying entries only from here on: the tilt table and the churn
	// horizon are defined over the filtered population.
	qualified := make(map[string][]model.EnrichedEntry, len(profiles))
	for i := range profiles {
		qualified[profiles[i].PlayerTag] = enriched[profiles[i].PlayerTag]
	}

	// Stage 5: tilt scores and the population tilt table.
	scorer := behavior.New()
	start = time.Now()
	scorer.Apply(ctx, profiles, qualified)
	buckets := scorer.ByBucket(ctx, qualified)
	metrics.RecordStageDuration("behavior", time.Since(start).Seconds())

	// Stage 6: churn labels against the horizon.
	labeler := churn.New(churn.WithThresholdDays(p.cfg.ChurnThresholdDays))
	horizon := labeler.Apply(ctx, profiles)

	// Stage 7: train and evaluate.
	trainer := learn.NewTrainer(learn.WithConfig(learn.TrainConfig{
		TrainRatio:     p.cfg.TrainRatio,
		Seed:           p.cfg.RandomSeed,
		VolumeStratify: p.cfg.VolumeStratify,
		NumTrees:       p.cfg.NumTrees,
		MaxDepth:       p.cfg.MaxDepth,
		MinLeafSize:    p.cfg.MinLeafSize,
	}))
	start = time.Now()
	trained, err := trainer.Train(ctx, profiles)
	metrics.RecordStageDuration("train", time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("training stage: %w", err)
	}

	if p.persistArtifacts {
		if err := p.persist(ctx, runID, groups, enriched, profiles, buckets, trained); err != nil {
			return nil, err
		}
	}

	return &Summary{
		RunID:               runID,
		Players:             len(groups),
		QualifiedPlayers:    len(profiles),
		DroppedBattles:      builder.Dropped(),
		DuplicateTimestamps: builder.DuplicateTimestamps(),
		Horizon:             horizon,
		Buckets:             buckets,
		Model:               trained,
	}, nil
}

func (p *Pipeline) stageTimeline(ctx context.Context, builder *timeline.Builder) (map[string][]model.TimelineEntry, error) {
	start := time.Now()
	err := p.scanner.Scan(ctx, func(ctx context.Context, batch []model.Battle) error {
		builder.Add(ctx, batch)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("timeline stage: %w", err)
	}
	groups := builder.Build(ctx)
	metrics.RecordStageDuration("timeline", time.Since(start).Seconds())
	return groups, nil
}

func (p *Pipeline) stageFold(ctx context.Context, groups map[string][]model.TimelineEntry) (map[string][]model.EnrichedEntry, error) {
	start := time.Now()
	engine := temporal.New(temporal.WithFastReturnThreshold(p.cfg.FastReturnThresholdHours))
	pool := fold.New(engine, fold.WithWorkers(p.cfg.WorkerCount))
	enriched, err := pool.Run(ctx, groups)
	metrics.RecordStageDuration("fold", time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("fold stage: %w", err)
	}
	return enriched, nil
}

func (p *Pipeline) persist(
	ctx context.Context,
	runID string,
	groups map[string][]model.TimelineEntry,
	enriched map[string][]model.EnrichedEntry,
	profiles []model.PlayerProfile,
	buckets []model.TiltBucketRow,
	trained *learn.TrainedModel,
) error {
	start := time.Now()
	defer func() {
		metrics.RecordStageDuration("persist", time.Since(start).Seconds())
	}()

	w, err := artifact.New(p.cfg.ArtifactsDir)
	if err != nil {
		return err
	}
	if err := w.WriteTimeline(ctx, groups); err != nil {
		return err
	}
	if err := w.WriteEnriched(ctx, enriched); err != nil {
		return err
	}
	if err := w.WriteProfiles(ctx, profiles); err != nil {
		return err
	}
	if err := w.WriteBuckets(ctx, buckets); err != nil {
		return err
	}
	if err := w.WriteModel(ctx, trained); err != nil {
		return err
	}

	if p.cfg.PostgresDSN == "" {
		return nil
	}
	st, err := store.Open(p.cfg.PostgresDSN, runID)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	if err := st.SaveTimeline(ctx, groups); err != nil {
		return err
	}
	if err := st.SaveEnriched(ctx, enriched); err != nil {
		return err
	}
	if err := st.SaveProfiles(ctx, profiles); err != nil {
		return err
	}
	if err := st.SaveBuckets(ctx, buckets); err != nil {
		return err
	}
	return st.SaveModel(ctx, trained)
}
