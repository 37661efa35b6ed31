package learn

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/arenalab/churnsight/internal/domain/model"
	"github.com/arenalab/churnsight/pkg/logger"
)

// TrainedModel bundles a fitted forest with its evaluation and the
// configuration that produced it. Immutable once produced.
type TrainedModel struct {
	ID         string      `json:"id"`
	CreatedAt  time.Time   `json:"created_at"`
	Forest     *Forest     `json:"forest"`
	Evaluation *Evaluation `json:"evaluation"`
	Config     TrainConfig `json:"config"`
}

// TrainConfig is the full training configuration, recorded in the artifact
// so a run can be reproduced.
type TrainConfig struct {
	TrainRatio     float64 `json:"train_ratio"`
	Seed           int64   `json:"seed"`
	VolumeStratify bool    `json:"volume_stratify"`
	NumTrees       int     `json:"num_trees"`
	MaxDepth       int     `json:"max_depth"`
	MinLeafSize    int     `json:"min_leaf_size"`
}

// Trainer runs the single train -> evaluate transition at the end of the
// pipeline.
type Trainer struct {
	cfg    TrainConfig
	logger logger.Logger
}

// Option applies a configuration option to the Trainer.
type Option func(*Trainer)

// WithConfig sets the training configuration.
func WithConfig(cfg TrainConfig) Option {
	return func(t *Trainer) { t.cfg = cfg }
}

// WithLogger sets a custom logger for the trainer.
func WithLogger(l logger.Logger) Option {
	return func(t *Trainer) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewTrainer creates a Trainer with sensible defaults.
func NewTrainer(opts ...Option) *Trainer {
	t := &Trainer{
		cfg: TrainConfig{
			TrainRatio:  0.8,
			Seed:        42,
			NumTrees:    200,
			MaxDepth:    12,
			MinLeafSize: 5,
		},
		logger: logger.Get().Named("learn"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Train assembles the dataset from labeled profiles, splits, fits, and
// evaluates. Degenerate labels, all-null features, and single-class
// partitions abort with a descriptive error; no silent single-class model
// is ever produced.
func (t *Trainer) Train(ctx context.Context, profiles []model.PlayerProfile) (*TrainedModel, error) {
	d, err := NewDataset(profiles)
	if err != nil {
		return nil, err
	}

	trainIdx, testIdx, err := StratifiedSplit(d, SplitConfig{
		TrainRatio:     t.cfg.TrainRatio,
		Seed:           t.cfg.Seed,
		VolumeStratify: t.cfg.VolumeStratify,
		VolumeColumn:   0, // battle_count
	})
	if err != nil {
		return nil, err
	}
	trainSet := d.Subset(trainIdx)
	testSet := d.Subset(testIdx)

	t.logger.Info(ctx, "training churn model",
		logger.Int("train_rows", trainSet.Len()),
		logger.Int("test_rows", testSet.Len()),
		logger.Int("features", len(d.Features)),
		logger.Int("trees", t.cfg.NumTrees),
	)

	forest, err := TrainForest(trainSet, ForestConfig{
		NumTrees:    t.cfg.NumTrees,
		MaxDepth:    t.cfg.MaxDepth,
		MinLeafSize: t.cfg.MinLeafSize,
		Seed:        t.cfg.Seed,
	})
	if err != nil {
		return nil, err
	}

	ev := Evaluate(forest, trainSet, testSet)
	t.logger.Info(ctx, "model evaluated",
		logger.Float64("accuracy", ev.Accuracy),
		logger.Float64("roc_auc", ev.ROCAUC),
		logger.String("top_feature", topFeature(ev)),
	)

	return &TrainedModel{
		ID:         uuid.New().String(),
		CreatedAt:  time.Now().UTC(),
		Forest:     forest,
		Evaluation: ev,
		Config:     t.cfg,
	}, nil
}

func topFeature(ev *Evaluation) string {
	if len(ev.Importances) == 0 {
		return ""
	}
	return ev.Importances[0].Name
}
