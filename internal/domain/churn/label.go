// Package churn labels players as disengaged based on recency relative to
// the dataset horizon.
//
// The horizon is the latest last-battle timestamp across qualifying
// players. A player whose last battle sits exactly at the horizon has zero
// days since last and can never be labeled churned. That boundary is
// inherent to snapshot-based churn definitions and is left as-is rather
// than papered over.
package churn

import (
	"context"
	"time"

	"github.com/arenalab/churnsight/internal/domain/model"
	"github.com/arenalab/churnsight/pkg/logger"
	"github.com/arenalab/churnsight/pkg/metrics"
)

const hoursPerDay = 24.0

// Labeler assigns churn labels against a horizon.
type Labeler struct {
	thresholdDays float64
	logger        logger.Logger
}

// Option applies a configuration option to the Labeler.
type Option func(*Labeler)

// WithThresholdDays sets the recency threshold in days.
func WithThresholdDays(days float64) Option {
	return func(l *Labeler) {
		if days >= 0 {
			l.thresholdDays = days
		}
	}
}

// WithLogger sets a custom logger for the labeler.
func WithLogger(lg logger.Logger) Option {
	return func(l *Labeler) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// New creates a Labeler with the default seven-day threshold.
func New(opts ...Option) *Labeler {
	l := &Labeler{
		thresholdDays: 7,
		logger:        logger.Get().Named("churn"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Horizon returns the maximum last-battle timestamp across profiles, the
// end of the observation window. Zero time when profiles is empty.
func Horizon(profiles []model.PlayerProfile) time.Time {
	var h time.Time
	for i := range profiles {
		if profiles[i].LastBattle.After(h) {
			h = profiles[i].LastBattle
		}
	}
	return h
}

// Apply fills DaysSinceLast and Churned on every profile, in place, and
// returns the horizon used.
func (l *Labeler) Apply(ctx context.Context, profiles []model.PlayerProfile) time.Time {
	horizon := Horizon(profiles)
	churned := 0
	for i := range profiles {
		p := &profiles[i]
		p.DaysSinceLast = horizon.Sub(p.LastBattle).Hours() / hoursPerDay
		if p.DaysSinceLast > l.thresholdDays {
			p.Churned = 1
			churned++
		} else {
			p.Churned = 0
		}
	}

	metrics.UpdatePlayersChurned(churned)
	l.logger.Info(ctx, "churn labels assigned",
		logger.Time("horizon", horizon),
		logger.Float64("threshold_days", l.thresholdDays),
		logger.Int("churned", churned),
		logger.Int("retained", len(profiles)-churned),
	)
	return horizon
}
