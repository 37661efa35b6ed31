// Package behavior computes the tilt score: the fraction of a player's
// losses followed by a fast return.
//
// A loss with no subsequent battle cannot be scored, so each player's final
// entry is excluded from both numerator and denominator. The population
// table groups the same ratio by loss streak bucket; its shape (a spike at
// short streaks, a collapse at long ones) is an empirical output reported
// against the data, never assumed or enforced.
package behavior

import (
	"context"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/arenalab/churnsight/internal/domain/model"
	"github.com/arenalab/churnsight/pkg/logger"
)

// Scorer computes per-player and population-level tilt.
type Scorer struct {
	logger logger.Logger
}

// Option applies a configuration option to the Scorer.
type Option func(*Scorer)

// WithLogger sets a custom logger for the scorer.
func WithLogger(l logger.Logger) Option {
	return func(s *Scorer) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Scorer.
func New(opts ...Option) *Scorer {
	s := &Scorer{logger: logger.Get().Named("behavior")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScorePlayer returns the tilt score for one player's enriched entries:
// fast-returned losses over losses that have a next battle. Zero when the
// player has no scorable losses.
func (s *Scorer) ScorePlayer(entries []model.EnrichedEntry) float64 {
	losses := 0
	fast := 0
	for i := range entries {
		e := &entries[i]
		if e.Outcome != model.Loss || e.NextTime == nil {
			continue
		}
		losses++
		if e.FastReturn {
			fast++
		}
	}
	if losses == 0 {
		return 0
	}
	return float64(fast) / float64(losses)
}

// Apply fills TiltScore on each profile from that player's entries.
// Profiles without a timeline entry set keep a zero score.
func (s *Scorer) Apply(ctx context.Context, profiles []model.PlayerProfile, enriched map[string][]model.EnrichedEntry) {
	for i := range profiles {
		if entries, ok := enriched[profiles[i].PlayerTag]; ok {
			profiles[i].TiltScore = s.ScorePlayer(entries)
		}
	}
	s.logger.Debug(ctx, "tilt scores applied", logger.Int("players", len(profiles)))
}

// ByBucket groups scorable losses across players by loss streak bucket and
// reports the fast-return rate and median gap per bucket: the same ratio as
// ScorePlayer, sliced by streak depth instead of by player. Exactly one row
// per bucket, in bucket order. A bucket with no scorable losses reports nil
// rates rather than a misleading zero; the "0" bucket is always empty since
// a loss implies a streak of at least one.
//
// Only entries belonging to players in the enriched set are considered; the
// caller passes the already-filtered population.
func (s *Scorer) ByBucket(ctx context.Context, enriched map[string][]model.EnrichedEntry) []model.TiltBucketRow {
	type acc struct {
		count int
		fast  int
		gaps  []float64
	}
	accs := make(map[model.StreakBucket]*acc, len(model.Buckets()))
	for _, b := range model.Buckets() {
		accs[b] = &acc{}
	}

	for _, entries := range enriched {
		for i := range entries {
			e := &entries[i]
			// Same qualification as the per-player score: a loss with a
			// next battle to measure the return against.
			if e.Outcome != model.Loss || e.NextTime == nil {
				continue
			}
			a := accs[e.Bucket]
			a.count++
			if e.FastReturn {
				a.fast++
			}
			if e.GapHours != nil {
				a.gaps = append(a.gaps, *e.GapHours)
			}
		}
	}

	rows := make([]model.TiltBucketRow, 0, len(model.Buckets()))
	for _, b := range model.Buckets() {
		a := accs[b]
		row := model.TiltBucketRow{Bucket: b, SampleCount: a.count}
		if a.count > 0 {
			rate := float64(a.fast) / float64(a.count)
			row.FastReturnRate = &rate
		}
		if len(a.gaps) > 0 {
			sort.Float64s(a.gaps)
			median := stat.Quantile(0.5, stat.Empirical, a.gaps, nil)
			row.MedianGapHours = &median
		}
		rows = append(rows, row)

		if row.FastReturnRate != nil {
			s.logger.Debug(ctx, "tilt bucket",
				logger.String("bucket", string(b)),
				logger.Float64("fast_return_rate", *row.FastReturnRate),
				logger.Int("samples", a.count),
			)
		}
	}
	return rows
}
