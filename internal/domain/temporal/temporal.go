// Package temporal derives causal per-entry features from a player's
// ordered timeline: the gap to the next battle, fast-return flags, and
// running win/loss streaks.
//
// The fold is strictly left-to-right. Entry i sees nothing beyond entry
// i+1, and i+1 only through the next-timestamp/gap pair; every downstream
// statistic relies on that invariant.
package temporal

import (
	"time"

	"github.com/arenalab/churnsight/internal/domain/model"
)

// secondsPerHour converts a gap duration into fractional hours.
const secondsPerHour = 3600.0

// Engine computes temporal features for one player timeline at a time.
// Engines hold no cross-player state, so a single Engine may be shared by
// concurrent folds.
type Engine struct {
	fastReturnThresholdHours float64
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithFastReturnThreshold sets the gap, in hours, below which a return
// counts as fast.
func WithFastReturnThreshold(hours float64) Option {
	return func(e *Engine) {
		if hours > 0 {
			e.fastReturnThresholdHours = hours
		}
	}
}

// New creates an Engine with the default one-hour fast-return threshold.
func New(opts ...Option) *Engine {
	e := &Engine{fastReturnThresholdHours: 1.0}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// foldState carries the running streaks through the left fold.
type foldState struct {
	lossStreak int
	winStreak  int
}

// Enrich runs the single-pass fold over one player's time-ordered entries.
// The input must already be sorted ascending by time; Enrich preserves the
// given order.
func (e *Engine) Enrich(entries []model.TimelineEntry) []model.EnrichedEntry {
	out := make([]model.EnrichedEntry, len(entries))
	var st foldState

	for i := range entries {
		en := model.EnrichedEntry{TimelineEntry: entries[i]}

		// One step of lookahead, never two.
		if i+1 < len(entries) {
			next := entries[i+1].Time
			en.NextTime = &next
			gap := next.Sub(entries[i].Time).Seconds() / secondsPerHour
			en.GapHours = &gap
			en.FastReturn = gap < e.fastReturnThresholdHours
		}

		if entries[i].Outcome == model.Loss {
			st.lossStreak++
			st.winStreak = 0
		} else {
			st.winStreak++
			st.lossStreak = 0
		}
		en.LossStreak = st.lossStreak
		en.WinStreak = st.winStreak
		en.Bucket = model.BucketFor(st.lossStreak)

		out[i] = en
	}
	return out
}

// GapBetween is a convenience for tests and diagnostics: the fractional-hour
// gap between two timestamps.
func GapBetween(from, to time.Time) float64 {
	return to.Sub(from).Seconds() / secondsPerHour
}
