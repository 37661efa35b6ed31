// Package aggregate filters thin player histories and collapses enriched
// timelines into per-player profiles.
package aggregate

import (
	"context"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/arenalab/churnsight/internal/domain/model"
	"github.com/arenalab/churnsight/pkg/logger"
	"github.com/arenalab/churnsight/pkg/metrics"
)

const hoursPerDay = 24.0

// Aggregator builds PlayerProfiles from enriched timelines.
type Aggregator struct {
	minBattles int
	logger     logger.Logger

	filtered int64
}

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithMinBattles sets the minimum entry count a player needs to qualify.
func WithMinBattles(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.minBattles = n
		}
	}
}

// WithLogger sets a custom logger for the aggregator.
func WithLogger(l logger.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an Aggregator with the default minimum of 10 battles.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		minBattles: 10,
		logger:     logger.Get().Named("aggregate"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate collapses each qualifying player's entries into one profile.
// Players with fewer than the minimum entries are excluded and surfaced as
// a single aggregate count. Profiles are returned sorted by player tag so
// runs over the same snapshot are bit-identical.
func (a *Aggregator) Aggregate(ctx context.Context, enriched map[string][]model.EnrichedEntry) []model.PlayerProfile {
	profiles := make([]model.PlayerProfile, 0, len(enriched))
	a.filtered = 0

	for tag, entries := range enriched {
		if len(entries) < a.minBattles {
			a.filtered++
			continue
		}
		profiles = append(profiles, a.profile(tag, entries))
	}

	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].PlayerTag < profiles[j].PlayerTag
	})

	metrics.RecordPlayersFiltered(int(a.filtered))
	metrics.UpdatePlayersQualified(len(profiles))
	a.logger.Info(ctx, "players aggregated",
		logger.Int("qualified", len(profiles)),
		logger.Int64("filtered_insufficient_history", a.filtered),
		logger.Int("min_battles", a.minBattles),
	)
	return profiles
}

// Filtered returns how many players the last Aggregate call excluded.
func (a *Aggregator) Filtered() int64 { return a.filtered }

func (a *Aggregator) profile(tag string, entries []model.EnrichedEntry) model.PlayerProfile {
	p := model.PlayerProfile{
		PlayerTag:        tag,
		BattleCount:      len(entries),
		StartingTrophies: entries[0].TrophiesBefore,
		EndingTrophies:   entries[len(entries)-1].TrophiesBefore,
		FirstBattle:      entries[0].Time,
		LastBattle:       entries[len(entries)-1].Time,
	}

	wins := 0
	fastReturns := 0
	withNext := 0
	gaps := make([]float64, 0, len(entries)-1)
	for i := range entries {
		e := &entries[i]
		if e.Outcome == model.Win {
			wins++
		}
		p.TotalTrophyChange += e.TrophyChange
		if e.LossStreak > p.MaxLossStreak {
			p.MaxLossStreak = e.LossStreak
		}
		if e.WinStreak > p.MaxWinStreak {
			p.MaxWinStreak = e.WinStreak
		}
		// Gap statistics cover non-null gaps only; the final entry has
		// no next battle and contributes to neither rate nor gaps.
		if e.GapHours != nil {
			gaps = append(gaps, *e.GapHours)
			withNext++
			if e.FastReturn {
				fastReturns++
			}
		}
	}

	p.WinRate = float64(wins) / float64(len(entries))
	p.TrophyMomentum = p.EndingTrophies - p.StartingTrophies
	if withNext > 0 {
		p.FastReturnRate = float64(fastReturns) / float64(withNext)
	}

	if len(gaps) > 0 {
		p.AvgGapHours = stat.Mean(gaps, nil)
		if len(gaps) > 1 {
			p.StdGapHours = stat.StdDev(gaps, nil)
		}
		sorted := append([]float64(nil), gaps...)
		sort.Float64s(sorted)
		p.MedianGapHours = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	}

	p.DaysActive = p.LastBattle.Sub(p.FirstBattle).Hours() / hoursPerDay
	daysForRate := p.DaysActive
	if daysForRate < 1 {
		daysForRate = 1
	}
	p.BattlesPerDay = float64(p.BattleCount) / daysForRate

	return p
}
