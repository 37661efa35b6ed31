// Package timeline converts battle-centric records into player-centric,
// time-ordered perspective sequences.
//
// Each battle becomes two entries: the winner's perspective and the loser's.
// Entries are grouped by player and sorted ascending by time, with ties
// broken by stable input order. Temporal features downstream depend on that
// ordering, so it is established here and nowhere else.
package timeline

import (
	"context"
	"sort"

	"github.com/arenalab/churnsight/internal/domain/model"
	"github.com/arenalab/churnsight/pkg/logger"
	"github.com/arenalab/churnsight/pkg/metrics"
)

// Builder accumulates perspective entries grouped by player.
type Builder struct {
	groups map[string][]model.TimelineEntry
	seq    int64

	// Diagnostics, reported at the end of the run.
	dropped    int64
	duplicates int64

	logger logger.Logger
}

// Option applies a configuration option to the Builder.
type Option func(*Builder)

// WithLogger sets a custom logger for the builder.
func WithLogger(l logger.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// New creates an empty Builder.
func New(opts ...Option) *Builder {
	b := &Builder{
		groups: make(map[string][]model.TimelineEntry),
		logger: logger.Get().Named("timeline"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Add ingests one batch of battles. Battles with an empty participant tag or
// a zero timestamp are dropped and counted; the drop count is a required
// diagnostic, never a silent loss.
func (b *Builder) Add(ctx context.Context, battles []model.Battle) {
	for i := range battles {
		bt := &battles[i]
		if bt.WinnerTag == "" || bt.LoserTag == "" || bt.Time.IsZero() {
			b.dropped++
			metrics.RecordMalformedRow()
			continue
		}

		seq := b.seq
		b.seq++

		b.groups[bt.WinnerTag] = append(b.groups[bt.WinnerTag], model.TimelineEntry{
			PlayerTag:        bt.WinnerTag,
			Time:             bt.Time,
			Outcome:          model.Win,
			TrophiesBefore:   bt.WinnerTrophies,
			TrophyChange:     bt.WinnerChange,
			Crowns:           bt.WinnerCrowns,
			OpponentTrophies: bt.LoserTrophies,
			GameMode:         bt.GameMode,
			Arena:            bt.Arena,
			Seq:              seq,
		})
		b.groups[bt.LoserTag] = append(b.groups[bt.LoserTag], model.TimelineEntry{
			PlayerTag:        bt.LoserTag,
			Time:             bt.Time,
			Outcome:          model.Loss,
			TrophiesBefore:   bt.LoserTrophies,
			TrophyChange:     bt.LoserChange,
			Crowns:           bt.LoserCrowns,
			OpponentTrophies: bt.WinnerTrophies,
			GameMode:         bt.GameMode,
			Arena:            bt.Arena,
			Seq:              seq,
		})
		metrics.RecordTimelineEntries(2)
	}
}

// Build sorts every player group ascending by time (ties by input sequence)
// and returns the grouped timeline. Duplicate timestamps within a player are
// kept in input order and counted as a diagnostic.
func (b *Builder) Build(ctx context.Context) map[string][]model.TimelineEntry {
	for tag, entries := range b.groups {
		sort.SliceStable(entries, func(i, j int) bool {
			if entries[i].Time.Equal(entries[j].Time) {
				return entries[i].Seq < entries[j].Seq
			}
			return entries[i].Time.Before(entries[j].Time)
		})
		for i := 1; i < len(entries); i++ {
			if entries[i].Time.Equal(entries[i-1].Time) {
				b.duplicates++
				metrics.RecordDuplicateTimestamp()
				b.logger.Debug(ctx, "duplicate timestamp in player timeline",
					logger.String("player", tag),
					logger.Time("time", entries[i].Time),
				)
			}
		}
	}

	metrics.UpdatePlayersTracked(len(b.groups))
	b.logger.Info(ctx, "timeline built",
		logger.Int("players", len(b.groups)),
		logger.Int64("dropped_battles", b.dropped),
		logger.Int64("duplicate_timestamps", b.duplicates),
	)
	return b.groups
}

// Dropped returns the number of malformed battles dropped so far.
func (b *Builder) Dropped() int64 { return b.dropped }

// DuplicateTimestamps returns the number of tie-broken duplicate timestamps
// observed during Build.
func (b *Builder) DuplicateTimestamps() int64 { return b.duplicates }
