// Package artifact persists the pipeline's intermediate tables and the
// model metadata as files under the artifacts directory.
//
// Four columnar tables are written per run: the timeline, the enriched
// timeline, the player profiles, and the tilt-by-bucket table, plus the
// model artifact as JSON.
package artifact

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/arenalab/churnsight/internal/domain/learn"
	"github.com/arenalab/churnsight/internal/domain/model"
	"github.com/arenalab/churnsight/pkg/logger"
)

// File names under the artifacts directory.
const (
	TimelineFile = "timeline.csv"
	EnrichedFile = "timeline_enriched.csv"
	ProfilesFile = "player_profiles.csv"
	BucketsFile  = "tilt_by_streak.csv"
	ModelFile    = "churn_model.json"
)

// Writer writes run artifacts into a directory.
type Writer struct {
	dir    string
	logger logger.Logger
}

// Option applies a configuration option to the Writer.
type Option func(*Writer)

// WithLogger sets a custom logger for the writer.
func WithLogger(l logger.Logger) Option {
	return func(w *Writer) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates a Writer rooted at dir, creating it if needed.
func New(dir string, opts ...Option) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifacts dir: %w", err)
	}
	w := &Writer{
		dir:    dir,
		logger: logger.Get().Named("artifact"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// WriteTimeline writes one row per timeline entry, ordered by player tag
// then time.
func (w *Writer) WriteTimeline(ctx context.Context, groups map[string][]model.TimelineEntry) error {
	header := []string{"player_tag", "battle_time", "outcome", "trophies_before", "trophy_change", "crowns", "opponent_trophies", "game_mode", "arena"}
	return w.writeCSV(ctx, TimelineFile, header, func(emit func([]string) error) error {
		for _, tag := range sortedKeys(groups) {
			for i := range groups[tag] {
				e := &groups[tag][i]
				row := []string{
					e.PlayerTag,
					e.Time.UTC().Format(time.RFC3339),
					strconv.Itoa(e.Outcome),
					formatFloat(e.TrophiesBefore),
					formatFloat(e.TrophyChange),
					formatFloat(e.Crowns),
					formatFloat(e.OpponentTrophies),
					e.GameMode,
					e.Arena,
				}
				if err := emit(row); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// WriteEnriched writes the timeline plus the six derived columns.
func (w *Writer) WriteEnriched(ctx context.Context, enriched map[string][]model.EnrichedEntry) error {
	header := []string{"player_tag", "battle_time", "outcome", "next_battle_time", "gap_hours", "fast_return", "loss_streak", "win_streak", "loss_streak_bucket"}
	return w.writeCSV(ctx, EnrichedFile, header, func(emit func([]string) error) error {
		for _, tag := range sortedKeys(enriched) {
			for i := range enriched[tag] {
				e := &enriched[tag][i]
				next, gap := "", ""
				if e.NextTime != nil {
					next = e.NextTime.UTC().Format(time.RFC3339)
				}
				if e.GapHours != nil {
					gap = formatFloat(*e.GapHours)
				}
				row := []string{
					e.PlayerTag,
					e.Time.UTC().Format(time.RFC3339),
					strconv.Itoa(e.Outcome),
					next,
					gap,
					strconv.FormatBool(e.FastReturn),
					strconv.Itoa(e.LossStreak),
					strconv.Itoa(e.WinStreak),
					string(e.Bucket),
				}
				if err := emit(row); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// WriteProfiles writes one row per qualifying player.
func (w *Writer) WriteProfiles(ctx context.Context, profiles []model.PlayerProfile) error {
	header := []string{
		"player_tag", "battle_count", "win_rate", "total_trophy_change",
		"starting_trophies", "ending_trophies", "trophy_momentum",
		"avg_gap_hours", "median_gap_hours", "std_gap_hours",
		"fast_return_rate", "max_loss_streak", "max_win_streak",
		"first_battle", "last_battle", "days_active", "battles_per_day",
		"tilt_score", "days_since_last", "churned",
	}
	return w.writeCSV(ctx, ProfilesFile, header, func(emit func([]string) error) error {
		for i := range profiles {
			p := &profiles[i]
			row := []string{
				p.PlayerTag,
				strconv.Itoa(p.BattleCount),
				formatFloat(p.WinRate),
				formatFloat(p.TotalTrophyChange),
				formatFloat(p.StartingTrophies),
				formatFloat(p.EndingTrophies),
				formatFloat(p.TrophyMomentum),
				formatFloat(p.AvgGapHours),
				formatFloat(p.MedianGapHours),
				formatFloat(p.StdGapHours),
				formatFloat(p.FastReturnRate),
				strconv.Itoa(p.MaxLossStreak),
				strconv.Itoa(p.MaxWinStreak),
				p.FirstBattle.UTC().Format(time.RFC3339),
				p.LastBattle.UTC().Format(time.RFC3339),
				formatFloat(p.DaysActive),
				formatFloat(p.BattlesPerDay),
				formatFloat(p.TiltScore),
				formatFloat(p.DaysSinceLast),
				strconv.Itoa(p.Churned),
			}
			if err := emit(row); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteBuckets writes the five-row tilt-by-bucket table. Undefined rates
// are written as empty cells, never zeros.
func (w *Writer) WriteBuckets(ctx context.Context, rows []model.TiltBucketRow) error {
	header := []string{"loss_streak_bucket", "fast_return_rate", "median_gap_hours", "sample_count"}
	return w.writeCSV(ctx, BucketsFile, header, func(emit func([]string) error) error {
		for i := range rows {
			r := &rows[i]
			rate, median := "", ""
			if r.FastReturnRate != nil {
				rate = formatFloat(*r.FastReturnRate)
			}
			if r.MedianGapHours != nil {
				median = formatFloat(*r.MedianGapHours)
			}
			if err := emit([]string{string(r.Bucket), rate, median, strconv.Itoa(r.SampleCount)}); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteModel writes the trained model and its metadata as JSON.
func (w *Writer) WriteModel(ctx context.Context, m *learn.TrainedModel) error {
	path := filepath.Join(w.dir, ModelFile)
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal model artifact: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write model artifact: %w", err)
	}
	w.logger.Info(ctx, "model artifact written",
		logger.String("path", path),
		logger.String("model_id", m.ID),
	)
	return nil
}

func (w *Writer) writeCSV(ctx context.Context, name string, header []string, body func(emit func([]string) error) error) error {
	path := filepath.Join(w.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write %s header: %w", name, err)
	}
	rows := 0
	emit := func(row []string) error {
		rows++
		return cw.Write(row)
	}
	if err := body(emit); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", name, err)
	}

	w.logger.Info(ctx, "artifact written",
		logger.String("path", path),
		logger.Int("rows", rows),
	)
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
