package store

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/arenalab/churnsight/internal/domain/learn"
	"github.com/arenalab/churnsight/internal/domain/model"
	"github.com/arenalab/churnsight/pkg/logger"
)

// insertBatchSize bounds rows per INSERT so large timelines stream through.
const insertBatchSize = 2000

// Store writes run tables to Postgres.
type Store struct {
	db     *gorm.DB
	runID  string
	logger logger.Logger
}

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open connects to Postgres, migrates the schema, and scopes all writes to
// the given run ID.
func Open(dsn, runID string, opts ...Option) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := db.AutoMigrate(
		&TimelineRow{},
		&EnrichedRow{},
		&ProfileRow{},
		&TiltBucketRowModel{},
		&ModelRecord{},
	); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	s := &Store{
		db:     db,
		runID:  runID,
		logger: logger.Get().Named("store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SaveTimeline persists the grouped timeline.
func (s *Store) SaveTimeline(ctx context.Context, groups map[string][]model.TimelineEntry) error {
	rows := make([]TimelineRow, 0, insertBatchSize)
	flush := func() error {
		if len(rows) == 0 {
			return nil
		}
		if err := s.db.WithContext(ctx).CreateInBatches(rows, insertBatchSize).Error; err != nil {
			return fmt.Errorf("insert timeline rows: %w", err)
		}
		rows = rows[:0]
		return nil
	}

	for tag, entries := range groups {
		for i := range entries {
			e := &entries[i]
			rows = append(rows, TimelineRow{
				RunID:            s.runID,
				PlayerTag:        tag,
				BattleTime:       e.Time,
				Outcome:          e.Outcome,
				TrophiesBefore:   e.TrophiesBefore,
				TrophyChange:     e.TrophyChange,
				Crowns:           e.Crowns,
				OpponentTrophies: e.OpponentTrophies,
				GameMode:         e.GameMode,
				Arena:            e.Arena,
			})
			if len(rows) == insertBatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	return flush()
}

// SaveEnriched persists the enriched timeline.
func (s *Store) SaveEnriched(ctx context.Context, enriched map[string][]model.EnrichedEntry) error {
	rows := make([]EnrichedRow, 0, insertBatchSize)
	flush := func() error {
		if len(rows) == 0 {
			return nil
		}
		if err := s.db.WithContext(ctx).CreateInBatches(rows, insertBatchSize).Error; err != nil {
			return fmt.Errorf("insert enriched rows: %w", err)
		}
		rows = rows[:0]
		return nil
	}

	for tag, entries := range enriched {
		for i := range entries {
			e := &entries[i]
			rows = append(rows, EnrichedRow{
				RunID:            s.runID,
				PlayerTag:        tag,
				BattleTime:       e.Time,
				Outcome:          e.Outcome,
				NextBattleTime:   e.NextTime,
				GapHours:         e.GapHours,
				FastReturn:       e.FastReturn,
				LossStreak:       e.LossStreak,
				WinStreak:        e.WinStreak,
				LossStreakBucket: string(e.Bucket),
			})
			if len(rows) == insertBatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	return flush()
}

// SaveProfiles persists the player profiles.
func (s *Store) SaveProfiles(ctx context.Context, profiles []model.PlayerProfile) error {
	rows := make([]ProfileRow, len(profiles))
	for i := range profiles {
		p := &profiles[i]
		rows[i] = ProfileRow{
			RunID:             s.runID,
			PlayerTag:         p.PlayerTag,
			BattleCount:       p.BattleCount,
			WinRate:           p.WinRate,
			TotalTrophyChange: p.TotalTrophyChange,
			StartingTrophies:  p.StartingTrophies,
			EndingTrophies:    p.EndingTrophies,
			TrophyMomentum:    p.TrophyMomentum,
			AvgGapHours:       p.AvgGapHours,
			MedianGapHours:    p.MedianGapHours,
			StdGapHours:       p.StdGapHours,
			FastReturnRate:    p.FastReturnRate,
			MaxLossStreak:     p.MaxLossStreak,
			MaxWinStreak:      p.MaxWinStreak,
			FirstBattle:       p.FirstBattle,
			LastBattle:        p.LastBattle,
			DaysActive:        p.DaysActive,
			BattlesPerDay:     p.BattlesPerDay,
			TiltScore:         p.TiltScore,
			DaysSinceLast:     p.DaysSinceLast,
			Churned:           p.Churned,
		}
	}
	if err := s.db.WithContext(ctx).CreateInBatches(rows, insertBatchSize).Error; err != nil {
		return fmt.Errorf("insert profile rows: %w", err)
	}
	return nil
}

// SaveBuckets persists the tilt-by-bucket table.
func (s *Store) SaveBuckets(ctx context.Context, buckets []model.TiltBucketRow) error {
	rows := make([]TiltBucketRowModel, len(buckets))
	for i := range buckets {
		b := &buckets[i]
		rows[i] = TiltBucketRowModel{
			RunID:            s.runID,
			LossStreakBucket: string(b.Bucket),
			FastReturnRate:   b.FastReturnRate,
			MedianGapHours:   b.MedianGapHours,
			SampleCount:      b.SampleCount,
		}
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("insert bucket rows: %w", err)
	}
	return nil
}

// SaveModel persists the model metadata with the serialized forest payload.
func (s *Store) SaveModel(ctx context.Context, m *learn.TrainedModel) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal model payload: %w", err)
	}
	rec := ModelRecord{
		ID:        m.ID,
		CreatedAt: m.CreatedAt,
		TrainSize: m.Evaluation.TrainSize,
		TestSize:  m.Evaluation.TestSize,
		Accuracy:  m.Evaluation.Accuracy,
		ROCAUC:    m.Evaluation.ROCAUC,
		Payload:   payload,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("insert model record: %w", err)
	}
	s.logger.Info(ctx, "model record persisted", logger.String("model_id", m.ID))
	return nil
}
