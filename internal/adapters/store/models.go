// Package store persists the pipeline's tables to Postgres through GORM,
// for downstream reporting that outlives the artifact files.
package store

import (
	"time"
)

// TimelineRow is one perspective entry in the timeline table.
type TimelineRow struct {
	ID               uint      `gorm:"primaryKey"`
	RunID            string    `gorm:"size:36;index"`
	PlayerTag        string    `gorm:"size:32;index:idx_timeline_player_time"`
	BattleTime       time.Time `gorm:"index:idx_timeline_player_time"`
	Outcome          int
	TrophiesBefore   float64
	TrophyChange     float64
	Crowns           float64
	OpponentTrophies float64
	GameMode         string `gorm:"size:32"`
	Arena            string `gorm:"size:32"`
}

// EnrichedRow is one row of the enriched timeline table: the timeline
// columns plus the derived temporal features. Nullable columns use
// pointers so a missing next battle stays NULL rather than a zero.
type EnrichedRow struct {
	ID               uint      `gorm:"primaryKey"`
	RunID            string    `gorm:"size:36;index"`
	PlayerTag        string    `gorm:"size:32;index:idx_enriched_player_time"`
	BattleTime       time.Time `gorm:"index:idx_enriched_player_time"`
	Outcome          int
	NextBattleTime   *time.Time
	GapHours         *float64
	FastReturn       bool
	LossStreak       int
	WinStreak        int
	LossStreakBucket string `gorm:"size:8"`
}

// ProfileRow is one qualifying player's aggregate row.
type ProfileRow struct {
	ID                uint   `gorm:"primaryKey"`
	RunID             string `gorm:"size:36;uniqueIndex:idx_profile_run_player"`
	PlayerTag         string `gorm:"size:32;uniqueIndex:idx_profile_run_player"`
	BattleCount       int
	WinRate           float64
	TotalTrophyChange float64
	StartingTrophies  float64
	EndingTrophies    float64
	TrophyMomentum    float64
	AvgGapHours       float64
	MedianGapHours    float64
	StdGapHours       float64
	FastReturnRate    float64
	MaxLossStreak     int
	MaxWinStreak      int
	FirstBattle       time.Time
	LastBattle        time.Time
	DaysActive        float64
	BattlesPerDay     float64
	TiltScore         float64
	DaysSinceLast     float64
	Churned           int `gorm:"index"`
}

// TiltBucketRowModel is one row of the tilt-by-bucket table.
type TiltBucketRowModel struct {
	ID               uint   `gorm:"primaryKey"`
	RunID            string `gorm:"size:36;index"`
	LossStreakBucket string `gorm:"size:8"`
	FastReturnRate   *float64
	MedianGapHours   *float64
	SampleCount      int
}

// ModelRecord is the persisted model metadata plus the serialized forest.
type ModelRecord struct {
	ID        string    `gorm:"primaryKey;size:36"`
	CreatedAt time.Time
	TrainSize int
	TestSize  int
	Accuracy  float64
	ROCAUC    float64
	Payload   []byte `gorm:"type:jsonb"`
}

// TableName keeps the bucket table name free of the Model suffix.
func (TiltBucketRowModel) TableName() string { return "tilt_bucket_rows" }
