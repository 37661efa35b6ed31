// Package model contains domain models passed between pipeline stages.
package model

import "time"

// Outcome values for a perspective entry.
const (
	Loss = 0
	Win  = 1
)

// Battle represents one paired-outcome record from the raw log.
// Fields mirror the battle log columns the pipeline projects.
type Battle struct {
	WinnerTag      string    // winner player tag
	LoserTag       string    // loser player tag
	Time           time.Time // battle timestamp
	WinnerTrophies float64   // winner starting trophies
	WinnerChange   float64   // winner trophy change
	WinnerCrowns   float64   // crowns taken by the winner
	LoserTrophies  float64   // loser starting trophies
	LoserChange    float64   // loser trophy change
	LoserCrowns    float64   // crowns taken by the loser
	GameMode       string    // game mode id
	Arena          string    // arena id
}

// TimelineEntry is one player-perspective view of a battle. Every battle
// yields exactly two entries, one per participant.
type TimelineEntry struct {
	PlayerTag        string
	Time             time.Time
	Outcome          int // Win or Loss
	TrophiesBefore   float64
	TrophyChange     float64
	Crowns           float64
	OpponentTrophies float64
	GameMode         string
	Arena            string

	// Seq is the stable input position of the originating battle, used to
	// break timestamp ties deterministically.
	Seq int64
}

// EnrichedEntry is a TimelineEntry plus the derived temporal features.
// NextTime and GapHours are nil for a player's final entry; FastReturn is
// always false in that case.
type EnrichedEntry struct {
	TimelineEntry

	NextTime   *time.Time
	GapHours   *float64
	FastReturn bool
	LossStreak int
	WinStreak  int
	Bucket     StreakBucket
}

// PlayerProfile is the per-player aggregate over enriched entries. One row
// per qualifying player; the tilt and churn stages fill in their columns on
// the same row set.
type PlayerProfile struct {
	PlayerTag string

	// Aggregated from the enriched timeline.
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

	// Filled by the behavior stage.
	TiltScore float64

	// Filled by the churn stage.
	DaysSinceLast float64
	Churned       int
}

// TiltBucketRow is one row of the population-level tilt table: the fast
// return rate after losses, grouped by loss streak bucket. Rates are nil
// when the bucket has no qualifying entries, never a misleading zero.
type TiltBucketRow struct {
	Bucket         StreakBucket
	FastReturnRate *float64
	MedianGapHours *float64
	SampleCount    int
}
