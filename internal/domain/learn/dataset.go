// Package learn trains and evaluates the churn classifier: feature matrix
// assembly, a stratified seeded split, a class-weighted random forest, and
// the evaluation report.
package learn

import (
	"fmt"
	"math"

	"github.com/arenalab/churnsight/internal/domain/model"
)

// FeatureNames lists the profile columns used as model input, in column
// order. The tilt score and the churn label are deliberately absent: the
// label is the target, and the score is a reported diagnostic rather than
// an input. DaysSinceLast is excluded because it encodes the label.
var FeatureNames = []string{
	"battle_count",
	"days_active",
	"battles_per_day",
	"avg_gap_hours",
	"median_gap_hours",
	"std_gap_hours",
	"fast_return_rate",
	"win_rate",
	"total_trophy_change",
	"starting_trophies",
	"trophy_momentum",
	"max_loss_streak",
	"max_win_streak",
}

// Dataset is an entity-keyed feature matrix with aligned labels.
type Dataset struct {
	Tags     []string
	X        [][]float64
	Y        []int
	Features []string
}

// featureRow extracts the model inputs from one profile, in FeatureNames
// order.
func featureRow(p *model.PlayerProfile) []float64 {
	return []float64{
		float64(p.BattleCount),
		p.DaysActive,
		p.BattlesPerDay,
		p.AvgGapHours,
		p.MedianGapHours,
		p.StdGapHours,
		p.FastReturnRate,
		p.WinRate,
		p.TotalTrophyChange,
		p.StartingTrophies,
		p.TrophyMomentum,
		float64(p.MaxLossStreak),
		float64(p.MaxWinStreak),
	}
}

// NewDataset assembles the feature matrix and label vector from labeled
// profiles. It fails loudly on an empty input, a label vector with fewer
// than two classes, or a feature column that is entirely NaN; individual
// NaN cells are zero-filled.
func NewDataset(profiles []model.PlayerProfile) (*Dataset, error) {
	if len(profiles) == 0 {
		return nil, ErrEmptyDataset
	}

	d := &Dataset{
		Tags:     make([]string, len(profiles)),
		X:        make([][]float64, len(profiles)),
		Y:        make([]int, len(profiles)),
		Features: FeatureNames,
	}

	classes := map[int]int{}
	nanCount := make([]int, len(FeatureNames))
	for i := range profiles {
		p := &profiles[i]
		d.Tags[i] = p.PlayerTag
		d.Y[i] = p.Churned
		classes[p.Churned]++

		row := featureRow(p)
		for j, v := range row {
			if math.IsNaN(v) {
				nanCount[j]++
				row[j] = 0
			}
		}
		d.X[i] = row
	}

	for j, n := range nanCount {
		if n == len(profiles) {
			return nil, fmt.Errorf("%w: %s", ErrNullFeature, FeatureNames[j])
		}
	}
	if len(classes) < 2 {
		return nil, fmt.Errorf("%w: %d rows, %d class(es)", ErrDegenerateLabels, len(profiles), len(classes))
	}
	return d, nil
}

// Subset returns the dataset rows at the given indices.
func (d *Dataset) Subset(idx []int) *Dataset {
	s := &Dataset{
		Tags:     make([]string, len(idx)),
		X:        make([][]float64, len(idx)),
		Y:        make([]int, len(idx)),
		Features: d.Features,
	}
	for i, j := range idx {
		s.Tags[i] = d.Tags[j]
		s.X[i] = d.X[j]
		s.Y[i] = d.Y[j]
	}
	return s
}

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.Y) }
