package learn

import (
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// FeatureImportance pairs a feature name with its normalized importance.
type FeatureImportance struct {
	Name       string  `json:"name"`
	Importance float64 `json:"importance"`
}

// ConfusionMatrix counts test outcomes. Rows are truth, columns are
// prediction.
type ConfusionMatrix struct {
	TrueNegative  int `json:"true_negative"`
	FalsePositive int `json:"false_positive"`
	FalseNegative int `json:"false_negative"`
	TruePositive  int `json:"true_positive"`
}

// Evaluation is the test-set report for a trained forest.
type Evaluation struct {
	TrainSize   int                 `json:"train_size"`
	TestSize    int                 `json:"test_size"`
	Accuracy    float64             `json:"accuracy"`
	ROCAUC      float64             `json:"roc_auc"`
	Confusion   ConfusionMatrix     `json:"confusion"`
	Importances []FeatureImportance `json:"importances"`
}

// Evaluate scores the forest on the test partition: accuracy and confusion
// at the 0.5 threshold, ROC-AUC over the predicted probabilities, and the
// feature importance ranking sorted descending.
func Evaluate(f *Forest, train, test *Dataset) *Evaluation {
	ev := &Evaluation{
		TrainSize: train.Len(),
		TestSize:  test.Len(),
	}

	scores := make([]float64, test.Len())
	correct := 0
	for i := range test.X {
		p := f.PredictProba(test.X[i])
		scores[i] = p
		pred := 0
		if p >= 0.5 {
			pred = 1
		}
		if pred == test.Y[i] {
			correct++
		}
		switch {
		case test.Y[i] == 0 && pred == 0:
			ev.Confusion.TrueNegative++
		case test.Y[i] == 0 && pred == 1:
			ev.Confusion.FalsePositive++
		case test.Y[i] == 1 && pred == 0:
			ev.Confusion.FalseNegative++
		default:
			ev.Confusion.TruePositive++
		}
	}
	if test.Len() > 0 {
		ev.Accuracy = float64(correct) / float64(test.Len())
	}
	ev.ROCAUC = rocAUC(scores, test.Y)

	ev.Importances = make([]FeatureImportance, len(f.Importances))
	for j, v := range f.Importances {
		ev.Importances[j] = FeatureImportance{Name: train.Features[j], Importance: v}
	}
	sort.SliceStable(ev.Importances, func(i, j int) bool {
		return ev.Importances[i].Importance > ev.Importances[j].Importance
	})

	return ev
}

// rocAUC computes the area under the ROC curve. gonum's stat.ROC expects
// scores sorted ascending with aligned class flags.
func rocAUC(scores []float64, labels []int) float64 {
	type pair struct {
		score float64
		pos   bool
	}
	pairs := make([]pair, len(scores))
	for i := range scores {
		pairs[i] = pair{score: scores[i], pos: labels[i] == 1}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].score < pairs[j].score })

	y := make([]float64, len(pairs))
	classes := make([]bool, len(pairs))
	for i, p := range pairs {
		y[i] = p.score
		classes[i] = p.pos
	}

	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}
