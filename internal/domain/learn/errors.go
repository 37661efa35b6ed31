package learn

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	// ErrDegenerateLabels means the label vector holds fewer than two
	// classes; no meaningful model can be trained and the stage aborts.
	ErrDegenerateLabels = errors.New("degenerate label set")

	// ErrNullFeature means a feature column is entirely NaN.
	ErrNullFeature = errors.New("feature column entirely null")

	// ErrEmptyDataset means no rows were provided for training.
	ErrEmptyDataset = errors.New("empty dataset")

	// ErrDegenerateSplit means a partition lost a class after splitting.
	ErrDegenerateSplit = errors.New("degenerate train/test split")
)
