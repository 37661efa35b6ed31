package learn

import (
	"fmt"
	"math/rand"
	"sort"
)

// SplitConfig controls the train/test partitioning.
type SplitConfig struct {
	// TrainRatio is the fraction of rows assigned to the train partition.
	TrainRatio float64

	// Seed drives the shuffle; the same seed yields the same split.
	Seed int64

	// VolumeStratify adds a high/low battle-volume stratum on top of the
	// label stratum, so activity skew cannot concentrate in one partition.
	VolumeStratify bool

	// volumeColumn is the X column index used for the volume stratum.
	VolumeColumn int
}

// StratifiedSplit partitions rows into train/test index sets, stratified by
// label (and optionally by battle volume) so class balance is preserved in
// both partitions. Entities are split, never raw events: each row is one
// player.
func StratifiedSplit(d *Dataset, cfg SplitConfig) (train, test []int, err error) {
	if d.Len() == 0 {
		return nil, nil, ErrEmptyDataset
	}
	if cfg.TrainRatio <= 0 || cfg.TrainRatio >= 1 {
		return nil, nil, fmt.Errorf("train ratio must be in (0, 1), got %g", cfg.TrainRatio)
	}

	strata := buildStrata(d, cfg)

	// Deterministic iteration: sort stratum keys before shuffling.
	keys := make([]string, 0, len(strata))
	for k := range strata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // seeded for reproducible splits
	for _, k := range keys {
		idx := strata[k]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

		nTrain := int(float64(len(idx)) * cfg.TrainRatio)
		// Keep both partitions non-empty within a stratum when possible.
		if nTrain == len(idx) && len(idx) > 1 {
			nTrain--
		}
		if nTrain == 0 && len(idx) > 1 {
			nTrain = 1
		}
		train = append(train, idx[:nTrain]...)
		test = append(test, idx[nTrain:]...)
	}

	sort.Ints(train)
	sort.Ints(test)

	if err := checkBothClasses(d, train, "train"); err != nil {
		return nil, nil, err
	}
	if err := checkBothClasses(d, test, "test"); err != nil {
		return nil, nil, err
	}
	return train, test, nil
}

// buildStrata groups row indices by label, optionally crossed with a
// high/low volume split at the median of the volume column.
func buildStrata(d *Dataset, cfg SplitConfig) map[string][]int {
	var median float64
	if cfg.VolumeStratify {
		vals := make([]float64, d.Len())
		for i := range d.X {
			vals[i] = d.X[i][cfg.VolumeColumn]
		}
		sort.Float64s(vals)
		median = vals[len(vals)/2]
	}

	strata := make(map[string][]int)
	for i := range d.Y {
		key := fmt.Sprintf("y=%d", d.Y[i])
		if cfg.VolumeStratify {
			if d.X[i][cfg.VolumeColumn] >= median {
				key += ",vol=high"
			} else {
				key += ",vol=low"
			}
		}
		strata[key] = append(strata[key], i)
	}
	return strata
}

func checkBothClasses(d *Dataset, idx []int, name string) error {
	seen := map[int]bool{}
	for _, i := range idx {
		seen[d.Y[i]] = true
	}
	if len(seen) < 2 {
		return fmt.Errorf("%w: %s partition holds a single class (%d rows)", ErrDegenerateSplit, name, len(idx))
	}
	return nil
}
