// Package stats turns raw train/val tag counts into the mutually exclusive
// category counts shown by the panel histogram.
package stats

// CategoryStats partitions a dataset by split-tag membership. Tag counts are
// independent membership totals, so the train/val overlap cannot be observed
// directly; it is inferred from the pigeonhole excess when train+val exceeds
// the total. TrainOnly + ValOnly + Both + Untagged == Total holds whenever the
// raw counts are internally consistent (0 <= train, val <= total).
type CategoryStats struct {
	TrainOnly int `json:"train_only"`
	ValOnly   int `json:"val_only"`
	Both      int `json:"both"`
	Untagged  int `json:"untagged"`
	Total     int `json:"total"`
}

// Compute never fails: negative and inconsistent inputs (stale counts from an
// in-flight refresh, for example) are clamped so the panel always has
// non-negative numbers to render. Under inconsistent input the partition
// equality degrades to "sums to at most total".
func Compute(trainCount, valCount, total int) CategoryStats {
	if total < 0 {
		total = 0
	}
	if trainCount < 0 {
		trainCount = 0
	}
	if valCount < 0 {
		valCount = 0
	}
	if trainCount > total {
		trainCount = total
	}
	if valCount > total {
		valCount = total
	}

	both := max(0, trainCount+valCount-total)
	trainOnly := trainCount - both
	valOnly := valCount - both
	tagged := trainOnly + valOnly + both
	untagged := max(0, total-tagged)

	return CategoryStats{
		TrainOnly: trainOnly,
		ValOnly:   valOnly,
		Both:      both,
		Untagged:  untagged,
		Total:     total,
	}
}

// Ratio returns count/total, or 0 for an empty dataset.
func (s CategoryStats) Ratio(count int) float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(count) / float64(s.Total)
}

func (s CategoryStats) Tagged() int {
	return s.TrainOnly + s.ValOnly + s.Both
}
