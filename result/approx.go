package result

import (
	"math"

	"github.com/ensemblelab/ensemble/dataset"
	"github.com/ensemblelab/ensemble/pkg/errors"
)

// DeriveApproximateMetrics backfills missing RMSE/MAE from the displayed
// prediction sample. Full-test-set metrics are never overwritten; the
// section is marked approximate so readers know the sample is the source.
func DeriveApproximateMetrics(perf *Performance, samples []PredictionSample, task dataset.TaskType) {
	if perf == nil || task != dataset.Regression || len(samples) == 0 {
		return
	}
	if perf.RMSE != nil && perf.MAE != nil {
		return
	}

	var sumSq, sumAbs float64
	n := 0
	for _, s := range samples {
		actual, okA := s["actual"]
		predicted, okP := s["predicted"]
		if !okA || !okP {
			continue
		}
		diff := actual - predicted
		sumSq += diff * diff
		sumAbs += math.Abs(diff)
		n++
	}
	if n == 0 {
		return
	}

	if perf.RMSE == nil {
		rmse := math.Sqrt(sumSq / float64(n))
		perf.RMSE = &rmse
		errors.Warn(errors.NewApproximateMetricWarning("rmse", n))
	}
	if perf.MAE == nil {
		mae := sumAbs / float64(n)
		perf.MAE = &mae
		errors.Warn(errors.NewApproximateMetricWarning("mae", n))
	}
	perf.Approximate = true
}
