package metrics

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ensemblelab/ensemble/pkg/errors"
)

// TTestResult holds the outcome of a paired two-sided t-test.
type TTestResult struct {
	Statistic float64
	PValue    float64
	DF        float64
}

// PairedTTest runs a paired two-sided t-test on matched score vectors.
// It is used to decide whether the per-fold difference between stacking
// and voting is statistically meaningful.
func PairedTTest(a, b []float64) (TTestResult, error) {
	if len(a) != len(b) {
		return TTestResult{}, errors.NewDimensionError("PairedTTest", len(a), len(b), 0)
	}
	if len(a) < 2 {
		return TTestResult{}, errors.NewValueError("PairedTTest", "need at least 2 paired observations")
	}

	diffs := make([]float64, len(a))
	for i := range a {
		diffs[i] = a[i] - b[i]
	}

	mean, std := stat.MeanStdDev(diffs, nil)
	n := float64(len(diffs))
	df := n - 1

	if std == 0 {
		// All differences identical: either no effect at all or a
		// perfectly consistent one.
		if mean == 0 {
			return TTestResult{Statistic: 0, PValue: 1, DF: df}, nil
		}
		return TTestResult{Statistic: math.Inf(sign(mean)), PValue: 0, DF: df}, nil
	}

	t := mean / (std / math.Sqrt(n))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p := 2 * dist.Survival(math.Abs(t))
	if p > 1 {
		p = 1
	}

	return TTestResult{Statistic: t, PValue: p, DF: df}, nil
}

func sign(v float64) int {
	if v < 0 {
		return -1
	}
	return 1
}
