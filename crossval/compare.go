package crossval

import (
	"context"
	"log/slog"
	"math"

	"github.com/ensemblelab/ensemble/metrics"
	"github.com/ensemblelab/ensemble/pkg/errors"
	pkglog "github.com/ensemblelab/ensemble/pkg/log"
)

// DefaultFolds is the standard fold count of the comparison.
const DefaultFolds = 5

// MinValidFolds is the smallest number of completed folds for which the
// significance test is still computed. Below it the comparison is
// downgraded to inconclusive.
const MinValidFolds = 2

// SignificanceLevel is the alpha threshold of the paired t-test.
const SignificanceLevel = 0.05

// MethodScores summarizes the per-fold primary-metric scores of one
// ensemble method.
type MethodScores struct {
	Mean         float64
	Std          float64
	Confidence95 [2]float64
	Scores       []float64
}

// Comparison is the cross-validated voting-versus-stacking result.
type Comparison struct {
	Voting   MethodScores
	Stacking MethodScores

	PValue        float64
	IsSignificant bool

	Inconclusive bool
	ValidFolds   int
}

// EvalFunc evaluates both ensemble methods on one fold and returns their
// primary-metric scores.
type EvalFunc func(ctx context.Context, fold Fold) (voting, stacking float64, err error)

// Compare runs eval on every fold and summarizes the two score vectors
// with a paired two-sided t-test. Folds that fail are logged and skipped;
// when fewer than MinValidFolds complete, the result is inconclusive and
// carries no p-value.
func Compare(ctx context.Context, folds []Fold, eval EvalFunc) (*Comparison, error) {
	votingScores := make([]float64, 0, len(folds))
	stackingScores := make([]float64, 0, len(folds))

	for i, fold := range folds {
		if err := ctx.Err(); err != nil {
			return nil, errors.WithStack(err)
		}
		v, s, err := eval(ctx, fold)
		if err != nil {
			slog.Warn("cross-validation fold failed",
				slog.Int("fold", i), pkglog.ErrAttr(err))
			continue
		}
		if math.IsNaN(v) || math.IsNaN(s) || math.IsInf(v, 0) || math.IsInf(s, 0) {
			slog.Warn("cross-validation fold produced a non-finite score", slog.Int("fold", i))
			continue
		}
		votingScores = append(votingScores, v)
		stackingScores = append(stackingScores, s)
	}

	valid := len(votingScores)
	cmp := &Comparison{
		Voting:     summarize(votingScores),
		Stacking:   summarize(stackingScores),
		ValidFolds: valid,
	}

	if valid < MinValidFolds {
		errors.Warn(errors.NewInsufficientDataError("cross-validation", MinValidFolds, valid))
		cmp.Inconclusive = true
		return cmp, nil
	}

	tt, err := metrics.PairedTTest(stackingScores, votingScores)
	if err != nil {
		cmp.Inconclusive = true
		return cmp, nil
	}
	cmp.PValue = tt.PValue
	cmp.IsSignificant = tt.PValue < SignificanceLevel
	return cmp, nil
}

// summarize computes mean, population standard deviation and the 95%
// normal-approximation interval of a score vector.
func summarize(scores []float64) MethodScores {
	ms := MethodScores{Scores: scores}
	n := float64(len(scores))
	if n == 0 {
		return ms
	}

	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	ms.Mean = sum / n

	variance := 0.0
	for _, s := range scores {
		d := s - ms.Mean
		variance += d * d
	}
	ms.Std = math.Sqrt(variance / n)
	ms.Confidence95 = [2]float64{ms.Mean - 1.96*ms.Std, ms.Mean + 1.96*ms.Std}
	return ms
}
