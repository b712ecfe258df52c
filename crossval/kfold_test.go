package crossval

import (
	"context"
	"testing"

	"github.com/ensemblelab/ensemble/pkg/errors"
)

func TestKFoldPartition(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		nSplits int
	}{
		{name: "even", n: 50, nSplits: 5},
		{name: "uneven", n: 53, nSplits: 5},
		{name: "minimum", n: 5, nSplits: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			folds, err := NewKFold(tt.nSplits, true, 42).Split(tt.n)
			if err != nil {
				t.Fatalf("Split() error = %v", err)
			}
			if len(folds) != tt.nSplits {
				t.Fatalf("got %d folds, want %d", len(folds), tt.nSplits)
			}

			seen := make(map[int]int)
			for _, f := range folds {
				for _, idx := range f.Test {
					seen[idx]++
				}
				if len(f.Train)+len(f.Test) != tt.n {
					t.Errorf("fold covers %d rows, want %d", len(f.Train)+len(f.Test), tt.n)
				}
			}
			if len(seen) != tt.n {
				t.Errorf("test sets cover %d rows, want %d", len(seen), tt.n)
			}
			for idx, count := range seen {
				if count != 1 {
					t.Errorf("row %d appears in %d test sets", idx, count)
				}
			}
		})
	}
}

func TestKFoldTooFewRows(t *testing.T) {
	_, err := NewKFold(5, false, 42).Split(3)
	if err == nil {
		t.Fatal("Split() succeeded with fewer rows than folds")
	}
	var ide *errors.InsufficientDataError
	if !errors.As(err, &ide) {
		t.Errorf("error type = %T, want InsufficientDataError", err)
	}
}

func TestKFoldReproducible(t *testing.T) {
	first, err := NewKFold(5, true, 7).Split(40)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	second, err := NewKFold(5, true, 7).Split(40)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	for f := range first {
		for i := range first[f].Test {
			if first[f].Test[i] != second[f].Test[i] {
				t.Fatalf("fold %d differs between identical seeds", f)
			}
		}
	}
}

func TestStratifiedKFoldPreservesClasses(t *testing.T) {
	labels := make([]int, 60)
	for i := range labels {
		if i%3 == 0 {
			labels[i] = 1
		}
	}

	folds, err := NewStratifiedKFold(5, true, 42).Split(labels)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}

	for f, fold := range folds {
		positives := 0
		for _, idx := range fold.Test {
			if labels[idx] == 1 {
				positives++
			}
		}
		if positives == 0 {
			t.Errorf("fold %d test set has no positive rows", f)
		}
	}
}

func TestCompareSignificantDifference(t *testing.T) {
	folds := make([]Fold, 5)
	// Stacking consistently beats voting by a wide, stable margin.
	votingScores := []float64{0.70, 0.71, 0.69, 0.72, 0.70}
	stackingScores := []float64{0.90, 0.91, 0.89, 0.92, 0.90}

	i := 0
	cmp, err := Compare(context.Background(), folds, func(ctx context.Context, f Fold) (float64, float64, error) {
		v, s := votingScores[i], stackingScores[i]
		i++
		return v, s, nil
	})
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}

	if cmp.Inconclusive {
		t.Fatal("comparison reported inconclusive with 5 valid folds")
	}
	if cmp.ValidFolds != 5 {
		t.Errorf("ValidFolds = %d, want 5", cmp.ValidFolds)
	}
	if len(cmp.Voting.Scores) != 5 || len(cmp.Stacking.Scores) != 5 {
		t.Errorf("score vectors have lengths %d and %d, want 5",
			len(cmp.Voting.Scores), len(cmp.Stacking.Scores))
	}
	if !cmp.IsSignificant {
		t.Errorf("p-value = %v, expected a significant difference", cmp.PValue)
	}
	if cmp.IsSignificant != (cmp.PValue < SignificanceLevel) {
		t.Error("IsSignificant flag disagrees with the p-value")
	}
	if cmp.Stacking.Mean <= cmp.Voting.Mean {
		t.Errorf("stacking mean %v should exceed voting mean %v", cmp.Stacking.Mean, cmp.Voting.Mean)
	}
	lo, hi := cmp.Voting.Confidence95[0], cmp.Voting.Confidence95[1]
	if lo > cmp.Voting.Mean || hi < cmp.Voting.Mean {
		t.Errorf("confidence interval [%v, %v] does not contain the mean %v", lo, hi, cmp.Voting.Mean)
	}
}

func TestCompareInconclusiveBelowMinimumFolds(t *testing.T) {
	folds := make([]Fold, 5)
	calls := 0
	cmp, err := Compare(context.Background(), folds, func(ctx context.Context, f Fold) (float64, float64, error) {
		calls++
		if calls > 1 {
			return 0, 0, errors.New("degenerate fold")
		}
		return 0.8, 0.8, nil
	})
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if !cmp.Inconclusive {
		t.Error("comparison with one valid fold should be inconclusive")
	}
	if cmp.ValidFolds != 1 {
		t.Errorf("ValidFolds = %d, want 1", cmp.ValidFolds)
	}
	if cmp.IsSignificant {
		t.Error("inconclusive comparison must not be significant")
	}
}

func TestCompareCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Compare(ctx, make([]Fold, 5), func(ctx context.Context, f Fold) (float64, float64, error) {
		return 0.5, 0.5, nil
	})
	if err == nil {
		t.Error("Compare() with a cancelled context should fail")
	}
}
