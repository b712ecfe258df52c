package ensemble

import (
	"gonum.org/v1/gonum/mat"

	"github.com/ensemblelab/ensemble/dataset"
)

// VotingOutcome is the result of combining the experts by unweighted
// averaging (regression) or majority vote (classification).
type VotingOutcome struct {
	Combined *mat.VecDense

	// PositiveProba is the mean positive-class probability per test row.
	// Binary classification only; nil otherwise.
	PositiveProba []float64

	Metrics   ModelMetrics
	Confusion [][]int // classification only
}

// Vote combines the bank's test-split predictions. Regression rows take
// the arithmetic mean of the expert predictions; classification rows take
// the majority class, with 1-1-1 splits across more than two classes
// resolved by the expert with the highest train-split accuracy.
func Vote(bank *Bank, yTest *mat.VecDense) (*VotingOutcome, error) {
	n := yTest.Len()
	combined := mat.NewVecDense(n, nil)

	if bank.Task == dataset.Regression {
		for i := 0; i < n; i++ {
			sum := 0.0
			for _, e := range bank.Experts {
				sum += e.TestPred.AtVec(i)
			}
			combined.SetVec(i, sum/float64(len(bank.Experts)))
		}
		m, err := regressionMetrics(yTest, combined)
		if err != nil {
			return nil, err
		}
		return &VotingOutcome{Combined: combined, Metrics: m}, nil
	}

	fallback := bank.BestTrainAccuracyExpert()
	for i := 0; i < n; i++ {
		combined.SetVec(i, majorityVote(bank, i, fallback))
	}

	m, err := classificationMetrics(yTest, combined)
	if err != nil {
		return nil, err
	}
	outcome := &VotingOutcome{
		Combined:  combined,
		Metrics:   m,
		Confusion: confusionCounts(yTest, combined, bank.Classes),
	}
	if len(bank.Classes) == 2 {
		outcome.PositiveProba = meanPositiveProba(bank)
	}
	return outcome, nil
}

// majorityVote returns the class predicted by most experts for one row.
// When every expert disagrees, the fallback expert's prediction wins.
func majorityVote(bank *Bank, row, fallback int) float64 {
	votes := make(map[float64]int, len(bank.Experts))
	for _, e := range bank.Experts {
		votes[e.TestPred.AtVec(row)]++
	}

	bestClass := bank.Experts[fallback].TestPred.AtVec(row)
	bestCount := 1
	for _, e := range bank.Experts {
		class := e.TestPred.AtVec(row)
		if votes[class] > bestCount {
			bestCount = votes[class]
			bestClass = class
		}
	}
	return bestClass
}

// meanPositiveProba averages the experts' probability for the positive
// class (the larger label of a binary target).
func meanPositiveProba(bank *Bank) []float64 {
	n := bank.Experts[0].TestPred.Len()
	proba := make([]float64, n)
	for i := 0; i < n; i++ {
		sum := 0.0
		for _, e := range bank.Experts {
			sum += e.TestProba.At(i, 1)
		}
		proba[i] = sum / float64(len(bank.Experts))
	}
	return proba
}

// confusionCounts tallies actual-by-predicted counts over the sorted
// class labels.
func confusionCounts(yTrue, yPred *mat.VecDense, classes []int) [][]int {
	index := make(map[int]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	counts := make([][]int, len(classes))
	for i := range counts {
		counts[i] = make([]int, len(classes))
	}
	for i := 0; i < yTrue.Len(); i++ {
		a, okA := index[int(yTrue.AtVec(i))]
		p, okP := index[int(yPred.AtVec(i))]
		if okA && okP {
			counts[a][p]++
		}
	}
	return counts
}
