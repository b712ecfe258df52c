package metrics

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/ensemblelab/ensemble/pkg/errors"
)

// Accuracy computes the fraction of exactly matching labels.
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("Accuracy", "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError("Accuracy", n, yPred.Len(), 0)
	}

	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// ClassificationReport holds precision, recall and F1 for one averaging mode.
type ClassificationReport struct {
	Precision float64
	Recall    float64
	F1        float64
}

// PrecisionRecallF1 computes precision, recall and F1 score.
//
// With two classes the positive class is the larger label and the scores
// are the usual binary definitions. With more classes the scores are
// macro-averaged over the per-class one-vs-rest values, so base models and
// combiners stay comparable on the same footing. Ill-defined ratios
// (zero denominators) contribute 0, matching the zero_division=0 policy.
func PrecisionRecallF1(yTrue, yPred *mat.VecDense) (ClassificationReport, error) {
	n := yTrue.Len()
	if n == 0 {
		return ClassificationReport{}, errors.NewValueError("PrecisionRecallF1", "empty vector")
	}
	if yPred.Len() != n {
		return ClassificationReport{}, errors.NewDimensionError("PrecisionRecallF1", n, yPred.Len(), 0)
	}

	classes := uniqueLabels(yTrue, yPred)
	if len(classes) <= 2 {
		positive := classes[len(classes)-1]
		p, r, f1 := binaryPRF(yTrue, yPred, positive)
		return ClassificationReport{Precision: p, Recall: r, F1: f1}, nil
	}

	// Macro average over one-vs-rest scores.
	var sumP, sumR, sumF float64
	for _, class := range classes {
		p, r, f1 := binaryPRF(yTrue, yPred, class)
		sumP += p
		sumR += r
		sumF += f1
	}
	k := float64(len(classes))
	return ClassificationReport{
		Precision: sumP / k,
		Recall:    sumR / k,
		F1:        sumF / k,
	}, nil
}

func binaryPRF(yTrue, yPred *mat.VecDense, positive float64) (precision, recall, f1 float64) {
	var tp, fp, fn float64
	for i := 0; i < yTrue.Len(); i++ {
		predPos := yPred.AtVec(i) == positive
		truePos := yTrue.AtVec(i) == positive
		switch {
		case predPos && truePos:
			tp++
		case predPos && !truePos:
			fp++
		case !predPos && truePos:
			fn++
		}
	}

	if tp+fp > 0 {
		precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		recall = tp / (tp + fn)
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return precision, recall, f1
}

func uniqueLabels(yTrue, yPred *mat.VecDense) []float64 {
	seen := make(map[float64]bool)
	for i := 0; i < yTrue.Len(); i++ {
		seen[yTrue.AtVec(i)] = true
	}
	for i := 0; i < yPred.Len(); i++ {
		seen[yPred.AtVec(i)] = true
	}
	labels := make([]float64, 0, len(seen))
	for label := range seen {
		labels = append(labels, label)
	}
	sort.Float64s(labels)
	return labels
}
