package linear

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/ensemblelab/ensemble/core/model"
	"github.com/ensemblelab/ensemble/dataset"
	"github.com/ensemblelab/ensemble/pkg/errors"
)

// Logistic is a logistic regression classifier trained with batch
// gradient descent and L2 regularization. Multiclass targets are handled
// one-vs-rest. Features are standardized internally; gradient descent
// needs comparable scales to converge on raw tabular columns.
type Logistic struct {
	state  *model.StateManager
	scaler *dataset.StandardScaler

	c            float64 // inverse regularization strength
	fitIntercept bool
	maxIter      int
	tol          float64
	seed         uint64

	coef_      [][]float64 // one weight vector per class (single for binary)
	intercept_ []float64
	classes_   []int
	nClasses_  int
	nFeatures_ int

	rng *rand.Rand
}

// LogisticOption configures a Logistic classifier.
type LogisticOption func(*Logistic)

// WithC sets the inverse regularization strength.
func WithC(c float64) LogisticOption {
	return func(l *Logistic) {
		l.c = c
	}
}

// WithMaxIter sets the gradient descent iteration cap.
func WithMaxIter(maxIter int) LogisticOption {
	return func(l *Logistic) {
		l.maxIter = maxIter
	}
}

// WithTol sets the convergence tolerance on the gradient norm.
func WithTol(tol float64) LogisticOption {
	return func(l *Logistic) {
		l.tol = tol
	}
}

// WithSeed fixes the weight initialization seed.
func WithSeed(seed uint64) LogisticOption {
	return func(l *Logistic) {
		l.seed = seed
	}
}

// NewLogistic creates a new logistic regression classifier.
func NewLogistic(opts ...LogisticOption) *Logistic {
	l := &Logistic{
		state:        model.NewStateManager(),
		c:            1.0,
		fitIntercept: true,
		maxIter:      1000,
		tol:          1e-4,
		seed:         42,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.rng = rand.New(rand.NewPCG(l.seed, l.seed))
	return l
}

// Fit trains the classifier.
func (l *Logistic) Fit(X, y mat.Matrix) error {
	nSamples, nFeatures := X.Dims()
	yRows, yCols := y.Dims()

	if nSamples != yRows {
		return errors.NewDimensionError("Logistic.Fit", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("Logistic.Fit", 1, yCols, 1)
	}

	l.state.Reset()
	l.extractClasses(y)
	if l.nClasses_ < 2 {
		return errors.NewTrainingError("Logistic", "fit", errors.ErrConstantTarget)
	}
	l.nFeatures_ = nFeatures
	l.initializeWeights(nFeatures)

	l.scaler = dataset.NewStandardScaler()
	Xs, err := l.scaler.FitTransform(X)
	if err != nil {
		return errors.NewTrainingError("Logistic", "fit", err)
	}

	if l.nClasses_ == 2 {
		l.fitBinary(Xs, y, 0, l.classes_[1])
	} else {
		// One-vs-rest: each class against everything else.
		for classIdx, class := range l.classes_ {
			l.fitBinary(Xs, y, classIdx, class)
		}
	}

	l.state.SetFitted()
	l.state.SetDimensions(nFeatures, nSamples)
	return nil
}

func (l *Logistic) extractClasses(y mat.Matrix) {
	rows, _ := y.Dims()
	classMap := make(map[int]bool)
	for i := 0; i < rows; i++ {
		classMap[int(y.At(i, 0))] = true
	}

	l.classes_ = make([]int, 0, len(classMap))
	for class := range classMap {
		l.classes_ = append(l.classes_, class)
	}
	sort.Ints(l.classes_)
	l.nClasses_ = len(l.classes_)
}

func (l *Logistic) initializeWeights(nFeatures int) {
	nVectors := 1
	if l.nClasses_ > 2 {
		nVectors = l.nClasses_
	}
	l.coef_ = make([][]float64, nVectors)
	l.intercept_ = make([]float64, nVectors)
	for i := range l.coef_ {
		l.coef_[i] = make([]float64, nFeatures)
		for j := range l.coef_[i] {
			l.coef_[i][j] = l.rng.NormFloat64() * 0.01
		}
	}
}

// fitBinary runs gradient descent for one weight vector, treating
// positiveClass as 1 and everything else as 0.
func (l *Logistic) fitBinary(X, y mat.Matrix, vectorIdx, positiveClass int) {
	nSamples, nFeatures := X.Dims()

	yBinary := make([]float64, nSamples)
	for i := 0; i < nSamples; i++ {
		if int(y.At(i, 0)) == positiveClass {
			yBinary[i] = 1.0
		}
	}

	weights := l.coef_[vectorIdx]
	intercept := &l.intercept_[vectorIdx]
	baseLearningRate := 1.0
	lambda := 1.0 / l.c

	for iter := 0; iter < l.maxIter; iter++ {
		gradWeights := make([]float64, nFeatures)
		gradIntercept := 0.0

		for i := 0; i < nSamples; i++ {
			z := *intercept
			for j := 0; j < nFeatures; j++ {
				z += X.At(i, j) * weights[j]
			}
			residual := sigmoid(z) - yBinary[i]
			gradIntercept += residual
			for j := 0; j < nFeatures; j++ {
				gradWeights[j] += residual * X.At(i, j)
			}
		}

		for j := range gradWeights {
			gradWeights[j] = gradWeights[j]/float64(nSamples) + lambda*weights[j]/float64(nSamples)
		}
		gradIntercept /= float64(nSamples)

		learningRate := baseLearningRate / (1.0 + 0.1*float64(iter))
		for j := range weights {
			weights[j] -= learningRate * gradWeights[j]
		}
		if l.fitIntercept {
			*intercept -= learningRate * gradIntercept
		}

		maxGrad := math.Abs(gradIntercept)
		for _, g := range gradWeights {
			if math.Abs(g) > maxGrad {
				maxGrad = math.Abs(g)
			}
		}
		if maxGrad < l.tol {
			break
		}
	}
}

// Predict returns the most likely class label per row.
func (l *Logistic) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := l.PredictProba(X)
	if err != nil {
		return nil, err
	}

	rows, _ := proba.Dims()
	predictions := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		best := 0
		for c := 1; c < l.nClasses_; c++ {
			if proba.At(i, c) > proba.At(i, best) {
				best = c
			}
		}
		predictions.Set(i, 0, float64(l.classes_[best]))
	}
	return predictions, nil
}

// PredictProba returns class probability estimates, columns ordered as
// Classes().
func (l *Logistic) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := l.state.RequireFitted("Logistic", "PredictProba"); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if cols != l.nFeatures_ {
		return nil, errors.NewDimensionError("Logistic.PredictProba", l.nFeatures_, cols, 1)
	}

	Xs, err := l.scaler.Transform(X)
	if err != nil {
		return nil, err
	}

	proba := mat.NewDense(rows, l.nClasses_, nil)
	if l.nClasses_ == 2 {
		for i := 0; i < rows; i++ {
			p := sigmoid(l.decision(Xs, i, 0))
			proba.Set(i, 0, 1-p)
			proba.Set(i, 1, p)
		}
		return proba, nil
	}

	// One-vs-rest scores normalized to sum to 1.
	for i := 0; i < rows; i++ {
		total := 0.0
		for c := 0; c < l.nClasses_; c++ {
			p := sigmoid(l.decision(Xs, i, c))
			proba.Set(i, c, p)
			total += p
		}
		if total > 0 {
			for c := 0; c < l.nClasses_; c++ {
				proba.Set(i, c, proba.At(i, c)/total)
			}
		}
	}
	return proba, nil
}

func (l *Logistic) decision(X mat.Matrix, row, vectorIdx int) float64 {
	z := l.intercept_[vectorIdx]
	for j := 0; j < l.nFeatures_; j++ {
		z += X.At(row, j) * l.coef_[vectorIdx][j]
	}
	return z
}

// Classes returns the class labels seen during fitting, sorted.
func (l *Logistic) Classes() []int {
	classes := make([]int, len(l.classes_))
	copy(classes, l.classes_)
	return classes
}

// FeatureImportances reports normalized mean absolute coefficients across
// the per-class weight vectors. Non-finite weights zero-fill the vector.
func (l *Logistic) FeatureImportances() ([]float64, error) {
	if err := l.state.RequireFitted("Logistic", "FeatureImportances"); err != nil {
		return nil, err
	}

	importances := make([]float64, l.nFeatures_)
	for _, weights := range l.coef_ {
		for j, w := range weights {
			if math.IsNaN(w) || math.IsInf(w, 0) {
				return make([]float64, l.nFeatures_), nil
			}
			importances[j] += math.Abs(w)
		}
	}
	total := 0.0
	for _, v := range importances {
		total += v
	}
	if total == 0 {
		return importances, nil
	}
	for j := range importances {
		importances[j] /= total
	}
	return importances, nil
}

// IsFitted returns whether the model has been fitted.
func (l *Logistic) IsFitted() bool {
	return l.state.IsFitted()
}

func sigmoid(z float64) float64 {
	if z > 36 {
		return 1
	}
	if z < -36 {
		return 0
	}
	return 1.0 / (1.0 + math.Exp(-z))
}
