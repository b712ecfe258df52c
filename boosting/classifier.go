package boosting

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/ensemblelab/ensemble/core/model"
	"github.com/ensemblelab/ensemble/pkg/errors"
)

// GBTClassifier is a gradient-boosted tree classifier with logistic loss.
// Binary targets train a single booster on log-odds; multiclass targets
// train one booster per class one-vs-rest and normalize the probabilities.
type GBTClassifier struct {
	state *model.StateManager
	cfg   config

	boosters   []*booster
	classes_   []int
	nClasses_  int
	nFeatures_ int
	nSamples_  int
}

// NewGBTClassifier creates a gradient-boosted classifier with the same
// stage defaults as the regressor.
func NewGBTClassifier(opts ...Option) *GBTClassifier {
	g := &GBTClassifier{
		state: model.NewStateManager(),
		cfg:   defaultConfig(),
	}
	for _, opt := range opts {
		opt(&g.cfg)
	}
	return g
}

// Fit trains the boosted ensemble on integer-coded class labels.
func (g *GBTClassifier) Fit(X, y mat.Matrix) error {
	if err := validateFitInput(X, y, "GBTClassifier.Fit"); err != nil {
		return err
	}
	g.state.Reset()
	rows, cols := X.Dims()

	labels := make([]int, rows)
	seen := make(map[int]bool)
	for i := 0; i < rows; i++ {
		labels[i] = int(y.At(i, 0))
		seen[labels[i]] = true
	}
	g.classes_ = make([]int, 0, len(seen))
	for c := range seen {
		g.classes_ = append(g.classes_, c)
	}
	sort.Ints(g.classes_)
	g.nClasses_ = len(g.classes_)
	if g.nClasses_ < 2 {
		return errors.NewTrainingError("GBTClassifier", "fit", errors.ErrConstantTarget)
	}

	nBoosters := 1
	if g.nClasses_ > 2 {
		nBoosters = g.nClasses_
	}
	g.boosters = make([]*booster, nBoosters)
	for b := 0; b < nBoosters; b++ {
		positive := g.classes_[1]
		if g.nClasses_ > 2 {
			positive = g.classes_[b]
		}
		fitted, err := g.fitLogistic(X, labels, positive, uint64(b))
		if err != nil {
			return errors.NewTrainingError("GBTClassifier", "fit", err)
		}
		g.boosters[b] = fitted
	}

	g.nFeatures_ = cols
	g.nSamples_ = rows

	g.state.SetFitted()
	g.state.SetDimensions(cols, rows)
	return nil
}

// fitLogistic trains one booster for positiveClass against the rest. The
// base score is the prior log-odds and each stage fits the residual
// between the binary target and the current probability.
func (g *GBTClassifier) fitLogistic(X mat.Matrix, labels []int, positiveClass int, stream uint64) (*booster, error) {
	yBinary := make([]float64, len(labels))
	positives := 0.0
	for i, label := range labels {
		if label == positiveClass {
			yBinary[i] = 1
			positives++
		}
	}

	prior := positives / float64(len(labels))
	prior = math.Min(math.Max(prior, 1e-6), 1-1e-6)
	baseScore := math.Log(prior / (1 - prior))

	gradientFn := func(scores []float64) []float64 {
		residuals := make([]float64, len(scores))
		for i, s := range scores {
			residuals[i] = yBinary[i] - sigmoid(s)
		}
		return residuals
	}

	rng := rand.New(rand.NewPCG(g.cfg.seed, g.cfg.seed+stream+1))
	return fitBooster(g.cfg, X, baseScore, gradientFn, rng)
}

// Predict returns the class label with the highest probability per row.
func (g *GBTClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := g.PredictProba(X)
	if err != nil {
		return nil, err
	}
	rows, _ := proba.Dims()
	predictions := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		best := 0
		for c := 1; c < g.nClasses_; c++ {
			if proba.At(i, c) > proba.At(i, best) {
				best = c
			}
		}
		predictions.Set(i, 0, float64(g.classes_[best]))
	}
	return predictions, nil
}

// PredictProba returns class probability estimates, columns ordered as
// Classes().
func (g *GBTClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := g.state.RequireFitted("GBTClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if cols != g.nFeatures_ {
		return nil, errors.NewDimensionError("GBTClassifier.PredictProba", g.nFeatures_, cols, 1)
	}

	proba := mat.NewDense(rows, g.nClasses_, nil)
	if g.nClasses_ == 2 {
		scores, err := g.boosters[0].scoreAll(X, g.cfg.learningRate)
		if err != nil {
			return nil, err
		}
		for i, s := range scores {
			p := sigmoid(s)
			proba.Set(i, 0, 1-p)
			proba.Set(i, 1, p)
		}
		return proba, nil
	}

	for c, b := range g.boosters {
		scores, err := b.scoreAll(X, g.cfg.learningRate)
		if err != nil {
			return nil, err
		}
		for i, s := range scores {
			proba.Set(i, c, sigmoid(s))
		}
	}
	for i := 0; i < rows; i++ {
		total := 0.0
		for c := 0; c < g.nClasses_; c++ {
			total += proba.At(i, c)
		}
		if total > 0 {
			for c := 0; c < g.nClasses_; c++ {
				proba.Set(i, c, proba.At(i, c)/total)
			}
		}
	}
	return proba, nil
}

// Classes returns the class labels seen during fitting, sorted.
func (g *GBTClassifier) Classes() []int {
	classes := make([]int, len(g.classes_))
	copy(classes, g.classes_)
	return classes
}

// FeatureImportances reports normalized split gains accumulated over every
// stage of every booster.
func (g *GBTClassifier) FeatureImportances() ([]float64, error) {
	if err := g.state.RequireFitted("GBTClassifier", "FeatureImportances"); err != nil {
		return nil, err
	}
	total := make([]float64, g.nFeatures_)
	for _, b := range g.boosters {
		gains, err := b.gains(g.nFeatures_)
		if err != nil {
			return nil, err
		}
		for j, v := range gains {
			total[j] += v
		}
	}
	return normalizeGains(total), nil
}

// IsFitted returns whether the model has been fitted.
func (g *GBTClassifier) IsFitted() bool {
	return g.state.IsFitted()
}
