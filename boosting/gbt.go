// Package boosting implements gradient-boosted tree experts. Shallow CART
// regression trees are fitted sequentially to pseudo-residuals and combined
// with a shrinkage factor.
package boosting

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/ensemblelab/ensemble/pkg/errors"
	"github.com/ensemblelab/ensemble/tree"
)

// config carries the boosting parameters shared by the regressor and the
// classifier.
type config struct {
	nEstimators    int
	maxDepth       int
	learningRate   float64
	subsample      float64
	minSamplesLeaf int
	seed           uint64
}

// Option configures a gradient-boosted estimator.
type Option func(*config)

// WithTrees sets the number of boosting stages.
func WithTrees(n int) Option {
	return func(c *config) {
		c.nEstimators = n
	}
}

// WithMaxDepth caps the depth of each stage tree.
func WithMaxDepth(depth int) Option {
	return func(c *config) {
		c.maxDepth = depth
	}
}

// WithLearningRate sets the shrinkage applied to each stage.
func WithLearningRate(rate float64) Option {
	return func(c *config) {
		c.learningRate = rate
	}
}

// WithSubsample sets the fraction of rows each stage trains on. Values
// below 1 give stochastic gradient boosting.
func WithSubsample(fraction float64) Option {
	return func(c *config) {
		c.subsample = fraction
	}
}

// WithMinSamplesLeaf sets the minimum number of samples per leaf.
func WithMinSamplesLeaf(n int) Option {
	return func(c *config) {
		c.minSamplesLeaf = n
	}
}

// WithSeed fixes the random seed for row subsampling.
func WithSeed(seed uint64) Option {
	return func(c *config) {
		c.seed = seed
	}
}

func defaultConfig() config {
	return config{
		nEstimators:    100,
		maxDepth:       5,
		learningRate:   0.1,
		subsample:      1.0,
		minSamplesLeaf: 1,
		seed:           42,
	}
}

// booster is one additive sequence of stage trees plus its base score.
// The regressor holds one; the classifier holds one per class vector.
type booster struct {
	baseScore float64
	stages    []*tree.DecisionTree
}

// fitBooster runs the gradient descent in function space: each stage fits
// a shallow tree to the negative gradient of the loss at the current
// scores and is added with shrinkage.
//
// gradientFn maps current scores to pseudo-residuals for the next stage.
func fitBooster(cfg config, X mat.Matrix, baseScore float64, gradientFn func(scores []float64) []float64, rng *rand.Rand) (*booster, error) {
	rows, _ := X.Dims()

	b := &booster{
		baseScore: baseScore,
		stages:    make([]*tree.DecisionTree, 0, cfg.nEstimators),
	}

	scores := make([]float64, rows)
	for i := range scores {
		scores[i] = baseScore
	}

	for stage := 0; stage < cfg.nEstimators; stage++ {
		residuals := gradientFn(scores)

		fitX, fitY := X, mat.NewDense(rows, 1, residuals)
		if cfg.subsample < 1 {
			fitX, fitY = subsampleRows(X, residuals, cfg.subsample, rng)
		}

		t := tree.NewDecisionTree(
			tree.WithMaxDepth(cfg.maxDepth),
			tree.WithMinSamplesLeaf(cfg.minSamplesLeaf),
			tree.WithSeed(cfg.seed+uint64(stage)+1),
		)
		if err := t.Fit(fitX, fitY); err != nil {
			return nil, err
		}
		b.stages = append(b.stages, t)

		update, err := t.Predict(X)
		if err != nil {
			return nil, err
		}
		for i := 0; i < rows; i++ {
			scores[i] += cfg.learningRate * update.At(i, 0)
		}
	}

	return b, nil
}

// scoreAll returns the additive model output for every row of X.
func (b *booster) scoreAll(X mat.Matrix, learningRate float64) ([]float64, error) {
	rows, _ := X.Dims()
	scores := make([]float64, rows)
	for i := range scores {
		scores[i] = b.baseScore
	}
	for _, stage := range b.stages {
		pred, err := stage.Predict(X)
		if err != nil {
			return nil, err
		}
		for i := 0; i < rows; i++ {
			scores[i] += learningRate * pred.At(i, 0)
		}
	}
	return scores, nil
}

// gains sums the per-feature split gains over all stages.
func (b *booster) gains(nFeatures int) ([]float64, error) {
	total := make([]float64, nFeatures)
	for _, stage := range b.stages {
		g, err := stage.SplitGains()
		if err != nil {
			return nil, err
		}
		for j, v := range g {
			total[j] += v
		}
	}
	return total, nil
}

func subsampleRows(X mat.Matrix, y []float64, fraction float64, rng *rand.Rand) (*mat.Dense, *mat.Dense) {
	rows, cols := X.Dims()
	m := int(math.Ceil(fraction * float64(rows)))
	if m < 1 {
		m = 1
	}
	perm := rng.Perm(rows)[:m]

	subX := mat.NewDense(m, cols, nil)
	subY := mat.NewDense(m, 1, nil)
	for i, idx := range perm {
		for j := 0; j < cols; j++ {
			subX.Set(i, j, X.At(idx, j))
		}
		subY.Set(i, 0, y[idx])
	}
	return subX, subY
}

// normalizeGains rescales accumulated gains to sum to 1, zero-filling on a
// degenerate vector.
func normalizeGains(gains []float64) []float64 {
	total := 0.0
	for _, v := range gains {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return make([]float64, len(gains))
		}
		total += v
	}
	if total == 0 {
		return gains
	}
	out := make([]float64, len(gains))
	for i, v := range gains {
		out[i] = v / total
	}
	return out
}

func validateFitInput(X, y mat.Matrix, op string) error {
	rows, _ := X.Dims()
	yRows, yCols := y.Dims()
	if rows != yRows {
		return errors.NewDimensionError(op, rows, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError(op, 1, yCols, 1)
	}
	if rows == 0 {
		return errors.Wrap(errors.ErrEmptyData, op)
	}
	return nil
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
