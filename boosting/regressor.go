package boosting

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/ensemblelab/ensemble/core/model"
	"github.com/ensemblelab/ensemble/pkg/errors"
)

// GBTRegressor is a gradient-boosted tree regressor with squared loss.
// The base score is the target mean; each stage fits the residuals of the
// running prediction.
type GBTRegressor struct {
	state *model.StateManager
	cfg   config

	model      *booster
	nFeatures_ int
	nSamples_  int
}

// NewGBTRegressor creates a gradient-boosted regressor. Defaults follow
// the pipeline configuration: 100 stages of depth-5 trees at learning
// rate 0.1.
func NewGBTRegressor(opts ...Option) *GBTRegressor {
	g := &GBTRegressor{
		state: model.NewStateManager(),
		cfg:   defaultConfig(),
	}
	for _, opt := range opts {
		opt(&g.cfg)
	}
	return g
}

// Fit trains the boosted ensemble on X and the column vector y.
func (g *GBTRegressor) Fit(X, y mat.Matrix) error {
	if err := validateFitInput(X, y, "GBTRegressor.Fit"); err != nil {
		return err
	}
	g.state.Reset()
	rows, cols := X.Dims()

	targets := make([]float64, rows)
	mean := 0.0
	for i := 0; i < rows; i++ {
		targets[i] = y.At(i, 0)
		mean += targets[i]
	}
	mean /= float64(rows)

	// Squared loss: the negative gradient is the plain residual.
	gradientFn := func(scores []float64) []float64 {
		residuals := make([]float64, len(scores))
		for i, s := range scores {
			residuals[i] = targets[i] - s
		}
		return residuals
	}

	rng := rand.New(rand.NewPCG(g.cfg.seed, g.cfg.seed))
	fitted, err := fitBooster(g.cfg, X, mean, gradientFn, rng)
	if err != nil {
		return errors.NewTrainingError("GBTRegressor", "fit", err)
	}
	g.model = fitted
	g.nFeatures_ = cols
	g.nSamples_ = rows

	g.state.SetFitted()
	g.state.SetDimensions(cols, rows)
	return nil
}

// Predict returns a column vector of additive model outputs.
func (g *GBTRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := g.state.RequireFitted("GBTRegressor", "Predict"); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if cols != g.nFeatures_ {
		return nil, errors.NewDimensionError("GBTRegressor.Predict", g.nFeatures_, cols, 1)
	}

	scores, err := g.model.scoreAll(X, g.cfg.learningRate)
	if err != nil {
		return nil, err
	}
	predictions := mat.NewDense(rows, 1, nil)
	for i, s := range scores {
		predictions.Set(i, 0, s)
	}
	return predictions, nil
}

// FeatureImportances reports normalized split gains accumulated over all
// stages.
func (g *GBTRegressor) FeatureImportances() ([]float64, error) {
	if err := g.state.RequireFitted("GBTRegressor", "FeatureImportances"); err != nil {
		return nil, err
	}
	gains, err := g.model.gains(g.nFeatures_)
	if err != nil {
		return nil, err
	}
	return normalizeGains(gains), nil
}

// IsFitted returns whether the model has been fitted.
func (g *GBTRegressor) IsFitted() bool {
	return g.state.IsFitted()
}
