package tree

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/ensemblelab/ensemble/core/model"
	"github.com/ensemblelab/ensemble/pkg/errors"
)

// DecisionTree is a single CART regression tree. It is exposed so the
// boosting stage can fit shallow trees to pseudo-residuals; on its own it
// is rarely a competitive expert.
type DecisionTree struct {
	state *model.StateManager
	cfg   config

	tree       *cart
	nFeatures_ int
}

// NewDecisionTree creates a CART regression tree.
func NewDecisionTree(opts ...Option) *DecisionTree {
	t := &DecisionTree{
		state: model.NewStateManager(),
		cfg: config{
			maxDepth:        10,
			minSamplesSplit: 2,
			minSamplesLeaf:  1,
			seed:            42,
		},
	}
	for _, opt := range opts {
		opt(&t.cfg)
	}
	return t
}

// Fit grows the tree on X and the column vector y by recursive variance
// reduction.
func (t *DecisionTree) Fit(X, y mat.Matrix) error {
	rows, cols := X.Dims()
	yRows, yCols := y.Dims()
	if rows != yRows {
		return errors.NewDimensionError("DecisionTree.Fit", rows, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("DecisionTree.Fit", 1, yCols, 1)
	}
	if rows == 0 {
		return errors.Wrap(errors.ErrEmptyData, "DecisionTree.Fit")
	}
	t.state.Reset()

	targets := make([]float64, rows)
	indices := make([]int, rows)
	for i := 0; i < rows; i++ {
		targets[i] = y.At(i, 0)
		indices[i] = i
	}

	rng := rand.New(rand.NewPCG(t.cfg.seed, t.cfg.seed))
	t.tree = newCART(t.cfg, criterionMSE, 0, rng)
	t.tree.grow(X, targets, indices)
	t.nFeatures_ = cols

	t.state.SetFitted()
	t.state.SetDimensions(cols, rows)
	return nil
}

// Predict returns a column vector of leaf means for X.
func (t *DecisionTree) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := t.state.RequireFitted("DecisionTree", "Predict"); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if cols != t.nFeatures_ {
		return nil, errors.NewDimensionError("DecisionTree.Predict", t.nFeatures_, cols, 1)
	}

	predictions := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		predictions.Set(i, 0, t.tree.predictRow(X, i))
	}
	return predictions, nil
}

// FeatureImportances reports normalized accumulated impurity decreases.
func (t *DecisionTree) FeatureImportances() ([]float64, error) {
	if err := t.state.RequireFitted("DecisionTree", "FeatureImportances"); err != nil {
		return nil, err
	}
	return normalizeImportances(t.tree.importances), nil
}

// SplitGains returns a copy of the unnormalized impurity decreases per
// feature. Ensembles of trees sum these before normalizing, so that deep
// gains weigh more than shallow ones.
func (t *DecisionTree) SplitGains() ([]float64, error) {
	if err := t.state.RequireFitted("DecisionTree", "SplitGains"); err != nil {
		return nil, err
	}
	gains := make([]float64, len(t.tree.importances))
	copy(gains, t.tree.importances)
	return gains, nil
}

// IsFitted returns whether the model has been fitted.
func (t *DecisionTree) IsFitted() bool {
	return t.state.IsFitted()
}
