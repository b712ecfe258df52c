package tree

import (
	"math"
	"math/rand/v2"
	"runtime"
	"sort"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/ensemblelab/ensemble/core/model"
	"github.com/ensemblelab/ensemble/pkg/errors"
)

// ForestRegressor is a random forest of CART regression trees. Each tree
// is grown on a bootstrap resample; predictions are the per-row mean over
// trees.
type ForestRegressor struct {
	state *model.StateManager
	cfg   config

	trees      []*cart
	nFeatures_ int
	nSamples_  int
}

// NewForestRegressor creates a random forest regressor. Defaults follow
// the pipeline configuration: 100 trees of depth 10, every feature
// considered at each split.
func NewForestRegressor(opts ...Option) *ForestRegressor {
	f := &ForestRegressor{
		state: model.NewStateManager(),
		cfg: config{
			nEstimators:     100,
			maxDepth:        10,
			minSamplesSplit: 2,
			minSamplesLeaf:  1,
			seed:            42,
		},
	}
	for _, opt := range opts {
		opt(&f.cfg)
	}
	return f
}

// Fit grows the forest. Trees are independent given their derived seeds,
// so they are grown concurrently.
func (f *ForestRegressor) Fit(X, y mat.Matrix) error {
	rows, cols := X.Dims()
	if err := validateFitInput(X, y, "ForestRegressor.Fit"); err != nil {
		return err
	}
	f.state.Reset()

	targets := columnToSlice(y)
	f.trees = fitForest(f.cfg, criterionMSE, 0, X, targets)
	f.nFeatures_ = cols
	f.nSamples_ = rows

	f.state.SetFitted()
	f.state.SetDimensions(cols, rows)
	return nil
}

// Predict averages the per-tree predictions for each row.
func (f *ForestRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := f.state.RequireFitted("ForestRegressor", "Predict"); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if cols != f.nFeatures_ {
		return nil, errors.NewDimensionError("ForestRegressor.Predict", f.nFeatures_, cols, 1)
	}

	predictions := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		sum := 0.0
		for _, t := range f.trees {
			sum += t.predictRow(X, i)
		}
		predictions.Set(i, 0, sum/float64(len(f.trees)))
	}
	return predictions, nil
}

// FeatureImportances reports normalized mean impurity decreases across the
// forest.
func (f *ForestRegressor) FeatureImportances() ([]float64, error) {
	if err := f.state.RequireFitted("ForestRegressor", "FeatureImportances"); err != nil {
		return nil, err
	}
	return forestImportances(f.trees, f.nFeatures_), nil
}

// IsFitted returns whether the model has been fitted.
func (f *ForestRegressor) IsFitted() bool {
	return f.state.IsFitted()
}

// ForestClassifier is a random forest of CART classification trees using
// the Gini criterion. Probabilities are the mean of per-tree leaf class
// histograms.
type ForestClassifier struct {
	state *model.StateManager
	cfg   config

	trees      []*cart
	classes_   []int
	nClasses_  int
	nFeatures_ int
	nSamples_  int
}

// NewForestClassifier creates a random forest classifier. Each split
// considers sqrt(n_features) candidate features unless overridden.
func NewForestClassifier(opts ...Option) *ForestClassifier {
	f := &ForestClassifier{
		state: model.NewStateManager(),
		cfg: config{
			nEstimators:     100,
			maxDepth:        10,
			minSamplesSplit: 2,
			minSamplesLeaf:  1,
			seed:            42,
		},
	}
	for _, opt := range opts {
		opt(&f.cfg)
	}
	return f
}

// Fit grows the forest on integer-coded class labels.
func (f *ForestClassifier) Fit(X, y mat.Matrix) error {
	rows, cols := X.Dims()
	if err := validateFitInput(X, y, "ForestClassifier.Fit"); err != nil {
		return err
	}
	f.state.Reset()

	labels := columnToSlice(y)
	f.classes_ = uniqueClasses(labels)
	f.nClasses_ = len(f.classes_)
	if f.nClasses_ < 2 {
		return errors.NewTrainingError("ForestClassifier", "fit", errors.ErrConstantTarget)
	}

	// Trees index classes by position in the sorted label set.
	classIndex := make(map[int]int, f.nClasses_)
	for i, c := range f.classes_ {
		classIndex[c] = i
	}
	encoded := make([]float64, rows)
	for i, v := range labels {
		encoded[i] = float64(classIndex[int(v)])
	}

	cfg := f.cfg
	if cfg.maxFeatures <= 0 {
		cfg.maxFeatures = int(math.Max(1, math.Sqrt(float64(cols))))
	}
	f.trees = fitForest(cfg, criterionGini, f.nClasses_, X, encoded)
	f.nFeatures_ = cols
	f.nSamples_ = rows

	f.state.SetFitted()
	f.state.SetDimensions(cols, rows)
	return nil
}

// Predict returns the class label with the highest mean probability.
func (f *ForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := f.PredictProba(X)
	if err != nil {
		return nil, err
	}
	rows, _ := proba.Dims()
	predictions := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		best := 0
		for c := 1; c < f.nClasses_; c++ {
			if proba.At(i, c) > proba.At(i, best) {
				best = c
			}
		}
		predictions.Set(i, 0, float64(f.classes_[best]))
	}
	return predictions, nil
}

// PredictProba averages the per-tree leaf class histograms, columns
// ordered as Classes().
func (f *ForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := f.state.RequireFitted("ForestClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	if cols != f.nFeatures_ {
		return nil, errors.NewDimensionError("ForestClassifier.PredictProba", f.nFeatures_, cols, 1)
	}

	proba := mat.NewDense(rows, f.nClasses_, nil)
	for i := 0; i < rows; i++ {
		for _, t := range f.trees {
			counts := t.predictCounts(X, i)
			for c, p := range counts {
				proba.Set(i, c, proba.At(i, c)+p)
			}
		}
		for c := 0; c < f.nClasses_; c++ {
			proba.Set(i, c, proba.At(i, c)/float64(len(f.trees)))
		}
	}
	return proba, nil
}

// Classes returns the class labels seen during fitting, sorted.
func (f *ForestClassifier) Classes() []int {
	classes := make([]int, len(f.classes_))
	copy(classes, f.classes_)
	return classes
}

// FeatureImportances reports normalized mean impurity decreases across the
// forest.
func (f *ForestClassifier) FeatureImportances() ([]float64, error) {
	if err := f.state.RequireFitted("ForestClassifier", "FeatureImportances"); err != nil {
		return nil, err
	}
	return forestImportances(f.trees, f.nFeatures_), nil
}

// IsFitted returns whether the model has been fitted.
func (f *ForestClassifier) IsFitted() bool {
	return f.state.IsFitted()
}

// fitForest grows cfg.nEstimators trees concurrently. Every tree derives
// its own PCG stream from the forest seed, so results do not depend on
// goroutine scheduling.
func fitForest(cfg config, crit criterion, nClasses int, X mat.Matrix, y []float64) []*cart {
	rows, _ := X.Dims()
	trees := make([]*cart, cfg.nEstimators)

	var wg sync.WaitGroup
	sem := make(chan struct{}, runtime.GOMAXPROCS(0))
	for i := range trees {
		wg.Add(1)
		sem <- struct{}{}
		go func(treeIdx int) {
			defer wg.Done()
			defer func() { <-sem }()

			rng := rand.New(rand.NewPCG(cfg.seed, cfg.seed+uint64(treeIdx)+1))
			indices := make([]int, rows)
			for j := range indices {
				indices[j] = rng.IntN(rows)
			}
			t := newCART(cfg, crit, nClasses, rng)
			t.grow(X, y, indices)
			trees[treeIdx] = t
		}(i)
	}
	wg.Wait()
	return trees
}

func forestImportances(trees []*cart, nFeatures int) []float64 {
	accumulated := make([]float64, nFeatures)
	for _, t := range trees {
		for j, v := range t.importances {
			accumulated[j] += v
		}
	}
	return normalizeImportances(accumulated)
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

func columnToSlice(y mat.Matrix) []float64 {
	rows, _ := y.Dims()
	out := make([]float64, rows)
	for i := 0; i < rows; i++ {
		out[i] = y.At(i, 0)
	}
	return out
}

func uniqueClasses(labels []float64) []int {
	seen := make(map[int]bool)
	for _, v := range labels {
		seen[int(v)] = true
	}
	classes := make([]int, 0, len(seen))
	for c := range seen {
		classes = append(classes, c)
	}
	sort.Ints(classes)
	return classes
}
