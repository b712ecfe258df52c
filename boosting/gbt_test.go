package boosting

import (
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func makeRegressionData(n int, seed uint64) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewPCG(seed, seed))
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		x1 := rng.Float64() * 10
		x2 := rng.Float64() * 5
		X.Set(i, 0, x1)
		X.Set(i, 1, x2)
		y.Set(i, 0, 3*x1+x2*x2+rng.NormFloat64()*0.1)
	}
	return X, y
}

func makeClassificationData(n int, seed uint64) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewPCG(seed, seed))
	X := mat.NewDense(n, 2, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		x1 := rng.Float64() * 10
		x2 := rng.Float64() * 10
		X.Set(i, 0, x1)
		X.Set(i, 1, x2)
		if x1*x2 > 25 {
			y.Set(i, 0, 1)
		}
	}
	return X, y
}

func TestGBTRegressorFitsNonlinearTarget(t *testing.T) {
	X, y := makeRegressionData(300, 1)

	g := NewGBTRegressor(WithTrees(50), WithMaxDepth(4), WithSeed(42))
	if err := g.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	pred, err := g.Predict(X)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}

	rows, _ := X.Dims()
	mean := 0.0
	for i := 0; i < rows; i++ {
		mean += y.At(i, 0)
	}
	mean /= float64(rows)

	var sse, baseline float64
	for i := 0; i < rows; i++ {
		d := pred.At(i, 0) - y.At(i, 0)
		sse += d * d
		b := mean - y.At(i, 0)
		baseline += b * b
	}
	if sse >= baseline/10 {
		t.Errorf("boosted SSE = %v, baseline SSE = %v; expected a large improvement", sse, baseline)
	}
}

func TestGBTRegressorReproducible(t *testing.T) {
	X, y := makeRegressionData(120, 2)

	first := NewGBTRegressor(WithTrees(20), WithSeed(7))
	second := NewGBTRegressor(WithTrees(20), WithSeed(7))
	if err := first.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}
	if err := second.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	p1, _ := first.Predict(X)
	p2, _ := second.Predict(X)
	if !mat.EqualApprox(p1, p2, 1e-12) {
		t.Error("identical seeds produced different boosted models")
	}
}

func TestGBTRegressorImportancesSumToOne(t *testing.T) {
	X, y := makeRegressionData(200, 3)

	g := NewGBTRegressor(WithTrees(30), WithSeed(42))
	if err := g.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	importances, err := g.FeatureImportances()
	if err != nil {
		t.Fatalf("FeatureImportances() error = %v", err)
	}
	sum := 0.0
	for i, v := range importances {
		if v < 0 {
			t.Errorf("importance[%d] = %v, want non-negative", i, v)
		}
		sum += v
	}
	if math.Abs(sum-1.0) > 1e-6 {
		t.Errorf("importances sum = %v, want 1.0", sum)
	}
}

func TestGBTRegressorNotFitted(t *testing.T) {
	g := NewGBTRegressor()
	X := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	if _, err := g.Predict(X); err == nil {
		t.Error("Predict() before Fit() should fail")
	}
}

func TestGBTClassifierLearnsInteraction(t *testing.T) {
	X, y := makeClassificationData(300, 4)

	g := NewGBTClassifier(WithTrees(50), WithMaxDepth(3), WithSeed(42))
	if err := g.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	pred, err := g.Predict(X)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}

	rows, _ := X.Dims()
	correct := 0
	for i := 0; i < rows; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	if acc := float64(correct) / float64(rows); acc < 0.9 {
		t.Errorf("training accuracy = %v, want >= 0.9", acc)
	}

	classes := g.Classes()
	if len(classes) != 2 || classes[0] != 0 || classes[1] != 1 {
		t.Errorf("Classes() = %v, want [0 1]", classes)
	}
}

func TestGBTClassifierProbabilityRows(t *testing.T) {
	X, y := makeClassificationData(150, 5)

	g := NewGBTClassifier(WithTrees(20), WithSeed(9))
	if err := g.Fit(X, y); err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	proba, err := g.PredictProba(X)
	if err != nil {
		t.Fatalf("PredictProba() error = %v", err)
	}
	rows, cols := proba.Dims()
	if cols != 2 {
		t.Fatalf("proba cols = %d, want 2", cols)
	}
	for i := 0; i < rows; i++ {
		sum := 0.0
		for c := 0; c < cols; c++ {
			p := proba.At(i, c)
			if p < 0 || p > 1 {
				t.Errorf("proba[%d][%d] = %v out of range", i, c, p)
			}
			sum += p
		}
		if math.Abs(sum-1.0) > 1e-9 {
			t.Errorf("row %d probabilities sum to %v", i, sum)
		}
	}
}

func TestGBTClassifierConstantTarget(t *testing.T) {
	X := mat.NewDense(10, 1, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	y := mat.NewDense(10, 1, nil)

	g := NewGBTClassifier(WithTrees(5))
	if err := g.Fit(X, y); err == nil {
		t.Error("Fit() on a single-class target should fail")
	}
}
