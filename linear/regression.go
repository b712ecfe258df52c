// Package linear implements the linear experts of the ensemble: ordinary
// least squares regression and logistic regression.
package linear

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/ensemblelab/ensemble/core/model"
	"github.com/ensemblelab/ensemble/pkg/errors"
)

// Regression is an ordinary least squares linear regression model.
type Regression struct {
	state *model.StateManager

	fitIntercept bool

	coef_      []float64
	intercept_ float64
	nFeatures_ int
	nSamples_  int
}

// RegressionOption configures a Regression model.
type RegressionOption func(*Regression)

// WithFitIntercept controls whether the intercept is learned.
func WithFitIntercept(fit bool) RegressionOption {
	return func(r *Regression) {
		r.fitIntercept = fit
	}
}

// NewRegression creates a new linear regression model.
func NewRegression(options ...RegressionOption) *Regression {
	r := &Regression{
		state:        model.NewStateManager(),
		fitIntercept: true,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Fit solves the least squares problem with a QR factorization.
func (r *Regression) Fit(X, y mat.Matrix) error {
	rows, cols := X.Dims()
	yRows, yCols := y.Dims()

	if rows != yRows {
		return errors.NewDimensionError("Regression.Fit", rows, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("Regression.Fit", 1, yCols, 1)
	}
	r.state.Reset()

	r.nSamples_ = rows
	r.nFeatures_ = cols

	var XFit mat.Matrix
	if r.fitIntercept {
		// Prepend a column of ones for the bias term.
		withIntercept := mat.NewDense(rows, cols+1, nil)
		for i := 0; i < rows; i++ {
			withIntercept.Set(i, 0, 1.0)
			for j := 0; j < cols; j++ {
				withIntercept.Set(i, j+1, X.At(i, j))
			}
		}
		XFit = withIntercept
	} else {
		XFit = X
	}

	var qr mat.QR
	qr.Factorize(XFit)

	_, qrCols := XFit.Dims()
	coefficients := mat.NewDense(qrCols, 1, nil)
	if err := qr.SolveTo(coefficients, false, y); err != nil {
		return errors.NewTrainingError("Regression", "fit", errors.ErrSingularMatrix)
	}

	r.coef_ = make([]float64, cols)
	if r.fitIntercept {
		r.intercept_ = coefficients.At(0, 0)
		for i := 0; i < cols; i++ {
			r.coef_[i] = coefficients.At(i+1, 0)
		}
	} else {
		r.intercept_ = 0.0
		for i := 0; i < cols; i++ {
			r.coef_[i] = coefficients.At(i, 0)
		}
	}

	r.state.SetFitted()
	r.state.SetDimensions(r.nFeatures_, r.nSamples_)
	return nil
}

// Predict returns a column vector of predictions for X.
func (r *Regression) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := r.state.RequireFitted("Regression", "Predict"); err != nil {
		return nil, err
	}

	rows, cols := X.Dims()
	nFeatures, _ := r.state.GetDimensions()
	if cols != nFeatures {
		return nil, errors.NewDimensionError("Regression.Predict", nFeatures, cols, 1)
	}

	predictions := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		pred := r.intercept_
		for j := 0; j < cols; j++ {
			pred += X.At(i, j) * r.coef_[j]
		}
		predictions.Set(i, 0, pred)
	}
	return predictions, nil
}

// FeatureImportances reports normalized absolute coefficients. A
// degenerate fit (all-zero or non-finite coefficients) yields a zero
// vector instead of an error, keeping the ensemble usable with reduced
// explainability.
func (r *Regression) FeatureImportances() ([]float64, error) {
	if err := r.state.RequireFitted("Regression", "FeatureImportances"); err != nil {
		return nil, err
	}

	importances := make([]float64, r.nFeatures_)
	total := 0.0
	for i, c := range r.coef_ {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return importances, nil
		}
		importances[i] = math.Abs(c)
		total += importances[i]
	}
	if total == 0 {
		return importances, nil
	}
	for i := range importances {
		importances[i] /= total
	}
	return importances, nil
}

// Coef returns a copy of the learned weight coefficients.
func (r *Regression) Coef() []float64 {
	if r.coef_ == nil {
		return nil
	}
	coef := make([]float64, len(r.coef_))
	copy(coef, r.coef_)
	return coef
}

// Intercept returns the learned intercept.
func (r *Regression) Intercept() float64 {
	return r.intercept_
}

// IsFitted returns whether the model has been fitted.
func (r *Regression) IsFitted() bool {
	return r.state.IsFitted()
}
