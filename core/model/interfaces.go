package model

import (
	"gonum.org/v1/gonum/mat"
)

// Fitter is the interface for models that can be trained.
type Fitter interface {
	// Fit trains the model on X (n_samples x n_features) and a column
	// vector y (n_samples x 1).
	Fit(X, y mat.Matrix) error
}

// Predictor is the interface for models that can predict.
type Predictor interface {
	// Predict returns a column vector of predictions for X.
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// FeatureImportancer is the interface for models that can attribute
// predictive influence to input features. The returned vector has one
// entry per original feature, is non-negative, and sums to 1 (or is all
// zero when the model could not produce stable importances).
type FeatureImportancer interface {
	FeatureImportances() ([]float64, error)
}

// Regressor combines the capabilities required of a regression expert.
type Regressor interface {
	Fitter
	Predictor
	FeatureImportancer
}

// Classifier combines the capabilities required of a classification expert.
type Classifier interface {
	Fitter
	Predictor
	FeatureImportancer

	// PredictProba returns an (n_samples x n_classes) matrix of class
	// probability estimates, columns ordered as Classes().
	PredictProba(X mat.Matrix) (mat.Matrix, error)

	// Classes returns the unique class labels seen during fitting, sorted.
	Classes() []int
}
