package errors

import (
	"strings"
	"testing"
)

func TestDataFormatError(t *testing.T) {
	err := NewDataFormatError("concrete.csv", "target column missing")

	var dfe *DataFormatError
	if !As(err, &dfe) {
		t.Fatalf("expected DataFormatError in chain, got %T", err)
	}
	if dfe.Source != "concrete.csv" {
		t.Errorf("Source = %q, want %q", dfe.Source, "concrete.csv")
	}
	if !strings.Contains(err.Error(), "target column missing") {
		t.Errorf("Error() = %q, want reason included", err.Error())
	}
}

func TestTrainingErrorUnwrap(t *testing.T) {
	cause := ErrSingularMatrix
	err := NewTrainingError("Linear Regression", "fit", cause)

	if !Is(err, ErrSingularMatrix) {
		t.Error("expected Is(err, ErrSingularMatrix) to be true")
	}

	var te *TrainingError
	if !As(err, &te) {
		t.Fatalf("expected TrainingError in chain")
	}
	if te.Model != "Linear Regression" || te.Stage != "fit" {
		t.Errorf("unexpected fields: %+v", te)
	}
}

func TestInsufficientDataError(t *testing.T) {
	err := NewInsufficientDataError("cross_validation", 2, 1)

	var ide *InsufficientDataError
	if !As(err, &ide) {
		t.Fatalf("expected InsufficientDataError in chain")
	}
	if ide.Required != 2 || ide.Got != 1 {
		t.Errorf("unexpected fields: %+v", ide)
	}
}

func TestSchemaError(t *testing.T) {
	err := NewSchemaError("ensemble_performance.r2_score", "value is NaN")
	var se *SchemaError
	if !As(err, &se) {
		t.Fatalf("expected SchemaError in chain")
	}
	if se.Field != "ensemble_performance.r2_score" {
		t.Errorf("Field = %q", se.Field)
	}
}

func TestWarnUsesCustomHandler(t *testing.T) {
	var captured []error
	SetWarningHandler(func(w error) {
		captured = append(captured, w)
	})
	defer SetWarningHandler(nil)

	Warn(NewDegradedImportanceWarning("Random Forest", "no splits made"))
	Warn(NewOmittedModelWarning("XGBoost", ErrConstantTarget))

	if len(captured) != 2 {
		t.Fatalf("captured %d warnings, want 2", len(captured))
	}
	var diw *DegradedImportanceWarning
	if !As(captured[0], &diw) {
		t.Errorf("first warning type = %T, want DegradedImportanceWarning", captured[0])
	}
}

func TestNotFittedError(t *testing.T) {
	err := NewNotFittedError("GBTRegressor", "Predict")
	if !strings.Contains(err.Error(), "not fitted") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestDimensionErrorAxisNames(t *testing.T) {
	rowErr := NewDimensionError("Voting.Combine", 10, 8, 0)
	if !strings.Contains(rowErr.Error(), "rows") {
		t.Errorf("axis 0 should report rows: %q", rowErr.Error())
	}
	colErr := NewDimensionError("Stacking.Fit", 3, 2, 1)
	if !strings.Contains(colErr.Error(), "features") {
		t.Errorf("axis 1 should report features: %q", colErr.Error())
	}
}
