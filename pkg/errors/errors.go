// Package errors provides the error taxonomy and warning system for the
// ensemble pipeline. Fatal errors abort an invocation and surface as the
// top-level failure payload; warnings carry non-fatal degradations
// (zero-filled importances, approximate metrics) without failing the run.
package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	Global warning handling
//
// ===========================================================================

var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		log.Printf("ensemble-warning: %v\n", w)
	}
	// zerolog sink, injected lazily to avoid an import cycle with pkg/log.
	zerologWarnFunc func(warning error)
)

// SetWarningHandler sets the process-wide warning handler.
//
// Example:
//
//	errors.SetWarningHandler(func(w error) {
//	    // drop warnings
//	})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc installs a zerolog-backed warning sink.
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn emits a non-fatal warning through the configured sink.
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}
	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	Pipeline error taxonomy
//
// ===========================================================================

// DataFormatError reports malformed or undersized input data. It is fatal
// and aborts the whole invocation.
type DataFormatError struct {
	Source string // file or dataset id
	Reason string
}

func (e *DataFormatError) Error() string {
	return fmt.Sprintf("ensemble: invalid dataset %q: %s", e.Source, e.Reason)
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *DataFormatError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("source", e.Source).
		Str("reason", e.Reason).
		Str("type", "DataFormatError")
}

// NewDataFormatError creates a DataFormatError with a stack trace attached.
func NewDataFormatError(source, reason string) error {
	err := &DataFormatError{Source: source, Reason: reason}
	return errors.WithStack(err)
}

// TrainingError reports that a base or meta model failed to fit. A single
// base model failure degrades the result; a meta model failure is fatal.
type TrainingError struct {
	Model string
	Stage string // "fit", "predict", "importance"
	Err   error
}

func (e *TrainingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ensemble: %s failed during %s: %v", e.Model, e.Stage, e.Err)
	}
	return fmt.Sprintf("ensemble: %s failed during %s", e.Model, e.Stage)
}

func (e *TrainingError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *TrainingError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model", e.Model).
		Str("stage", e.Stage).
		Str("type", "TrainingError")
	if e.Err != nil {
		event.AnErr("cause", e.Err)
	}
}

// NewTrainingError creates a TrainingError with a stack trace attached.
func NewTrainingError(model, stage string, err error) error {
	trainErr := &TrainingError{Model: model, Stage: stage, Err: err}
	return errors.WithStack(trainErr)
}

// InsufficientDataError reports that too few valid cross-validation folds
// completed for a statistics section. It downgrades that section to
// inconclusive instead of failing the result.
type InsufficientDataError struct {
	Op       string
	Required int
	Got      int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("ensemble: %s: need at least %d valid folds, got %d", e.Op, e.Required, e.Got)
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *InsufficientDataError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("required", e.Required).
		Int("got", e.Got).
		Str("type", "InsufficientDataError")
}

// NewInsufficientDataError creates an InsufficientDataError with a stack trace.
func NewInsufficientDataError(op string, required, got int) error {
	err := &InsufficientDataError{Op: op, Required: required, Got: got}
	return errors.WithStack(err)
}

// SchemaError reports a non-finite value or missing required field detected
// before normalization. It must never reach the output payload; the
// normalizer converts it to a TrainingError with context.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("ensemble: result field %q invalid: %s", e.Field, e.Reason)
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *SchemaError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("field", e.Field).
		Str("reason", e.Reason).
		Str("type", "SchemaError")
}

// NewSchemaError creates a SchemaError with a stack trace attached.
func NewSchemaError(field, reason string) error {
	err := &SchemaError{Field: field, Reason: reason}
	return errors.WithStack(err)
}

// ===========================================================================
//
//	Model-layer errors
//
// ===========================================================================

// NotFittedError reports Predict or Transform on an unfitted model.
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("ensemble: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError creates a NotFittedError with a stack trace attached.
func NewNotFittedError(modelName, method string) error {
	err := &NotFittedError{ModelName: modelName, Method: method}
	return errors.WithStack(err)
}

// DimensionError reports an input whose dimensions differ from expectations.
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) Error() string {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("ensemble: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// MarshalZerologObject adds structured error fields to a zerolog event.
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("type", "DimensionError")
}

// NewDimensionError creates a DimensionError with a stack trace attached.
func NewDimensionError(op string, expected, got, axis int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// ValueError reports an argument whose value is invalid for an operation.
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("ensemble: %s: %s", e.Op, e.Message)
}

// NewValueError creates a ValueError with a stack trace attached.
func NewValueError(op, message string) error {
	err := &ValueError{Op: op, Message: message}
	return errors.WithStack(err)
}

// ===========================================================================
//
//	Warning types
//
// ===========================================================================

// DegradedImportanceWarning signals that a model could not produce stable
// feature importances and its vector was zero-filled.
type DegradedImportanceWarning struct {
	Model  string
	Reason string
}

func (w *DegradedImportanceWarning) Error() string {
	return fmt.Sprintf("%s produced no stable feature importances (%s); importances zero-filled", w.Model, w.Reason)
}

// MarshalZerologObject adds structured warning fields to a zerolog event.
func (w *DegradedImportanceWarning) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model", w.Model).
		Str("reason", w.Reason).
		Str("type", "DegradedImportanceWarning")
}

// NewDegradedImportanceWarning creates a new DegradedImportanceWarning.
func NewDegradedImportanceWarning(model, reason string) *DegradedImportanceWarning {
	return &DegradedImportanceWarning{Model: model, Reason: reason}
}

// OmittedModelWarning signals that one base model failed and the pipeline
// continued with the remaining experts.
type OmittedModelWarning struct {
	Model string
	Cause error
}

func (w *OmittedModelWarning) Error() string {
	return fmt.Sprintf("base model %s omitted from ensemble: %v", w.Model, w.Cause)
}

// MarshalZerologObject adds structured warning fields to a zerolog event.
func (w *OmittedModelWarning) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model", w.Model).
		Str("type", "OmittedModelWarning")
	if w.Cause != nil {
		event.AnErr("cause", w.Cause)
	}
}

// NewOmittedModelWarning creates a new OmittedModelWarning.
func NewOmittedModelWarning(model string, cause error) *OmittedModelWarning {
	return &OmittedModelWarning{Model: model, Cause: cause}
}

// ApproximateMetricWarning signals that RMSE/MAE were derived from a
// prediction sample rather than the full test set.
type ApproximateMetricWarning struct {
	Metric     string
	SampleSize int
}

func (w *ApproximateMetricWarning) Error() string {
	return fmt.Sprintf("%s approximated from a %d-row prediction sample", w.Metric, w.SampleSize)
}

// NewApproximateMetricWarning creates a new ApproximateMetricWarning.
func NewApproximateMetricWarning(metric string, sampleSize int) *ApproximateMetricWarning {
	return &ApproximateMetricWarning{Metric: metric, SampleSize: sampleSize}
}

// ===========================================================================
//
//	cockroachdb/errors wrappers
//
// ===========================================================================

// Is reports whether err matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with a message.
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New creates a new error.
func New(message string) error {
	return errors.New(message)
}

// Newf creates a new formatted error.
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack annotates err with a stack trace.
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	Common error variables
//
// ===========================================================================

var (
	// ErrEmptyData reports empty input data.
	ErrEmptyData = New("empty data")

	// ErrSingularMatrix reports a singular design matrix.
	ErrSingularMatrix = New("singular matrix")

	// ErrConstantTarget reports an all-constant training target.
	ErrConstantTarget = New("target has no variance")
)
