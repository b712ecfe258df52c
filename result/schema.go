// Package result assembles the pipeline outputs into the fixed JSON
// payload consumed by the presentation layer. Internally regression and
// classification diverge through the ModelMetrics task tag; they converge
// to the documented optional-field shape only here, at the serialization
// boundary.
package result

// Payload is the top-level success object.
type Payload struct {
	Voting      *EnsembleResult `json:"voting"`
	Stacking    *EnsembleResult `json:"stacking"`
	DatasetInfo *DatasetInfo    `json:"dataset_info"`
}

// Failure is the top-level error object. Every fatal pipeline error
// surfaces through this single shape.
type Failure struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// NewFailure wraps an error message into the failure shape.
func NewFailure(err error) Failure {
	return Failure{Success: false, Error: err.Error()}
}

// DatasetInfo describes the analyzed dataset.
type DatasetInfo struct {
	DatasetID        string   `json:"dataset_id"`
	NSamples         int      `json:"n_samples"`
	NFeatures        int      `json:"n_features"`
	FeatureNames     []string `json:"feature_names"`
	IsClassification bool     `json:"is_classification"`
	NClasses         int      `json:"n_classes,omitempty"`
	ClassNames       []string `json:"class_names,omitempty"`
	TaskType         string   `json:"task_type"`
	TargetVariable   string   `json:"target_variable"`
	TrainSize        int      `json:"train_size"`
	TestSize         int      `json:"test_size"`
}

// Metrics carries the task-appropriate metric fields. Regression fills
// r2_score/rmse/mae; classification fills accuracy/precision/recall/
// f1_score. Unused fields are omitted rather than zeroed.
type Metrics struct {
	R2Score *float64 `json:"r2_score,omitempty"`
	RMSE    *float64 `json:"rmse,omitempty"`
	MAE     *float64 `json:"mae,omitempty"`

	Accuracy  *float64 `json:"accuracy,omitempty"`
	Precision *float64 `json:"precision,omitempty"`
	Recall    *float64 `json:"recall,omitempty"`
	F1Score   *float64 `json:"f1_score,omitempty"`
}

// Performance is the combined model's metrics plus its improvement over
// the best base model.
type Performance struct {
	Metrics

	ImprovementOverBestBase string  `json:"improvement_over_best_base"`
	RawImprovement          float64 `json:"raw_improvement"`

	// Approximate flags RMSE/MAE derived from the prediction sample
	// rather than the full test set.
	Approximate bool `json:"approximate,omitempty"`
}

// PredictionSample is one displayed test row: the actual value, the
// ensemble prediction, and each base model's raw prediction keyed by name.
type PredictionSample map[string]float64

// ScenarioInsight is one half of the feature-stratified win analysis.
type ScenarioInsight struct {
	Condition  string         `json:"condition"`
	BestExpert string         `json:"best_expert"`
	Wins       map[string]int `json:"wins"`
}

// FeatureInsights reports expert dominance above and below the median of
// the most important feature.
type FeatureInsights struct {
	MostImportantFeature string          `json:"most_important_feature"`
	MedianValue          float64         `json:"median_value"`
	HighScenario         ScenarioInsight `json:"high_scenario"`
	LowScenario          ScenarioInsight `json:"low_scenario"`
}

// CVMethod summarizes one ensemble method's cross-validation scores.
// Regression reports mean_r2/std_r2, classification mean_accuracy/
// std_accuracy.
type CVMethod struct {
	MeanR2       *float64  `json:"mean_r2,omitempty"`
	StdR2        *float64  `json:"std_r2,omitempty"`
	MeanAccuracy *float64  `json:"mean_accuracy,omitempty"`
	StdAccuracy  *float64  `json:"std_accuracy,omitempty"`
	Confidence95 []float64 `json:"confidence_95"`
	AllScores    []float64 `json:"all_scores"`
}

// StatisticalTest is the paired-comparison outcome.
type StatisticalTest struct {
	PValue          *float64 `json:"p_value"`
	IsSignificant   bool     `json:"is_significant"`
	ConfidenceLevel string   `json:"confidence_level"`
}

// CrossValidation is the resampled voting-versus-stacking section.
type CrossValidation struct {
	Voting          CVMethod         `json:"voting"`
	Stacking        CVMethod         `json:"stacking"`
	StatisticalTest *StatisticalTest `json:"statistical_test,omitempty"`
	Inconclusive    bool             `json:"inconclusive,omitempty"`
	ValidFolds      int              `json:"valid_folds"`
}

// EnsembleResult is one combination method's full section of the payload.
// Voting fills voting_strategy and ensemble_performance; stacking fills
// meta_learner, meta_model_performance and the expert attribution fields.
type EnsembleResult struct {
	Algorithm      string `json:"algorithm"`
	VotingStrategy string `json:"voting_strategy,omitempty"`
	MetaLearner    string `json:"meta_learner,omitempty"`

	BaseModels map[string]Metrics `json:"base_models"`

	EnsemblePerformance  *Performance `json:"ensemble_performance,omitempty"`
	MetaModelPerformance *Performance `json:"meta_model_performance,omitempty"`

	MetaWeights map[string]float64 `json:"meta_weights,omitempty"`
	ExpertWins  map[string]int     `json:"expert_wins,omitempty"`
	BestExpert  string             `json:"best_expert,omitempty"`

	FeatureImportance map[string]float64 `json:"feature_importance"`
	TopFeatures       []string           `json:"top_features,omitempty"`

	PredictionsSample []PredictionSample `json:"predictions_sample"`

	FeatureInsights *FeatureInsights `json:"feature_insights,omitempty"`
	CrossValidation *CrossValidation `json:"cross_validation,omitempty"`

	ConfusionCounts [][]int           `json:"confusion_counts,omitempty"`
	Visualizations  map[string]string `json:"visualizations,omitempty"`

	OmittedModels []string `json:"omitted_models,omitempty"`
}
