package result

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/ensemblelab/ensemble/crossval"
	"github.com/ensemblelab/ensemble/dataset"
	"github.com/ensemblelab/ensemble/ensemble"
	"github.com/ensemblelab/ensemble/pkg/errors"
)

func regressionInput() Input {
	experts := []*ensemble.ExpertOutcome{
		{
			Key: ensemble.KeyLinear, Name: "Linear Regression",
			TestPred:   mat.NewVecDense(4, []float64{1, 2, 3, 4}),
			Metrics:    ensemble.ModelMetrics{Task: dataset.Regression, R2: 0.80, RMSE: 2.0, MAE: 1.5},
			Importance: []float64{0.5, 0.3, 0.2},
		},
		{
			Key: ensemble.KeyForest, Name: "Random Forest",
			TestPred:   mat.NewVecDense(4, []float64{1.1, 2.1, 3.1, 4.1}),
			Metrics:    ensemble.ModelMetrics{Task: dataset.Regression, R2: 0.85, RMSE: 1.8, MAE: 1.2},
			Importance: []float64{0.4, 0.4, 0.2},
		},
		{
			Key: ensemble.KeyBoost, Name: "XGBoost",
			TestPred:   mat.NewVecDense(4, []float64{0.9, 1.9, 2.9, 3.9}),
			Metrics:    ensemble.ModelMetrics{Task: dataset.Regression, R2: 0.90, RMSE: 1.5, MAE: 1.0},
			Importance: []float64{0.3, 0.5, 0.2},
		},
	}

	trainIdx := make([]int, 16)
	for i := range trainIdx {
		trainIdx[i] = i
	}

	pv := 0.03
	return Input{
		Dataset: &dataset.Dataset{
			FeatureNames: []string{"a", "b", "c"},
			TargetName:   "strength",
			Task:         dataset.Regression,
			NSamples:     20,
			NFeatures:    3,
		},
		Split: &dataset.Split{
			YTest:        mat.NewVecDense(4, []float64{1, 2, 3, 4}),
			TrainIndices: trainIdx,
			TestIndices:  []int{16, 17, 18, 19},
		},
		DatasetID: "concrete",
		Bank:      &ensemble.Bank{Task: dataset.Regression, Experts: experts},
		Voting: &ensemble.VotingOutcome{
			Combined: mat.NewVecDense(4, []float64{1.0, 2.0, 3.0, 4.0}),
			Metrics:  ensemble.ModelMetrics{Task: dataset.Regression, R2: 0.92, RMSE: 1.2, MAE: 0.9},
		},
		Stacking: &ensemble.StackingOutcome{
			Combined:        mat.NewVecDense(4, []float64{1.0, 2.0, 3.0, 4.0}),
			Metrics:         ensemble.ModelMetrics{Task: dataset.Regression, R2: 0.95, RMSE: 1.0, MAE: 0.8},
			MetaLearnerName: "Linear Regression",
			MetaWeights:     map[string]float64{"linear": 0.2, "rf": 0.3, "xgb": 0.5},
			ExpertWins:      map[string]int{"linear": 1, "rf": 1, "xgb": 2},
			BestExpert:      "xgb",
		},
		Comparison: &crossval.Comparison{
			Voting:        crossval.MethodScores{Mean: 0.88, Std: 0.02, Confidence95: [2]float64{0.84, 0.92}, Scores: []float64{0.86, 0.88, 0.90, 0.87, 0.89}},
			Stacking:      crossval.MethodScores{Mean: 0.91, Std: 0.02, Confidence95: [2]float64{0.87, 0.95}, Scores: []float64{0.90, 0.91, 0.92, 0.90, 0.92}},
			PValue:        pv,
			IsSignificant: true,
			ValidFolds:    5,
		},
		Seed: 42,
	}
}

func TestNormalizePropagatesOmittedModels(t *testing.T) {
	in := regressionInput()
	in.Bank.Omitted = []string{"Linear Regression"}

	payload, err := Normalize(in)
	require.NoError(t, err)

	assert.Equal(t, []string{"Linear Regression"}, payload.Voting.OmittedModels)
	assert.Equal(t, []string{"Linear Regression"}, payload.Stacking.OmittedModels)
}

func TestNormalizeRegression(t *testing.T) {
	payload, err := Normalize(regressionInput())
	require.NoError(t, err)

	voting, stacking := payload.Voting, payload.Stacking
	require.NotNil(t, voting)
	require.NotNil(t, stacking)

	assert.Equal(t, "Voting Regressor", voting.Algorithm)
	assert.Equal(t, "average", voting.VotingStrategy)
	assert.Equal(t, "Stacking Regressor", stacking.Algorithm)
	assert.Equal(t, "Linear Regression", stacking.MetaLearner)

	require.Len(t, voting.BaseModels, 3)
	lr := voting.BaseModels["Linear Regression"]
	require.NotNil(t, lr.R2Score)
	assert.InDelta(t, 0.80, *lr.R2Score, 1e-12)
	assert.Nil(t, lr.Accuracy)

	// Improvement is measured in percentage points over the best base R2.
	require.NotNil(t, voting.EnsemblePerformance)
	assert.InDelta(t, 2.0, voting.EnsemblePerformance.RawImprovement, 1e-9)
	assert.Equal(t, "+2.0%", voting.EnsemblePerformance.ImprovementOverBestBase)
	require.NotNil(t, stacking.MetaModelPerformance)
	assert.InDelta(t, 5.0, stacking.MetaModelPerformance.RawImprovement, 1e-9)
	assert.Equal(t, "+5.0%", stacking.MetaModelPerformance.ImprovementOverBestBase)
	assert.False(t, voting.EnsemblePerformance.Approximate)

	// Four test rows fit under the cap, so all appear in order.
	require.Len(t, voting.PredictionsSample, 4)
	first := voting.PredictionsSample[0]
	for _, key := range []string{"actual", "predicted", "linear_reg", "random_forest", "xgboost"} {
		assert.Contains(t, first, key)
	}
	assert.Equal(t, 1.0, first["actual"])
	assert.Equal(t, 1.1, first["random_forest"])

	// Aggregated importance is the renormalized expert mean; stable order
	// breaks the a/b tie by column position.
	assert.InDelta(t, 0.4, voting.FeatureImportance["a"], 1e-12)
	assert.InDelta(t, 0.2, voting.FeatureImportance["c"], 1e-12)
	assert.Equal(t, []string{"a", "b", "c"}, voting.TopFeatures)

	require.NotNil(t, stacking.CrossValidation)
	cv := stacking.CrossValidation
	require.NotNil(t, cv.Voting.MeanR2)
	assert.InDelta(t, 0.88, *cv.Voting.MeanR2, 1e-12)
	assert.Nil(t, cv.Voting.MeanAccuracy)
	require.NotNil(t, cv.StatisticalTest)
	require.NotNil(t, cv.StatisticalTest.PValue)
	assert.InDelta(t, 0.03, *cv.StatisticalTest.PValue, 1e-12)
	assert.True(t, cv.StatisticalTest.IsSignificant)
	assert.Equal(t, "95%", cv.StatisticalTest.ConfidenceLevel)
	assert.Nil(t, voting.CrossValidation, "cross-validation reports only on the stacking section")

	info := payload.DatasetInfo
	require.NotNil(t, info)
	assert.Equal(t, "concrete", info.DatasetID)
	assert.Equal(t, "strength", info.TargetVariable)
	assert.False(t, info.IsClassification)
	assert.Equal(t, 16, info.TrainSize)
	assert.Equal(t, 4, info.TestSize)
}

func TestNormalizeClassificationSamples(t *testing.T) {
	in := regressionInput()
	in.Dataset.Task = dataset.Classification
	in.Dataset.NClasses = 2
	in.Dataset.ClassNames = []string{"no", "yes"}
	in.Bank.Task = dataset.Classification

	proba := mat.NewDense(4, 2, []float64{
		0.9, 0.1,
		0.2, 0.8,
		0.6, 0.4,
		0.3, 0.7,
	})
	for _, e := range in.Bank.Experts {
		e.Metrics = ensemble.ModelMetrics{Task: dataset.Classification, Accuracy: 0.8, Precision: 0.8, Recall: 0.8, F1: 0.8}
		e.TestProba = proba
	}
	in.Bank.Experts[0].Name = "Logistic Regression"
	in.Split.YTest = mat.NewVecDense(4, []float64{0, 1, 0, 1})
	in.Voting.Metrics = ensemble.ModelMetrics{Task: dataset.Classification, Accuracy: 0.85, Precision: 0.85, Recall: 0.85, F1: 0.85}
	in.Voting.PositiveProba = []float64{0.1, 0.8, 0.4, 0.7}
	in.Voting.Confusion = [][]int{{2, 0}, {0, 2}}
	in.Stacking.Metrics = in.Voting.Metrics
	in.Stacking.PositiveProba = in.Voting.PositiveProba

	payload, err := Normalize(in)
	require.NoError(t, err)

	assert.Equal(t, "Voting Classifier", payload.Voting.Algorithm)
	assert.Equal(t, "majority", payload.Voting.VotingStrategy)
	assert.Equal(t, [][]int{{2, 0}, {0, 2}}, payload.Voting.ConfusionCounts)

	lr := payload.Voting.BaseModels["Logistic Regression"]
	require.NotNil(t, lr.Accuracy)
	assert.Nil(t, lr.R2Score)

	// Binary rows display positive-class percentages.
	require.Len(t, payload.Voting.PredictionsSample, 4)
	second := payload.Voting.PredictionsSample[1]
	assert.Equal(t, 100.0, second["actual"])
	assert.InDelta(t, 80.0, second["predicted"], 1e-12)
	assert.InDelta(t, 80.0, second["logistic_reg"], 1e-12)

	cv := payload.Stacking.CrossValidation
	require.NotNil(t, cv)
	require.NotNil(t, cv.Voting.MeanAccuracy)
	assert.Nil(t, cv.Voting.MeanR2)
}

func TestNormalizeRejectsNonFiniteMetric(t *testing.T) {
	in := regressionInput()
	in.Bank.Experts[1].Metrics.R2 = math.NaN()

	_, err := Normalize(in)
	require.Error(t, err)

	var te *errors.TrainingError
	assert.True(t, errors.As(err, &te), "non-finite core value escalates to a training error")
}

func TestNormalizeInconclusiveCVOmitsTest(t *testing.T) {
	in := regressionInput()
	in.Comparison.Inconclusive = true
	in.Comparison.ValidFolds = 1

	payload, err := Normalize(in)
	require.NoError(t, err)

	cv := payload.Stacking.CrossValidation
	require.NotNil(t, cv)
	assert.True(t, cv.Inconclusive)
	assert.Equal(t, 1, cv.ValidFolds)
	assert.Nil(t, cv.StatisticalTest)
}

func TestFormatImprovement(t *testing.T) {
	tests := []struct {
		raw  float64
		want string
	}{
		{raw: 0, want: "<0.1%"},
		{raw: 0.05, want: "<0.1%"},
		{raw: -0.05, want: ">-0.1%"},
		{raw: 0.1, want: "+0.1%"},
		{raw: 2.34, want: "+2.3%"},
		{raw: -1.27, want: "-1.3%"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatImprovement(tt.raw), "raw=%v", tt.raw)
	}
}

func TestSampleIndices(t *testing.T) {
	all := sampleIndices(7, 10, 42)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6}, all)

	capped := sampleIndices(100, 10, 42)
	require.Len(t, capped, 10)
	seen := map[int]bool{}
	for _, idx := range capped {
		assert.GreaterOrEqual(t, idx, 0)
		assert.Less(t, idx, 100)
		assert.False(t, seen[idx], "index %d repeated", idx)
		seen[idx] = true
	}

	assert.Equal(t, capped, sampleIndices(100, 10, 42), "same seed, same rows")
}

func TestDeriveApproximateMetrics(t *testing.T) {
	r2 := 0.9
	perf := &Performance{Metrics: Metrics{R2Score: &r2}}
	samples := []PredictionSample{
		{"actual": 1, "predicted": 2},
		{"actual": 3, "predicted": 3},
	}

	DeriveApproximateMetrics(perf, samples, dataset.Regression)

	require.NotNil(t, perf.RMSE)
	require.NotNil(t, perf.MAE)
	assert.InDelta(t, math.Sqrt(0.5), *perf.RMSE, 1e-12)
	assert.InDelta(t, 0.5, *perf.MAE, 1e-12)
	assert.True(t, perf.Approximate)
}

func TestDeriveApproximateMetricsKeepsFullSetValues(t *testing.T) {
	r2, rmse, mae := 0.9, 1.5, 1.0
	perf := &Performance{Metrics: Metrics{R2Score: &r2, RMSE: &rmse, MAE: &mae}}

	DeriveApproximateMetrics(perf, []PredictionSample{{"actual": 0, "predicted": 10}}, dataset.Regression)

	assert.Equal(t, 1.5, *perf.RMSE)
	assert.Equal(t, 1.0, *perf.MAE)
	assert.False(t, perf.Approximate)
}
