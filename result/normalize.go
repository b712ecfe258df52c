package result

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/ensemblelab/ensemble/crossval"
	"github.com/ensemblelab/ensemble/dataset"
	"github.com/ensemblelab/ensemble/ensemble"
	"github.com/ensemblelab/ensemble/pkg/errors"
)

// DefaultSampleCap bounds predictions_sample: the payload carries at most
// this many representative test rows.
const DefaultSampleCap = 10

// TopFeatureCount bounds the ranked top_features list.
const TopFeatureCount = 5

// Input collects everything the normalizer folds into the payload.
type Input struct {
	Dataset   *dataset.Dataset
	Split     *dataset.Split
	DatasetID string

	Bank     *ensemble.Bank
	Voting   *ensemble.VotingOutcome
	Stacking *ensemble.StackingOutcome

	Insights   *ensemble.FeatureInsights
	Comparison *crossval.Comparison

	SampleCap int
	Seed      uint64

	// RenderCharts controls the base64 PNG visualization block.
	RenderCharts bool
}

// Normalize converges the internal outcomes to the documented JSON shape.
// Every numeric field is guaranteed finite; a non-finite core value is a
// SchemaError converted here to a fatal TrainingError.
func Normalize(in Input) (*Payload, error) {
	payload, err := normalize(in)
	if err != nil {
		var se *errors.SchemaError
		if errors.As(err, &se) {
			return nil, errors.NewTrainingError("result normalizer", "normalize", err)
		}
		return nil, err
	}
	return payload, nil
}

func normalize(in Input) (*Payload, error) {
	limit := in.SampleCap
	if limit <= 0 {
		limit = DefaultSampleCap
	}

	importance, err := importanceMap(in)
	if err != nil {
		return nil, err
	}
	topFeatures := ensemble.RankFeatures(in.Dataset.FeatureNames, in.Bank.AggregateImportance(), TopFeatureCount)

	baseModels, err := baseModelMetrics(in.Bank)
	if err != nil {
		return nil, err
	}
	bestBase := bestBasePrimary(in.Bank)

	sampleIdx := sampleIndices(in.Split.YTest.Len(), limit, in.Seed)

	votingPerf, err := performance(in.Voting.Metrics, bestBase)
	if err != nil {
		return nil, err
	}
	stackingPerf, err := performance(in.Stacking.Metrics, bestBase)
	if err != nil {
		return nil, err
	}

	votingSamples, err := samples(in.Bank, in.Voting.Combined, in.Voting.PositiveProba, in.Split.YTest, sampleIdx)
	if err != nil {
		return nil, err
	}
	stackingSamples, err := samples(in.Bank, in.Stacking.Combined, in.Stacking.PositiveProba, in.Split.YTest, sampleIdx)
	if err != nil {
		return nil, err
	}

	voting := &EnsembleResult{
		Algorithm:           algorithmName("Voting", in.Bank.Task),
		VotingStrategy:      votingStrategy(in.Bank.Task),
		BaseModels:          baseModels,
		EnsemblePerformance: votingPerf,
		FeatureImportance:   importance,
		TopFeatures:         topFeatures,
		PredictionsSample:   votingSamples,
		ConfusionCounts:     in.Voting.Confusion,
		OmittedModels:       in.Bank.Omitted,
	}

	stacking := &EnsembleResult{
		Algorithm:            algorithmName("Stacking", in.Bank.Task),
		MetaLearner:          in.Stacking.MetaLearnerName,
		BaseModels:           baseModels,
		MetaModelPerformance: stackingPerf,
		MetaWeights:          in.Stacking.MetaWeights,
		ExpertWins:           in.Stacking.ExpertWins,
		BestExpert:           in.Stacking.BestExpert,
		FeatureImportance:    importance,
		TopFeatures:          topFeatures,
		PredictionsSample:    stackingSamples,
		FeatureInsights:      featureInsights(in.Insights),
		CrossValidation:      crossValidation(in.Comparison, in.Bank.Task),
		ConfusionCounts:      in.Stacking.Confusion,
		OmittedModels:        in.Bank.Omitted,
	}

	DeriveApproximateMetrics(votingPerf, voting.PredictionsSample, in.Bank.Task)
	DeriveApproximateMetrics(stackingPerf, stacking.PredictionsSample, in.Bank.Task)

	if in.RenderCharts {
		voting.Visualizations = renderVisualizations(in, in.Voting.Combined, in.Voting.Confusion, "Voting", in.Voting.Metrics.Primary())
		stacking.Visualizations = renderVisualizations(in, in.Stacking.Combined, in.Stacking.Confusion, "Stacking", in.Stacking.Metrics.Primary())
	}

	return &Payload{
		Voting:      voting,
		Stacking:    stacking,
		DatasetInfo: datasetInfo(in),
	}, nil
}

func datasetInfo(in Input) *DatasetInfo {
	return &DatasetInfo{
		DatasetID:        in.DatasetID,
		NSamples:         in.Dataset.NSamples,
		NFeatures:        in.Dataset.NFeatures,
		FeatureNames:     in.Dataset.FeatureNames,
		IsClassification: in.Dataset.IsClassification(),
		NClasses:         in.Dataset.NClasses,
		ClassNames:       in.Dataset.ClassNames,
		TaskType:         string(in.Dataset.Task),
		TargetVariable:   in.Dataset.TargetName,
		TrainSize:        len(in.Split.TrainIndices),
		TestSize:         len(in.Split.TestIndices),
	}
}

func algorithmName(method string, task dataset.TaskType) string {
	if task == dataset.Classification {
		return method + " Classifier"
	}
	return method + " Regressor"
}

func votingStrategy(task dataset.TaskType) string {
	if task == dataset.Classification {
		return "majority"
	}
	return "average"
}

func importanceMap(in Input) (map[string]float64, error) {
	aggregated := in.Bank.AggregateImportance()
	out := make(map[string]float64, len(aggregated))
	for i, v := range aggregated {
		fv, err := requireFinite("feature_importance."+in.Dataset.FeatureNames[i], v)
		if err != nil {
			return nil, err
		}
		out[in.Dataset.FeatureNames[i]] = fv
	}
	return out, nil
}

func baseModelMetrics(bank *ensemble.Bank) (map[string]Metrics, error) {
	out := make(map[string]Metrics, len(bank.Experts))
	for _, e := range bank.Experts {
		m, err := taskMetrics(e.Metrics)
		if err != nil {
			return nil, err
		}
		out[e.Name] = m
	}
	return out, nil
}

func taskMetrics(m ensemble.ModelMetrics) (Metrics, error) {
	if m.Task == dataset.Regression {
		r2, err := requireFinite("r2_score", m.R2)
		if err != nil {
			return Metrics{}, err
		}
		rmse, err := requireFinite("rmse", m.RMSE)
		if err != nil {
			return Metrics{}, err
		}
		mae, err := requireFinite("mae", m.MAE)
		if err != nil {
			return Metrics{}, err
		}
		return Metrics{R2Score: &r2, RMSE: &rmse, MAE: &mae}, nil
	}

	acc, err := requireFinite("accuracy", m.Accuracy)
	if err != nil {
		return Metrics{}, err
	}
	precision, err := requireFinite("precision", m.Precision)
	if err != nil {
		return Metrics{}, err
	}
	recall, err := requireFinite("recall", m.Recall)
	if err != nil {
		return Metrics{}, err
	}
	f1, err := requireFinite("f1_score", m.F1)
	if err != nil {
		return Metrics{}, err
	}
	return Metrics{Accuracy: &acc, Precision: &precision, Recall: &recall, F1Score: &f1}, nil
}

func bestBasePrimary(bank *ensemble.Bank) float64 {
	best := math.Inf(-1)
	for _, e := range bank.Experts {
		if p := e.Metrics.Primary(); p > best {
			best = p
		}
	}
	return best
}

// performance fills the combined model's section, deriving the
// improvement over the best base model as a percentage-point difference
// of the primary metric.
func performance(m ensemble.ModelMetrics, bestBase float64) (*Performance, error) {
	metrics, err := taskMetrics(m)
	if err != nil {
		return nil, err
	}
	raw := (m.Primary() - bestBase) * 100
	if _, err := requireFinite("raw_improvement", raw); err != nil {
		return nil, err
	}
	return &Performance{
		Metrics:                 metrics,
		ImprovementOverBestBase: FormatImprovement(raw),
		RawImprovement:          raw,
	}, nil
}

// FormatImprovement renders the improvement percentage for display.
// Values inside (-0.1, 0.1) collapse to a threshold string.
func FormatImprovement(raw float64) string {
	if math.Abs(raw) < 0.1 {
		if raw >= 0 {
			return "<0.1%"
		}
		return ">-0.1%"
	}
	return fmt.Sprintf("%+.1f%%", raw)
}

// sampleIndices picks up to limit distinct test rows with a seeded PCG,
// so both method sections display the same rows.
func sampleIndices(n, limit int, seed uint64) []int {
	if n <= limit {
		indices := make([]int, n)
		for i := range indices {
			indices[i] = i
		}
		return indices
	}
	rng := rand.New(rand.NewPCG(seed, seed))
	return rng.Perm(n)[:limit]
}

// sampleKey maps an expert key to its payload field name.
func sampleKey(key string, task dataset.TaskType) string {
	switch key {
	case ensemble.KeyLinear:
		if task == dataset.Classification {
			return "logistic_reg"
		}
		return "linear_reg"
	case ensemble.KeyForest:
		return "random_forest"
	default:
		return "xgboost"
	}
}

// samples builds the displayed prediction records. Regression rows carry
// raw values; binary classification rows scale the positive-class
// probabilities to percentages for display.
func samples(bank *ensemble.Bank, combined *mat.VecDense, positiveProba []float64, yTest *mat.VecDense, indices []int) ([]PredictionSample, error) {
	binary := bank.Task == dataset.Classification && positiveProba != nil

	out := make([]PredictionSample, 0, len(indices))
	for _, i := range indices {
		row := PredictionSample{}

		if binary {
			row["actual"] = yTest.AtVec(i) * 100
			row["predicted"] = positiveProba[i] * 100
			for _, e := range bank.Experts {
				key := sampleKey(e.Key, bank.Task)
				if e.TestProba != nil {
					row[key] = e.TestProba.At(i, 1) * 100
				} else {
					row[key] = e.TestPred.AtVec(i) * 100
				}
			}
		} else {
			row["actual"] = yTest.AtVec(i)
			row["predicted"] = combined.AtVec(i)
			for _, e := range bank.Experts {
				row[sampleKey(e.Key, bank.Task)] = e.TestPred.AtVec(i)
			}
		}

		for field, v := range row {
			if _, err := requireFinite("predictions_sample."+field, v); err != nil {
				return nil, err
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// requireFinite passes v through or reports a SchemaError naming the
// offending field.
func requireFinite(field string, v float64) (float64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.NewSchemaError(field, "value is not finite")
	}
	return v, nil
}

func featureInsights(in *ensemble.FeatureInsights) *FeatureInsights {
	if in == nil {
		return nil
	}
	return &FeatureInsights{
		MostImportantFeature: in.MostImportantFeature,
		MedianValue:          in.MedianValue,
		HighScenario: ScenarioInsight{
			Condition:  in.HighScenario.Condition,
			BestExpert: in.HighScenario.BestExpert,
			Wins:       in.HighScenario.Wins,
		},
		LowScenario: ScenarioInsight{
			Condition:  in.LowScenario.Condition,
			BestExpert: in.LowScenario.BestExpert,
			Wins:       in.LowScenario.Wins,
		},
	}
}

func crossValidation(cmp *crossval.Comparison, task dataset.TaskType) *CrossValidation {
	if cmp == nil {
		return nil
	}
	out := &CrossValidation{
		Voting:       cvMethod(cmp.Voting, task),
		Stacking:     cvMethod(cmp.Stacking, task),
		Inconclusive: cmp.Inconclusive,
		ValidFolds:   cmp.ValidFolds,
	}
	if !cmp.Inconclusive {
		p := cmp.PValue
		out.StatisticalTest = &StatisticalTest{
			PValue:          finiteOrNil(p),
			IsSignificant:   cmp.IsSignificant,
			ConfidenceLevel: "95%",
		}
	}
	return out
}

func cvMethod(ms crossval.MethodScores, task dataset.TaskType) CVMethod {
	mean, std := ms.Mean, ms.Std
	method := CVMethod{
		Confidence95: []float64{ms.Confidence95[0], ms.Confidence95[1]},
		AllScores:    ms.Scores,
	}
	if task == dataset.Regression {
		method.MeanR2 = finiteOrNil(mean)
		method.StdR2 = finiteOrNil(std)
	} else {
		method.MeanAccuracy = finiteOrNil(mean)
		method.StdAccuracy = finiteOrNil(std)
	}
	return method
}

// finiteOrNil returns a pointer to v, or nil so the field serializes as
// null when v is non-finite. Optional statistics only; core metrics go
// through requireFinite instead.
func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
