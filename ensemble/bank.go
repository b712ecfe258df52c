// Package ensemble trains the three heterogeneous experts and combines
// them by voting and by stacking.
package ensemble

import (
	"log/slog"

	"gonum.org/v1/gonum/mat"

	"github.com/ensemblelab/ensemble/boosting"
	"github.com/ensemblelab/ensemble/core/model"
	"github.com/ensemblelab/ensemble/dataset"
	"github.com/ensemblelab/ensemble/linear"
	"github.com/ensemblelab/ensemble/metrics"
	"github.com/ensemblelab/ensemble/pkg/errors"
	pkglog "github.com/ensemblelab/ensemble/pkg/log"
	"github.com/ensemblelab/ensemble/tree"
)

// Expert keys used across payload mappings.
const (
	KeyLinear = "linear"
	KeyForest = "rf"
	KeyBoost  = "xgb"
)

// ModelMetrics carries the task-appropriate metrics of one model. The
// Task field is the discriminant: regression fills R2/RMSE/MAE,
// classification fills Accuracy/Precision/Recall/F1.
type ModelMetrics struct {
	Task dataset.TaskType

	R2   float64
	RMSE float64
	MAE  float64

	Accuracy  float64
	Precision float64
	Recall    float64
	F1        float64
}

// Primary returns the headline metric: R2 for regression, accuracy for
// classification.
func (m ModelMetrics) Primary() float64 {
	if m.Task == dataset.Regression {
		return m.R2
	}
	return m.Accuracy
}

// expertSpec names one expert slot and knows how to build a fresh,
// seeded model for it. Fresh instances are needed for the out-of-fold
// stacking fits and the cross-validation refits.
type expertSpec struct {
	key  string
	name string

	newRegressor  func() model.Regressor
	newClassifier func() model.Classifier
}

func expertSpecs(task dataset.TaskType, seed uint64) []expertSpec {
	linearName := "Linear Regression"
	if task == dataset.Classification {
		linearName = "Logistic Regression"
	}
	return []expertSpec{
		{
			key:  KeyLinear,
			name: linearName,
			newRegressor: func() model.Regressor {
				return linear.NewRegression()
			},
			newClassifier: func() model.Classifier {
				return linear.NewLogistic(linear.WithSeed(seed), linear.WithMaxIter(1000))
			},
		},
		{
			key:  KeyForest,
			name: "Random Forest",
			newRegressor: func() model.Regressor {
				return tree.NewForestRegressor(tree.WithTrees(100), tree.WithMaxDepth(10), tree.WithSeed(seed))
			},
			newClassifier: func() model.Classifier {
				return tree.NewForestClassifier(tree.WithTrees(100), tree.WithMaxDepth(10), tree.WithSeed(seed))
			},
		},
		{
			key:  KeyBoost,
			name: "XGBoost",
			newRegressor: func() model.Regressor {
				return boosting.NewGBTRegressor(boosting.WithTrees(100), boosting.WithMaxDepth(5), boosting.WithSeed(seed))
			},
			newClassifier: func() model.Classifier {
				return boosting.NewGBTClassifier(boosting.WithTrees(100), boosting.WithMaxDepth(5), boosting.WithSeed(seed))
			},
		},
	}
}

// ExpertOutcome is one trained expert together with its test-split
// predictions, metrics and importances.
type ExpertOutcome struct {
	Key  string
	Name string

	Regressor  model.Regressor
	Classifier model.Classifier

	TestPred  *mat.VecDense
	TestProba *mat.Dense // classification only, columns ordered as classes

	TrainAccuracy float64 // classification only, used for vote tie-breaks

	Metrics    ModelMetrics
	Importance []float64
}

// Bank holds the surviving experts of one pipeline invocation.
type Bank struct {
	Task    dataset.TaskType
	Experts []*ExpertOutcome
	Omitted []string // display names of experts that failed to fit

	Classes []int // classification only, sorted

	seed  uint64
	specs []expertSpec // specs of the surviving experts, same order
}

// TrainBank fits the three experts on the train split and evaluates each
// on the test split. A single expert failure is downgraded to a warning
// and the ensemble continues with the survivors; fewer than two survivors
// is fatal.
func TrainBank(sp *dataset.Split, task dataset.TaskType, seed uint64) (*Bank, error) {
	bank := &Bank{Task: task, seed: seed}

	for _, spec := range expertSpecs(task, seed) {
		outcome, err := trainExpert(spec, sp, task)
		if err != nil {
			errors.Warn(errors.NewOmittedModelWarning(spec.name, err))
			slog.Warn("base model omitted from ensemble",
				slog.String("model", spec.name), pkglog.ErrAttr(err))
			bank.Omitted = append(bank.Omitted, spec.name)
			continue
		}
		bank.Experts = append(bank.Experts, outcome)
		bank.specs = append(bank.specs, spec)
	}

	if len(bank.Experts) < 2 {
		return nil, errors.NewTrainingError("ensemble", "fit",
			errors.Newf("only %d of 3 base models trained successfully", len(bank.Experts)))
	}

	if task == dataset.Classification {
		bank.Classes = bank.Experts[0].Classifier.Classes()
	}
	return bank, nil
}

func trainExpert(spec expertSpec, sp *dataset.Split, task dataset.TaskType) (*ExpertOutcome, error) {
	outcome := &ExpertOutcome{Key: spec.key, Name: spec.name}

	if task == dataset.Regression {
		reg := spec.newRegressor()
		if err := reg.Fit(sp.XTrain, asColumn(sp.YTrain)); err != nil {
			return nil, err
		}
		pred, err := reg.Predict(sp.XTest)
		if err != nil {
			return nil, err
		}
		outcome.Regressor = reg
		outcome.TestPred = columnToVec(pred)

		m, err := regressionMetrics(sp.YTest, outcome.TestPred)
		if err != nil {
			return nil, err
		}
		outcome.Metrics = m
		outcome.Importance = expertImportance(reg, spec.name, featureCount(sp))
		return outcome, nil
	}

	clf := spec.newClassifier()
	if err := clf.Fit(sp.XTrain, asColumn(sp.YTrain)); err != nil {
		return nil, err
	}
	pred, err := clf.Predict(sp.XTest)
	if err != nil {
		return nil, err
	}
	proba, err := clf.PredictProba(sp.XTest)
	if err != nil {
		return nil, err
	}
	trainPred, err := clf.Predict(sp.XTrain)
	if err != nil {
		return nil, err
	}

	outcome.Classifier = clf
	outcome.TestPred = columnToVec(pred)
	outcome.TestProba = mat.DenseCopyOf(proba)

	trainAcc, err := metrics.Accuracy(sp.YTrain, columnToVec(trainPred))
	if err != nil {
		return nil, err
	}
	outcome.TrainAccuracy = trainAcc

	m, err := classificationMetrics(sp.YTest, outcome.TestPred)
	if err != nil {
		return nil, err
	}
	outcome.Metrics = m
	outcome.Importance = expertImportance(clf, spec.name, featureCount(sp))
	return outcome, nil
}

// expertImportance extracts a model's normalized importance vector,
// zero-filling with a warning when extraction fails.
func expertImportance(m model.FeatureImportancer, name string, nFeatures int) []float64 {
	importance, err := m.FeatureImportances()
	if err != nil {
		errors.Warn(errors.NewDegradedImportanceWarning(name, err.Error()))
		slog.Warn("feature importance extraction failed, zero-filling",
			slog.String("model", name), pkglog.ErrAttr(err))
		return make([]float64, nFeatures)
	}

	allZero := true
	for _, v := range importance {
		if v != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		errors.Warn(errors.NewDegradedImportanceWarning(name, "degenerate fit produced no stable importances"))
	}
	return importance
}

// AggregateImportance averages the surviving experts' normalized
// importance vectors and renormalizes, giving one attribution over the
// original features that spans the heterogeneous model types.
func (b *Bank) AggregateImportance() []float64 {
	if len(b.Experts) == 0 {
		return nil
	}
	n := len(b.Experts[0].Importance)
	aggregated := make([]float64, n)
	for _, e := range b.Experts {
		for j, v := range e.Importance {
			aggregated[j] += v
		}
	}
	total := 0.0
	for _, v := range aggregated {
		total += v
	}
	if total == 0 {
		return aggregated
	}
	for j := range aggregated {
		aggregated[j] /= total
	}
	return aggregated
}

// BestTrainAccuracyExpert returns the index of the expert with the
// highest train-split accuracy. Classification only.
func (b *Bank) BestTrainAccuracyExpert() int {
	best := 0
	for i, e := range b.Experts {
		if e.TrainAccuracy > b.Experts[best].TrainAccuracy {
			best = i
		}
	}
	return best
}

func regressionMetrics(yTrue, yPred *mat.VecDense) (ModelMetrics, error) {
	r2, err := metrics.R2Score(yTrue, yPred)
	if err != nil {
		return ModelMetrics{}, err
	}
	rmse, err := metrics.RMSE(yTrue, yPred)
	if err != nil {
		return ModelMetrics{}, err
	}
	mae, err := metrics.MAE(yTrue, yPred)
	if err != nil {
		return ModelMetrics{}, err
	}
	return ModelMetrics{Task: dataset.Regression, R2: r2, RMSE: rmse, MAE: mae}, nil
}

func classificationMetrics(yTrue, yPred *mat.VecDense) (ModelMetrics, error) {
	acc, err := metrics.Accuracy(yTrue, yPred)
	if err != nil {
		return ModelMetrics{}, err
	}
	report, err := metrics.PrecisionRecallF1(yTrue, yPred)
	if err != nil {
		return ModelMetrics{}, err
	}
	return ModelMetrics{
		Task:      dataset.Classification,
		Accuracy:  acc,
		Precision: report.Precision,
		Recall:    report.Recall,
		F1:        report.F1,
	}, nil
}

func featureCount(sp *dataset.Split) int {
	_, cols := sp.XTrain.Dims()
	return cols
}

func asColumn(v *mat.VecDense) *mat.Dense {
	out := mat.NewDense(v.Len(), 1, nil)
	for i := 0; i < v.Len(); i++ {
		out.Set(i, 0, v.AtVec(i))
	}
	return out
}

func columnToVec(m mat.Matrix) *mat.VecDense {
	rows, _ := m.Dims()
	out := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		out.SetVec(i, m.At(i, 0))
	}
	return out
}
