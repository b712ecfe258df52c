package ensemble

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/ensemblelab/ensemble/boosting"
	"github.com/ensemblelab/ensemble/core/model"
	"github.com/ensemblelab/ensemble/crossval"
	"github.com/ensemblelab/ensemble/dataset"
	"github.com/ensemblelab/ensemble/linear"
	"github.com/ensemblelab/ensemble/pkg/errors"
	"github.com/ensemblelab/ensemble/tree"
)

// Meta-learner identifiers accepted by Stack.
const (
	MetaLinear = "linear"
	MetaForest = "random_forest"
	MetaBoost  = "xgboost"
)

// stackingFolds is the number of folds used to produce out-of-fold base
// predictions for the meta-learner's training features.
const stackingFolds = 5

// StackingOutcome is the result of combining the experts through a
// learned second-stage model.
type StackingOutcome struct {
	Combined *mat.VecDense

	// PositiveProba is the meta-model's positive-class probability per
	// test row. Binary classification only; nil otherwise.
	PositiveProba []float64

	Metrics         ModelMetrics
	MetaLearnerName string

	// MetaWeights maps expert key to its normalized absolute weight in
	// the meta-model. Linear meta-learners only; nil otherwise.
	MetaWeights map[string]float64

	ExpertWins map[string]int
	BestExpert string

	Confusion [][]int // classification only
}

// Stack trains the selected meta-learner on out-of-fold base predictions
// and evaluates the stacked model on the untouched test split. The base
// experts' own test predictions feed the meta-model's test features, so
// no test row ever influences training.
func Stack(bank *Bank, sp *dataset.Split, metaLearner string, seed uint64) (*StackingOutcome, error) {
	metaTrain, err := outOfFoldFeatures(bank, sp, seed)
	if err != nil {
		return nil, err
	}
	metaTest := testFeatures(bank)

	outcome := &StackingOutcome{MetaLearnerName: metaLearnerName(metaLearner, bank.Task)}

	if bank.Task == dataset.Regression {
		meta, err := newMetaRegressor(metaLearner, seed)
		if err != nil {
			return nil, err
		}
		if err := meta.Fit(metaTrain, asColumn(sp.YTrain)); err != nil {
			return nil, errors.NewTrainingError(outcome.MetaLearnerName, "meta-fit", err)
		}
		pred, err := meta.Predict(metaTest)
		if err != nil {
			return nil, errors.NewTrainingError(outcome.MetaLearnerName, "meta-predict", err)
		}
		outcome.Combined = columnToVec(pred)

		m, err := regressionMetrics(sp.YTest, outcome.Combined)
		if err != nil {
			return nil, err
		}
		outcome.Metrics = m
		if metaLearner == MetaLinear {
			outcome.MetaWeights = metaWeights(meta, bank)
		}
	} else {
		meta, err := newMetaClassifier(metaLearner, seed)
		if err != nil {
			return nil, err
		}
		if err := meta.Fit(metaTrain, asColumn(sp.YTrain)); err != nil {
			return nil, errors.NewTrainingError(outcome.MetaLearnerName, "meta-fit", err)
		}
		pred, err := meta.Predict(metaTest)
		if err != nil {
			return nil, errors.NewTrainingError(outcome.MetaLearnerName, "meta-predict", err)
		}
		outcome.Combined = columnToVec(pred)

		m, err := classificationMetrics(sp.YTest, outcome.Combined)
		if err != nil {
			return nil, err
		}
		outcome.Metrics = m
		outcome.Confusion = confusionCounts(sp.YTest, outcome.Combined, bank.Classes)
		if metaLearner == MetaLinear {
			outcome.MetaWeights = metaWeights(meta, bank)
		}
		if len(bank.Classes) == 2 {
			proba, err := meta.PredictProba(metaTest)
			if err == nil {
				rows, _ := proba.Dims()
				outcome.PositiveProba = make([]float64, rows)
				for i := 0; i < rows; i++ {
					outcome.PositiveProba[i] = proba.At(i, 1)
				}
			}
		}
	}

	outcome.ExpertWins = expertWins(bank, sp.YTest)
	outcome.BestExpert = bestExpertName(bank, outcome.ExpertWins)
	return outcome, nil
}

// outOfFoldFeatures builds the meta-learner's training matrix: for every
// train row, the predictions of fresh base models fitted on the other
// folds. No expert ever predicts a row it was trained on.
func outOfFoldFeatures(bank *Bank, sp *dataset.Split, seed uint64) (*mat.Dense, error) {
	nTrain, _ := sp.XTrain.Dims()
	width := featureWidth(bank)
	out := mat.NewDense(nTrain, width, nil)

	// Stratified folds for classification keep every class present in
	// every fold-train subset, so fold models see the full class set.
	var folds []crossval.Fold
	var err error
	if bank.Task == dataset.Classification {
		labels := make([]int, nTrain)
		for i := range labels {
			labels[i] = int(sp.YTrain.AtVec(i))
		}
		folds, err = crossval.NewStratifiedKFold(stackingFolds, true, seed).Split(labels)
	} else {
		folds, err = crossval.NewKFold(stackingFolds, true, seed).Split(nTrain)
	}
	if err != nil {
		return nil, err
	}

	for _, fold := range folds {
		foldX := dataset.SelectRows(sp.XTrain, fold.Train)
		foldY := dataset.SelectVec(sp.YTrain, fold.Train)
		holdX := dataset.SelectRows(sp.XTrain, fold.Test)

		for e, spec := range bank.specs {
			values, err := foldPredictions(spec, bank.Task, foldX, foldY, holdX, bank.Classes)
			if err != nil {
				return nil, errors.NewTrainingError(spec.name, "out-of-fold fit", err)
			}
			for i, row := range fold.Test {
				for c, v := range values[i] {
					out.Set(row, expertColumn(bank, e, c), v)
				}
			}
		}
	}
	return out, nil
}

// foldPredictions fits a fresh expert on the fold-train rows and returns
// its per-row meta features for the held-out rows. Probability columns
// follow bankClasses; classes the fold model never saw stay at zero.
func foldPredictions(spec expertSpec, task dataset.TaskType, foldX *mat.Dense, foldY *mat.VecDense, holdX *mat.Dense, bankClasses []int) ([][]float64, error) {
	holdRows, _ := holdX.Dims()
	values := make([][]float64, holdRows)

	if task == dataset.Regression {
		reg := spec.newRegressor()
		if err := reg.Fit(foldX, asColumn(foldY)); err != nil {
			return nil, err
		}
		pred, err := reg.Predict(holdX)
		if err != nil {
			return nil, err
		}
		for i := 0; i < holdRows; i++ {
			values[i] = []float64{pred.At(i, 0)}
		}
		return values, nil
	}

	clf := spec.newClassifier()
	if err := clf.Fit(foldX, asColumn(foldY)); err != nil {
		return nil, err
	}
	proba, err := clf.PredictProba(holdX)
	if err != nil {
		return nil, err
	}

	// The fold model's proba columns follow its own class set, which can
	// be a subset of bankClasses. Align through the labels, not position.
	foldColumn := make(map[int]int)
	for c, class := range clf.Classes() {
		foldColumn[class] = c
	}

	for i := 0; i < holdRows; i++ {
		row := make([]float64, len(bankClasses))
		for b, class := range bankClasses {
			if c, ok := foldColumn[class]; ok {
				row[b] = proba.At(i, c)
			}
		}
		if len(bankClasses) == 2 {
			values[i] = []float64{row[1]}
			continue
		}
		values[i] = row
	}
	return values, nil
}

// testFeatures builds the meta-learner's evaluation matrix from the fully
// fitted bank experts' test-split outputs.
func testFeatures(bank *Bank) *mat.Dense {
	nTest := bank.Experts[0].TestPred.Len()
	width := featureWidth(bank)
	out := mat.NewDense(nTest, width, nil)

	for e, expert := range bank.Experts {
		for i := 0; i < nTest; i++ {
			if bank.Task == dataset.Regression {
				out.Set(i, expertColumn(bank, e, 0), expert.TestPred.AtVec(i))
				continue
			}
			if len(bank.Classes) == 2 {
				out.Set(i, expertColumn(bank, e, 0), expert.TestProba.At(i, 1))
				continue
			}
			for c := range bank.Classes {
				out.Set(i, expertColumn(bank, e, c), expert.TestProba.At(i, c))
			}
		}
	}
	return out
}

// featureWidth is the meta-feature count: one column per expert for
// regression and binary classification, one per expert-class pair for
// multiclass.
func featureWidth(bank *Bank) int {
	if bank.Task == dataset.Regression || len(bank.Classes) == 2 {
		return len(bank.Experts)
	}
	return len(bank.Experts) * len(bank.Classes)
}

func expertColumn(bank *Bank, expert, class int) int {
	if bank.Task == dataset.Regression || len(bank.Classes) == 2 {
		return expert
	}
	return expert*len(bank.Classes) + class
}

func metaLearnerName(metaLearner string, task dataset.TaskType) string {
	switch metaLearner {
	case MetaForest:
		return "Random Forest"
	case MetaBoost:
		return "XGBoost"
	default:
		if task == dataset.Classification {
			return "Logistic Regression"
		}
		return "Linear Regression"
	}
}

func newMetaRegressor(metaLearner string, seed uint64) (model.Regressor, error) {
	switch metaLearner {
	case MetaLinear, "":
		return linear.NewRegression(), nil
	case MetaForest:
		return tree.NewForestRegressor(tree.WithTrees(50), tree.WithMaxDepth(5), tree.WithSeed(seed)), nil
	case MetaBoost:
		return boosting.NewGBTRegressor(boosting.WithTrees(50), boosting.WithMaxDepth(3), boosting.WithSeed(seed)), nil
	default:
		return nil, errors.NewValueError("Stack", "unknown meta-learner: "+metaLearner)
	}
}

func newMetaClassifier(metaLearner string, seed uint64) (model.Classifier, error) {
	switch metaLearner {
	case MetaLinear, "":
		return linear.NewLogistic(linear.WithSeed(seed), linear.WithMaxIter(1000)), nil
	case MetaForest:
		return tree.NewForestClassifier(tree.WithTrees(50), tree.WithSeed(seed)), nil
	case MetaBoost:
		return boosting.NewGBTClassifier(boosting.WithTrees(200), boosting.WithMaxDepth(4), boosting.WithSeed(seed)), nil
	default:
		return nil, errors.NewValueError("Stack", "unknown meta-learner: "+metaLearner)
	}
}

// metaWeights maps each expert to its share of the linear meta-model's
// absolute weights. Multiclass meta features sum per expert block.
func metaWeights(meta model.FeatureImportancer, bank *Bank) map[string]float64 {
	importance, err := meta.FeatureImportances()
	if err != nil {
		return nil
	}
	weights := make(map[string]float64, len(bank.Experts))
	perExpert := len(importance) / len(bank.Experts)
	if perExpert == 0 {
		return nil
	}
	for e, expert := range bank.Experts {
		sum := 0.0
		for c := 0; c < perExpert; c++ {
			sum += importance[e*perExpert+c]
		}
		weights[expert.Key] = sum
	}
	return weights
}

// expertWins credits, for every test row, the expert whose raw prediction
// came closest to the actual value. Ties favor the earlier expert in bank
// order, so the linear model wins exact ties against the tree ensembles.
func expertWins(bank *Bank, yTest *mat.VecDense) map[string]int {
	wins := make(map[string]int, len(bank.Experts))
	for _, e := range bank.Experts {
		wins[e.Key] = 0
	}

	n := yTest.Len()
	for i := 0; i < n; i++ {
		winner := 0
		for e := 1; e < len(bank.Experts); e++ {
			if expertError(bank, e, i, yTest) < expertError(bank, winner, i, yTest) {
				winner = e
			}
		}
		wins[bank.Experts[winner].Key]++
	}
	return wins
}

// expertError is one expert's error on one test row: absolute residual
// for regression, probability shortfall on the actual class for
// classification.
func expertError(bank *Bank, expert, row int, yTest *mat.VecDense) float64 {
	e := bank.Experts[expert]
	if bank.Task == dataset.Regression {
		return math.Abs(e.TestPred.AtVec(row) - yTest.AtVec(row))
	}

	actual := int(yTest.AtVec(row))
	for c, class := range bank.Classes {
		if class == actual {
			return 1 - e.TestProba.At(row, c)
		}
	}
	return 1
}

// bestExpertName returns the display name of the expert with the most
// wins, earlier experts winning ties.
func bestExpertName(bank *Bank, wins map[string]int) string {
	best := bank.Experts[0]
	for _, e := range bank.Experts[1:] {
		if wins[e.Key] > wins[best.Key] {
			best = e
		}
	}
	return best.Name
}
