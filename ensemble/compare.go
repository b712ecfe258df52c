package ensemble

import (
	"context"

	"github.com/ensemblelab/ensemble/crossval"
	"github.com/ensemblelab/ensemble/dataset"
)

// CompareMethods runs the 5-fold cross-validated comparison of voting
// versus stacking on the train split. Each fold trains a fresh bank and
// meta-learner; the primary metric (R2 or accuracy) is collected per
// method per fold and the two score vectors go through a paired t-test.
func CompareMethods(ctx context.Context, sp *dataset.Split, task dataset.TaskType, metaLearner string, folds int, seed uint64) (*crossval.Comparison, error) {
	nTrain, _ := sp.XTrain.Dims()

	var (
		kfolds []crossval.Fold
		err    error
	)
	if task == dataset.Classification {
		labels := make([]int, nTrain)
		for i := 0; i < nTrain; i++ {
			labels[i] = int(sp.YTrain.AtVec(i))
		}
		kfolds, err = crossval.NewStratifiedKFold(folds, true, seed).Split(labels)
	} else {
		kfolds, err = crossval.NewKFold(folds, true, seed).Split(nTrain)
	}
	if err != nil {
		return nil, err
	}

	eval := func(ctx context.Context, fold crossval.Fold) (float64, float64, error) {
		foldSplit := &dataset.Split{
			XTrain:       dataset.SelectRows(sp.XTrain, fold.Train),
			XTest:        dataset.SelectRows(sp.XTrain, fold.Test),
			YTrain:       dataset.SelectVec(sp.YTrain, fold.Train),
			YTest:        dataset.SelectVec(sp.YTrain, fold.Test),
			TrainIndices: fold.Train,
			TestIndices:  fold.Test,
		}

		bank, err := TrainBank(foldSplit, task, seed)
		if err != nil {
			return 0, 0, err
		}
		voting, err := Vote(bank, foldSplit.YTest)
		if err != nil {
			return 0, 0, err
		}
		stacking, err := Stack(bank, foldSplit, metaLearner, seed)
		if err != nil {
			return 0, 0, err
		}
		return voting.Metrics.Primary(), stacking.Metrics.Primary(), nil
	}

	return crossval.Compare(ctx, kfolds, eval)
}
