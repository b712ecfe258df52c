// Package pipeline orchestrates a full ensemble analysis run: load and
// split the dataset, train the expert bank, combine by voting and by
// stacking, compare the two under cross-validation, and normalize
// everything into the result payload.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/ensemblelab/ensemble/crossval"
	"github.com/ensemblelab/ensemble/dataset"
	"github.com/ensemblelab/ensemble/ensemble"
	"github.com/ensemblelab/ensemble/pkg/errors"
	"github.com/ensemblelab/ensemble/result"
)

// Config selects the dataset and tuning knobs of one run. Zero values
// fall back to the documented defaults.
type Config struct {
	DatasetPath  string
	DatasetID    string // inferred from the file name when empty
	TargetColumn string // auto-detected when empty

	MetaLearner  string  // linear, random_forest or xgboost
	TestFraction float64 // default 0.3
	Seed         uint64  // default 42
	SampleCap    int     // default 10
	Folds        int     // default 5

	RenderCharts bool
}

func (c Config) withDefaults() Config {
	if c.MetaLearner == "" {
		c.MetaLearner = ensemble.MetaLinear
	}
	if c.TestFraction == 0 {
		c.TestFraction = 0.3
	}
	if c.Seed == 0 {
		c.Seed = 42
	}
	if c.SampleCap == 0 {
		c.SampleCap = result.DefaultSampleCap
	}
	if c.Folds == 0 {
		c.Folds = crossval.DefaultFolds
	}
	return c
}

// Run executes the pipeline end to end and returns the normalized
// payload. The context is checked between stages so a cancelled run
// stops at the next boundary.
func Run(ctx context.Context, cfg Config) (*result.Payload, error) {
	cfg = cfg.withDefaults()

	detectedID, detectedTarget := dataset.DetectDatasetID(cfg.DatasetPath)
	if cfg.DatasetID == "" {
		cfg.DatasetID = detectedID
	}
	if cfg.TargetColumn == "" {
		cfg.TargetColumn = detectedTarget
	}

	slog.Info("loading dataset",
		slog.String("path", cfg.DatasetPath),
		slog.String("dataset_id", cfg.DatasetID))
	ds, err := dataset.Load(cfg.DatasetPath, cfg.TargetColumn)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	sp, err := dataset.TrainTestSplit(ds, cfg.TestFraction, cfg.Seed)
	if err != nil {
		return nil, err
	}
	slog.Info("dataset split",
		slog.String("task", string(ds.Task)),
		slog.Int("train", len(sp.TrainIndices)),
		slog.Int("test", len(sp.TestIndices)))

	bank, err := ensemble.TrainBank(sp, ds.Task, cfg.Seed)
	if err != nil {
		return nil, err
	}
	slog.Info("base models trained",
		slog.Int("experts", len(bank.Experts)),
		slog.Int("omitted", len(bank.Omitted)))
	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	voting, err := ensemble.Vote(bank, sp.YTest)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	stacking, err := ensemble.Stack(bank, sp, cfg.MetaLearner, cfg.Seed)
	if err != nil {
		return nil, err
	}
	slog.Info("ensembles combined",
		slog.String("meta_learner", stacking.MetaLearnerName),
		slog.String("best_expert", stacking.BestExpert))
	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	insights := ensemble.DeriveInsights(bank, sp.XTest, sp.YTest, ds.FeatureNames)

	comparison, err := ensemble.CompareMethods(ctx, sp, ds.Task, cfg.MetaLearner, cfg.Folds, cfg.Seed)
	if err != nil {
		return nil, err
	}

	return result.Normalize(result.Input{
		Dataset:      ds,
		Split:        sp,
		DatasetID:    cfg.DatasetID,
		Bank:         bank,
		Voting:       voting,
		Stacking:     stacking,
		Insights:     insights,
		Comparison:   comparison,
		SampleCap:    cfg.SampleCap,
		Seed:         cfg.Seed,
		RenderCharts: cfg.RenderCharts,
	})
}
