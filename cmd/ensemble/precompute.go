package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ensemblelab/ensemble/pipeline"
	pkglog "github.com/ensemblelab/ensemble/pkg/log"
)

func precomputeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "precompute",
		Short: "Render every dataset and meta-learner combination to JSON files",
		Long: `Run the pipeline for each configured dataset crossed with each
stacking meta-learner and write one payload file per combination to the
output directory. Failed combinations are logged and skipped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			outDir := viper.GetString("precompute.out_dir")
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}

			ids := viper.GetStringSlice("precompute.datasets")
			if len(ids) == 0 {
				for id := range viper.GetStringMapString("datasets") {
					ids = append(ids, id)
				}
				sort.Strings(ids)
			}
			metaLearners := []string{"linear", "random_forest", "xgboost"}

			var failed int
			for _, id := range ids {
				path, _, err := resolveDataset(id)
				if err != nil {
					slog.Error("dataset skipped", slog.String("dataset", id), pkglog.ErrAttr(err))
					failed += len(metaLearners)
					continue
				}
				for _, meta := range metaLearners {
					if err := precomputeOne(cmd, outDir, id, path, meta); err != nil {
						slog.Error("combination failed",
							slog.String("dataset", id),
							slog.String("meta_learner", meta),
							pkglog.ErrAttr(err))
						failed++
					}
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d combination(s) failed", failed)
			}
			return nil
		},
	}

	cmd.Flags().String("out-dir", "precomputed", "output directory for payload files")
	cmd.Flags().StringSlice("datasets", nil, "dataset ids to precompute (default: all configured)")
	_ = viper.BindPFlag("precompute.out_dir", cmd.Flags().Lookup("out-dir"))
	_ = viper.BindPFlag("precompute.datasets", cmd.Flags().Lookup("datasets"))

	return cmd
}

func precomputeOne(cmd *cobra.Command, outDir, id, path, meta string) error {
	payload, err := pipeline.Run(cmd.Context(), pipeline.Config{
		DatasetPath:  path,
		DatasetID:    id,
		MetaLearner:  meta,
		TestFraction: viper.GetFloat64("run.test_fraction"),
		Seed:         viper.GetUint64("run.seed"),
		SampleCap:    viper.GetInt("run.sample_cap"),
		Folds:        viper.GetInt("run.folds"),
		RenderCharts: viper.GetBool("run.charts"),
	})
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	out := filepath.Join(outDir, fmt.Sprintf("%s_%s.json", id, meta))
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return err
	}
	slog.Info("payload written", slog.String("file", out))
	return nil
}
