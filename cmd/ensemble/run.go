package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ensemblelab/ensemble/pipeline"
	"github.com/ensemblelab/ensemble/result"
)

// Stdout markers delimiting the payload so callers can cut it out of
// whatever else the process prints.
const (
	resultsStartMarker = "RESULTS_JSON_START"
	resultsEndMarker   = "RESULTS_JSON_END"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <dataset>",
		Short: "Analyze one dataset and print the result payload",
		Long: `Run the full pipeline over a dataset given as a CSV path or as a
configured dataset id. The JSON payload is printed to stdout between
RESULTS_JSON_START and RESULTS_JSON_END markers; on failure a
{"success":false,"error":...} object is printed instead and the process
exits non-zero.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, id, err := resolveDataset(args[0])
			if err != nil {
				emitJSON(cmd.OutOrStdout(), result.NewFailure(err))
				return err
			}

			cfg := pipeline.Config{
				DatasetPath:  path,
				DatasetID:    id,
				TargetColumn: viper.GetString("run.target"),
				MetaLearner:  viper.GetString("run.meta_learner"),
				TestFraction: viper.GetFloat64("run.test_fraction"),
				Seed:         viper.GetUint64("run.seed"),
				SampleCap:    viper.GetInt("run.sample_cap"),
				Folds:        viper.GetInt("run.folds"),
				RenderCharts: viper.GetBool("run.charts"),
			}

			payload, err := pipeline.Run(cmd.Context(), cfg)
			if err != nil {
				emitJSON(cmd.OutOrStdout(), result.NewFailure(err))
				return err
			}
			emitJSON(cmd.OutOrStdout(), payload)
			return nil
		},
	}

	cmd.Flags().String("target", "", "target column (auto-detected when empty)")
	cmd.Flags().String("meta-learner", "linear", "stacking meta-learner: linear, random_forest or xgboost")
	cmd.Flags().Float64("test-fraction", 0.3, "test split fraction")
	cmd.Flags().Uint64("seed", 42, "random seed")
	cmd.Flags().Int("sample-cap", 10, "max prediction sample rows in the payload")
	cmd.Flags().Int("folds", 5, "cross-validation folds")
	cmd.Flags().Bool("charts", false, "embed base64 PNG charts in the payload")
	_ = viper.BindPFlag("run.target", cmd.Flags().Lookup("target"))
	_ = viper.BindPFlag("run.meta_learner", cmd.Flags().Lookup("meta-learner"))
	_ = viper.BindPFlag("run.test_fraction", cmd.Flags().Lookup("test-fraction"))
	_ = viper.BindPFlag("run.seed", cmd.Flags().Lookup("seed"))
	_ = viper.BindPFlag("run.sample_cap", cmd.Flags().Lookup("sample-cap"))
	_ = viper.BindPFlag("run.folds", cmd.Flags().Lookup("folds"))
	_ = viper.BindPFlag("run.charts", cmd.Flags().Lookup("charts"))

	return cmd
}

// resolveDataset accepts either a CSV path or a configured dataset id.
// Ids are looked up in the datasets map and joined with the data dir.
func resolveDataset(arg string) (path, id string, err error) {
	if _, statErr := os.Stat(arg); statErr == nil {
		return arg, "", nil
	}

	datasets := viper.GetStringMapString("datasets")
	if file, ok := datasets[arg]; ok {
		return filepath.Join(viper.GetString("data.dir"), file), arg, nil
	}
	return "", "", fmt.Errorf("unknown dataset %q: not a file and not a configured dataset id", arg)
}

func emitJSON(w io.Writer, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		// The schema is plain data; marshalling only fails on non-finite
		// floats that slipped past normalization.
		data, _ = json.Marshal(result.Failure{Success: false, Error: err.Error()})
	}
	fmt.Fprintln(w, resultsStartMarker)
	fmt.Fprintln(w, string(data))
	fmt.Fprintln(w, resultsEndMarker)
}
