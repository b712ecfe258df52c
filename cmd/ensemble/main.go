// Command ensemble runs the ensemble analysis pipeline over a tabular
// dataset and emits the marker-delimited JSON payload on stdout. All
// human-readable logging goes to stderr.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	pkglog "github.com/ensemblelab/ensemble/pkg/log"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "ensemble",
		Short: "Heterogeneous ensemble analysis over tabular datasets",
		Long: `ensemble trains three base models (linear, random forest, gradient
boosted trees), combines them by voting and by stacking, compares the two
methods under cross-validation, and reports everything as a single JSON
payload.`,
		PersistentPreRunE: initConfig,
		SilenceUsage:      true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./ensemble.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(precomputeCmd())
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Warn("interrupt received, stopping at the next stage boundary")
		cancel()
	}()

	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("ensemble")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("ENSEMBLE")
	viper.AutomaticEnv()

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("data.dir", "data")
	viper.SetDefault("datasets", map[string]string{
		"automobile": "automobile.csv",
		"concrete":   "concrete_data.csv",
		"loan":       "loan_applications.csv",
	})
	viper.SetDefault("run.test_fraction", 0.3)
	viper.SetDefault("run.seed", 42)
	viper.SetDefault("run.sample_cap", 10)
	viper.SetDefault("run.folds", 5)
	viper.SetDefault("run.meta_learner", "linear")
	viper.SetDefault("run.charts", false)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("reading config: %w", err)
		}
	}

	pkglog.SetupLogger(viper.GetString("logging.level"))
	pkglog.InstallWarningSink(zerolog.WarnLevel)
	return nil
}
