// Command dvf-analyze prints a quick exploratory summary of the
// consolidated DVF Parquet file.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"dvf-tools/config"
	"dvf-tools/services"
	"dvf-tools/utils"
)

func newRootCmd(cfg *config.Config, logger *utils.Logger) *cobra.Command {
	var (
		path   string
		sample int64
	)
	cmd := &cobra.Command{
		Use:          "dvf-analyze",
		Short:        "Run quick EDA on the consolidated DVF Parquet file",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := services.NewAnalyzer(logger)
			report, err := a.Analyze(path, sample)
			if err != nil {
				return err
			}
			a.Print(cmd.OutOrStdout(), report)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", cfg.Consolidate.OutputPath, "Parquet file to analyze")
	cmd.Flags().Int64Var(&sample, "sample", 0, "Only analyze the first N rows (0 for all)")
	return cmd
}

func main() {
	logger := utils.NewLogger()
	cfg := config.Load()
	logger.SetLevel(utils.ParseLevel(cfg.LogLevel))

	if err := newRootCmd(cfg, logger).Execute(); err != nil {
		logger.Error("Analysis failed: %v", err)
		os.Exit(1)
	}
}
