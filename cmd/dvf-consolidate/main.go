// Command dvf-consolidate merges the yearly DVF CSV files into one
// Snappy-compressed Parquet file with a year column.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"dvf-tools/config"
	"dvf-tools/services"
	"dvf-tools/utils"
)

func newRootCmd(cfg *config.Config, logger *utils.Logger) *cobra.Command {
	cc := &cfg.Consolidate
	cmd := &cobra.Command{
		Use:          "dvf-consolidate",
		Short:        "Concatenate yearly DVF CSVs into one Parquet file",
		Long:         "Reads every <data-dir>/*full.csv in name order, tags rows with the year from the file name and streams them into --output.",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.ValidateConsolidate(); err != nil {
				return err
			}
			_, err := services.NewConsolidator(*cc, logger).Run(cmd.Context())
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&cc.DataDir, "data-dir", cc.DataDir, "Directory holding the yearly CSV files")
	f.StringVarP(&cc.OutputPath, "output", "o", cc.OutputPath, "Parquet file to write (replaced on success)")
	f.IntVar(&cc.BatchSize, "batch-size", cc.BatchSize, "Rows per batch and row group")
	return cmd
}

func main() {
	logger := utils.NewLogger()
	cfg := config.Load()
	logger.SetLevel(utils.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(cfg, logger).ExecuteContext(ctx); err != nil {
		logger.Error("Consolidation failed: %v", err)
		stop()
		os.Exit(1)
	}
}
