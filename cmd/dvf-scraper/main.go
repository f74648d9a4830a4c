// Command dvf-scraper polls a paginated DVF listing API and appends every
// record to a CSV file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"dvf-tools/config"
	"dvf-tools/scraper/dvf"
	"dvf-tools/storage"
	"dvf-tools/utils"
)

func newRootCmd(cfg *config.Config, logger *utils.Logger) *cobra.Command {
	sc := &cfg.Scraper
	cmd := &cobra.Command{
		Use:          "dvf-scraper",
		Short:        "Scrape a paginated DVF listing API into CSV",
		Long:         "Requests successive pages from the listing API, stops at the first empty page or after --max-pages, and appends every record to --out.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfg, logger)
		},
	}

	f := cmd.Flags()
	f.StringVar(&sc.BaseURL, "base-url", sc.BaseURL, "Listing API endpoint")
	f.IntVar(&sc.MaxPages, "max-pages", sc.MaxPages, "Maximum number of pages to request")
	f.IntVar(&sc.PageSize, "page-size", sc.PageSize, "Records requested per page")
	f.Float64Var(&sc.DelaySeconds, "delay", sc.DelaySeconds, "Seconds to sleep between requests")
	f.StringVarP(&sc.CSVOutputPath, "out", "o", sc.CSVOutputPath, "CSV file to append to")
	f.StringVar(&sc.RecordsKey, "records-key", sc.RecordsKey, "Dotted JSON path of the record list (empty for a top-level list)")
	f.StringVar(&sc.PageParam, "page-param", sc.PageParam, "Query parameter carrying the page number")
	f.StringVar(&sc.SizeParam, "size-param", sc.SizeParam, "Query parameter carrying the page size")
	f.IntVar(&sc.StartPage, "start-page", sc.StartPage, "First page number")
	f.IntVar(&sc.MaxRetries, "retries", sc.MaxRetries, "Transport retries per request")
	f.BoolVar(&cfg.StorePostgres, "postgres", cfg.StorePostgres, "Also store records in PostgreSQL")
	return cmd
}

func run(ctx context.Context, cfg *config.Config, logger *utils.Logger) (err error) {
	if err := cfg.ValidateScraper(); err != nil {
		return err
	}

	client, err := dvf.NewClient(cfg.Scraper, logger)
	if err != nil {
		return err
	}
	s := dvf.New(cfg.Scraper, client, logger)

	csvWriter, err := storage.NewCSVWriter(cfg.Scraper.CSVOutputPath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := csvWriter.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	s.AddSink(csvWriter)

	var pgWriter *storage.PostgresWriter
	if cfg.StorePostgres {
		pgWriter, err = storage.NewPostgresWriter(ctx, cfg.DSN(), s.RunID(), logger)
		if err != nil {
			return fmt.Errorf("%w (is PostgreSQL running?)", err)
		}
		defer pgWriter.Close()
		s.AddSink(pgWriter)
	}

	summary, err := s.Run(ctx)
	if err != nil {
		return err
	}

	logger.Info("Wrote %d rows across %d pages to %s", summary.Records, summary.Pages, cfg.Scraper.CSVOutputPath)
	if pgWriter != nil {
		n, err := pgWriter.CountRun(ctx)
		if err != nil {
			return err
		}
		logger.Info("PostgreSQL holds %d rows for run %s", n, summary.RunID)
	}
	return nil
}

func main() {
	logger := utils.NewLogger()
	cfg := config.Load()
	logger.SetLevel(utils.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(cfg, logger).ExecuteContext(ctx); err != nil {
		logger.Error("Scrape failed: %v", err)
		stop()
		os.Exit(1)
	}
}
