package dvf

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dvf-tools/config"
	"dvf-tools/models"
	"dvf-tools/storage"
	"dvf-tools/utils"
)

// PageFetcher returns the records of one page.
type PageFetcher interface {
	FetchPage(ctx context.Context, page, size int) ([]models.Record, error)
}

// Scraper drives pagination and hands every page to its sinks.
type Scraper struct {
	cfg     config.ScraperConfig
	fetcher PageFetcher
	logger  *utils.Logger
	pacer   *utils.Pacer
	sinks   []storage.RecordWriter
	runID   string
}

// New creates a Scraper with a fresh run id.
func New(cfg config.ScraperConfig, fetcher PageFetcher, logger *utils.Logger) *Scraper {
	delay := time.Duration(cfg.DelaySeconds * float64(time.Second))
	return &Scraper{
		cfg:     cfg,
		fetcher: fetcher,
		logger:  logger,
		pacer:   utils.NewPacer(delay),
		runID:   uuid.NewString(),
	}
}

// RunID identifies this scrape in logs and in the Postgres mirror.
func (s *Scraper) RunID() string {
	return s.runID
}

// AddSink registers a writer that receives every non-empty page.
func (s *Scraper) AddSink(w storage.RecordWriter) {
	s.sinks = append(s.sinks, w)
}

// Run requests pages until one comes back empty or MaxPages have been
// requested. Any fetch or sink error ends the run; pages already handed to
// the sinks stay written.
func (s *Scraper) Run(ctx context.Context) (models.ScrapeSummary, error) {
	summary := models.ScrapeSummary{RunID: s.runID}

	s.logger.Info("[scraper] Run %s starting: up to %d pages of %d records, %.2fs between requests",
		s.runID, s.cfg.MaxPages, s.cfg.PageSize, s.cfg.DelaySeconds)

	for i := 0; i < s.cfg.MaxPages; i++ {
		page := s.cfg.StartPage + i

		if err := s.pacer.Wait(ctx); err != nil {
			return summary, fmt.Errorf("scraper: waiting before page %d: %w", page, err)
		}

		records, err := s.fetcher.FetchPage(ctx, page, s.cfg.PageSize)
		summary.Requests++
		if err != nil {
			return summary, fmt.Errorf("scraper: %w", err)
		}

		if len(records) == 0 {
			s.logger.Info("[scraper] Page %d returned 0 records; stopping", page)
			break
		}

		for _, sink := range s.sinks {
			if err := sink.WriteRecords(page, records); err != nil {
				return summary, fmt.Errorf("scraper: store page %d: %w", page, err)
			}
		}

		summary.Pages++
		summary.Records += len(records)
		s.logger.Info("[scraper] Page %d done: %d records (%d so far)", page, len(records), summary.Records)
	}

	s.logger.Info("[scraper] Run %s complete: %d records across %d pages (%d requests)",
		s.runID, summary.Records, summary.Pages, summary.Requests)
	return summary, nil
}
