package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"dvf-tools/config"
	"dvf-tools/models"
	"dvf-tools/storage"
	"dvf-tools/utils"
)

// YearColumn is the column appended to every consolidated row.
const YearColumn = "year"

var (
	ErrNoInputFiles   = errors.New("no input files")
	ErrNoYear         = errors.New("no year in file name")
	ErrSchemaMismatch = errors.New("columns differ from the first file")
)

// yearRegexp matches 2020full.csv, 2021_full.csv, dvf-2022-full.csv.
var yearRegexp = regexp.MustCompile(`^(?:.*[^0-9])?(\d{4})[_-]?full\.csv$`)

// YearFromName returns the year encoded in the base name of path.
func YearFromName(path string) (int, error) {
	name := filepath.Base(path)
	m := yearRegexp.FindStringSubmatch(name)
	if m == nil {
		return 0, fmt.Errorf("%w: %s", ErrNoYear, name)
	}
	return strconv.Atoi(m[1])
}

// Discover lists the files in dir matching pattern, sorted by name, with
// their years. A matching file without a year is an error.
func Discover(dir, pattern string) ([]models.SourceFile, error) {
	paths, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("consolidate: bad pattern %q: %w", pattern, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("consolidate: %w in %s matching %q", ErrNoInputFiles, dir, pattern)
	}
	sort.Strings(paths)

	files := make([]models.SourceFile, 0, len(paths))
	for _, p := range paths {
		year, err := YearFromName(p)
		if err != nil {
			return nil, fmt.Errorf("consolidate: %w", err)
		}
		files = append(files, models.SourceFile{Path: p, Year: year})
	}
	return files, nil
}

// Consolidator streams yearly CSV files into one Parquet file.
type Consolidator struct {
	cfg    config.ConsolidateConfig
	logger *utils.Logger
}

// NewConsolidator creates a Consolidator with the given settings and logger.
func NewConsolidator(cfg config.ConsolidateConfig, logger *utils.Logger) *Consolidator {
	return &Consolidator{cfg: cfg, logger: logger}
}

// Run discovers the inputs and writes the combined output.
func (c *Consolidator) Run(ctx context.Context) (*models.ConsolidateSummary, error) {
	files, err := Discover(c.cfg.DataDir, c.cfg.Pattern)
	if err != nil {
		return nil, err
	}
	return c.Consolidate(ctx, files)
}

// Consolidate writes files, in order, to the configured output path. Each
// batch of BatchSize rows becomes one row group, so at most one batch is
// buffered at a time. On error the previous output is left untouched.
func (c *Consolidator) Consolidate(ctx context.Context, files []models.SourceFile) (*models.ConsolidateSummary, error) {
	summary := &models.ConsolidateSummary{
		OutputPath: c.cfg.OutputPath,
		RowsByYear: make(map[int]int64),
	}

	out := &output{path: c.cfg.OutputPath}
	fail := func(err error) (*models.ConsolidateSummary, error) {
		if out.writer != nil {
			out.writer.Abort()
		}
		return summary, err
	}

	for _, src := range files {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		c.logger.Info("[consolidate] Loading %s (year %d)", src.Path, src.Year)
		rows, batches, err := c.ingest(ctx, src, out)
		if err != nil {
			return fail(fmt.Errorf("consolidate: %s: %w", src.Path, err))
		}

		summary.Files++
		summary.Batches += batches
		summary.Rows += rows
		summary.RowsByYear[src.Year] += rows
		c.logger.Info("[consolidate] %s: %d rows in %d batches", filepath.Base(src.Path), rows, batches)
	}

	if out.writer == nil {
		return summary, fmt.Errorf("consolidate: %w", ErrNoInputFiles)
	}
	if err := out.writer.Close(); err != nil {
		return summary, fmt.Errorf("consolidate: %w", err)
	}

	summary.Columns = append(append([]string(nil), out.columns...), YearColumn)
	c.logger.Info("[consolidate] Combined rows written: %d", summary.Rows)
	c.logger.Info("[consolidate] Wrote Parquet to %s", c.cfg.OutputPath)
	return summary, nil
}

// output is the Parquet writer shared by all files of one run. It is opened
// lazily from the first file's header.
type output struct {
	path    string
	columns []string
	writer  *storage.ParquetWriter
}

func (o *output) open(header []string) error {
	schema := make([]storage.Column, 0, len(header)+1)
	for _, h := range header {
		schema = append(schema, storage.Column{Name: h, Kind: storage.ColumnString})
	}
	schema = append(schema, storage.Column{Name: YearColumn, Kind: storage.ColumnInt32})

	w, err := storage.NewParquetWriter(o.path, schema)
	if err != nil {
		return err
	}
	o.columns = header
	o.writer = w
	return nil
}

// ingest streams one file into out.
func (c *Consolidator) ingest(ctx context.Context, src models.SourceFile, out *output) (int64, int, error) {
	f, err := os.Open(src.Path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err == io.EOF {
		return 0, 0, errors.New("empty file, no header")
	}
	if err != nil {
		return 0, 0, fmt.Errorf("read header: %w", err)
	}
	header = normaliseHeader(header)
	if err := checkHeader(header); err != nil {
		return 0, 0, err
	}

	if out.writer == nil {
		if err := out.open(header); err != nil {
			return 0, 0, err
		}
	}

	order, err := columnOrder(out.columns, header)
	if err != nil {
		return 0, 0, err
	}

	year := strconv.Itoa(src.Year)
	batchSize := c.cfg.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}

	var rows int64
	batches, inBatch := 0, 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return rows, batches, fmt.Errorf("read row: %w", err)
		}

		values := make([]*string, len(order)+1)
		for i, idx := range order {
			if cell := rec[idx]; cell != "" {
				values[i] = &cell
			}
		}
		values[len(order)] = &year

		if err := out.writer.WriteRow(values); err != nil {
			return rows, batches, err
		}
		rows++
		inBatch++

		if inBatch == batchSize {
			if err := out.writer.Flush(); err != nil {
				return rows, batches, err
			}
			batches++
			inBatch = 0
			c.logger.Debug("[consolidate] %s: flushed batch %d", filepath.Base(src.Path), batches)
			if err := ctx.Err(); err != nil {
				return rows, batches, err
			}
		}
	}

	if inBatch > 0 {
		if err := out.writer.Flush(); err != nil {
			return rows, batches, err
		}
		batches++
	}
	return rows, batches, nil
}

// normaliseHeader strips a UTF-8 BOM and surrounding spaces from column names.
func normaliseHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		out[i] = strings.TrimSpace(h)
	}
	return out
}

func checkHeader(header []string) error {
	seen := make(map[string]struct{}, len(header))
	for _, h := range header {
		if h == "" {
			return errors.New("empty column name in header")
		}
		if h == YearColumn {
			return fmt.Errorf("input already has a %q column", YearColumn)
		}
		if _, dup := seen[h]; dup {
			return fmt.Errorf("duplicate column %q", h)
		}
		seen[h] = struct{}{}
	}
	return nil
}

// columnOrder maps each wanted column to its index in header.
func columnOrder(want, header []string) ([]int, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[h] = i
	}

	order := make([]int, len(want))
	var missing []string
	for i, col := range want {
		idx, ok := pos[col]
		if !ok {
			missing = append(missing, col)
			continue
		}
		order[i] = idx
		delete(pos, col)
	}
	if len(missing) > 0 || len(pos) > 0 {
		extra := make([]string, 0, len(pos))
		for col := range pos {
			extra = append(extra, col)
		}
		sort.Strings(extra)
		return nil, fmt.Errorf("%w (missing: [%s], extra: [%s])", ErrSchemaMismatch,
			strings.Join(missing, ","), strings.Join(extra, ","))
	}
	return order, nil
}
