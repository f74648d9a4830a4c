package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"dvf-tools/models"
)

var (
	// ErrFieldSet is returned when a record's fields differ from the CSV header.
	ErrFieldSet = errors.New("record field set does not match header")
	// ErrEmptyRecord is returned for a record with no fields.
	ErrEmptyRecord = errors.New("record has no fields")
)

// CSVWriter appends scraped records to a CSV file. The header is taken from
// the existing file or, for a new file, from the first record written.
type CSVWriter struct {
	path   string
	file   *os.File
	writer *csv.Writer
	header []string
	rows   int
}

// NewCSVWriter opens the CSV file at path for appending, creating it and any
// intermediate directories when missing. An existing header is kept.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	header, err := readHeader(path)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("csv: open file %q: %w", path, err)
	}

	return &CSVWriter{path: path, file: f, writer: csv.NewWriter(f), header: header}, nil
}

// readHeader returns the first row of an existing, non-empty CSV file.
func readHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("csv: open existing %q: %w", path, err)
	}
	defer f.Close()

	header, err := csv.NewReader(f).Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("csv: read existing header of %q: %w", path, err)
	}
	return header, nil
}

// Header returns the column order in use, or nil before the first write to a new file.
func (c *CSVWriter) Header() []string {
	return c.header
}

// Rows returns how many data rows this writer has appended.
func (c *CSVWriter) Rows() int {
	return c.rows
}

// WriteRecords appends one page of records and flushes them to disk. The
// whole page is checked against the header before any row is written.
func (c *CSVWriter) WriteRecords(page int, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}

	header := c.header
	writeHeader := header == nil
	if writeHeader {
		header = append([]string(nil), records[0].Fields...)
	}

	for i, r := range records {
		if len(r.Fields) == 0 {
			return fmt.Errorf("csv: page %d record %d: %w", page, i, ErrEmptyRecord)
		}
		if err := matchFields(header, r); err != nil {
			return fmt.Errorf("csv: page %d record %d: %w", page, i, err)
		}
	}

	if writeHeader {
		if err := c.writer.Write(header); err != nil {
			return fmt.Errorf("csv: write header: %w", err)
		}
		c.header = header
	}

	for _, r := range records {
		if err := c.writer.Write(r.Row(c.header)); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		return fmt.Errorf("csv: flush %q: %w", c.path, err)
	}
	c.rows += len(records)
	return nil
}

func matchFields(header []string, r models.Record) error {
	var missing, extra []string
	for _, h := range header {
		if _, ok := r.Values[h]; !ok {
			missing = append(missing, h)
		}
	}
	if len(r.Values) != len(header)-len(missing) {
		inHeader := make(map[string]struct{}, len(header))
		for _, h := range header {
			inHeader[h] = struct{}{}
		}
		for _, f := range r.Fields {
			if _, ok := inHeader[f]; !ok {
				extra = append(extra, f)
			}
		}
	}
	if len(missing) == 0 && len(extra) == 0 {
		return nil
	}
	return fmt.Errorf("%w (missing: [%s], extra: [%s])", ErrFieldSet,
		strings.Join(missing, ","), strings.Join(extra, ","))
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		_ = c.file.Close()
		return fmt.Errorf("csv: flush on close: %w", err)
	}
	return c.file.Close()
}
