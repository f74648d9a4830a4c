package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"
)

// ColumnKind is the physical type of a Parquet column written by ParquetWriter.
type ColumnKind int

const (
	// ColumnString is an optional UTF8 byte array; nil values are nulls.
	ColumnString ColumnKind = iota
	// ColumnInt32 is a required 32-bit integer.
	ColumnInt32
)

// Column describes one output column.
type Column struct {
	Name string
	Kind ColumnKind
}

// ParquetWriter streams rows into a Snappy-compressed Parquet file. Rows go
// to a temporary file next to the target; Close renames it into place and
// Abort discards it.
type ParquetWriter struct {
	path    string
	tmpPath string
	file    source.ParquetFile
	pw      *writer.CSVWriter
	columns []Column
	pending int
	rows    int64
	groups  int
}

// NewParquetWriter creates the temporary output file and the writer for columns.
func NewParquetWriter(path string, columns []Column) (*ParquetWriter, error) {
	if len(columns) == 0 {
		return nil, errors.New("parquet: no columns")
	}
	md, err := schemaMetadata(columns)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("parquet: create output dir: %w", err)
	}

	tmpPath := path + ".tmp"
	fw, err := local.NewLocalFileWriter(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("parquet: create file %q: %w", tmpPath, err)
	}

	pw, err := writer.NewCSVWriter(md, fw, 1)
	if err != nil {
		_ = fw.Close()
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("parquet: init writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	return &ParquetWriter{
		path:    path,
		tmpPath: tmpPath,
		file:    fw,
		pw:      pw,
		columns: append([]Column(nil), columns...),
	}, nil
}

func schemaMetadata(columns []Column) ([]string, error) {
	md := make([]string, 0, len(columns))
	seen := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		if c.Name == "" || strings.ContainsAny(c.Name, ",=") {
			return nil, fmt.Errorf("parquet: unsupported column name %q", c.Name)
		}
		key := strings.ToLower(c.Name)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("parquet: duplicate column %q", c.Name)
		}
		seen[key] = struct{}{}

		switch c.Kind {
		case ColumnString:
			md = append(md, fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL", c.Name))
		case ColumnInt32:
			md = append(md, fmt.Sprintf("name=%s, type=INT32, repetitiontype=REQUIRED", c.Name))
		default:
			return nil, fmt.Errorf("parquet: column %q: unknown kind %d", c.Name, c.Kind)
		}
	}
	return md, nil
}

// Columns returns the output schema.
func (w *ParquetWriter) Columns() []Column {
	return w.columns
}

// WriteRow buffers one row. values must follow Columns(); a nil entry is a
// null. Int32 columns are parsed from their decimal text.
func (w *ParquetWriter) WriteRow(values []*string) error {
	if len(values) != len(w.columns) {
		return fmt.Errorf("parquet: row has %d values, schema has %d columns", len(values), len(w.columns))
	}
	if err := w.pw.WriteString(values); err != nil {
		return fmt.Errorf("parquet: write row: %w", err)
	}
	w.pending++
	return nil
}

// Flush writes the buffered rows out as one row group.
func (w *ParquetWriter) Flush() error {
	if w.pending == 0 {
		return nil
	}
	if err := w.pw.Flush(true); err != nil {
		return fmt.Errorf("parquet: flush row group: %w", err)
	}
	w.rows += int64(w.pending)
	w.pending = 0
	w.groups++
	return nil
}

// Rows returns how many rows have been flushed.
func (w *ParquetWriter) Rows() int64 {
	return w.rows
}

// RowGroups returns how many row groups have been flushed.
func (w *ParquetWriter) RowGroups() int {
	return w.groups
}

// Close flushes pending rows, writes the footer and moves the file into place,
// replacing any previous output.
func (w *ParquetWriter) Close() error {
	if err := w.Flush(); err != nil {
		w.Abort()
		return err
	}
	if err := w.pw.WriteStop(); err != nil {
		w.Abort()
		return fmt.Errorf("parquet: write footer: %w", err)
	}
	if err := w.file.Close(); err != nil {
		_ = os.Remove(w.tmpPath)
		return fmt.Errorf("parquet: close %q: %w", w.tmpPath, err)
	}
	if err := os.Rename(w.tmpPath, w.path); err != nil {
		_ = os.Remove(w.tmpPath)
		return fmt.Errorf("parquet: move into place: %w", err)
	}
	return nil
}

// Abort closes and deletes the temporary file. The previous output, if any,
// is left untouched.
func (w *ParquetWriter) Abort() {
	_ = w.file.Close()
	_ = os.Remove(w.tmpPath)
}
