package storage

import (
	"fmt"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"
)

// ParquetReader reads a flat Parquet file column by column in chunks.
type ParquetReader struct {
	file    source.ParquetFile
	pr      *reader.ParquetReader
	columns []string
	types   []string
}

// OpenParquet opens the file at path for column reads.
func OpenParquet(path string) (*ParquetReader, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("parquet: open %q: %w", path, err)
	}

	pr, err := reader.NewParquetColumnReader(fr, 1)
	if err != nil {
		_ = fr.Close()
		return nil, fmt.Errorf("parquet: read footer of %q: %w", path, err)
	}

	// Infos[0] is the root; leaves follow in column order.
	infos := pr.SchemaHandler.Infos
	elems := pr.SchemaHandler.SchemaElements
	columns := make([]string, 0, len(infos))
	types := make([]string, 0, len(infos))
	for i := 1; i < len(infos); i++ {
		columns = append(columns, infos[i].ExName)
		types = append(types, physicalType(elems[i]))
	}

	return &ParquetReader{file: fr, pr: pr, columns: columns, types: types}, nil
}

// physicalType renders a leaf as TYPE or TYPE/CONVERTED, e.g. BYTE_ARRAY/UTF8.
func physicalType(el *parquet.SchemaElement) string {
	if el == nil || el.Type == nil {
		return "UNKNOWN"
	}
	t := el.Type.String()
	if el.ConvertedType != nil {
		t += "/" + el.ConvertedType.String()
	}
	return t
}

// Columns returns the column names in file order.
func (r *ParquetReader) Columns() []string {
	return r.columns
}

// Types returns the physical type of each column, aligned with Columns.
func (r *ParquetReader) Types() []string {
	return r.types
}

// NumRows returns the total row count from the footer.
func (r *ParquetReader) NumRows() int64 {
	return r.pr.GetNumRows()
}

// ReadColumn reads the next n values of column index. Nulls come back as nil.
func (r *ParquetReader) ReadColumn(index int, n int64) ([]interface{}, error) {
	values, _, _, err := r.pr.ReadColumnByIndex(int64(index), n)
	if err != nil {
		return nil, fmt.Errorf("parquet: read column %q: %w", r.columns[index], err)
	}
	return values, nil
}

// Close releases the reader and the file.
func (r *ParquetReader) Close() error {
	r.pr.ReadStop()
	return r.file.Close()
}
