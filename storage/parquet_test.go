package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func TestParquetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.parquet")
	w, err := NewParquetWriter(path, []Column{
		{Name: "price", Kind: ColumnString},
		{Name: "area", Kind: ColumnString},
		{Name: "year", Kind: ColumnInt32},
	})
	require.NoError(t, err)
	require.Len(t, w.Columns(), 3)
	assert.Equal(t, ColumnInt32, w.Columns()[2].Kind)

	require.NoError(t, w.WriteRow([]*string{strp("100"), strp("10"), strp("2021")}))
	require.NoError(t, w.WriteRow([]*string{nil, strp("20"), strp("2021")}))
	require.NoError(t, w.Flush())
	require.NoError(t, w.WriteRow([]*string{strp("300"), nil, strp("2022")}))
	require.NoError(t, w.Close())

	assert.EqualValues(t, 3, w.Rows())
	assert.Equal(t, 2, w.RowGroups())
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temporary file should be renamed away")

	r, err := OpenParquet(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, []string{"price", "area", "year"}, r.Columns())
	assert.Equal(t, []string{"BYTE_ARRAY/UTF8", "BYTE_ARRAY/UTF8", "INT32"}, r.Types())
	assert.EqualValues(t, 3, r.NumRows())

	prices, err := r.ReadColumn(0, 3)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"100", nil, "300"}, prices)

	years, err := r.ReadColumn(2, 3)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int32(2021), int32(2021), int32(2022)}, years)
}

func TestParquetWriterRejectsBadSchema(t *testing.T) {
	dir := t.TempDir()

	_, err := NewParquetWriter(filepath.Join(dir, "a.parquet"), nil)
	assert.Error(t, err)

	_, err = NewParquetWriter(filepath.Join(dir, "b.parquet"), []Column{{Name: "a,b"}})
	assert.Error(t, err)

	_, err = NewParquetWriter(filepath.Join(dir, "c.parquet"), []Column{{Name: "x"}, {Name: "X"}})
	assert.Error(t, err)
}

func TestParquetWriterRowWidth(t *testing.T) {
	w, err := NewParquetWriter(filepath.Join(t.TempDir(), "w.parquet"), []Column{{Name: "a"}, {Name: "b"}})
	require.NoError(t, err)
	defer w.Abort()

	assert.Error(t, w.WriteRow([]*string{strp("only-one")}))
}

func TestParquetAbortKeepsPreviousOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.parquet")
	require.NoError(t, os.WriteFile(path, []byte("previous"), 0644))

	w, err := NewParquetWriter(path, []Column{{Name: "a"}})
	require.NoError(t, err)
	require.NoError(t, w.WriteRow([]*string{strp("x")}))
	w.Abort()

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "previous", string(got))
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}
