package models

// SourceFile is a year-stamped input CSV discovered on disk.
type SourceFile struct {
	Path string
	Year int
}

// ConsolidateSummary reports what one consolidation run wrote.
type ConsolidateSummary struct {
	OutputPath string
	Files      int
	Batches    int
	Rows       int64
	RowsByYear map[int]int64
	Columns    []string
}

// NumericSummary mirrors a describe() over one numeric series.
type NumericSummary struct {
	Count int
	Mean  float64
	Std   float64
	Min   float64
	P25   float64
	P50   float64
	P75   float64
	P90   float64
	P99   float64
	Max   float64
}

// ValueCount is one entry of a top-N frequency table.
type ValueCount struct {
	Value string
	Count int64
}

// ColumnMissing counts nulls in one column.
type ColumnMissing struct {
	Column  string
	Missing int64
	Percent float64
}

// ColumnType names the physical Parquet type of one column.
type ColumnType struct {
	Column string
	Type   string
}

// AnalysisReport holds the computed exploration over the consolidated dataset.
type AnalysisReport struct {
	Path        string
	Rows        int64
	Sampled     bool
	Columns     []string
	Schema      []ColumnType
	RowsByYear  map[int]int64
	Missing     []ColumnMissing
	TopValues   map[string][]ValueCount
	Year        *NumericSummary
	PriceColumn string
	AreaColumn  string
	PricePerM2  *NumericSummary
}
