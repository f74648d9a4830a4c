package services

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"dvf-tools/models"
	"dvf-tools/storage"
	"dvf-tools/utils"
)

const (
	analyzeChunk = 10_000
	topN         = 10
	nullLabel    = "<null>"
)

var (
	categoryColumns = []string{"nature_mutation", "type_local", "code_departement", "code_commune", "code_postal"}
	priceColumns    = []string{"valeur_fonciere", "prix"}
	areaColumns     = []string{"surface_reelle_bati", "surface", "surface_terrain"}
)

// Analyzer computes a quick exploratory report over a consolidated Parquet file.
type Analyzer struct {
	logger *utils.Logger
}

func NewAnalyzer(logger *utils.Logger) *Analyzer {
	return &Analyzer{logger: logger}
}

// Analyze reads path column-wise in chunks. A positive sample limits the
// analysis to the first sample rows.
func (a *Analyzer) Analyze(path string, sample int64) (*models.AnalysisReport, error) {
	r, err := storage.OpenParquet(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	columns := r.Columns()
	total := r.NumRows()
	report := &models.AnalysisReport{
		Path:       path,
		Columns:    columns,
		RowsByYear: make(map[int]int64),
		TopValues:  make(map[string][]models.ValueCount),
	}
	if sample > 0 && sample < total {
		total = sample
		report.Sampled = true
		a.logger.Info("[analyze] Sampling the first %d rows of %s", sample, path)
	} else {
		a.logger.Info("[analyze] Loaded %d rows from %s", total, path)
	}
	report.Rows = total
	for i, t := range r.Types() {
		report.Schema = append(report.Schema, models.ColumnType{Column: columns[i], Type: t})
	}

	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c] = i
	}
	yearIdx, hasYear := index[YearColumn]
	priceIdx, priceName := firstPresent(index, priceColumns)
	areaIdx, areaName := firstPresent(index, areaColumns)
	hasRatio := priceIdx >= 0 && areaIdx >= 0
	if hasRatio {
		report.PriceColumn, report.AreaColumn = priceName, areaName
	}

	missing := make([]int64, len(columns))
	counts := make(map[int]map[string]int64)
	for _, c := range categoryColumns {
		if i, ok := index[c]; ok {
			counts[i] = make(map[string]int64)
		}
	}
	var years, ratios []float64

	for done := int64(0); done < total; {
		n := int64(analyzeChunk)
		if total-done < n {
			n = total - done
		}

		chunk := make([][]interface{}, len(columns))
		for i := range columns {
			vals, err := r.ReadColumn(i, n)
			if err != nil {
				return nil, err
			}
			chunk[i] = vals
		}

		for i, vals := range chunk {
			for _, v := range vals {
				if v == nil {
					missing[i]++
				}
			}
			if tally, ok := counts[i]; ok {
				for _, v := range vals {
					s, ok := cellText(v)
					if !ok {
						s = nullLabel
					}
					tally[s]++
				}
			}
		}

		if hasYear {
			for _, v := range chunk[yearIdx] {
				if y, ok := cellNumber(v); ok {
					report.RowsByYear[int(y)]++
					years = append(years, y)
				}
			}
		}

		if hasRatio {
			prices, areas := chunk[priceIdx], chunk[areaIdx]
			for j := 0; j < len(prices) && j < len(areas); j++ {
				p, okP := cellNumber(prices[j])
				s, okA := cellNumber(areas[j])
				if okP && okA && s > 0 {
					ratios = append(ratios, p/s)
				}
			}
		}

		done += n
	}

	report.Missing = topMissing(columns, missing, total)
	for i, tally := range counts {
		report.TopValues[columns[i]] = topValues(tally, topN)
	}
	if hasYear {
		report.Year = Describe(years)
	}
	if hasRatio {
		report.PricePerM2 = Describe(ratios)
	}
	return report, nil
}

func firstPresent(index map[string]int, candidates []string) (int, string) {
	for _, c := range candidates {
		if i, ok := index[c]; ok {
			return i, c
		}
	}
	return -1, ""
}

func cellText(v interface{}) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case []byte:
		return string(t), true
	default:
		return fmt.Sprint(t), true
	}
}

// cellNumber parses numeric cells; French decimal commas are accepted.
func cellNumber(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	}
	s, ok := cellText(v)
	if !ok {
		return 0, false
	}
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func topMissing(columns []string, missing []int64, rows int64) []models.ColumnMissing {
	out := make([]models.ColumnMissing, len(columns))
	for i, c := range columns {
		out[i] = models.ColumnMissing{Column: c, Missing: missing[i]}
		if rows > 0 {
			out[i].Percent = round2(float64(missing[i]) / float64(rows) * 100)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Missing > out[j].Missing
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}

func topValues(tally map[string]int64, n int) []models.ValueCount {
	out := make([]models.ValueCount, 0, len(tally))
	for v, c := range tally {
		out = append(out, models.ValueCount{Value: v, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Describe summarizes values with the sample standard deviation and linearly
// interpolated percentiles. It returns nil for an empty series.
func Describe(values []float64) *models.NumericSummary {
	if len(values) == 0 {
		return nil
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(len(sorted))

	var std float64
	if len(sorted) > 1 {
		var sq float64
		for _, v := range sorted {
			sq += (v - mean) * (v - mean)
		}
		std = math.Sqrt(sq / float64(len(sorted)-1))
	}

	return &models.NumericSummary{
		Count: len(sorted),
		Mean:  mean,
		Std:   std,
		Min:   sorted[0],
		P25:   percentile(sorted, 0.25),
		P50:   percentile(sorted, 0.50),
		P75:   percentile(sorted, 0.75),
		P90:   percentile(sorted, 0.90),
		P99:   percentile(sorted, 0.99),
		Max:   sorted[len(sorted)-1],
	}
}

func percentile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

// Print writes the report in the same boxed layout as the other CLI reports.
func (a *Analyzer) Print(w io.Writer, r *models.AnalysisReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  DVF DATASET SUMMARY\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	fmt.Fprintf(w, "\033[1;33m  Shape and columns\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	label := "Rows"
	if r.Sampled {
		label = "Rows (sampled)"
	}
	fmt.Fprintf(w, "  %-14s : \033[1m%d\033[0m\n", label, r.Rows)
	fmt.Fprintf(w, "  %-14s : \033[1m%d\033[0m\n", "Columns", len(r.Columns))
	fmt.Fprintf(w, "  %s\n\n", strings.Join(r.Columns, ", "))

	if len(r.Schema) > 0 {
		fmt.Fprintf(w, "\033[1;33m  Schema\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		for _, ct := range r.Schema {
			fmt.Fprintf(w, "  %-30s %s\n", truncate(ct.Column, 28), ct.Type)
		}
		fmt.Fprintln(w)
	}

	if len(r.RowsByYear) > 0 {
		fmt.Fprintf(w, "\033[1;33m  Transactions by year\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		years := make([]int, 0, len(r.RowsByYear))
		for y := range r.RowsByYear {
			years = append(years, y)
		}
		sort.Ints(years)
		for _, y := range years {
			fmt.Fprintf(w, "  %d  %d\n", y, r.RowsByYear[y])
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "\033[1;33m  Missingness (top %d)\033[0m\n", topN)
	fmt.Fprintf(w, "  %s\n", thin)
	for _, m := range r.Missing {
		fmt.Fprintf(w, "  %-30s %10d  %6.2f%%\n", truncate(m.Column, 28), m.Missing, m.Percent)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Numeric summary\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if r.Year == nil {
		fmt.Fprintf(w, "  No numeric columns found.\n")
	} else {
		printSummary(w, YearColumn, r.Year)
	}
	fmt.Fprintln(w)

	for _, col := range categoryColumns {
		top, ok := r.TopValues[col]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "\033[1;33m  Top values for %s\033[0m\n", col)
		fmt.Fprintf(w, "  %s\n", thin)
		for _, vc := range top {
			fmt.Fprintf(w, "  %-30s %d\n", truncate(vc.Value, 28), vc.Count)
		}
		fmt.Fprintln(w)
	}

	if r.PricePerM2 != nil {
		fmt.Fprintf(w, "\033[1;33m  Price per m² (%s / %s)\033[0m\n", r.PriceColumn, r.AreaColumn)
		fmt.Fprintf(w, "  %s\n", thin)
		printSummary(w, "price_m2", r.PricePerM2)
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

func printSummary(w io.Writer, name string, s *models.NumericSummary) {
	fmt.Fprintf(w, "  %s: count=%d mean=%.2f std=%.2f min=%.2f\n", name, s.Count, s.Mean, s.Std, s.Min)
	fmt.Fprintf(w, "  %s  25%%=%.2f 50%%=%.2f 75%%=%.2f 90%%=%.2f 99%%=%.2f max=%.2f\n",
		strings.Repeat(" ", len(name)), s.P25, s.P50, s.P75, s.P90, s.P99, s.Max)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// truncate shortens s to at most max runes.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max-3]) + "..."
}
