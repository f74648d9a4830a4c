package models

// Record is one flat item scraped from the listing API. Fields keeps the key
// order of the source JSON object; Values holds the stringified scalars.
type Record struct {
	Fields []string
	Values map[string]string
}

// NewRecord builds an empty Record ready for Set.
func NewRecord() Record {
	return Record{Values: make(map[string]string)}
}

// Set appends field (or overwrites it in place when already present).
func (r *Record) Set(field, value string) {
	if r.Values == nil {
		r.Values = make(map[string]string)
	}
	if _, exists := r.Values[field]; !exists {
		r.Fields = append(r.Fields, field)
	}
	r.Values[field] = value
}

// Get returns the value of field and whether it exists.
func (r Record) Get(field string) (string, bool) {
	v, ok := r.Values[field]
	return v, ok
}

// Row returns the values in the order given by header.
func (r Record) Row(header []string) []string {
	row := make([]string, len(header))
	for i, h := range header {
		row[i] = r.Values[h]
	}
	return row
}

// ScrapeSummary reports what one scraper run did.
type ScrapeSummary struct {
	RunID    string
	Requests int
	Pages    int
	Records  int
}
