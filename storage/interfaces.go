package storage

import "dvf-tools/models"

// RecordWriter is the interface any sink for scraped pages must satisfy.
type RecordWriter interface {
	WriteRecords(page int, records []models.Record) error
	Close() error
}
