package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dvf-tools/models"
)

func TestBuildInsertPlaceholders(t *testing.T) {
	batch := []models.Record{
		record("id", "a", "price", "1"),
		record("id", "b", "price", "2"),
	}

	query, args, err := buildInsert("run-1", 3, 10, batch)
	require.NoError(t, err)

	assert.Contains(t, query, "INSERT INTO scraped_records (run_id, page, position, payload)")
	assert.Contains(t, query, "($1,$2,$3,$4),($5,$6,$7,$8)")
	require.Len(t, args, 8)
	assert.Equal(t, []interface{}{"run-1", 3, 10}, args[0:3])
	assert.Equal(t, []interface{}{"run-1", 3, 11}, args[4:7])
	assert.JSONEq(t, `{"id":"a","price":"1"}`, args[3].(string))
	assert.JSONEq(t, `{"id":"b","price":"2"}`, args[7].(string))
}

func TestBuildInsertSingleRow(t *testing.T) {
	query, args, err := buildInsert("run-2", 1, 0, []models.Record{record("k", "v")})
	require.NoError(t, err)
	assert.Len(t, args, 4)
	assert.Contains(t, query, "($1,$2,$3,$4)")
	assert.False(t, strings.Contains(query, "$5"))
}
