package store

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AndreKoraleski/Youtube-Download-Coordinator/model"
)

func TestCreateTableSQL(t *testing.T) {
	sql := createTableSQL("Workers", model.WorkerColumns)
	assert.Equal(t,
		`CREATE TABLE IF NOT EXISTS "workers" (`+
			`"Hostname" TEXT NOT NULL DEFAULT '', `+
			`"LastSeen" TEXT NOT NULL DEFAULT '', `+
			`"Status" TEXT NOT NULL DEFAULT '')`,
		sql)
}

func TestCreateTableSQLQuotesEveryHeaderColumn(t *testing.T) {
	sql := createTableSQL("Dead-Letter Sources", model.SourceColumns)
	assert.Contains(t, sql, `CREATE TABLE IF NOT EXISTS "dead_letter_sources"`)
	for _, col := range model.SourceColumns {
		assert.Contains(t, sql, `"`+col+`" TEXT NOT NULL DEFAULT ''`)
	}
}

func TestSQLTableName(t *testing.T) {
	assert.Equal(t, "video_tasks", sqlTableName("Video Tasks"))
	assert.Equal(t, "dead_letter_tasks", sqlTableName("Dead-Letter Tasks"))
	assert.Equal(t, "workers", sqlTableName("Workers"))
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"ID"`, quoteIdent("ID"))
	assert.Equal(t, `"odd""name"`, quoteIdent(`odd"name`))
}
