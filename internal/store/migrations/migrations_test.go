package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpannerDDL(t *testing.T) {
	stmts := SpannerDDL()
	assert.Len(t, stmts, 6)
	for _, s := range stmts {
		assert.False(t, strings.HasSuffix(s, ";"))
		assert.True(t, strings.HasPrefix(s, "CREATE "), s)
	}
}

func TestEmbeddedSQLPresent(t *testing.T) {
	for _, name := range []string{"postgres/000001_init.up.sql", "sqlite/000001_init.up.sql"} {
		fsys := postgresFS
		if strings.HasPrefix(name, "sqlite/") {
			fsys = sqliteFS
		}
		b, err := fsys.ReadFile(name)
		assert.NoError(t, err, name)
		assert.Contains(t, string(b), "processed_tasks")
	}
}
