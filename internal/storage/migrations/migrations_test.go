package migrations

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	in := `-- header
CREATE TABLE a (x Int32);

-- second
CREATE TABLE b (y String);
`
	got := splitStatements(in)
	assert.Equal(t, []string{"CREATE TABLE a (x Int32)", "CREATE TABLE b (y String)"}, got)
}

func TestValidateNoSemicolonInStrings(t *testing.T) {
	require.NoError(t, validateNoSemicolonInStrings("SELECT 'it''s'; SELECT 1;"))
	require.Error(t, validateNoSemicolonInStrings("SELECT 'a;b'"))
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	for dir, fsys := range map[string]fs.FS{"postgres": PostgresFS, "clickhouse": ClickhouseFS, "sqlite": SQLiteFS} {
		entries, err := fs.ReadDir(fsys, dir)
		require.NoError(t, err, dir)
		assert.NotEmpty(t, entries, dir)
	}

	for _, fsys := range []fs.FS{ClickhouseFS} {
		data, err := fs.ReadFile(fsys, "clickhouse/001_ohlcv_bars.sql")
		require.NoError(t, err)
		require.NoError(t, validateNoSemicolonInStrings(string(data)))
	}
}
