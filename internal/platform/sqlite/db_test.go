package sqlite

import (
	"context"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInMemoryDB(t *testing.T) {
	db, err := NewInMemoryDB(context.Background())
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)

	_, err = db.Exec("INSERT INTO t (id) VALUES (1)")
	require.NoError(t, err)

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM t").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestNewTestDB(t *testing.T) {
	db, path, err := NewTestDB(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, path)

	_, err = db.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)

	require.NoError(t, CleanupTestDB(db, path))
}

func TestNewDB_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	db, err := NewDB(context.Background(), dir+"/nested/app.db")
	require.NoError(t, err)
	defer db.Close()

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", strings.ToLower(mode))
}

func TestBuildMigrateURL(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("path layout differs on windows")
	}

	url, err := BuildMigrateURL("/tmp/app.db")
	require.NoError(t, err)
	assert.Equal(t, "sqlite:///tmp/app.db", url)

	url, err = BuildMigrateURL("relative.db")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "sqlite:///"))
}
