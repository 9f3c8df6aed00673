package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSavePagesAndLoadPages(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fetchedAt := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	pages := []Page{
		{
			RunID:      "run-1",
			URL:        "http://a.test",
			FetchedAt:  fetchedAt,
			StatusCode: 200,
			Fields:     Record{"title": "A"},
		},
		{
			RunID:     "run-1",
			URL:       "http://b.test",
			FetchedAt: fetchedAt,
			Error:     "all 4 attempts failed: http://b.test returned 502 Bad Gateway",
		},
	}
	require.NoError(t, db.SavePages(ctx, pages))

	got, err := db.LoadPages(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	require.Equal(t, "http://a.test", got[0].URL)
	require.Equal(t, 200, got[0].StatusCode)
	require.Equal(t, Record{"title": "A"}, got[0].Fields)
	require.Empty(t, got[0].Error)

	require.Equal(t, "http://b.test", got[1].URL)
	require.Nil(t, got[1].Fields)
	require.Contains(t, got[1].Error, "502")
}

func TestLoadPagesFiltersByRun(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SavePages(ctx, []Page{
		{RunID: "run-1", URL: "http://a.test", FetchedAt: time.Now()},
		{RunID: "run-2", URL: "http://b.test", FetchedAt: time.Now()},
	}))

	got, err := db.LoadPages(ctx, "run-2")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "http://b.test", got[0].URL)
}

func TestSavePagesEmpty(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.SavePages(context.Background(), nil))
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "test.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())
	require.Equal(t, path, db.Path())
}
