package kv

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE kv (
  domain TEXT NOT NULL,
  key    TEXT NOT NULL,
  value  BLOB NOT NULL,
  PRIMARY KEY (domain, key)
);`)
	require.NoError(t, err)
	return db
}

func TestSetAndGet(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "configuration", "serverUrl", []byte("https://h.example")))

	v, err := r.Get(ctx, "configuration", "serverUrl")
	require.NoError(t, err)
	assert.Equal(t, []byte("https://h.example"), v)
}

func TestGet_AbsentReturnsNilNil(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))

	v, err := r.Get(context.Background(), "statistics", "beatCount")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestDomainsAreIsolated(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "configuration", "k", []byte("conf")))
	require.NoError(t, r.Set(ctx, "statistics", "k", []byte("stat")))

	v, err := r.Get(ctx, "configuration", "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("conf"), v)

	m, err := r.List(ctx, "statistics")
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"k": []byte("stat")}, m)
}

func TestSet_Upserts(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "d", "k", []byte("old")))
	require.NoError(t, r.Set(ctx, "d", "k", []byte("new")))

	v, err := r.Get(ctx, "d", "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), v)
}

func TestSetIfAbsent(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	created, err := r.SetIfAbsent(ctx, "keys", "secret", []byte("first"))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = r.SetIfAbsent(ctx, "keys", "secret", []byte("second"))
	require.NoError(t, err)
	assert.False(t, created)

	v, err := r.Get(ctx, "keys", "secret")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), v)
}

func TestDelete_Idempotent(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "d", "x", []byte{1}))
	require.NoError(t, r.Delete(ctx, "d", "x"))
	require.NoError(t, r.Delete(ctx, "d", "x"))

	v, err := r.Get(ctx, "d", "x")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestErrorsAreWrapped(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()
	require.NoError(t, db.Close())

	_, err := r.Get(ctx, "d", "k")
	require.ErrorContains(t, err, "failed to get d[k]")

	err = r.Set(ctx, "d", "k", []byte("v"))
	require.ErrorContains(t, err, "failed to set d[k]")

	_, err = r.SetIfAbsent(ctx, "d", "k", []byte("v"))
	require.ErrorContains(t, err, "failed to insert d[k]")

	err = r.Delete(ctx, "d", "k")
	require.ErrorContains(t, err, "failed to delete d[k]")

	_, err = r.List(ctx, "d")
	require.ErrorContains(t, err, "failed to list d")
}

func TestList_ScanErrorWrapped(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"key", "value"}).
		AddRow("a", []byte("1")).
		RowError(0, errors.New("disk I/O error"))
	mock.ExpectQuery(`SELECT key, value FROM kv`).WithArgs("d").WillReturnRows(rows)

	_, err = NewSQLiteRepository(db).List(context.Background(), "d")
	require.ErrorContains(t, err, "failed to iterate d rows")
	require.NoError(t, mock.ExpectationsWereMet())
}
