package repositories_test

import (
	"context"
	"io"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/potholemap/potholemap/internal/sqlite"
	"github.com/potholemap/potholemap/internal/testhelpers"
)

// newTestDB creates a new in-memory database for testing purposes.
func newTestDB(t *testing.T) *sqlite.Database {
	t.Helper()
	dbs, err := sqlite.NewDatabase(context.Background(), ":memory:", testhelpers.NewLogger(io.Discard))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err = dbs.Close(); err != nil {
			t.Error(err)
		}
	})
	return dbs
}

// newMockDB creates a database whose pools are both backed by the same sqlmock connection.
func newMockDB(t *testing.T) (*sqlite.Database, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	db := sqlx.NewDb(conn, "sqlite3")
	return &sqlite.Database{ReadWrite: db, ReadOnly: db}, mock
}
