// Package storetest opens throwaway in-memory record stores for tests.
package storetest

import (
	"io"
	"log/slog"
	"testing"

	"github.com/dukerupert/fampulse/internal/database"
	"github.com/dukerupert/fampulse/internal/recordstore"
)

// New returns a migrated in-memory SQLStore closed at test cleanup.
func New(t testing.TB, opts ...recordstore.Option) *recordstore.SQLStore {
	t.Helper()
	db, err := database.Open(database.SQLite, ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return recordstore.NewSQLStore(db, database.SQLite, Logger(), opts...)
}

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
