// Package teststore provides an isolated, migrated in-memory record store for tests.
package teststore

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/chirino/coaching-service/internal/plugin/store/gormstore"
	"github.com/chirino/coaching-service/internal/plugin/store/sqlite"
)

var counter atomic.Int64

// Open returns a fresh SQLite store that is closed when the test ends.
func Open(tb testing.TB) *gormstore.Store {
	tb.Helper()

	dsn := fmt.Sprintf("file:teststore_%d?mode=memory&cache=shared", counter.Add(1))
	store, err := sqlite.Open(dsn)
	if err != nil {
		tb.Fatalf("open sqlite store: %v", err)
	}
	tb.Cleanup(func() { _ = store.Close() })

	if err := sqlite.Migrate(store.DB()); err != nil {
		tb.Fatalf("migrate sqlite store: %v", err)
	}
	return store
}
