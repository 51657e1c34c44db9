package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/starford/arbor/internal/graph"
	"github.com/starford/arbor/internal/store"
)

// OpenStore opens a fresh SQLite store in a temp dir, closed on cleanup.
func OpenStore(t testing.TB) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "arbor-test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// LoadedCache loads db into a new cache.
func LoadedCache(t testing.TB, db *store.DB, opts ...graph.Option) *graph.Cache {
	t.Helper()
	c := graph.New(Logger(), opts...)
	if err := c.Load(context.Background(), db); err != nil {
		t.Fatalf("cache load: %v", err)
	}
	return c
}
