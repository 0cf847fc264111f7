// Package testutil provides shared test helpers: a temporary SQLite cache
// and an in-memory fake of the remote notes service.
package testutil

import (
	"os"
	"testing"

	"github.com/phedlund/cloudnotes/internal/cache"
)

// TestCache creates a temporary SQLite cache that is automatically cleaned up.
func TestCache(t *testing.T) *cache.DB {
	t.Helper()
	f, err := os.CreateTemp("", "cloudnotes-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := cache.Open(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
