// Package testutil provides testing utilities shared by the invsync packages.
package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/afero"

	"github.com/jbctechsolutions/invsync/internal/adapters/sync/sqlite"
	"github.com/jbctechsolutions/invsync/internal/domain/entity"
)

// DataDir is the data directory used with in-memory filesystems.
const DataDir = "/data"

// NewDB opens an in-memory SQLite database with every migration applied.
// The database is closed when the test completes.
func NewDB(t testing.TB) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	if err := sqlite.ApplyMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to apply migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// CollectionPath returns the path of kind's collection file under dir.
func CollectionPath(dir string, kind entity.Kind) string {
	return filepath.Join(dir, kind.Collection()+".json")
}

// WriteCollection writes content as kind's collection file under dir.
// Returns the full path to the created file.
func WriteCollection(t testing.TB, fs afero.Fs, dir string, kind entity.Kind, content string) string {
	t.Helper()
	path := CollectionPath(dir, kind)
	if err := afero.WriteFile(fs, path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write collection %s: %v", path, err)
	}
	return path
}

// ReadCollection returns the raw content of kind's collection file, or
// ok=false when the file does not exist.
func ReadCollection(t testing.TB, fs afero.Fs, dir string, kind entity.Kind) (content string, ok bool) {
	t.Helper()
	path := CollectionPath(dir, kind)
	exists, err := afero.Exists(fs, path)
	if err != nil {
		t.Fatalf("failed to stat collection %s: %v", path, err)
	}
	if !exists {
		return "", false
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatalf("failed to read collection %s: %v", path, err)
	}
	return string(data), true
}

// MustHash returns the content hash of a record, failing the test on error.
func MustHash(t testing.TB, r entity.Record) string {
	t.Helper()
	h, err := r.Payload().Hash()
	if err != nil {
		t.Fatalf("failed to hash %s %s: %v", r.Kind(), r.RecordID(), err)
	}
	return h
}
