package geopkg

import (
	"database/sql"
	"path/filepath"
	"testing"
)

// CreateTestGeoPackage creates a fresh migrated container in t.TempDir() and
// registers cleanup. Returns the pool and the file path.
func CreateTestGeoPackage(t *testing.T) (*sql.DB, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.gpkg")

	db, err := Create(path)
	if err != nil {
		t.Fatalf("create test geopackage: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	return db, path
}
