// Package geopkg writes GeoPackage containers with borehole point-feature
// layers. The container schema, timestamp metadata, and geometry encoding are
// generated here directly so the output matches what the consuming GeoServer
// accepts, with post-write validation guarding both contracts.
package geopkg

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// GeometryColumn is the name of the geometry column in every feature table
// and in gpkg_geometry_columns. GeoServer's GeoPackage reader resolves the
// column case-sensitively, so it must be lower case.
const GeometryColumn = "geom"

// GeoPackage magic numbers written into the SQLite header.
const (
	applicationID = 0x47504B47 // "GPKG"
	userVersion   = 10200      // GeoPackage 1.2
)

// SQLite DSN parameters, matching how the metastore pools are hardened.
const (
	defaultBusyTimeout = "5000" // 5 seconds
	defaultSynchronous = "NORMAL"
)

// Create creates a new GeoPackage file at path: a single-writer SQLite pool
// with the GeoPackage application id stamped and the base schema migrated.
// The file must not already exist.
func Create(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("geopackage %q already exists", path)
	}

	dsn := buildDSN(path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open geopackage %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping geopackage %q: %w", path, err)
	}

	// GeoPackage requirement 2: application_id and user_version pragmas.
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA application_id = %d", applicationID)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set application_id: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", userVersion)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set user_version: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Open opens an existing GeoPackage, for validation.
func Open(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("geopackage %q: %w", path, err)
	}

	db, err := sql.Open("sqlite3", buildDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open geopackage %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping geopackage %q: %w", path, err)
	}
	return db, nil
}

// buildDSN constructs a SQLite DSN with hardened parameters. GeoPackages use
// the default rollback journal: a stray -wal file next to the published
// container would not survive a copy.
func buildDSN(path string) string {
	params := url.Values{}
	params.Set("_busy_timeout", defaultBusyTimeout)
	params.Set("_synchronous", defaultSynchronous)
	params.Set("_foreign_keys", "on")
	return path + "?" + params.Encode()
}
