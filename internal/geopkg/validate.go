package geopkg

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"geopkg-maker/internal/domain"
)

// lastChangePattern is the fractional-second UTC ISO-8601 layout GeoServer
// requires in gpkg_contents.last_change.
var lastChangePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z$`)

// Validate re-checks the compatibility contracts of a written container:
// GeoPackage magic, timestamp format, and geometry column casing. A container
// failing any check must not be published, so every finding is a hard error.
func Validate(ctx context.Context, db *sql.DB) error {
	var appID int64
	if err := db.QueryRowContext(ctx, "PRAGMA application_id").Scan(&appID); err != nil {
		return fmt.Errorf("read application_id: %w", err)
	}
	if appID != applicationID {
		return domain.ErrValidation("application_id is %#x, want %#x (GPKG)", appID, applicationID)
	}

	if err := validateTimestamps(ctx, db); err != nil {
		return err
	}
	return validateGeometryColumns(ctx, db)
}

func validateTimestamps(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, "SELECT table_name, last_change FROM gpkg_contents")
	if err != nil {
		return fmt.Errorf("read gpkg_contents: %w", err)
	}
	defer rows.Close()

	var count int
	for rows.Next() {
		var table, lastChange string
		if err := rows.Scan(&table, &lastChange); err != nil {
			return fmt.Errorf("scan gpkg_contents: %w", err)
		}
		if !lastChangePattern.MatchString(lastChange) {
			return domain.ErrValidation(
				"layer %q: last_change %q is not fractional-second UTC ISO-8601", table, lastChange)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate gpkg_contents: %w", err)
	}
	if count == 0 {
		return domain.ErrValidation("gpkg_contents registers no layers")
	}
	return nil
}

func validateGeometryColumns(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, "SELECT table_name, column_name FROM gpkg_geometry_columns")
	if err != nil {
		return fmt.Errorf("read gpkg_geometry_columns: %w", err)
	}

	tables := make(map[string]string)
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			rows.Close()
			return fmt.Errorf("scan gpkg_geometry_columns: %w", err)
		}
		tables[table] = column
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate gpkg_geometry_columns: %w", err)
	}
	rows.Close()

	if len(tables) == 0 {
		return domain.ErrValidation("gpkg_geometry_columns registers no layers")
	}

	for table, column := range tables {
		if column != GeometryColumn {
			return domain.ErrValidation(
				"layer %q: geometry column registered as %q, want %q", table, column, GeometryColumn)
		}
		if err := validateTableGeometryColumn(ctx, db, table); err != nil {
			return err
		}
		if err := validateLayerGeometry(ctx, db, table); err != nil {
			return err
		}
	}
	return nil
}

// validateLayerGeometry decodes one geometry blob from the layer to confirm
// the stored bytes are a well-formed GeoPackage point. An empty layer passes.
func validateLayerGeometry(ctx context.Context, db *sql.DB, table string) error {
	var blob []byte
	err := db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM %q LIMIT 1", GeometryColumn, table)).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read geometry from %q: %w", table, err)
	}
	if _, _, err := DecodePoint(blob); err != nil {
		return domain.ErrValidation("layer %q: stored geometry does not decode: %v", table, err)
	}
	return nil
}

// validateTableGeometryColumn checks the physical table schema agrees with
// the registration: the geometry column exists with its lower-case name. A
// column that differs only in case would still satisfy SQLite lookups but
// breaks the map server's SQL templates.
func validateTableGeometryColumn(ctx context.Context, db *sql.DB, table string) error {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return fmt.Errorf("table_info %q: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name, typ string
			notnull   int
			dflt      sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &pk); err != nil {
			return fmt.Errorf("scan table_info %q: %w", table, err)
		}
		if strings.EqualFold(name, GeometryColumn) {
			if name != GeometryColumn {
				return domain.ErrValidation(
					"layer %q: geometry column is named %q in the table schema, want %q", table, name, GeometryColumn)
			}
			return rows.Err()
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate table_info %q: %w", table, err)
	}
	return domain.ErrValidation("layer %q has no %q column", table, GeometryColumn)
}
