package geopkg

import "embed"

// EmbedMigrations contains the embedded SQL migration files for the
// GeoPackage base schema.
//
//go:embed migrations/*.sql
var EmbedMigrations embed.FS
