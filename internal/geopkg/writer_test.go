package geopkg

import (
	"context"
	"log/slog"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geopkg-maker/internal/domain"
	"geopkg-maker/internal/feature"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testTable() *feature.Table {
	return &feature.Table{Rows: []feature.Row{
		{
			BoreholeRecord: domain.BoreholeRecord{
				Identifier:      1,
				BoreholeID:      42,
				Name:            "BH One",
				Longitude:       152.5,
				Latitude:        -27.25,
				ElevationM:      120.5,
				BoreholeLengthM: 15.25,
				Readings: []domain.Reading{
					{Depth: 0.10, DepthPoint: "0.10", Density: "2.1", Resistivity: "55"},
					{Depth: 0.20, DepthPoint: "0.20", Density: "2.2", Resistivity: "57"},
				},
			},
			DatasetProperties: "density,resistivity",
			ZipKey:            "test/bh1.zip",
			DatasetURL:        "https://bucket.s3.ap-southeast-2.amazonaws.com/test/bh1.zip",
		},
		{
			BoreholeRecord: domain.BoreholeRecord{
				Identifier: 2,
				BoreholeID: 43,
				Name:       "BH Two",
				Longitude:  153.0,
				Latitude:   -26.5,
				Readings: []domain.Reading{
					{Depth: 0.10, DepthPoint: "0.10", Density: "1.9"},
				},
			},
			DatasetProperties: "density",
			ZipKey:            "test/bh2.zip",
			DatasetURL:        "https://bucket.s3.ap-southeast-2.amazonaws.com/test/bh2.zip",
		},
	}}
}

func TestWriter_Write(t *testing.T) {
	ctx := context.Background()

	db, _ := CreateTestGeoPackage(t)
	w := NewWriter(db, testLogger())
	w.now = func() time.Time {
		return time.Date(2024, 5, 17, 10, 30, 0, 123_000_000, time.UTC)
	}
	require.NoError(t, w.Write(ctx, testTable()))

	t.Run("borehole_rows", func(t *testing.T) {
		var count int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM boreholes").Scan(&count))
		assert.Equal(t, 2, count)

		var name, url, props string
		var geom []byte
		require.NoError(t, db.QueryRow(
			"SELECT name, datasetURL, datasetProperties, geom FROM boreholes WHERE identifier = 1").
			Scan(&name, &url, &props, &geom))
		assert.Equal(t, "BH One", name)
		assert.Equal(t, "https://bucket.s3.ap-southeast-2.amazonaws.com/test/bh1.zip", url)
		assert.Equal(t, "density,resistivity", props)

		lon, lat, err := DecodePoint(geom)
		require.NoError(t, err)
		assert.Equal(t, 152.5, lon)
		assert.Equal(t, -27.25, lat)
	})

	t.Run("dataset_rows", func(t *testing.T) {
		var count int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM datasets").Scan(&count))
		assert.Equal(t, 3, count)

		// Samples carry the owning borehole's collar position.
		var geom []byte
		var density string
		require.NoError(t, db.QueryRow(
			"SELECT geom, density FROM datasets WHERE borehole_header_id = 2").
			Scan(&geom, &density))
		assert.Equal(t, "1.9", density)
		lon, lat, err := DecodePoint(geom)
		require.NoError(t, err)
		assert.Equal(t, 153.0, lon)
		assert.Equal(t, -26.5, lat)
	})

	t.Run("last_change_format", func(t *testing.T) {
		pattern := regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z$`)

		rows, err := db.Query("SELECT table_name, last_change FROM gpkg_contents")
		require.NoError(t, err)
		defer rows.Close()

		var layers int
		for rows.Next() {
			var table, lastChange string
			require.NoError(t, rows.Scan(&table, &lastChange))
			assert.Regexp(t, pattern, lastChange, "layer %s", table)
			assert.Equal(t, "2024-05-17T10:30:00.123Z", lastChange)
			layers++
		}
		require.NoError(t, rows.Err())
		assert.Equal(t, 2, layers)
	})

	t.Run("geometry_column_lower_case", func(t *testing.T) {
		rows, err := db.Query("SELECT table_name, column_name FROM gpkg_geometry_columns")
		require.NoError(t, err)
		defer rows.Close()

		for rows.Next() {
			var table, column string
			require.NoError(t, rows.Scan(&table, &column))
			assert.Equal(t, "geom", column, "layer %s", table)
		}
		require.NoError(t, rows.Err())
	})

	t.Run("contents_envelope", func(t *testing.T) {
		var minX, minY, maxX, maxY float64
		require.NoError(t, db.QueryRow(
			"SELECT min_x, min_y, max_x, max_y FROM gpkg_contents WHERE table_name = 'boreholes'").
			Scan(&minX, &minY, &maxX, &maxY))
		assert.Equal(t, 152.5, minX)
		assert.Equal(t, -27.25, minY)
		assert.Equal(t, 153.0, maxX)
		assert.Equal(t, -26.5, maxY)
	})

	t.Run("validate_passes", func(t *testing.T) {
		require.NoError(t, Validate(ctx, db))
	})
}

func TestValidate_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("no_layers", func(t *testing.T) {
		db, _ := CreateTestGeoPackage(t)
		err := Validate(ctx, db)
		var validation *domain.ValidationError
		require.ErrorAs(t, err, &validation)
	})

	t.Run("bad_timestamp", func(t *testing.T) {
		db, _ := CreateTestGeoPackage(t)
		w := NewWriter(db, testLogger())
		require.NoError(t, w.Write(ctx, testTable()))

		// The format the upstream library emitted before the fix: no
		// fractional seconds, no Z.
		_, err := db.Exec("UPDATE gpkg_contents SET last_change = '2024-05-17 10:30:00'")
		require.NoError(t, err)

		err = Validate(ctx, db)
		var validation *domain.ValidationError
		require.ErrorAs(t, err, &validation)
		assert.Contains(t, err.Error(), "last_change")
	})

	t.Run("upper_case_geometry_registration", func(t *testing.T) {
		db, _ := CreateTestGeoPackage(t)
		w := NewWriter(db, testLogger())
		require.NoError(t, w.Write(ctx, testTable()))

		_, err := db.Exec("UPDATE gpkg_geometry_columns SET column_name = 'GEOM' WHERE table_name = 'boreholes'")
		require.NoError(t, err)

		err = Validate(ctx, db)
		var validation *domain.ValidationError
		require.ErrorAs(t, err, &validation)
		assert.Contains(t, err.Error(), "geometry column")
	})

	t.Run("corrupt_geometry_blob", func(t *testing.T) {
		db, _ := CreateTestGeoPackage(t)
		w := NewWriter(db, testLogger())
		require.NoError(t, w.Write(ctx, testTable()))

		_, err := db.Exec("UPDATE boreholes SET geom = x'00'")
		require.NoError(t, err)

		err = Validate(ctx, db)
		var validation *domain.ValidationError
		require.ErrorAs(t, err, &validation)
		assert.Contains(t, err.Error(), "geometry")
	})

	t.Run("wrong_application_id", func(t *testing.T) {
		db, _ := CreateTestGeoPackage(t)
		_, err := db.Exec("PRAGMA application_id = 0")
		require.NoError(t, err)

		err = Validate(ctx, db)
		var validation *domain.ValidationError
		require.ErrorAs(t, err, &validation)
	})
}
