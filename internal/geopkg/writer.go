package geopkg

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"geopkg-maker/internal/feature"
)

// Feature layer names registered in gpkg_contents.
const (
	BoreholesTable = "boreholes"
	DatasetsTable  = "datasets"
)

// SRSID is the spatial reference of every layer this writer emits.
const SRSID = 4326

// LastChangeFormat is the gpkg_contents.last_change timestamp layout.
// GeoServer rejects containers whose timestamps lack fractional seconds or
// the "Z" suffix, so this exact layout is a compatibility contract and is
// re-checked by Validate after writing.
const LastChangeFormat = "2006-01-02T15:04:05.000Z"

// Writer emits the borehole feature layers into an open container.
type Writer struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewWriter creates a Writer over a container opened with Create.
func NewWriter(db *sql.DB, logger *slog.Logger) *Writer {
	return &Writer{db: db, logger: logger, now: time.Now}
}

// Write creates the boreholes and datasets layers from the feature table and
// registers them in the GeoPackage metadata tables. The whole write is one
// transaction: a failed run leaves no partially-populated container.
func (w *Writer) Write(ctx context.Context, t *feature.Table) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin geopackage write: %w", err)
	}
	defer tx.Rollback()

	hdr := NewPointGeometryHeader(SRSID)
	lastChange := w.now().UTC().Format(LastChangeFormat)

	if err := w.writeBoreholes(ctx, tx, t, hdr, lastChange); err != nil {
		return err
	}
	if err := w.writeDatasets(ctx, tx, t, hdr, lastChange); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit geopackage write: %w", err)
	}
	w.logger.Info("geopackage layers written", "boreholes", len(t.Rows))
	return nil
}

func (w *Writer) writeBoreholes(ctx context.Context, tx *sql.Tx, t *feature.Table, hdr PointGeometryHeader, lastChange string) error {
	createSQL := fmt.Sprintf(`CREATE TABLE %s (
		fid INTEGER PRIMARY KEY AUTOINCREMENT,
		%s BLOB,
		identifier INTEGER,
		borehole_id INTEGER,
		name TEXT,
		datasetProperties TEXT,
		boreholeMaterialCustodian TEXT,
		description TEXT,
		drillStartDate TEXT,
		drillEndDate TEXT,
		elevation_m REAL,
		boreholeLength_m REAL,
		long REAL,
		lat REAL,
		nvclCollection TEXT,
		drillingMethod TEXT,
		driller TEXT,
		startPoint TEXT,
		inclinationType TEXT,
		elevation_srs TEXT,
		operator TEXT,
		datasetURL TEXT
	)`, BoreholesTable, GeometryColumn)

	if _, err := tx.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("create %s table: %w", BoreholesTable, err)
	}

	insertSQL := fmt.Sprintf(`INSERT INTO %s (
		%s, identifier, borehole_id, name, datasetProperties,
		boreholeMaterialCustodian, description, drillStartDate, drillEndDate,
		elevation_m, boreholeLength_m, long, lat, nvclCollection,
		drillingMethod, driller, startPoint, inclinationType, elevation_srs,
		operator, datasetURL
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		BoreholesTable, GeometryColumn)

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return fmt.Errorf("prepare %s insert: %w", BoreholesTable, err)
	}
	defer stmt.Close()

	env := newEnvelope()
	for _, r := range t.Rows {
		geom := EncodePoint(hdr, r.Longitude, r.Latitude)
		env.extend(r.Longitude, r.Latitude)
		if _, err := stmt.ExecContext(ctx, geom,
			r.Identifier, r.BoreholeID, r.Name, r.DatasetProperties,
			r.MaterialCustodian, r.Description, r.DrillStartDate, r.DrillEndDate,
			r.ElevationM, r.BoreholeLengthM, r.Longitude, r.Latitude,
			r.NVCLCollection, r.DrillingMethod, r.Driller, r.StartPoint,
			r.InclinationType, r.ElevationSRS, r.Operator, r.DatasetURL,
		); err != nil {
			return fmt.Errorf("insert borehole %d: %w", r.Identifier, err)
		}
	}

	return registerLayer(ctx, tx, BoreholesTable, "MSCL borehole locations and dataset links", lastChange, env)
}

func (w *Writer) writeDatasets(ctx context.Context, tx *sql.Tx, t *feature.Table, hdr PointGeometryHeader, lastChange string) error {
	createSQL := fmt.Sprintf(`CREATE TABLE %s (
		fid INTEGER PRIMARY KEY AUTOINCREMENT,
		%s BLOB,
		borehole_header_id INTEGER,
		borehole_id INTEGER,
		depth REAL,
		depth_point TEXT,
		diameter TEXT,
		p_wave_amplitude TEXT,
		p_wave_velocity TEXT,
		density TEXT,
		magnetic_susceptibility TEXT,
		impedance TEXT,
		natural_gamma TEXT,
		resistivity TEXT
	)`, DatasetsTable, GeometryColumn)

	if _, err := tx.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("create %s table: %w", DatasetsTable, err)
	}

	insertSQL := fmt.Sprintf(`INSERT INTO %s (
		%s, borehole_header_id, borehole_id, depth, depth_point, diameter,
		p_wave_amplitude, p_wave_velocity, density, magnetic_susceptibility,
		impedance, natural_gamma, resistivity
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		DatasetsTable, GeometryColumn)

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return fmt.Errorf("prepare %s insert: %w", DatasetsTable, err)
	}
	defer stmt.Close()

	env := newEnvelope()
	var samples int
	for _, r := range t.Rows {
		// Readings carry no position of their own: every sample sits at the
		// owning borehole's collar location.
		geom := EncodePoint(hdr, r.Longitude, r.Latitude)
		env.extend(r.Longitude, r.Latitude)
		for _, rd := range r.Readings {
			if _, err := stmt.ExecContext(ctx, geom,
				r.Identifier, r.BoreholeID, rd.Depth, rd.DepthPoint,
				rd.Diameter, rd.PWaveAmplitude, rd.PWaveVelocity, rd.Density,
				rd.MagneticSusceptibility, rd.Impedance, rd.NaturalGamma,
				rd.Resistivity,
			); err != nil {
				return fmt.Errorf("insert dataset sample for borehole %d: %w", r.Identifier, err)
			}
			samples++
		}
	}
	w.logger.Debug("dataset samples written", "samples", samples)

	return registerLayer(ctx, tx, DatasetsTable, "MSCL petrophysics readings per depth", lastChange, env)
}

// registerLayer records a feature table in gpkg_contents and
// gpkg_geometry_columns.
func registerLayer(ctx context.Context, tx *sql.Tx, table, description, lastChange string, env envelope) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO gpkg_contents
		   (table_name, data_type, identifier, description, last_change, min_x, min_y, max_x, max_y, srs_id)
		 VALUES (?, 'features', ?, ?, ?, ?, ?, ?, ?, ?)`,
		table, table, description, lastChange, env.minX, env.minY, env.maxX, env.maxY, SRSID,
	); err != nil {
		return fmt.Errorf("register %s in gpkg_contents: %w", table, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO gpkg_geometry_columns
		   (table_name, column_name, geometry_type_name, srs_id, z, m)
		 VALUES (?, ?, 'POINT', ?, 0, 0)`,
		table, GeometryColumn, SRSID,
	); err != nil {
		return fmt.Errorf("register %s in gpkg_geometry_columns: %w", table, err)
	}
	return nil
}

type envelope struct {
	minX, minY, maxX, maxY float64
	set                    bool
}

func newEnvelope() envelope { return envelope{} }

func (e *envelope) extend(x, y float64) {
	if !e.set {
		e.minX, e.maxX, e.minY, e.maxY = x, x, y, y
		e.set = true
		return
	}
	if x < e.minX {
		e.minX = x
	}
	if x > e.maxX {
		e.maxX = x
	}
	if y < e.minY {
		e.minY = y
	}
	if y > e.maxY {
		e.maxY = y
	}
}
