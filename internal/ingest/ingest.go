// Package ingest parses directories of MSCL borehole CSV exports into
// borehole records.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"geopkg-maker/internal/domain"
)

// MSCL exports carry two preamble rows (instrument banner, borehole header
// metadata) before the column header, which sits on the 4th physical row for
// most firmware versions and the 5th for older ones. CSV parsing drops the
// blank spacer rows some exports carry, so the scan starts one row earlier.
const (
	metadataRowIndex = 1
	headerScanFrom   = 2
	headerScanTo     = 4
)

// Synthesized borehole IDs start here when the export leaves the field blank.
const syntheticBoreholeIDBase = 100000

// Skip records one input file that was rejected, with the reason.
type Skip struct {
	Path   string
	Reason string
}

// Result is the outcome of scanning one data directory.
type Result struct {
	Records []domain.BoreholeRecord
	Skipped []Skip
}

// Ingestor scans a data directory for MSCL CSV exports.
type Ingestor struct {
	dataDir string
	colMap  ColumnMap
	logger  *slog.Logger
}

// NewIngestor creates an Ingestor for the given directory.
func NewIngestor(dataDir string, colMap ColumnMap, logger *slog.Logger) *Ingestor {
	return &Ingestor{dataDir: dataDir, colMap: colMap, logger: logger}
}

// Ingest parses every *.csv file in the data directory, in lexical order so
// repeat runs assign the same identifiers. Malformed files are skipped and
// reported in the result; only filesystem-level failures abort the scan.
func (ing *Ingestor) Ingest(ctx context.Context) (*Result, error) {
	pattern := filepath.Join(ing.dataDir, "*.csv")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("scan %q: %w", pattern, err)
	}
	if len(files) == 0 {
		return nil, domain.ErrNotFound("no CSV files found in %q", ing.dataDir)
	}

	res := &Result{}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ing.logger.Info("processing", "file", path)
		rec, err := ing.parseFile(path)
		if err != nil {
			ing.logger.Warn("skipping malformed file", "file", path, "error", err)
			res.Skipped = append(res.Skipped, Skip{Path: path, Reason: err.Error()})
			continue
		}
		rec.Identifier = len(res.Records) + 1
		res.Records = append(res.Records, *rec)
	}

	if len(res.Records) == 0 {
		return nil, domain.ErrValidation("all %d CSV files in %q were malformed", len(res.Skipped), ing.dataDir)
	}
	return res, nil
}

// parseFile reads one export: borehole metadata from the second physical row,
// readings from the columnar section below the header row.
func (ing *Ingestor) parseFile(path string) (*domain.BoreholeRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // preamble rows are ragged

	var rows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		rows = append(rows, row)
	}

	headerIdx, err := findHeaderRow(rows)
	if err != nil {
		return nil, err
	}

	rec, err := parseMetadata(rows)
	if err != nil {
		return nil, err
	}
	rec.SourcePath = path
	if rec.Name == "" {
		rec.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	cols, err := resolveColumns(rows[headerIdx], ing.colMap)
	if err != nil {
		return nil, err
	}

	rec.Readings, rec.Properties = parseReadings(rows[headerIdx+1:], cols)
	return rec, nil
}

// findHeaderRow locates the column header within the preamble window. A row
// qualifies when it has a non-empty first cell and carries a DEPTH column.
func findHeaderRow(rows [][]string) (int, error) {
	for idx := headerScanFrom; idx <= headerScanTo && idx < len(rows); idx++ {
		row := rows[idx]
		if len(row) > 0 && strings.TrimSpace(row[0]) != "" && containsHeader(row, "DEPTH") {
			return idx, nil
		}
	}
	return 0, domain.ErrValidation("cannot find data header in rows %d-%d", headerScanFrom+1, headerScanTo+1)
}

func containsHeader(row []string, name string) bool {
	for _, cell := range row {
		if strings.EqualFold(strings.TrimSpace(cell), name) {
			return true
		}
	}
	return false
}

// parseMetadata extracts the borehole header from the second physical row:
// eleven descriptive cells followed by the borehole number.
func parseMetadata(rows [][]string) (*domain.BoreholeRecord, error) {
	if len(rows) <= metadataRowIndex {
		return nil, domain.ErrValidation("file has no metadata row")
	}
	row := rows[metadataRowIndex]
	if len(row) < 12 {
		return nil, domain.ErrValidation("metadata row has %d fields, want at least 12", len(row))
	}

	lon, err := strconv.ParseFloat(strings.TrimSpace(row[9]), 64)
	if err != nil {
		return nil, domain.ErrValidation("unparsable longitude %q", row[9])
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(row[10]), 64)
	if err != nil {
		return nil, domain.ErrValidation("unparsable latitude %q", row[10])
	}

	boreholeID := metadataRowIndex + syntheticBoreholeIDBase
	if v := strings.TrimSpace(row[11]); v != "" {
		boreholeID, err = strconv.Atoi(v)
		if err != nil {
			return nil, domain.ErrValidation("unparsable borehole id %q", row[11])
		}
	}

	return &domain.BoreholeRecord{
		BoreholeID:        boreholeID,
		Name:              strings.TrimSpace(row[0]),
		MaterialCustodian: strings.TrimSpace(row[1]),
		Description:       strings.TrimSpace(row[2]),
		DrillStartDate:    strings.TrimSpace(row[3]),
		DrillEndDate:      strings.TrimSpace(row[4]),
		Easting:           strings.TrimSpace(row[5]),
		Northing:          strings.TrimSpace(row[6]),
		ElevationM:        parseFloatOrZero(row[7]),
		BoreholeLengthM:   parseFloatOrZero(row[8]),
		Longitude:         lon,
		Latitude:          lat,
		NVCLCollection:    domain.DefaultNVCLCollection,
		DrillingMethod:    domain.DefaultDrillingMethod,
		Driller:           domain.DefaultDriller,
		StartPoint:        domain.DefaultStartPoint,
		InclinationType:   domain.DefaultInclinationType,
		ElevationSRS:      domain.DefaultElevationSRS,
		Operator:          domain.DefaultOperator,
	}, nil
}

func parseFloatOrZero(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// resolveColumns maps each canonical dataset column to its index in the
// header row, trying each alias in order. A column with no matching alias is
// a hard error for the file.
func resolveColumns(header []string, cm ColumnMap) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, cell := range header {
		index[strings.TrimSpace(cell)] = i
	}

	cols := make(map[string]int, len(cm))
	for col, aliases := range cm {
		found := false
		for _, alias := range aliases {
			if i, ok := index[alias]; ok {
				cols[col] = i
				found = true
				break
			}
		}
		if !found {
			return nil, domain.ErrValidation("columns %v missing from file", aliases)
		}
	}
	return cols, nil
}

// parseReadings converts the columnar section into readings and reports which
// property columns are populated at all.
func parseReadings(rows [][]string, cols map[string]int) ([]domain.Reading, []string) {
	readings := make([]domain.Reading, 0, len(rows))
	populated := make(map[string]bool)

	for _, row := range rows {
		if isBlankRow(row) {
			continue
		}
		rd := domain.Reading{
			Depth:                  parseFloatOrZero(cell(row, cols["depth"])),
			DepthPoint:             cell(row, cols["depth_point"]),
			Diameter:               cell(row, cols["diameter"]),
			PWaveAmplitude:         cell(row, cols["p_wave_amplitude"]),
			PWaveVelocity:          cell(row, cols["p_wave_velocity"]),
			Density:                cell(row, cols["density"]),
			MagneticSusceptibility: cell(row, cols["magnetic_susceptibility"]),
			Impedance:              cell(row, cols["impedance"]),
			NaturalGamma:           cell(row, cols["natural_gamma"]),
			Resistivity:            cell(row, cols["resistivity"]),
		}
		readings = append(readings, rd)

		markPopulated(populated, "diameter", rd.Diameter)
		markPopulated(populated, "p_wave_amplitude", rd.PWaveAmplitude)
		markPopulated(populated, "p_wave_velocity", rd.PWaveVelocity)
		markPopulated(populated, "density", rd.Density)
		markPopulated(populated, "magnetic_susceptibility", rd.MagneticSusceptibility)
		markPopulated(populated, "impedance", rd.Impedance)
		markPopulated(populated, "natural_gamma", rd.NaturalGamma)
		markPopulated(populated, "resistivity", rd.Resistivity)
	}

	// Report properties in canonical column order, not map order.
	var props []string
	for _, col := range domain.PropertyColumns {
		if populated[col] {
			props = append(props, col)
		}
	}
	return readings, props
}

func markPopulated(populated map[string]bool, col, value string) {
	if strings.TrimSpace(value) != "" {
		populated[col] = true
	}
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
