// Package feature builds the feature table that links borehole records to
// their published dataset archives.
package feature

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"geopkg-maker/internal/domain"
)

// Header is the column layout of the intermediate features CSV.
var Header = []string{
	"identifier", "borehole_id", "name", "boreholeMaterialCustodian",
	"description", "drillStartDate", "drillEndDate", "easting", "northing",
	"elevation_m", "boreholeLength_m", "long", "lat",
	"nvclCollection", "drillingMethod", "driller", "startPoint",
	"inclinationType", "elevation_srs", "operator", "datasetURL",
}

// Row is one borehole feature with its derived dataset attributes.
type Row struct {
	domain.BoreholeRecord

	// DatasetProperties is the comma-joined list of populated petrophysics
	// columns, surfaced as a feature attribute so map clients can tell which
	// measurements a dataset actually carries.
	DatasetProperties string

	// ZipKey is the object-store key of the borehole's archive, relative to
	// the bucket folder (e.g. "test/bh1.zip").
	ZipKey string

	// DatasetURL is the public URL the archive will be reachable under.
	DatasetURL string
}

// Table is the ordered collection of borehole feature rows.
type Table struct {
	Rows []Row
}

// Builder derives feature rows from borehole records.
type Builder struct {
	baseURL   string // public bucket prefix, always "/"-terminated
	keyPrefix string // object-store key prefix the archives upload under
	logger    *slog.Logger
}

// NewBuilder creates a Builder. baseURL is the public bucket prefix the
// dataset URLs are formed under. Archive keys are derived from the base
// URL's path, so the URL recorded in the container and the uploaded object
// always share one path; folder is used only when no base URL is configured.
func NewBuilder(baseURL, folder string, logger *slog.Logger) *Builder {
	if baseURL != "" && !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	prefix := folder
	if baseURL != "" {
		if u, err := url.Parse(baseURL); err == nil {
			prefix = strings.Trim(u.Path, "/")
			if prefix != folder {
				logger.Warn("bucket folder differs from base URL path; archive keys follow the URL",
					"folder", folder, "url_path", prefix)
			}
		}
	}
	return &Builder{baseURL: baseURL, keyPrefix: prefix, logger: logger}
}

// Build assembles the feature table. Identifier or archive-key collisions are
// conflicts: the output schema keys on them, so an ambiguous run must abort
// rather than silently overwrite.
func (b *Builder) Build(records []domain.BoreholeRecord) (*Table, error) {
	seenID := make(map[int]string, len(records))
	seenKey := make(map[string]string, len(records))

	t := &Table{Rows: make([]Row, 0, len(records))}
	for _, rec := range records {
		if prev, ok := seenID[rec.Identifier]; ok {
			return nil, domain.ErrConflict("identifier %d assigned to both %q and %q", rec.Identifier, prev, rec.SourcePath)
		}
		seenID[rec.Identifier] = rec.SourcePath

		zipName := strings.TrimSuffix(filepath.Base(rec.SourcePath), filepath.Ext(rec.SourcePath)) + ".zip"
		key := zipName
		if b.keyPrefix != "" {
			key = b.keyPrefix + "/" + zipName
		}
		if prev, ok := seenKey[key]; ok {
			return nil, domain.ErrConflict("archive key %q produced by both %q and %q", key, prev, rec.SourcePath)
		}
		seenKey[key] = rec.SourcePath

		t.Rows = append(t.Rows, Row{
			BoreholeRecord:    rec,
			DatasetProperties: strings.Join(rec.Properties, ","),
			ZipKey:            key,
			DatasetURL:        b.baseURL + zipName,
		})
	}

	b.logger.Info("feature table built", "boreholes", len(t.Rows))
	return t, nil
}

// WriteCSV persists the table as the intermediate features file. The file is
// staged under a temporary name and renamed into place so a crashed run never
// leaves a half-written features.csv behind.
func (t *Table) WriteCSV(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %q: %w", tmp, err)
	}

	if err := writeRows(f, t); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write %q: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %q: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %q: %w", path, err)
	}
	return nil
}

func writeRows(f *os.File, t *Table) error {
	write := func(fields []string) error {
		// Quote every field, matching what the consuming tooling was
		// written against.
		quoted := make([]string, len(fields))
		for i, v := range fields {
			quoted[i] = `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
		}
		_, err := fmt.Fprintln(f, strings.Join(quoted, ","))
		return err
	}

	if err := write(Header); err != nil {
		return err
	}
	for _, r := range t.Rows {
		fields := []string{
			strconv.Itoa(r.Identifier),
			strconv.Itoa(r.BoreholeID),
			r.Name,
			r.MaterialCustodian,
			r.Description,
			r.DrillStartDate,
			r.DrillEndDate,
			r.Easting,
			r.Northing,
			formatFloat(r.ElevationM),
			formatFloat(r.BoreholeLengthM),
			formatFloat(r.Longitude),
			formatFloat(r.Latitude),
			r.NVCLCollection,
			r.DrillingMethod,
			r.Driller,
			r.StartPoint,
			r.InclinationType,
			r.ElevationSRS,
			r.Operator,
			r.DatasetURL,
		}
		if err := write(fields); err != nil {
			return err
		}
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
