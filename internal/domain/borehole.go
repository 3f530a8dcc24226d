package domain

// Defaults emitted for WFS attributes the MSCL export does not carry.
// These match what the downstream GeoServer layer expects for NVCL-style
// borehole features.
const (
	DefaultNVCLCollection  = "false"
	DefaultDrillingMethod  = "unknown"
	DefaultDriller         = "unknown"
	DefaultStartPoint      = "natural ground surface"
	DefaultInclinationType = "vertical"
	DefaultElevationSRS    = "http://www.opengis.net/def/crs/EPSG/0/5711"
	DefaultOperator        = "unknown"
)

// BoreholeRecord is the parsed header metadata of one MSCL CSV export.
// One record is produced per well-formed input file and is immutable after
// parse.
type BoreholeRecord struct {
	// SourcePath is the CSV file this record was parsed from.
	SourcePath string

	// Identifier is assigned sequentially (from 1) in ingest order and links
	// a borehole feature to its readings.
	Identifier int

	// BoreholeID is the instrument-reported borehole number. Not guaranteed
	// unique across files; synthesized when the export leaves it blank.
	BoreholeID int

	Name              string
	MaterialCustodian string
	Description       string
	DrillStartDate    string
	DrillEndDate      string
	Easting           string
	Northing          string
	ElevationM        float64
	BoreholeLengthM   float64
	Longitude         float64
	Latitude          float64

	// Fixed WFS attributes, filled with the Default* constants.
	NVCLCollection  string
	DrillingMethod  string
	Driller         string
	StartPoint      string
	InclinationType string
	ElevationSRS    string
	Operator        string

	// Readings holds the per-depth petrophysics samples from the same file.
	Readings []Reading

	// Properties lists which petrophysics columns carried at least one
	// non-empty value (depth columns excluded).
	Properties []string
}

// Reading is one depth sample of MSCL petrophysics measurements. Values are
// kept as strings: the instrument emits blanks and sentinel text for missing
// samples, and the container stores them as text columns.
type Reading struct {
	Depth                  float64
	DepthPoint             string
	Diameter               string
	PWaveAmplitude         string
	PWaveVelocity          string
	Density                string
	MagneticSusceptibility string
	Impedance              string
	NaturalGamma           string
	Resistivity            string
}

// PropertyColumns is the canonical order of petrophysics property columns in
// the datasets layer, excluding the depth columns.
var PropertyColumns = []string{
	"diameter",
	"p_wave_amplitude",
	"p_wave_velocity",
	"density",
	"magnetic_susceptibility",
	"impedance",
	"natural_gamma",
	"resistivity",
}
