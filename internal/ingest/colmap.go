package ingest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ColumnMap maps a canonical dataset column to the header names it may
// appear under in an MSCL export. Aliases are tried in order; the first one
// present in the file wins.
type ColumnMap map[string][]string

// DefaultColumnMap returns the alias map for the MSCL exports this tool was
// written against. Several instruments abbreviate headers differently, hence
// the double entries.
func DefaultColumnMap() ColumnMap {
	return ColumnMap{
		"depth":                   {"DEPTH"},
		"depth_point":             {"DEPTH"},
		"diameter":                {"DIAMETER"},
		"p_wave_amplitude":        {"P-WAVE AMP.", "P-WAVE AMPLITUDE"},
		"p_wave_velocity":         {"P-WAVE VEL.", "P-WAVE VELOCITY"},
		"density":                 {"DENSITY"},
		"magnetic_susceptibility": {"MAG. SUS", "MAG. SUSC."},
		"impedance":               {"IMPEDANCE"},
		"natural_gamma":           {"N. GAMMA", "NAT. GAMMA"},
		"resistivity":             {"RESISTIVITY"},
	}
}

// LoadColumnMap reads a YAML alias map from path and merges it over the
// defaults. Only the listed columns are overridden; unknown columns are
// rejected so a typo doesn't silently drop a measurement.
func LoadColumnMap(path string) (ColumnMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read column map %q: %w", path, err)
	}

	var overrides map[string][]string
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse column map %q: %w", path, err)
	}

	cm := DefaultColumnMap()
	for col, aliases := range overrides {
		if _, ok := cm[col]; !ok {
			return nil, fmt.Errorf("column map %q: unknown column %q", path, col)
		}
		if len(aliases) == 0 {
			return nil, fmt.Errorf("column map %q: column %q has no aliases", path, col)
		}
		cm[col] = aliases
	}
	return cm, nil
}
