// Package strategy computes a deterministic next best action from
// aggregate project state: analyze, recommend, optionally execute.
package strategy

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config carries every strategy knob. Zero values fall back to the
// documented defaults, so a partial TOML file or an empty struct both
// behave sensibly.
type Config struct {
	VerifyThreshold        float64 `toml:"verify_threshold"`
	MaxMissions            int     `toml:"max_missions"`
	RunLimit               int     `toml:"run_limit"`
	SynthThreshold         float64 `toml:"synth_threshold"`
	TopK                   int     `toml:"top_k"`
	MaxLinks               int     `toml:"max_links"`
	DensityThreshold       int     `toml:"density_threshold"`
	CoverageLow            float64 `toml:"coverage_low"`
	FindingsLow            int     `toml:"findings_low"`
	MaxFindingsForCoverage int     `toml:"max_findings_for_coverage"`
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		VerifyThreshold:        0.7,
		MaxMissions:            20,
		RunLimit:               5,
		SynthThreshold:         0.78,
		TopK:                   5,
		MaxLinks:               50,
		DensityThreshold:       8,
		CoverageLow:            0.25,
		FindingsLow:            3,
		MaxFindingsForCoverage: 200,
	}
}

// withDefaults fills zero-valued fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.VerifyThreshold <= 0 {
		c.VerifyThreshold = d.VerifyThreshold
	}
	if c.MaxMissions <= 0 {
		c.MaxMissions = d.MaxMissions
	}
	if c.RunLimit <= 0 {
		c.RunLimit = d.RunLimit
	}
	if c.SynthThreshold <= 0 {
		c.SynthThreshold = d.SynthThreshold
	}
	if c.TopK <= 0 {
		c.TopK = d.TopK
	}
	if c.MaxLinks <= 0 {
		c.MaxLinks = d.MaxLinks
	}
	if c.DensityThreshold <= 0 {
		c.DensityThreshold = d.DensityThreshold
	}
	if c.CoverageLow <= 0 {
		c.CoverageLow = d.CoverageLow
	}
	if c.FindingsLow <= 0 {
		c.FindingsLow = d.FindingsLow
	}
	if c.MaxFindingsForCoverage <= 0 {
		c.MaxFindingsForCoverage = d.MaxFindingsForCoverage
	}
	return c
}

// LoadConfig reads a TOML config file over the defaults. A missing
// path returns the defaults unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read strategy config %s: %w", path, err)
	}
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse strategy config %s: %w", path, err)
	}
	return cfg.withDefaults(), nil
}
