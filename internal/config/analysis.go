// Package config holds the analysis configuration surface. The schema
// is a flat JSON file with optional fields; anything omitted falls back
// to the documented default via the Get* accessors, so partial configs
// are safe.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/particle-data/mobility.report/internal/filter"
	"github.com/particle-data/mobility.report/internal/track"
)

// AnalysisConfig is the root configuration for one analysis run. All
// fields are pointers so that "absent" and "explicitly zero" stay
// distinguishable when merging over defaults.
type AnalysisConfig struct {
	// Stage enablement and settings
	DurationThresholdEnabled *bool    `json:"duration_threshold_enabled,omitempty"`
	DurationThreshold        *float64 `json:"duration_threshold,omitempty"`
	SpeedThresholdEnabled    *bool    `json:"speed_threshold_enabled,omitempty"`
	DisplacementEnabled      *bool    `json:"displacement_threshold_enabled,omitempty"`
	LinearityEnabled         *bool    `json:"linearity_threshold_enabled,omitempty"`
	QualityPercentileEnabled *bool    `json:"quality_percentile_enabled,omitempty"`
	QualityPercentile        *float64 `json:"quality_percentile,omitempty"`

	// Per-column flags for the distribution filters, keyed by column name.
	StdFilterColumns map[string]bool `json:"std_filter_columns,omitempty"`
	IQRFilterColumns map[string]bool `json:"iqr_filter_columns,omitempty"`

	// Baseline derivation
	BaselineMultiplier     *float64 `json:"baseline_multiplier,omitempty"`
	SpeedFallbackEnabled   *bool    `json:"speed_fallback_enabled,omitempty"`
	SpeedFallbackThreshold *float64 `json:"speed_fallback_threshold,omitempty"`

	// Output
	SpeedConversion *float64 `json:"speed_conversion,omitempty"` // pixels/frame -> um/s

	// Execution
	Workers *int `json:"workers,omitempty"`
}

// Default returns a config with every field unset, meaning every Get*
// accessor reports its built-in default.
func Default() *AnalysisConfig {
	return &AnalysisConfig{}
}

// Load reads an AnalysisConfig from a JSON file. Omitted fields retain
// their defaults, so partial configs are safe.
func Load(path string) (*AnalysisConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *AnalysisConfig) Validate() error {
	if c.QualityPercentile != nil {
		if *c.QualityPercentile < 0 || *c.QualityPercentile > 100 {
			return fmt.Errorf("quality_percentile must be between 0 and 100, got %f", *c.QualityPercentile)
		}
	}
	if c.DurationThreshold != nil && *c.DurationThreshold < 0 {
		return fmt.Errorf("duration_threshold must be non-negative, got %f", *c.DurationThreshold)
	}
	if c.BaselineMultiplier != nil && *c.BaselineMultiplier < 0 {
		return fmt.Errorf("baseline_multiplier must be non-negative, got %f", *c.BaselineMultiplier)
	}
	if c.SpeedConversion != nil && *c.SpeedConversion <= 0 {
		return fmt.Errorf("speed_conversion must be positive, got %f", *c.SpeedConversion)
	}
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}
	if err := validateColumns("std_filter_columns", c.StdFilterColumns); err != nil {
		return err
	}
	if err := validateColumns("iqr_filter_columns", c.IQRFilterColumns); err != nil {
		return err
	}
	return nil
}

func validateColumns(field string, flags map[string]bool) error {
	for name := range flags {
		known := false
		for _, col := range track.MetricColumns {
			if name == col {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("%s: unknown column %q", field, name)
		}
	}
	return nil
}

// GetDurationThresholdEnabled returns whether the duration stage runs.
func (c *AnalysisConfig) GetDurationThresholdEnabled() bool {
	if c.DurationThresholdEnabled == nil {
		return true
	}
	return *c.DurationThresholdEnabled
}

// GetDurationThreshold returns the minimum track duration in frames.
func (c *AnalysisConfig) GetDurationThreshold() float64 {
	if c.DurationThreshold == nil {
		return 65
	}
	return *c.DurationThreshold
}

// GetSpeedThresholdEnabled returns whether the speed stage runs.
func (c *AnalysisConfig) GetSpeedThresholdEnabled() bool {
	if c.SpeedThresholdEnabled == nil {
		return true
	}
	return *c.SpeedThresholdEnabled
}

// GetDisplacementEnabled returns whether the displacement stage runs.
func (c *AnalysisConfig) GetDisplacementEnabled() bool {
	if c.DisplacementEnabled == nil {
		return false
	}
	return *c.DisplacementEnabled
}

// GetLinearityEnabled returns whether the linearity stage runs.
func (c *AnalysisConfig) GetLinearityEnabled() bool {
	if c.LinearityEnabled == nil {
		return false
	}
	return *c.LinearityEnabled
}

// GetQualityPercentileEnabled returns whether the quality stage runs.
func (c *AnalysisConfig) GetQualityPercentileEnabled() bool {
	if c.QualityPercentileEnabled == nil {
		return false
	}
	return *c.QualityPercentileEnabled
}

// GetQualityPercentile returns the quality percentile cutoff.
func (c *AnalysisConfig) GetQualityPercentile() float64 {
	if c.QualityPercentile == nil {
		return 50
	}
	return *c.QualityPercentile
}

// GetBaselineMultiplier returns how many control standard deviations
// above the control mean the derived speed threshold sits.
func (c *AnalysisConfig) GetBaselineMultiplier() float64 {
	if c.BaselineMultiplier == nil {
		return 0
	}
	return *c.BaselineMultiplier
}

// GetSpeedFallbackEnabled returns whether a configured fallback speed
// threshold substitutes for a failed baseline derivation.
func (c *AnalysisConfig) GetSpeedFallbackEnabled() bool {
	if c.SpeedFallbackEnabled == nil {
		return false
	}
	return *c.SpeedFallbackEnabled
}

// GetSpeedFallbackThreshold returns the fallback speed threshold.
func (c *AnalysisConfig) GetSpeedFallbackThreshold() float64 {
	if c.SpeedFallbackThreshold == nil {
		return 0.042114570268546765
	}
	return *c.SpeedFallbackThreshold
}

// GetSpeedConversion returns the pixels/frame to um/s conversion factor.
func (c *AnalysisConfig) GetSpeedConversion() float64 {
	if c.SpeedConversion == nil {
		return 1.28
	}
	return *c.SpeedConversion
}

// GetWorkers returns how many conditions may be processed concurrently
// once the control condition has completed.
func (c *AnalysisConfig) GetWorkers() int {
	if c.Workers == nil {
		return 4
	}
	return *c.Workers
}

// FilterParams assembles the immutable per-run filter parameters from
// this configuration and a derived threshold set.
func (c *AnalysisConfig) FilterParams(thresholds filter.ThresholdSet) filter.Params {
	return filter.Params{
		Duration: filter.DurationParams{
			Enabled:   c.GetDurationThresholdEnabled(),
			Threshold: c.GetDurationThreshold(),
		},
		SpeedEnabled:        c.GetSpeedThresholdEnabled(),
		DisplacementEnabled: c.GetDisplacementEnabled(),
		LinearityEnabled:    c.GetLinearityEnabled(),
		Quality: filter.QualityParams{
			Enabled:    c.GetQualityPercentileEnabled(),
			Percentile: c.GetQualityPercentile(),
		},
		StdColumns: c.StdFilterColumns,
		IQRColumns: c.IQRFilterColumns,
		Thresholds: thresholds,
	}
}
