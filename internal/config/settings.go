// Package config defines EngineSettings, the histogram engine's tunable
// knobs: RawSettings has optional pointer fields, and Resolve supplies the
// documented default for each nil field, so partial JSON configs are safe.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// HistogramVariant names the histogram variant. The engine reads it only to
// decide whether the grid excluded-volume channels are built (the two
// monolithic_MT_FF_grid variants); it does not choose between manager types.
type HistogramVariant string

const (
	VariantMonolithic              HistogramVariant = "monolithic"
	VariantMonolithicMT             HistogramVariant = "monolithic_MT"
	VariantMonolithicMTFFAvg        HistogramVariant = "monolithic_MT_FF_avg"
	VariantMonolithicMTFFExplicit   HistogramVariant = "monolithic_MT_FF_explicit"
	VariantMonolithicMTFFGrid       HistogramVariant = "monolithic_MT_FF_grid"
	VariantMonolithicMTFFGridSurf   HistogramVariant = "monolithic_MT_FF_grid_surface"
	VariantPartial                  HistogramVariant = "partial"
	VariantPartialMT                HistogramVariant = "partial_MT"
	VariantSymmetryMT               HistogramVariant = "symmetry_MT"
	VariantPartialSymmetryMT        HistogramVariant = "partial_symmetry_MT"
)

// RawSettings is the JSON wire shape: every field optional so a config file
// can override only what it cares about.
type RawSettings struct {
	BinWidthAngstrom   *float64          `json:"bin_width_angstrom,omitempty"`
	DMaxAngstrom       *float64          `json:"d_max_angstrom,omitempty"`
	QMin               *float64          `json:"q_min,omitempty"`
	QMax               *float64          `json:"q_max,omitempty"`
	QPoints            *int              `json:"q_points,omitempty"`
	HistogramVariant   *HistogramVariant `json:"histogram_variant,omitempty"`
	WeightedBins       *bool             `json:"weighted_bins,omitempty"`
	VariableBinWidth   *bool             `json:"variable_bin_width,omitempty"`
	Threads            *int              `json:"threads,omitempty"`
	JobSize            *int              `json:"job_size,omitempty"`
	VoxelWidthAngstrom *float64          `json:"voxel_width_angstrom,omitempty"`
	WaterDensity       *float64          `json:"water_density,omitempty"`
}

// EngineSettings is the resolved (no-nil) configuration a histogram manager
// is built from.
type EngineSettings struct {
	BinWidthAngstrom   float64
	DMaxAngstrom       float64
	QMin               float64
	QMax               float64
	QPoints            int
	HistogramVariant   HistogramVariant
	WeightedBins       bool
	VariableBinWidth   bool
	Threads            int
	JobSize            int
	VoxelWidthAngstrom float64
	WaterDensity       float64
}

// Default returns the documented default settings.
func Default() EngineSettings {
	return EngineSettings{
		BinWidthAngstrom:   0.1,
		DMaxAngstrom:       500,
		QMin:               1e-4,
		QMax:               1.0,
		QPoints:            1000,
		HistogramVariant:   VariantMonolithic,
		WeightedBins:       false,
		VariableBinWidth:   false,
		Threads:            runtime.NumCPU(),
		JobSize:            200,
		VoxelWidthAngstrom: 1,
		WaterDensity:       0.334,
	}
}

// Resolve merges raw (possibly partial) settings onto the documented
// defaults.
func Resolve(raw *RawSettings) EngineSettings {
	s := Default()
	if raw == nil {
		return s
	}
	if raw.BinWidthAngstrom != nil {
		s.BinWidthAngstrom = *raw.BinWidthAngstrom
	}
	if raw.DMaxAngstrom != nil {
		s.DMaxAngstrom = *raw.DMaxAngstrom
	}
	if raw.QMin != nil {
		s.QMin = *raw.QMin
	}
	if raw.QMax != nil {
		s.QMax = *raw.QMax
	}
	if raw.QPoints != nil {
		s.QPoints = *raw.QPoints
	}
	if raw.HistogramVariant != nil {
		s.HistogramVariant = *raw.HistogramVariant
	}
	if raw.WeightedBins != nil {
		s.WeightedBins = *raw.WeightedBins
	}
	if raw.VariableBinWidth != nil {
		s.VariableBinWidth = *raw.VariableBinWidth
	}
	if raw.Threads != nil {
		s.Threads = *raw.Threads
	}
	if raw.JobSize != nil {
		s.JobSize = *raw.JobSize
	}
	if raw.VoxelWidthAngstrom != nil {
		s.VoxelWidthAngstrom = *raw.VoxelWidthAngstrom
	}
	if raw.WaterDensity != nil {
		s.WaterDensity = *raw.WaterDensity
	}
	return s
}

// LoadFile loads RawSettings from a JSON file, validating the extension and
// a conservative size cap before parsing.
func LoadFile(path string) (*RawSettings, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config: settings file must have .json extension, got %q", ext)
	}
	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("config: failed to stat settings file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config: settings file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read settings file: %w", err)
	}
	raw := &RawSettings{}
	if err := json.Unmarshal(data, raw); err != nil {
		return nil, fmt.Errorf("config: failed to parse settings JSON: %w", err)
	}
	return raw, nil
}

// Validate checks that resolved settings satisfy the documented ranges.
func (s EngineSettings) Validate() error {
	if s.BinWidthAngstrom <= 0 {
		return fmt.Errorf("config: bin_width_angstrom must be positive, got %f", s.BinWidthAngstrom)
	}
	if s.DMaxAngstrom <= 0 {
		return fmt.Errorf("config: d_max_angstrom must be positive, got %f", s.DMaxAngstrom)
	}
	if s.QMin <= 0 || s.QMax <= s.QMin {
		return fmt.Errorf("config: q_min/q_max invalid, got [%f, %f]", s.QMin, s.QMax)
	}
	if s.QPoints < 2 {
		return fmt.Errorf("config: q_points must be >= 2, got %d", s.QPoints)
	}
	if s.Threads < 1 {
		return fmt.Errorf("config: threads must be >= 1, got %d", s.Threads)
	}
	if s.JobSize < 1 {
		return fmt.Errorf("config: job_size must be >= 1, got %d", s.JobSize)
	}
	if s.VoxelWidthAngstrom <= 0 {
		return fmt.Errorf("config: voxel_width_angstrom must be positive, got %f", s.VoxelWidthAngstrom)
	}
	if s.WaterDensity <= 0 {
		return fmt.Errorf("config: water_density must be positive, got %f", s.WaterDensity)
	}
	return nil
}

// NBins returns the number of distance-axis bins implied by DMaxAngstrom and
// BinWidthAngstrom.
func (s EngineSettings) NBins() int {
	return int(s.DMaxAngstrom/s.BinWidthAngstrom) + 1
}

// WithBinWidthAngstrom overrides the distance-axis bin width, mirroring the
// teacher's BackgroundConfig.With* fluent overrides.
func (s *EngineSettings) WithBinWidthAngstrom(v float64) *EngineSettings {
	s.BinWidthAngstrom = v
	return s
}

// WithDMaxAngstrom overrides the distance-axis cutoff.
func (s *EngineSettings) WithDMaxAngstrom(v float64) *EngineSettings {
	s.DMaxAngstrom = v
	return s
}

// WithQAxis overrides the q-axis bounds and point count in one call.
func (s *EngineSettings) WithQAxis(qMin, qMax float64, qPoints int) *EngineSettings {
	s.QMin, s.QMax, s.QPoints = qMin, qMax, qPoints
	return s
}

// WithHistogramVariant overrides the selected histogram-manager variant.
func (s *EngineSettings) WithHistogramVariant(v HistogramVariant) *EngineSettings {
	s.HistogramVariant = v
	return s
}

// WithWeightedBins toggles empirical-mean-distance weighting within a bin.
func (s *EngineSettings) WithWeightedBins(enabled bool) *EngineSettings {
	s.WeightedBins = enabled
	return s
}

// WithVariableBinWidth sets the variable_bin_width flag. No part of the
// engine reads it; the distance axis is always fixed-width.
func (s *EngineSettings) WithVariableBinWidth(enabled bool) *EngineSettings {
	s.VariableBinWidth = enabled
	return s
}

// WithThreads overrides the calculator worker-pool size.
func (s *EngineSettings) WithThreads(n int) *EngineSettings {
	s.Threads = n
	return s
}

// WithJobSize overrides the number of atoms the calculator assigns to one job.
func (s *EngineSettings) WithJobSize(n int) *EngineSettings {
	s.JobSize = n
	return s
}

// WithVoxelWidthAngstrom overrides the grid excluded-volume voxel width.
func (s *EngineSettings) WithVoxelWidthAngstrom(v float64) *EngineSettings {
	s.VoxelWidthAngstrom = v
	return s
}

// WithWaterDensity overrides the bulk-water density used by the grid
// excluded-volume model.
func (s *EngineSettings) WithWaterDensity(v float64) *EngineSettings {
	s.WaterDensity = v
	return s
}
