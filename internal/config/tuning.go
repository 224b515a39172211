package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/driftline/odometry.report/internal/vo"
	"github.com/driftline/odometry.report/internal/vo/sparse"
)

// TuningConfig represents the root configuration for tracking and pipeline
// tuning. Fields are pointers so partial JSON files are safe: anything
// omitted falls back to the built-in default through the derived configs.
type TuningConfig struct {
	// Supervisor params
	MinObservations *int     `json:"min_observations,omitempty"`
	MaxDropFraction *float64 `json:"max_drop_fraction,omitempty"`
	TelemetryWindow *int     `json:"telemetry_window,omitempty"`

	// Sparse pipeline params
	MinInitFeatures    *int     `json:"min_init_features,omitempty"`
	MinInitDisparity   *float64 `json:"min_init_disparity,omitempty"`
	MinTrackedFeatures *int     `json:"min_tracked_features,omitempty"`
	RelocMinMatches    *int     `json:"reloc_min_matches,omitempty"`
	KeyframeInterval   *int     `json:"keyframe_interval,omitempty"`
	KeyframeObsRatio   *float64 `json:"keyframe_obs_ratio,omitempty"`
	FocalLength        *float64 `json:"focal_length,omitempty"`

	// Structure refinement budget
	OptimizeMaxPoints *int `json:"optimize_max_points,omitempty"`
	OptimizeMaxIter   *int `json:"optimize_max_iter,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields unset.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must
// have a .json extension and stay under the max file size. Omitted fields
// retain their defaults, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks every provided field against its valid operating range.
func (c *TuningConfig) Validate() error {
	if c.MinObservations != nil && *c.MinObservations < 1 {
		return fmt.Errorf("min_observations must be >= 1, got %d", *c.MinObservations)
	}
	if c.MaxDropFraction != nil && (*c.MaxDropFraction <= 0 || *c.MaxDropFraction >= 1) {
		return fmt.Errorf("max_drop_fraction must be in (0, 1), got %v", *c.MaxDropFraction)
	}
	if c.TelemetryWindow != nil && *c.TelemetryWindow < 1 {
		return fmt.Errorf("telemetry_window must be >= 1, got %d", *c.TelemetryWindow)
	}
	if c.MinInitFeatures != nil && *c.MinInitFeatures < 1 {
		return fmt.Errorf("min_init_features must be >= 1, got %d", *c.MinInitFeatures)
	}
	if c.MinInitDisparity != nil && *c.MinInitDisparity <= 0 {
		return fmt.Errorf("min_init_disparity must be positive, got %v", *c.MinInitDisparity)
	}
	if c.MinTrackedFeatures != nil && *c.MinTrackedFeatures < 1 {
		return fmt.Errorf("min_tracked_features must be >= 1, got %d", *c.MinTrackedFeatures)
	}
	if c.RelocMinMatches != nil && *c.RelocMinMatches < 1 {
		return fmt.Errorf("reloc_min_matches must be >= 1, got %d", *c.RelocMinMatches)
	}
	if c.KeyframeInterval != nil && *c.KeyframeInterval < 1 {
		return fmt.Errorf("keyframe_interval must be >= 1, got %d", *c.KeyframeInterval)
	}
	if c.KeyframeObsRatio != nil && (*c.KeyframeObsRatio <= 0 || *c.KeyframeObsRatio >= 1) {
		return fmt.Errorf("keyframe_obs_ratio must be in (0, 1), got %v", *c.KeyframeObsRatio)
	}
	if c.FocalLength != nil && *c.FocalLength <= 0 {
		return fmt.Errorf("focal_length must be positive, got %v", *c.FocalLength)
	}
	if c.OptimizeMaxPoints != nil && *c.OptimizeMaxPoints < 0 {
		return fmt.Errorf("optimize_max_points must be >= 0, got %d", *c.OptimizeMaxPoints)
	}
	if c.OptimizeMaxIter != nil && *c.OptimizeMaxIter < 0 {
		return fmt.Errorf("optimize_max_iter must be >= 0, got %d", *c.OptimizeMaxIter)
	}
	return nil
}

// HandlerConfig derives the frame-handler configuration, applying defaults
// for anything unset.
func (c *TuningConfig) HandlerConfig() vo.Config {
	cfg := vo.DefaultConfig()
	if c.MinObservations != nil {
		cfg.MinObservations = *c.MinObservations
	}
	if c.MaxDropFraction != nil {
		cfg.MaxDropFraction = *c.MaxDropFraction
	}
	if c.TelemetryWindow != nil {
		cfg.TelemetryWindow = *c.TelemetryWindow
	}
	return cfg
}

// PipelineConfig derives the sparse pipeline configuration, applying
// defaults for anything unset.
func (c *TuningConfig) PipelineConfig() sparse.Config {
	cfg := sparse.DefaultConfig()
	if c.MinInitFeatures != nil {
		cfg.MinInitFeatures = *c.MinInitFeatures
	}
	if c.MinInitDisparity != nil {
		cfg.MinInitDisparity = *c.MinInitDisparity
	}
	if c.MinTrackedFeatures != nil {
		cfg.MinTrackedFeatures = *c.MinTrackedFeatures
	}
	if c.RelocMinMatches != nil {
		cfg.RelocMinMatches = *c.RelocMinMatches
	}
	if c.KeyframeInterval != nil {
		cfg.KeyframeInterval = *c.KeyframeInterval
	}
	if c.KeyframeObsRatio != nil {
		cfg.KeyframeObsRatio = *c.KeyframeObsRatio
	}
	if c.FocalLength != nil {
		cfg.FocalLength = *c.FocalLength
	}
	if c.OptimizeMaxPoints != nil {
		cfg.OptimizeMaxPoints = *c.OptimizeMaxPoints
	}
	if c.OptimizeMaxIter != nil {
		cfg.OptimizeMaxIter = *c.OptimizeMaxIter
	}
	return cfg
}
