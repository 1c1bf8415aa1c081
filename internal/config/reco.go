package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/trackreco/internal/reco"
	"github.com/banshee-data/trackreco/internal/reco/linefit"
)

// DefaultConfigPath is the path to the canonical reconstruction defaults file.
const DefaultConfigPath = "config/reco.defaults.json"

// RecoConfig is the on-disk reconstruction configuration. Every field is
// optional; the Get* accessors supply the default for unset fields so partial
// files are safe.
type RecoConfig struct {
	// Fit params
	Sigma                *float64 `json:"sigma,omitempty"` // mm
	NominalSlopeGuess    *float64 `json:"nominal_slope_guess,omitempty"`
	FitMaxIterations     *int     `json:"fit_max_iterations,omitempty"`
	FitGradientThreshold *float64 `json:"fit_gradient_threshold,omitempty"`

	// Search params
	MinLayers         *int `json:"min_layers,omitempty"`
	MaxHitsPerChamber *int `json:"max_hits_per_chamber,omitempty"` // 0 disables the guard

	// Dispatch params
	Workers  *int  `json:"workers,omitempty"` // 0 selects NumCPU-2
	Parallel *bool `json:"parallel,omitempty"`

	// Export cuts
	DriftTimeMin *float64 `json:"drift_time_min,omitempty"` // ns
	DriftTimeMax *float64 `json:"drift_time_max,omitempty"` // ns
	DWireHitMax  *float64 `json:"d_wire_hit_max,omitempty"` // mm
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyRecoConfig returns a RecoConfig with all fields unset.
func EmptyRecoConfig() *RecoConfig {
	return &RecoConfig{}
}

// DefaultRecoConfig returns a RecoConfig with every field set to its default.
func DefaultRecoConfig() *RecoConfig {
	return &RecoConfig{
		Sigma:                ptrFloat64(linefit.DefaultSigma),
		NominalSlopeGuess:    ptrFloat64(linefit.DefaultNominalSlope),
		FitMaxIterations:     ptrInt(linefit.DefaultMaxIterations),
		FitGradientThreshold: ptrFloat64(linefit.DefaultGradientThreshold),
		MinLayers:            ptrInt(reco.DefaultMinLayers),
		MaxHitsPerChamber:    ptrInt(0),
		Workers:              ptrInt(0),
		Parallel:             ptrBool(true),
		DriftTimeMin:         ptrFloat64(-200),
		DriftTimeMax:         ptrFloat64(600),
		DWireHitMax:          ptrFloat64(21),
	}
}

// LoadRecoConfig loads a RecoConfig from a JSON file.
// The file must have a .json extension and be at most 1MB.
func LoadRecoConfig(path string) (*RecoConfig, error) {
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

	cfg := EmptyRecoConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded, intended
// for test setup.
func MustLoadDefaultConfig() *RecoConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/reco/search/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadRecoConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configured values are usable.
func (c *RecoConfig) Validate() error {
	if c.Sigma != nil && *c.Sigma <= 0 {
		return fmt.Errorf("sigma must be positive, got %g", *c.Sigma)
	}
	if c.NominalSlopeGuess != nil && *c.NominalSlopeGuess == 0 {
		return fmt.Errorf("nominal_slope_guess must be non-zero")
	}
	if c.FitMaxIterations != nil && *c.FitMaxIterations < 1 {
		return fmt.Errorf("fit_max_iterations must be at least 1, got %d", *c.FitMaxIterations)
	}
	if c.FitGradientThreshold != nil && *c.FitGradientThreshold <= 0 {
		return fmt.Errorf("fit_gradient_threshold must be positive, got %g", *c.FitGradientThreshold)
	}
	if c.MinLayers != nil {
		if *c.MinLayers < reco.DefaultMinLayers || *c.MinLayers > 4 {
			return fmt.Errorf("min_layers must be between %d and 4, got %d", reco.DefaultMinLayers, *c.MinLayers)
		}
	}
	if c.MaxHitsPerChamber != nil && *c.MaxHitsPerChamber < 0 {
		return fmt.Errorf("max_hits_per_chamber must be non-negative, got %d", *c.MaxHitsPerChamber)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	if c.GetDriftTimeMin() >= c.GetDriftTimeMax() {
		return fmt.Errorf("drift_time_min (%g) must be below drift_time_max (%g)", c.GetDriftTimeMin(), c.GetDriftTimeMax())
	}
	if c.DWireHitMax != nil && *c.DWireHitMax <= 0 {
		return fmt.Errorf("d_wire_hit_max must be positive, got %g", *c.DWireHitMax)
	}
	return nil
}

// GetSigma returns the sigma value or the default.
func (c *RecoConfig) GetSigma() float64 {
	if c.Sigma == nil {
		return linefit.DefaultSigma
	}
	return *c.Sigma
}

// GetNominalSlopeGuess returns the nominal_slope_guess value or the default.
func (c *RecoConfig) GetNominalSlopeGuess() float64 {
	if c.NominalSlopeGuess == nil {
		return linefit.DefaultNominalSlope
	}
	return *c.NominalSlopeGuess
}

// GetFitMaxIterations returns the fit_max_iterations value or the default.
func (c *RecoConfig) GetFitMaxIterations() int {
	if c.FitMaxIterations == nil {
		return linefit.DefaultMaxIterations
	}
	return *c.FitMaxIterations
}

// GetFitGradientThreshold returns the fit_gradient_threshold value or the default.
func (c *RecoConfig) GetFitGradientThreshold() float64 {
	if c.FitGradientThreshold == nil {
		return linefit.DefaultGradientThreshold
	}
	return *c.FitGradientThreshold
}

// GetMinLayers returns the min_layers value or the default.
func (c *RecoConfig) GetMinLayers() int {
	if c.MinLayers == nil {
		return reco.DefaultMinLayers
	}
	return *c.MinLayers
}

// GetMaxHitsPerChamber returns the max_hits_per_chamber value or the default.
func (c *RecoConfig) GetMaxHitsPerChamber() int {
	if c.MaxHitsPerChamber == nil {
		return 0 // default: unlimited
	}
	return *c.MaxHitsPerChamber
}

// GetWorkers returns the workers value or the default.
func (c *RecoConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetParallel returns the parallel value or the default.
func (c *RecoConfig) GetParallel() bool {
	if c.Parallel == nil {
		return true
	}
	return *c.Parallel
}

// GetDriftTimeMin returns the drift_time_min value or the default.
func (c *RecoConfig) GetDriftTimeMin() float64 {
	if c.DriftTimeMin == nil {
		return -200
	}
	return *c.DriftTimeMin
}

// GetDriftTimeMax returns the drift_time_max value or the default.
func (c *RecoConfig) GetDriftTimeMax() float64 {
	if c.DriftTimeMax == nil {
		return 600
	}
	return *c.DriftTimeMax
}

// GetDWireHitMax returns the d_wire_hit_max value or the default.
func (c *RecoConfig) GetDWireHitMax() float64 {
	if c.DWireHitMax == nil {
		return 21
	}
	return *c.DWireHitMax
}

// ReconstructorConfig converts the file settings into the engine's config.
func (c *RecoConfig) ReconstructorConfig() reco.Config {
	return reco.Config{
		MinLayers:         c.GetMinLayers(),
		MaxHitsPerChamber: c.GetMaxHitsPerChamber(),
		Fit: linefit.Config{
			Sigma:             c.GetSigma(),
			NominalSlope:      c.GetNominalSlopeGuess(),
			MaxIterations:     c.GetFitMaxIterations(),
			GradientThreshold: c.GetFitGradientThreshold(),
		},
	}
}
