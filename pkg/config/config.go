// Package config provides configuration loading and management for volseg.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"volseg/pkg/segmentation"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Volume access parameters
	Volume struct {
		// Path is the directory holding the slice images and their metadata
		Path string `yaml:"path"`

		// CacheSlices is the maximum number of slices kept in memory. It is
		// ignored when CacheMemory is set
		CacheSlices int `yaml:"cacheSlices"`

		// CacheMemory bounds the slice cache by size, e.g. "4GB" or "512M"
		CacheMemory string `yaml:"cacheMemory"`
	} `yaml:"volume"`

	// Segmentation run parameters
	Segmentation struct {
		// Method selects the propagation strategy: lrps or stps
		Method string `yaml:"method"`

		// StartIndex is the starting layer; -1 selects the highest layer of
		// the input point set
		StartIndex int `yaml:"startIndex"`

		// EndIndex is the absolute layer to stop at; -1 means unset
		EndIndex int `yaml:"endIndex"`

		// Stride is the number of layers to propagate past StartIndex; 0
		// means unset. Mutually exclusive with EndIndex
		Stride int `yaml:"stride"`

		// StepSize is the number of layers advanced per step
		StepSize int `yaml:"stepSize"`
	} `yaml:"segmentation"`

	// Local reslice particle simulation parameters
	LRPS struct {
		OptimizationIterations int     `yaml:"optimizationIterations"`
		ResliceSize            int     `yaml:"resliceSize"`
		Alpha                  float64 `yaml:"alpha"`
		Beta                   float64 `yaml:"beta"`
		Delta                  float64 `yaml:"delta"`
		K1                     float64 `yaml:"k1"`
		K2                     float64 `yaml:"k2"`
		DistanceWeight         float64 `yaml:"distanceWeight"`
		ConsiderPrevious       bool    `yaml:"considerPrevious"`
	} `yaml:"lrps"`

	// Structure tensor particle simulation parameters
	STPS struct {
		GravityScale float64 `yaml:"gravityScale"`
		Threshold    float64 `yaml:"threshold"`
		EndOffset    int     `yaml:"endOffset"`
		TensorRadius int     `yaml:"tensorRadius"`
	} `yaml:"stps"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`

		// DumpVis writes per-step debug images to DumpDir
		DumpVis bool   `yaml:"dumpVis"`
		DumpDir string `yaml:"dumpDir"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default volume parameters
	cfg.Volume.CacheSlices = 200
	cfg.Volume.CacheMemory = ""

	// Set default run parameters
	cfg.Segmentation.Method = "lrps"
	cfg.Segmentation.StartIndex = -1
	cfg.Segmentation.EndIndex = -1
	cfg.Segmentation.Stride = 0
	cfg.Segmentation.StepSize = 1

	// Set default LRPS parameters
	lrps := segmentation.DefaultLRPSParams()
	cfg.LRPS.OptimizationIterations = lrps.OptimizationIterations
	cfg.LRPS.ResliceSize = lrps.ResliceSize
	cfg.LRPS.Alpha = lrps.Alpha
	cfg.LRPS.Beta = lrps.Beta
	cfg.LRPS.Delta = lrps.Delta
	cfg.LRPS.K1 = lrps.K1
	cfg.LRPS.K2 = lrps.K2
	cfg.LRPS.DistanceWeight = lrps.DistanceWeight
	cfg.LRPS.ConsiderPrevious = lrps.ConsiderPrevious

	// Set default STPS parameters
	stps := segmentation.DefaultSTPSParams()
	cfg.STPS.GravityScale = stps.GravityScale
	cfg.STPS.Threshold = stps.Threshold
	cfg.STPS.EndOffset = stps.EndOffset
	cfg.STPS.TensorRadius = stps.TensorRadius

	// Set default output parameters
	cfg.Output.Verbose = false
	cfg.Output.DumpVis = false
	cfg.Output.DumpDir = "debugvis"

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if _, err := cfg.CacheBytes(); err != nil {
		return nil, fmt.Errorf("error in config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// CacheBytes returns the parsed cache memory budget, or 0 when unset
func (c *Config) CacheBytes() (int64, error) {
	if c.Volume.CacheMemory == "" {
		return 0, nil
	}
	return ParseMemorySize(c.Volume.CacheMemory)
}

// StrategyConfig converts the method and engine sections into the form
// expected by segmentation.NewStrategy
func (c *Config) StrategyConfig() segmentation.StrategyConfig {
	lrps := segmentation.DefaultLRPSParams()
	lrps.StepSize = c.Segmentation.StepSize
	lrps.OptimizationIterations = c.LRPS.OptimizationIterations
	lrps.ResliceSize = c.LRPS.ResliceSize
	lrps.Alpha = c.LRPS.Alpha
	lrps.Beta = c.LRPS.Beta
	lrps.Delta = c.LRPS.Delta
	lrps.K1 = c.LRPS.K1
	lrps.K2 = c.LRPS.K2
	lrps.DistanceWeight = c.LRPS.DistanceWeight
	lrps.ConsiderPrevious = c.LRPS.ConsiderPrevious

	return segmentation.StrategyConfig{
		Method:   c.Segmentation.Method,
		StepSize: c.Segmentation.StepSize,
		LRPS:     lrps,
		STPS: segmentation.STPSParams{
			GravityScale: c.STPS.GravityScale,
			Threshold:    c.STPS.Threshold,
			EndOffset:    c.STPS.EndOffset,
			TensorRadius: c.STPS.TensorRadius,
		},
	}
}

// RunOptions returns the depth range of the segmentation section
func (c *Config) RunOptions() segmentation.RunOptions {
	return segmentation.RunOptions{
		StartIndex: c.Segmentation.StartIndex,
		EndIndex:   c.Segmentation.EndIndex,
		Stride:     c.Segmentation.Stride,
	}
}
