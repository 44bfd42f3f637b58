// Package config provides configuration loading and management for
// channelpyramid. It handles loading configuration from YAML files and
// provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Image parameters
	Image struct {
		// PixelSizeMicrons is the isotropic physical pixel size in µm/pixel
		PixelSizeMicrons float64 `yaml:"pixelSizeMicrons"`
	} `yaml:"image"`

	// Pyramid parameters
	Pyramid struct {
		// Levels is the number of reduced-resolution sub-planes per channel
		Levels int `yaml:"levels"`

		// TileSize is the tile edge length in samples
		TileSize int `yaml:"tileSize"`
	} `yaml:"pyramid"`

	// Output parameters
	Output struct {
		// Verbose controls the level of progress output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Default pixel size of the acquisition system this pipeline was built
	// around, in µm/pixel
	cfg.Image.PixelSizeMicrons = 0.5077663810243286

	// Pyramid defaults expected by the consuming viewers: 5 sub-levels
	// (2x..32x) of 512x512 tiles
	cfg.Pyramid.Levels = 5
	cfg.Pyramid.TileSize = 512

	cfg.Output.Verbose = true

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
