// Package config loads service settings from environment variables into a
// flat, validated struct.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	// Source extracts. Cases and hospital admissions come in two vintages
	// split at the October 3, 2021 cutover.
	CasesCurrentPath    string
	CasesArchivePath    string
	HospitalCurrentPath string
	HospitalArchivePath string
	PopulationPath      string
	BoundariesPath      string

	// OutputDir receives data_cleaned.csv and the six geo aggregates.
	OutputDir string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// RefreshInterval re-runs the pipeline periodically; zero means a
	// single run.
	RefreshInterval time.Duration

	DissolveCacheSize int
}

// FinalPath is where the joined dataset lands inside OutputDir.
func (c *Config) FinalPath() string {
	return filepath.Join(c.OutputDir, "data_cleaned.csv")
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("CASES_CURRENT_PATH", "data/cases_current.csv")
	v.SetDefault("CASES_ARCHIVE_PATH", "data/cases_archive.csv")
	v.SetDefault("HOSPITAL_CURRENT_PATH", "data/hospital_current.csv")
	v.SetDefault("HOSPITAL_ARCHIVE_PATH", "data/hospital_archive.csv")
	v.SetDefault("POPULATION_PATH", "data/population.csv")
	v.SetDefault("BOUNDARIES_PATH", "data/municipalities.geojson")
	v.SetDefault("OUTPUT_DIR", "data/out")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")
	v.SetDefault("REFRESH_INTERVAL", "0")
	v.SetDefault("DISSOLVE_CACHE_SIZE", 64)

	cfg := &Config{
		CasesCurrentPath:    v.GetString("CASES_CURRENT_PATH"),
		CasesArchivePath:    v.GetString("CASES_ARCHIVE_PATH"),
		HospitalCurrentPath: v.GetString("HOSPITAL_CURRENT_PATH"),
		HospitalArchivePath: v.GetString("HOSPITAL_ARCHIVE_PATH"),
		PopulationPath:      v.GetString("POPULATION_PATH"),
		BoundariesPath:      v.GetString("BOUNDARIES_PATH"),
		OutputDir:           v.GetString("OUTPUT_DIR"),
		HTTPAddr:            v.GetString("HTTP_ADDR"),
		LogLevel:            v.GetString("LOG_LEVEL"),
		LogFormat:           v.GetString("LOG_FORMAT"),
		ShutdownTimeout:     v.GetDuration("SHUTDOWN_TIMEOUT"),
		RefreshInterval:     v.GetDuration("REFRESH_INTERVAL"),
		DissolveCacheSize:   v.GetInt("DISSOLVE_CACHE_SIZE"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	paths := map[string]string{
		"CASES_CURRENT_PATH":    c.CasesCurrentPath,
		"CASES_ARCHIVE_PATH":    c.CasesArchivePath,
		"HOSPITAL_CURRENT_PATH": c.HospitalCurrentPath,
		"HOSPITAL_ARCHIVE_PATH": c.HospitalArchivePath,
		"POPULATION_PATH":       c.PopulationPath,
		"BOUNDARIES_PATH":       c.BoundariesPath,
		"OUTPUT_DIR":            c.OutputDir,
	}
	for name, p := range paths {
		if p == "" {
			return fmt.Errorf("%s is required", name)
		}
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("invalid LOG_FORMAT %q, want json or text", c.LogFormat)
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("invalid SHUTDOWN_TIMEOUT")
	}
	if c.RefreshInterval < 0 {
		return errors.New("invalid REFRESH_INTERVAL")
	}
	if c.DissolveCacheSize <= 0 {
		return errors.New("invalid DISSOLVE_CACHE_SIZE")
	}
	return nil
}
