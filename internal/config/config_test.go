package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "data/cases_current.csv", cfg.CasesCurrentPath)
	assert.Equal(t, "data/cases_archive.csv", cfg.CasesArchivePath)
	assert.Equal(t, "data/hospital_current.csv", cfg.HospitalCurrentPath)
	assert.Equal(t, "data/hospital_archive.csv", cfg.HospitalArchivePath)
	assert.Equal(t, "data/population.csv", cfg.PopulationPath)
	assert.Equal(t, "data/municipalities.geojson", cfg.BoundariesPath)
	assert.Equal(t, "data/out", cfg.OutputDir)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, time.Duration(0), cfg.RefreshInterval)
	assert.Equal(t, 64, cfg.DissolveCacheSize)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("CASES_CURRENT_PATH", "/srv/rivm/cases.csv")
	t.Setenv("BOUNDARIES_PATH", "/srv/cbs/gemeenten.geojson")
	t.Setenv("OUTPUT_DIR", "/srv/out")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("REFRESH_INTERVAL", "6h")
	t.Setenv("DISSOLVE_CACHE_SIZE", "128")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/srv/rivm/cases.csv", cfg.CasesCurrentPath)
	assert.Equal(t, "/srv/cbs/gemeenten.geojson", cfg.BoundariesPath)
	assert.Equal(t, "/srv/out", cfg.OutputDir)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 6*time.Hour, cfg.RefreshInterval)
	assert.Equal(t, 128, cfg.DissolveCacheSize)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		wants string
	}{
		{
			name:  "unknown log format",
			env:   map[string]string{"LOG_FORMAT": "xml"},
			wants: "LOG_FORMAT",
		},
		{
			name:  "negative refresh interval",
			env:   map[string]string{"REFRESH_INTERVAL": "-1m"},
			wants: "REFRESH_INTERVAL",
		},
		{
			name:  "zero shutdown timeout",
			env:   map[string]string{"SHUTDOWN_TIMEOUT": "0"},
			wants: "SHUTDOWN_TIMEOUT",
		},
		{
			name:  "zero dissolve cache",
			env:   map[string]string{"DISSOLVE_CACHE_SIZE": "0"},
			wants: "DISSOLVE_CACHE_SIZE",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wants)
		})
	}
}

func TestValidate_RequiredPaths(t *testing.T) {
	cfg := &Config{
		CasesCurrentPath:    "a",
		CasesArchivePath:    "b",
		HospitalCurrentPath: "c",
		HospitalArchivePath: "d",
		BoundariesPath:      "f",
		OutputDir:           "g",
		LogFormat:           "json",
		ShutdownTimeout:     time.Second,
		DissolveCacheSize:   1,
	}

	err := cfg.validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "POPULATION_PATH is required")
}

func TestFinalPath(t *testing.T) {
	cfg := &Config{OutputDir: "/srv/out"}
	assert.Equal(t, "/srv/out/data_cleaned.csv", cfg.FinalPath())
}
