// Package geodata reads municipal boundary geometries and writes the
// aggregated geometry-bearing outputs as GeoJSON, one file per
// (level, period) combination.
package geodata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/couchcryptid/covid-data-etl/internal/domain"
)

// Boundary feature property names, as published in the CBS municipal
// boundary file.
const (
	propCode     = "statcode"
	propName     = "statnaam"
	propProvince = "province"
)

// Store reads the boundary FeatureCollection and writes aggregate files
// into the output directory.
type Store struct {
	boundariesPath string
	outputDir      string
	logger         *slog.Logger
}

// NewStore creates a Store over the boundary file and output directory.
func NewStore(boundariesPath, outputDir string, logger *slog.Logger) *Store {
	return &Store{boundariesPath: boundariesPath, outputDir: outputDir, logger: logger}
}

// ExtractBoundaries loads the municipal boundary geometries. A feature
// without a municipality code is a schema violation and fails the load.
func (s *Store) ExtractBoundaries(_ context.Context) ([]domain.Boundary, error) {
	data, err := os.ReadFile(s.boundariesPath)
	if err != nil {
		return nil, fmt.Errorf("read boundaries %s: %w", s.boundariesPath, err)
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse boundaries %s: %w", s.boundariesPath, err)
	}

	out := make([]domain.Boundary, 0, len(fc.Features))
	for i, f := range fc.Features {
		code, ok := stringProp(f.Properties, propCode)
		if !ok {
			return nil, fmt.Errorf("boundaries %s: feature %d has no %q property", s.boundariesPath, i, propCode)
		}
		name, _ := stringProp(f.Properties, propName)
		province, _ := stringProp(f.Properties, propProvince)
		out = append(out, domain.Boundary{
			MunicipalityCode: code,
			MunicipalityName: name,
			Province:         province,
			Geometry:         f.Geometry,
		})
	}
	s.logger.Debug("read boundaries", "path", s.boundariesPath, "features", len(out))
	return out, nil
}

// LoadGeo writes one aggregated level/period table as a GeoJSON
// FeatureCollection, e.g. agg_prov_monthly.geojson.
func (s *Store) LoadGeo(_ context.Context, level domain.GeoLevel, period domain.Period, records []domain.GeoRecord) error {
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(records))}
	for _, r := range records {
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry:   r.Geometry,
			Properties: properties(level, r),
		})
	}

	data, err := json.Marshal(&fc)
	if err != nil {
		return fmt.Errorf("encode %s %s aggregate: %w", level, period, err)
	}

	path := filepath.Join(s.outputDir, fileName(level, period))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	s.logger.Info("wrote geo aggregate", "path", path, "level", level.String(), "period", period.String(), "rows", len(records))
	return nil
}

// fileName follows the naming the map layer consumes.
func fileName(level domain.GeoLevel, period domain.Period) string {
	short := map[domain.GeoLevel]string{
		domain.LevelMunicipality: "mun",
		domain.LevelProvince:     "prov",
		domain.LevelNational:     "nl",
	}[level]
	return fmt.Sprintf("agg_%s_%s.geojson", short, period)
}

// properties renders one record's attribute columns. Identity columns not
// meaningful at the level are omitted; missing numerics become JSON null.
func properties(level domain.GeoLevel, r domain.GeoRecord) map[string]interface{} {
	props := map[string]interface{}{
		"Date":                              r.Date.Format("2006-01-02"),
		"Month":                             r.Month.String(),
		"Year":                              r.Year,
		"Population":                        optional(r.Population),
		"Hospital_admission":                r.HospitalAdmission,
		"Total_reported":                    r.TotalReported,
		"Deceased":                          r.Deceased,
		"Incidence_rate_hospital_admission": optional(r.IncidenceRateHospitalAdmission),
		"Incidence_rate_cases":              optional(r.IncidenceRateCases),
		"Incidence_rate_deaths":             optional(r.IncidenceRateDeaths),
	}
	switch level {
	case domain.LevelMunicipality:
		props["Municipality_code"] = r.MunicipalityCode
		props["Municipality_name"] = r.MunicipalityName
		props["Province"] = r.Province
	case domain.LevelProvince:
		props["Province"] = r.Province
	}
	return props
}

func optional(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func stringProp(props map[string]interface{}, name string) (string, bool) {
	v, ok := props[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}
