package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/couchcryptid/covid-data-etl/internal/domain"
)

// finalColumns is the on-disk contract consumed by the dashboard layer. The
// order is part of the contract and must not change.
var finalColumns = []string{
	"Date",
	"Month",
	"Year",
	"Municipality_code",
	"Municipality_name",
	"Province",
	"Population",
	"Hospital_admission",
	"Total_reported",
	"Deceased",
	"Incidence_rate_hospital_admission",
	"Incidence_rate_cases",
	"Incidence_rate_deaths",
}

// Writer persists the final joined dataset as a semicolon-delimited file.
type Writer struct {
	path   string
	logger *slog.Logger
}

// NewWriter creates a Writer targeting path. Parent directories are created
// on first write.
func NewWriter(path string, logger *slog.Logger) *Writer {
	return &Writer{path: path, logger: logger}
}

// LoadDataset writes the dataset in the canonical column order. Missing
// population and rate values become empty cells, never zeroes.
func (w *Writer) LoadDataset(_ context.Context, ds domain.Dataset) error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("create %s: %w", w.path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	cw.Comma = separator

	if err := cw.Write(finalColumns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range ds.Records {
		row := []string{
			r.Date.Format("2006-01-02"),
			r.Month.String(),
			strconv.Itoa(r.Year),
			r.MunicipalityCode,
			r.MunicipalityName,
			r.Province,
			formatOptional(r.Population),
			strconv.Itoa(r.HospitalAdmission),
			strconv.Itoa(r.TotalReported),
			strconv.Itoa(r.Deceased),
			formatOptional(r.IncidenceRateHospitalAdmission),
			formatOptional(r.IncidenceRateCases),
			formatOptional(r.IncidenceRateDeaths),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", w.path, err)
	}

	w.logger.Info("wrote final dataset", "path", w.path, "rows", len(ds.Records))
	return nil
}

// formatOptional renders a nullable numeric cell; nil stays empty.
func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
