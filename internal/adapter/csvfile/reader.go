// Package csvfile reads the semicolon-delimited RIVM and CBS extracts and
// writes the final joined table. A missing required column fails fast: the
// pipeline cannot proceed with a guessed schema. Malformed cell values are
// passed through untouched; coercion is the domain cleaners' concern.
package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/couchcryptid/covid-data-etl/internal/domain"
)

// separator is the delimiter convention shared by all source extracts.
const separator = ';'

var (
	caseColumns       = []string{"Date_of_publication", "Municipality_code", "Municipality_name", "Province", "Total_reported", "Deceased"}
	hospitalColumns   = []string{"Date_of_statistics", "Municipality_code", "Municipality_name", "Hospital_admission"}
	populationColumns = []string{"RegioS", "Perioden", "TotaleBevolking_1"}
)

// Reader loads raw rows from the configured extract files. The case and
// hospital datasets each come in two vintages which are concatenated,
// current file first, without deduplication.
type Reader struct {
	casesCurrent    string
	casesArchive    string
	hospitalCurrent string
	hospitalArchive string
	population      string
	logger          *slog.Logger
}

// NewReader creates a Reader over the given extract paths.
func NewReader(casesCurrent, casesArchive, hospitalCurrent, hospitalArchive, population string, logger *slog.Logger) *Reader {
	return &Reader{
		casesCurrent:    casesCurrent,
		casesArchive:    casesArchive,
		hospitalCurrent: hospitalCurrent,
		hospitalArchive: hospitalArchive,
		population:      population,
		logger:          logger,
	}
}

// ExtractCases reads and concatenates both case extract vintages.
func (r *Reader) ExtractCases(_ context.Context) ([]domain.RawCaseRow, error) {
	var out []domain.RawCaseRow
	for _, path := range []string{r.casesCurrent, r.casesArchive} {
		t, err := readTable(path, caseColumns)
		if err != nil {
			return nil, fmt.Errorf("read cases %s: %w", path, err)
		}
		for _, cells := range t.records {
			out = append(out, domain.RawCaseRow{
				DateOfPublication: t.cell(cells, "Date_of_publication"),
				MunicipalityCode:  t.cell(cells, "Municipality_code"),
				MunicipalityName:  t.cell(cells, "Municipality_name"),
				Province:          t.cell(cells, "Province"),
				TotalReported:     t.cell(cells, "Total_reported"),
				Deceased:          t.cell(cells, "Deceased"),
			})
		}
		r.logger.Debug("read case extract", "path", path, "rows", len(t.records))
	}
	return out, nil
}

// ExtractHospital reads and concatenates both hospital extract vintages.
func (r *Reader) ExtractHospital(_ context.Context) ([]domain.RawHospitalRow, error) {
	var out []domain.RawHospitalRow
	for _, path := range []string{r.hospitalCurrent, r.hospitalArchive} {
		t, err := readTable(path, hospitalColumns)
		if err != nil {
			return nil, fmt.Errorf("read hospital admissions %s: %w", path, err)
		}
		for _, cells := range t.records {
			out = append(out, domain.RawHospitalRow{
				DateOfStatistics:  t.cell(cells, "Date_of_statistics"),
				MunicipalityCode:  t.cell(cells, "Municipality_code"),
				MunicipalityName:  t.cell(cells, "Municipality_name"),
				HospitalAdmission: t.cell(cells, "Hospital_admission"),
			})
		}
		r.logger.Debug("read hospital extract", "path", path, "rows", len(t.records))
	}
	return out, nil
}

// ExtractPopulation reads the CBS population extract.
func (r *Reader) ExtractPopulation(_ context.Context) ([]domain.RawPopulationRow, error) {
	t, err := readTable(r.population, populationColumns)
	if err != nil {
		return nil, fmt.Errorf("read population %s: %w", r.population, err)
	}
	out := make([]domain.RawPopulationRow, 0, len(t.records))
	for _, cells := range t.records {
		out = append(out, domain.RawPopulationRow{
			Region:     t.cell(cells, "RegioS"),
			Period:     t.cell(cells, "Perioden"),
			Population: t.cell(cells, "TotaleBevolking_1"),
		})
	}
	r.logger.Debug("read population extract", "path", r.population, "rows", len(t.records))
	return out, nil
}

// table is a parsed extract: a header index plus the data records.
type table struct {
	index   map[string]int
	records [][]string
}

// cell returns the named column of a record, or "" when the record is too
// short (ragged rows happen in hand-edited extracts).
func (t *table) cell(record []string, column string) string {
	i := t.index[column]
	if i >= len(record) {
		return ""
	}
	return record[i]
}

// readTable parses one semicolon-delimited extract and verifies that every
// required column is present.
func readTable(path string, required []string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.Comma = separator
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	for _, name := range required {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("required column %q missing", name)
		}
	}

	var records [][]string
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		records = append(records, record)
	}
	return &table{index: index, records: records}, nil
}
