package domain

import (
	"fmt"
	"time"
)

// RawCaseRow is one unparsed row from an RIVM case extract. All fields are
// kept as strings; parsing happens in the cleaner so that one malformed
// value cannot abort a batch.
type RawCaseRow struct {
	DateOfPublication string
	MunicipalityCode  string
	MunicipalityName  string
	Province          string
	TotalReported     string
	Deceased          string
}

// RawHospitalRow is one unparsed row from an RIVM hospital admission extract.
type RawHospitalRow struct {
	DateOfStatistics  string
	MunicipalityCode  string
	MunicipalityName  string
	HospitalAdmission string
}

// RawPopulationRow is one unparsed row from a CBS population extract. Region
// mixes granularities (GM, PV, national); Period is a CBS period string such
// as "2021JJ00".
type RawPopulationRow struct {
	Region     string
	Period     string
	Population string
}

// Month is a calendar year-month period, e.g. 2021-03.
type Month struct {
	Year  int
	Month time.Month
}

// MonthOf returns the period containing t.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// String formats the period as "YYYY-MM".
func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// Time returns the first day of the period in UTC.
func (m Month) Time() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// CaseRecord is a cleaned daily case row for one municipality.
type CaseRecord struct {
	Date             time.Time
	MunicipalityCode string
	MunicipalityName string
	Province         string
	TotalReported    int
	Deceased         int
	Year             int
	Month            Month
}

// HospitalRecord is a cleaned daily hospital admission row for one
// municipality. The hospital extract carries no province column.
type HospitalRecord struct {
	Date              time.Time
	MunicipalityCode  string
	MunicipalityName  string
	HospitalAdmission int
	Year              int
	Month             Month
}

// PopulationRecord is a population figure for one (municipality, year).
// Population is nil when the source value was not numeric; after
// [BuildPopulation]'s final aggregation it is always set.
type PopulationRecord struct {
	MunicipalityCode string
	Year             int
	Population       *float64
}

// CovidRecord is one row of the joined dataset: a (date, municipality) with
// data present in both the case and hospital sources. Population and the
// rate fields are nil when no population record exists for the
// municipality's year, or, for rates, when the population is zero.
type CovidRecord struct {
	Date                           time.Time
	Month                          Month
	Year                           int
	MunicipalityCode               string
	MunicipalityName               string
	Province                       string
	Population                     *float64
	HospitalAdmission              int
	TotalReported                  int
	Deceased                       int
	IncidenceRateHospitalAdmission *float64
	IncidenceRateCases             *float64
	IncidenceRateDeaths            *float64
}

// Dataset is the final joined table plus provenance.
type Dataset struct {
	Records     []CovidRecord
	GeneratedAt time.Time
}

// CleanStats counts what a cleaner kept, dropped, and coerced. Dropping and
// coercion are best-effort policy, not silent loss; callers surface these
// counts through logs and metrics.
type CleanStats struct {
	RowsIn              int
	RowsOut             int
	SummaryRowsDropped  int // rows without municipality code or name
	UnparseableDates    int // rows dropped because the date or period column would not parse
	MalformedNumbers    int // numeric cells coerced to zero
	DuplicateKeysMerged int // rows folded into an existing (date, code) key
}

// Float returns a pointer to v. Convenience for optional numeric fields.
func Float(v float64) *float64 {
	return &v
}
