package domain

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// dateLayouts are the publication/statistics date formats seen across
// extract vintages. Tried in order.
var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// MergeRule is the hard-coded three-to-one municipality merge applied by the
// record cleaners, distinct from the Harmonizer's general remap table. Codes
// in OldCodes and names keyed in OldNames collapse into NewCode/NewName.
type MergeRule struct {
	OldCodes []string
	OldNames []string
	NewCode  string
	NewName  string
}

// DefaultMergeRule merges Brielle, Hellevoetsluis, and Westvoorne into
// Voorne aan Zee. It must agree with [DefaultRemapTable] on the successor
// code, otherwise the case and population tables join on different keys.
func DefaultMergeRule() MergeRule {
	return MergeRule{
		OldCodes: []string{"GM0501", "GM0530", "GM0614"},
		OldNames: []string{"Brielle", "Hellevoetsluis", "Westvoorne"},
		NewCode:  "GM1992",
		NewName:  "Voorne aan Zee",
	}
}

func (r MergeRule) mapCode(code string) string {
	for _, old := range r.OldCodes {
		if code == old {
			return r.NewCode
		}
	}
	return code
}

func (r MergeRule) mapName(name string) string {
	for _, old := range r.OldNames {
		if name == old {
			return r.NewName
		}
	}
	return name
}

// CleanCases turns raw case rows into cleaned per-day municipality records:
// parse the publication date, drop the embedded provincial/national summary
// rows (no municipality code or name), apply the merge rule, re-aggregate
// the duplicate (date, code, name, province) keys the merge creates, and
// derive Year and Month. Rows whose date does not parse are dropped and
// counted; malformed counts coerce to zero and are counted.
func CleanCases(rows []RawCaseRow, rule MergeRule) ([]CaseRecord, CleanStats) {
	stats := CleanStats{RowsIn: len(rows)}

	type key struct {
		date     int64
		code     string
		name     string
		province string
	}
	agg := make(map[key]*CaseRecord)

	for _, row := range rows {
		date, ok := parseDate(row.DateOfPublication)
		if !ok {
			stats.UnparseableDates++
			continue
		}
		if row.MunicipalityCode == "" || row.MunicipalityName == "" {
			stats.SummaryRowsDropped++
			continue
		}

		code := rule.mapCode(row.MunicipalityCode)
		name := rule.mapName(row.MunicipalityName)
		total := parseCount(row.TotalReported, &stats)
		deceased := parseCount(row.Deceased, &stats)

		k := key{date.Unix(), code, name, row.Province}
		if rec, exists := agg[k]; exists {
			rec.TotalReported += total
			rec.Deceased += deceased
			stats.DuplicateKeysMerged++
			continue
		}
		agg[k] = &CaseRecord{
			Date:             date,
			MunicipalityCode: code,
			MunicipalityName: name,
			Province:         row.Province,
			TotalReported:    total,
			Deceased:         deceased,
			Year:             date.Year(),
			Month:            MonthOf(date),
		}
	}

	out := make([]CaseRecord, 0, len(agg))
	for _, rec := range agg {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].MunicipalityCode < out[j].MunicipalityCode
	})
	stats.RowsOut = len(out)
	return out, stats
}

// CleanHospital is the hospital-side counterpart of [CleanCases]. The
// hospital extract has no province column, so the aggregation key is
// (date, code, name).
func CleanHospital(rows []RawHospitalRow, rule MergeRule) ([]HospitalRecord, CleanStats) {
	stats := CleanStats{RowsIn: len(rows)}

	type key struct {
		date int64
		code string
		name string
	}
	agg := make(map[key]*HospitalRecord)

	for _, row := range rows {
		date, ok := parseDate(row.DateOfStatistics)
		if !ok {
			stats.UnparseableDates++
			continue
		}
		if row.MunicipalityCode == "" || row.MunicipalityName == "" {
			stats.SummaryRowsDropped++
			continue
		}

		code := rule.mapCode(row.MunicipalityCode)
		name := rule.mapName(row.MunicipalityName)
		admissions := parseCount(row.HospitalAdmission, &stats)

		k := key{date.Unix(), code, name}
		if rec, exists := agg[k]; exists {
			rec.HospitalAdmission += admissions
			stats.DuplicateKeysMerged++
			continue
		}
		agg[k] = &HospitalRecord{
			Date:              date,
			MunicipalityCode:  code,
			MunicipalityName:  name,
			HospitalAdmission: admissions,
			Year:              date.Year(),
			Month:             MonthOf(date),
		}
	}

	out := make([]HospitalRecord, 0, len(agg))
	for _, rec := range agg {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].MunicipalityCode < out[j].MunicipalityCode
	})
	stats.RowsOut = len(out)
	return out, stats
}

// parseDate parses a publication/statistics date, trying each known layout.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			// Normalize to midnight UTC so both vintages key identically.
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// parseCount parses a metric column, treating empty as zero and counting
// malformed values before coercing them to zero.
func parseCount(s string, stats *CleanStats) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		stats.MalformedNumbers++
		return 0
	}
	return v
}
