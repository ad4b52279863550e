package domain

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// municipalityPrefix marks municipality-level rows in the CBS region column.
const municipalityPrefix = "GM"

// yearRe extracts the calendar year from a CBS period string ("2021JJ00").
var yearRe = regexp.MustCompile(`(\d{4})`)

// BuildPopulation turns raw CBS rows into the harmonized population table:
// keep municipality-level rows only, parse the period year and the nullable
// population figure, resolve obsolete codes through the harmonizer,
// redistribute the dissolved municipality's population, and aggregate by
// (code, year). Aggregation sums the non-nil contributions, so every output
// record carries a population value (possibly zero when a municipality only
// had unparseable figures).
func BuildPopulation(rows []RawPopulationRow, h *Harmonizer) ([]PopulationRecord, CleanStats) {
	stats := CleanStats{RowsIn: len(rows)}

	records := make([]PopulationRecord, 0, len(rows))
	for _, row := range rows {
		if !strings.HasPrefix(row.Region, municipalityPrefix) {
			stats.SummaryRowsDropped++
			continue
		}
		year, ok := parsePeriodYear(row.Period)
		if !ok {
			stats.UnparseableDates++
			continue
		}
		records = append(records, PopulationRecord{
			MunicipalityCode: h.Resolve(row.Region),
			Year:             year,
			Population:       parsePopulation(row.Population, &stats),
		})
	}

	records = h.Redistribute(records)

	type key struct {
		code string
		year int
	}
	agg := make(map[key]float64)
	seen := make(map[key]bool)
	for _, r := range records {
		k := key{r.MunicipalityCode, r.Year}
		if seen[k] {
			stats.DuplicateKeysMerged++
		}
		seen[k] = true
		if r.Population != nil {
			agg[k] += *r.Population
		}
	}

	out := make([]PopulationRecord, 0, len(seen))
	for k := range seen {
		out = append(out, PopulationRecord{
			MunicipalityCode: k.code,
			Year:             k.year,
			Population:       Float(agg[k]),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MunicipalityCode != out[j].MunicipalityCode {
			return out[i].MunicipalityCode < out[j].MunicipalityCode
		}
		return out[i].Year < out[j].Year
	})
	stats.RowsOut = len(out)
	return out, stats
}

// parsePeriodYear pulls the 4-digit year out of a CBS period string.
func parsePeriodYear(s string) (int, bool) {
	m := yearRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return year, true
}

// parsePopulation parses a population cell, coercing malformed values to nil.
func parsePopulation(s string, stats *CleanStats) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		stats.MalformedNumbers++
		return nil
	}
	return Float(v)
}
