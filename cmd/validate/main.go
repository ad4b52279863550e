// Command validate performs end-to-end integrity checks over the pipeline's
// output files: the joined dataset CSV and the six geographic aggregates.
// It verifies the column contract, code harmonization, rate arithmetic, and
// cross-level consistency of the rollups.
//
// Usage:
//
//	go run ./cmd/validate -output-dir data/out
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/covid-data-etl/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	outputDir := flag.String("output-dir", "data/out", "directory holding data_cleaned.csv and the geo aggregates")
	flag.Parse()

	if code := run(*outputDir); code != 0 {
		os.Exit(code)
	}
}

func run(outputDir string) int {
	fmt.Println("=== Output Integrity Validation ===")
	fmt.Println()

	finalRows, err := loadFinal(filepath.Join(outputDir, "data_cleaned.csv"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load final dataset: %v\n", err)
		return 1
	}

	geoSets, err := loadGeoSets(outputDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load geo aggregates: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateSchema(finalRows),
		validateHarmonization(finalRows),
		validateRates(finalRows),
		validateLevelConsistency(geoSets),
		validateGeoRates(geoSets),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	geoRows := 0
	for _, rows := range geoSets {
		geoRows += len(rows)
	}
	fmt.Println()
	fmt.Printf("Records: %d final CSV, %d geo features across %d files\n",
		len(finalRows), geoRows, len(geoSets))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Data loading ──

// finalRow is one parsed row of data_cleaned.csv.
type finalRow struct {
	lineNum  int
	date     time.Time
	month    string
	year     int
	code     string
	name     string
	province string
	fields   map[string]string
}

var finalColumns = []string{
	"Date", "Month", "Year",
	"Municipality_code", "Municipality_name", "Province",
	"Population", "Hospital_admission", "Total_reported", "Deceased",
	"Incidence_rate_hospital_admission", "Incidence_rate_cases", "Incidence_rate_deaths",
}

func loadFinal(path string) ([]finalRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = ';'
	all, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(all) < 2 {
		return nil, fmt.Errorf("no data rows in %s", path)
	}

	header := all[0]
	if strings.Join(header, ";") != strings.Join(finalColumns, ";") {
		return nil, fmt.Errorf("header mismatch: got %v", header)
	}

	rows := make([]finalRow, 0, len(all)-1)
	for i, rec := range all[1:] {
		fields := make(map[string]string, len(header))
		for j, h := range header {
			if j < len(rec) {
				fields[h] = rec[j]
			}
		}
		date, _ := time.Parse("2006-01-02", fields["Date"])
		year, _ := strconv.Atoi(fields["Year"])
		rows = append(rows, finalRow{
			lineNum:  i + 2,
			date:     date,
			month:    fields["Month"],
			year:     year,
			code:     fields["Municipality_code"],
			name:     fields["Municipality_name"],
			province: fields["Province"],
			fields:   fields,
		})
	}
	return rows, nil
}

// geoFeature is one feature of an aggregate file, reduced to its properties.
type geoFeature struct {
	props map[string]any
}

func loadGeoSets(outputDir string) (map[string][]geoFeature, error) {
	names := []string{
		"agg_mun_monthly", "agg_mun_yearly",
		"agg_prov_monthly", "agg_prov_yearly",
		"agg_nl_monthly", "agg_nl_yearly",
	}
	sets := make(map[string][]geoFeature, len(names))
	for _, name := range names {
		path := filepath.Join(outputDir, name+".geojson")
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var fc struct {
			Features []struct {
				Properties map[string]any `json:"properties"`
			} `json:"features"`
		}
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		features := make([]geoFeature, 0, len(fc.Features))
		for _, f := range fc.Features {
			features = append(features, geoFeature{props: f.Properties})
		}
		sets[name] = features
	}
	return sets, nil
}

// ── Phase 1: Column contract ──

func validateSchema(rows []finalRow) *phase {
	p := &phase{name: "Phase 1: Column contract"}

	seen := map[string]int{}
	for _, r := range rows {
		if r.date.IsZero() {
			p.errorf("line %d: unparseable Date %q", r.lineNum, r.fields["Date"])
			continue
		}
		if want := r.date.Format("2006-01"); r.month != want {
			p.errorf("line %d: Month %q does not match Date (want %s)", r.lineNum, r.month, want)
		}
		if r.year != r.date.Year() {
			p.errorf("line %d: Year %d does not match Date", r.lineNum, r.year)
		}
		if r.code == "" || r.name == "" {
			p.errorf("line %d: empty municipality identity", r.lineNum)
		}
		key := r.fields["Date"] + "|" + r.code
		seen[key]++
		if seen[key] == 2 {
			p.errorf("line %d: duplicate (Date, Municipality_code) key %s", r.lineNum, key)
		}
		for _, col := range []string{"Hospital_admission", "Total_reported", "Deceased"} {
			if _, err := strconv.Atoi(r.fields[col]); err != nil {
				p.errorf("line %d: %s %q is not an integer", r.lineNum, col, r.fields[col])
			}
		}
	}
	return p
}

// ── Phase 2: Code harmonization ──
// No retired municipality code may survive into the outputs.

func validateHarmonization(rows []finalRow) *phase {
	p := &phase{name: "Phase 2: Code harmonization"}

	h := domain.NewDefaultHarmonizer()
	retired := map[string]bool{h.DissolvedCode(): true}
	for _, code := range h.ObsoleteCodes() {
		retired[code] = true
	}
	for _, code := range domain.DefaultMergeRule().OldCodes {
		retired[code] = true
	}

	for _, r := range rows {
		if retired[r.code] {
			p.errorf("line %d: retired code %s (%s) in final dataset", r.lineNum, r.code, r.name)
		}
	}
	return p
}

// ── Phase 3: Rate arithmetic ──
// Each rate must equal count / population * 100000, and a missing
// population must leave all three rates empty.

func validateRates(rows []finalRow) *phase {
	p := &phase{name: "Phase 3: Rate arithmetic"}

	pairs := [][2]string{
		{"Hospital_admission", "Incidence_rate_hospital_admission"},
		{"Total_reported", "Incidence_rate_cases"},
		{"Deceased", "Incidence_rate_deaths"},
	}
	for _, r := range rows {
		popCell := r.fields["Population"]
		for _, pair := range pairs {
			countCol, rateCol := pair[0], pair[1]
			rateCell := r.fields[rateCol]
			if popCell == "" {
				if rateCell != "" {
					p.errorf("line %d: %s=%q with empty Population", r.lineNum, rateCol, rateCell)
				}
				continue
			}
			pop, err := strconv.ParseFloat(popCell, 64)
			if err != nil {
				p.errorf("line %d: Population %q is not numeric", r.lineNum, popCell)
				break
			}
			count, _ := strconv.ParseFloat(r.fields[countCol], 64)
			want := domain.Rate(count, &pop)
			if want == nil {
				if rateCell != "" {
					p.errorf("line %d: %s=%q with zero Population", r.lineNum, rateCol, rateCell)
				}
				continue
			}
			got, err := strconv.ParseFloat(rateCell, 64)
			if err != nil {
				p.errorf("line %d: %s %q is not numeric", r.lineNum, rateCol, rateCell)
				continue
			}
			if !floatEq(got, *want) {
				p.errorf("line %d: %s: expected %g, got %g", r.lineNum, rateCol, *want, got)
			}
		}
	}
	return p
}

// ── Phase 4: Level consistency ──
// Per period, the national totals must equal the sum of the province totals
// and the sum of the municipality totals.

func validateLevelConsistency(sets map[string][]geoFeature) *phase {
	p := &phase{name: "Phase 4: Level consistency"}

	for _, period := range []string{"monthly", "yearly"} {
		mun := sumByDate(sets["agg_mun_"+period])
		prov := sumByDate(sets["agg_prov_"+period])
		nl := sumByDate(sets["agg_nl_"+period])

		for date, nlSums := range nl {
			for _, metric := range []string{"Total_reported", "Deceased", "Hospital_admission"} {
				if m, ok := mun[date]; !ok || m[metric] != nlSums[metric] {
					p.errorf("%s %s: %s national=%g municipalities=%g", period, date, metric, nlSums[metric], mun[date][metric])
				}
				if pr, ok := prov[date]; !ok || pr[metric] != nlSums[metric] {
					p.errorf("%s %s: %s national=%g provinces=%g", period, date, metric, nlSums[metric], prov[date][metric])
				}
			}
		}
		for date := range mun {
			if _, ok := nl[date]; !ok {
				p.errorf("%s %s: present at municipality level but missing nationally", period, date)
			}
		}
	}
	return p
}

func sumByDate(features []geoFeature) map[string]map[string]float64 {
	out := map[string]map[string]float64{}
	for _, f := range features {
		date, _ := f.props["Date"].(string)
		sums, ok := out[date]
		if !ok {
			sums = map[string]float64{}
			out[date] = sums
		}
		for _, metric := range []string{"Total_reported", "Deceased", "Hospital_admission"} {
			if v, ok := f.props[metric].(float64); ok {
				sums[metric] += v
			}
		}
	}
	return out
}

// ── Phase 5: Geo rate arithmetic ──
// Rates in every aggregate must be recomputed from that row's own sums,
// never carried over from a finer level.

func validateGeoRates(sets map[string][]geoFeature) *phase {
	p := &phase{name: "Phase 5: Geo rate arithmetic"}

	pairs := [][2]string{
		{"Hospital_admission", "Incidence_rate_hospital_admission"},
		{"Total_reported", "Incidence_rate_cases"},
		{"Deceased", "Incidence_rate_deaths"},
	}
	for name, features := range sets {
		for i, f := range features {
			pop, hasPop := f.props["Population"].(float64)
			for _, pair := range pairs {
				count, _ := f.props[pair[0]].(float64)
				rate, hasRate := f.props[pair[1]].(float64)
				if !hasPop || pop == 0 {
					if hasRate {
						p.errorf("%s feature %d: %s present without a population", name, i, pair[1])
					}
					continue
				}
				want := domain.Rate(count, &pop)
				if !hasRate {
					p.errorf("%s feature %d: %s missing", name, i, pair[1])
					continue
				}
				if !floatEq(rate, *want) {
					p.errorf("%s feature %d: %s: expected %g, got %g", name, i, pair[1], *want, rate)
				}
			}
		}
	}
	return p
}

// ── Helpers ──

func floatEq(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}
