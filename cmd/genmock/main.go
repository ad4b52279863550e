// Command genmock generates synthetic RIVM and CBS extracts for local runs
// and integration testing. The fixtures deliberately include the municipal
// reorganizations the pipeline has to handle: archive rows under the
// pre-2022 codes, a Haaren population row that must be redistributed, and
// the Voorne aan Zee three-way merge. It runs the generated rows through the
// actual domain cleaners so the printed stats match real pipeline behavior.
//
// Usage:
//
//	go run ./cmd/genmock -out data -seed 1
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/couchcryptid/covid-data-etl/internal/domain"
)

// cutover is the date the current extract vintage starts.
var cutover = time.Date(2021, time.October, 3, 0, 0, 0, 0, time.UTC)

// municipality describes one fixture municipality and, for codes retired by
// a reorganization, the vintage it stops appearing in.
type municipality struct {
	code     string
	name     string
	province string
	retired  bool // only appears in the archive vintage
}

var municipalities = []municipality{
	{code: "GM0363", name: "Amsterdam", province: "Noord-Holland"},
	{code: "GM0392", name: "Haarlem", province: "Noord-Holland"},
	{code: "GM0439", name: "Purmerend", province: "Noord-Holland"},
	{code: "GM0344", name: "Utrecht", province: "Utrecht"},
	{code: "GM0599", name: "Rotterdam", province: "Zuid-Holland"},
	{code: "GM0855", name: "Tilburg", province: "Noord-Brabant"},
	{code: "GM1992", name: "Voorne aan Zee", province: "Zuid-Holland"},

	// Retired codes, archive vintage only.
	{code: "GM0370", name: "Beemster", province: "Noord-Holland", retired: true},
	{code: "GM0501", name: "Brielle", province: "Zuid-Holland", retired: true},
	{code: "GM0530", name: "Hellevoetsluis", province: "Zuid-Holland", retired: true},
	{code: "GM0614", name: "Westvoorne", province: "Zuid-Holland", retired: true},
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out", "data", "directory to write the fixture files into")
	seed := flag.Int64("seed", 1, "random seed, fixed for reproducible fixtures")
	archiveDays := flag.Int("archive-days", 8, "days of data before the vintage cutover")
	currentDays := flag.Int("current-days", 7, "days of data from the cutover on")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	caseCurrent, caseArchive := genCaseRows(rng, *archiveDays, *currentDays)
	hospCurrent, hospArchive := genHospitalRows(rng, *archiveDays, *currentDays)
	popRows := genPopulationRows(rng)

	files := []struct {
		name   string
		header []string
		rows   [][]string
	}{
		{"cases_current.csv", caseHeader(), caseCurrent},
		{"cases_archive.csv", caseHeader(), caseArchive},
		{"hospital_current.csv", hospitalHeader(), hospCurrent},
		{"hospital_archive.csv", hospitalHeader(), hospArchive},
		{"population.csv", []string{"RegioS", "Perioden", "TotaleBevolking_1"}, popRows},
	}
	for _, f := range files {
		path := filepath.Join(*outDir, f.name)
		if err := writeCSV(path, f.header, f.rows); err != nil {
			return fmt.Errorf("write %s: %w", f.name, err)
		}
		log.Printf("wrote %s: %d rows", path, len(f.rows))
	}

	boundariesPath := filepath.Join(*outDir, "municipalities.geojson")
	if err := writeBoundaries(boundariesPath); err != nil {
		return fmt.Errorf("write boundaries: %w", err)
	}
	log.Printf("wrote %s", boundariesPath)

	printStats(caseCurrent, caseArchive, hospCurrent, hospArchive, popRows)
	return nil
}

func caseHeader() []string {
	return []string{"Date_of_publication", "Municipality_code", "Municipality_name", "Province", "Total_reported", "Deceased"}
}

func hospitalHeader() []string {
	return []string{"Date_of_statistics", "Municipality_code", "Municipality_name", "Hospital_admission"}
}

// genCaseRows produces one row per municipality per day, split at the
// cutover into the two vintages. The archive vintage uses the retired codes
// where a reorganization applies; the current vintage only the live ones. A
// summary row without a municipality code and one malformed count are mixed
// in so the cleaner's drop and coercion paths get exercised.
func genCaseRows(rng *rand.Rand, archiveDays, currentDays int) (current, archive [][]string) {
	day := func(offset int) time.Time { return cutover.AddDate(0, 0, offset) }

	for offset := -archiveDays; offset < currentDays; offset++ {
		d := day(offset)
		vintage := &current
		stamp := d.Format("2006-01-02 15:04:05")
		if offset < 0 {
			vintage = &archive
		}
		for _, m := range municipalities {
			if m.retired && offset >= 0 {
				continue
			}
			if m.code == "GM1992" && offset < 0 {
				continue // merged unit does not exist in the archive vintage
			}
			*vintage = append(*vintage, []string{
				stamp, m.code, m.name, m.province,
				fmt.Sprint(rng.Intn(200)), fmt.Sprint(rng.Intn(4)),
			})
		}
		// National summary row, present in the real extracts.
		*vintage = append(*vintage, []string{stamp, "", "", "", fmt.Sprint(rng.Intn(2000)), fmt.Sprint(rng.Intn(30))})
	}

	// One malformed count in the current vintage.
	if len(current) > 0 {
		current[0][4] = "n/a"
	}
	return current, archive
}

func genHospitalRows(rng *rand.Rand, archiveDays, currentDays int) (current, archive [][]string) {
	day := func(offset int) time.Time { return cutover.AddDate(0, 0, offset) }

	for offset := -archiveDays; offset < currentDays; offset++ {
		d := day(offset)
		vintage := &current
		if offset < 0 {
			vintage = &archive
		}
		for _, m := range municipalities {
			if m.retired && offset >= 0 {
				continue
			}
			if m.code == "GM1992" && offset < 0 {
				continue
			}
			*vintage = append(*vintage, []string{
				d.Format("2006-01-02"), m.code, m.name, fmt.Sprint(rng.Intn(12)),
			})
		}
	}
	return current, archive
}

// genPopulationRows emits CBS-style yearly totals per municipality, plus a
// Haaren row that the harmonizer must redistribute and non-municipal rows
// the builder must skip.
func genPopulationRows(rng *rand.Rand) [][]string {
	var rows [][]string
	for _, year := range []int{2021, 2022} {
		period := fmt.Sprintf("%dJJ00", year)
		for _, m := range municipalities {
			if m.code == "GM1992" && year < 2022 {
				continue
			}
			if m.retired && year > 2021 {
				continue
			}
			rows = append(rows, []string{m.code, period, fmt.Sprint(20000 + rng.Intn(800000))})
		}
	}
	// Haaren existed through 2020; its figure is split over four successors.
	rows = append(rows, []string{"GM0788", "2020JJ00", "14400"})
	// Province and national totals, filtered out by the GM prefix.
	rows = append(rows, []string{"PV27", "2021JJ00", "2890000"})
	rows = append(rows, []string{"NL01", "2021JJ00", "17590000"})
	return rows
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = ';'
	if err := w.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// writeBoundaries lays the live municipalities out on a unit grid. The
// shapes are synthetic; the codes and property names match the CBS file.
func writeBoundaries(path string) error {
	fc := geojson.FeatureCollection{}
	col := 0
	for _, m := range municipalities {
		if m.retired {
			continue
		}
		x := float64(col)
		col++
		square := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
			{x, 0}, {x + 1, 0}, {x + 1, 1}, {x, 1}, {x, 0},
		}})
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry: square,
			Properties: map[string]interface{}{
				"statcode": m.code,
				"statnaam": m.name,
				"province": m.province,
			},
		})
	}
	data, err := json.MarshalIndent(&fc, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

// printStats runs the fixtures through the actual cleaners and join so the
// printed numbers can be pasted into test assertions.
func printStats(caseCurrent, caseArchive, hospCurrent, hospArchive, popRows [][]string) {
	domain.SetClock(clockwork.NewFakeClockAt(
		time.Date(2022, time.January, 1, 6, 0, 0, 0, time.UTC),
	))
	defer domain.SetClock(nil)

	toCaseRows := func(rows [][]string) []domain.RawCaseRow {
		out := make([]domain.RawCaseRow, 0, len(rows))
		for _, r := range rows {
			out = append(out, domain.RawCaseRow{
				DateOfPublication: r[0], MunicipalityCode: r[1], MunicipalityName: r[2],
				Province: r[3], TotalReported: r[4], Deceased: r[5],
			})
		}
		return out
	}
	toHospRows := func(rows [][]string) []domain.RawHospitalRow {
		out := make([]domain.RawHospitalRow, 0, len(rows))
		for _, r := range rows {
			out = append(out, domain.RawHospitalRow{
				DateOfStatistics: r[0], MunicipalityCode: r[1], MunicipalityName: r[2], HospitalAdmission: r[3],
			})
		}
		return out
	}
	toPopRows := func(rows [][]string) []domain.RawPopulationRow {
		out := make([]domain.RawPopulationRow, 0, len(rows))
		for _, r := range rows {
			out = append(out, domain.RawPopulationRow{Region: r[0], Period: r[1], Population: r[2]})
		}
		return out
	}

	rule := domain.DefaultMergeRule()
	cases, caseStats := domain.CleanCases(toCaseRows(append(caseCurrent, caseArchive...)), rule)
	hospital, hospStats := domain.CleanHospital(toHospRows(append(hospCurrent, hospArchive...)), rule)
	population, popStats := domain.BuildPopulation(toPopRows(popRows), domain.NewDefaultHarmonizer())
	ds, joinStats := domain.BuildDataset(cases, hospital, population)

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Cases: in=%d out=%d summary_dropped=%d malformed=%d merged=%d\n",
		caseStats.RowsIn, caseStats.RowsOut, caseStats.SummaryRowsDropped,
		caseStats.MalformedNumbers, caseStats.DuplicateKeysMerged)
	fmt.Printf("Hospital: in=%d out=%d summary_dropped=%d merged=%d\n",
		hospStats.RowsIn, hospStats.RowsOut, hospStats.SummaryRowsDropped, hospStats.DuplicateKeysMerged)
	fmt.Printf("Population: in=%d out=%d malformed=%d\n", popStats.RowsIn, popStats.RowsOut, popStats.MalformedNumbers)
	fmt.Printf("Join: matched=%d case_only=%d hospital_only=%d\n",
		joinStats.Matched, joinStats.CaseOnly, joinStats.HospitalOnly)
	fmt.Printf("Final dataset: %d records, generated_at=%s\n",
		len(ds.Records), ds.GeneratedAt.Format(time.RFC3339))

	withRate := 0
	for i := range ds.Records {
		if ds.Records[i].IncidenceRateCases != nil {
			withRate++
		}
	}
	fmt.Printf("Records with a case incidence rate: %d\n", withRate)
}
