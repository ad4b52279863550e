package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func popRow(region, period, population string) RawPopulationRow {
	return RawPopulationRow{Region: region, Period: period, Population: population}
}

func TestBuildPopulation(t *testing.T) {
	h := NewDefaultHarmonizer()

	t.Run("keeps municipality rows only", func(t *testing.T) {
		rows := []RawPopulationRow{
			popRow("GM0363", "2021JJ00", "870000"),
			popRow("PV27", "2021JJ00", "1350000"),
			popRow("NL01", "2021JJ00", "17400000"),
		}
		out, stats := BuildPopulation(rows, h)

		require.Len(t, out, 1)
		assert.Equal(t, "GM0363", out[0].MunicipalityCode)
		assert.Equal(t, 2021, out[0].Year)
		require.NotNil(t, out[0].Population)
		assert.Equal(t, 870000.0, *out[0].Population)
		assert.Equal(t, 2, stats.SummaryRowsDropped)
	})

	t.Run("extracts the year from the period string", func(t *testing.T) {
		rows := []RawPopulationRow{
			popRow("GM0363", "2020JJ00", "860000"),
			popRow("GM0363", "no-year-here", "1"),
		}
		out, stats := BuildPopulation(rows, h)

		require.Len(t, out, 1)
		assert.Equal(t, 2020, out[0].Year)
		assert.Equal(t, 1, stats.UnparseableDates)
	})

	t.Run("remaps obsolete codes and re-aggregates", func(t *testing.T) {
		// Heerhugowaard and Langedijk both became Dijk en Waard.
		rows := []RawPopulationRow{
			popRow("GM0398", "2020JJ00", "57000"),
			popRow("GM0416", "2020JJ00", "28000"),
		}
		out, stats := BuildPopulation(rows, h)

		require.Len(t, out, 1)
		assert.Equal(t, "GM1980", out[0].MunicipalityCode)
		assert.Equal(t, 85000.0, *out[0].Population)
		assert.Equal(t, 1, stats.DuplicateKeysMerged)
	})

	t.Run("redistributes the dissolved municipality", func(t *testing.T) {
		rows := []RawPopulationRow{
			popRow("GM0788", "2020JJ00", "4000"),
		}
		out, _ := BuildPopulation(rows, h)

		require.Len(t, out, 4)
		codes := make(map[string]float64)
		for _, r := range out {
			assert.Equal(t, 2020, r.Year)
			codes[r.MunicipalityCode] = *r.Population
		}
		for _, code := range []string{"GM0824", "GM0865", "GM0757", "GM0855"} {
			assert.Equal(t, 1000.0, codes[code], "code %s", code)
		}
	})

	t.Run("no obsolete code survives", func(t *testing.T) {
		rows := []RawPopulationRow{
			popRow("GM0363", "2021JJ00", "870000"),
			popRow("GM0788", "2020JJ00", "13000"),
		}
		for obsolete := range DefaultRemapTable() {
			rows = append(rows, popRow(obsolete, "2021JJ00", "10000"))
		}
		out, _ := BuildPopulation(rows, h)

		present := make(map[string]bool)
		for _, r := range out {
			present[r.MunicipalityCode] = true
		}
		for obsolete := range DefaultRemapTable() {
			assert.False(t, present[obsolete], "obsolete code %s present", obsolete)
		}
		assert.False(t, present["GM0788"], "dissolved code present")
	})

	t.Run("redistribution conserves the total", func(t *testing.T) {
		rows := []RawPopulationRow{
			popRow("GM0788", "2019JJ00", "13500"),
			popRow("GM0788", "2020JJ00", "13700"),
			popRow("GM0824", "2019JJ00", "26000"),
			popRow("GM0363", "2020JJ00", "870000"),
		}
		out, _ := BuildPopulation(rows, h)

		var total float64
		for _, r := range out {
			total += *r.Population
		}
		assert.InDelta(t, 13500+13700+26000+870000, total, 1e-9)
	})

	t.Run("malformed population coerces to missing", func(t *testing.T) {
		rows := []RawPopulationRow{
			popRow("GM0363", "2021JJ00", "."),
			popRow("GM0363", "2021JJ00", "870000"),
		}
		out, stats := BuildPopulation(rows, h)

		require.Len(t, out, 1)
		assert.Equal(t, 870000.0, *out[0].Population)
		assert.Equal(t, 1, stats.MalformedNumbers)
	})

	t.Run("output sorted by code then year", func(t *testing.T) {
		rows := []RawPopulationRow{
			popRow("GM0599", "2021JJ00", "650000"),
			popRow("GM0363", "2021JJ00", "870000"),
			popRow("GM0363", "2020JJ00", "860000"),
		}
		out, _ := BuildPopulation(rows, h)

		require.Len(t, out, 3)
		assert.Equal(t, "GM0363", out[0].MunicipalityCode)
		assert.Equal(t, 2020, out[0].Year)
		assert.Equal(t, 2021, out[1].Year)
		assert.Equal(t, "GM0599", out[2].MunicipalityCode)
	})
}
