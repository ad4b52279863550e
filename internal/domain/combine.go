package domain

import "sort"

// per100k is the standard epidemiological normalization base.
const per100k = 100_000

// JoinStats distinguishes design-intended join gaps from a data outage:
// CaseOnly and HospitalOnly count the (date, municipality) keys dropped
// because the other source had no row.
type JoinStats struct {
	Matched      int
	CaseOnly     int
	HospitalOnly int
}

// Combine full-outer-joins cleaned case and hospital records on
// (date, municipality code) and then keeps only the intersection: a row
// survives only when both sources reported for that date and municipality.
// The municipality name comes from the hospital side; province, year, and
// month come from the case side.
func Combine(cases []CaseRecord, hospital []HospitalRecord) ([]CovidRecord, JoinStats) {
	type key struct {
		date int64
		code string
	}

	caseByKey := make(map[key]CaseRecord, len(cases))
	for _, c := range cases {
		caseByKey[key{c.Date.Unix(), c.MunicipalityCode}] = c
	}
	hospByKey := make(map[key]HospitalRecord, len(hospital))
	for _, h := range hospital {
		hospByKey[key{h.Date.Unix(), h.MunicipalityCode}] = h
	}

	var stats JoinStats
	out := make([]CovidRecord, 0, len(caseByKey))
	for k, c := range caseByKey {
		h, ok := hospByKey[k]
		if !ok {
			stats.CaseOnly++
			continue
		}
		stats.Matched++
		out = append(out, CovidRecord{
			Date:              c.Date,
			Month:             c.Month,
			Year:              c.Year,
			MunicipalityCode:  c.MunicipalityCode,
			MunicipalityName:  h.MunicipalityName,
			Province:          c.Province,
			HospitalAdmission: h.HospitalAdmission,
			TotalReported:     c.TotalReported,
			Deceased:          c.Deceased,
		})
	}
	for k := range hospByKey {
		if _, ok := caseByKey[k]; !ok {
			stats.HospitalOnly++
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].MunicipalityCode < out[j].MunicipalityCode
	})
	return out, stats
}

// AddPopulationAndRates left-joins the population table on
// (municipality code, year) and computes the three incidence rates. Rows
// without a population record keep a nil population and nil rates.
func AddPopulationAndRates(covid []CovidRecord, population []PopulationRecord) []CovidRecord {
	type key struct {
		code string
		year int
	}
	popByKey := make(map[key]float64, len(population))
	for _, p := range population {
		if p.Population != nil {
			popByKey[key{p.MunicipalityCode, p.Year}] = *p.Population
		}
	}

	out := make([]CovidRecord, len(covid))
	for i, r := range covid {
		if pop, ok := popByKey[key{r.MunicipalityCode, r.Year}]; ok {
			r.Population = Float(pop)
		}
		r.IncidenceRateCases = Rate(float64(r.TotalReported), r.Population)
		r.IncidenceRateDeaths = Rate(float64(r.Deceased), r.Population)
		r.IncidenceRateHospitalAdmission = Rate(float64(r.HospitalAdmission), r.Population)
		out[i] = r
	}
	return out
}

// Rate computes an incidence rate per 100,000 population. It is the single
// rate definition used at every aggregation level. The result is nil when
// the population is missing or zero; a rate of zero always means zero
// observed events over a known population.
func Rate(count float64, population *float64) *float64 {
	if population == nil || *population == 0 {
		return nil
	}
	return Float(count / *population * per100k)
}

// BuildDataset runs the cross-source join and population enrichment and
// stamps the result with the current time.
func BuildDataset(cases []CaseRecord, hospital []HospitalRecord, population []PopulationRecord) (Dataset, JoinStats) {
	covid, stats := Combine(cases, hospital)
	covid = AddPopulationAndRates(covid, population)
	return Dataset{Records: covid, GeneratedAt: clock.Now()}, stats
}
