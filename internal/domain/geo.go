package domain

import (
	"sort"
	"time"

	"github.com/twpayne/go-geom"
)

// Boundary is one municipality's outline with its province attribution,
// keyed by the same code space as the cleaned records.
type Boundary struct {
	MunicipalityCode string
	MunicipalityName string
	Province         string
	Geometry         geom.T
}

// GeoLevel is a geographic aggregation level.
type GeoLevel int

const (
	LevelMunicipality GeoLevel = iota
	LevelProvince
	LevelNational
)

func (l GeoLevel) String() string {
	switch l {
	case LevelMunicipality:
		return "municipality"
	case LevelProvince:
		return "province"
	case LevelNational:
		return "national"
	default:
		return "unknown"
	}
}

// Period is a temporal aggregation granularity for geo rollups.
type Period int

const (
	PeriodMonthly Period = iota
	PeriodYearly
)

func (p Period) String() string {
	switch p {
	case PeriodMonthly:
		return "monthly"
	case PeriodYearly:
		return "yearly"
	default:
		return "unknown"
	}
}

// GeoRecord is one geometry-bearing row of an aggregated table. At province
// level MunicipalityCode and MunicipalityName are empty; at national level
// Province is empty as well.
type GeoRecord struct {
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
	Geometry                       geom.T
}

// Dissolver unions member geometries into one shape. The key identifies the
// dissolved unit (e.g. "province/Utrecht") so implementations can cache:
// boundary sets change far less often than the data refreshes.
type Dissolver interface {
	Dissolve(key string, members []geom.T) geom.T
}

// unionDissolver dissolves without caching.
type unionDissolver struct{}

func (unionDissolver) Dissolve(_ string, members []geom.T) geom.T {
	return Union(members)
}

// NewUnionDissolver returns the plain uncached Dissolver.
func NewUnionDissolver() Dissolver {
	return unionDissolver{}
}

// Union collects the polygons of the member geometries into a single
// MultiPolygon. Members that are neither Polygon nor MultiPolygon, or whose
// layout differs from the first member's, are skipped.
func Union(members []geom.T) geom.T {
	mp := geom.NewMultiPolygon(geom.XY)
	for _, g := range members {
		switch g := g.(type) {
		case *geom.Polygon:
			_ = mp.Push(g)
		case *geom.MultiPolygon:
			for i := 0; i < g.NumPolygons(); i++ {
				_ = mp.Push(g.Polygon(i))
			}
		}
	}
	return mp
}

// MunicipalityGeo joins the final dataset to the boundary geometries by
// municipality code. Rows without a matching boundary are dropped (callers
// can detect this from the length difference). The incidence rates are
// recomputed here and must equal the joined dataset's; both go through
// [Rate].
func MunicipalityGeo(records []CovidRecord, boundaries []Boundary) []GeoRecord {
	byCode := make(map[string]Boundary, len(boundaries))
	for _, b := range boundaries {
		byCode[b.MunicipalityCode] = b
	}

	out := make([]GeoRecord, 0, len(records))
	for _, r := range records {
		b, ok := byCode[r.MunicipalityCode]
		if !ok {
			continue
		}
		out = append(out, GeoRecord{
			Date:                           r.Date,
			Month:                          r.Month,
			Year:                           r.Year,
			MunicipalityCode:               r.MunicipalityCode,
			MunicipalityName:               r.MunicipalityName,
			Province:                       r.Province,
			Population:                     clonePtr(r.Population),
			HospitalAdmission:              r.HospitalAdmission,
			TotalReported:                  r.TotalReported,
			Deceased:                       r.Deceased,
			IncidenceRateHospitalAdmission: Rate(float64(r.HospitalAdmission), r.Population),
			IncidenceRateCases:             Rate(float64(r.TotalReported), r.Population),
			IncidenceRateDeaths:            Rate(float64(r.Deceased), r.Population),
			Geometry:                       b.Geometry,
		})
	}
	return out
}

// ProvinceGeo rolls municipality-level geo records up to provinces: per
// (date, province), metrics and population are summed over the member
// municipalities, the member geometries are dissolved into one shape, and
// the rates are recomputed from the summed values. Rates are never carried
// over or averaged from the municipality level.
func ProvinceGeo(mun []GeoRecord, dissolver Dissolver) []GeoRecord {
	shapes := dissolveBy(mun, dissolver, "province", func(r GeoRecord) string { return r.Province })

	type key struct {
		date     int64
		province string
	}
	groups := make(map[key]*GeoRecord)
	for _, r := range mun {
		k := key{r.Date.Unix(), r.Province}
		g, ok := groups[k]
		if !ok {
			g = &GeoRecord{
				Date:     r.Date,
				Month:    r.Month,
				Year:     r.Year,
				Province: r.Province,
				Geometry: shapes[r.Province],
			}
			groups[k] = g
		}
		accumulate(g, r)
	}

	return finishGroups(groups, func(a, b *GeoRecord) bool {
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.Province < b.Province
	})
}

// NationalGeo rolls municipality-level geo records up to a single national
// row per date, with one unioned geometry repeated for every date.
func NationalGeo(mun []GeoRecord, dissolver Dissolver) []GeoRecord {
	shapes := dissolveBy(mun, dissolver, "national", func(GeoRecord) string { return "" })

	groups := make(map[int64]*GeoRecord)
	for _, r := range mun {
		k := r.Date.Unix()
		g, ok := groups[k]
		if !ok {
			g = &GeoRecord{
				Date:     r.Date,
				Month:    r.Month,
				Year:     r.Year,
				Geometry: shapes[""],
			}
			groups[k] = g
		}
		accumulate(g, r)
	}

	out := make([]*GeoRecord, 0, len(groups))
	for _, g := range groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return finish(out)
}

// AggregatePeriod rolls a level's daily geo records up to calendar months or
// years. Metrics are summed over the period; the population is the unit's
// figure for the period's year (constant across the period's days), and the
// rates are recomputed from the period sums. The row date becomes the first
// day of the period.
func AggregatePeriod(records []GeoRecord, p Period) []GeoRecord {
	type key struct {
		date int64
		unit string
	}
	groups := make(map[key]*GeoRecord)
	for _, r := range records {
		start := periodStart(r.Date, p)
		k := key{start.Unix(), r.MunicipalityCode + "|" + r.Province}
		g, ok := groups[k]
		if !ok {
			g = &GeoRecord{
				Date:             start,
				Month:            MonthOf(start),
				Year:             start.Year(),
				MunicipalityCode: r.MunicipalityCode,
				MunicipalityName: r.MunicipalityName,
				Province:         r.Province,
				Geometry:         r.Geometry,
			}
			groups[k] = g
		}
		g.HospitalAdmission += r.HospitalAdmission
		g.TotalReported += r.TotalReported
		g.Deceased += r.Deceased
		if g.Population == nil && r.Population != nil {
			g.Population = clonePtr(r.Population)
		}
	}

	return finishGroups(groups, func(a, b *GeoRecord) bool {
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Province != b.Province {
			return a.Province < b.Province
		}
		return a.MunicipalityCode < b.MunicipalityCode
	})
}

func periodStart(t time.Time, p Period) time.Time {
	if p == PeriodYearly {
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// dissolveBy computes one dissolved shape per unit, using each
// municipality's geometry exactly once regardless of how many dates it
// appears on.
func dissolveBy(mun []GeoRecord, dissolver Dissolver, level string, unitOf func(GeoRecord) string) map[string]geom.T {
	members := make(map[string][]geom.T)
	seen := make(map[string]bool)
	for _, r := range mun {
		if seen[r.MunicipalityCode] || r.Geometry == nil {
			continue
		}
		seen[r.MunicipalityCode] = true
		unit := unitOf(r)
		members[unit] = append(members[unit], r.Geometry)
	}

	shapes := make(map[string]geom.T, len(members))
	for unit, geoms := range members {
		shapes[unit] = dissolver.Dissolve(level+"/"+unit, geoms)
	}
	return shapes
}

// accumulate adds one municipality row into a rollup group.
func accumulate(g *GeoRecord, r GeoRecord) {
	g.HospitalAdmission += r.HospitalAdmission
	g.TotalReported += r.TotalReported
	g.Deceased += r.Deceased
	if r.Population != nil {
		if g.Population == nil {
			g.Population = Float(0)
		}
		*g.Population += *r.Population
	}
}

// finishGroups sorts rollup groups and recomputes their rates.
func finishGroups[K comparable](groups map[K]*GeoRecord, less func(a, b *GeoRecord) bool) []GeoRecord {
	out := make([]*GeoRecord, 0, len(groups))
	for _, g := range groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return finish(out)
}

// finish recomputes each group's rates from its own sums.
func finish(groups []*GeoRecord) []GeoRecord {
	out := make([]GeoRecord, len(groups))
	for i, g := range groups {
		g.IncidenceRateHospitalAdmission = Rate(float64(g.HospitalAdmission), g.Population)
		g.IncidenceRateCases = Rate(float64(g.TotalReported), g.Population)
		g.IncidenceRateDeaths = Rate(float64(g.Deceased), g.Population)
		out[i] = *g
	}
	return out
}

func clonePtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return Float(*v)
}
