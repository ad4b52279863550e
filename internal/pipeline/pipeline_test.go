package pipeline_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/couchcryptid/covid-data-etl/internal/domain"
	"github.com/couchcryptid/covid-data-etl/internal/observability"
	"github.com/couchcryptid/covid-data-etl/internal/pipeline"
)

// --- mocks ---

type mockExtractor struct {
	cases      []domain.RawCaseRow
	hospital   []domain.RawHospitalRow
	population []domain.RawPopulationRow

	// failures counts down: while positive, ExtractCases fails.
	mu       sync.Mutex
	failures int
}

func (m *mockExtractor) ExtractCases(_ context.Context) ([]domain.RawCaseRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return nil, errors.New("source unavailable")
	}
	return m.cases, nil
}

func (m *mockExtractor) ExtractHospital(_ context.Context) ([]domain.RawHospitalRow, error) {
	return m.hospital, nil
}

func (m *mockExtractor) ExtractPopulation(_ context.Context) ([]domain.RawPopulationRow, error) {
	return m.population, nil
}

type mockBoundarySource struct {
	boundaries []domain.Boundary
	err        error
}

func (m *mockBoundarySource) ExtractBoundaries(_ context.Context) ([]domain.Boundary, error) {
	return m.boundaries, m.err
}

type mockDatasetLoader struct {
	mu       sync.Mutex
	datasets []domain.Dataset
	err      error
	loaded   chan struct{}
}

func newMockDatasetLoader() *mockDatasetLoader {
	return &mockDatasetLoader{loaded: make(chan struct{}, 16)}
}

func (m *mockDatasetLoader) LoadDataset(_ context.Context, ds domain.Dataset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.datasets = append(m.datasets, ds)
	m.loaded <- struct{}{}
	return nil
}

func (m *mockDatasetLoader) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.datasets)
}

type geoCall struct {
	level  domain.GeoLevel
	period domain.Period
	rows   int
}

type mockGeoLoader struct {
	mu    sync.Mutex
	calls []geoCall
}

func (m *mockGeoLoader) LoadGeo(_ context.Context, level domain.GeoLevel, period domain.Period, records []domain.GeoRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, geoCall{level: level, period: period, rows: len(records)})
	return nil
}

func (m *mockGeoLoader) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func newTestMetrics() *observability.Metrics {
	// Use a fresh, unregistered set to avoid "already registered" panics.
	return observability.NewMetricsForTesting()
}

// --- fixtures ---

func fixtureExtractor() *mockExtractor {
	return &mockExtractor{
		cases: []domain.RawCaseRow{{
			DateOfPublication: "2022-01-05 10:00:00",
			MunicipalityCode:  "GM0363",
			MunicipalityName:  "Amsterdam",
			Province:          "Noord-Holland",
			TotalReported:     "120",
			Deceased:          "3",
		}},
		hospital: []domain.RawHospitalRow{{
			DateOfStatistics:  "2022-01-05",
			MunicipalityCode:  "GM0363",
			MunicipalityName:  "Amsterdam",
			HospitalAdmission: "7",
		}},
		population: []domain.RawPopulationRow{{
			Region:     "GM0363",
			Period:     "2022JJ00",
			Population: "870000",
		}},
	}
}

func fixtureBoundaries() *mockBoundarySource {
	square := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0},
	}})
	return &mockBoundarySource{boundaries: []domain.Boundary{{
		MunicipalityCode: "GM0363",
		MunicipalityName: "Amsterdam",
		Province:         "Noord-Holland",
		Geometry:         square,
	}}}
}

func newTestPipeline(ext *mockExtractor, bnd *mockBoundarySource, ds *mockDatasetLoader, geo *mockGeoLoader) *pipeline.Pipeline {
	return pipeline.New(
		ext, bnd, ds, geo,
		domain.NewUnionDissolver(),
		domain.NewDefaultHarmonizer(),
		domain.DefaultMergeRule(),
		slog.Default(),
		newTestMetrics(),
	)
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	ds := newMockDatasetLoader()
	geo := &mockGeoLoader{}
	p := newTestPipeline(fixtureExtractor(), fixtureBoundaries(), ds, geo)

	require.Error(t, p.CheckReadiness(context.Background()), "not ready before the first refresh")

	err := p.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, ds.count())
	records := ds.datasets[0].Records
	require.Len(t, records, 1)
	r := records[0]
	assert.Equal(t, "GM0363", r.MunicipalityCode)
	assert.Equal(t, 120, r.TotalReported)
	assert.Equal(t, 7, r.HospitalAdmission)
	require.NotNil(t, r.Population)
	assert.Equal(t, 870000.0, *r.Population)
	require.NotNil(t, r.IncidenceRateCases)
	assert.InDelta(t, 120.0/870000*100000, *r.IncidenceRateCases, 1e-9)

	assert.NoError(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_WritesAllGeoAggregates(t *testing.T) {
	ds := newMockDatasetLoader()
	geo := &mockGeoLoader{}
	p := newTestPipeline(fixtureExtractor(), fixtureBoundaries(), ds, geo)

	require.NoError(t, p.Run(context.Background()))

	require.Len(t, geo.calls, 6)
	seen := map[string]bool{}
	for _, c := range geo.calls {
		seen[c.level.String()+"/"+c.period.String()] = true
		assert.Equal(t, 1, c.rows)
	}
	for _, want := range []string{
		"municipality/monthly", "municipality/yearly",
		"province/monthly", "province/yearly",
		"national/monthly", "national/yearly",
	} {
		assert.True(t, seen[want], want)
	}
}

func TestPipeline_Run_ExtractError(t *testing.T) {
	ext := fixtureExtractor()
	ext.failures = 1
	ds := newMockDatasetLoader()
	p := newTestPipeline(ext, fixtureBoundaries(), ds, &mockGeoLoader{})

	err := p.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract cases")
	assert.Equal(t, 0, ds.count())
	assert.Error(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_BoundaryError(t *testing.T) {
	bnd := &mockBoundarySource{err: errors.New("no such file")}
	ds := newMockDatasetLoader()
	p := newTestPipeline(fixtureExtractor(), bnd, ds, &mockGeoLoader{})

	err := p.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract boundaries")
}

func TestPipeline_Run_LoadError(t *testing.T) {
	ds := newMockDatasetLoader()
	ds.err = errors.New("disk full")
	geo := &mockGeoLoader{}
	p := newTestPipeline(fixtureExtractor(), fixtureBoundaries(), ds, geo)

	err := p.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "load dataset")
	assert.Equal(t, 0, geo.count(), "geo outputs are not written after a failed dataset load")
}

func TestPipeline_RunEvery_SingleRun(t *testing.T) {
	ds := newMockDatasetLoader()
	p := newTestPipeline(fixtureExtractor(), fixtureBoundaries(), ds, &mockGeoLoader{})

	err := p.RunEvery(context.Background(), 0)

	require.NoError(t, err)
	assert.Equal(t, 1, ds.count())
}

func TestPipeline_RunEvery_SingleRunPropagatesError(t *testing.T) {
	ext := fixtureExtractor()
	ext.failures = 1
	p := newTestPipeline(ext, fixtureBoundaries(), newMockDatasetLoader(), &mockGeoLoader{})

	err := p.RunEvery(context.Background(), 0)

	assert.Error(t, err)
}

func TestPipeline_RunEvery_RepeatsOnInterval(t *testing.T) {
	ds := newMockDatasetLoader()
	p := newTestPipeline(fixtureExtractor(), fixtureBoundaries(), ds, &mockGeoLoader{})

	fakeClock := clockwork.NewFakeClock()
	p.SetClock(fakeClock)
	t.Cleanup(func() { p.SetClock(nil) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.RunEvery(ctx, time.Hour) }()

	<-ds.loaded
	fakeClock.BlockUntil(1)
	fakeClock.Advance(time.Hour)
	<-ds.loaded

	cancel()
	require.NoError(t, <-done)
	assert.GreaterOrEqual(t, ds.count(), 2)
}

func TestPipeline_RunEvery_ContinuesAfterFailure(t *testing.T) {
	ext := fixtureExtractor()
	ext.failures = 1
	ds := newMockDatasetLoader()
	p := newTestPipeline(ext, fixtureBoundaries(), ds, &mockGeoLoader{})

	fakeClock := clockwork.NewFakeClock()
	p.SetClock(fakeClock)
	t.Cleanup(func() { p.SetClock(nil) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.RunEvery(ctx, time.Hour) }()

	// First run fails; the loop must keep waiting for the next tick.
	fakeClock.BlockUntil(1)
	fakeClock.Advance(time.Hour)
	<-ds.loaded

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 1, ds.count())
}

func TestPipeline_RunEvery_StopsOnCancel(t *testing.T) {
	ds := newMockDatasetLoader()
	p := newTestPipeline(fixtureExtractor(), fixtureBoundaries(), ds, &mockGeoLoader{})

	fakeClock := clockwork.NewFakeClock()
	p.SetClock(fakeClock)
	t.Cleanup(func() { p.SetClock(nil) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.RunEvery(ctx, time.Hour) }()

	<-ds.loaded
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("RunEvery did not stop after cancellation")
	}
}
