// Package pipeline orchestrates the extract-transform-load refresh: read
// the raw extracts, clean and harmonize them, join, aggregate, and write
// the outputs. All data logic lives in the domain package; this package
// adds sequencing, logging, and metrics.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/covid-data-etl/internal/domain"
	"github.com/couchcryptid/covid-data-etl/internal/observability"
)

// Extractor reads the raw tabular extracts.
type Extractor interface {
	ExtractCases(ctx context.Context) ([]domain.RawCaseRow, error)
	ExtractHospital(ctx context.Context) ([]domain.RawHospitalRow, error)
	ExtractPopulation(ctx context.Context) ([]domain.RawPopulationRow, error)
}

// BoundarySource reads the municipal boundary geometries.
type BoundarySource interface {
	ExtractBoundaries(ctx context.Context) ([]domain.Boundary, error)
}

// DatasetLoader persists the final joined dataset.
type DatasetLoader interface {
	LoadDataset(ctx context.Context, ds domain.Dataset) error
}

// GeoLoader persists one aggregated geo table.
type GeoLoader interface {
	LoadGeo(ctx context.Context, level domain.GeoLevel, period domain.Period, records []domain.GeoRecord) error
}

// Pipeline runs the batch refresh.
type Pipeline struct {
	extractor  Extractor
	boundaries BoundarySource
	datasets   DatasetLoader
	geo        GeoLoader
	dissolver  domain.Dissolver
	harmonizer *domain.Harmonizer
	mergeRule  domain.MergeRule
	logger     *slog.Logger
	metrics    *observability.Metrics
	clock      clockwork.Clock
	ready      atomic.Bool
}

// New creates a Pipeline with the given stages and observability. The
// harmonizer and merge rule are injected so updated mapping tables need no
// code change.
func New(
	extractor Extractor,
	boundaries BoundarySource,
	datasets DatasetLoader,
	geo GeoLoader,
	dissolver domain.Dissolver,
	harmonizer *domain.Harmonizer,
	mergeRule domain.MergeRule,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *Pipeline {
	return &Pipeline{
		extractor:  extractor,
		boundaries: boundaries,
		datasets:   datasets,
		geo:        geo,
		dissolver:  dissolver,
		harmonizer: harmonizer,
		mergeRule:  mergeRule,
		logger:     logger,
		metrics:    metrics,
		clock:      clockwork.NewRealClock(),
	}
}

// SetClock swaps the time source driving the refresh loop. Tests inject a
// fake clock; pass nil to reset to real time.
func (p *Pipeline) SetClock(c clockwork.Clock) {
	if c == nil {
		p.clock = clockwork.NewRealClock()
		return
	}
	p.clock = c
}

// CheckReadiness returns nil once the pipeline has completed at least one
// successful refresh.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a refresh yet")
	}
	return nil
}

// Run executes one extract-transform-load refresh.
func (p *Pipeline) Run(ctx context.Context) error {
	start := time.Now()
	err := p.refresh(ctx)
	p.metrics.RefreshDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		p.metrics.RefreshRuns.WithLabelValues("error").Inc()
		return err
	}
	p.metrics.RefreshRuns.WithLabelValues("success").Inc()
	p.metrics.LastRefresh.SetToCurrentTime()
	p.ready.Store(true)
	p.logger.Info("refresh complete", "duration", time.Since(start).Round(time.Millisecond).String())
	return nil
}

// RunEvery runs an immediate refresh and then repeats on the given interval
// until the context is cancelled. A zero interval means run once. A failed
// refresh is logged and does not stop the loop.
func (p *Pipeline) RunEvery(ctx context.Context, interval time.Duration) error {
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	for {
		if err := p.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if interval == 0 {
				return err
			}
			p.logger.Error("refresh failed", "error", err)
		}
		if interval == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		case <-p.clock.After(interval):
		}
	}
}

// refresh is one full pass over the sources.
func (p *Pipeline) refresh(ctx context.Context) error {
	rawCases, err := p.extractor.ExtractCases(ctx)
	if err != nil {
		return fmt.Errorf("extract cases: %w", err)
	}
	p.metrics.RowsRead.WithLabelValues("cases").Add(float64(len(rawCases)))

	rawHospital, err := p.extractor.ExtractHospital(ctx)
	if err != nil {
		return fmt.Errorf("extract hospital admissions: %w", err)
	}
	p.metrics.RowsRead.WithLabelValues("hospital").Add(float64(len(rawHospital)))

	rawPopulation, err := p.extractor.ExtractPopulation(ctx)
	if err != nil {
		return fmt.Errorf("extract population: %w", err)
	}
	p.metrics.RowsRead.WithLabelValues("population").Add(float64(len(rawPopulation)))

	boundaries, err := p.boundaries.ExtractBoundaries(ctx)
	if err != nil {
		return fmt.Errorf("extract boundaries: %w", err)
	}

	cases, caseStats := domain.CleanCases(rawCases, p.mergeRule)
	p.recordCleanStats("cases", caseStats)

	hospital, hospStats := domain.CleanHospital(rawHospital, p.mergeRule)
	p.recordCleanStats("hospital", hospStats)

	population, popStats := domain.BuildPopulation(rawPopulation, p.harmonizer)
	p.recordCleanStats("population", popStats)

	ds, joinStats := domain.BuildDataset(cases, hospital, population)
	gaps := joinStats.CaseOnly + joinStats.HospitalOnly
	p.metrics.RowsDropped.WithLabelValues("join", "join_gap").Add(float64(gaps))
	p.logger.Info("joined sources",
		"matched", joinStats.Matched,
		"case_only", joinStats.CaseOnly,
		"hospital_only", joinStats.HospitalOnly,
	)

	if err := p.datasets.LoadDataset(ctx, ds); err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	p.metrics.RowsWritten.WithLabelValues("final").Add(float64(len(ds.Records)))

	return p.loadGeo(ctx, ds, boundaries)
}

// loadGeo builds the three geographic levels and writes the monthly and
// yearly rollup of each.
func (p *Pipeline) loadGeo(ctx context.Context, ds domain.Dataset, boundaries []domain.Boundary) error {
	mun := domain.MunicipalityGeo(ds.Records, boundaries)
	if dropped := len(ds.Records) - len(mun); dropped > 0 {
		p.metrics.RowsDropped.WithLabelValues("geo", "no_boundary").Add(float64(dropped))
		p.logger.Warn("rows without a boundary geometry", "dropped", dropped)
	}

	levels := []struct {
		level   domain.GeoLevel
		records []domain.GeoRecord
	}{
		{domain.LevelMunicipality, mun},
		{domain.LevelProvince, domain.ProvinceGeo(mun, p.dissolver)},
		{domain.LevelNational, domain.NationalGeo(mun, p.dissolver)},
	}
	for _, l := range levels {
		for _, period := range []domain.Period{domain.PeriodMonthly, domain.PeriodYearly} {
			rollup := domain.AggregatePeriod(l.records, period)
			if err := p.geo.LoadGeo(ctx, l.level, period, rollup); err != nil {
				return fmt.Errorf("load %s %s aggregate: %w", l.level, period, err)
			}
			p.metrics.RowsWritten.WithLabelValues("geo").Add(float64(len(rollup)))
		}
	}
	return nil
}

func (p *Pipeline) recordCleanStats(source string, stats domain.CleanStats) {
	p.metrics.RowsDropped.WithLabelValues(source, "bad_date").Add(float64(stats.UnparseableDates))
	p.metrics.RowsDropped.WithLabelValues(source, "summary_row").Add(float64(stats.SummaryRowsDropped))
	p.metrics.RowsCoerced.WithLabelValues(source).Add(float64(stats.MalformedNumbers))
	p.logger.Info("cleaned source",
		"source", source,
		"rows_in", stats.RowsIn,
		"rows_out", stats.RowsOut,
		"summary_rows_dropped", stats.SummaryRowsDropped,
		"unparseable_dates", stats.UnparseableDates,
		"malformed_numbers", stats.MalformedNumbers,
		"duplicate_keys_merged", stats.DuplicateKeysMerged,
	)
}
