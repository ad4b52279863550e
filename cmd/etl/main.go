package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/covid-data-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/covid-data-etl/internal/adapter/geodata"
	httpadapter "github.com/couchcryptid/covid-data-etl/internal/adapter/http"
	"github.com/couchcryptid/covid-data-etl/internal/config"
	"github.com/couchcryptid/covid-data-etl/internal/domain"
	"github.com/couchcryptid/covid-data-etl/internal/observability"
	"github.com/couchcryptid/covid-data-etl/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	reader := csvfile.NewReader(
		cfg.CasesCurrentPath,
		cfg.CasesArchivePath,
		cfg.HospitalCurrentPath,
		cfg.HospitalArchivePath,
		cfg.PopulationPath,
		logger,
	)
	writer := csvfile.NewWriter(cfg.FinalPath(), logger)
	geoStore := geodata.NewStore(cfg.BoundariesPath, cfg.OutputDir, logger)
	dissolver := geodata.NewCachedDissolver(domain.NewUnionDissolver(), cfg.DissolveCacheSize)

	p := pipeline.New(
		reader,
		geoStore,
		writer,
		geoStore,
		dissolver,
		domain.NewDefaultHarmonizer(),
		domain.DefaultMergeRule(),
		logger,
		metrics,
	)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Run the refresh loop; a zero interval means a single run.
	runErr := p.RunEvery(ctx, cfg.RefreshInterval)
	if runErr != nil {
		logger.Error("pipeline error", "error", runErr)
	}

	stop()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	if runErr != nil {
		os.Exit(1)
	}
}
