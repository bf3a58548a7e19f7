package main

import (
	"context"
	"fmt"
	"os"

	"github.com/MKhiriev/go-pos-sync/internal/config"
	"github.com/MKhiriev/go-pos-sync/internal/handler"
	"github.com/MKhiriev/go-pos-sync/internal/logger"
	"github.com/MKhiriev/go-pos-sync/internal/metrics"
	"github.com/MKhiriev/go-pos-sync/internal/server"
	"github.com/MKhiriev/go-pos-sync/internal/service"
	"github.com/MKhiriev/go-pos-sync/internal/store"
	"github.com/MKhiriev/go-pos-sync/internal/telemetry"
	"github.com/MKhiriev/go-pos-sync/internal/workers"
)

var (
	buildVersion string
	buildDate    string
	buildCommit  string
)

func main() {
	printBuildInfo()

	log := logger.NewLogger("go-pos-sync-server")
	cfg, err := config.GetStructuredConfig(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("error getting configs")
	}

	version := cfg.App.Version
	if version == "" {
		version = buildVersion
	}

	flushSentry, err := telemetry.ConfigureSentry(cfg.Telemetry, cfg.App.Environment, version)
	if err != nil {
		log.Fatal().Err(err).Msg("error configuring sentry")
	}
	defer flushSentry()

	ctx := context.Background()
	shutdownTracing, err := telemetry.ConfigureOTLP(ctx, cfg.Telemetry, version)
	if err != nil {
		log.Fatal().Err(err).Msg("error configuring tracing")
	}
	defer func() {
		if err := shutdownTracing(ctx); err != nil {
			log.Err(err).Msg("error flushing traces")
		}
	}()

	rules, err := config.LoadRules(cfg.Sync.RulesFile)
	if err != nil {
		log.Fatal().Err(err).Msg("error loading conflict rules")
	}

	storages, err := store.NewStorages(ctx, cfg.Storage, log)
	if err != nil {
		log.Fatal().Err(err).Msg("error creating storages")
	}
	defer func() {
		if err := storages.Close(); err != nil {
			log.Err(err).Msg("error closing storages")
		}
	}()

	info, err := service.NewAppInfoService(version, buildDate, buildCommit, log)
	if err != nil {
		log.Fatal().Err(err).Msg("error creating app info service")
	}

	sink := metrics.NewPrometheusSink()
	services := service.NewServices(storages, *cfg, rules, info, service.EngineOptions{Metrics: sink}, log)

	handlers, err := handler.NewHandlers(services, sink.Handler(), cfg.Server, log)
	if err != nil {
		log.Fatal().Err(err).Msg("error creating handlers")
	}

	background := workers.NewWorkers(services.MaintenanceService, handlers, cfg.Workers, log, workers.WorkerFunc(services.RunDedup))

	app, err := server.NewServer(handlers, cfg.Server, log, background)
	if err != nil {
		log.Fatal().Err(err).Msg("error creating server")
	}

	if err = app.Run(); err != nil {
		log.Err(err).Msg("server stopped with error")
	}
}

func printBuildInfo() {
	if buildVersion == "" {
		buildVersion = "N/A"
	}
	if buildDate == "" {
		buildDate = "N/A"
	}
	if buildCommit == "" {
		buildCommit = "N/A"
	}

	fmt.Printf("Build version: %s\n", buildVersion)
	fmt.Printf("Build date: %s\n", buildDate)
	fmt.Printf("Build commit: %s\n", buildCommit)
}
