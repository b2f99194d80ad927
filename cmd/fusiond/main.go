package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/Tuanph1970/air-quality-fusion-engine/internal/adapter/http"
	kafkaadapter "github.com/Tuanph1970/air-quality-fusion-engine/internal/adapter/kafka"
	mqttadapter "github.com/Tuanph1970/air-quality-fusion-engine/internal/adapter/mqtt"
	"github.com/Tuanph1970/air-quality-fusion-engine/internal/adapter/postgres"
	"github.com/Tuanph1970/air-quality-fusion-engine/internal/adapter/sensorapi"
	"github.com/Tuanph1970/air-quality-fusion-engine/internal/config"
	"github.com/Tuanph1970/air-quality-fusion-engine/internal/engine"
	"github.com/Tuanph1970/air-quality-fusion-engine/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Postgres backs the satellite, import, and result ports; without it the
	// engine fuses sensor data only and results live in memory.
	var (
		satellite engine.SatelliteSource
		imports   engine.BulkImportSource
		store     engine.ResultStore
	)
	if cfg.DatabaseURL != "" {
		pg, err := postgres.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		satellite, imports, store = pg, pg, pg
		logger.Info("postgres store enabled")
	} else {
		logger.Info("no DATABASE_URL, persistence disabled")
	}

	sink, closeSink, err := buildSink(cfg, logger)
	if err != nil {
		logger.Error("event sink setup failed", "error", err)
		os.Exit(1)
	}
	if closeSink != nil {
		defer closeSink()
	}

	sensors := sensorapi.NewClient(cfg, cfg.FetchTimeout, logger)

	eng := engine.New(satellite, sensors, imports, sink, store, logger, metrics, engine.Options{
		BBox:               cfg.Region,
		Pollutant:          cfg.Pollutant,
		SatelliteProducts:  cfg.SatelliteProducts,
		FetchTimeout:       cfg.FetchTimeout,
		DeviationThreshold: cfg.DeviationThreshold,
	})
	scheduler := engine.NewScheduler(eng, logger, cfg.FusionInterval, cfg.FusionWindow, true)

	srv := httpadapter.NewServer(cfg.HTTPAddr, eng, eng, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		if err := scheduler.Run(ctx); err != nil {
			logger.Error("scheduler error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

// buildSink selects the event transport from config. The returned close
// function is nil for the "none" sink.
func buildSink(cfg *config.Config, logger *slog.Logger) (engine.EventSink, func(), error) {
	switch cfg.EventSink {
	case "kafka":
		w := kafkaadapter.NewWriter(cfg, logger)
		return w, func() {
			if err := w.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}, nil
	case "mqtt":
		p, err := mqttadapter.NewPublisher(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return p, func() {
			if err := p.Close(); err != nil {
				logger.Error("mqtt publisher close error", "error", err)
			}
		}, nil
	default:
		logger.Info("event publication disabled")
		return nil, nil, nil
	}
}
