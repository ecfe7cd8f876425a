package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vigilstack/vigil-healer/internal/api"
	"github.com/vigilstack/vigil-healer/internal/cache"
	"github.com/vigilstack/vigil-healer/internal/config"
	"github.com/vigilstack/vigil-healer/internal/engine"
	"github.com/vigilstack/vigil-healer/internal/history"
	"github.com/vigilstack/vigil-healer/internal/infra"
	"github.com/vigilstack/vigil-healer/internal/llm"
	"github.com/vigilstack/vigil-healer/internal/metrics"
	"github.com/vigilstack/vigil-healer/internal/repo"
	"github.com/vigilstack/vigil-healer/internal/services"
	"github.com/vigilstack/vigil-healer/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting vigil-healer", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var cacheProvider cache.Provider = cache.NoopProvider{}
	if cfg.Cache.Enabled && cfg.Cache.Addr != "" {
		provider, err := cache.NewRedisProvider(cache.RedisConfig{
			Addr:     cfg.Cache.Addr,
			Username: cfg.Cache.Username,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			TLS:      cfg.Cache.TLS,
		})
		if err != nil {
			logger.Warn("redis cache unavailable", slog.Any("error", err))
		} else {
			cacheProvider = provider
		}
	}
	defer cacheProvider.Close()

	store := repo.NewInfluxStore(repo.InfluxConfig{
		URL:         cfg.Store.URL,
		Token:       cfg.Store.Token,
		Org:         cfg.Store.Org,
		Bucket:      cfg.Store.Bucket,
		Measurement: cfg.Store.Measurement,
		Timeout:     cfg.Store.Timeout,
	}, cacheProvider, cfg.Cache.SummaryTTL, logger)
	defer store.Close()

	reasoner, err := llm.New(cfg.Reasoner)
	if err != nil {
		logger.Error("failed to create reasoner client", slog.Any("error", err))
		os.Exit(1)
	}

	controller := infra.NewCLIController(cfg.Controller, logger)

	detector := engine.NewDetector(store, logger)
	predictor := engine.NewPredictor(reasoner, cfg.Reasoner.Timeout, logger)
	healer := engine.NewHealer(controller, cfg.Controller.VerifyWait, logger)
	ring := history.NewRing(cfg.History.Capacity)

	pipeline := engine.NewPipeline(logger, detector, predictor, healer, ring, cfg.Detector)
	healService := services.NewHealService(logger, pipeline, ring, store, reasoner)

	server, err := api.NewServer(cfg.Server, api.NewHandlers(healService, logger))
	if err != nil {
		logger.Error("failed to create HTTP server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("HTTP server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("vigil-healer stopped")
}
