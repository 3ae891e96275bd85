package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gallopml/gallop/pkg/api"
	"github.com/gallopml/gallop/pkg/artifact"
	"github.com/gallopml/gallop/pkg/config"
	"github.com/gallopml/gallop/pkg/history"
	"github.com/gallopml/gallop/pkg/logx"
	"github.com/gallopml/gallop/pkg/metrics"
)

const (
	version = "1.0.0-dev"
	appName = "gallopd"
)

func main() {
	var (
		configFile  = flag.String("config", "/etc/gallop/config.json", "Config file path")
		logLevel    = flag.String("log-level", "", "Log level override (debug|info|warn|error)")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", appName, version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger := logx.New(cfg.LogLevel)
	logger.Info("starting gallop daemon",
		"version", version,
		"config", *configFile,
		"log_level", cfg.LogLevel,
	)

	storage, err := artifact.NewFSStorage(cfg.ArtifactDir)
	if err != nil {
		logger.Error("failed to open artifact storage", "error", err.Error(), "dir", cfg.ArtifactDir)
		os.Exit(1)
	}
	store := artifact.NewStore(storage, logger)

	hist, err := history.Open(history.Config{Path: cfg.HistoryDBPath}, logger)
	if err != nil {
		logger.Error("failed to open history database", "error", err.Error(), "path", cfg.HistoryDBPath)
		os.Exit(1)
	}
	defer hist.Close()

	var metricsServer *metrics.Server
	if cfg.MetricsListener {
		metricsServer = metrics.NewServer(logger)
		if err := metricsServer.Start(cfg.MetricsListenAddr); err != nil {
			logger.Error("failed to start metrics server", "error", err.Error())
			os.Exit(1)
		}
	}

	apiServer := api.NewServer(cfg, store, hist, metricsServer, logger)
	if err := apiServer.Start(cfg.APIListenAddr); err != nil {
		logger.Error("failed to start api server", "error", err.Error())
		os.Exit(1)
	}

	// Warm the artifact cache so the first prediction after a restart does
	// not pay the load
	if bundle, err := store.LoadLatest(); err != nil {
		logger.Warn("artifact preload failed", "error", err.Error())
	} else if bundle != nil {
		logger.Info("loaded trained model",
			"version", bundle.Version,
			"champion", bundle.Champion,
		)
	} else {
		logger.Info("no trained model yet, train via the api")
	}

	logger.Info("gallop daemon started",
		"api_addr", cfg.APIListenAddr,
		"metrics", cfg.MetricsListener,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig.String())

	if err := apiServer.Stop(); err != nil {
		logger.Error("api server shutdown failed", "error", err.Error())
	}
	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error("metrics server shutdown failed", "error", err.Error())
		}
	}
	logger.Info("gallop daemon stopped")
}
