package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"vortexflow/config"
	"vortexflow/internal/archive"
	"vortexflow/internal/dashboard"
	"vortexflow/internal/directory"
	"vortexflow/internal/hub"
	"vortexflow/internal/metrics"
	"vortexflow/internal/model"
	"vortexflow/internal/oracle"
	"vortexflow/internal/session"
	"vortexflow/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Vortexflow.Name,
		"version": cfg.Vortexflow.Version,
	}).Info("starting vortexflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.Prometheus.Enabled {
		metrics.InitPrometheus(cfg.Metrics.Prometheus.Address)
	}
	if cfg.Metrics.CloudWatch.Enabled {
		metrics.InitCloudWatch(cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace)
	}

	snapshotHub := hub.NewHub()
	controller := session.NewSession(cfg, snapshotHub)

	var archiver *archive.Archiver
	if cfg.Storage.S3.Enabled {
		archiver, err = archive.NewArchiver(cfg)
		if err != nil {
			log.WithError(err).Error("failed to create snapshot archiver")
			os.Exit(1)
		}
		if err := archiver.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start snapshot archiver")
			os.Exit(1)
		}
		snapshotHub.Subscribe(archiver.Record)
	} else {
		log.WithComponent("main").Info("S3 storage disabled; skipping archiver")
	}

	exchange, err := model.ParseExchange(cfg.Market.Exchange)
	if err != nil {
		log.WithError(err).Error("invalid market exchange in configuration")
		os.Exit(1)
	}
	market := model.MarketDef{
		Symbol:   strings.ToUpper(cfg.Market.Symbol),
		Exchange: exchange,
		Base:     cfg.Market.Base,
		Quote:    cfg.Market.Quote,
	}

	if err := controller.SelectMarket(ctx, market); err != nil {
		log.WithError(err).Error("failed to start market session")
		os.Exit(1)
	}

	markets := directory.NewDirectory(cfg)
	annotator := oracle.NewOracle(cfg.Oracle)

	server := dashboard.NewServer(cfg.Dashboard, controller, snapshotHub, markets, annotator)
	serverErr := make(chan error, 1)
	if server != nil {
		go func() {
			if err := server.Run(ctx); err != nil {
				serverErr <- err
			}
		}()
		log.WithComponent("main").WithFields(logger.Fields{
			"address": server.Address(),
		}).Info("dashboard server launched")
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
	case err := <-serverErr:
		log.WithError(err).Error("dashboard server failed")
	}

	log.Info("starting graceful shutdown")
	cancel()

	log.Info("stopping market session")
	controller.Stop()

	if archiver != nil {
		log.Info("stopping snapshot archiver")
		archiver.Stop()
	}

	log.Info("graceful shutdown completed")
	log.Info("vortexflow stopped")
}
