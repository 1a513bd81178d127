package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"krishimitra/config"
	"krishimitra/db"
	khttp "krishimitra/http"
	"krishimitra/logging"
	"krishimitra/market"
	"krishimitra/ml"
	"krishimitra/monitoring"
	"krishimitra/plant"
	"krishimitra/predict"
	"krishimitra/sensor"
	"krishimitra/weather"
)

// snapshotStore is what both storage backends provide.
type snapshotStore interface {
	sensor.Store
	predict.Recorder
	Close() error
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "krishimitra: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Initialize storage
	store, predictions, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	defer store.Close()
	logger.Info("store ready", zap.String("driver", cfg.Store.Driver))

	// 3. Models: best-effort load at startup, lazy afterwards
	models := ml.NewStore(cfg.Models.Dir, []ml.Spec{
		predict.CropSpec(cfg.Models.Crop.Classifier),
		predict.SoilSpec(cfg.Models.Soil.Health, cfg.Models.Soil.Issues, cfg.Models.Soil.Scaler),
	}, logger)
	guard := ml.NewGuard(models, logger)
	guard.OnLoad(monitoring.ObserveModelLoad)
	guard.LoadAll(ctx)

	var watcher *ml.Watcher
	if cfg.Models.Watch {
		watcher, err = ml.NewWatcher(guard, cfg.Models.WatchDebounce, logger)
		if err != nil {
			logger.Warn("model watcher disabled", zap.Error(err))
		} else {
			go watcher.Run(ctx)
		}
	}

	// 4. Services
	hub := monitoring.NewWebSocketHub(cfg.HTTP.AllowedOrigins, logger)
	go hub.Run(ctx)

	crop := predict.NewCropService(guard, store, logger)
	soil := predict.NewSoilService(guard, store, logger)
	plantClient := plant.NewClient(cfg.Plant, logger)
	if !plantClient.Configured() {
		logger.Warn("plant inference url not set, plant endpoints will return 503")
	}

	deps := khttp.Deps{
		Crop:   crop,
		Soil:   soil,
		Guard:  guard,
		Sensor: sensor.NewService(store, weather.NewClient(cfg.Weather, logger), soil, hub, cfg.Store.DefaultDevice, logger),
		Hub:    hub,
		Plant:  plantClient,
		Market: market.NewClient(cfg.Market, logger),
	}
	if predictions != nil {
		deps.Predictions = predictions
	}

	// 5. Start HTTP server
	server := khttp.NewServer(cfg.HTTP, deps, logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// 6. Handle graceful shutdown
	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	stop()
	<-hub.Done()
	if watcher != nil {
		<-watcher.Done()
	}
	logger.Info("exiting")
	return nil
}

// openStore opens the configured backend. The prediction log is only
// queryable on sqlite.
func openStore(ctx context.Context, cfg config.StoreConfig) (snapshotStore, khttp.PredictionLog, error) {
	switch cfg.Driver {
	case "redis":
		r, err := db.OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return r, nil, nil
	default:
		s, err := db.OpenSQLite(filepath.Clean(cfg.Path))
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	}
}
