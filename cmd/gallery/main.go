package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/photo-gallery/internal/client"
	"github.com/yourorg/photo-gallery/internal/config"
	"github.com/yourorg/photo-gallery/internal/list"
	"github.com/yourorg/photo-gallery/internal/proxy"
	"github.com/yourorg/photo-gallery/internal/token"
	"github.com/yourorg/photo-gallery/internal/viewer"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := createLogger(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Token stores: the file store for the foreground client, the bolt store
	// for the background interceptor. Login and logout touch both.
	fileStore := token.NewFileStore(cfg.Storage.TokenFile)
	boltStore, err := token.OpenBolt(cfg.Storage.BoltFile)
	if err != nil {
		logger.Fatal("Failed to open token database", zap.Error(err))
	}
	defer boltStore.Close()
	tokens := token.NewDualStore(fileStore, boltStore, logger)

	api := client.New(cfg.Backend.BaseURL, cfg.Backend.RequestTimeout, tokens, logger)

	blobs, err := client.NewBlobCache(cfg.Storage.BlobDir, api, logger)
	if err != nil {
		logger.Fatal("Failed to create blob cache", zap.Error(err))
	}
	defer blobs.Clear()

	ctrl := list.New(api, list.Options{
		PageSize:        cfg.Browse.PageSize,
		SearchDebounce:  cfg.Browse.SearchDebounce,
		ScrollThreshold: cfg.Browse.ScrollThreshold,
	}, logger)

	view := viewer.NewSession(ctrl, api, blobs, boltStore, viewer.Options{
		Gesture: viewer.Thresholds{
			Intent:         cfg.Viewer.IntentThreshold,
			TapSlop:        cfg.Viewer.TapSlop,
			TapMaxDuration: cfg.Viewer.TapMaxDuration,
			Nav:            cfg.Viewer.NavThreshold,
			Dismiss:        cfg.Viewer.DismissThreshold,
			Resistance:     cfg.Viewer.Resistance,
		},
		HintTimeout: cfg.Viewer.HintTimeout,
	}, logger)

	interceptor := proxy.NewInterceptor(cfg.Backend.BaseURL, cfg.Backend.MediaPathPrefixes, boltStore, logger)
	shell := proxy.NewShellCache(cfg.Backend.BaseURL, cfg.Shell.Index, cfg.Shell.CacheTTL, logger)
	session := proxy.NewSessionHandler(api, ctrl, view, logger)

	router := proxy.NewRouter(interceptor, shell, session, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	warmCtx, cancelWarm := context.WithCancel(context.Background())
	defer cancelWarm()
	go shell.Warm(warmCtx, cfg.Shell.WarmAssets)

	go func() {
		logger.Info("Starting gallery gateway", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down gateway...")
	view.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Gateway exited properly")
}

func createLogger(level string) (*zap.Logger, error) {
	var zapLevel zap.AtomicLevel
	switch level {
	case "debug":
		zapLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	cfg := zap.Config{
		Level:            zapLevel,
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return cfg.Build()
}
