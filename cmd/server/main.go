package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"offline-sync-service/internal/api"
	"offline-sync-service/internal/backend"
	"offline-sync-service/internal/config"
	"offline-sync-service/internal/logger"
	"offline-sync-service/internal/store"
	synccore "offline-sync-service/internal/sync"
)

func main() {
	// Load Config
	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Init Logger
	if err := logger.InitLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Log.Info("Starting Offline Sync Service")

	// Init Snapshot Store
	snapshots, err := store.NewSnapshotStore(cfg.StateStorage)
	if err != nil {
		logger.Log.Fatal("Failed to init snapshot store", zap.Error(err))
	}
	defer snapshots.Close()

	// Backends: explicit mock/real selection per config
	primary := backend.NewClient("primary", cfg.Backends.Primary)
	secondary := backend.NewClient("secondary", cfg.Backends.Secondary)
	monitor := backend.NewMonitor(true)

	// Init Sync Manager
	manager, err := synccore.NewManager(cfg, snapshots, primary, secondary, monitor, nil)
	if err != nil {
		logger.Log.Fatal("Failed to init sync manager", zap.Error(err))
	}
	manager.Start()

	// Scheduler for periodic drains
	scheduler := synccore.NewScheduler(cfg.Scheduler, manager)
	scheduler.Start()

	// Init API
	handler := api.NewHandler(manager, monitor, cfg.Server)
	router := handler.Routes()

	// Start Server
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.GetReadTimeout(),
		WriteTimeout: cfg.Server.GetWriteTimeout(),
	}

	go func() {
		logger.Log.Info("Server listening", zap.String("addr", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Log.Error("Server shutdown error", zap.Error(err))
	}

	scheduler.Stop()
	manager.Stop()
}
