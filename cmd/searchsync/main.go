package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/storekit/searchsync/internal/api/rest"
	mongostore "github.com/storekit/searchsync/internal/catalog/mongo"
	"github.com/storekit/searchsync/internal/config"
	"github.com/storekit/searchsync/internal/events"
	"github.com/storekit/searchsync/internal/logging"
	"github.com/storekit/searchsync/internal/searchindex"
	"github.com/storekit/searchsync/internal/syncer"
)

func main() {
	// 1. Load Configuration
	cfg := config.LoadConfig()

	if err := logging.Initialize(cfg.Logging); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.Shutdown()
	logger := slog.Default()

	// 2. Connect Backends
	initCtx, initCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer initCancel()

	store, err := mongostore.NewStore(initCtx, cfg.Catalog)
	if err != nil {
		logger.Error("failed to connect to catalog store", "error", err)
		os.Exit(1)
	}

	writer := searchindex.NewMeiliWriter(cfg.Index)

	nc, err := nats.Connect(cfg.Events.URL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second))
	if err != nil {
		logger.Error("failed to connect to nats", "url", cfg.Events.URL, "error", err)
		os.Exit(1)
	}

	// 3. Build Services
	sync, err := syncer.New(cfg.Sync, store, writer, logger)
	if err != nil {
		logger.Error("failed to build syncer", "error", err)
		os.Exit(1)
	}

	detector := syncer.NewDetector(sync, logger)

	consumer, err := events.NewConsumer(cfg.Events, nc, sync, logger)
	if err != nil {
		logger.Error("failed to build event consumer", "error", err)
		os.Exit(1)
	}

	handler := rest.NewHandler(detector, sync, logger)
	server := rest.NewServer(cfg.Server, handler, logger)

	// 4. Start Background Tasks
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	if err := detector.Start(bgCtx); err != nil {
		logger.Error("failed to start drift detector", "error", err)
		os.Exit(1)
	}

	consumerDone := make(chan error, 1)
	go func() {
		consumerDone <- consumer.Start(bgCtx)
	}()

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Start()
	}()

	logger.Info("searchsync started", "addr", cfg.Server.Addr)

	// 5. Wait for Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-serverDone:
		if err != nil {
			logger.Error("http server failed", "error", err)
		}
	case err := <-consumerDone:
		if err != nil {
			logger.Error("event consumer failed", "error", err)
		}
	}

	// 6. Graceful Shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown failed", "error", err)
	}

	bgCancel()
	select {
	case <-consumerDone:
	case <-shutdownCtx.Done():
		logger.Warn("event consumer did not drain in time")
	}

	if err := detector.Stop(shutdownCtx); err != nil {
		logger.Warn("drift detector stop failed", "error", err)
	}

	nc.Close()
	if err := writer.Close(); err != nil {
		logger.Warn("index writer close failed", "error", err)
	}
	if err := store.Close(shutdownCtx); err != nil {
		logger.Warn("catalog store close failed", "error", err)
	}

	logger.Info("searchsync stopped")
}
