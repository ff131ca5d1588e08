package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/minicanvas/ws-backend/internal/logging"
	"github.com/minicanvas/ws-backend/internal/server"
	"github.com/minicanvas/ws-backend/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := server.NewConfigFromEnv()
	server.SetConfig(cfg)
	logging.Setup(cfg.LogFile)
	defer logging.Sync()

	logging.Infof("Starting MiniCanvas relay...")

	if cfg.JWTSecret == "" {
		logging.Warnf("JWT_SECRET is empty; every connection attempt will be rejected")
	}

	st := openEventStore(cfg)
	server.StartHub(st)

	mux := server.SetupRoutes()
	httpServer := server.CreateServer(cfg.Port, mux)

	errCh := make(chan error, 1)
	go func() {
		if err := server.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Infof("Received signal %s, shutting down", sig)
	case err := <-errCh:
		logging.Errorf("HTTP server failed: %v", err)
	}

	if err := server.ShutdownServer(httpServer, shutdownTimeout); err != nil {
		logging.Errorf("HTTP server shutdown: %v", err)
	}
	if err := server.GetHub().Shutdown(shutdownTimeout); err != nil {
		logging.Errorf("Hub shutdown: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := st.Close(ctx); err != nil {
		logging.Errorf("Event store close: %v", err)
	}
}

// openEventStore connects to MongoDB when configured and falls back to
// the in-memory store otherwise.
func openEventStore(cfg *server.Config) store.EventStore {
	if cfg.Mongo.URI == "" {
		logging.Warnf("MONGO_URI not set; chat events will be kept in memory only")
		return store.NewMemoryStore()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st, err := store.NewMongoStore(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Collection)
	if err != nil {
		logging.Errorf("Failed to open event store: %v", err)
		os.Exit(1)
	}
	logging.Infof("Connected to MongoDB, persisting events to %s.%s", cfg.Mongo.Database, cfg.Mongo.Collection)
	return st
}
