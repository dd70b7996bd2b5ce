package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hubfleet/hubfleet/bridge"
	"github.com/hubfleet/hubfleet/config"
	"github.com/hubfleet/hubfleet/mcp"
	"github.com/hubfleet/hubfleet/queue"
	"github.com/hubfleet/hubfleet/store"
	"github.com/hubfleet/hubfleet/transport"
	"github.com/hubfleet/hubfleet/web"
)

func main() {
	logger := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	slog.SetDefault(slog.New(logger))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	repo, cleanup := openRepository(cfg)
	defer cleanup()

	client := transport.NewClient(transport.NewTCPConn())
	if err := client.Connect(cfg.Broker.Host, cfg.Broker.Port); err != nil {
		slog.Error("Failed to connect to broker", "error", err)
		os.Exit(1)
	}

	b := bridge.New(client, repo, cfg.RootChannel, cfg.BridgeID)
	events := web.NewEventHub()
	b.OnEvent(events.Broadcast)

	if err := b.Start(); err != nil {
		slog.Error("Failed to start bridge", "error", err)
		os.Exit(1)
	}
	client.Start()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumer, err := queue.NewConsumer(cfg.Queue.URL, cfg.Queue.Subject, b)
	if err != nil {
		slog.Error("Failed to connect to command queue", "error", err)
		os.Exit(1)
	}
	go func() {
		if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("Queue consumer stopped", "error", err)
		}
	}()

	srv := web.NewServer(cfg.HTTPAddr, repo, b, events)
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("Web server stopped", "error", err)
		}
	}()

	if cfg.EnableMCP {
		mcpServer := mcp.NewMCPServer()
		mcp.NewTools(repo, b).Register(mcpServer)
		go mcpServer.Run()
	}

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Web server shutdown failed", "error", err)
	}
	consumer.Close()
	client.Stop()
}

// openRepository selects the backing store. Without a DSN or the embedded
// flag, state lives in memory and is lost on restart.
func openRepository(cfg *config.Config) (store.Repository, func()) {
	if cfg.Database.DSN == "" && !cfg.Database.Embedded {
		slog.Warn("No database configured, using in-memory store")
		return store.NewMemory(), func() {}
	}

	db, err := store.Open(cfg.Database.DSN, cfg.Database.Embedded)
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	return store.NewGormRepository(db.DB), func() {
		if err := db.Close(); err != nil {
			slog.Warn("Database close failed", "error", err)
		}
	}
}
