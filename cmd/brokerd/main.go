package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hubfleet/hubfleet/broker"
)

func main() {
	addr := flag.String("addr", "0.0.0.0:9000", "listen address")
	flag.Parse()

	logger := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	slog.SetDefault(slog.New(logger))

	srv := broker.NewTCPServer(*addr, broker.NewBroker())
	if err := srv.Start(); err != nil {
		slog.Error("Failed to start broker", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	if err := srv.Shutdown(); err != nil {
		slog.Warn("Broker shutdown failed", "error", err)
	}
}
