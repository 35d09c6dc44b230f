// rsb-logger subscribes to a scope and logs every event it sees.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rsbus/rsbus"
	"github.com/rsbus/rsbus/event"
	"github.com/rsbus/rsbus/scope"

	_ "github.com/rsbus/rsbus/introspection"
	_ "github.com/rsbus/rsbus/transport/inprocess"
	_ "github.com/rsbus/rsbus/transport/socket"
	_ "github.com/rsbus/rsbus/transport/ws"
)

func main() {
	scopeFlag := flag.String("scope", "/", "scope to listen on")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	sc, err := scope.Parse(*scopeFlag)
	if err != nil {
		slog.Error("bad scope", "scope", *scopeFlag, "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rsbus.WatchConfig(ctx); err != nil {
		slog.Warn("config watching unavailable", "err", err)
	}

	listener, err := rsbus.CreateListener(sc)
	if err != nil {
		slog.Error("failed to create listener", "scope", sc.String(), "err", err)
		os.Exit(1)
	}
	defer listener.Deactivate()

	listener.AddHandler(func(e *event.Event) {
		slog.Info("event",
			"scope", e.Scope.String(),
			"id", e.ID.String(),
			"method", e.Method,
			"type", typeName(e),
			"data", e.Data,
			"causes", len(e.Causes()),
		)
	})

	slog.Info("rsb-logger listening", "scope", sc.String())
	<-ctx.Done()
	slog.Info("rsb-logger shutting down")
}

func typeName(e *event.Event) string {
	if e.Type == nil {
		return "<nil>"
	}
	return e.Type.String()
}
