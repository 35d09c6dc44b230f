// rsb-send publishes one string event, mainly for smoke-testing a bus.
package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/rsbus/rsbus"
	"github.com/rsbus/rsbus/scope"

	_ "github.com/rsbus/rsbus/introspection"
	_ "github.com/rsbus/rsbus/transport/inprocess"
	_ "github.com/rsbus/rsbus/transport/socket"
	_ "github.com/rsbus/rsbus/transport/ws"
)

func main() {
	scopeFlag := flag.String("scope", "/example/", "scope to publish on")
	data := flag.String("data", "", "string payload to publish")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	sc, err := scope.Parse(*scopeFlag)
	if err != nil {
		slog.Error("bad scope", "scope", *scopeFlag, "err", err)
		os.Exit(1)
	}

	informer, err := rsbus.CreateInformer(sc, nil)
	if err != nil {
		slog.Error("failed to create informer", "scope", sc.String(), "err", err)
		os.Exit(1)
	}
	defer informer.Deactivate()

	sent, err := informer.Publish(*data)
	if err != nil {
		slog.Error("publish failed", "err", err)
		os.Exit(1)
	}
	slog.Info("event published", "scope", sc.String(), "id", sent.ID.String())
}
