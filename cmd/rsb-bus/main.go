// rsb-bus runs a standalone bus server so other processes can attach
// as clients without electing a server among themselves.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rsbus/rsbus/scope"
	"github.com/rsbus/rsbus/transport"
	"github.com/rsbus/rsbus/transport/socket"
	"github.com/rsbus/rsbus/transport/ws"
)

func main() {
	host := flag.String("host", "localhost", "address to listen on")
	port := flag.Int("port", socket.DefaultPort, "socket bus port")
	wsPort := flag.Int("ws-port", 0, "websocket bus port; 0 disables the websocket bus")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("rsb-bus starting", "host", *host, "port", *port, "ws_port", *wsPort)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Holding one in-connector in the server role keeps the bus alive;
	// its events are discarded here, relaying happens inside the bus.
	conn := serve(socket.Name, map[string]string{
		"host": *host, "port": strconv.Itoa(*port), "server": "1",
	})
	defer conn.Deactivate()

	if *wsPort != 0 {
		wsConn := serve(ws.Name, map[string]string{
			"host": *host, "port": strconv.Itoa(*wsPort), "server": "1",
		})
		defer wsConn.Deactivate()
	}

	<-ctx.Done()
	slog.Info("rsb-bus shutting down")
}

func serve(name string, options map[string]string) transport.InConnector {
	factory, err := transport.Lookup(name)
	if err != nil {
		slog.Error("unknown transport", "transport", name, "err", err)
		os.Exit(1)
	}
	conn, err := factory.NewIn(options, nil)
	if err != nil {
		slog.Error("failed to create connector", "transport", name, "err", err)
		os.Exit(1)
	}
	conn.SetScope(scope.Root)
	if err := conn.Activate(); err != nil {
		slog.Error("failed to start bus server", "transport", name, "err", err)
		os.Exit(1)
	}
	slog.Info("bus server running", "transport", name, "url", conn.URL())
	return conn
}
