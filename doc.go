// Package rsbus is a scope-based publish/subscribe middleware.
//
// Events are published on hierarchical scopes such as /robot/arm/ and
// delivered to every listener whose scope is the event scope or one of
// its super-scopes. Participants (Informer, Listener, Reader and the
// request/reply servers in package patterns) attach to one or more
// transports selected by configuration; processes exchange events over
// the socket or websocket bus, participants inside one process can
// additionally use the in-process transport.
//
// A minimal publisher:
//
//	informer, err := rsbus.CreateInformer(scope.MustParse("/example/"), nil)
//	if err != nil { ... }
//	defer informer.Deactivate()
//	informer.Publish("hello")
package rsbus

import "log/slog"

func logger() *slog.Logger {
	return slog.Default().With("component", "rsbus")
}
