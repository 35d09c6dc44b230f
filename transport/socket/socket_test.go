package socket

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rsbus/rsbus/event"
	"github.com/rsbus/rsbus/protocol"
	"github.com/rsbus/rsbus/scope"
)

func TestParseOptions_Defaults(t *testing.T) {
	opts, err := parseOptions(nil)
	if err != nil {
		t.Fatalf("parseOptions: %v", err)
	}
	if opts.host != "localhost" || opts.port != DefaultPort {
		t.Errorf("default endpoint %s:%d, want localhost:%d", opts.host, opts.port, DefaultPort)
	}
	if opts.role != roleAuto {
		t.Errorf("default role %q, want auto", opts.role)
	}
	if !opts.nodelay {
		t.Error("tcp nodelay should default on")
	}
}

func TestParseOptions_Rejects(t *testing.T) {
	if _, err := parseOptions(map[string]string{"port": "notaport"}); err == nil {
		t.Error("bad port accepted")
	}
	if _, err := parseOptions(map[string]string{"port": "70000"}); err == nil {
		t.Error("out-of-range port accepted")
	}
	if _, err := parseOptions(map[string]string{"server": "maybe"}); err == nil {
		t.Error("bad server role accepted")
	}
}

func TestHandshakeAndFraming(t *testing.T) {
	clientRaw, serverRaw := net.Pipe()

	type result struct {
		conn *busConnection
		err  error
	}
	clientDone := make(chan result, 1)
	go func() {
		c, err := newClientConnection(clientRaw)
		clientDone <- result{c, err}
	}()

	server, err := newServerConnection(serverRaw)
	if err != nil {
		t.Fatalf("server handshake: %v", err)
	}
	cr := <-clientDone
	if cr.err != nil {
		t.Fatalf("client handshake: %v", cr.err)
	}
	client := cr.conn
	defer client.close()
	defer server.close()

	sender := uuid.New()
	in := &protocol.Notification{
		EventID:    &protocol.EventID{SenderID: sender[:], SequenceNumber: 9},
		Scope:      []byte("/framing/"),
		WireSchema: []byte("utf-8-string"),
		Data:       []byte("over the wire"),
	}
	go func() {
		if err := client.send(in); err != nil {
			t.Errorf("send: %v", err)
		}
	}()

	out, err := server.receive()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if string(out.Data) != "over the wire" || out.EventID.SequenceNumber != 9 {
		t.Errorf("received %+v", out)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func TestBusEndToEnd(t *testing.T) {
	port := freePort(t)
	serverOpts := map[string]string{"host": "127.0.0.1", "port": strconv.Itoa(port), "server": "1"}
	in, err := factory{}.NewIn(serverOpts, nil)
	if err != nil {
		t.Fatalf("NewIn: %v", err)
	}
	in.SetScope(scope.MustParse("/integration/"))
	received := make(chan *event.Event, 1)
	in.SetObserver(func(e *event.Event) { received <- e })
	if err := in.Activate(); err != nil {
		t.Fatalf("activate in: %v", err)
	}
	defer in.Deactivate()

	clientOpts := map[string]string{"host": "127.0.0.1", "port": strconv.Itoa(port), "server": "0"}
	out, err := factory{}.NewOut(clientOpts, nil)
	if err != nil {
		t.Fatalf("NewOut: %v", err)
	}
	out.SetScope(scope.MustParse("/integration/"))
	if err := out.Activate(); err != nil {
		t.Fatalf("activate out: %v", err)
	}
	defer out.Deactivate()

	e := event.New(scope.MustParse("/integration/sub/"), "across processes")
	e.ID = event.ID{ParticipantID: uuid.New(), SequenceNumber: 1}
	if err := out.Publish(e); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-received:
		if got.Data != "across processes" {
			t.Errorf("received %v", got.Data)
		}
		if !got.Scope.Equal(e.Scope) {
			t.Errorf("received on %v, want %v", got.Scope, e.Scope)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event did not cross the bus")
	}
}

func TestAutoRoleFallsBackToClient(t *testing.T) {
	port := freePort(t)
	o := map[string]string{"host": "127.0.0.1", "port": strconv.Itoa(port), "server": "auto"}

	first, err := factory{}.NewOut(o, nil)
	if err != nil {
		t.Fatalf("NewOut: %v", err)
	}
	first.SetScope(scope.Root)
	if err := first.Activate(); err != nil {
		t.Fatalf("first activate: %v", err)
	}
	defer first.Deactivate()

	second, err := factory{}.NewOut(o, nil)
	if err != nil {
		t.Fatalf("NewOut: %v", err)
	}
	second.SetScope(scope.Root)
	if err := second.Activate(); err != nil {
		t.Fatalf("second activate: %v", err)
	}
	defer second.Deactivate()

	// Both connectors of this process share the one server bus.
	if first.(*Out).bus != second.(*Out).bus {
		t.Error("connectors of one process should share the bus")
	}
}
