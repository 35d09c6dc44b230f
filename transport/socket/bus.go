package socket

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/rsbus/rsbus/internal/dispatch"
	"github.com/rsbus/rsbus/protocol"
	"github.com/rsbus/rsbus/scope"
)

// Bus is the per-endpoint hub shared by all socket connectors of one
// process. In the server role it owns the TCP listener and rebroadcasts
// every notification to all other attached connections; in the client
// role it holds the single connection to a remote server. Either way it
// also dispatches notifications to the local in-connectors, so
// participants of one process reach each other without a network round
// trip.
type Bus struct {
	host   string
	port   int
	server bool

	log        *slog.Logger
	dispatcher *dispatch.ScopeDispatcher[*In]

	mu       sync.Mutex
	listener net.Listener
	conns    map[*busConnection]struct{}
	refs     int
	closed   bool

	wg sync.WaitGroup
}

type busKey struct {
	host   string
	port   int
	server bool
}

var (
	busesMu sync.Mutex
	buses   = make(map[busKey]*Bus)
)

// acquireBus returns the shared bus for the endpoint and role, creating
// and activating it on first use. Each acquire must be paired with one
// release.
func acquireBus(host string, port int, role string, nodelay bool) (*Bus, error) {
	busesMu.Lock()
	defer busesMu.Unlock()

	roles := []bool{role == roleServer}
	if role == roleAuto {
		// Try to become the server; somebody already listening means we
		// join as a client.
		roles = []bool{true, false}
	}

	// A bus this process already runs for the endpoint is reused
	// regardless of the role it ended up with.
	for _, server := range roles {
		if b, ok := buses[busKey{host: host, port: port, server: server}]; ok {
			b.mu.Lock()
			b.refs++
			b.mu.Unlock()
			return b, nil
		}
	}

	var lastErr error
	for _, server := range roles {
		key := busKey{host: host, port: port, server: server}

		b := &Bus{
			host:       host,
			port:       port,
			server:     server,
			log:        slog.Default().With("transport", "socket", "endpoint", fmt.Sprintf("%s:%d", host, port)),
			dispatcher: dispatch.NewScopeDispatcher[*In](),
			conns:      make(map[*busConnection]struct{}),
			refs:       1,
		}
		var err error
		if server {
			err = b.activateServer(nodelay)
		} else {
			err = b.activateClient(nodelay)
		}
		if err != nil {
			lastErr = err
			continue
		}
		buses[key] = b
		return b, nil
	}
	return nil, lastErr
}

// release drops one reference; the last reference shuts the bus down.
func (b *Bus) release() {
	busesMu.Lock()
	b.mu.Lock()
	b.refs--
	done := b.refs == 0
	b.mu.Unlock()
	if done {
		delete(buses, busKey{host: b.host, port: b.port, server: b.server})
	}
	busesMu.Unlock()

	if done {
		b.shutdown()
	}
}

func (b *Bus) activateServer(nodelay bool) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", b.host, b.port))
	if err != nil {
		return fmt.Errorf("socket: listen: %w", err)
	}
	b.listener = ln
	b.log.Info("bus server listening")

	b.wg.Add(1)
	go b.acceptLoop(nodelay)
	return nil
}

func (b *Bus) activateClient(nodelay bool) error {
	raw, err := net.Dial("tcp", fmt.Sprintf("%s:%d", b.host, b.port))
	if err != nil {
		return fmt.Errorf("socket: dial: %w", err)
	}
	setNoDelay(raw, nodelay)
	conn, err := newClientConnection(raw)
	if err != nil {
		raw.Close()
		return err
	}
	b.addConn(conn)
	b.log.Info("attached to bus server")
	return nil
}

func (b *Bus) acceptLoop(nodelay bool) {
	defer b.wg.Done()
	for {
		raw, err := b.listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				b.log.Error("accept failed", "error", err)
			}
			return
		}
		setNoDelay(raw, nodelay)

		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			conn, err := newServerConnection(raw)
			if err != nil {
				b.log.Warn("client handshake failed", "error", err)
				raw.Close()
				return
			}
			b.log.Info("client attached", "remote", conn.remoteAddr())
			b.addConn(conn)
		}()
	}
}

func (b *Bus) addConn(conn *busConnection) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		conn.close()
		return
	}
	b.conns[conn] = struct{}{}
	b.mu.Unlock()

	b.wg.Add(1)
	go b.readLoop(conn)
}

func (b *Bus) readLoop(conn *busConnection) {
	defer b.wg.Done()
	for {
		n, err := conn.receive()
		if err != nil {
			b.removeConn(conn, err)
			return
		}
		b.handleIncoming(n, conn)
	}
}

func (b *Bus) removeConn(conn *busConnection, cause error) {
	b.mu.Lock()
	_, had := b.conns[conn]
	delete(b.conns, conn)
	closed := b.closed
	b.mu.Unlock()

	conn.close()
	if had && !closed {
		b.log.Info("connection gone", "remote", conn.remoteAddr(), "cause", cause)
	}
}

// handleIncoming processes one notification read from conn. A server
// rebroadcasts it to every other connection before local dispatch.
func (b *Bus) handleIncoming(n *protocol.Notification, from *busConnection) {
	if b.server {
		b.broadcast(n, from)
	}
	b.dispatchLocal(n)
}

// handleOutgoing processes one notification published by a local
// out-connector: it goes to all connections and to local listeners.
func (b *Bus) handleOutgoing(n *protocol.Notification) error {
	b.broadcast(n, nil)
	b.dispatchLocal(n)
	return nil
}

func (b *Bus) broadcast(n *protocol.Notification, except *busConnection) {
	b.mu.Lock()
	targets := make([]*busConnection, 0, len(b.conns))
	for conn := range b.conns {
		if conn != except {
			targets = append(targets, conn)
		}
	}
	b.mu.Unlock()

	for _, conn := range targets {
		if err := conn.send(n); err != nil {
			b.removeConn(conn, err)
		}
	}
}

func (b *Bus) dispatchLocal(n *protocol.Notification) {
	sc, err := scope.Parse(string(n.Scope))
	if err != nil {
		b.log.Warn("dropping notification with bad scope", "scope", string(n.Scope), "error", err)
		return
	}
	for _, in := range b.dispatcher.Matching(sc) {
		in.deliver(n)
	}
}

func (b *Bus) shutdown() {
	b.mu.Lock()
	b.closed = true
	if b.listener != nil {
		b.listener.Close()
	}
	for conn := range b.conns {
		conn.close()
		delete(b.conns, conn)
	}
	b.mu.Unlock()

	b.wg.Wait()
	b.log.Info("bus shut down")
}

func setNoDelay(conn net.Conn, nodelay bool) {
	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(nodelay)
	}
}
