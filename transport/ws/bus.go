package ws

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rsbus/rsbus/internal/dispatch"
	"github.com/rsbus/rsbus/protocol"
	"github.com/rsbus/rsbus/scope"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// sendBuffer is the per-peer outgoing frame queue; a peer that
	// cannot drain it in time is dropped.
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// peer is one websocket connection attached to a server bus.
type peer struct {
	conn *websocket.Conn
	send chan []byte
}

// Bus relays fragment frames between websocket peers and local
// connectors. The server role runs the HTTP endpoint; clients dial it.
type Bus struct {
	host   string
	port   int
	server bool

	log        *slog.Logger
	dispatcher *dispatch.ScopeDispatcher[*In]
	pool       *protocol.AssemblyPool

	mu       sync.Mutex
	httpSrv  *http.Server
	peers    map[*peer]struct{}
	client   *websocket.Conn
	clientMu sync.Mutex // serializes writes on the client conn
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

func acquireBus(host string, port int, role string) (*Bus, error) {
	busesMu.Lock()
	defer busesMu.Unlock()

	roles := []bool{role == roleServer}
	if role == roleAuto {
		roles = []bool{true, false}
	}

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
		b := &Bus{
			host:       host,
			port:       port,
			server:     server,
			log:        slog.Default().With("transport", Name, "endpoint", fmt.Sprintf("%s:%d", host, port)),
			dispatcher: dispatch.NewScopeDispatcher[*In](),
			pool:       protocol.NewAssemblyPool(),
			peers:      make(map[*peer]struct{}),
			refs:       1,
		}
		var err error
		if server {
			err = b.activateServer()
		} else {
			err = b.activateClient()
		}
		if err != nil {
			lastErr = err
			continue
		}
		buses[busKey{host: host, port: port, server: server}] = b
		return b, nil
	}
	return nil, lastErr
}

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

func (b *Bus) activateServer() error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", b.host, b.port))
	if err != nil {
		return fmt.Errorf("ws: listen: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(streamPath, b.handleStream)
	b.httpSrv = &http.Server{Handler: mux}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := b.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			b.log.Error("serve failed", "error", err)
		}
	}()
	b.log.Info("ws bus server listening")
	return nil
}

func (b *Bus) activateClient() error {
	url := fmt.Sprintf("ws://%s:%d%s", b.host, b.port, streamPath)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("ws: dial %s: %w", url, err)
	}
	b.client = conn
	b.wg.Add(1)
	go b.clientReadLoop()
	b.log.Info("attached to ws bus server")
	return nil
}

func (b *Bus) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("upgrade failed", "error", err)
		return
	}
	p := &peer{conn: conn, send: make(chan []byte, sendBuffer)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		conn.Close()
		return
	}
	b.peers[p] = struct{}{}
	b.mu.Unlock()
	b.log.Info("peer attached", "remote", conn.RemoteAddr())

	b.wg.Add(2)
	go b.writePump(p)
	go b.readPump(p)
}

// readPump consumes frames from one attached peer, rebroadcasting each
// to the other peers and dispatching it locally.
func (b *Bus) readPump(p *peer) {
	defer b.wg.Done()
	defer b.dropPeer(p)

	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		p.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		kind, frame, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		b.broadcast(frame, p)
		b.dispatchFrame(frame)
	}
}

func (b *Bus) writePump(p *peer) {
	defer b.wg.Done()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case frame, ok := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				p.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := p.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				b.dropPeer(p)
				return
			}
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				b.dropPeer(p)
				return
			}
		}
	}
}

func (b *Bus) dropPeer(p *peer) {
	b.mu.Lock()
	_, had := b.peers[p]
	if had {
		delete(b.peers, p)
		close(p.send)
	}
	b.mu.Unlock()

	if had {
		p.conn.Close()
		b.log.Info("peer gone", "remote", p.conn.RemoteAddr())
	}
}

func (b *Bus) clientReadLoop() {
	defer b.wg.Done()
	for {
		kind, frame, err := b.client.ReadMessage()
		if err != nil {
			b.mu.Lock()
			closed := b.closed
			b.mu.Unlock()
			if !closed {
				b.log.Error("server connection lost", "error", err)
			}
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		b.dispatchFrame(frame)
	}
}

// sendFrames pushes encoded fragment frames towards the remote side:
// to every attached peer in the server role, to the server in the
// client role.
func (b *Bus) sendFrames(frames [][]byte) error {
	if b.server {
		for _, frame := range frames {
			b.broadcast(frame, nil)
		}
		return nil
	}

	b.clientMu.Lock()
	defer b.clientMu.Unlock()
	for _, frame := range frames {
		b.client.SetWriteDeadline(time.Now().Add(writeWait))
		if err := b.client.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			return fmt.Errorf("ws: send: %w", err)
		}
	}
	return nil
}

// broadcast queues one frame to every peer except the origin. A peer
// with a full queue is dropped, matching slow-consumer handling of the
// websocket hub pattern.
func (b *Bus) broadcast(frame []byte, except *peer) {
	// Queues are filled under the lock; dropPeer closes them under the
	// same lock, so a send can never hit a closed queue.
	b.mu.Lock()
	defer b.mu.Unlock()

	for p := range b.peers {
		if p == except {
			continue
		}
		select {
		case p.send <- frame:
		default:
			b.log.Warn("peer too slow, dropping", "remote", p.conn.RemoteAddr())
			delete(b.peers, p)
			close(p.send)
			p.conn.Close()
		}
	}
}

// dispatchFrame decodes one fragment frame and, once its notification
// is complete, hands it to the matching local connectors.
func (b *Bus) dispatchFrame(frame []byte) {
	fragment := new(protocol.FragmentedNotification)
	if err := fragment.UnmarshalBinary(frame); err != nil {
		b.log.Warn("dropping undecodable frame", "error", err)
		return
	}
	n, err := b.pool.Add(fragment)
	if err != nil {
		b.log.Warn("dropping fragment", "error", err)
		return
	}
	if n == nil {
		return
	}
	b.dispatchLocal(n)
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
	srv := b.httpSrv
	client := b.client
	for p := range b.peers {
		delete(b.peers, p)
		close(p.send)
		p.conn.Close()
	}
	b.mu.Unlock()

	if client != nil {
		client.Close()
	}
	if srv != nil {
		srv.Close()
	}
	b.wg.Wait()
	b.log.Info("ws bus shut down")
}
