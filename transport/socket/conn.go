package socket

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/rsbus/rsbus/protocol"
)

// Frames on the wire are a 4-byte little-endian length followed by an
// encoded rsb.protocol.Notification.
const lengthPrefixSize = 4

// maxFrameSize bounds a single notification so a corrupt length prefix
// cannot make the reader allocate without limit.
const maxFrameSize = 512 << 20

// busConnection is one framed TCP connection of a bus, either to a
// connected client (server role) or to the server (client role).
type busConnection struct {
	conn net.Conn

	writeMu sync.Mutex
}

// handshake is the 4-byte zero message exchanged when a client attaches.
var handshake [lengthPrefixSize]byte

// newClientConnection performs the client side of the attachment
// handshake on conn.
func newClientConnection(conn net.Conn) (*busConnection, error) {
	if _, err := conn.Write(handshake[:]); err != nil {
		return nil, fmt.Errorf("socket: handshake send: %w", err)
	}
	var ack [lengthPrefixSize]byte
	if _, err := io.ReadFull(conn, ack[:]); err != nil {
		return nil, fmt.Errorf("socket: handshake ack: %w", err)
	}
	if ack != handshake {
		return nil, fmt.Errorf("socket: unexpected handshake ack %x", ack)
	}
	return &busConnection{conn: conn}, nil
}

// newServerConnection performs the server side of the attachment
// handshake on an accepted conn.
func newServerConnection(conn net.Conn) (*busConnection, error) {
	var greeting [lengthPrefixSize]byte
	if _, err := io.ReadFull(conn, greeting[:]); err != nil {
		return nil, fmt.Errorf("socket: handshake recv: %w", err)
	}
	if greeting != handshake {
		return nil, fmt.Errorf("socket: unexpected handshake %x", greeting)
	}
	if _, err := conn.Write(handshake[:]); err != nil {
		return nil, fmt.Errorf("socket: handshake ack send: %w", err)
	}
	return &busConnection{conn: conn}, nil
}

// send frames and writes one notification. Safe for concurrent use.
func (c *busConnection) send(n *protocol.Notification) error {
	payload, err := n.MarshalBinary()
	if err != nil {
		return err
	}
	frame := make([]byte, lengthPrefixSize+len(payload))
	binary.LittleEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[lengthPrefixSize:], payload)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("socket: send: %w", err)
	}
	return nil
}

// receive reads and decodes one notification, blocking until a full
// frame arrives.
func (c *busConnection) receive() (*protocol.Notification, error) {
	var prefix [lengthPrefixSize]byte
	if _, err := io.ReadFull(c.conn, prefix[:]); err != nil {
		return nil, err
	}
	size := binary.LittleEndian.Uint32(prefix[:])
	if size > maxFrameSize {
		return nil, fmt.Errorf("socket: frame of %d bytes exceeds limit", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(c.conn, payload); err != nil {
		return nil, err
	}
	n := new(protocol.Notification)
	if err := n.UnmarshalBinary(payload); err != nil {
		return nil, err
	}
	return n, nil
}

func (c *busConnection) close() error { return c.conn.Close() }

func (c *busConnection) remoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}
