// Package socket implements the TCP bus transport.
//
// All connectors of one process that use the same endpoint share a Bus.
// Exactly one process per endpoint runs the bus server; every other
// process attaches as a client. The server relays each notification to
// all other attached processes, so the processes form a star topology
// with the server in the middle.
package socket

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/rsbus/rsbus/converter"
	"github.com/rsbus/rsbus/event"
	"github.com/rsbus/rsbus/filter"
	"github.com/rsbus/rsbus/protocol"
	"github.com/rsbus/rsbus/scope"
	"github.com/rsbus/rsbus/transport"
)

// Name is the configuration name of this transport.
const Name = "socket"

// DefaultPort is the bus endpoint port used when none is configured.
const DefaultPort = 55555

const (
	roleServer = "1"
	roleClient = "0"
	roleAuto   = "auto"
)

type options struct {
	host    string
	port    int
	role    string
	nodelay bool
}

func parseOptions(m map[string]string) (options, error) {
	opts := options{
		host:    "localhost",
		port:    DefaultPort,
		role:    roleAuto,
		nodelay: true,
	}
	if v, ok := m["host"]; ok {
		opts.host = v
	}
	if v, ok := m["port"]; ok {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			return opts, fmt.Errorf("socket: bad port %q", v)
		}
		opts.port = port
	}
	if v, ok := m["server"]; ok {
		switch v {
		case roleServer, roleClient, roleAuto:
			opts.role = v
		case "true", "yes":
			opts.role = roleServer
		case "false", "no":
			opts.role = roleClient
		default:
			return opts, fmt.Errorf("socket: bad server role %q", v)
		}
	}
	if v, ok := m["tcpnodelay"]; ok {
		switch v {
		case "1", "true", "yes":
			opts.nodelay = true
		case "0", "false", "no":
			opts.nodelay = false
		default:
			return opts, fmt.Errorf("socket: bad tcpnodelay %q", v)
		}
	}
	return opts, nil
}

type connector struct {
	opts options
	conv converter.Selection

	mu     sync.Mutex
	scope  scope.Scope
	bus    *Bus
	active bool
}

func (c *connector) Scope() scope.Scope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scope
}

func (c *connector) SetScope(sc scope.Scope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scope = sc
}

func (c *connector) URL() string {
	return fmt.Sprintf("socket://%s:%d", c.opts.host, c.opts.port)
}

func (c *connector) activate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return fmt.Errorf("socket: connector already active")
	}
	bus, err := acquireBus(c.opts.host, c.opts.port, c.opts.role, c.opts.nodelay)
	if err != nil {
		return err
	}
	c.bus = bus
	c.active = true
	return nil
}

// Out publishes events onto the bus.
type Out struct {
	connector
}

func (o *Out) Activate() error { return o.activate() }

func (o *Out) Deactivate() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active {
		o.bus.release()
		o.bus = nil
		o.active = false
	}
	return nil
}

func (o *Out) Publish(e *event.Event) error {
	o.mu.Lock()
	bus := o.bus
	o.mu.Unlock()
	if bus == nil {
		return fmt.Errorf("socket: connector not active")
	}

	n, err := protocol.FromEvent(e, o.conv)
	if err != nil {
		return err
	}
	return bus.handleOutgoing(n)
}

// In receives events from the bus.
type In struct {
	connector

	obsMu    sync.RWMutex
	observer transport.Observer
}

func (i *In) Activate() error {
	if err := i.activate(); err != nil {
		return err
	}
	i.mu.Lock()
	i.bus.dispatcher.Subscribe(i.scope, i)
	i.mu.Unlock()
	return nil
}

func (i *In) Deactivate() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.active {
		i.bus.dispatcher.Unsubscribe(i.scope, i)
		i.bus.release()
		i.bus = nil
		i.active = false
	}
	return nil
}

func (i *In) SetObserver(obs transport.Observer) {
	i.obsMu.Lock()
	defer i.obsMu.Unlock()
	i.observer = obs
}

func (i *In) NotifyFilter(filter.Filter, filter.Action) {
	// The bus routes by scope already; other filters run in the
	// receiving participant.
}

// deliver decodes one notification addressed to this connector and
// pushes the event to the observer.
func (i *In) deliver(n *protocol.Notification) {
	i.obsMu.RLock()
	obs := i.observer
	i.obsMu.RUnlock()
	if obs == nil {
		return
	}
	e, err := protocol.ToEvent(n, i.conv)
	if err != nil {
		slog.Default().Warn("dropping undecodable notification",
			"transport", "socket", "error", err)
		return
	}
	obs(e)
}

type factory struct{}

func (factory) Name() string { return Name }

func (factory) NewOut(m map[string]string, conv converter.Selection) (transport.OutConnector, error) {
	opts, err := parseOptions(m)
	if err != nil {
		return nil, err
	}
	return &Out{connector: connector{opts: opts, conv: selection(conv)}}, nil
}

func (factory) NewIn(m map[string]string, conv converter.Selection) (transport.InConnector, error) {
	opts, err := parseOptions(m)
	if err != nil {
		return nil, err
	}
	return &In{connector: connector{opts: opts, conv: selection(conv)}}, nil
}

func selection(conv converter.Selection) converter.Selection {
	if conv == nil {
		return converter.Global()
	}
	return conv
}

func init() {
	if err := transport.Register(factory{}); err != nil {
		panic(err)
	}
}
