// Package ws implements a websocket bus transport.
//
// It mirrors the topology of the socket transport (one server process
// per endpoint, clients attach to it) but carries events as binary
// websocket messages holding FragmentedNotification frames. Because a
// message has a bounded size, large payloads are split on send and
// reassembled on receive.
package ws

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
const Name = "ws"

// DefaultPort is the bus endpoint port used when none is configured.
const DefaultPort = 55556

// DefaultMaxFragmentSize bounds one websocket message.
const DefaultMaxFragmentSize = 65536

// streamPath is the HTTP endpoint peers attach to.
const streamPath = "/stream"

const (
	roleServer = "1"
	roleClient = "0"
	roleAuto   = "auto"
)

type options struct {
	host            string
	port            int
	role            string
	maxFragmentSize int
}

func parseOptions(m map[string]string) (options, error) {
	opts := options{
		host:            "localhost",
		port:            DefaultPort,
		role:            roleAuto,
		maxFragmentSize: DefaultMaxFragmentSize,
	}
	if v, ok := m["host"]; ok {
		opts.host = v
	}
	if v, ok := m["port"]; ok {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			return opts, fmt.Errorf("ws: bad port %q", v)
		}
		opts.port = port
	}
	if v, ok := m["server"]; ok {
		switch v {
		case roleServer, roleClient, roleAuto:
			opts.role = v
		default:
			return opts, fmt.Errorf("ws: bad server role %q", v)
		}
	}
	if v, ok := m["maxfragmentsize"]; ok {
		size, err := strconv.Atoi(v)
		if err != nil || size < 128 {
			return opts, fmt.Errorf("ws: bad maxfragmentsize %q", v)
		}
		opts.maxFragmentSize = size
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
	return fmt.Sprintf("ws://%s:%d%s", c.opts.host, c.opts.port, streamPath)
}

func (c *connector) activate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return fmt.Errorf("ws: connector already active")
	}
	bus, err := acquireBus(c.opts.host, c.opts.port, c.opts.role)
	if err != nil {
		return err
	}
	c.bus = bus
	c.active = true
	return nil
}

// Out publishes events onto the websocket bus.
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
		return fmt.Errorf("ws: connector not active")
	}

	n, err := protocol.FromEvent(e, o.conv)
	if err != nil {
		return err
	}
	fragments, err := protocol.Fragment(n, o.opts.maxFragmentSize)
	if err != nil {
		return err
	}
	frames := make([][]byte, len(fragments))
	for i, f := range fragments {
		if frames[i], err = f.MarshalBinary(); err != nil {
			return err
		}
	}
	if err := bus.sendFrames(frames); err != nil {
		return err
	}
	// Local listeners get the whole notification without a reassembly
	// round trip.
	bus.dispatchLocal(n)
	return nil
}

// In receives events from the websocket bus.
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

func (i *In) NotifyFilter(filter.Filter, filter.Action) {}

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
			"transport", Name, "error", err)
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
