// Package inprocess implements a transport connecting participants of
// one process. Events cross it without serialization.
package inprocess

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rsbus/rsbus/converter"
	"github.com/rsbus/rsbus/event"
	"github.com/rsbus/rsbus/filter"
	"github.com/rsbus/rsbus/internal/dispatch"
	"github.com/rsbus/rsbus/scope"
	"github.com/rsbus/rsbus/transport"
)

// Name is the configuration name of this transport.
const Name = "inprocess"

// bus indexes the active in-connectors of the process by scope.
var bus = dispatch.NewScopeDispatcher[*In]()

func localURL() string {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	return fmt.Sprintf("inprocess://%s:%d", host, os.Getpid())
}

type connector struct {
	mu     sync.Mutex
	scope  scope.Scope
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

func (c *connector) URL() string { return localURL() }

// Out publishes events to the in-process bus.
type Out struct {
	connector
}

func (o *Out) Activate() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active {
		return fmt.Errorf("inprocess: connector already active")
	}
	o.active = true
	return nil
}

func (o *Out) Deactivate() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.active = false
	return nil
}

// Publish hands e to every in-connector whose scope covers the event
// scope. Each connector delivers its own copy of the event.
func (o *Out) Publish(e *event.Event) error {
	for _, in := range bus.Matching(e.Scope) {
		in.deliver(e)
	}
	return nil
}

// In receives events from the in-process bus.
type In struct {
	connector
	obsMu    sync.RWMutex
	observer transport.Observer
}

func (i *In) Activate() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.active {
		return fmt.Errorf("inprocess: connector already active")
	}
	i.active = true
	bus.Subscribe(i.scope, i)
	return nil
}

func (i *In) Deactivate() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.active {
		bus.Unsubscribe(i.scope, i)
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
	// Scope routing already happens on the bus; nothing to prefilter.
}

func (i *In) deliver(e *event.Event) {
	i.obsMu.RLock()
	obs := i.observer
	i.obsMu.RUnlock()
	if obs == nil {
		return
	}
	// The bus shares one event among all matching connectors and the
	// publisher keeps it too, so each connector delivers its own copy.
	e = e.Copy()
	if e.MetaData.ReceiveTime.IsZero() {
		e.MetaData.ReceiveTime = time.Now()
	}
	obs(e)
}

type factory struct{}

func (factory) Name() string { return Name }

func (factory) NewOut(map[string]string, converter.Selection) (transport.OutConnector, error) {
	return &Out{}, nil
}

func (factory) NewIn(map[string]string, converter.Selection) (transport.InConnector, error) {
	return &In{}, nil
}

func init() {
	if err := transport.Register(factory{}); err != nil {
		panic(err)
	}
}
