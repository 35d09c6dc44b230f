package transport

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rsbus/rsbus/converter"
	"github.com/rsbus/rsbus/event"
	"github.com/rsbus/rsbus/filter"
	"github.com/rsbus/rsbus/scope"
)

// Observer receives events pushed by an in-direction connector.
type Observer func(*event.Event)

// Connector is one attachment of a participant to a transport.
// SetScope must be called before Activate; Deactivate releases the
// underlying resources.
type Connector interface {
	Scope() scope.Scope
	SetScope(sc scope.Scope)
	Activate() error
	Deactivate() error
	// URL describes the endpoint the connector is attached to, e.g.
	// "socket://localhost:55555".
	URL() string
}

// OutConnector sends events.
type OutConnector interface {
	Connector
	Publish(e *event.Event) error
}

// InConnector receives events and pushes them to its observer.
type InConnector interface {
	Connector
	SetObserver(obs Observer)
	// NotifyFilter tells the connector about listener filter changes so
	// it can prefilter on the wire where the transport supports that.
	NotifyFilter(f filter.Filter, action filter.Action)
}

// Factory creates connectors for one named transport.
type Factory interface {
	Name() string
	NewOut(options map[string]string, conv converter.Selection) (OutConnector, error)
	NewIn(options map[string]string, conv converter.Selection) (InConnector, error)
}

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register makes a transport available under its name. Transports call
// this from init; registering the same name twice is an error.
func Register(f Factory) error {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	if _, ok := factories[f.Name()]; ok {
		return fmt.Errorf("transport: %q already registered", f.Name())
	}
	factories[f.Name()] = f
	return nil
}

// Lookup returns the factory registered under name.
func Lookup(name string) (Factory, error) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("transport: no transport %q", name)
	}
	return f, nil
}

// Names lists the registered transports in sorted order.
func Names() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	out := make([]string, 0, len(factories))
	for name := range factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
