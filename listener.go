package rsbus

import (
	"fmt"

	"github.com/rsbus/rsbus/event"
	"github.com/rsbus/rsbus/filter"
	"github.com/rsbus/rsbus/internal/dispatch"
	"github.com/rsbus/rsbus/scope"
	"github.com/rsbus/rsbus/transport"
)

// Listener receives events on a scope and pushes them to handlers.
// Handlers run concurrently with each other; each handler sees events
// in arrival order.
type Listener struct {
	Participant

	conns []transport.InConnector
	pool  *dispatch.Pool
}

// CreateListener creates a listener on sc using the process-wide
// default configuration.
func CreateListener(sc scope.Scope) (*Listener, error) {
	return NewListener(sc, DefaultConfig())
}

// NewListener creates a listener with an explicit configuration.
func NewListener(sc scope.Scope, cfg *ParticipantConfig) (*Listener, error) {
	return newListener(sc, cfg, nil)
}

func newListener(sc scope.Scope, cfg *ParticipantConfig, parent *Participant) (*Listener, error) {
	pool := dispatch.NewPool(0)
	// The transports route by scope already; the filter guards against
	// buses that deliver more broadly.
	pool.AddFilter(filter.NewScope(sc))

	conns, err := inConnectors(cfg, sc, pool.Dispatch)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("rsbus: create listener on %s: %w", sc, err)
	}
	l := &Listener{
		Participant: newParticipant("listener", sc, cfg),
		conns:       conns,
		pool:        pool,
	}
	fireCreation(&l.Participant, parent)
	return l, nil
}

// AddHandler registers h for delivery and returns a function removing
// it again.
func (l *Listener) AddHandler(h func(*event.Event)) (remove func()) {
	return l.pool.AddHandler(h)
}

// AddFilter narrows the delivered events. All filters must match for an
// event to be delivered.
func (l *Listener) AddFilter(f filter.Filter) {
	l.pool.AddFilter(f)
	for _, conn := range l.conns {
		conn.NotifyFilter(f, filter.Add)
	}
}

// RemoveFilter removes one registration of f, reporting whether it was
// present.
func (l *Listener) RemoveFilter(f filter.Filter) bool {
	ok := l.pool.RemoveFilter(f)
	if ok {
		for _, conn := range l.conns {
			conn.NotifyFilter(f, filter.Remove)
		}
	}
	return ok
}

// Deactivate tears the listener down, draining the handler queues. It
// is safe to call more than once.
func (l *Listener) Deactivate() {
	l.deactivateOnce.Do(func() {
		fireDestruction(&l.Participant)
		deactivateIn(l.conns)
		l.pool.Close()
	})
}
