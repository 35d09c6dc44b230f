package rsbus

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/rsbus/rsbus/converter"
	"github.com/rsbus/rsbus/scope"
	"github.com/rsbus/rsbus/transport"
)

// Participant is the common identity of informers, listeners, readers
// and pattern servers.
type Participant struct {
	id    uuid.UUID
	kind  string
	scope scope.Scope
	cfg   *ParticipantConfig

	deactivateOnce sync.Once
}

func newParticipant(kind string, sc scope.Scope, cfg *ParticipantConfig) Participant {
	return Participant{id: uuid.New(), kind: kind, scope: sc, cfg: cfg}
}

// ID returns the unique identifier of the participant.
func (p *Participant) ID() uuid.UUID { return p.id }

// Kind names the participant flavor in lower case, e.g. "informer".
func (p *Participant) Kind() string { return p.kind }

// Scope returns the scope the participant operates on.
func (p *Participant) Scope() scope.Scope { return p.scope }

// Config returns the configuration the participant was built from.
func (p *Participant) Config() *ParticipantConfig { return p.cfg }

// Hooks let cross-cutting services (introspection) observe the
// participant lifecycle without the core depending on them.
var (
	hooksMu          sync.RWMutex
	creationHooks    []func(p *Participant, parent *Participant)
	destructionHooks []func(p *Participant)
)

// OnParticipantCreation registers f to run for every participant
// created after the call. The parent is non-nil for participants nested
// inside a composite one.
func OnParticipantCreation(f func(p *Participant, parent *Participant)) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	creationHooks = append(creationHooks, f)
}

// OnParticipantDestruction registers f to run for every participant
// deactivation.
func OnParticipantDestruction(f func(p *Participant)) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	destructionHooks = append(destructionHooks, f)
}

func fireCreation(p *Participant, parent *Participant) {
	hooksMu.RLock()
	hooks := make([]func(*Participant, *Participant), len(creationHooks))
	copy(hooks, creationHooks)
	hooksMu.RUnlock()
	for _, f := range hooks {
		f(p, parent)
	}
}

func fireDestruction(p *Participant) {
	hooksMu.RLock()
	hooks := make([]func(*Participant), len(destructionHooks))
	copy(hooks, destructionHooks)
	hooksMu.RUnlock()
	for _, f := range hooks {
		f(p)
	}
}

// transportSelection builds the converter selection for one transport
// block from the global registry and the block's disambiguation rules.
func transportSelection(tc *TransportConfig) (converter.Selection, error) {
	sel, err := converter.SelectionFor(tc.ConverterRules)
	if err != nil {
		return nil, fmt.Errorf("transport %q: %w", tc.Name, err)
	}
	return sel, nil
}

// outConnectors builds and activates an out-connector per enabled
// transport.
func outConnectors(cfg *ParticipantConfig, sc scope.Scope) ([]transport.OutConnector, error) {
	var out []transport.OutConnector
	for _, tc := range cfg.EnabledTransports() {
		factory, err := transport.Lookup(tc.Name)
		if err != nil {
			deactivateOut(out)
			return nil, err
		}
		sel, err := transportSelection(tc)
		if err != nil {
			deactivateOut(out)
			return nil, err
		}
		conn, err := factory.NewOut(tc.Options, sel)
		if err != nil {
			deactivateOut(out)
			return nil, err
		}
		conn.SetScope(sc)
		if err := conn.Activate(); err != nil {
			deactivateOut(out)
			return nil, err
		}
		out = append(out, conn)
	}
	return out, nil
}

// inConnectors builds and activates an in-connector per enabled
// transport, wiring each to obs.
func inConnectors(cfg *ParticipantConfig, sc scope.Scope, obs transport.Observer) ([]transport.InConnector, error) {
	var out []transport.InConnector
	for _, tc := range cfg.EnabledTransports() {
		factory, err := transport.Lookup(tc.Name)
		if err != nil {
			deactivateIn(out)
			return nil, err
		}
		sel, err := transportSelection(tc)
		if err != nil {
			deactivateIn(out)
			return nil, err
		}
		conn, err := factory.NewIn(tc.Options, sel)
		if err != nil {
			deactivateIn(out)
			return nil, err
		}
		conn.SetScope(sc)
		conn.SetObserver(obs)
		if err := conn.Activate(); err != nil {
			deactivateIn(out)
			return nil, err
		}
		out = append(out, conn)
	}
	return out, nil
}

func deactivateOut(conns []transport.OutConnector) {
	for _, c := range conns {
		if err := c.Deactivate(); err != nil {
			logger().Warn("connector deactivation failed", "url", c.URL(), "error", err)
		}
	}
}

func deactivateIn(conns []transport.InConnector) {
	for _, c := range conns {
		if err := c.Deactivate(); err != nil {
			logger().Warn("connector deactivation failed", "url", c.URL(), "error", err)
		}
	}
}
