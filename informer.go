package rsbus

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/rsbus/rsbus/event"
	"github.com/rsbus/rsbus/scope"
	"github.com/rsbus/rsbus/transport"
)

// Informer publishes events on a scope.
type Informer struct {
	Participant

	// dataType restricts published payloads; nil allows any type.
	dataType reflect.Type
	conns    []transport.OutConnector

	seqMu sync.Mutex
	seq   uint32
}

// CreateInformer creates an informer on sc using the process-wide
// default configuration. dataType restricts the payload type; nil
// allows any payload.
func CreateInformer(sc scope.Scope, dataType reflect.Type) (*Informer, error) {
	return NewInformer(sc, dataType, DefaultConfig())
}

// NewInformer creates an informer with an explicit configuration.
func NewInformer(sc scope.Scope, dataType reflect.Type, cfg *ParticipantConfig) (*Informer, error) {
	return newInformer(sc, dataType, cfg, nil)
}

func newInformer(sc scope.Scope, dataType reflect.Type, cfg *ParticipantConfig, parent *Participant) (*Informer, error) {
	conns, err := outConnectors(cfg, sc)
	if err != nil {
		return nil, fmt.Errorf("rsbus: create informer on %s: %w", sc, err)
	}
	inf := &Informer{
		Participant: newParticipant("informer", sc, cfg),
		dataType:    dataType,
		conns:       conns,
	}
	fireCreation(&inf.Participant, parent)
	return inf, nil
}

// Publish wraps data into a new event on the informer scope and
// publishes it. The sent event is returned, its ID assigned.
func (inf *Informer) Publish(data any) (*event.Event, error) {
	e := event.New(inf.scope, data)
	if err := inf.PublishEvent(e); err != nil {
		return nil, err
	}
	return e, nil
}

// PublishEvent publishes a prepared event. The event scope must equal
// the informer scope or lie below it, and the payload must match the
// informer's payload type restriction.
func (inf *Informer) PublishEvent(e *event.Event) error {
	if !e.Scope.Equal(inf.scope) && !e.Scope.IsSubScopeOf(inf.scope) {
		return fmt.Errorf("rsbus: event scope %s outside informer scope %s", e.Scope, inf.scope)
	}
	if inf.dataType != nil && e.Type != nil && !e.Type.AssignableTo(inf.dataType) {
		return fmt.Errorf("rsbus: payload type %v not assignable to informer type %v",
			e.Type, inf.dataType)
	}

	inf.seqMu.Lock()
	e.ID = event.ID{ParticipantID: inf.id, SequenceNumber: inf.seq}
	inf.seq++
	inf.seqMu.Unlock()

	for _, conn := range inf.conns {
		if err := conn.Publish(e); err != nil {
			return fmt.Errorf("rsbus: publish via %s: %w", conn.URL(), err)
		}
	}
	return nil
}

// Deactivate tears the informer down. It is safe to call more than
// once.
func (inf *Informer) Deactivate() {
	inf.deactivateOnce.Do(func() {
		fireDestruction(&inf.Participant)
		deactivateOut(inf.conns)
	})
}
