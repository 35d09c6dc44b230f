package rsbus

import (
	"context"
	"fmt"

	"github.com/rsbus/rsbus/event"
	"github.com/rsbus/rsbus/scope"
	"github.com/rsbus/rsbus/transport"
)

// readerQueueDepth bounds the events a Reader buffers between arrivals
// and Read calls.
const readerQueueDepth = 1024

// Reader receives events on a scope pull-style: arriving events are
// buffered and handed out one per Read call. When the buffer is full
// the oldest buffered event is dropped in favor of the new one.
type Reader struct {
	Participant

	conns []transport.InConnector
	queue chan *event.Event
}

// CreateReader creates a reader on sc using the process-wide default
// configuration.
func CreateReader(sc scope.Scope) (*Reader, error) {
	return NewReader(sc, DefaultConfig())
}

// NewReader creates a reader with an explicit configuration.
func NewReader(sc scope.Scope, cfg *ParticipantConfig) (*Reader, error) {
	r := &Reader{
		Participant: newParticipant("reader", sc, cfg),
		queue:       make(chan *event.Event, readerQueueDepth),
	}
	conns, err := inConnectors(cfg, sc, r.enqueue)
	if err != nil {
		return nil, fmt.Errorf("rsbus: create reader on %s: %w", sc, err)
	}
	r.conns = conns
	fireCreation(&r.Participant, nil)
	return r, nil
}

func (r *Reader) enqueue(e *event.Event) {
	for {
		select {
		case r.queue <- e:
			return
		default:
		}
		select {
		case dropped := <-r.queue:
			logger().Warn("reader queue full, dropping oldest event",
				"scope", r.scope.String(), "dropped", dropped.ID.String())
		default:
		}
	}
}

// Read returns the next buffered event, blocking until one arrives or
// ctx ends.
func (r *Reader) Read(ctx context.Context) (*event.Event, error) {
	select {
	case e := <-r.queue:
		return e, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Deactivate tears the reader down. Buffered events are discarded. It
// is safe to call more than once.
func (r *Reader) Deactivate() {
	r.deactivateOnce.Do(func() {
		fireDestruction(&r.Participant)
		deactivateIn(r.conns)
	})
}
