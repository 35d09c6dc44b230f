package dispatch

import (
	"reflect"
	"sync"
	"time"

	"github.com/rsbus/rsbus/event"
	"github.com/rsbus/rsbus/filter"
)

// Handler consumes one delivered event.
type Handler func(*event.Event)

// DefaultBuffer is the per-handler queue depth used when the caller does
// not configure one.
const DefaultBuffer = 256

// Pool delivers events to handlers. Each handler gets its own queue and
// goroutine, so one slow handler never reorders or blocks deliveries to
// the others; within a handler, events arrive in publication order.
// Events failing any of the pool's filters are discarded before
// queueing.
type Pool struct {
	mu      sync.RWMutex
	filters []filter.Filter
	workers map[*worker]struct{}
	buffer  int
	closed  bool
	wg      sync.WaitGroup
}

type worker struct {
	handle Handler
	queue  chan *event.Event
}

// NewPool creates a Pool with the given per-handler queue depth; zero
// selects DefaultBuffer.
func NewPool(buffer int) *Pool {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Pool{
		workers: make(map[*worker]struct{}),
		buffer:  buffer,
	}
}

// AddFilter adds f to the conjunction of filters an event must pass.
func (p *Pool) AddFilter(f filter.Filter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filters = append(p.filters, f)
}

// RemoveFilter removes one registration of f, reporting whether it was
// present.
func (p *Pool) RemoveFilter(f filter.Filter) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, have := range p.filters {
		// Guard against filter types (plain funcs) that would make the
		// interface comparison panic.
		if reflect.TypeOf(have).Comparable() && have == f {
			p.filters = append(p.filters[:i], p.filters[i+1:]...)
			return true
		}
	}
	return false
}

// Filters returns a copy of the current filter conjunction.
func (p *Pool) Filters() []filter.Filter {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]filter.Filter(nil), p.filters...)
}

// AddHandler starts a delivery worker for h and returns a function that
// removes it again. Removal drains nothing: queued events are still
// delivered before the worker exits.
func (p *Pool) AddHandler(h Handler) (remove func()) {
	w := &worker{handle: h, queue: make(chan *event.Event, p.buffer)}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return func() {}
	}
	p.workers[w] = struct{}{}
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for e := range w.queue {
			// Workers share the queued event, so the deliver time goes
			// onto a per-handler copy.
			e = e.Copy()
			e.MetaData.DeliverTime = time.Now()
			w.handle(e)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			if _, ok := p.workers[w]; ok {
				delete(p.workers, w)
				close(w.queue)
			}
			p.mu.Unlock()
		})
	}
}

// Dispatch routes e to every handler if it passes all filters. It blocks
// when a handler's queue is full, backpressuring the transport rather
// than dropping events.
func (p *Pool) Dispatch(e *event.Event) {
	// Queues are sent to under the read lock: workers are only closed
	// under the write lock, so a send can never hit a closed queue.
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, f := range p.filters {
		if !f.Match(e) {
			return
		}
	}
	for w := range p.workers {
		w.queue <- e
	}
}

// Close stops all workers after their queues drain. Dispatch must not be
// called after Close.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for w := range p.workers {
		close(w.queue)
		delete(p.workers, w)
	}
	p.mu.Unlock()

	p.wg.Wait()
}
