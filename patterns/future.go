package patterns

import (
	"context"
	"sync"

	"github.com/rsbus/rsbus/event"
)

// Future is the pending result of an asynchronous call. It resolves
// exactly once, to a reply event or an error.
type Future struct {
	done chan struct{}
	once sync.Once

	reply *event.Event
	err   error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(reply *event.Event) {
	f.once.Do(func() {
		f.reply = reply
		close(f.done)
	})
}

func (f *Future) fail(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done is closed when the future has resolved.
func (f *Future) Done() <-chan struct{} { return f.done }

// Get blocks until the future resolves or ctx ends and returns the
// reply event.
func (f *Future) Get(ctx context.Context) (*event.Event, error) {
	select {
	case <-f.done:
		return f.reply, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
