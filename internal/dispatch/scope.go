package dispatch

import (
	"sync"

	"github.com/rsbus/rsbus/scope"
)

// ScopeDispatcher associates sinks with scopes. Matching returns the
// sinks subscribed to a scope or any of its super-scopes, so an event
// published on /a/b/ reaches sinks on /, /a/ and /a/b/.
//
// Scope values are not comparable, so the index is keyed by the
// canonical scope string.
type ScopeDispatcher[S comparable] struct {
	mu    sync.RWMutex
	sinks map[string][]S
}

func NewScopeDispatcher[S comparable]() *ScopeDispatcher[S] {
	return &ScopeDispatcher[S]{sinks: make(map[string][]S)}
}

// Subscribe registers sink under sc.
func (d *ScopeDispatcher[S]) Subscribe(sc scope.Scope, sink S) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := sc.String()
	d.sinks[key] = append(d.sinks[key], sink)
}

// Unsubscribe removes one registration of sink under sc, reporting
// whether it was present.
func (d *ScopeDispatcher[S]) Unsubscribe(sc scope.Scope, sink S) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := sc.String()
	sinks := d.sinks[key]
	for i, s := range sinks {
		if s == sink {
			sinks = append(sinks[:i], sinks[i+1:]...)
			if len(sinks) == 0 {
				delete(d.sinks, key)
			} else {
				d.sinks[key] = sinks
			}
			return true
		}
	}
	return false
}

// Matching returns the sinks reached by an event on sc, walking from the
// root scope down to sc itself.
func (d *ScopeDispatcher[S]) Matching(sc scope.Scope) []S {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []S
	for _, super := range sc.SuperScopes(true) {
		out = append(out, d.sinks[super.String()]...)
	}
	return out
}

// Empty reports whether no sink is subscribed.
func (d *ScopeDispatcher[S]) Empty() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sinks) == 0
}
