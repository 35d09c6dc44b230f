// Package dispatch routes events to sinks.
//
// ScopeDispatcher is the scope-to-sink index shared by the in-process
// transport and the socket bus. Pool is the listener-side delivery
// engine: it filters incoming events and hands them to handlers, keeping
// per-handler delivery order while handlers run concurrently with each
// other.
package dispatch
