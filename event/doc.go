// Package event defines the unit of communication on the bus.
//
// An Event couples a payload with the scope it is published on, the
// identity of its sender, timing metadata and a vector of causing event
// IDs. Events are created by informers, travel through transports as
// notifications, and are delivered to listener handlers.
package event
