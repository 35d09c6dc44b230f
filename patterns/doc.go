// Package patterns layers request/reply communication on top of the
// bus.
//
// A LocalServer exposes callbacks as named methods below its scope; a
// RemoteServer calls them. Requests and replies are ordinary events
// tagged with the methods "REQUEST" and "REPLY"; a reply names the
// request event as its cause, which is how concurrent calls are told
// apart. Any bus participant can observe the traffic, and servers and
// callers may use different transports as long as they share a bus.
package patterns
