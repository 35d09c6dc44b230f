// Package transport defines the connector interfaces implemented by the
// concrete transports and the registry participants use to find them by
// configuration name.
package transport
