// Package converter implements payload (de)serialization for the bus.
//
// A Converter turns payloads of one Go type into wire bytes tagged with a
// wire-schema string and back. Converters are kept in registries keyed by
// (wire schema, payload type); transports select a converter by payload
// type when sending and by wire schema when receiving.
package converter
