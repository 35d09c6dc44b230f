package converter

import (
	"fmt"
	"reflect"
	"sync"
)

// Converter serializes payloads of one Go type to wire bytes under a fixed
// wire schema, and deserializes such bytes back into payloads.
type Converter interface {
	// WireSchema names the wire format this converter understands.
	WireSchema() string
	// DataType is the payload type accepted for serialization and
	// produced by deserialization.
	DataType() reflect.Type
	Serialize(data any) ([]byte, error)
	Deserialize(wire []byte) (any, error)
}

// UnknownConverterError reports that no converter is registered for a
// payload type or wire schema.
type UnknownConverterError struct {
	DataType   reflect.Type
	WireSchema string
}

func (e *UnknownConverterError) Error() string {
	if e.DataType != nil {
		return fmt.Sprintf("converter: no converter for payload type %v", e.DataType)
	}
	return fmt.Sprintf("converter: no converter for wire schema %q", e.WireSchema)
}

// Selection resolves converters for sending and receiving. Transports hold
// a Selection; the default implementation is *Map.
type Selection interface {
	ForDataType(t reflect.Type) (Converter, error)
	ForWireSchema(schema string) (Converter, error)
}

type key struct {
	wireSchema string
	dataType   reflect.Type
}

// Map is a converter registry keyed by (wire schema, payload type).
type Map struct {
	mu         sync.RWMutex
	converters map[key]Converter
	// unambiguous refuses two converters for one wire schema with
	// different payload types.
	unambiguous bool
}

// NewMap creates an empty registry.
func NewMap() *Map {
	return &Map{converters: make(map[key]Converter)}
}

// NewUnambiguousMap creates a registry that refuses distinct payload types
// for the same wire schema. Transports use unambiguous maps so received
// wire schemas resolve to exactly one payload type.
func NewUnambiguousMap() *Map {
	return &Map{converters: make(map[key]Converter), unambiguous: true}
}

// Add registers c. Registering a second converter under the same
// (wire schema, payload type) key is an error unless replace is set.
func (m *Map) Add(c Converter, replace bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{c.WireSchema(), c.DataType()}
	if m.unambiguous {
		for existing := range m.converters {
			if existing.wireSchema == k.wireSchema && existing.dataType != k.dataType {
				return fmt.Errorf(
					"converter: ambiguous registration for wire schema %q: have %v, adding %v",
					k.wireSchema, existing.dataType, k.dataType)
			}
		}
	}
	if _, ok := m.converters[k]; ok && !replace {
		return fmt.Errorf("converter: already have a converter for schema %q and type %v",
			k.wireSchema, k.dataType)
	}
	m.converters[k] = c
	return nil
}

// ForDataType returns the converter for payloads of type t. An exact type
// match wins; otherwise a converter whose payload type is an interface
// implemented by t is used.
func (m *Map) ForDataType(t reflect.Type) (Converter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var fallback Converter
	for k, c := range m.converters {
		if k.dataType == t {
			return c, nil
		}
		if k.dataType != nil && k.dataType.Kind() == reflect.Interface &&
			t != nil && t.Implements(k.dataType) {
			fallback = c
		}
	}
	if fallback != nil {
		return fallback, nil
	}
	return nil, &UnknownConverterError{DataType: t}
}

// ForWireSchema returns a converter understanding the given wire schema.
func (m *Map) ForWireSchema(schema string) (Converter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for k, c := range m.converters {
		if k.wireSchema == schema {
			return c, nil
		}
	}
	return nil, &UnknownConverterError{WireSchema: schema}
}

// Converters returns all registered converters in unspecified order.
func (m *Map) Converters() []Converter {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Converter, 0, len(m.converters))
	for _, c := range m.converters {
		out = append(out, c)
	}
	return out
}

var global = NewMap()

// Register adds c to the process-global registry consulted when a
// transport is configured without explicit converters.
func Register(c Converter, replace bool) error {
	return global.Add(c, replace)
}

// Global returns the process-global registry.
func Global() *Map { return global }

// SelectionFor builds an unambiguous registry from the global one,
// resolving wire-schema conflicts with rules mapping a wire schema to the
// name of the payload type that should win (the
// transport.<name>.converter.go.<schema> configuration options).
func SelectionFor(rules map[string]string) (*Map, error) {
	out := NewUnambiguousMap()
	for _, c := range Global().Converters() {
		if want, ok := rules[c.WireSchema()]; ok && typeName(c.DataType()) != want {
			continue
		}
		if err := out.Add(c, false); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "nil"
	}
	return t.String()
}
