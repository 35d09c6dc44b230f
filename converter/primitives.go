package converter

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"

	"github.com/rsbus/rsbus/scope"
)

// String serializes Go strings under the utf-8-string wire schema.
type String struct{}

func (String) WireSchema() string     { return "utf-8-string" }
func (String) DataType() reflect.Type { return reflect.TypeOf("") }
func (String) Serialize(data any) ([]byte, error) {
	s, ok := data.(string)
	if !ok {
		return nil, fmt.Errorf("converter: string converter got %T", data)
	}
	return []byte(s), nil
}
func (String) Deserialize(wire []byte) (any, error) { return string(wire), nil }

// Bytes passes byte slices through unchanged.
type Bytes struct{}

func (Bytes) WireSchema() string     { return "bytes" }
func (Bytes) DataType() reflect.Type { return reflect.TypeOf([]byte(nil)) }
func (Bytes) Serialize(data any) ([]byte, error) {
	b, ok := data.([]byte)
	if !ok {
		return nil, fmt.Errorf("converter: bytes converter got %T", data)
	}
	return b, nil
}
func (Bytes) Deserialize(wire []byte) (any, error) { return wire, nil }

// Double serializes float64 as 8 little-endian IEEE-754 bytes.
type Double struct{}

func (Double) WireSchema() string     { return "double" }
func (Double) DataType() reflect.Type { return reflect.TypeOf(float64(0)) }
func (Double) Serialize(data any) ([]byte, error) {
	f, ok := data.(float64)
	if !ok {
		return nil, fmt.Errorf("converter: double converter got %T", data)
	}
	wire := make([]byte, 8)
	binary.LittleEndian.PutUint64(wire, math.Float64bits(f))
	return wire, nil
}
func (Double) Deserialize(wire []byte) (any, error) {
	if len(wire) != 8 {
		return nil, fmt.Errorf("converter: double payload has %d bytes, want 8", len(wire))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(wire)), nil
}

// Int64 serializes int64 as 8 little-endian bytes.
type Int64 struct{}

func (Int64) WireSchema() string     { return "int64" }
func (Int64) DataType() reflect.Type { return reflect.TypeOf(int64(0)) }
func (Int64) Serialize(data any) ([]byte, error) {
	i, ok := data.(int64)
	if !ok {
		return nil, fmt.Errorf("converter: int64 converter got %T", data)
	}
	wire := make([]byte, 8)
	binary.LittleEndian.PutUint64(wire, uint64(i))
	return wire, nil
}
func (Int64) Deserialize(wire []byte) (any, error) {
	if len(wire) != 8 {
		return nil, fmt.Errorf("converter: int64 payload has %d bytes, want 8", len(wire))
	}
	return int64(binary.LittleEndian.Uint64(wire)), nil
}

// Bool serializes bool as a single byte.
type Bool struct{}

func (Bool) WireSchema() string     { return "bool" }
func (Bool) DataType() reflect.Type { return reflect.TypeOf(false) }
func (Bool) Serialize(data any) ([]byte, error) {
	b, ok := data.(bool)
	if !ok {
		return nil, fmt.Errorf("converter: bool converter got %T", data)
	}
	if b {
		return []byte{1}, nil
	}
	return []byte{0}, nil
}
func (Bool) Deserialize(wire []byte) (any, error) {
	if len(wire) != 1 {
		return nil, fmt.Errorf("converter: bool payload has %d bytes, want 1", len(wire))
	}
	return wire[0] != 0, nil
}

// Void represents nil payloads, as produced by RPC methods without a
// return value. It serializes to the empty representation.
type Void struct{}

func (Void) WireSchema() string              { return "void" }
func (Void) DataType() reflect.Type          { return nil }
func (Void) Serialize(any) ([]byte, error)   { return nil, nil }
func (Void) Deserialize([]byte) (any, error) { return nil, nil }

// ScopeConverter serializes scope.Scope values in their canonical ASCII
// form.
type ScopeConverter struct{}

func (ScopeConverter) WireSchema() string     { return "scope" }
func (ScopeConverter) DataType() reflect.Type { return reflect.TypeOf(scope.Scope{}) }
func (ScopeConverter) Serialize(data any) ([]byte, error) {
	sc, ok := data.(scope.Scope)
	if !ok {
		return nil, fmt.Errorf("converter: scope converter got %T", data)
	}
	return sc.Bytes(), nil
}
func (ScopeConverter) Deserialize(wire []byte) (any, error) {
	sc, err := scope.Parse(string(wire))
	if err != nil {
		return nil, fmt.Errorf("converter: %w", err)
	}
	return sc, nil
}

// Message is implemented by hand-coded wire-format message types (the
// rsb.protocol messages). The converter built by NewMessage registers
// them under the ".<full message name>" wire schema.
type Message interface {
	MessageName() string
	MarshalBinary() ([]byte, error)
	UnmarshalBinary(wire []byte) error
}

// MessageConverter serializes one concrete Message type.
type MessageConverter struct {
	schema   string
	dataType reflect.Type
	// proto is a fresh zero value of the message, cloned per
	// deserialization.
	proto func() Message
}

// NewMessage builds a converter for the Message type M. M must be a
// pointer type whose zero message reports its full name.
func NewMessage[M Message](newM func() M) *MessageConverter {
	zero := newM()
	return &MessageConverter{
		schema:   "." + zero.MessageName(),
		dataType: reflect.TypeOf(zero),
		proto:    func() Message { return newM() },
	}
}

func (c *MessageConverter) WireSchema() string     { return c.schema }
func (c *MessageConverter) DataType() reflect.Type { return c.dataType }

func (c *MessageConverter) Serialize(data any) ([]byte, error) {
	m, ok := data.(Message)
	if !ok || reflect.TypeOf(data) != c.dataType {
		return nil, fmt.Errorf("converter: message converter for %s got %T", c.schema, data)
	}
	return m.MarshalBinary()
}

func (c *MessageConverter) Deserialize(wire []byte) (any, error) {
	m := c.proto()
	if err := m.UnmarshalBinary(wire); err != nil {
		return nil, err
	}
	return m, nil
}

func init() {
	for _, c := range []Converter{
		String{}, Bytes{}, Double{}, Int64{}, Bool{}, Void{}, ScopeConverter{},
	} {
		if err := Register(c, false); err != nil {
			panic(err)
		}
	}
}
