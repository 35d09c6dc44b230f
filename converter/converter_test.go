package converter

import (
	"errors"
	"reflect"
	"testing"
)

func TestMapAdd_DuplicateRejected(t *testing.T) {
	m := NewMap()
	if err := m.Add(String{}, false); err != nil {
		t.Fatalf("first Add: %v", err)
	}
	if err := m.Add(String{}, false); err == nil {
		t.Fatal("second Add of the same converter should fail without replace")
	}
	if err := m.Add(String{}, true); err != nil {
		t.Fatalf("Add with replace: %v", err)
	}
}

type altString struct{ String }

func (altString) Serialize(data any) ([]byte, error) { return nil, errors.New("unused") }

func TestUnambiguousMap_RejectsConflictingSchema(t *testing.T) {
	m := NewUnambiguousMap()
	if err := m.Add(String{}, false); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// Same wire schema, different payload type.
	c := &MessageConverter{schema: "utf-8-string", dataType: reflect.TypeOf(0)}
	if err := m.Add(c, false); err == nil {
		t.Fatal("conflicting payload type for one wire schema should be rejected")
	}

	// Same wire schema and payload type is still fine with replace.
	if err := m.Add(altString{}, true); err != nil {
		t.Fatalf("replacing with same key: %v", err)
	}
}

func TestForDataType(t *testing.T) {
	m := NewMap()
	for _, c := range []Converter{String{}, Int64{}, Void{}} {
		if err := m.Add(c, false); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	c, err := m.ForDataType(reflect.TypeOf(""))
	if err != nil {
		t.Fatalf("ForDataType(string): %v", err)
	}
	if c.WireSchema() != "utf-8-string" {
		t.Errorf("ForDataType(string): got schema %q", c.WireSchema())
	}

	// nil payloads resolve to the void converter.
	c, err = m.ForDataType(nil)
	if err != nil {
		t.Fatalf("ForDataType(nil): %v", err)
	}
	if c.WireSchema() != "void" {
		t.Errorf("ForDataType(nil): got schema %q", c.WireSchema())
	}

	_, err = m.ForDataType(reflect.TypeOf(0.0))
	var unknown *UnknownConverterError
	if !errors.As(err, &unknown) {
		t.Fatalf("ForDataType(float64): got %v, want UnknownConverterError", err)
	}
}

func TestForWireSchema(t *testing.T) {
	m := NewMap()
	if err := m.Add(Double{}, false); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if _, err := m.ForWireSchema("double"); err != nil {
		t.Fatalf("ForWireSchema(double): %v", err)
	}
	var unknown *UnknownConverterError
	if _, err := m.ForWireSchema("bool"); !errors.As(err, &unknown) {
		t.Fatalf("ForWireSchema(bool): got %v, want UnknownConverterError", err)
	}
}

func TestSelectionFor_GlobalDefaults(t *testing.T) {
	m, err := SelectionFor(nil)
	if err != nil {
		t.Fatalf("SelectionFor: %v", err)
	}
	for _, schema := range []string{"utf-8-string", "bytes", "double", "int64", "bool", "void", "scope"} {
		if _, err := m.ForWireSchema(schema); err != nil {
			t.Errorf("selection misses %q: %v", schema, err)
		}
	}
}

func TestPrimitiveRoundTrips(t *testing.T) {
	cases := []struct {
		c    Converter
		data any
	}{
		{String{}, "hello"},
		{Bytes{}, []byte{0, 1, 2}},
		{Double{}, 1.25},
		{Int64{}, int64(-7)},
		{Bool{}, true},
	}
	for _, tc := range cases {
		wire, err := tc.c.Serialize(tc.data)
		if err != nil {
			t.Fatalf("%s: Serialize: %v", tc.c.WireSchema(), err)
		}
		got, err := tc.c.Deserialize(wire)
		if err != nil {
			t.Fatalf("%s: Deserialize: %v", tc.c.WireSchema(), err)
		}
		if !reflect.DeepEqual(got, tc.data) {
			t.Errorf("%s: round trip got %v, want %v", tc.c.WireSchema(), got, tc.data)
		}
	}
}

func TestPrimitiveTypeMismatch(t *testing.T) {
	if _, err := (Int64{}).Serialize("not an int"); err == nil {
		t.Error("int64 converter should reject strings")
	}
	if _, err := (Double{}).Deserialize([]byte{1, 2, 3}); err == nil {
		t.Error("double converter should reject short payloads")
	}
}
