package protocol

import (
	"bytes"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rsbus/rsbus/converter"
	"github.com/rsbus/rsbus/event"
	"github.com/rsbus/rsbus/scope"
)

func TestNotificationRoundTrip(t *testing.T) {
	sender := uuid.New()
	in := &Notification{
		EventID:    &EventID{SenderID: sender[:], SequenceNumber: 42},
		Scope:      []byte("/robot/arm/"),
		Method:     []byte("REQUEST"),
		WireSchema: []byte("utf-8-string"),
		MetaData: &EventMetaData{
			CreateTime: 1700000000000000,
			SendTime:   1700000000000500,
			UserTimes:  []*UserTime{{Key: "processed", Timestamp: 1700000000001000}},
			UserInfos:  []*UserInfo{{Key: "origin", Value: "test"}},
		},
		Causes: []*EventID{{SenderID: sender[:], SequenceNumber: 41}},
		Data:   []byte("payload"),
	}

	wire, err := in.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	out := new(Notification)
	if err := out.UnmarshalBinary(wire); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip mismatch:\n in %+v\nout %+v", in, out)
	}
}

func TestHelloRoundTrip(t *testing.T) {
	id := uuid.New()
	in := &Hello{
		Kind:  "informer",
		ID:    id[:],
		Scope: "/robot/state/",
		Host:  &HostInfo{ID: "abc", Hostname: "nav01", SoftwareType: "linux"},
		Process: &ProcessInfo{
			ID:                   "4711",
			ProgramName:          "rsb-logger",
			CommandlineArguments: []string{"-scope", "/"},
			StartTime:            1700000000000000,
		},
	}

	wire, err := in.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	out := new(Hello)
	if err := out.UnmarshalBinary(wire); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip mismatch:\n in %+v\nout %+v", in, out)
	}
}

func TestUnmarshal_SkipsUnknownFields(t *testing.T) {
	// A Bye message with an extra varint field 15 appended.
	id := uuid.New()
	wire, err := (&Bye{ID: id[:]}).MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	wire = append(wire, 0x78, 0x01) // field 15, varint 1

	out := new(Bye)
	if err := out.UnmarshalBinary(wire); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if !bytes.Equal(out.ID, id[:]) {
		t.Errorf("ID survived as %x, want %x", out.ID, id[:])
	}
}

func TestEventConversionRoundTrip(t *testing.T) {
	sel, err := converter.SelectionFor(nil)
	if err != nil {
		t.Fatalf("SelectionFor: %v", err)
	}

	in := event.New(scope.MustParse("/robot/speech/"), "hello world")
	in.ID = event.ID{ParticipantID: uuid.New(), SequenceNumber: 7}
	in.Method = "REQUEST"
	in.AddCause(event.ID{ParticipantID: uuid.New(), SequenceNumber: 6})
	in.MetaData.SetUserInfo("lang", "en")

	n, err := FromEvent(in, sel)
	if err != nil {
		t.Fatalf("FromEvent: %v", err)
	}
	if in.MetaData.SendTime.IsZero() {
		t.Error("FromEvent should stamp the send time")
	}
	if got := string(n.WireSchema); got != "utf-8-string" {
		t.Errorf("wire schema %q, want utf-8-string", got)
	}

	out, err := ToEvent(n, sel)
	if err != nil {
		t.Fatalf("ToEvent: %v", err)
	}
	if out.ID != in.ID {
		t.Errorf("ID %v, want %v", out.ID, in.ID)
	}
	if out.Data != "hello world" {
		t.Errorf("Data %v, want hello world", out.Data)
	}
	if out.Method != "REQUEST" {
		t.Errorf("Method %q, want REQUEST", out.Method)
	}
	if !out.Scope.Equal(in.Scope) {
		t.Errorf("Scope %v, want %v", out.Scope, in.Scope)
	}
	if !reflect.DeepEqual(out.Causes(), in.Causes()) {
		t.Errorf("Causes %v, want %v", out.Causes(), in.Causes())
	}
	if v, _ := out.MetaData.UserInfo("lang"); v != "en" {
		t.Errorf("user info lang %q, want en", v)
	}
	if out.MetaData.ReceiveTime.IsZero() {
		t.Error("ToEvent should stamp the receive time")
	}
	// Microsecond truncation is the only drift allowed.
	if d := out.MetaData.CreateTime.Sub(in.MetaData.CreateTime); d < -time.Microsecond || d > time.Microsecond {
		t.Errorf("create time drifted by %v", d)
	}
}
