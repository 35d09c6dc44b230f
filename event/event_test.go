package event

import (
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rsbus/rsbus/scope"
)

func TestNew_FillsTypeAndMetaData(t *testing.T) {
	e := New(scope.MustParse("/test/"), "payload")

	if e.Type != reflect.TypeOf("") {
		t.Errorf("Type: got %v, want string", e.Type)
	}
	if e.MetaData == nil || e.MetaData.CreateTime.IsZero() {
		t.Error("MetaData.CreateTime should be stamped by New")
	}
	if e.Scope.String() != "/test/" {
		t.Errorf("Scope: got %q, want /test/", e.Scope)
	}
}

func TestID_AsUUID_Deterministic(t *testing.T) {
	pid := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	a := ID{ParticipantID: pid, SequenceNumber: 7}.AsUUID()
	b := ID{ParticipantID: pid, SequenceNumber: 7}.AsUUID()
	c := ID{ParticipantID: pid, SequenceNumber: 8}.AsUUID()

	if a != b {
		t.Error("AsUUID must be deterministic for equal IDs")
	}
	if a == c {
		t.Error("AsUUID must differ for different sequence numbers")
	}
	if a.Version() != 5 {
		t.Errorf("AsUUID version: got %d, want 5", a.Version())
	}
}

func TestCauses(t *testing.T) {
	e := New(scope.Root, nil)
	id := ID{ParticipantID: uuid.New(), SequenceNumber: 1}

	if !e.AddCause(id) {
		t.Error("AddCause: first add should report true")
	}
	if e.AddCause(id) {
		t.Error("AddCause: duplicate add should report false")
	}
	if !e.IsCause(id) {
		t.Error("IsCause: expected true after AddCause")
	}
	if got := e.Causes(); len(got) != 1 || got[0] != id {
		t.Errorf("Causes: got %v, want [%v]", got, id)
	}
	if !e.RemoveCause(id) {
		t.Error("RemoveCause: expected true for present cause")
	}
	if e.RemoveCause(id) {
		t.Error("RemoveCause: expected false for absent cause")
	}
}

func TestCopy_IsIndependent(t *testing.T) {
	orig := New(scope.MustParse("/test/"), "payload")
	orig.AddCause(ID{ParticipantID: uuid.New(), SequenceNumber: 1})
	orig.MetaData.SetUserInfo("origin", "test")

	cp := orig.Copy()
	cp.MetaData.DeliverTime = time.Now()
	cp.MetaData.SetUserInfo("origin", "copy")
	cp.AddCause(ID{ParticipantID: uuid.New(), SequenceNumber: 2})

	if !orig.MetaData.DeliverTime.IsZero() {
		t.Error("stamping the copy must not touch the original")
	}
	if v, _ := orig.MetaData.UserInfo("origin"); v != "test" {
		t.Errorf("original user info changed to %q", v)
	}
	if len(orig.Causes()) != 1 {
		t.Errorf("original has %d causes, want 1", len(orig.Causes()))
	}
	if cp.Data != orig.Data || cp.ID != orig.ID {
		t.Error("copy must keep payload and ID")
	}
}

func TestMetaData_UserItems(t *testing.T) {
	m := NewMetaData()

	m.SetUserInfo("origin", "test")
	if v, ok := m.UserInfo("origin"); !ok || v != "test" {
		t.Errorf("UserInfo: got %q/%v, want test/true", v, ok)
	}

	stamp := time.Unix(100, 2000)
	m.SetUserTime("processed", stamp)
	if v, ok := m.UserTime("processed"); !ok || !v.Equal(stamp) {
		t.Errorf("UserTime: got %v/%v, want %v/true", v, ok, stamp)
	}

	m.SetUserTime("now", time.Time{})
	if v, ok := m.UserTime("now"); !ok || v.IsZero() {
		t.Error("SetUserTime with zero time should record the current time")
	}
}
