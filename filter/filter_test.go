package filter

import (
	"testing"

	"github.com/google/uuid"

	"github.com/rsbus/rsbus/event"
	"github.com/rsbus/rsbus/scope"
)

func TestScope(t *testing.T) {
	f := NewScope(scope.MustParse("/a/"))

	cases := map[string]bool{
		"/a/":   true,
		"/a/b/": true,
		"/":     false,
		"/b/":   false,
		"/ab/":  false,
	}
	for sc, want := range cases {
		e := event.New(scope.MustParse(sc), nil)
		if got := f.Match(e); got != want {
			t.Errorf("Match on %q: got %v, want %v", sc, got, want)
		}
	}
}

func TestOrigin(t *testing.T) {
	mine := uuid.New()
	other := uuid.New()

	e := event.New(scope.Root, nil)
	e.ID = event.ID{ParticipantID: mine, SequenceNumber: 0}

	if !NewOrigin(mine, false).Match(e) {
		t.Error("origin filter should match its own participant")
	}
	if NewOrigin(other, false).Match(e) {
		t.Error("origin filter must not match a different participant")
	}
	if NewOrigin(mine, true).Match(e) {
		t.Error("inverted origin filter must not match its own participant")
	}
	if !NewOrigin(other, true).Match(e) {
		t.Error("inverted origin filter should match a different participant")
	}
}

func TestMethod(t *testing.T) {
	e := event.New(scope.Root, nil)
	e.Method = "REQUEST"

	if !NewMethod("REQUEST", false).Match(e) {
		t.Error("method filter should match REQUEST")
	}
	if NewMethod("REPLY", false).Match(e) {
		t.Error("method filter must not match a different method")
	}
	if !NewMethod("REPLY", true).Match(e) {
		t.Error("inverted method filter should match a different method")
	}
}

func TestCause(t *testing.T) {
	id := event.ID{ParticipantID: uuid.New(), SequenceNumber: 3}
	e := event.New(scope.Root, nil)
	e.AddCause(id)

	if !NewCause(id, false).Match(e) {
		t.Error("cause filter should match a present cause")
	}
	absent := event.ID{ParticipantID: uuid.New(), SequenceNumber: 4}
	if NewCause(absent, false).Match(e) {
		t.Error("cause filter must not match an absent cause")
	}
	if !NewCause(absent, true).Match(e) {
		t.Error("inverted cause filter should match an absent cause")
	}
}

func TestTrue(t *testing.T) {
	if !True.Match(event.New(scope.Root, nil)) {
		t.Error("True must match every event")
	}
}
