package filter

import (
	"github.com/google/uuid"

	"github.com/rsbus/rsbus/event"
	"github.com/rsbus/rsbus/scope"
)

// Action tells a transport what happened to a listener's filter set, so it
// may prefilter on the wire where it can.
type Action int

const (
	Add Action = iota
	Remove
)

// Filter decides whether an event should be delivered.
type Filter interface {
	Match(e *event.Event) bool
}

// Func adapts a plain function to the Filter interface.
type Func func(e *event.Event) bool

func (f Func) Match(e *event.Event) bool { return f(e) }

// Scope matches events published on a given scope or any of its
// sub-scopes.
type Scope struct {
	scope scope.Scope
}

// NewScope creates a filter accepting the given scope and all scopes
// below it.
func NewScope(sc scope.Scope) *Scope {
	return &Scope{scope: sc}
}

// MatchScope returns the top-level scope this filter accepts.
func (f *Scope) MatchScope() scope.Scope { return f.scope }

func (f *Scope) Match(e *event.Event) bool {
	return e.Scope.Equal(f.scope) || e.Scope.IsSubScopeOf(f.scope)
}

// Origin matches events that originate (or, inverted, do not originate)
// at a particular participant.
type Origin struct {
	origin uuid.UUID
	invert bool
}

func NewOrigin(origin uuid.UUID, invert bool) *Origin {
	return &Origin{origin: origin, invert: invert}
}

func (f *Origin) Match(e *event.Event) bool {
	return (e.ID.ParticipantID == f.origin) != f.invert
}

// Method matches events that carry (or, inverted, do not carry) a
// particular value in their method field.
type Method struct {
	method string
	invert bool
}

func NewMethod(method string, invert bool) *Method {
	return &Method{method: method, invert: invert}
}

func (f *Method) Match(e *event.Event) bool {
	return (e.Method == f.method) != f.invert
}

// Cause matches events that have (or, inverted, do not have) a particular
// event ID in their cause vector.
type Cause struct {
	cause  event.ID
	invert bool
}

func NewCause(cause event.ID, invert bool) *Cause {
	return &Cause{cause: cause, invert: invert}
}

func (f *Cause) Match(e *event.Event) bool {
	return e.IsCause(f.cause) != f.invert
}

// True matches every event.
var True Filter = Func(func(*event.Event) bool { return true })
