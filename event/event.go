package event

import (
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/rsbus/rsbus/scope"
)

// ID uniquely identifies an event by the sending participant's ID and a
// sequence number within that participant.
type ID struct {
	ParticipantID  uuid.UUID
	SequenceNumber uint32
}

// AsUUID renders the ID as a version-5 UUID in the namespace of the
// sending participant, the form used to address events externally.
func (id ID) AsUUID() uuid.UUID {
	return uuid.NewSHA1(id.ParticipantID,
		[]byte(fmt.Sprintf("%08x", id.SequenceNumber)))
}

func (id ID) String() string {
	return fmt.Sprintf("%s:%d", id.ParticipantID, id.SequenceNumber)
}

// MetaData stores framework-maintained and user-supplied meta-data items
// for an event. Timestamps carry microsecond precision on the wire.
type MetaData struct {
	// CreateTime is when the event was created by the sending informer.
	CreateTime time.Time
	// SendTime is when the event was put onto the wire.
	SendTime time.Time
	// ReceiveTime is when the event was taken off the wire.
	ReceiveTime time.Time
	// DeliverTime is when the event was handed to a user-level handler.
	DeliverTime time.Time

	userTimes map[string]time.Time
	userInfos map[string]string
}

// NewMetaData returns MetaData with the create time set to now.
func NewMetaData() *MetaData {
	return &MetaData{CreateTime: time.Now()}
}

// SetUserTime records a named user timestamp. A zero t records the
// current time.
func (m *MetaData) SetUserTime(key string, t time.Time) {
	if m.userTimes == nil {
		m.userTimes = make(map[string]time.Time)
	}
	if t.IsZero() {
		t = time.Now()
	}
	m.userTimes[key] = t
}

// UserTime returns the named user timestamp.
func (m *MetaData) UserTime(key string) (time.Time, bool) {
	t, ok := m.userTimes[key]
	return t, ok
}

// UserTimes returns a copy of all user timestamps.
func (m *MetaData) UserTimes() map[string]time.Time {
	out := make(map[string]time.Time, len(m.userTimes))
	for k, v := range m.userTimes {
		out[k] = v
	}
	return out
}

// Copy returns an independent copy of the meta-data.
func (m *MetaData) Copy() *MetaData {
	out := *m
	if len(m.userTimes) > 0 {
		out.userTimes = make(map[string]time.Time, len(m.userTimes))
		for k, v := range m.userTimes {
			out.userTimes[k] = v
		}
	}
	if len(m.userInfos) > 0 {
		out.userInfos = make(map[string]string, len(m.userInfos))
		for k, v := range m.userInfos {
			out.userInfos[k] = v
		}
	}
	return &out
}

// SetUserInfo records a user-supplied key/value item.
func (m *MetaData) SetUserInfo(key, value string) {
	if m.userInfos == nil {
		m.userInfos = make(map[string]string)
	}
	m.userInfos[key] = value
}

// UserInfo returns the user item stored under key.
func (m *MetaData) UserInfo(key string) (string, bool) {
	v, ok := m.userInfos[key]
	return v, ok
}

// UserInfos returns a copy of all user items.
func (m *MetaData) UserInfos() map[string]string {
	out := make(map[string]string, len(m.userInfos))
	for k, v := range m.userInfos {
		out[k] = v
	}
	return out
}

// Event is the basic unit of communication.
//
// Events are often caused by other events; the Causes vector holds the IDs
// of the direct causes (transitive causes are not modelled).
type Event struct {
	// ID is assigned by the sending informer when the event is published.
	// It is the zero value before that.
	ID ID
	// Scope designates the channel the event is published on.
	Scope scope.Scope
	// Method tags the role of the event in a communication pattern,
	// e.g. "REQUEST" or "REPLY". Empty for plain events.
	Method string
	// Data is the user payload.
	Data any
	// Type is the payload type used for converter selection. New fills it
	// from the payload.
	Type reflect.Type
	// MetaData carries timing and user-supplied items. Never nil for
	// events made with New.
	MetaData *MetaData

	causes []ID
}

// New creates an event carrying data on the given scope, with the create
// time stamped.
func New(sc scope.Scope, data any) *Event {
	e := &Event{
		Scope:    sc,
		Data:     data,
		MetaData: NewMetaData(),
	}
	if data != nil {
		e.Type = reflect.TypeOf(data)
	}
	return e
}

// Copy returns an event that shares the payload but owns its meta-data
// and cause vector. Delivery paths that fan one event out to several
// receivers hand each receiver a copy, so timestamps can be stamped
// without synchronization.
func (e *Event) Copy() *Event {
	out := *e
	out.causes = append([]ID(nil), e.causes...)
	if e.MetaData != nil {
		out.MetaData = e.MetaData.Copy()
	}
	return &out
}

// AddCause marks the event identified by id as a direct cause of e. It
// reports whether the id was newly added.
func (e *Event) AddCause(id ID) bool {
	if e.IsCause(id) {
		return false
	}
	e.causes = append(e.causes, id)
	return true
}

// RemoveCause removes id from the cause vector, reporting whether it was
// present.
func (e *Event) RemoveCause(id ID) bool {
	for i, c := range e.causes {
		if c == id {
			e.causes = append(e.causes[:i], e.causes[i+1:]...)
			return true
		}
	}
	return false
}

// IsCause reports whether id is a direct cause of e.
func (e *Event) IsCause(id ID) bool {
	for _, c := range e.causes {
		if c == id {
			return true
		}
	}
	return false
}

// Causes returns a copy of the cause vector.
func (e *Event) Causes() []ID {
	if len(e.causes) == 0 {
		return nil
	}
	out := make([]ID, len(e.causes))
	copy(out, e.causes)
	return out
}

// SetCauses replaces the cause vector.
func (e *Event) SetCauses(causes []ID) {
	e.causes = append(e.causes[:0:0], causes...)
}

func (e *Event) String() string {
	return fmt.Sprintf("Event[id=%s, scope=%s, method=%q, type=%v]",
		e.ID, e.Scope, e.Method, e.Type)
}
