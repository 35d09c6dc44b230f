package protocol

import "google.golang.org/protobuf/encoding/protowire"

// ScopeAndEvents groups the notifications recorded for one scope.
type ScopeAndEvents struct {
	Scope         []byte
	Notifications []*Notification
}

func (*ScopeAndEvents) MessageName() string {
	return "rsb.protocol.collections.ScopeAndEvents"
}

func (m *ScopeAndEvents) MarshalBinary() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, m.Scope)
	for _, n := range m.Notifications {
		b = appendMessage(b, 2, n)
	}
	return b, nil
}

func (m *ScopeAndEvents) UnmarshalBinary(wire []byte) error {
	return walkFields(m.MessageName(), wire, func(num protowire.Number, f field) error {
		switch num {
		case 1:
			m.Scope = f.bytes()
		case 2:
			n := new(Notification)
			if err := f.message(n); err != nil {
				return err
			}
			m.Notifications = append(m.Notifications, n)
		}
		return f.err
	})
}

// EventsByScopeMap is a batch of notifications grouped by scope, the
// format event recorders exchange.
type EventsByScopeMap struct {
	Sets []*ScopeAndEvents
}

func (*EventsByScopeMap) MessageName() string {
	return "rsb.protocol.collections.EventsByScopeMap"
}

func (m *EventsByScopeMap) MarshalBinary() ([]byte, error) {
	var b []byte
	for _, s := range m.Sets {
		b = appendMessage(b, 1, s)
	}
	return b, nil
}

func (m *EventsByScopeMap) UnmarshalBinary(wire []byte) error {
	return walkFields(m.MessageName(), wire, func(num protowire.Number, f field) error {
		if num == 1 {
			s := new(ScopeAndEvents)
			if err := f.message(s); err != nil {
				return err
			}
			m.Sets = append(m.Sets, s)
		}
		return f.err
	})
}
