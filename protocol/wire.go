package protocol

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// EventID identifies one event by the sending participant and its
// sequence number within that participant.
type EventID struct {
	// SenderID is the 16-byte UUID of the sending participant.
	SenderID       []byte
	SequenceNumber uint32
}

func (*EventID) MessageName() string { return "rsb.protocol.EventId" }

func (m *EventID) MarshalBinary() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, m.SenderID)
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.SequenceNumber))
	return b, nil
}

func (m *EventID) UnmarshalBinary(wire []byte) error {
	return walkFields(m.MessageName(), wire, func(num protowire.Number, f field) error {
		switch num {
		case 1:
			m.SenderID = f.bytes()
		case 2:
			m.SequenceNumber = uint32(f.varint())
		}
		return f.err
	})
}

// UserInfo is one key/value annotation attached to event meta data.
type UserInfo struct {
	Key   string
	Value string
}

func (*UserInfo) MessageName() string { return "rsb.protocol.UserInfo" }

func (m *UserInfo) MarshalBinary() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, m.Key)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendString(b, m.Value)
	return b, nil
}

func (m *UserInfo) UnmarshalBinary(wire []byte) error {
	return walkFields(m.MessageName(), wire, func(num protowire.Number, f field) error {
		switch num {
		case 1:
			m.Key = f.string()
		case 2:
			m.Value = f.string()
		}
		return f.err
	})
}

// UserTime is one named timestamp attached to event meta data, in
// microseconds since the UNIX epoch.
type UserTime struct {
	Key       string
	Timestamp int64
}

func (*UserTime) MessageName() string { return "rsb.protocol.UserTime" }

func (m *UserTime) MarshalBinary() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, m.Key)
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Timestamp))
	return b, nil
}

func (m *UserTime) UnmarshalBinary(wire []byte) error {
	return walkFields(m.MessageName(), wire, func(num protowire.Number, f field) error {
		switch num {
		case 1:
			m.Key = f.string()
		case 2:
			m.Timestamp = int64(f.varint())
		}
		return f.err
	})
}

// EventMetaData carries the timing information of one event. All
// timestamps are microseconds since the UNIX epoch; zero means unset.
type EventMetaData struct {
	CreateTime  int64
	SendTime    int64
	ReceiveTime int64
	DeliverTime int64
	UserTimes   []*UserTime
	UserInfos   []*UserInfo
}

func (*EventMetaData) MessageName() string { return "rsb.protocol.EventMetaData" }

func (m *EventMetaData) MarshalBinary() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.CreateTime))
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.SendTime))
	if m.ReceiveTime != 0 {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.ReceiveTime))
	}
	if m.DeliverTime != 0 {
		b = protowire.AppendTag(b, 4, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.DeliverTime))
	}
	for _, ut := range m.UserTimes {
		b = appendMessage(b, 5, ut)
	}
	for _, ui := range m.UserInfos {
		b = appendMessage(b, 6, ui)
	}
	return b, nil
}

func (m *EventMetaData) UnmarshalBinary(wire []byte) error {
	return walkFields(m.MessageName(), wire, func(num protowire.Number, f field) error {
		switch num {
		case 1:
			m.CreateTime = int64(f.varint())
		case 2:
			m.SendTime = int64(f.varint())
		case 3:
			m.ReceiveTime = int64(f.varint())
		case 4:
			m.DeliverTime = int64(f.varint())
		case 5:
			ut := new(UserTime)
			if err := f.message(ut); err != nil {
				return err
			}
			m.UserTimes = append(m.UserTimes, ut)
		case 6:
			ui := new(UserInfo)
			if err := f.message(ui); err != nil {
				return err
			}
			m.UserInfos = append(m.UserInfos, ui)
		}
		return f.err
	})
}

// Notification is the on-wire form of one event.
type Notification struct {
	EventID *EventID
	// Scope is the ASCII representation of the event scope.
	Scope  []byte
	Method []byte
	// WireSchema names the serialization of Data.
	WireSchema []byte
	MetaData   *EventMetaData
	Causes     []*EventID
	Data       []byte
}

func (*Notification) MessageName() string { return "rsb.protocol.Notification" }

func (m *Notification) MarshalBinary() ([]byte, error) {
	var b []byte
	if m.EventID != nil {
		b = appendMessage(b, 1, m.EventID)
	}
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, m.Scope)
	if len(m.Method) > 0 {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Method)
	}
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	b = protowire.AppendBytes(b, m.WireSchema)
	if m.MetaData != nil {
		b = appendMessage(b, 5, m.MetaData)
	}
	for _, c := range m.Causes {
		b = appendMessage(b, 6, c)
	}
	if len(m.Data) > 0 {
		b = protowire.AppendTag(b, 7, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Data)
	}
	return b, nil
}

func (m *Notification) UnmarshalBinary(wire []byte) error {
	return walkFields(m.MessageName(), wire, func(num protowire.Number, f field) error {
		switch num {
		case 1:
			m.EventID = new(EventID)
			return f.message(m.EventID)
		case 2:
			m.Scope = f.bytes()
		case 3:
			m.Method = f.bytes()
		case 4:
			m.WireSchema = f.bytes()
		case 5:
			m.MetaData = new(EventMetaData)
			return f.message(m.MetaData)
		case 6:
			c := new(EventID)
			if err := f.message(c); err != nil {
				return err
			}
			m.Causes = append(m.Causes, c)
		case 7:
			m.Data = f.bytes()
		}
		return f.err
	})
}

// FragmentedNotification is one fragment of a notification whose payload
// exceeds the transport message size. Only fragment zero carries the
// event meta data; the remaining fragments repeat the event ID so the
// receiver can reassemble.
type FragmentedNotification struct {
	Notification *Notification
	NumDataParts uint32
	DataPart     uint32
}

func (*FragmentedNotification) MessageName() string {
	return "rsb.protocol.FragmentedNotification"
}

func (m *FragmentedNotification) MarshalBinary() ([]byte, error) {
	var b []byte
	if m.Notification != nil {
		b = appendMessage(b, 1, m.Notification)
	}
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.NumDataParts))
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.DataPart))
	return b, nil
}

func (m *FragmentedNotification) UnmarshalBinary(wire []byte) error {
	return walkFields(m.MessageName(), wire, func(num protowire.Number, f field) error {
		switch num {
		case 1:
			m.Notification = new(Notification)
			return f.message(m.Notification)
		case 2:
			m.NumDataParts = uint32(f.varint())
		case 3:
			m.DataPart = uint32(f.varint())
		}
		return f.err
	})
}

// marshaler is the subset of converter.Message needed by appendMessage.
// Kept local so this package does not import the converter registry.
type marshaler interface {
	MarshalBinary() ([]byte, error)
}

type unmarshaler interface {
	UnmarshalBinary(wire []byte) error
}

func appendMessage(b []byte, num protowire.Number, m marshaler) []byte {
	sub, err := m.MarshalBinary()
	if err != nil {
		// The hand-coded marshalers cannot fail.
		panic(err)
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, sub)
}

// field gives a walkFields callback typed access to one wire field.
// Accessors record a decode error instead of returning it so the switch
// bodies stay flat.
type field struct {
	typ protowire.Type
	raw []byte
	err error
}

func (f *field) varint() uint64 {
	if f.typ != protowire.VarintType {
		f.err = fmt.Errorf("want varint, have wire type %d", f.typ)
		return 0
	}
	v, n := protowire.ConsumeVarint(f.raw)
	if n < 0 {
		f.err = protowire.ParseError(n)
		return 0
	}
	return v
}

func (f *field) bytes() []byte {
	if f.typ != protowire.BytesType {
		f.err = fmt.Errorf("want bytes, have wire type %d", f.typ)
		return nil
	}
	v, n := protowire.ConsumeBytes(f.raw)
	if n < 0 {
		f.err = protowire.ParseError(n)
		return nil
	}
	return v
}

func (f *field) string() string { return string(f.bytes()) }

func (f *field) message(m unmarshaler) error {
	b := f.bytes()
	if f.err != nil {
		return f.err
	}
	return m.UnmarshalBinary(b)
}

// walkFields iterates the fields of one encoded message, handing each to
// fn. Unknown field numbers are skipped, matching protobuf semantics.
func walkFields(name string, wire []byte, fn func(num protowire.Number, f field) error) error {
	for len(wire) > 0 {
		num, typ, n := protowire.ConsumeTag(wire)
		if n < 0 {
			return fmt.Errorf("protocol: %s: bad tag: %w", name, protowire.ParseError(n))
		}
		wire = wire[n:]

		size := protowire.ConsumeFieldValue(num, typ, wire)
		if size < 0 {
			return fmt.Errorf("protocol: %s: field %d: %w", name, num, protowire.ParseError(size))
		}
		if err := fn(num, field{typ: typ, raw: wire[:size]}); err != nil {
			return fmt.Errorf("protocol: %s: field %d: %w", name, num, err)
		}
		wire = wire[size:]
	}
	return nil
}
