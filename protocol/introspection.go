package protocol

import "google.golang.org/protobuf/encoding/protowire"

// HostInfo describes the machine a participant runs on.
type HostInfo struct {
	// ID is a stable identifier of the machine, or empty when none could
	// be determined.
	ID              string
	Hostname        string
	MachineType     string
	SoftwareType    string
	SoftwareVersion string
}

func (*HostInfo) MessageName() string { return "rsb.protocol.operatingsystem.Host" }

func (m *HostInfo) MarshalBinary() ([]byte, error) {
	var b []byte
	b = appendString(b, 1, m.ID)
	b = appendString(b, 2, m.Hostname)
	b = appendString(b, 3, m.MachineType)
	b = appendString(b, 4, m.SoftwareType)
	b = appendString(b, 5, m.SoftwareVersion)
	return b, nil
}

func (m *HostInfo) UnmarshalBinary(wire []byte) error {
	return walkFields(m.MessageName(), wire, func(num protowire.Number, f field) error {
		switch num {
		case 1:
			m.ID = f.string()
		case 2:
			m.Hostname = f.string()
		case 3:
			m.MachineType = f.string()
		case 4:
			m.SoftwareType = f.string()
		case 5:
			m.SoftwareVersion = f.string()
		}
		return f.err
	})
}

// ProcessInfo describes the process a participant runs in.
type ProcessInfo struct {
	// ID is the process id rendered as a decimal string.
	ID                   string
	ProgramName          string
	CommandlineArguments []string
	// StartTime is the process start, in microseconds since the UNIX
	// epoch. Zero when unknown.
	StartTime uint64
}

func (*ProcessInfo) MessageName() string { return "rsb.protocol.operatingsystem.Process" }

func (m *ProcessInfo) MarshalBinary() ([]byte, error) {
	var b []byte
	b = appendString(b, 1, m.ID)
	b = appendString(b, 2, m.ProgramName)
	for _, arg := range m.CommandlineArguments {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendString(b, arg)
	}
	if m.StartTime != 0 {
		b = protowire.AppendTag(b, 4, protowire.VarintType)
		b = protowire.AppendVarint(b, m.StartTime)
	}
	return b, nil
}

func (m *ProcessInfo) UnmarshalBinary(wire []byte) error {
	return walkFields(m.MessageName(), wire, func(num protowire.Number, f field) error {
		switch num {
		case 1:
			m.ID = f.string()
		case 2:
			m.ProgramName = f.string()
		case 3:
			m.CommandlineArguments = append(m.CommandlineArguments, f.string())
		case 4:
			m.StartTime = f.varint()
		}
		return f.err
	})
}

// Hello announces a participant together with its process and host. It
// is broadcast when a participant is created and sent in reply to
// introspection surveys.
type Hello struct {
	// Kind is the participant kind in lower case, e.g. "informer".
	Kind string
	// ID is the 16-byte UUID of the participant.
	ID []byte
	// Parent is the UUID of the composite parent participant, if any.
	Parent []byte
	// Scope is the ASCII scope the participant operates on.
	Scope   string
	Host    *HostInfo
	Process *ProcessInfo
}

func (*Hello) MessageName() string { return "rsb.protocol.introspection.Hello" }

func (m *Hello) MarshalBinary() ([]byte, error) {
	var b []byte
	b = appendString(b, 1, m.Kind)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, m.ID)
	if len(m.Parent) > 0 {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Parent)
	}
	b = appendString(b, 4, m.Scope)
	if m.Host != nil {
		b = appendMessage(b, 5, m.Host)
	}
	if m.Process != nil {
		b = appendMessage(b, 6, m.Process)
	}
	return b, nil
}

func (m *Hello) UnmarshalBinary(wire []byte) error {
	return walkFields(m.MessageName(), wire, func(num protowire.Number, f field) error {
		switch num {
		case 1:
			m.Kind = f.string()
		case 2:
			m.ID = f.bytes()
		case 3:
			m.Parent = f.bytes()
		case 4:
			m.Scope = f.string()
		case 5:
			m.Host = new(HostInfo)
			return f.message(m.Host)
		case 6:
			m.Process = new(ProcessInfo)
			return f.message(m.Process)
		}
		return f.err
	})
}

// Bye announces that a participant is gone.
type Bye struct {
	// ID is the 16-byte UUID of the departing participant.
	ID []byte
}

func (*Bye) MessageName() string { return "rsb.protocol.introspection.Bye" }

func (m *Bye) MarshalBinary() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, m.ID)
	return b, nil
}

func (m *Bye) UnmarshalBinary(wire []byte) error {
	return walkFields(m.MessageName(), wire, func(num protowire.Number, f field) error {
		if num == 1 {
			m.ID = f.bytes()
		}
		return f.err
	})
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}
