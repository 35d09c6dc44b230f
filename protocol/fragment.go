package protocol

import (
	"fmt"
	"sync"
)

// minFragmentRoom is the least payload headroom a fragment must offer.
// Below this the envelope overhead dominates and fragmenting cannot make
// progress.
const minFragmentRoom = 5

// Fragment splits n into FragmentedNotification messages whose encoded
// size stays within maxSize. Only fragment zero carries the meta data,
// method and cause vector; later fragments repeat just the event ID,
// scope and wire schema. A notification that fits yields one fragment.
func Fragment(n *Notification, maxSize int) ([]*FragmentedNotification, error) {
	var fragments []*FragmentedNotification
	data := n.Data

	for i := 0; ; i++ {
		part := &Notification{
			EventID:    n.EventID,
			Scope:      n.Scope,
			WireSchema: n.WireSchema,
		}
		if i == 0 {
			part.Method = n.Method
			part.MetaData = n.MetaData
			part.Causes = n.Causes
		}
		fragment := &FragmentedNotification{
			Notification: part,
			DataPart:     uint32(i),
			// NumDataParts is patched below once the count is known.
			NumDataParts: 1,
		}

		envelope, err := fragment.MarshalBinary()
		if err != nil {
			return nil, err
		}
		// Room left for payload bytes after the envelope and the
		// worst-case length prefix of the data field.
		room := maxSize - len(envelope) - 10
		if room < minFragmentRoom {
			return nil, fmt.Errorf(
				"protocol: fragment %d leaves %d bytes for data, need at least %d",
				i, room, minFragmentRoom)
		}
		if room > len(data) {
			room = len(data)
		}
		part.Data = data[:room]
		data = data[room:]
		fragments = append(fragments, fragment)

		if len(data) == 0 {
			break
		}
	}

	for _, f := range fragments {
		f.NumDataParts = uint32(len(fragments))
	}
	return fragments, nil
}

// assembly collects the fragments of one event until complete.
type assembly struct {
	parts    []*FragmentedNotification
	expected uint32
}

func (a *assembly) add(f *FragmentedNotification) error {
	for _, p := range a.parts {
		if p.DataPart == f.DataPart {
			return fmt.Errorf("protocol: duplicate fragment %d of %d", f.DataPart, a.expected)
		}
	}
	a.parts = append(a.parts, f)
	return nil
}

func (a *assembly) complete() bool { return uint32(len(a.parts)) == a.expected }

// build joins the payloads in fragment order onto fragment zero's
// notification.
func (a *assembly) build() *Notification {
	var zero *Notification
	size := 0
	for _, p := range a.parts {
		if p.DataPart == 0 {
			zero = p.Notification
		}
		size += len(p.Notification.Data)
	}
	data := make([]byte, 0, size)
	for i := uint32(0); i < a.expected; i++ {
		for _, p := range a.parts {
			if p.DataPart == i {
				data = append(data, p.Notification.Data...)
			}
		}
	}
	zero.Data = data
	return zero
}

// AssemblyPool reassembles fragmented notifications. It is safe for use
// from multiple receiver goroutines.
type AssemblyPool struct {
	mu         sync.Mutex
	assemblies map[string]*assembly
}

func NewAssemblyPool() *AssemblyPool {
	return &AssemblyPool{assemblies: make(map[string]*assembly)}
}

// Add feeds one fragment into the pool. It returns the completed
// notification once all fragments of the event have arrived, and nil
// until then. Duplicate fragments are an error.
func (p *AssemblyPool) Add(f *FragmentedNotification) (*Notification, error) {
	if f.Notification == nil || f.Notification.EventID == nil {
		return nil, fmt.Errorf("protocol: fragment without event id")
	}
	if f.NumDataParts <= 1 {
		return f.Notification, nil
	}

	key := fmt.Sprintf("%x:%d",
		f.Notification.EventID.SenderID, f.Notification.EventID.SequenceNumber)

	p.mu.Lock()
	defer p.mu.Unlock()

	a, ok := p.assemblies[key]
	if !ok {
		a = &assembly{expected: f.NumDataParts}
		p.assemblies[key] = a
	}
	if err := a.add(f); err != nil {
		return nil, err
	}
	if !a.complete() {
		return nil, nil
	}
	delete(p.assemblies, key)
	return a.build(), nil
}
