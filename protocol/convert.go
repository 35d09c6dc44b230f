package protocol

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rsbus/rsbus/converter"
	"github.com/rsbus/rsbus/event"
	"github.com/rsbus/rsbus/scope"
)

// Micros converts a wall-clock time to microseconds since the UNIX
// epoch, the unit used by all wire timestamps. The zero time maps to 0.
func Micros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

// FromMicros is the inverse of Micros.
func FromMicros(us int64) time.Time {
	if us == 0 {
		return time.Time{}
	}
	return time.UnixMicro(us)
}

// FromEvent serializes the payload of e with a converter from sel and
// wraps the result in a Notification. The send timestamp is stamped here
// if the caller has not done so.
func FromEvent(e *event.Event, sel converter.Selection) (*Notification, error) {
	c, err := sel.ForDataType(e.Type)
	if err != nil {
		return nil, err
	}
	data, err := c.Serialize(e.Data)
	if err != nil {
		return nil, err
	}

	if e.MetaData.SendTime.IsZero() {
		e.MetaData.SendTime = time.Now()
	}
	md := &EventMetaData{
		CreateTime:  Micros(e.MetaData.CreateTime),
		SendTime:    Micros(e.MetaData.SendTime),
		ReceiveTime: Micros(e.MetaData.ReceiveTime),
		DeliverTime: Micros(e.MetaData.DeliverTime),
	}
	for key, t := range e.MetaData.UserTimes() {
		md.UserTimes = append(md.UserTimes, &UserTime{Key: key, Timestamp: Micros(t)})
	}
	for key, value := range e.MetaData.UserInfos() {
		md.UserInfos = append(md.UserInfos, &UserInfo{Key: key, Value: value})
	}

	n := &Notification{
		EventID: &EventID{
			SenderID:       e.ID.ParticipantID[:],
			SequenceNumber: e.ID.SequenceNumber,
		},
		Scope:      e.Scope.Bytes(),
		Method:     []byte(e.Method),
		WireSchema: []byte(c.WireSchema()),
		MetaData:   md,
		Data:       data,
	}
	for _, cause := range e.Causes() {
		n.Causes = append(n.Causes, &EventID{
			SenderID:       cause.ParticipantID[:],
			SequenceNumber: cause.SequenceNumber,
		})
	}
	return n, nil
}

// ToEvent deserializes the payload of n with a converter from sel and
// rebuilds the event. The receive timestamp is stamped on the result.
func ToEvent(n *Notification, sel converter.Selection) (*event.Event, error) {
	if n.EventID == nil {
		return nil, fmt.Errorf("protocol: notification without event id")
	}
	sender, err := uuid.FromBytes(n.EventID.SenderID)
	if err != nil {
		return nil, fmt.Errorf("protocol: bad sender id: %w", err)
	}
	sc, err := scope.Parse(string(n.Scope))
	if err != nil {
		return nil, fmt.Errorf("protocol: %w", err)
	}
	c, err := sel.ForWireSchema(string(n.WireSchema))
	if err != nil {
		return nil, err
	}
	data, err := c.Deserialize(n.Data)
	if err != nil {
		return nil, err
	}

	e := event.New(sc, data)
	e.ID = event.ID{ParticipantID: sender, SequenceNumber: n.EventID.SequenceNumber}
	e.Method = string(n.Method)
	if md := n.MetaData; md != nil {
		e.MetaData.CreateTime = FromMicros(md.CreateTime)
		e.MetaData.SendTime = FromMicros(md.SendTime)
		for _, ut := range md.UserTimes {
			e.MetaData.SetUserTime(ut.Key, FromMicros(ut.Timestamp))
		}
		for _, ui := range md.UserInfos {
			e.MetaData.SetUserInfo(ui.Key, ui.Value)
		}
	}
	e.MetaData.ReceiveTime = time.Now()
	for _, cause := range n.Causes {
		id, err := uuid.FromBytes(cause.SenderID)
		if err != nil {
			return nil, fmt.Errorf("protocol: bad cause id: %w", err)
		}
		e.AddCause(event.ID{ParticipantID: id, SequenceNumber: cause.SequenceNumber})
	}
	return e, nil
}
