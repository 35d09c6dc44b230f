// Package protocol implements the protobuf wire format used between bus
// processes.
//
// The message types mirror the rsb.protocol schema definitions and are
// encoded by hand on top of the protowire primitives, so no generated
// code or protoc invocation is needed. Notification carries one event;
// FragmentedNotification splits large notifications across several wire
// messages for transports with a bounded message size.
package protocol
