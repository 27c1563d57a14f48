package stream

import "github.com/mastercactapus/cncstream/firmware"

// EventKind classifies streamer events.
type EventKind int

const (
	// EventCommandCompleted is emitted when a command is acknowledged.
	EventCommandCompleted EventKind = iota
	// EventCommandFailed is emitted when a command exhausts its retries.
	// This is terminal for the command but not for the session.
	EventCommandFailed
	// EventMachineAlarm is emitted for every alarm response. Callers are
	// expected to stop sending motion commands until the alarm clears;
	// the streamer does not enforce that policy.
	EventMachineAlarm
	// EventStatus carries a machine status snapshot.
	EventStatus
	// EventTelemetry carries messages, banners, settings and anything
	// else that does not affect the command queue.
	EventTelemetry
)

func (k EventKind) String() string {
	switch k {
	case EventCommandCompleted:
		return "command_completed"
	case EventCommandFailed:
		return "command_failed"
	case EventMachineAlarm:
		return "machine_alarm"
	case EventStatus:
		return "status"
	case EventTelemetry:
		return "telemetry"
	default:
		return "invalid"
	}
}

// Event is one item on the streamer's outbound event stream.
type Event struct {
	Kind EventKind

	// Command is set for command completion and failure events.
	Command *Command

	// Status is set for status events.
	Status *firmware.StatusReport

	// Response is the parsed response that produced this event, when one
	// did.
	Response *firmware.Response
}
