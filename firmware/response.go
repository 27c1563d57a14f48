package firmware

// Kind classifies a single controller response unit.
type Kind int

const (
	KindUnknown Kind = iota
	KindOk
	KindError
	KindAlarm
	KindStatus
	KindSetting
	KindMessage
	KindStartup
)

func (k Kind) String() string {
	switch k {
	case KindOk:
		return "ok"
	case KindError:
		return "error"
	case KindAlarm:
		return "alarm"
	case KindStatus:
		return "status"
	case KindSetting:
		return "setting"
	case KindMessage:
		return "message"
	case KindStartup:
		return "startup"
	default:
		return "unknown"
	}
}

// Response is one parsed response unit from the controller.
type Response struct {
	Kind Kind

	// Code is set for error and alarm responses.
	Code int

	// Line is the acknowledged program line number, when the dialect
	// reports one.
	Line *int

	// Message holds free text: the decoded description for errors and
	// alarms, the payload for message responses.
	Message string

	Setting *Setting
	Status  *StatusReport

	// Raw is the original wire text.
	Raw string
}

// Terminal reports whether this response retires the oldest in-flight
// command (ok, error and alarm all do; everything else is telemetry).
func (r Response) Terminal() bool {
	switch r.Kind {
	case KindOk, KindError, KindAlarm:
		return true
	}
	return false
}

// Setting is a single firmware setting report. Number is -1 for the JSON
// dialects, which key settings by name instead.
type Setting struct {
	Number int
	Name   string
	Value  string
}

// BufferState is the controller's own buffer telemetry from a status
// report (planner blocks and firmware RX bytes). This is diagnostic data
// reported by the device and is unrelated to the byte budget the streamer
// tracks locally.
type BufferState struct {
	Plan int
	RX   int
}

// Overrides holds the feed/rapid/spindle override percentages.
type Overrides struct {
	Feed    int
	Rapid   int
	Spindle int
}

// StatusReport is a machine status snapshot. Optional fields are nil when
// the report omitted them.
type StatusReport struct {
	State string

	MPos *Position
	WPos *Position
	WCO  *Position

	Buffer   *BufferState
	Override *Overrides

	Feed    *float64
	Spindle *float64
	Line    *int
}

// FillDerived completes the missing coordinate space when the report
// carried only one of MPos/WPos plus a WCO. Reported fields are never
// overwritten, so applying it again is a no-op.
func (s *StatusReport) FillDerived() {
	if s.WCO == nil {
		return
	}
	if s.WPos == nil && s.MPos != nil {
		wpos := WorkFromMachine(*s.MPos, *s.WCO)
		s.WPos = &wpos
	}
	if s.MPos == nil && s.WPos != nil {
		mpos := MachineFromWork(*s.WPos, *s.WCO)
		s.MPos = &mpos
	}
}

// Dialect parses one raw response unit (a line for text controllers, a
// JSON object for the others) into a Response. A Dialect is chosen once
// per connection and must be safe for concurrent use.
type Dialect interface {
	Name() string
	Parse(raw string) (Response, error)
}
