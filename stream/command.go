package stream

// CommandStatus tracks a command through the streaming lifecycle.
type CommandStatus int

const (
	// StatusQueued means the command is waiting to be sent.
	StatusQueued CommandStatus = iota
	// StatusSent means the command is in the controller's receive buffer
	// awaiting acknowledgment.
	StatusSent
	// StatusAcknowledged means the controller accepted the command.
	StatusAcknowledged
	// StatusCompleted means the command finished successfully.
	StatusCompleted
	// StatusFailed means the controller rejected the command.
	StatusFailed
)

func (s CommandStatus) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusSent:
		return "sent"
	case StatusAcknowledged:
		return "acknowledged"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "invalid"
	}
}

// Command is a single G-code line tracked by the streamer.
type Command struct {
	Text   string
	Status CommandStatus

	// Retries counts send attempts, including the first.
	Retries    int
	MaxRetries int

	// LastResponse is the decoded text of the most recent error or alarm
	// this command received.
	LastResponse string

	// results receives the command once it reaches a terminal status,
	// when the enqueuer asked for tracking.
	results chan<- *Command
}

func newCommand(text string, maxRetries int) *Command {
	return &Command{Text: text, Status: StatusQueued, MaxRetries: maxRetries}
}

// CanRetry reports whether the command has send attempts left.
func (c *Command) CanRetry() bool { return c.Retries < c.MaxRetries }

// footprint is the room the command occupies in the controller's receive
// buffer: the text plus the line terminator.
func (c *Command) footprint() int { return len(c.Text) + 1 }

func (c *Command) markSent() {
	c.Status = StatusSent
	c.Retries++
}

func (c *Command) markAcknowledged() { c.Status = StatusAcknowledged }

func (c *Command) markCompleted() { c.Status = StatusCompleted }

func (c *Command) markFailed(response string) {
	c.Status = StatusFailed
	c.LastResponse = response
}
