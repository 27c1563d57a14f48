package stream

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mastercactapus/cncstream/firmware"
)

// Transport writes bytes to the controller. Implementations own the
// physical connection and must bound each call with their own deadline;
// splitting the inbound byte stream into response units is also the
// transport's job.
type Transport interface {
	Send(data []byte) error
}

// ErrQueueFull is returned by Enqueue when the pending queue is at its
// configured depth.
var ErrQueueFull = errors.New("stream: command queue is full")

// SendError is a fatal transport failure during Pump. The command that
// could not be sent is attached; it has been removed from the queue and the
// caller decides whether to requeue it or abort the session.
type SendError struct {
	Command *Command
	Err     error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("stream: send %q: %v", e.Command.Text, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Config controls streaming behavior. It is fixed for the life of a
// Streamer.
type Config struct {
	// BufferCapacity is the size of the controller's receive buffer in
	// bytes. The streamer never has more than this many unacknowledged
	// bytes outstanding while flow control is on.
	BufferCapacity int

	// MaxQueueDepth bounds the pending queue.
	MaxQueueDepth int

	// MaxRetries is the number of send attempts per command.
	MaxRetries int

	// FlowControl enables the character-counting window. Without it every
	// pending command is sent immediately.
	FlowControl bool
}

// DefaultConfig returns the streaming configuration for a controller
// family, sized to its receive buffer.
func DefaultConfig(t firmware.ControllerType) Config {
	return Config{
		BufferCapacity: firmware.CapabilitiesFor(t).RXBufferSize,
		MaxQueueDepth:  100,
		MaxRetries:     3,
		FlowControl:    true,
	}
}

// Streamer owns the pending queue, the in-flight list and the byte budget
// that together implement character-counting flow control. All state is
// guarded by one mutex; methods never take a second lock.
//
// The protocol is strictly FIFO: every terminal response (ok, error,
// alarm) retires the oldest in-flight command. None of the supported
// controllers reorder acknowledgments, and the streamer does not try to
// compensate if one ever did.
type Streamer struct {
	cfg     Config
	dialect firmware.Dialect
	tr      Transport
	log     logrus.FieldLogger
	metrics *metrics

	mx       sync.Mutex
	pending  []*Command
	inFlight []*Command
	occupied int
	paused   bool

	events chan Event

	firstStatus bool
	statCh      chan *firmware.StatusReport
}

// New creates a streamer for one controller connection.
func New(tr Transport, dialect firmware.Dialect, cfg Config) *Streamer {
	return &Streamer{
		cfg:     cfg,
		dialect: dialect,
		tr:      tr,
		log: logrus.WithFields(logrus.Fields{
			"component": "streamer",
			"dialect":   dialect.Name(),
		}),
		metrics: newMetrics(),
		events:  make(chan Event, 64),
		statCh:  make(chan *firmware.StatusReport, 1),
	}
}

// SetLogger replaces the default logger. Call before streaming starts.
func (s *Streamer) SetLogger(log logrus.FieldLogger) { s.log = log }

// Events returns the streamer's event stream. Events are dropped if the
// consumer falls more than a buffer's worth behind.
func (s *Streamer) Events() <-chan Event { return s.events }

// Enqueue appends a command to the pending queue.
func (s *Streamer) Enqueue(text string) error {
	return s.EnqueueTracked(text, nil)
}

// EnqueueTracked appends a command whose terminal result is delivered on
// ch once it completes or exhausts its retries. Retries in between are
// not reported. Delivery never blocks: callers must size ch for the
// number of commands they keep outstanding.
func (s *Streamer) EnqueueTracked(text string, ch chan<- *Command) error {
	s.mx.Lock()
	defer s.mx.Unlock()

	if len(s.pending) >= s.cfg.MaxQueueDepth {
		return ErrQueueFull
	}
	cmd := newCommand(text, s.cfg.MaxRetries)
	cmd.results = ch
	s.pending = append(s.pending, cmd)
	return nil
}

// Pump sends pending commands while the flow-control window has room for a
// whole command. Commands are never split. A transport failure is fatal:
// the un-sent command is detached and returned inside a SendError.
func (s *Streamer) Pump() error {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.pump()
}

func (s *Streamer) pump() error {
	for !s.paused && len(s.pending) > 0 {
		cmd := s.pending[0]
		if s.cfg.FlowControl && s.occupied+cmd.footprint() > s.cfg.BufferCapacity {
			return nil
		}
		s.pending = s.pending[1:]

		if err := s.tr.Send([]byte(cmd.Text + "\n")); err != nil {
			s.log.WithError(err).WithField("command", cmd.Text).Error("transport send failed")
			return &SendError{Command: cmd, Err: err}
		}

		cmd.markSent()
		s.occupied += cmd.footprint()
		s.inFlight = append(s.inFlight, cmd)
		s.metrics.sent.Inc()
		s.metrics.bufferUsage.Set(float64(s.occupied))
	}
	return nil
}

// HandleData parses one raw response unit and applies it. Unparseable
// input is degraded to telemetry rather than failing the session: unknown
// dialect extensions must not break streaming.
func (s *Streamer) HandleData(raw string) error {
	resp, err := s.dialect.Parse(raw)
	if err != nil {
		s.log.WithError(err).WithField("raw", raw).Debug("unparseable response")
		resp = firmware.Response{Kind: firmware.KindUnknown, Raw: raw}
	}
	return s.OnResponse(resp)
}

// OnResponse routes a parsed response. Terminal responses retire the
// oldest in-flight command; everything else is forwarded as telemetry.
// Retiring a command frees window room, so the pump runs again before
// returning.
func (s *Streamer) OnResponse(resp firmware.Response) error {
	s.mx.Lock()
	defer s.mx.Unlock()

	switch resp.Kind {
	case firmware.KindOk:
		s.completeOldest(resp)
	case firmware.KindError, firmware.KindAlarm:
		s.failOldest(resp)
	case firmware.KindStatus:
		s.publishStatus(resp)
		return nil
	default:
		s.emit(Event{Kind: EventTelemetry, Response: &resp})
		return nil
	}

	return s.pump()
}

func (s *Streamer) completeOldest(resp firmware.Response) {
	cmd, ok := s.retireOldest(resp)
	if !ok {
		return
	}
	cmd.markAcknowledged()
	cmd.markCompleted()
	s.metrics.completed.Inc()
	s.deliver(cmd)
	s.emit(Event{Kind: EventCommandCompleted, Command: cmd, Response: &resp})
}

// deliver hands a terminal command back to its tracker. The send happens
// under the streamer lock and must not block; a full channel means the
// tracker broke its sizing contract, so the result is dropped with a log
// line instead.
func (s *Streamer) deliver(cmd *Command) {
	if cmd.results == nil {
		return
	}
	select {
	case cmd.results <- cmd:
	default:
		s.log.WithField("command", cmd.Text).Error("result channel full, result dropped")
	}
}

func (s *Streamer) failOldest(resp firmware.Response) {
	if resp.Kind == firmware.KindAlarm {
		s.metrics.alarms.Inc()
		s.emit(Event{Kind: EventMachineAlarm, Response: &resp})
	}

	cmd, ok := s.retireOldest(resp)
	if !ok {
		return
	}
	cmd.markFailed(resp.Message)

	if cmd.CanRetry() {
		// Back to the front, not the back: the controller expects
		// program lines in original order. This bypasses MaxQueueDepth
		// on purpose; the depth limit applies to new work only and a
		// retry is never dropped because the queue is full.
		s.log.WithFields(logrus.Fields{
			"command": cmd.Text,
			"attempt": cmd.Retries,
			"max":     cmd.MaxRetries,
		}).Warn("command failed, requeueing")
		s.pending = append([]*Command{cmd}, s.pending...)
		s.metrics.retries.Inc()
		return
	}

	s.log.WithFields(logrus.Fields{
		"command":  cmd.Text,
		"response": cmd.LastResponse,
	}).Error("command failed after retries")
	s.metrics.failed.Inc()
	s.deliver(cmd)
	s.emit(Event{Kind: EventCommandFailed, Command: cmd, Response: &resp})
}

// retireOldest removes the head of the in-flight list and releases its
// byte footprint. A response with nothing in flight is a protocol hiccup
// (duplicate ack, spontaneous error); it is logged and ignored rather than
// allowed to crash the session.
func (s *Streamer) retireOldest(resp firmware.Response) (*Command, bool) {
	if len(s.inFlight) == 0 {
		s.log.WithField("response", resp.Kind.String()).Warn("terminal response with nothing in flight")
		return nil, false
	}
	cmd := s.inFlight[0]
	s.inFlight = s.inFlight[1:]
	s.occupied -= cmd.footprint()
	s.metrics.bufferUsage.Set(float64(s.occupied))
	return cmd, true
}

func (s *Streamer) publishStatus(resp firmware.Response) {
	if s.firstStatus {
		<-s.statCh
	}
	s.firstStatus = true
	s.statCh <- resp.Status
	s.emit(Event{Kind: EventStatus, Status: resp.Status, Response: &resp})
}

// LastStatus returns the most recent status report. It blocks until the
// first one arrives.
func (s *Streamer) LastStatus() *firmware.StatusReport {
	stat := <-s.statCh
	s.statCh <- stat
	return stat
}

func (s *Streamer) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.log.WithField("event", ev.Kind.String()).Debug("event dropped, consumer behind")
	}
}

// Pause stops the pump. In-flight commands are unaffected and their
// acknowledgments are still processed.
func (s *Streamer) Pause() {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.paused = true
}

// Resume clears the pause and pumps immediately.
func (s *Streamer) Resume() error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.paused = false
	return s.pump()
}

// Paused reports whether the pump is paused.
func (s *Streamer) Paused() bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.paused
}

// Clear drops all local state: both queues, the byte budget and the pause
// flag. Bytes already transmitted cannot be recalled; callers needing a
// true abort must also send the controller's soft-reset through the
// transport.
func (s *Streamer) Clear() {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.pending = nil
	s.inFlight = nil
	s.occupied = 0
	s.paused = false
	s.metrics.bufferUsage.Set(0)
}

// BufferUsagePercent reports the estimated fill of the controller's
// receive buffer.
func (s *Streamer) BufferUsagePercent() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.cfg.BufferCapacity == 0 {
		return 0
	}
	return s.occupied * 100 / s.cfg.BufferCapacity
}

// PendingCount returns the number of queued, un-sent commands.
func (s *Streamer) PendingCount() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return len(s.pending)
}

// InFlightCount returns the number of sent, unacknowledged commands.
func (s *Streamer) InFlightCount() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return len(s.inFlight)
}

// OccupiedBytes returns the local byte-budget estimate.
func (s *Streamer) OccupiedBytes() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.occupied
}
