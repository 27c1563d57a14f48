package stream

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mastercactapus/cncstream/firmware"
)

// fakeTransport records every sent line and can be scripted to fail.
type fakeTransport struct {
	sent    []string
	failN   int
	sendErr error
}

func (f *fakeTransport) Send(data []byte) error {
	if f.failN > 0 {
		f.failN--
		return f.sendErr
	}
	f.sent = append(f.sent, strings.TrimSuffix(string(data), "\n"))
	return nil
}

func testConfig(capacity int) Config {
	return Config{
		BufferCapacity: capacity,
		MaxQueueDepth:  100,
		MaxRetries:     3,
		FlowControl:    true,
	}
}

func newTestStreamer(t *testing.T, capacity int) (*Streamer, *fakeTransport) {
	t.Helper()
	tr := &fakeTransport{}
	return New(tr, firmware.GRBL{}, testConfig(capacity)), tr
}

func TestStreamer_FlowControlWindow(t *testing.T) {
	// Capacity 20 with three 10-char commands: each occupies 11 bytes
	// with its terminator, so only one fits at a time.
	s, tr := newTestStreamer(t, 20)

	for _, cmd := range []string{"G1 X1 F100", "G1 X2 F100", "G1 X3 F100"} {
		require.Len(t, cmd, 10)
		require.NoError(t, s.Enqueue(cmd))
	}

	require.NoError(t, s.Pump())
	assert.Equal(t, 1, s.InFlightCount())
	assert.Equal(t, 2, s.PendingCount())
	assert.Equal(t, 11, s.OccupiedBytes())
	assert.Equal(t, []string{"G1 X1 F100"}, tr.sent)

	// No room frees up without an acknowledgment.
	require.NoError(t, s.Pump())
	assert.Equal(t, []string{"G1 X1 F100"}, tr.sent)

	require.NoError(t, s.HandleData("ok"))
	assert.Equal(t, []string{"G1 X1 F100", "G1 X2 F100"}, tr.sent)
	assert.Equal(t, 1, s.InFlightCount())

	require.NoError(t, s.HandleData("ok"))
	require.NoError(t, s.HandleData("ok"))
	assert.Equal(t, []string{"G1 X1 F100", "G1 X2 F100", "G1 X3 F100"}, tr.sent)
	assert.Equal(t, 0, s.InFlightCount())
	assert.Equal(t, 0, s.PendingCount())
	assert.Equal(t, 0, s.OccupiedBytes())
}

func TestStreamer_MultipleCommandsInWindow(t *testing.T) {
	s, tr := newTestStreamer(t, 128)

	require.NoError(t, s.Enqueue("G0 X0"))
	require.NoError(t, s.Enqueue("G0 X1"))
	require.NoError(t, s.Enqueue("G0 X2"))
	require.NoError(t, s.Pump())

	assert.Len(t, tr.sent, 3, "all fit in a 128-byte window at once")
	assert.Equal(t, 18, s.OccupiedBytes())
}

func TestStreamer_NeverExceedsCapacity(t *testing.T) {
	s, _ := newTestStreamer(t, 30)

	for i := 0; i < 10; i++ {
		require.NoError(t, s.Enqueue("G1 X10.000 Y10.000"))
	}
	require.NoError(t, s.Pump())
	assert.LessOrEqual(t, s.OccupiedBytes(), 30)

	for s.InFlightCount() > 0 || s.PendingCount() > 0 {
		require.NoError(t, s.HandleData("ok"))
		assert.LessOrEqual(t, s.OccupiedBytes(), 30)
	}
}

func TestStreamer_CommandNeverSplit(t *testing.T) {
	s, tr := newTestStreamer(t, 10)

	require.NoError(t, s.Enqueue("G0 X0"))
	require.NoError(t, s.Enqueue("G1 X100.123"))
	require.NoError(t, s.Pump())

	// The second command needs 12 bytes and only 4 remain; nothing of it
	// may be sent.
	assert.Equal(t, []string{"G0 X0"}, tr.sent)
	assert.Equal(t, 1, s.PendingCount())
}

func TestStreamer_FlowControlDisabled(t *testing.T) {
	tr := &fakeTransport{}
	cfg := testConfig(10)
	cfg.FlowControl = false
	s := New(tr, firmware.GRBL{}, cfg)

	require.NoError(t, s.Enqueue("G1 X10.000 Y10.000"))
	require.NoError(t, s.Enqueue("G1 X20.000 Y20.000"))
	require.NoError(t, s.Pump())

	assert.Len(t, tr.sent, 2, "without flow control everything goes out immediately")
}

func TestStreamer_QueueFull(t *testing.T) {
	tr := &fakeTransport{}
	cfg := testConfig(128)
	cfg.MaxQueueDepth = 2
	s := New(tr, firmware.GRBL{}, cfg)

	require.NoError(t, s.Enqueue("G0 X0"))
	require.NoError(t, s.Enqueue("G0 X1"))
	assert.ErrorIs(t, s.Enqueue("G0 X2"), ErrQueueFull)
}

func TestStreamer_EnqueueTrackedDeliversResults(t *testing.T) {
	s, _ := newTestStreamer(t, 128)
	results := make(chan *Command, 2)

	require.NoError(t, s.EnqueueTracked("G0 X0", results))
	require.NoError(t, s.Enqueue("G0 X1"))
	require.NoError(t, s.EnqueueTracked("BADCMD", results))
	require.NoError(t, s.Pump())

	require.NoError(t, s.HandleData("ok"))
	require.NoError(t, s.HandleData("ok"))
	for i := 0; i < 3; i++ {
		require.NoError(t, s.HandleData("error:20"))
	}

	first := <-results
	assert.Equal(t, "G0 X0", first.Text)
	assert.Equal(t, StatusCompleted, first.Status)

	second := <-results
	assert.Equal(t, "BADCMD", second.Text)
	assert.Equal(t, StatusFailed, second.Status)

	select {
	case cmd := <-results:
		t.Fatalf("unexpected result for %q: untracked commands and retries must not deliver", cmd.Text)
	default:
	}
}

func TestStreamer_RetryBypassesQueueDepth(t *testing.T) {
	tr := &fakeTransport{}
	cfg := testConfig(6)
	cfg.MaxQueueDepth = 1
	s := New(tr, firmware.GRBL{}, cfg)

	require.NoError(t, s.Enqueue("G0X0"))
	require.NoError(t, s.Pump())
	require.NoError(t, s.Enqueue("G0X1"))
	assert.ErrorIs(t, s.Enqueue("G0X2"), ErrQueueFull)

	// The failed command requeues at the front even though pending is
	// already at its depth limit.
	require.NoError(t, s.HandleData("error:2"))
	assert.Equal(t, []string{"G0X0", "G0X0"}, tr.sent, "the retry is never dropped by the depth limit")
	assert.Equal(t, 1, s.PendingCount())
}

func TestStreamer_FIFOAttribution(t *testing.T) {
	s, _ := newTestStreamer(t, 128)

	require.NoError(t, s.Enqueue("G0 X0"))
	require.NoError(t, s.Enqueue("BADCMD"))
	require.NoError(t, s.Pump())
	require.Equal(t, 2, s.InFlightCount())

	var events []Event
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range s.Events() {
			events = append(events, ev)
			if len(events) == 2 {
				return
			}
		}
	}()

	require.NoError(t, s.HandleData("ok"))
	// The error is attributed to the oldest remaining command. Retries
	// are exhausted by repeating it.
	require.NoError(t, s.HandleData("error:20"))
	require.NoError(t, s.HandleData("error:20"))
	require.NoError(t, s.HandleData("error:20"))
	<-done

	require.Len(t, events, 2)
	assert.Equal(t, EventCommandCompleted, events[0].Kind)
	assert.Equal(t, "G0 X0", events[0].Command.Text)
	assert.Equal(t, EventCommandFailed, events[1].Kind)
	assert.Equal(t, "BADCMD", events[1].Command.Text)
}

func TestStreamer_RetryRequeuesAtFront(t *testing.T) {
	s, tr := newTestStreamer(t, 128)

	require.NoError(t, s.Enqueue("G0 X0"))
	require.NoError(t, s.Enqueue("G0 X1"))
	require.NoError(t, s.Pump())
	require.Equal(t, []string{"G0 X0", "G0 X1"}, tr.sent)

	// Failing the first command must resend it before anything new.
	require.NoError(t, s.Enqueue("G0 X2"))
	require.NoError(t, s.HandleData("error:2"))

	assert.Equal(t, []string{"G0 X0", "G0 X1", "G0 X0", "G0 X2"}, tr.sent,
		"retried command goes back to the front of the queue")
}

func TestStreamer_RetryBudgetExhausted(t *testing.T) {
	tr := &fakeTransport{}
	cfg := testConfig(128)
	cfg.MaxRetries = 3
	s := New(tr, firmware.GRBL{}, cfg)

	require.NoError(t, s.Enqueue("BADCMD"))
	require.NoError(t, s.Pump())

	require.NoError(t, s.HandleData("error:20"))
	require.NoError(t, s.HandleData("error:20"))
	require.NoError(t, s.HandleData("error:20"))

	sends := 0
	for _, line := range tr.sent {
		if line == "BADCMD" {
			sends++
		}
	}
	assert.Equal(t, 3, sends, "exactly max_retries send attempts")
	assert.Equal(t, 0, s.PendingCount())
	assert.Equal(t, 0, s.InFlightCount())
	assert.Equal(t, 0, s.OccupiedBytes(), "failed command's bytes are released")
}

func TestStreamer_FailedCommandCarriesDecodedResponse(t *testing.T) {
	s, _ := newTestStreamer(t, 128)
	require.NoError(t, s.Enqueue("BADCMD"))
	require.NoError(t, s.Pump())

	for i := 0; i < 3; i++ {
		require.NoError(t, s.HandleData("error:20"))
	}

	var failed *Command
	for len(s.Events()) > 0 {
		ev := <-s.Events()
		if ev.Kind == EventCommandFailed {
			failed = ev.Command
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Contains(t, failed.LastResponse, "Unsupported or invalid g-code command")
}

func TestStreamer_AlarmEmitsEventAndFailsCommand(t *testing.T) {
	s, _ := newTestStreamer(t, 128)
	require.NoError(t, s.Enqueue("G0 X0"))
	require.NoError(t, s.Pump())

	require.NoError(t, s.HandleData("ALARM:1"))

	ev := <-s.Events()
	require.Equal(t, EventMachineAlarm, ev.Kind)
	require.NotNil(t, ev.Response)
	assert.Equal(t, 1, ev.Response.Code)
	assert.Contains(t, ev.Response.Message, "Hard limit triggered")
}

func TestStreamer_ResponseWithNothingInFlight(t *testing.T) {
	s, _ := newTestStreamer(t, 128)

	// Spontaneous acknowledgments must not crash or corrupt state.
	require.NoError(t, s.HandleData("ok"))
	require.NoError(t, s.HandleData("error:1"))
	assert.Equal(t, 0, s.OccupiedBytes())
	assert.Equal(t, 0, s.InFlightCount())
}

func TestStreamer_StatusDoesNotTouchQueues(t *testing.T) {
	s, _ := newTestStreamer(t, 128)
	require.NoError(t, s.Enqueue("G0 X0"))
	require.NoError(t, s.Pump())

	require.NoError(t, s.HandleData("<Run|MPos:1.000,2.000,3.000>"))
	assert.Equal(t, 1, s.InFlightCount(), "status is telemetry, not an acknowledgment")

	stat := s.LastStatus()
	require.NotNil(t, stat)
	assert.Equal(t, "Run", stat.State)
}

func TestStreamer_LastStatusKeepsNewest(t *testing.T) {
	s, _ := newTestStreamer(t, 128)

	require.NoError(t, s.HandleData("<Idle|MPos:0.000,0.000,0.000>"))
	require.NoError(t, s.HandleData("<Run|MPos:1.000,0.000,0.000>"))

	assert.Equal(t, "Run", s.LastStatus().State)
	assert.Equal(t, "Run", s.LastStatus().State, "reading does not consume the snapshot")
}

func TestStreamer_UnparseableInputDegradesToTelemetry(t *testing.T) {
	tr := &fakeTransport{}
	s := New(tr, firmware.TinyG{}, testConfig(128))
	require.NoError(t, s.Enqueue("G0 X0"))
	require.NoError(t, s.Pump())

	require.NoError(t, s.HandleData(`{"broken`))
	assert.Equal(t, 1, s.InFlightCount(), "garbage input must not retire commands")

	ev := <-s.Events()
	assert.Equal(t, EventTelemetry, ev.Kind)
	assert.Equal(t, firmware.KindUnknown, ev.Response.Kind)
}

func TestStreamer_SendErrorIsFatal(t *testing.T) {
	tr := &fakeTransport{failN: 1, sendErr: errors.New("port closed")}
	s := New(tr, firmware.GRBL{}, testConfig(128))

	require.NoError(t, s.Enqueue("G0 X0"))
	err := s.Pump()

	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, "G0 X0", sendErr.Command.Text)
	assert.EqualError(t, sendErr.Unwrap(), "port closed")
	assert.Equal(t, 0, s.InFlightCount(), "the failed send never counts against the window")
	assert.Equal(t, 0, s.OccupiedBytes())
}

func TestStreamer_PauseResume(t *testing.T) {
	s, tr := newTestStreamer(t, 128)

	s.Pause()
	require.NoError(t, s.Enqueue("G0 X0"))
	require.NoError(t, s.Pump())
	assert.Empty(t, tr.sent)
	assert.True(t, s.Paused())

	require.NoError(t, s.Resume())
	assert.Equal(t, []string{"G0 X0"}, tr.sent)
	assert.False(t, s.Paused())
}

func TestStreamer_PauseStillProcessesAcks(t *testing.T) {
	s, _ := newTestStreamer(t, 128)
	require.NoError(t, s.Enqueue("G0 X0"))
	require.NoError(t, s.Pump())

	s.Pause()
	require.NoError(t, s.HandleData("ok"))
	assert.Equal(t, 0, s.InFlightCount())
	assert.Equal(t, 0, s.OccupiedBytes())
}

func TestStreamer_Clear(t *testing.T) {
	s, _ := newTestStreamer(t, 20)

	require.NoError(t, s.Enqueue("G1 X1 F100"))
	require.NoError(t, s.Enqueue("G1 X2 F100"))
	require.NoError(t, s.Pump())
	s.Pause()

	s.Clear()
	assert.Equal(t, 0, s.PendingCount())
	assert.Equal(t, 0, s.InFlightCount())
	assert.Equal(t, 0, s.OccupiedBytes())
	assert.False(t, s.Paused())
}

func TestStreamer_BufferUsagePercent(t *testing.T) {
	s, _ := newTestStreamer(t, 22)
	assert.Equal(t, 0, s.BufferUsagePercent())

	require.NoError(t, s.Enqueue("G1 X1 F100"))
	require.NoError(t, s.Pump())
	assert.Equal(t, 50, s.BufferUsagePercent())
}

func TestStreamer_BufferUsagePercentZeroCapacity(t *testing.T) {
	tr := &fakeTransport{}
	cfg := testConfig(0)
	cfg.FlowControl = false
	s := New(tr, firmware.GRBL{}, cfg)

	require.NoError(t, s.Enqueue("G0 X0"))
	require.NoError(t, s.Pump())
	assert.Equal(t, 0, s.BufferUsagePercent(), "zero capacity must not divide by zero")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(firmware.ControllerGrbl)
	assert.Equal(t, 128, cfg.BufferCapacity)
	assert.True(t, cfg.FlowControl)
	assert.Equal(t, 3, cfg.MaxRetries)

	assert.Equal(t, 64, DefaultConfig(firmware.ControllerTinyG).BufferCapacity)
}
