package stream

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const jobLinesBuffer = 1024

// JobStatus is a snapshot of a running job's progress.
type JobStatus struct {
	ID   string
	Name string

	// Read counts G-code lines taken from the source (comments and blank
	// lines are skipped, not counted).
	Read         int
	ReadComplete bool

	Sent      int
	Completed int
	Failed    int

	Done bool
	Err  error
}

// Job streams a G-code program through a Streamer. Each of the job's
// commands is tracked individually, so other callers (a jog from a UI,
// say) can share the streamer without being counted as job progress.
// Progress is republished on Updates.
type Job struct {
	s *Streamer

	ctx      context.Context
	cancelFn context.CancelFunc

	lines    chan string
	statusCh chan JobStatus
	updates  chan JobStatus

	wg sync.WaitGroup
}

// NewJob starts streaming the program read from r. The reader is closed
// when the job ends if it implements io.Closer.
func (s *Streamer) NewJob(ctx context.Context, name string, r io.Reader) *Job {
	j := &Job{
		s:        s,
		lines:    make(chan string, jobLinesBuffer),
		statusCh: make(chan JobStatus, 1),
		updates:  make(chan JobStatus, 1),
	}
	j.statusCh <- JobStatus{ID: uuid.NewString(), Name: name}
	j.ctx, j.cancelFn = context.WithCancel(ctx)

	closer, _ := r.(io.Closer)
	j.wg.Add(2)
	go j.readLoop(bufio.NewScanner(r), closer)
	go j.run()

	return j
}

// Updates returns a channel carrying progress snapshots. Intermediate
// snapshots are dropped if the consumer is behind; the final one is
// always retained.
func (j *Job) Updates() <-chan JobStatus { return j.updates }

// Status returns the current progress snapshot.
func (j *Job) Status() JobStatus {
	stat := <-j.statusCh
	j.statusCh <- stat
	return stat
}

// Err returns the job's terminal error, if any.
func (j *Job) Err() error {
	return j.Status().Err
}

// Cancel stops the job. Commands already in the controller's buffer will
// still execute.
func (j *Job) Cancel() {
	j.cancelFn()
	j.wg.Wait()
}

// Wait blocks until the job finishes and returns its error.
func (j *Job) Wait() error {
	j.wg.Wait()
	return j.Err()
}

func (j *Job) updateStatus(update func(st *JobStatus)) JobStatus {
	stat := <-j.statusCh
	if stat.Err == nil && !stat.Done {
		update(&stat)
	}
	j.statusCh <- stat

	select {
	case j.updates <- stat:
	default:
		select {
		case <-j.updates:
		default:
		}
		select {
		case j.updates <- stat:
		default:
		}
	}
	return stat
}

func (j *Job) failWith(err error) {
	j.updateStatus(func(st *JobStatus) {
		st.Err = err
		st.Done = true
	})
	j.cancelFn()
}

func (j *Job) readLoop(scan *bufio.Scanner, c io.Closer) {
	defer j.wg.Done()
	defer close(j.lines)
	if c != nil {
		defer c.Close()
	}

	for scan.Scan() {
		text := stripComment(scan.Text())
		if text == "" {
			continue
		}

		j.updateStatus(func(st *JobStatus) { st.Read++ })
		select {
		case j.lines <- text:
		case <-j.ctx.Done():
			return
		}
	}

	if scan.Err() != nil {
		j.failWith(scan.Err())
		return
	}
	j.updateStatus(func(st *JobStatus) { st.ReadComplete = true })
}

// stripComment removes semicolon and parenthesis comments and surrounding
// whitespace.
func stripComment(line string) string {
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	for {
		open := strings.IndexByte(line, '(')
		if open < 0 {
			break
		}
		closeIdx := strings.IndexByte(line[open:], ')')
		if closeIdx < 0 {
			line = line[:open]
			break
		}
		line = line[:open] + line[open+closeIdx+1:]
	}
	return strings.TrimSpace(line)
}

// run feeds lines into the streamer and collects per-command results. One
// select loop owns all state, so enqueueing never races ack handling.
//
// Results arrive on a channel dedicated to this job, sized to the job's
// own outstanding bound, so completions are never lost and commands
// enqueued by other callers are never counted against the job.
func (j *Job) run() {
	defer j.wg.Done()

	results := make(chan *Command, j.s.cfg.MaxQueueDepth)
	outstanding := 0

	// Wakes the loop to retry after another producer filled the queue.
	retry := time.NewTicker(50 * time.Millisecond)
	defer retry.Stop()

	var held string
	var haveHeld bool

	for {
		if haveHeld && outstanding < cap(results) {
			switch err := j.s.EnqueueTracked(held, results); {
			case err == nil:
				haveHeld = false
				if err := j.s.Pump(); err != nil {
					j.failWith(err)
					return
				}
				outstanding++
				j.updateStatus(func(st *JobStatus) { st.Sent++ })
			case errors.Is(err, ErrQueueFull):
			default:
				j.failWith(err)
				return
			}
		}

		stat := j.Status()
		if stat.ReadComplete && !haveHeld && j.lines == nil && outstanding == 0 {
			j.updateStatus(func(st *JobStatus) { st.Done = true })
			return
		}

		src := j.lines
		if haveHeld {
			src = nil
		}

		select {
		case line, ok := <-src:
			if !ok {
				j.lines = nil
				continue
			}
			held, haveHeld = line, true

		case cmd := <-results:
			outstanding--
			if cmd.Status == StatusFailed {
				j.updateStatus(func(st *JobStatus) { st.Failed++ })
			} else {
				j.updateStatus(func(st *JobStatus) { st.Completed++ })
			}

		case <-retry.C:

		case <-j.ctx.Done():
			j.updateStatus(func(st *JobStatus) { st.Done = true })
			return
		}
	}
}
