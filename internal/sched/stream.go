package sched

import (
	"sync"

	"github.com/strand-ml/strand/internal/device"
	"github.com/strand-ml/strand/internal/metrics"
)

// Stream is an ordered asynchronous execution queue for one device. Tasks on
// the same stream run in enqueue order; ordering against other streams exists
// only where an explicit dependency event was passed to Enqueue.
//
// Each task gets a monotonically increasing ticket; the stream's completion
// counter advances as tasks finish and is the basis for Event.Done and for
// the allocator's deferred buffer reuse.
type Stream struct {
	dev device.Device
	id  int

	mu        sync.Mutex
	cond      *sync.Cond
	queue     []*task
	issued    uint64
	completed uint64
	err       *DeviceError
	closed    bool
}

type task struct {
	op   string
	fn   func() error
	deps []Event
}

// Event marks a point in a stream's execution. It is complete once the
// stream's completion counter has reached the event's ticket.
type Event struct {
	s      *Stream
	ticket uint64
}

// Done reports whether the stream has executed past the event without
// blocking. A zero Event is always done.
func (e Event) Done() bool {
	if e.s == nil {
		return true
	}
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	return e.s.completed >= e.ticket
}

// Wait blocks until the event completes and returns the stream's recorded
// error, if any. This is how execution-time failures surface to readers.
func (e Event) Wait() error {
	if e.s == nil {
		return nil
	}
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	for e.s.completed < e.ticket {
		e.s.cond.Wait()
	}
	if e.s.err != nil {
		return e.s.err
	}
	return nil
}

// Stream returns the stream the event belongs to, or nil for a zero Event.
func (e Event) Stream() *Stream {
	return e.s
}

func newStream(dev device.Device, id int) *Stream {
	s := &Stream{dev: dev, id: id}
	s.cond = sync.NewCond(&s.mu)
	go s.run()
	return s
}

// Device returns the device this stream executes on.
func (s *Stream) Device() device.Device {
	return s.dev
}

// ID returns the stream's index within its device.
func (s *Stream) ID() int {
	return s.id
}

// Enqueue inserts a task that runs once all deps have completed. It never
// blocks the caller. The returned Event completes when the task has run
// (or been skipped after a stream failure).
func (s *Stream) Enqueue(op string, fn func() error, deps ...Event) Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		panic("sched: enqueue on closed stream")
	}
	s.issued++
	t := &task{op: op, fn: fn}
	for _, d := range deps {
		// Same-stream ordering is already guaranteed by FIFO execution.
		if d.s != nil && d.s != s {
			t.deps = append(t.deps, d)
		}
	}
	s.queue = append(s.queue, t)
	metrics.TasksEnqueued.WithLabelValues(s.dev.String()).Inc()
	s.cond.Broadcast()
	return Event{s: s, ticket: s.issued}
}

// Synchronize blocks until every task enqueued so far has completed and
// returns the first recorded DeviceError, if any.
func (s *Stream) Synchronize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	target := s.issued
	for s.completed < target {
		s.cond.Wait()
	}
	if s.err != nil {
		return s.err
	}
	return nil
}

// Err returns the stream's recorded error without blocking.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	return nil
}

func (s *Stream) close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

// run drains the queue in order. Cross-stream dependencies block this worker
// only; deadlock cannot arise because dependency events always reference
// tasks enqueued earlier in a global topological order.
func (s *Stream) run() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 && s.closed {
			s.mu.Unlock()
			return
		}
		t := s.queue[0]
		s.queue = s.queue[1:]
		failed := s.err != nil
		s.mu.Unlock()

		for _, d := range t.deps {
			if err := d.Wait(); err != nil && !failed {
				// An upstream stream failed; poison this one too so the
				// error is observable from any dependent synchronize.
				s.mu.Lock()
				if s.err == nil {
					s.err = &DeviceError{Device: s.dev, Stream: s.id, Op: t.op, Err: err}
				}
				failed = true
				s.mu.Unlock()
			}
		}

		if !failed {
			if err := t.fn(); err != nil {
				s.mu.Lock()
				if s.err == nil {
					s.err = &DeviceError{Device: s.dev, Stream: s.id, Op: t.op, Err: err}
				}
				s.mu.Unlock()
			}
		}

		s.mu.Lock()
		s.completed++
		metrics.TasksCompleted.WithLabelValues(s.dev.String()).Inc()
		s.cond.Broadcast()
		s.mu.Unlock()
	}
}
