package table

import (
	"sync"
)

// Scheduler runs functions on the goroutine that owns the presentation, one
// at a time and in the order they were posted. Post must not block.
type Scheduler interface {
	Post(f func())
}

type SchedulerFunc func(f func())

func (s SchedulerFunc) Post(f func()) { s(f) }

// Inline runs posted functions right away on the posting goroutine, which
// includes the coordinator and whoever calls ReloadData or completes a batch
// fetch. A commit requested while another is running is folded into the
// running one, but SetViewport must not be called while a commit may run, so
// Inline only suits hosts that never report a viewport concurrently.
var Inline Scheduler = SchedulerFunc(func(f func()) { f() })

// Serial is a Scheduler with a goroutine of its own.
type Serial struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

func NewSerial() *Serial {
	s := &Serial{done: make(chan struct{})}
	s.cond = sync.NewCond(&s.mu)
	go s.loop()
	return s
}

func (s *Serial) Post(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queue = append(s.queue, f)
	s.cond.Signal()
}

// Flush waits until everything posted before it has run. It must not be
// called from a posted function.
func (s *Serial) Flush() {
	ch := make(chan struct{})
	s.Post(func() { close(ch) })
	select {
	case <-ch:
	case <-s.done:
	}
}

// Close runs what is already queued and stops the goroutine.
func (s *Serial) Close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Signal()
	s.mu.Unlock()
	<-s.done
}

func (s *Serial) loop() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		f := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		f()
	}
}
