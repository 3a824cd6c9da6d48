// Package batch runs the fetch-more handshake: when the viewport nears the
// end of the data, ask the owner for more, then stay quiet until it answers.
package batch

import (
	"fmt"
	"log"
	"sync"

	"github.com/byxorna/asynctable/pkg/rangectl"
)

var (
	ErrDoubleCompletion = fmt.Errorf("batch fetch completed more than once")
)

// DefaultLeadingScreens is how close to the end of the data, in screenfuls,
// the viewport must come before a fetch is requested.
const DefaultLeadingScreens = 1.0

type State int

const (
	Idle State = iota
	Requested
	Completed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requested:
		return "requested"
	case Completed:
		return "completed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Context is the token for one outstanding fetch. The fetcher must call
// Complete exactly once, from any goroutine.
type Context struct {
	mu      sync.Mutex
	id      uint64
	state   State
	success bool
	done    func()
}

func (c *Context) ID() uint64 { return c.id }

func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Succeeded reports what the fetcher passed to Complete.
func (c *Context) Succeeded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.success
}

// Complete acknowledges the fetch. Later calls are ignored.
func (c *Context) Complete(success bool) {
	c.mu.Lock()
	if c.state != Requested {
		c.mu.Unlock()
		log.Printf("batch: fetch %d: %v", c.id, ErrDoubleCompletion)
		return
	}
	c.state = Completed
	c.success = success
	done := c.done
	c.mu.Unlock()

	if done != nil {
		done()
	}
}

// Signal decides when to ask for more data. ShouldBegin and Begin are the
// owner's optional hooks; without Begin the signal never fires.
type Signal struct {
	mu          sync.Mutex
	shouldBegin func() bool
	begin       func(*Context)
	completed   func()
	current     *Context
	fired       uint64
}

// NewSignal wires the hooks. completed, if set, is called after a fetch is
// acknowledged so the owner can schedule another evaluation.
func NewSignal(shouldBegin func() bool, begin func(*Context), completed func()) *Signal {
	return &Signal{shouldBegin: shouldBegin, begin: begin, completed: completed}
}

// State of the current fetch, Idle if none was ever requested.
func (s *Signal) State() State {
	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()
	if cur == nil {
		return Idle
	}
	return cur.State()
}

// Fired counts the fetches requested so far.
func (s *Signal) Fired() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired
}

// Evaluate requests a fetch if remaining rows after the viewport fit within
// leadingScreens screenfuls and no fetch is outstanding. It reports whether a
// fetch was requested. Begin is called on the calling goroutine.
func (s *Signal) Evaluate(remaining, rowsPerScreen int, leadingScreens float64) bool {
	s.mu.Lock()
	if s.begin == nil {
		s.mu.Unlock()
		return false
	}
	if s.current != nil {
		switch s.current.State() {
		case Requested:
			s.mu.Unlock()
			return false
		case Completed:
			s.current = nil
		}
	}
	if remaining < 0 {
		remaining = 0
	}
	if remaining > rangectl.Rows(leadingScreens, rowsPerScreen) {
		s.mu.Unlock()
		return false
	}
	if s.shouldBegin != nil && !s.shouldBegin() {
		s.mu.Unlock()
		return false
	}
	s.fired++
	ctx := &Context{id: s.fired, state: Requested, done: s.completed}
	s.current = ctx
	begin := s.begin
	s.mu.Unlock()

	log.Printf("batch: requesting fetch %d with %d rows remaining", ctx.id, remaining)
	begin(ctx)
	return true
}
