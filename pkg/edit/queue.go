package edit

import (
	"sync"
)

// Queue is the single ordered log of submitted edits. Any goroutine may
// submit; the lock establishes one global order and Submit never waits on
// the consumer.
type Queue struct {
	mu       sync.Mutex
	pending  []Edit
	seq      uint64
	epoch    uint64
	grouping int
	ready    chan struct{}
}

func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Submit appends e and returns its sequence number.
func (q *Queue) Submit(e Edit) uint64 {
	return q.SubmitFunc(func() Edit { return e })
}

// SubmitFunc builds the edit while holding the queue lock, so anything read
// inside build (row counts of inserted sections, say) is ordered together
// with the edit itself.
func (q *Queue) SubmitFunc(build func() Edit) uint64 {
	q.mu.Lock()
	e := build()
	q.seq++
	e.Seq = q.seq
	q.pending = append(q.pending, e)
	notify := q.grouping == 0
	q.mu.Unlock()

	if notify {
		q.signal()
	}
	return e.Seq
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Begin holds back Drain until the matching End, so the edits in between are
// applied as one batch.
func (q *Queue) Begin() {
	q.mu.Lock()
	q.grouping++
	q.mu.Unlock()
}

func (q *Queue) End() {
	q.mu.Lock()
	if q.grouping > 0 {
		q.grouping--
	}
	notify := q.grouping == 0 && len(q.pending) > 0
	q.mu.Unlock()

	if notify {
		q.signal()
	}
}

// Drain takes every pending edit in submission order, along with the epoch
// they were submitted in.
func (q *Queue) Drain() ([]Edit, uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.grouping > 0 || len(q.pending) == 0 {
		return nil, q.epoch
	}
	edits := q.pending
	q.pending = nil
	return edits, q.epoch
}

// Reset drops every pending edit and starts a new epoch. Open groups are
// closed.
func (q *Queue) Reset() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = nil
	q.grouping = 0
	q.epoch++
	return q.epoch
}

// Seq is the sequence number of the last submitted edit.
func (q *Queue) Seq() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.seq
}

func (q *Queue) Epoch() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.epoch
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Ready is signalled whenever new edits may be drained.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}
