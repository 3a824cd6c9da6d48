package app

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// postedMsg tells Update that funcs were posted to the mailbox.
type postedMsg struct{}

// mailbox runs posted funcs on the bubbletea Update goroutine. It is the
// table's Scheduler.
type mailbox struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func newMailbox() *mailbox {
	return &mailbox{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (b *mailbox) Post(f func()) {
	b.mu.Lock()
	b.queue = append(b.queue, f)
	b.mu.Unlock()
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// wait is a tea.Cmd that returns once something was posted.
func (b *mailbox) wait() tea.Msg {
	select {
	case <-b.wake:
		return postedMsg{}
	case <-b.done:
		return nil
	}
}

// run calls everything posted so far, in order, and reports how many funcs
// ran.
func (b *mailbox) run() int {
	n := 0
	for {
		b.mu.Lock()
		queue := b.queue
		b.queue = nil
		b.mu.Unlock()
		if len(queue) == 0 {
			return n
		}
		for _, f := range queue {
			f()
		}
		n += len(queue)
	}
}

func (b *mailbox) close() {
	b.once.Do(func() { close(b.done) })
}
