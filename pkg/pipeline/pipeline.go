// Package pipeline builds row content on a pool of background workers.
//
// Every row identity has at most one entry and at most one build in flight.
// Work is tagged with the entry generation and the pipeline epoch; results
// whose tags no longer match are dropped on arrival instead of interrupting
// the build.
//
// Builders read the data source, which may already hold edits the caller has
// not applied yet. Finished builds are stamped with the edit sequence seen
// when they returned and are held back until Advance reaches that stamp.
package pipeline

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/byxorna/asynctable/pkg/types"
)

var (
	ErrContentBuild = fmt.Errorf("content build failed")

	// Debug enables per-build log lines.
	Debug = false

	counters = expvar.NewMap("pipeline")
)

// Artifact is the prepared content of one row. It is never modified after
// the builder returns it.
type Artifact interface {
	// Height is the number of lines the content occupies.
	Height() int
	// View renders the content for the given width.
	View(width int) string
}

// Builder produces the content for a row. It runs on worker goroutines, may
// be called concurrently for different rows, and is called once per entry.
type Builder interface {
	Build(ctx context.Context, c types.Coordinate) (Artifact, error)
}

type BuilderFunc func(ctx context.Context, c types.Coordinate) (Artifact, error)

func (f BuilderFunc) Build(ctx context.Context, c types.Coordinate) (Artifact, error) {
	return f(ctx, c)
}

type State int

const (
	Pending State = iota
	Building
	Ready
	Cancelled
	// Failed rows keep their placeholder; the pipeline does not retry them.
	Failed
)

func (s State) String() string {
	return map[State]string{
		Pending:   "pending",
		Building:  "building",
		Ready:     "ready",
		Cancelled: "cancelled",
		Failed:    "failed",
	}[s]
}

// Entry is the pipeline's record of one row in the working range.
type Entry struct {
	Key        uint64
	Coordinate types.Coordinate
	State      State
	Err        error

	gen      uint64
	inflight bool
	// seq is the edit sequence the content was read at.
	seq uint64
}

// Result is a finished build waiting to be published.
type Result struct {
	Key        uint64
	Coordinate types.Coordinate
	Artifact   Artifact
	Seq        uint64
}

type job struct {
	key   uint64
	gen   uint64
	epoch uint64
}

type Stats struct {
	Pending, Building, Ready, Cancelled, Failed int
	Queued, Buffered                            int
	Started, Completed, Discarded, Errors       uint64
}

type Pipeline struct {
	builder Builder
	workers int

	mu      sync.Mutex
	cond    *sync.Cond
	entries map[uint64]*Entry
	queue   []job
	ready   map[uint64]Result
	gen     uint64
	epoch   uint64
	seq     func() uint64
	applied uint64
	parent  context.Context
	ctx     context.Context
	cancel  context.CancelFunc
	closed  bool
	stats   Stats

	notify chan struct{}
	wg     sync.WaitGroup
}

func New(builder Builder, workers int) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	p := &Pipeline{
		builder: builder,
		workers: workers,
		entries: map[uint64]*Entry{},
		ready:   map[uint64]Result{},
		notify:  make(chan struct{}, 1),
	}
	p.cond = sync.NewCond(&p.mu)
	p.parent = context.Background()
	p.ctx, p.cancel = context.WithCancel(p.parent)
	return p
}

// Track makes every finished build carry seq(), the number of edits
// submitted to the data source so far. It must be called before Start.
func (p *Pipeline) Track(seq func() uint64) {
	p.mu.Lock()
	p.seq = seq
	p.mu.Unlock()
}

// Advance records that every edit up to seq has been applied, releasing the
// results that were read at or before it.
func (p *Pipeline) Advance(seq uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if seq <= p.applied {
		return
	}
	p.applied = seq
	for _, r := range p.ready {
		if r.Seq <= seq {
			p.signal()
			return
		}
	}
}

// Start launches the workers. Builders receive a context derived from ctx
// that is also cancelled by Reset.
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	p.cancel()
	p.parent = ctx
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work()
	}
}

// Close stops the workers after their current build and waits for them.
func (p *Pipeline) Close() {
	p.mu.Lock()
	p.closed = true
	p.cancel()
	p.cond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}

// Ready is signalled when new results can be drained.
func (p *Pipeline) Ready() <-chan struct{} {
	return p.notify
}

// Enter makes sure the row has an entry. It reports whether a new build was
// scheduled; a row whose previous build is still pending or in flight reuses
// it, even if it had been cancelled in the meantime.
func (p *Pipeline) Enter(key uint64, c types.Coordinate) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.entries[key]; ok {
		e.Coordinate = c
		if e.State == Cancelled {
			if e.inflight {
				e.State = Building
			} else {
				e.State = Pending
			}
		}
		return false
	}

	p.gen++
	p.entries[key] = &Entry{Key: key, Coordinate: c, State: Pending, gen: p.gen}
	p.queue = append(p.queue, job{key: key, gen: p.gen, epoch: p.epoch})
	p.cond.Signal()
	return true
}

// Leave cancels the row's entry. A build in flight keeps running but its
// result will be dropped; a result not yet drained is dropped now.
func (p *Pipeline) Leave(key uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[key]
	if !ok {
		return
	}
	delete(p.ready, key)
	switch e.State {
	case Pending, Building:
		e.State = Cancelled
	case Ready, Failed:
		delete(p.entries, key)
	}
}

// Relocate records that the row moved because of edits applied after
// since. A build running against the old coordinate is redone once it
// finishes. Finished content that was read after one of those edits had
// reached the data source is built again too, and Relocate reports true so
// the caller can drop what it already published.
func (p *Pipeline) Relocate(key uint64, c types.Coordinate, since uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[key]
	if !ok {
		return false
	}
	e.Coordinate = c
	if e.State == Ready && e.seq > since {
		delete(p.ready, key)
		p.requeue(e)
		p.discard()
		return true
	}
	if r, ok := p.ready[key]; ok {
		r.Coordinate = c
		p.ready[key] = r
	}
	return false
}

// Reset cancels everything and starts a new epoch. Builds in flight see
// their context cancelled and their results are discarded.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cancel()
	p.epoch++
	p.ctx, p.cancel = context.WithCancel(p.parent)
	p.stats.Discarded += uint64(len(p.ready))
	if p.seq != nil {
		p.applied = p.seq()
	}
	p.entries = map[uint64]*Entry{}
	p.ready = map[uint64]Result{}
	p.queue = nil
}

// Drain hands over the buffered results read at or before the applied
// sequence, in coordinate order.
func (p *Pipeline) Drain() []Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	var results []Result
	for key, r := range p.ready {
		if r.Seq > p.applied {
			continue
		}
		results = append(results, r)
		delete(p.ready, key)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Coordinate.Less(results[j].Coordinate)
	})
	return results
}

// Lookup returns a copy of the row's entry.
func (p *Pipeline) Lookup(key uint64) (Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[key]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	for _, e := range p.entries {
		switch e.State {
		case Pending:
			s.Pending++
		case Building:
			s.Building++
		case Ready:
			s.Ready++
		case Cancelled:
			s.Cancelled++
		case Failed:
			s.Failed++
		}
	}
	s.Queued = len(p.queue)
	s.Buffered = len(p.ready)
	return s
}

func (p *Pipeline) work() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.closed {
			p.mu.Unlock()
			return
		}
		j := p.queue[0]
		p.queue = p.queue[1:]

		e, ok := p.entries[j.key]
		if !ok || e.gen != j.gen || j.epoch != p.epoch {
			p.mu.Unlock()
			continue
		}
		if e.State == Cancelled {
			delete(p.entries, j.key)
			p.discard()
			p.mu.Unlock()
			continue
		}
		e.State = Building
		e.inflight = true
		c := e.Coordinate
		ctx := p.ctx
		seq := p.seq
		p.stats.Started++
		counters.Add("started", 1)
		p.mu.Unlock()

		if Debug {
			log.Printf("pipeline: building %s (key %d gen %d)", c, j.key, j.gen)
		}
		a, err := p.build(ctx, c)
		var stamp uint64
		if seq != nil {
			stamp = seq()
		}
		p.finish(j, c, a, err, stamp)
	}
}

func (p *Pipeline) build(ctx context.Context, c types.Coordinate) (a Artifact, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("builder panicked: %v", r)
		}
	}()
	a, err = p.builder.Build(ctx, c)
	if err == nil && a == nil {
		err = fmt.Errorf("builder returned no content")
	}
	return a, err
}

func (p *Pipeline) finish(j job, c types.Coordinate, a Artifact, err error, stamp uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[j.key]
	if !ok || e.gen != j.gen || j.epoch != p.epoch {
		p.discard()
		return
	}
	e.inflight = false

	switch {
	case e.State == Cancelled:
		delete(p.entries, j.key)
		p.discard()
	case err != nil:
		e.State = Failed
		e.Err = fmt.Errorf("building %s: %v: %w", c, err, ErrContentBuild)
		p.stats.Errors++
		counters.Add("failed", 1)
		log.Printf("pipeline: %v", e.Err)
	case e.Coordinate != c:
		// built for a row that has since moved
		p.requeue(e)
		p.discard()
	default:
		e.State = Ready
		e.seq = stamp
		p.ready[j.key] = Result{Key: j.key, Coordinate: c, Artifact: a, Seq: stamp}
		p.stats.Completed++
		counters.Add("completed", 1)
		if stamp <= p.applied {
			p.signal()
		}
	}
}

// requeue schedules a fresh build for e. Callers hold p.mu.
func (p *Pipeline) requeue(e *Entry) {
	p.gen++
	e.gen = p.gen
	e.State = Pending
	p.queue = append(p.queue, job{key: e.Key, gen: e.gen, epoch: p.epoch})
	p.cond.Signal()
}

func (p *Pipeline) signal() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

func (p *Pipeline) discard() {
	p.stats.Discarded++
	counters.Add("discarded", 1)
}
