package table

import (
	"context"
	"log"

	"github.com/byxorna/asynctable/pkg/edit"
	"github.com/byxorna/asynctable/pkg/pipeline"
	"github.com/byxorna/asynctable/pkg/rangectl"
	"github.com/byxorna/asynctable/pkg/space"
	"github.com/byxorna/asynctable/pkg/types"
)

// view is the last viewport reported by the host, in the coordinates of the
// generation it was looking at.
type view struct {
	gen                 uint64
	visible             bool
	first, last         types.Coordinate
	firstFlat, lastFlat int
	height              int
	known               []int
}

// pending is what the next commit will publish.
type pending struct {
	space     *space.Space
	deltas    []edit.Delta
	reset     bool
	artifacts map[uint64]pipeline.Result
	// stale rows lose their published content; a rebuild is on its way
	stale map[uint64]bool
}

func (p pending) empty() bool {
	return p.space == nil && len(p.artifacts) == 0 && len(p.stale) == 0
}

func (t *Table) run(ctx context.Context) {
	defer close(t.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.queue.Ready():
		case <-t.pipeline.Ready():
		case <-t.wake:
		}
		if t.step() {
			t.scheduler.Post(t.commit)
		}
	}
}

// step applies pending edits, moves the working range and collects finished
// content. It reports whether there is something to commit.
func (t *Table) step() bool {
	t.reconcile.Lock()
	defer t.reconcile.Unlock()

	t.mu.Lock()
	edits, _ := t.queue.Drain()
	since := t.applied
	if n := len(edits); n > 0 {
		t.applied = edits[n-1].Seq
	}
	applied := t.applied
	if len(edits) > 0 {
		next, d := edit.Apply(t.latest, edits, t.gen+1)
		for _, err := range d.Rejected {
			log.Printf("table: rejected edit: %v", err)
		}
		if !d.Empty() {
			t.gen++
			t.latest = next
			t.history = append(t.history, d)
			t.pend.space = next
			t.pend.deltas = append(t.pend.deltas, d)
		}
	}
	sp := t.latest
	screen := t.screen(sp)
	t.mu.Unlock()

	rng, diff := t.tracker.Update(sp, screen)
	if Debug && !diff.Empty() {
		log.Printf("table: generation %d range %s: %d entering, %d leaving, %d relocated",
			sp.Generation(), rng, len(diff.Entering), len(diff.Leaving), len(diff.Relocated))
	}
	t.pipeline.Advance(applied)
	for _, r := range diff.Leaving {
		t.pipeline.Leave(r.Key)
	}
	var stale []uint64
	for _, r := range diff.Relocated {
		if t.pipeline.Relocate(r.Key, r.Coordinate, since) {
			stale = append(stale, r.Key)
		}
	}
	for _, r := range diff.Entering {
		t.pipeline.Enter(r.Key, r.Coordinate)
	}
	results := t.pipeline.Drain()

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range diff.Leaving {
		delete(t.pend.artifacts, r.Key)
	}
	for _, key := range stale {
		delete(t.pend.artifacts, key)
		if t.pend.stale == nil {
			t.pend.stale = map[uint64]bool{}
		}
		t.pend.stale[key] = true
	}
	for _, r := range results {
		if t.pend.artifacts == nil {
			t.pend.artifacts = map[uint64]pipeline.Result{}
		}
		t.pend.artifacts[r.Key] = r
	}
	return !t.pend.empty()
}

// screen maps the host's last viewport onto sp. Callers hold t.mu.
func (t *Table) screen(sp *space.Space) rangectl.Screen {
	v := t.view
	if !v.visible {
		t.trimHistory(t.committedGen)
		return rangectl.Screen{First: 0, Last: -1, Height: v.height}
	}

	t.trimHistory(v.gen)

	var first, last int
	switch {
	case v.gen == sp.Generation():
		first, last = sp.FlatNear(v.first), sp.FlatNear(v.last)
	case v.gen < t.resetGen:
		// the viewport predates a reload; only its scroll position carries over
		first, last = v.firstFlat, v.lastFlat
	default:
		f, l := v.first, v.last
		for _, d := range t.history {
			f, _ = d.Map(f)
			l, _ = d.Map(l)
		}
		first, last = sp.FlatNear(f), sp.FlatNear(l)
	}
	if n := sp.NumRows(); n > 0 {
		if first >= n {
			first = n - 1
		}
		if last >= n {
			last = n - 1
		}
	}
	if last < first {
		last = first
	}
	return rangectl.Screen{First: first, Last: last, Height: v.height, KnownHeights: v.known}
}

// trimHistory forgets deltas that end at or before gen.
func (t *Table) trimHistory(gen uint64) {
	i := 0
	for i < len(t.history) && t.history[i].To <= gen {
		i++
	}
	t.history = t.history[i:]
}

// takePending hands the next commit its payload.
func (t *Table) takePending() pending {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.pend
	t.pend = pending{}
	if p.space != nil {
		t.committedGen = p.space.Generation()
	}
	return p
}

func (t *Table) setView(v view) {
	t.mu.Lock()
	t.view = v
	t.mu.Unlock()
	t.poke()
}
