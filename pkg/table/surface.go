package table

import (
	"log"
	"sort"
	"sync"

	"github.com/byxorna/asynctable/pkg/edit"
	"github.com/byxorna/asynctable/pkg/pipeline"
	"github.com/byxorna/asynctable/pkg/rangectl"
	"github.com/byxorna/asynctable/pkg/space"
	"github.com/byxorna/asynctable/pkg/types"
)

// Viewport is what the host currently shows, in flat rows of the committed
// space.
type Viewport struct {
	First int
	// Rows is the number of visible rows, 0 when nothing is laid out.
	Rows int
	// Height and Width of the viewport in lines and columns.
	Height, Width int
}

// Row is one committed row as the host should draw it. Artifact is nil
// while the row shows its placeholder, State says why.
type Row struct {
	Key        uint64
	Coordinate types.Coordinate
	Artifact   Artifact
	State      pipeline.State
}

// surface is the committed presentation state. It changes only in commit
// and SetViewport, both of which run on the scheduler's goroutine.
type surface struct {
	mu        sync.RWMutex
	space     *space.Space
	content   map[uint64]Artifact
	displayed map[uint64]types.Coordinate
	first     int
	last      int
	height    int
	width     int

	running bool
	again   bool
}

func newSurface() *surface {
	return &surface{
		space:     space.Empty(),
		content:   map[uint64]Artifact{},
		displayed: map[uint64]types.Coordinate{},
		last:      -1,
	}
}

func (s *surface) visible() bool { return s.last >= s.first }

// displayedIn lists the visible rows of sp that have content. Callers hold
// s.mu.
func (s *surface) displayedIn(sp *space.Space, first, last int, content map[uint64]Artifact) map[uint64]types.Coordinate {
	shown := map[uint64]types.Coordinate{}
	if last < first {
		return shown
	}
	for i, key := range sp.Keys(first, last) {
		if _, ok := content[key]; ok {
			c, _ := sp.CoordinateAt(first + i)
			shown[key] = c
		}
	}
	return shown
}

// knownHeights of the visible rows with content. Callers hold s.mu.
func (s *surface) knownHeights() []int {
	if !s.visible() {
		return nil
	}
	var heights []int
	for _, key := range s.space.Keys(s.first, s.last) {
		if a, ok := s.content[key]; ok {
			heights = append(heights, a.Height())
		}
	}
	return heights
}

func (s *surface) counts() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.content), len(s.displayed)
}

// changes compares two displayed sets. Rows that stopped showing are
// reported with their old coordinates, rows that started with their new ones.
func changes(before, after map[uint64]types.Coordinate) (ended, began []types.Coordinate) {
	for key, c := range before {
		if _, ok := after[key]; !ok {
			ended = append(ended, c)
		}
	}
	for key, c := range after {
		if _, ok := before[key]; !ok {
			began = append(began, c)
		}
	}
	sort.Sort(types.ByCoordinate(ended))
	sort.Sort(types.ByCoordinate(began))
	return ended, began
}

func (t *Table) didEndDisplay(coords []types.Coordinate) {
	if t.delegate.DidEndDisplay == nil {
		return
	}
	for _, c := range coords {
		t.delegate.DidEndDisplay(c)
	}
}

func (t *Table) willDisplay(coords []types.Coordinate) {
	if t.delegate.WillDisplay == nil {
		return
	}
	for _, c := range coords {
		t.delegate.WillDisplay(c)
	}
}

// commit publishes everything pending. Requests that arrive while a commit
// is running are queued behind it.
func (t *Table) commit() {
	s := t.surface
	s.mu.Lock()
	if s.running {
		s.again = true
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	for {
		t.commitOnce()

		s.mu.Lock()
		if !s.again {
			s.running = false
			s.mu.Unlock()
			return
		}
		s.again = false
		s.mu.Unlock()
	}
}

func (t *Table) commitOnce() {
	p := t.takePending()
	if p.empty() {
		return
	}
	s := t.surface

	s.mu.Lock()
	old := s.space
	next := old
	if p.space != nil {
		next = p.space
	}

	first, last := s.first, s.last
	if s.visible() && next != old && !p.reset {
		first = anchor(old, next, first, p.deltas)
		last = first + (s.last - s.first)
	}
	if n := next.NumRows(); n == 0 {
		first, last = 0, -1
	} else if s.visible() {
		if first >= n {
			first = n - 1
		}
		if last >= n {
			last = n - 1
		}
	}

	content := make(map[uint64]Artifact, len(s.content)+len(p.artifacts))
	if !p.reset {
		for key, a := range s.content {
			if p.stale[key] {
				continue
			}
			if _, ok := next.Locate(key); ok {
				content[key] = a
			}
		}
	}
	assigned := 0
	for key, r := range p.artifacts {
		if _, ok := next.Locate(key); ok {
			content[key] = r.Artifact
			assigned++
		}
	}
	displayed := s.displayedIn(next, first, last, content)
	ended, began := changes(s.displayed, displayed)
	s.mu.Unlock()

	t.didEndDisplay(ended)

	s.mu.Lock()
	s.space = next
	s.content = content
	s.displayed = displayed
	s.first, s.last = first, last
	s.mu.Unlock()

	u := Update{
		From:    old.Generation(),
		To:      next.Generation(),
		Reset:   p.reset,
		Space:   next,
		First:   first,
		Content: assigned,
	}
	for _, d := range p.deltas {
		u.Edits = append(u.Edits, d.Applied...)
	}
	if Debug {
		log.Printf("table: commit %d -> %d: %d edits, %d rows of content", u.From, u.To, len(u.Edits), assigned)
	}
	if t.presenter != nil {
		t.presenter.Present(u)
	}

	t.willDisplay(began)
	t.evict()
	t.evaluateBatch()
}

// anchor finds where the row at flat position first of old ended up in next.
func anchor(old, next *space.Space, first int, deltas []edit.Delta) int {
	c, ok := old.CoordinateAt(first)
	if !ok {
		return next.FlatNear(types.At(next.NumSections(), 0))
	}
	if key, ok := old.KeyAt(c); ok {
		if moved, ok := next.Locate(key); ok {
			f, _ := next.Flat(moved)
			return f
		}
	}
	for _, d := range deltas {
		c, _ = d.Map(c)
	}
	return next.FlatNear(c)
}

// evict drops content of rows that left the working range and are not on
// screen.
func (t *Table) evict() {
	s := t.surface
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.content {
		if _, shown := s.displayed[key]; shown {
			continue
		}
		if !t.tracker.Contains(key) {
			delete(s.content, key)
		}
	}
}

// SetViewport tells the table which committed rows the host shows. It must
// be called on the scheduler's goroutine.
func (t *Table) SetViewport(v Viewport) {
	s := t.surface
	s.mu.Lock()
	sp := s.space
	n := sp.NumRows()
	first, last := v.First, v.First+v.Rows-1
	if first < 0 {
		first = 0
	}
	if last >= n {
		last = n - 1
	}
	if v.Rows <= 0 || n == 0 || first > last {
		first, last = 0, -1
	}
	s.first, s.last = first, last
	s.height, s.width = v.Height, v.Width

	displayed := s.displayedIn(sp, first, last, s.content)
	ended, began := changes(s.displayed, displayed)
	s.displayed = displayed

	vw := view{
		gen:       sp.Generation(),
		visible:   s.visible(),
		firstFlat: first,
		lastFlat:  last,
		height:    v.Height,
		known:     s.knownHeights(),
	}
	if vw.visible {
		vw.first, _ = sp.CoordinateAt(first)
		vw.last, _ = sp.CoordinateAt(last)
	}
	s.mu.Unlock()

	t.didEndDisplay(ended)
	t.willDisplay(began)
	t.setView(vw)
	t.evaluateBatch()
}

// evaluateBatch checks how close the viewport is to the end of the data.
func (t *Table) evaluateBatch() {
	s := t.surface
	s.mu.RLock()
	n := s.space.NumRows()
	screen := rangectl.Screen{First: s.first, Last: s.last, Height: s.height, KnownHeights: s.knownHeights()}
	s.mu.RUnlock()

	rps := screen.RowsPerScreen()
	last := screen.Last
	if screen.Visible() == 0 {
		last = rps - 1
		if last >= n {
			last = n - 1
		}
	}
	t.signal.Evaluate(n-1-last, rps, t.LeadingScreensForBatching())
}

// ContentAt returns the committed content of a row, if any.
func (t *Table) ContentAt(c types.Coordinate) (Artifact, bool) {
	s := t.surface
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.space.KeyAt(c)
	if !ok {
		return nil, false
	}
	a, ok := s.content[key]
	return a, ok
}

// RowAt returns the committed row at a flat position.
func (t *Table) RowAt(flat int) (Row, bool) {
	s := t.surface
	s.mu.RLock()
	c, ok := s.space.CoordinateAt(flat)
	if !ok {
		s.mu.RUnlock()
		return Row{}, false
	}
	key, _ := s.space.KeyAt(c)
	r := Row{Key: key, Coordinate: c, Artifact: s.content[key], State: pipeline.Ready}
	s.mu.RUnlock()
	if r.Artifact != nil {
		return r, true
	}
	r.State = pipeline.Pending
	if e, ok := t.pipeline.Lookup(key); ok {
		r.State = e.State
	}
	return r, true
}

// VisibleCoordinates lists the rows inside the viewport, with or without
// content.
func (t *Table) VisibleCoordinates() []types.Coordinate {
	s := t.surface
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.visible() {
		return nil
	}
	coords := make([]types.Coordinate, 0, s.last-s.first+1)
	for flat := s.first; flat <= s.last; flat++ {
		c, _ := s.space.CoordinateAt(flat)
		coords = append(coords, c)
	}
	return coords
}

// Space is the committed generation.
func (t *Table) Space() *space.Space {
	s := t.surface
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.space
}
