// Package space holds immutable snapshots of the section/row structure of a
// table. A Space is never mutated once built; edits derive a new one through
// a Builder, which copies only the sections it touches.
package space

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/byxorna/asynctable/pkg/types"
)

var lastKey uint64

// NextKey returns a process-unique row identity.
func NextKey() uint64 {
	return atomic.AddUint64(&lastKey, 1)
}

// Space is one generation of the coordinate space. Every row carries an
// identity key that survives shifts caused by edits elsewhere, and changes
// when the row itself is inserted, reloaded or moved.
type Space struct {
	generation uint64
	sections   [][]uint64
	offsets    []int

	indexOnce sync.Once
	index     map[uint64]types.Coordinate
}

// New builds a space where section i has counts[i] freshly keyed rows.
func New(generation uint64, counts []int) *Space {
	sections := make([][]uint64, len(counts))
	for i, n := range counts {
		sections[i] = freshRows(n)
	}
	return build(generation, sections)
}

// Empty is the zero-section space.
func Empty() *Space {
	return build(0, nil)
}

func build(generation uint64, sections [][]uint64) *Space {
	offsets := make([]int, len(sections)+1)
	for i, rows := range sections {
		offsets[i+1] = offsets[i] + len(rows)
	}
	return &Space{generation: generation, sections: sections, offsets: offsets}
}

func freshRows(n int) []uint64 {
	if n < 0 {
		n = 0
	}
	rows := make([]uint64, n)
	for i := range rows {
		rows[i] = NextKey()
	}
	return rows
}

func (s *Space) Generation() uint64 { return s.generation }
func (s *Space) NumSections() int   { return len(s.sections) }
func (s *Space) NumRows() int       { return s.offsets[len(s.offsets)-1] }
func (s *Space) IsEmpty() bool      { return s.NumRows() == 0 }

// RowsInSection returns 0 for sections that do not exist.
func (s *Space) RowsInSection(section int) int {
	if section < 0 || section >= len(s.sections) {
		return 0
	}
	return len(s.sections[section])
}

func (s *Space) Contains(c types.Coordinate) bool {
	return c.Section >= 0 && c.Section < len(s.sections) &&
		c.Row >= 0 && c.Row < len(s.sections[c.Section])
}

// Flat returns the position of c when all sections are laid end to end.
func (s *Space) Flat(c types.Coordinate) (int, bool) {
	if !s.Contains(c) {
		return 0, false
	}
	return s.offsets[c.Section] + c.Row, true
}

// FlatNear is Flat for coordinates that may no longer exist: the row is
// clamped into its section and the section into the space. Empty spaces
// yield 0.
func (s *Space) FlatNear(c types.Coordinate) int {
	n := s.NumRows()
	if n == 0 || c.Section < 0 {
		return 0
	}
	if c.Section >= len(s.sections) {
		return n - 1
	}
	row := c.Row
	if row < 0 {
		row = 0
	}
	if rows := len(s.sections[c.Section]); row >= rows {
		row = rows - 1
		if row < 0 {
			// empty section: the next row after it
			row = 0
		}
	}
	flat := s.offsets[c.Section] + row
	if flat >= n {
		flat = n - 1
	}
	return flat
}

// CoordinateAt is the inverse of Flat.
func (s *Space) CoordinateAt(flat int) (types.Coordinate, bool) {
	if flat < 0 || flat >= s.NumRows() {
		return types.Coordinate{}, false
	}
	// first section whose end is past flat; empty sections are skipped
	section := sort.Search(len(s.sections), func(i int) bool {
		return s.offsets[i+1] > flat
	})
	return types.At(section, flat-s.offsets[section]), true
}

func (s *Space) KeyAt(c types.Coordinate) (uint64, bool) {
	if !s.Contains(c) {
		return 0, false
	}
	return s.sections[c.Section][c.Row], true
}

// Locate finds the current coordinate of a row identity. The index is built
// on first use and shared by all readers of this generation.
func (s *Space) Locate(key uint64) (types.Coordinate, bool) {
	s.indexOnce.Do(func() {
		s.index = make(map[uint64]types.Coordinate, s.NumRows())
		for section, rows := range s.sections {
			for row, k := range rows {
				s.index[k] = types.At(section, row)
			}
		}
	})
	c, ok := s.index[key]
	return c, ok
}

// Counts returns the row count of every section.
func (s *Space) Counts() []int {
	counts := make([]int, len(s.sections))
	for i, rows := range s.sections {
		counts[i] = len(rows)
	}
	return counts
}

// Keys returns the identities of the rows in the flat range [first, last].
func (s *Space) Keys(first, last int) []uint64 {
	if first < 0 {
		first = 0
	}
	if last >= s.NumRows() {
		last = s.NumRows() - 1
	}
	if first > last {
		return nil
	}
	keys := make([]uint64, 0, last-first+1)
	c, _ := s.CoordinateAt(first)
	for flat := first; flat <= last; flat++ {
		for c.Row >= len(s.sections[c.Section]) {
			c = types.At(c.Section+1, 0)
		}
		keys = append(keys, s.sections[c.Section][c.Row])
		c.Row++
	}
	return keys
}

// Edit starts deriving a new generation from s.
func (s *Space) Edit() *Builder {
	sections := make([][]uint64, len(s.sections))
	copy(sections, s.sections)
	return &Builder{sections: sections, owned: make([]bool, len(sections))}
}

// Builder accumulates structural changes. Section slices shared with the
// parent space are copied before the first write.
type Builder struct {
	sections [][]uint64
	owned    []bool
}

func (b *Builder) NumSections() int { return len(b.sections) }

func (b *Builder) RowsInSection(section int) int {
	if section < 0 || section >= len(b.sections) {
		return 0
	}
	return len(b.sections[section])
}

func (b *Builder) own(section int) []uint64 {
	if !b.owned[section] {
		rows := make([]uint64, len(b.sections[section]))
		copy(rows, b.sections[section])
		b.sections[section] = rows
		b.owned[section] = true
	}
	return b.sections[section]
}

func (b *Builder) InsertSection(at, rows int) {
	b.sections = append(b.sections, nil)
	copy(b.sections[at+1:], b.sections[at:])
	b.sections[at] = freshRows(rows)

	b.owned = append(b.owned, false)
	copy(b.owned[at+1:], b.owned[at:])
	b.owned[at] = true
}

func (b *Builder) RemoveSection(at int) {
	b.sections = append(b.sections[:at], b.sections[at+1:]...)
	b.owned = append(b.owned[:at], b.owned[at+1:]...)
}

// ReplaceSection gives a section a new set of row identities.
func (b *Builder) ReplaceSection(at, rows int) {
	b.sections[at] = freshRows(rows)
	b.owned[at] = true
}

// MoveSection relocates a section; its rows get new identities.
func (b *Builder) MoveSection(from, to int) {
	n := len(b.sections[from])
	b.RemoveSection(from)
	b.InsertSection(to, n)
}

func (b *Builder) InsertRow(c types.Coordinate) {
	rows := b.own(c.Section)
	rows = append(rows, 0)
	copy(rows[c.Row+1:], rows[c.Row:])
	rows[c.Row] = NextKey()
	b.sections[c.Section] = rows
}

func (b *Builder) RemoveRow(c types.Coordinate) {
	rows := b.own(c.Section)
	b.sections[c.Section] = append(rows[:c.Row], rows[c.Row+1:]...)
}

// RenewRow keeps the position of a row but changes its identity.
func (b *Builder) RenewRow(c types.Coordinate) {
	b.own(c.Section)[c.Row] = NextKey()
}

// Build freezes the builder into a new generation. The builder must not be
// used afterwards.
func (b *Builder) Build(generation uint64) *Space {
	s := build(generation, b.sections)
	b.sections = nil
	b.owned = nil
	return s
}
