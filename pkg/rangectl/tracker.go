package rangectl

import (
	"sort"
	"sync"

	"github.com/byxorna/asynctable/pkg/space"
	"github.com/byxorna/asynctable/pkg/types"
)

// Diff is the change in the working range between two updates.
type Diff struct {
	// Entering rows, visible rows first, then by distance from the viewport.
	Entering []Target
	// Leaving rows, in the order they used to appear.
	Leaving []Target
	// Relocated rows stayed in range but changed coordinate.
	Relocated []Target
}

func (d Diff) Empty() bool {
	return len(d.Entering) == 0 && len(d.Leaving) == 0 && len(d.Relocated) == 0
}

// Tracker remembers the previous working range and reports what changed.
// All methods are safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	tuning  Tuning
	current map[uint64]types.Coordinate
	rng     Range
}

func NewTracker(t Tuning) (*Tracker, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Tracker{tuning: t, current: map[uint64]types.Coordinate{}, rng: emptyRange}, nil
}

func (tr *Tracker) Tuning() Tuning {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.tuning
}

// SetTuning replaces the tuning. Invalid values are rejected and the previous
// tuning stays in effect.
func (tr *Tracker) SetTuning(t Tuning) error {
	if err := t.Validate(); err != nil {
		return err
	}
	tr.mu.Lock()
	tr.tuning = t
	tr.mu.Unlock()
	return nil
}

// Range returns the range computed by the last Update.
func (tr *Tracker) Range() Range {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.rng
}

// Contains reports whether the row identity is in the current working range.
func (tr *Tracker) Contains(key uint64) bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	_, ok := tr.current[key]
	return ok
}

// Reset forgets the previous range without reporting anything as leaving.
func (tr *Tracker) Reset() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.current = map[uint64]types.Coordinate{}
	tr.rng = emptyRange
}

// Update recomputes the working range against sp and diffs it with the
// previous one.
func (tr *Tracker) Update(sp *space.Space, s Screen) (Range, Diff) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	rng := Compute(sp.NumRows(), s, tr.tuning)
	next := make(map[uint64]types.Coordinate, rng.Len())

	var diff Diff
	if !rng.Empty() {
		c, _ := sp.CoordinateAt(rng.First)
		keys := sp.Keys(rng.First, rng.Last)
		type candidate struct {
			Target
			distance int
		}
		var entering []candidate
		for i, key := range keys {
			flat := rng.First + i
			if i > 0 {
				c, _ = sp.CoordinateAt(flat)
			}
			next[key] = c
			old, known := tr.current[key]
			switch {
			case !known:
				entering = append(entering, candidate{Target{key, c}, distance(flat, s)})
			case old != c:
				diff.Relocated = append(diff.Relocated, Target{key, c})
			}
		}
		sort.SliceStable(entering, func(i, j int) bool {
			return entering[i].distance < entering[j].distance
		})
		for _, e := range entering {
			diff.Entering = append(diff.Entering, e.Target)
		}
	}

	for key, c := range tr.current {
		if _, ok := next[key]; !ok {
			diff.Leaving = append(diff.Leaving, Target{key, c})
		}
	}
	sort.Slice(diff.Leaving, func(i, j int) bool {
		return diff.Leaving[i].Coordinate.Less(diff.Leaving[j].Coordinate)
	})

	tr.current = next
	tr.rng = rng
	return rng, diff
}

// distance ranks a row by how soon it will be needed: visible rows are 0,
// rows after the viewport come before rows the same distance above it.
func distance(flat int, s Screen) int {
	if s.Visible() == 0 {
		return 2 * flat
	}
	switch {
	case flat < s.First:
		return 2*(s.First-flat) + 1
	case flat > s.Last:
		return 2 * (flat - s.Last)
	}
	return 0
}
