// Package rangectl decides which rows should have content prepared ahead of
// time: the visible rows plus a tunable number of screens on either side.
package rangectl

import (
	"fmt"
	"math"

	"github.com/byxorna/asynctable/pkg/types"
)

var (
	ErrInvalidConfiguration = fmt.Errorf("invalid configuration")
)

// DefaultRowsPerScreen is the screenful estimate used before anything is
// visible.
const DefaultRowsPerScreen = 10

// Tuning sizes the working range in screenfuls before (trailing) and after
// (leading) the visible rows.
type Tuning struct {
	Trailing float64 `yaml:"trailingScreenfuls" validate:"gte=0"`
	Leading  float64 `yaml:"leadingScreenfuls" validate:"gte=0"`
}

var DefaultTuning = Tuning{Trailing: 1.0, Leading: 2.0}

func (t Tuning) Validate() error {
	if !(t.Trailing >= 0) || math.IsInf(t.Trailing, 0) {
		return fmt.Errorf("trailing screenfuls %v must be a finite value >= 0: %w", t.Trailing, ErrInvalidConfiguration)
	}
	if !(t.Leading >= 0) || math.IsInf(t.Leading, 0) {
		return fmt.Errorf("leading screenfuls %v must be a finite value >= 0: %w", t.Leading, ErrInvalidConfiguration)
	}
	return nil
}

// Screen is the viewport expressed in flat row indexes of the generation the
// range is computed against.
type Screen struct {
	// First and Last bound the visible rows, inclusive. Last < First when
	// nothing is visible.
	First, Last int

	// Height of the viewport in lines, 0 when not yet laid out.
	Height int

	// KnownHeights are the measured heights of visible rows that have
	// content.
	KnownHeights []int
}

func (s Screen) Visible() int {
	if s.Last < s.First {
		return 0
	}
	return s.Last - s.First + 1
}

// RowsPerScreen estimates how many rows fit in one viewport. Measured row
// heights win; otherwise the visible row count is used, and failing that the
// fixed default.
func (s Screen) RowsPerScreen() int {
	if s.Height > 0 && len(s.KnownHeights) > 0 {
		sum := 0
		for _, h := range s.KnownHeights {
			sum += h
		}
		if sum > 0 {
			n := int(math.Ceil(float64(s.Height*len(s.KnownHeights)) / float64(sum)))
			if n > 0 {
				return n
			}
		}
	}
	if v := s.Visible(); v > 0 {
		return v
	}
	return DefaultRowsPerScreen
}

// Rows converts a number of screenfuls into a row count.
func Rows(screens float64, rowsPerScreen int) int {
	if screens <= 0 || rowsPerScreen <= 0 {
		return 0
	}
	return int(math.Ceil(screens*float64(rowsPerScreen) - 1e-9))
}

// Range is an inclusive span of flat row indexes. Last < First means empty.
type Range struct {
	First, Last int
}

var emptyRange = Range{First: 0, Last: -1}

func (r Range) Empty() bool { return r.Last < r.First }

func (r Range) Len() int {
	if r.Empty() {
		return 0
	}
	return r.Last - r.First + 1
}

func (r Range) Contains(flat int) bool {
	return !r.Empty() && flat >= r.First && flat <= r.Last
}

func (r Range) String() string {
	if r.Empty() {
		return "[]"
	}
	return fmt.Sprintf("[%d,%d]", r.First, r.Last)
}

// Compute extends the visible rows of s by the tuned number of screens and
// clamps the result to [0, total). When nothing is visible the first screen
// of rows stands in for the viewport.
func Compute(total int, s Screen, t Tuning) Range {
	if total <= 0 {
		return emptyRange
	}
	rps := s.RowsPerScreen()

	first, last := s.First, s.Last
	if s.Visible() == 0 {
		first, last = 0, rps-1
	}
	first = clamp(first, 0, total-1)
	last = clamp(last, first, total-1)

	return Range{
		First: clamp(first-Rows(t.Trailing, rps), 0, total-1),
		Last:  clamp(last+Rows(t.Leading, rps), 0, total-1),
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Target is a row that belongs to the working range.
type Target struct {
	Key        uint64
	Coordinate types.Coordinate
}
