package types

import (
	"fmt"
	"sort"
)

// Coordinate addresses one row: the section it lives in and its position
// within that section.
type Coordinate struct {
	Section int `yaml:"section"`
	Row     int `yaml:"row"`
}

func At(section, row int) Coordinate {
	return Coordinate{Section: section, Row: row}
}

// Less orders coordinates by section, then row.
func (c Coordinate) Less(o Coordinate) bool {
	if c.Section != o.Section {
		return c.Section < o.Section
	}
	return c.Row < o.Row
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%d.%d", c.Section, c.Row)
}

type ByCoordinate []Coordinate

func (p ByCoordinate) Len() int           { return len(p) }
func (p ByCoordinate) Less(i, j int) bool { return p[i].Less(p[j]) }
func (p ByCoordinate) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }

// IndexSet is a sorted set of section indexes without duplicates.
type IndexSet []int

func NewIndexSet(indexes ...int) IndexSet {
	s := make(IndexSet, 0, len(indexes))
	seen := map[int]bool{}
	for _, i := range indexes {
		if seen[i] {
			continue
		}
		seen[i] = true
		s = append(s, i)
	}
	sort.Ints(s)
	return s
}

func (s IndexSet) Contains(i int) bool {
	n := sort.SearchInts(s, i)
	return n < len(s) && s[n] == i
}

// Animation is the hint passed along with a structural edit. Hosts are free
// to ignore it.
type Animation int

const (
	AnimationAutomatic Animation = iota
	AnimationNone
	AnimationFade
	AnimationRight
	AnimationLeft
	AnimationTop
	AnimationBottom
	AnimationMiddle
)

func (a Animation) String() string {
	return map[Animation]string{
		AnimationAutomatic: "automatic",
		AnimationNone:      "none",
		AnimationFade:      "fade",
		AnimationRight:     "right",
		AnimationLeft:      "left",
		AnimationTop:       "top",
		AnimationBottom:    "bottom",
		AnimationMiddle:    "middle",
	}[a]
}

type SyncStatus string

const (
	StatusUninitialized SyncStatus = "uninitialized"
	StatusOK            SyncStatus = "ok"
	StatusSynchronizing SyncStatus = "synchronizing"
	StatusError         SyncStatus = "error"
)
