// Package edit describes structural changes to a table and applies them to
// coordinate spaces. An edit describes a transition the data source has
// already made; it never derives one.
package edit

import (
	"fmt"
	"sort"

	"github.com/byxorna/asynctable/pkg/types"
)

var (
	ErrInvalidCoordinate = fmt.Errorf("invalid coordinate")
)

type Kind int

const (
	InsertSections Kind = iota
	DeleteSections
	ReloadSections
	MoveSection
	InsertRows
	DeleteRows
	ReloadRows
	MoveRow
)

func (k Kind) String() string {
	return map[Kind]string{
		InsertSections: "insertSections",
		DeleteSections: "deleteSections",
		ReloadSections: "reloadSections",
		MoveSection:    "moveSection",
		InsertRows:     "insertRows",
		DeleteRows:     "deleteRows",
		ReloadRows:     "reloadRows",
		MoveRow:        "moveRow",
	}[k]
}

// Edit is one structural change. Which fields are meaningful depends on Kind:
// section edits use Sections (and SectionRows for inserts and reloads), row
// edits use Rows, moves use From and To.
type Edit struct {
	Kind      Kind
	Sections  types.IndexSet
	Rows      []types.Coordinate
	From, To  types.Coordinate
	Animation types.Animation

	// SectionRows holds the row count of every inserted or reloaded section,
	// in Sections order, as reported by the data source at submission.
	SectionRows []int

	// Seq is the position of the edit in the global submission order.
	Seq uint64
}

func (e Edit) String() string {
	switch e.Kind {
	case InsertSections, DeleteSections, ReloadSections:
		return fmt.Sprintf("#%d %s %v", e.Seq, e.Kind, []int(e.Sections))
	case MoveSection:
		return fmt.Sprintf("#%d %s %d->%d", e.Seq, e.Kind, e.From.Section, e.To.Section)
	case MoveRow:
		return fmt.Sprintf("#%d %s %s->%s", e.Seq, e.Kind, e.From, e.To)
	default:
		return fmt.Sprintf("#%d %s %v", e.Seq, e.Kind, e.Rows)
	}
}

func NewInsertSections(sections types.IndexSet, rows []int, a types.Animation) Edit {
	return Edit{Kind: InsertSections, Sections: sections, SectionRows: rows, Animation: a}
}

func NewDeleteSections(sections types.IndexSet, a types.Animation) Edit {
	return Edit{Kind: DeleteSections, Sections: sections, Animation: a}
}

func NewReloadSections(sections types.IndexSet, rows []int, a types.Animation) Edit {
	return Edit{Kind: ReloadSections, Sections: sections, SectionRows: rows, Animation: a}
}

func NewMoveSection(from, to int) Edit {
	return Edit{Kind: MoveSection, From: types.At(from, 0), To: types.At(to, 0)}
}

func NewInsertRows(rows []types.Coordinate, a types.Animation) Edit {
	return Edit{Kind: InsertRows, Rows: rows, Animation: a}
}

func NewDeleteRows(rows []types.Coordinate, a types.Animation) Edit {
	return Edit{Kind: DeleteRows, Rows: rows, Animation: a}
}

func NewReloadRows(rows []types.Coordinate, a types.Animation) Edit {
	return Edit{Kind: ReloadRows, Rows: rows, Animation: a}
}

func NewMoveRow(from, to types.Coordinate) Edit {
	return Edit{Kind: MoveRow, From: from, To: to}
}

// counts is the read side of a space needed for validation.
type counts interface {
	NumSections() int
	RowsInSection(section int) int
}

func invalid(e Edit, format string, args ...interface{}) error {
	return fmt.Errorf("%s: %s: %w", e, fmt.Sprintf(format, args...), ErrInvalidCoordinate)
}

// sortedRows returns a sorted copy of the edit's rows, rejecting duplicates.
func sortedRows(e Edit) ([]types.Coordinate, error) {
	rows := make([]types.Coordinate, len(e.Rows))
	copy(rows, e.Rows)
	sort.Sort(types.ByCoordinate(rows))
	for i := 1; i < len(rows); i++ {
		if rows[i] == rows[i-1] {
			return nil, invalid(e, "duplicate row %s", rows[i])
		}
	}
	return rows, nil
}

// strictlyIncreasing rejects section sets that are unsorted or repeat an
// index. Apply relies on both.
func strictlyIncreasing(e Edit) error {
	for i := 1; i < len(e.Sections); i++ {
		if e.Sections[i] <= e.Sections[i-1] {
			return invalid(e, "sections %v are not sorted and unique", []int(e.Sections))
		}
	}
	return nil
}

// Validate checks e against the space it is about to be applied to. Nothing
// is applied when Validate fails.
func Validate(sp counts, e Edit) error {
	n := sp.NumSections()
	switch e.Kind {
	case InsertSections, DeleteSections, ReloadSections:
		if err := strictlyIncreasing(e); err != nil {
			return err
		}
	}
	switch e.Kind {
	case InsertSections:
		if len(e.SectionRows) != len(e.Sections) {
			return invalid(e, "have %d row counts for %d sections", len(e.SectionRows), len(e.Sections))
		}
		for i, s := range e.Sections {
			// indexes are final positions; each earlier insert grows the space
			if s < 0 || s > n+i {
				return invalid(e, "section %d out of range [0,%d]", s, n+i)
			}
		}
	case DeleteSections:
		for _, s := range e.Sections {
			if s < 0 || s >= n {
				return invalid(e, "section %d out of range [0,%d)", s, n)
			}
		}
	case ReloadSections:
		if len(e.SectionRows) != len(e.Sections) {
			return invalid(e, "have %d row counts for %d sections", len(e.SectionRows), len(e.Sections))
		}
		for _, s := range e.Sections {
			if s < 0 || s >= n {
				return invalid(e, "section %d out of range [0,%d)", s, n)
			}
		}
	case MoveSection:
		if e.From.Section < 0 || e.From.Section >= n || e.To.Section < 0 || e.To.Section >= n {
			return invalid(e, "sections must be in [0,%d)", n)
		}
	case InsertRows:
		rows, err := sortedRows(e)
		if err != nil {
			return err
		}
		grown := map[int]int{}
		for _, c := range rows {
			if c.Section < 0 || c.Section >= n {
				return invalid(e, "section %d out of range [0,%d)", c.Section, n)
			}
			limit := sp.RowsInSection(c.Section) + grown[c.Section]
			if c.Row < 0 || c.Row > limit {
				return invalid(e, "row %s out of range [0,%d]", c, limit)
			}
			grown[c.Section]++
		}
	case DeleteRows, ReloadRows:
		rows, err := sortedRows(e)
		if err != nil {
			return err
		}
		for _, c := range rows {
			if c.Section < 0 || c.Section >= n || c.Row < 0 || c.Row >= sp.RowsInSection(c.Section) {
				return invalid(e, "row %s does not exist", c)
			}
		}
	case MoveRow:
		f, t := e.From, e.To
		if f.Section < 0 || f.Section >= n || f.Row < 0 || f.Row >= sp.RowsInSection(f.Section) {
			return invalid(e, "source row %s does not exist", f)
		}
		if t.Section < 0 || t.Section >= n {
			return invalid(e, "destination section %d out of range [0,%d)", t.Section, n)
		}
		limit := sp.RowsInSection(t.Section)
		if t.Section == f.Section {
			limit--
		}
		if t.Row < 0 || t.Row > limit {
			return invalid(e, "destination row %s out of range [0,%d]", t, limit)
		}
	default:
		return invalid(e, "unknown edit kind %d", e.Kind)
	}
	return nil
}
