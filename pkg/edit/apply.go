package edit

import (
	"sort"

	"github.com/byxorna/asynctable/pkg/space"
	"github.com/byxorna/asynctable/pkg/types"
)

// Delta records how one generation became the next.
type Delta struct {
	From, To uint64
	Applied  []Edit
	Rejected []error
}

// Empty is true when nothing was applied.
func (d Delta) Empty() bool { return len(d.Applied) == 0 }

// Map carries a coordinate of the From generation over to the To generation.
// ok is false when the row was deleted; c is then the position that took its
// place, which may lie past the end of its section.
func (d Delta) Map(c types.Coordinate) (types.Coordinate, bool) {
	ok := true
	for _, e := range d.Applied {
		var alive bool
		c, alive = mapOne(e, c)
		ok = ok && alive
	}
	return c, ok
}

// Apply applies edits in order on top of sp. Each edit is checked against
// the result of the edits before it; rejected edits are reported in the
// delta and leave no trace. When nothing applies, sp itself is returned.
func Apply(sp *space.Space, edits []Edit, generation uint64) (*space.Space, Delta) {
	d := Delta{From: sp.Generation(), To: generation}
	b := sp.Edit()
	for _, e := range edits {
		if err := Validate(b, e); err != nil {
			d.Rejected = append(d.Rejected, err)
			continue
		}
		apply(b, e)
		d.Applied = append(d.Applied, e)
	}
	if d.Empty() {
		d.To = sp.Generation()
		return sp, d
	}
	return b.Build(generation), d
}

func apply(b *space.Builder, e Edit) {
	switch e.Kind {
	case InsertSections:
		for i, s := range e.Sections {
			b.InsertSection(s, e.SectionRows[i])
		}
	case DeleteSections:
		for i := len(e.Sections) - 1; i >= 0; i-- {
			b.RemoveSection(e.Sections[i])
		}
	case ReloadSections:
		for i, s := range e.Sections {
			b.ReplaceSection(s, e.SectionRows[i])
		}
	case MoveSection:
		b.MoveSection(e.From.Section, e.To.Section)
	case InsertRows:
		rows, _ := sortedRows(e)
		for _, c := range rows {
			b.InsertRow(c)
		}
	case DeleteRows:
		rows, _ := sortedRows(e)
		for i := len(rows) - 1; i >= 0; i-- {
			b.RemoveRow(rows[i])
		}
	case ReloadRows:
		for _, c := range e.Rows {
			b.RenewRow(c)
		}
	case MoveRow:
		b.RemoveRow(e.From)
		b.InsertRow(e.To)
	}
}

func mapOne(e Edit, c types.Coordinate) (types.Coordinate, bool) {
	alive := true
	switch e.Kind {
	case InsertSections:
		for _, s := range e.Sections {
			if c.Section >= s {
				c.Section++
			}
		}
	case DeleteSections:
		for i := len(e.Sections) - 1; i >= 0; i-- {
			s := e.Sections[i]
			if c.Section == s {
				alive = false
				c.Row = 0
			} else if c.Section > s {
				c.Section--
			}
		}
	case ReloadSections:
		for i, s := range e.Sections {
			if c.Section == s && c.Row >= e.SectionRows[i] {
				alive = false
			}
		}
	case MoveSection:
		from, to := e.From.Section, e.To.Section
		if c.Section == from {
			c.Section = to
			break
		}
		if c.Section > from {
			c.Section--
		}
		if c.Section >= to {
			c.Section++
		}
	case InsertRows:
		rows, _ := sortedRows(e)
		for _, r := range rows {
			if c.Section == r.Section && c.Row >= r.Row {
				c.Row++
			}
		}
	case DeleteRows:
		rows, _ := sortedRows(e)
		sort.Sort(sort.Reverse(types.ByCoordinate(rows)))
		for _, r := range rows {
			if c.Section != r.Section {
				continue
			}
			if c.Row == r.Row {
				alive = false
			} else if c.Row > r.Row {
				c.Row--
			}
		}
	case MoveRow:
		f, t := e.From, e.To
		if c == f {
			return t, true
		}
		if c.Section == f.Section && c.Row > f.Row {
			c.Row--
		}
		if c.Section == t.Section && c.Row >= t.Row {
			c.Row++
		}
	}
	return c, alive
}
