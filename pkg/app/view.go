package app

import (
	"fmt"
	"strings"

	"github.com/byxorna/asynctable/pkg/batch"
	"github.com/byxorna/asynctable/pkg/journal"
	"github.com/byxorna/asynctable/pkg/pipeline"
	"github.com/byxorna/asynctable/pkg/table"
	"github.com/byxorna/asynctable/pkg/text"
	"github.com/byxorna/asynctable/pkg/ui"
	"github.com/charmbracelet/lipgloss"
)

const gutterWidth = 2

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#1a1a1a", Dark: "#feda75"}).
			Background(lipgloss.AdaptiveColor{Light: "#dddddd", Dark: "#962fbf"})

	statusMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#04B575"})
)

// rowHeight is how many lines a committed row takes, its month header
// included.
func rowHeight(r table.Row) int {
	h := 1
	if r.Artifact != nil {
		h = r.Artifact.Height()
	}
	if r.Coordinate.Row == 0 {
		h++
	}
	return h
}

func (m *Application) helpView() string {
	return m.help.View(m.keys)
}

// listHeight is what is left for rows once the title, status and help lines
// are drawn.
func (m *Application) listHeight() int {
	h := m.height - 2 - lipgloss.Height(m.helpView())
	if m.jumping {
		h--
	}
	if h < 0 {
		return 0
	}
	return h
}

// visibleRows counts the rows from top that fit the list, at least one when
// there is room for anything.
func (m *Application) visibleRows() int {
	space := m.listHeight()
	rows := 0
	for flat := m.top; space > 0; flat++ {
		r, ok := m.table.RowAt(flat)
		if !ok {
			break
		}
		h := rowHeight(r)
		if h > space && rows > 0 {
			break
		}
		space -= h
		rows++
	}
	return rows
}

func (m *Application) View() string {
	if m.quitting {
		return "Bye!\n"
	}

	var b strings.Builder
	b.WriteString(m.titleView())
	b.WriteString("\n")

	lines := m.listLines()
	for i := 0; i < m.listHeight(); i++ {
		if i < len(lines) {
			b.WriteString(lines[i])
		}
		b.WriteString("\n")
	}

	if m.jumping {
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}
	b.WriteString(m.statusView())
	b.WriteString("\n")
	b.WriteString(m.helpView())
	return b.String()
}

func (m *Application) titleView() string {
	sp := m.table.Space()
	position := "empty"
	if n := sp.NumRows(); n > 0 {
		position = fmt.Sprintf("%d/%d", m.cursor+1, n)
	}
	title := fmt.Sprintf(" %s asynctable  %s (%s)  %s", text.EmojiMonth, m.journal.Directory, m.journal.Status(), position)
	return titleStyle.Render(text.Fit(title, m.width))
}

func (m *Application) listLines() []string {
	sp := m.table.Space()
	if sp.NumRows() == 0 {
		return []string{ui.PlaceholderFg("  nothing here yet, press n to write something")}
	}
	width := m.width - gutterWidth
	var lines []string
	for flat := m.top; len(lines) < m.listHeight(); flat++ {
		r, ok := m.table.RowAt(flat)
		if !ok {
			break
		}
		lines = append(lines, m.rowLines(r, flat == m.cursor, width)...)
	}
	return lines
}

func (m *Application) rowLines(r table.Row, focused bool, width int) []string {
	var lines []string
	if r.Coordinate.Row == 0 {
		month := m.journal.SectionTitle(r.Coordinate.Section)
		if card, ok := r.Artifact.(*journal.Card); ok {
			month = card.Month
		}
		lines = append(lines, ui.SectionHeader(" "+month+" "))
	}

	primary, secondary := "  ", "  "
	if focused {
		primary = ui.RowPrimaryFocused("│ ")
		secondary = ui.RowSecondaryFocused("│ ")
	}

	if r.Artifact == nil {
		placeholder := ui.PlaceholderFg(text.EmojiBuilding + " building" + text.Ellipsis)
		if r.State == pipeline.Failed {
			placeholder = ui.FailedFg(text.EmojiFailed + " unable to render this entry")
		}
		return append(lines, primary+placeholder)
	}
	for i, l := range strings.Split(r.Artifact.View(width), "\n") {
		if i == 0 {
			lines = append(lines, primary+l)
		} else {
			lines = append(lines, secondary+ui.RowSecondaryUnfocused(l))
		}
	}
	return lines
}

func (m *Application) statusView() string {
	st := m.table.Stats()
	p := st.Pipeline

	fetch := st.Batch.String()
	if st.Batch == batch.Requested {
		fetch = m.spinner.View() + " " + text.EmojiFetching + " fetching"
	}
	stats := fmt.Sprintf(" gen %d/%d  pending %d  range %s  building %d ready %d failed %d  fetch %s (%d)  lead %.1f ",
		st.Committed, st.Generation, st.PendingEdits, st.Range,
		p.Pending+p.Building, p.Ready, p.Failed,
		fetch, st.BatchFetches, m.table.Tuning().Leading)

	status := ui.StatusAccent(stats)
	if m.status != "" {
		status += " " + statusMessageStyle.Render(m.status)
	}
	status = text.TruncateWithTail(status, uint(m.width), text.Ellipsis)
	return ui.StatusBar(status)
}
