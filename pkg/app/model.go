package app

import (
	"errors"
	"fmt"
	"log"

	"github.com/byxorna/asynctable/pkg/config"
	"github.com/byxorna/asynctable/pkg/db"
	"github.com/byxorna/asynctable/pkg/journal"
	"github.com/byxorna/asynctable/pkg/table"
	"github.com/byxorna/asynctable/pkg/text"
	"github.com/byxorna/asynctable/pkg/ui"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

type Application struct {
	*config.Config

	UseAltScreen bool

	journal *journal.Journal
	table   *table.Table
	mailbox *mailbox
	cancel  func()

	keys    applicationKeyMap
	help    help.Model
	input   textinput.Model
	spinner spinner.Model
	jumping bool

	width, height int
	// top is the flat row drawn first, cursor the selected flat row, both in
	// the committed generation
	top, cursor int
	reported    table.Viewport
	presented   bool
	status      string
	quitting    bool
}

// Present is called by the table on the Update goroutine, through the
// mailbox.
func (m *Application) Present(u table.Update) {
	n := u.Space.NumRows()
	if !u.Reset {
		m.cursor += u.First - m.top
		m.top = u.First
	}
	m.top = clamp(m.top, 0, n-1)
	m.cursor = clamp(m.cursor, 0, n-1)
	m.presented = true
	if table.Debug {
		log.Printf("app: presented %d -> %d, %d edits, top %d", u.From, u.To, len(u.Edits), m.top)
	}
}

func clamp(v, lo, hi int) int {
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}

func (m *Application) Init() tea.Cmd {
	cmds := []tea.Cmd{m.mailbox.wait, spinner.Tick}
	if m.UseAltScreen {
		cmds = append(cmds, tea.EnterAltScreen)
	}
	return tea.Batch(cmds...)
}

func (m *Application) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case postedMsg:
		m.mailbox.run()
		if m.presented {
			// commits move rows around under the viewport, so report it
			// even when top and size are unchanged
			m.presented = false
			m.ensureVisible()
			m.reported = table.Viewport{}
		}
		m.reportViewport()
		cmds = append(cmds, m.mailbox.wait)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.ensureVisible()
		m.reportViewport()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tea.KeyMsg:
		if m.jumping {
			cmds = append(cmds, m.updateInput(msg))
			break
		}
		if cmd := m.handleKey(msg); cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	return m, tea.Batch(cmds...)
}

func (m *Application) updateInput(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, inputKeys.cancel):
		m.jumping = false
		m.input.Blur()
		m.input.Reset()
		return nil
	case key.Matches(msg, inputKeys.accept):
		m.jumping = false
		m.input.Blur()
		m.jumpTo(m.input.Value())
		m.input.Reset()
		return nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

func (m *Application) handleKey(msg tea.KeyMsg) tea.Cmd {
	n := m.table.Space().NumRows()
	page := m.visibleRows()
	if page < 1 {
		page = 1
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		m.Close()
		return tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.Jump):
		m.jumping = true
		m.input.Focus()
		return textinput.Blink

	case key.Matches(msg, m.keys.Up):
		m.moveCursor(-1, n)
	case key.Matches(msg, m.keys.Down):
		m.moveCursor(1, n)
	case key.Matches(msg, m.keys.PageUp):
		m.moveCursor(-page, n)
	case key.Matches(msg, m.keys.PageDown):
		m.moveCursor(page, n)
	case key.Matches(msg, m.keys.Top):
		m.moveCursor(-n, n)
	case key.Matches(msg, m.keys.Bottom):
		m.moveCursor(n, n)

	case key.Matches(msg, m.keys.newEntry):
		c, err := m.journal.AddEntry("")
		m.report(err, "added entry at %s", c)
	case key.Matches(msg, m.keys.removeEntry):
		if id, ok := m.selected(); ok {
			m.report(m.journal.RemoveEntry(id), "removed %s", id)
		}
	case key.Matches(msg, m.keys.touchEntry):
		if id, ok := m.selected(); ok {
			m.report(m.journal.TouchEntry(id), "touched %s", id)
		}
	case key.Matches(msg, m.keys.moveDown):
		m.moveEntry(1)
	case key.Matches(msg, m.keys.moveUp):
		m.moveEntry(-1)
	case key.Matches(msg, m.keys.reloadMonth):
		if r, ok := m.table.RowAt(m.cursor); ok {
			m.report(m.journal.ReloadMonth(r.Coordinate.Section), "reloaded %s", m.journal.SectionTitle(r.Coordinate.Section))
		}
	case key.Matches(msg, m.keys.dropMonth):
		if r, ok := m.table.RowAt(m.cursor); ok {
			title := m.journal.SectionTitle(r.Coordinate.Section)
			m.report(m.journal.DropMonth(r.Coordinate.Section), "unloaded %s", title)
		}
	case key.Matches(msg, m.keys.reloadAll):
		m.report(m.journal.Reload(), "reloaded everything")
	case key.Matches(msg, m.keys.moreLeading):
		m.adjustLeading(0.5)
	case key.Matches(msg, m.keys.lessLeading):
		m.adjustLeading(-0.5)
	}
	return nil
}

func (m *Application) report(err error, format string, args ...interface{}) {
	if err != nil {
		m.status = err.Error()
		log.Printf("app: %v", err)
		return
	}
	m.status = fmt.Sprintf(format, args...)
}

// selected is the ID of the entry under the cursor. Rows without content
// fall back to the journal's row at the same coordinate.
func (m *Application) selected() (string, bool) {
	r, ok := m.table.RowAt(m.cursor)
	if !ok {
		return "", false
	}
	if card, ok := r.Artifact.(*journal.Card); ok {
		return card.ID, true
	}
	e, ok := m.journal.EntryAt(r.Coordinate)
	return e.ID, ok
}

func (m *Application) moveEntry(delta int) {
	id, ok := m.selected()
	if !ok {
		return
	}
	_, err := m.journal.MoveEntry(id, delta)
	switch {
	case errors.Is(err, db.ErrNoNextEntry), errors.Is(err, db.ErrNoPrevEntry):
		m.status = "entries only move within their month"
	default:
		m.report(err, "moved %s", id)
	}
}

func (m *Application) adjustLeading(delta float64) {
	tu := m.table.Tuning()
	tu.Leading += delta
	if tu.Leading < 0 {
		tu.Leading = 0
	}
	if err := m.table.SetTuning(tu); err != nil {
		m.report(err, "")
		return
	}
	m.status = fmt.Sprintf("prefetching %.1f screens ahead", tu.Leading)
}

func (m *Application) moveCursor(delta, n int) {
	if n == 0 {
		return
	}
	m.cursor = clamp(m.cursor+delta, 0, n-1)
	m.ensureVisible()
	m.reportViewport()
}

func (m *Application) jumpTo(query string) {
	found := m.journal.Find(query)
	if len(found) == 0 {
		m.status = fmt.Sprintf("nothing matches %q", query)
		return
	}
	flat, ok := m.table.Space().Flat(found[0])
	if !ok {
		m.status = fmt.Sprintf("%s is not shown yet", found[0])
		return
	}
	m.cursor = flat
	m.top = flat
	m.ensureVisible()
	m.reportViewport()
	title := found[0].String()
	if e, ok := m.journal.EntryAt(found[0]); ok {
		title = text.StyleFilteredText(e.Title(), query, ui.MatchStyle())
	}
	m.status = fmt.Sprintf("%s (%d matches)", title, len(found))
}

// ensureVisible scrolls so the cursor row is laid out.
func (m *Application) ensureVisible() {
	if m.cursor < m.top {
		m.top = m.cursor
		return
	}
	for m.top < m.cursor && m.cursor >= m.top+m.visibleRows() {
		m.top++
	}
}

// reportViewport tells the table what is on screen when that changed.
func (m *Application) reportViewport() {
	v := table.Viewport{
		First:  m.top,
		Rows:   m.visibleRows(),
		Height: m.listHeight(),
		Width:  m.width,
	}
	if v == m.reported {
		return
	}
	m.reported = v
	m.table.SetViewport(v)
}
