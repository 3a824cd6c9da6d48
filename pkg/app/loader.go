package app

import (
	"context"
	"fmt"

	"github.com/byxorna/asynctable/pkg/config"
	"github.com/byxorna/asynctable/pkg/journal"
	"github.com/byxorna/asynctable/pkg/table"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	lib "github.com/charmbracelet/charm/ui/common"
	te "github.com/muesli/termenv"
)

// New opens the journal in c.Directory and builds the table over it. The
// table and the directory watcher run until ctx is done or the application
// quits.
func New(ctx context.Context, c *config.Config, user string, useAltScreen bool) (*Application, error) {
	j, err := journal.Open(*c, user, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to open journal: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	m := Application{
		Config:       c,
		UseAltScreen: useAltScreen,
		journal:      j,
		mailbox:      newMailbox(),
		cancel:       cancel,
		keys:         DefaultKeyMap(),
		help:         help.NewModel(),
	}

	o := table.NewOptions(j, j.Builder())
	o.Presenter = &m
	o.Scheduler = m.mailbox
	o.Delegate = j.Delegate()
	o.Tuning = c.Tuning
	o.LeadingScreensForBatching = c.LeadingScreensForBatching
	o.Workers = c.Workers
	t, err := table.New(o)
	if err != nil {
		cancel()
		return nil, err
	}
	m.table = t
	j.Attach(t)

	ti := textinput.NewModel()
	ti.Prompt = te.String(" / ").
		Foreground(lib.Color("#333333")).
		Background(lib.YellowGreen.Color()).
		String() + " "
	ti.Placeholder = "title or tag"
	ti.CharLimit = 80
	m.input = ti

	sp := spinner.NewModel()
	sp.Spinner = spinner.Line
	m.spinner = sp

	t.Start(ctx)
	if err := j.Watch(ctx); err != nil {
		m.Close()
		return nil, err
	}
	return &m, nil
}

// Close stops the table and the watcher.
func (m *Application) Close() {
	m.cancel()
	m.table.Close()
	m.mailbox.close()
}
