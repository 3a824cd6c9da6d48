package journal

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/byxorna/asynctable/pkg/db"
	"github.com/byxorna/asynctable/pkg/table"
	"github.com/byxorna/asynctable/pkg/text"
	"github.com/byxorna/asynctable/pkg/types"
	"github.com/charmbracelet/glamour"
	"github.com/muesli/reflow/truncate"
)

// renderWidth is the width entry bodies are wrapped at. Narrower views
// truncate.
const renderWidth = 100

// Card is the content of an entry row: a header line and a few lines of the
// rendered body.
type Card struct {
	ID      string
	Month   string
	Icon    string
	Title   string
	Tags    []string
	Summary string
	Preview []string
}

func (c *Card) Height() int { return 1 + len(c.Preview) }

func (c *Card) View(width int) string {
	header := c.Icon + " " + c.Title
	if len(c.Tags) > 0 {
		header += "  " + text.ColoredTags(c.Tags, " ")
	}
	if c.Summary != "" {
		header += "  " + c.Summary
	}
	lines := make([]string, 0, c.Height())
	lines = append(lines, truncate.StringWithTail(header, uint(width), text.Ellipsis))
	for _, l := range c.Preview {
		lines = append(lines, truncate.StringWithTail(l, uint(width), text.Ellipsis))
	}
	return strings.Join(lines, "\n")
}

type builder struct {
	j       *Journal
	latency time.Duration
	lines   int
	style   string
	pool    sync.Pool
}

// Builder renders entries into Cards. Each build takes at least the
// configured build latency and gives up when ctx is done.
func (j *Journal) Builder() table.Builder {
	b := &builder{
		j:       j,
		latency: j.buildLatency,
		lines:   j.previewLines,
		style:   j.glamourStyle,
	}
	b.pool.New = func() interface{} {
		r, err := b.renderer()
		if err != nil {
			return err
		}
		return r
	}
	return b
}

func (b *builder) renderer() (*glamour.TermRenderer, error) {
	style := glamour.WithAutoStyle()
	if b.style != "" && b.style != "auto" {
		style = glamour.WithStylePath(b.style)
	}
	return glamour.NewTermRenderer(style, glamour.WithWordWrap(renderWidth))
}

func (b *builder) Build(ctx context.Context, c types.Coordinate) (table.Artifact, error) {
	e, ok := b.j.settledEntryAt(c)
	if !ok {
		return nil, fmt.Errorf("%s: %w", c, db.ErrNoEntryFound)
	}
	if b.latency > 0 {
		select {
		case <-time.After(b.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	card := &Card{
		ID:      e.ID,
		Month:   e.CreatedAt.Format("January 2006"),
		Icon:    e.Icon(),
		Title:   e.Title(),
		Tags:    e.SelectorTags(),
		Summary: e.summary(b.j.now()),
	}
	if b.lines == 0 || strings.TrimSpace(e.Body) == "" {
		return card, nil
	}

	pooled := b.pool.Get()
	r, ok := pooled.(*glamour.TermRenderer)
	if !ok {
		return nil, fmt.Errorf("unable to create renderer: %v", pooled)
	}
	defer b.pool.Put(r)
	out, err := r.Render(e.AsMarkdown())
	if err != nil {
		return nil, fmt.Errorf("unable to render %s: %w", e.ID, err)
	}
	card.Preview = preview(out, b.lines)
	return card, nil
}

// preview keeps the first n non-blank lines of rendered markdown.
func preview(rendered string, n int) []string {
	var lines []string
	for _, l := range strings.Split(rendered, "\n") {
		if len(lines) == n {
			break
		}
		if !blank(l) {
			lines = append(lines, strings.TrimRight(l, " "))
		}
	}
	return lines
}

// blank reports whether a line holds nothing but escape sequences and
// spaces.
func blank(line string) bool {
	esc := false
	for _, r := range line {
		switch {
		case r == '\x1b':
			esc = true
		case esc:
			if unicode.IsLetter(r) {
				esc = false
			}
		case !unicode.IsSpace(r):
			return false
		}
	}
	return true
}
