package text

import (
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/enescakir/emoji"
	"github.com/lucasb-eyer/go-colorful"
)

const (
	Ellipsis = "…"
)

var (
	EmojiDay      = emoji.Sun.String()
	EmojiWeekend  = emoji.Calendar.String()
	EmojiHoliday  = emoji.PartyPopper.String()
	EmojiEntry    = emoji.Notebook.String()
	EmojiEdited   = emoji.SpiralNotepad.String()
	EmojiBuilding = emoji.HourglassNotDone.String()
	EmojiFailed   = emoji.CrossMark.String()
	EmojiMonth    = emoji.NotebookWithDecorativeCover.String()
	EmojiFetching = emoji.ThinkingFace.String()
)

var (
	tagColorHashSalt uint32 = 6969420
	// NOTE: the color selection below assumes a square grid
	tagColors = colorGrid(4, 4)
)

// RelativeTime renders then relative to now, falling back to a date after a
// week.
func RelativeTime(then, now time.Time) string {
	ago := now.Sub(then)
	if ago >= 0 && ago < time.Minute {
		return "just now"
	} else if ago < humanize.Week && ago > -humanize.Week {
		return humanize.CustomRelTime(then, now, "ago", "from now", magnitudes)
	}
	return then.Format("02 Jan 2006")
}

var magnitudes = []humanize.RelTimeMagnitude{
	{D: time.Second, Format: "now", DivBy: time.Second},
	{D: 2 * time.Second, Format: "1 second %s", DivBy: 1},
	{D: time.Minute, Format: "%d seconds %s", DivBy: time.Second},
	{D: 2 * time.Minute, Format: "1 minute %s", DivBy: 1},
	{D: time.Hour, Format: "%d minutes %s", DivBy: time.Minute},
	{D: 2 * time.Hour, Format: "1 hour %s", DivBy: 1},
	{D: humanize.Day, Format: "%d hours %s", DivBy: time.Hour},
	{D: 2 * humanize.Day, Format: "1 day %s", DivBy: 1},
	{D: humanize.Week, Format: "%d days %s", DivBy: humanize.Day},
	{D: math.MaxInt64, Format: "a long while %s", DivBy: 1},
}

// TagColor picks the same grid color for a tag every time.
func TagColor(tag string) string {
	h := fnv.New32a()
	h.Write([]byte(tag))
	n := uint32(len(tagColors) * len(tagColors[0]))
	idx := int((h.Sum32() + tagColorHashSalt) % n)
	return tagColors[idx/len(tagColors[0])][idx%len(tagColors[0])]
}

// ColoredTags renders tags sorted, each in its own color. The input slice is
// left alone.
func ColoredTags(tags []string, joiner string) string {
	sorted := append([]string(nil), tags...)
	sort.Strings(sorted)
	colorized := make([]string, 0, len(sorted))
	for _, t := range sorted {
		colorized = append(colorized,
			lipgloss.NewStyle().Foreground(lipgloss.Color(TagColor(t))).Render(t))
	}
	return strings.Join(colorized, joiner)
}

func colorGrid(xSteps, ySteps int) [][]string {
	x0y0, _ := colorful.Hex("#F25D94")
	x1y0, _ := colorful.Hex("#EDFF82")
	x0y1, _ := colorful.Hex("#643AFF")
	x1y1, _ := colorful.Hex("#14F9D5")

	x0 := make([]colorful.Color, ySteps)
	for i := range x0 {
		x0[i] = x0y0.BlendLuv(x0y1, float64(i)/float64(ySteps))
	}
	x1 := make([]colorful.Color, ySteps)
	for i := range x1 {
		x1[i] = x1y0.BlendLuv(x1y1, float64(i)/float64(ySteps))
	}

	grid := make([][]string, ySteps)
	for y := 0; y < ySteps; y++ {
		grid[y] = make([]string, xSteps)
		for x := 0; x < xSteps; x++ {
			grid[y][x] = x0[y].BlendLuv(x1[y], float64(x)/float64(xSteps)).Hex()
		}
	}
	return grid
}
