package text

import (
	"strings"
	"unicode"

	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/termenv"
	"github.com/sahilm/fuzzy"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize text to aid in the filtering process. In particular, we remove
// diacritics, "ö" becomes "o". Note that Mn is the unicode key for nonspacing
// marks.
func Normalize(in string) (string, error) {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, in)
	return out, err
}

// Match is a haystack entry that matched a search, best first.
type Match struct {
	Index   int
	Score   int
	Matched []int
}

// Search fuzzy matches needle against every entry of haystack after
// normalizing both. An empty needle matches nothing.
func Search(needle string, haystack []string) []Match {
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return nil
	}
	n, err := Normalize(strings.ToLower(needle))
	if err != nil {
		return nil
	}
	normalized := make([]string, len(haystack))
	for i, h := range haystack {
		if normalized[i], err = Normalize(strings.ToLower(h)); err != nil {
			normalized[i] = strings.ToLower(h)
		}
	}

	found := fuzzy.Find(n, normalized)
	matches := make([]Match, 0, len(found))
	for _, m := range found {
		matches = append(matches, Match{Index: m.Index, Score: m.Score, Matched: m.MatchedIndexes})
	}
	return matches
}

// StyleFilteredText underlines the runes of haystack that match needles.
func StyleFilteredText(haystack, needles string, defaultStyle termenv.Style) string {
	matches := Search(needles, []string{haystack})
	if len(matches) == 0 {
		return defaultStyle.Styled(haystack)
	}

	matched := map[int]bool{}
	for _, i := range matches[0].Matched {
		matched[i] = true
	}
	b := strings.Builder{}
	for i, r := range []rune(haystack) {
		if matched[i] {
			b.WriteString(defaultStyle.Underline().Styled(string(r)))
		} else {
			b.WriteString(defaultStyle.Styled(string(r)))
		}
	}
	return b.String()
}

func TruncateWithTail(txt string, width uint, ellipsis string) string {
	return truncate.StringWithTail(txt, width, ellipsis)
}

// Fit truncates s to width cells and pads it to exactly width. s must not
// carry escape sequences.
func Fit(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return runewidth.FillRight(runewidth.Truncate(s, width, Ellipsis), width)
}
