package text

import (
	"testing"
	"time"

	"github.com/kylelemons/godebug/pretty"
	"github.com/mattn/go-runewidth"
)

func TestNormalize(t *testing.T) {
	testcases := map[string]string{
		"föö":      "foo",
		"crème":    "creme",
		"plain":    "plain",
		"Ångström": "Angstrom",
	}
	for in, want := range testcases {
		got, err := Normalize(in)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Fatalf("expected %q to normalize to %q but got %q", in, want, got)
		}
	}
}

func TestSearch(t *testing.T) {
	haystack := []string{
		"2021-07-04 Sunday (Independence Day)",
		"standup notes",
		"Café planning",
	}
	testcases := map[string][]int{
		"cafe":  {2},
		"indep": {0},
		"":      nil,
		"zzz":   {},
	}
	for needle, want := range testcases {
		var got []int
		if m := Search(needle, haystack); m != nil {
			got = []int{}
			for _, match := range m {
				got = append(got, match.Index)
			}
		}
		if diff := pretty.Compare(want, got); diff != "" {
			t.Fatalf("%q: unexpected matches (-want +got):\n%s", needle, diff)
		}
	}
}

func TestRelativeTime(t *testing.T) {
	now := time.Date(2021, 7, 10, 12, 0, 0, 0, time.UTC)
	testcases := map[string]struct {
		then time.Time
		want string
	}{
		"moments ago": {now.Add(-10 * time.Second), "just now"},
		"hours ago":   {now.Add(-3 * time.Hour), "3 hours ago"},
		"days ago":    {now.Add(-72 * time.Hour), "3 days ago"},
		"weeks ago":   {now.Add(-30 * 24 * time.Hour), "10 Jun 2021"},
	}
	for name, tc := range testcases {
		if got := RelativeTime(tc.then, now); got != tc.want {
			t.Fatalf("%s: expected %q but got %q", name, tc.want, got)
		}
	}
}

func TestTagColorIsStable(t *testing.T) {
	if TagColor("work") != TagColor("work") {
		t.Fatalf("expected the same tag to get the same color")
	}
	tags := []string{"b", "a"}
	ColoredTags(tags, " ")
	if tags[0] != "b" {
		t.Fatalf("ColoredTags must not reorder its input")
	}
}

func TestFit(t *testing.T) {
	testcases := map[string]struct {
		in    string
		width int
	}{
		"short": {"abc", 6},
		"long":  {"abcdefghij", 5},
		"wide":  {"日本語のテキスト", 7},
		"zero":  {"abc", 0},
	}
	for name, tc := range testcases {
		got := Fit(tc.in, tc.width)
		if w := runewidth.StringWidth(got); w != tc.width {
			t.Fatalf("%s: expected width %d but got %d (%q)", name, tc.width, w, got)
		}
	}
}
