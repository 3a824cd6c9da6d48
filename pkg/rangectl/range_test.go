package rangectl

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/byxorna/asynctable/pkg/space"
	"github.com/byxorna/asynctable/pkg/types"
	"github.com/kylelemons/godebug/pretty"
)

func TestCompute(t *testing.T) {
	testcases := map[string]struct {
		total  int
		screen Screen
		tuning Tuning
		want   Range
	}{
		"top of fifty rows":     {50, Screen{First: 0, Last: 9}, DefaultTuning, Range{0, 29}},
		"middle":                {100, Screen{First: 40, Last: 49}, DefaultTuning, Range{30, 69}},
		"clamped at the end":    {100, Screen{First: 90, Last: 99}, DefaultTuning, Range{80, 99}},
		"nothing visible":       {100, Screen{First: 0, Last: -1}, DefaultTuning, Range{0, 29}},
		"empty data":            {0, Screen{First: 0, Last: 9}, DefaultTuning, emptyRange},
		"no prefetch":           {100, Screen{First: 5, Last: 9}, Tuning{}, Range{5, 9}},
		"fractional screenfuls": {100, Screen{First: 50, Last: 59}, Tuning{Trailing: 0.25, Leading: 1.5}, Range{47, 74}},
		"measured heights": {
			100,
			Screen{First: 20, Last: 24, Height: 20, KnownHeights: []int{4, 4, 4, 4, 4}},
			Tuning{Trailing: 1, Leading: 1},
			Range{15, 29},
		},
	}
	for name, tc := range testcases {
		got := Compute(tc.total, tc.screen, tc.tuning)
		if got != tc.want {
			t.Fatalf("%s: expected %s but got %s", name, tc.want, got)
		}
	}
}

func TestRangeContainsVisibleRows(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		total := 1 + r.Intn(500)
		first := r.Intn(total)
		last := first + r.Intn(total-first)
		tu := Tuning{Trailing: r.Float64() * 3, Leading: r.Float64() * 3}
		rng := Compute(total, Screen{First: first, Last: last}, tu)
		if !rng.Contains(first) || !rng.Contains(last) {
			t.Fatalf("range %s does not contain visible rows [%d,%d] of %d", rng, first, last, total)
		}
		if rng.First < 0 || rng.Last >= total {
			t.Fatalf("range %s escapes [0,%d)", rng, total)
		}
	}
}

func TestTuningValidate(t *testing.T) {
	testcases := map[string]Tuning{
		"negative trailing": {Trailing: -1, Leading: 1},
		"negative leading":  {Trailing: 1, Leading: -0.1},
		"nan":               {Trailing: math.NaN(), Leading: 1},
		"infinite":          {Trailing: 1, Leading: math.Inf(1)},
	}
	for name, tu := range testcases {
		if err := tu.Validate(); !errors.Is(err, ErrInvalidConfiguration) {
			t.Fatalf("%s: expected ErrInvalidConfiguration but got %v", name, err)
		}
	}
	if err := (Tuning{}).Validate(); err != nil {
		t.Fatalf("zero tuning is valid, got %v", err)
	}
}

func TestTrackerDiff(t *testing.T) {
	tr, err := NewTracker(Tuning{Trailing: 0, Leading: 1})
	if err != nil {
		t.Fatal(err)
	}
	sp := space.New(1, []int{20})

	rng, diff := tr.Update(sp, Screen{First: 0, Last: 4})
	if rng != (Range{0, 9}) {
		t.Fatalf("unexpected range %s", rng)
	}
	var order []types.Coordinate
	for _, e := range diff.Entering {
		order = append(order, e.Coordinate)
	}
	want := []types.Coordinate{
		types.At(0, 0), types.At(0, 1), types.At(0, 2), types.At(0, 3), types.At(0, 4),
		types.At(0, 5), types.At(0, 6), types.At(0, 7), types.At(0, 8), types.At(0, 9),
	}
	if diff := pretty.Compare(want, order); diff != "" {
		t.Fatalf("unexpected entering order (-want +got):\n%s", diff)
	}

	_, diff = tr.Update(sp, Screen{First: 2, Last: 6})
	if len(diff.Entering) != 2 || len(diff.Leaving) != 2 {
		t.Fatalf("expected 2 rows to enter and 2 to leave, got %+v", diff)
	}

	// delete the first row: everything in range shifts up by one
	b := sp.Edit()
	b.RemoveRow(types.At(0, 0))
	next := b.Build(2)
	_, diff = tr.Update(next, Screen{First: 1, Last: 5})
	if len(diff.Relocated) == 0 {
		t.Fatalf("expected shifted rows to be reported as relocated")
	}
	for _, r := range diff.Relocated {
		if c, _ := next.Locate(r.Key); c != r.Coordinate {
			t.Fatalf("relocated key %d reported at %s but lives at %s", r.Key, r.Coordinate, c)
		}
	}

	_, diff = tr.Update(space.Empty(), Screen{First: 0, Last: -1})
	if len(diff.Entering) != 0 || len(diff.Leaving) == 0 {
		t.Fatalf("expected every tracked row to leave when the data empties, got %+v", diff)
	}
	if _, diff = tr.Update(space.Empty(), Screen{}); !diff.Empty() {
		t.Fatalf("an empty space yields no events, got %+v", diff)
	}
}

func TestEnteringPrefersLeadingSide(t *testing.T) {
	tr, _ := NewTracker(Tuning{Trailing: 1, Leading: 1})
	sp := space.New(1, []int{30})
	_, diff := tr.Update(sp, Screen{First: 10, Last: 11})

	var got []int
	for _, e := range diff.Entering {
		got = append(got, e.Coordinate.Row)
	}
	want := []int{10, 11, 12, 9, 13, 8}
	if diff := pretty.Compare(want, got); diff != "" {
		t.Fatalf("unexpected entering order (-want +got):\n%s", diff)
	}
}
