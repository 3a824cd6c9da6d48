package edit

import (
	"errors"
	"sync"
	"testing"

	"github.com/byxorna/asynctable/pkg/space"
	"github.com/byxorna/asynctable/pkg/types"
	"github.com/kylelemons/godebug/pretty"
)

func TestValidate(t *testing.T) {
	sp := space.New(1, []int{3, 0, 2})
	testcases := map[string]struct {
		edit  Edit
		valid bool
	}{
		"insert section at end":        {NewInsertSections(types.NewIndexSet(3), []int{1}, types.AnimationNone), true},
		"insert sections final index":  {NewInsertSections(types.NewIndexSet(3, 4), []int{1, 1}, types.AnimationNone), true},
		"insert section past end":      {NewInsertSections(types.NewIndexSet(4), []int{1}, types.AnimationNone), false},
		"insert section missing count": {NewInsertSections(types.NewIndexSet(0), nil, types.AnimationNone), false},
		"delete section":               {NewDeleteSections(types.NewIndexSet(0, 2), types.AnimationNone), true},
		"delete missing section":       {NewDeleteSections(types.NewIndexSet(3), types.AnimationNone), false},
		"reload section":               {NewReloadSections(types.NewIndexSet(1), []int{5}, types.AnimationNone), true},
		"delete repeated section":      {NewDeleteSections(types.IndexSet{2, 2}, types.AnimationNone), false},
		"delete unsorted sections":     {NewDeleteSections(types.IndexSet{2, 0}, types.AnimationNone), false},
		"insert repeated section":      {NewInsertSections(types.IndexSet{1, 1}, []int{1, 1}, types.AnimationNone), false},
		"reload unsorted sections":     {NewReloadSections(types.IndexSet{2, 1}, []int{1, 1}, types.AnimationNone), false},
		"move section":                 {NewMoveSection(0, 2), true},
		"move section out of range":    {NewMoveSection(0, 3), false},
		"insert row at end":            {NewInsertRows([]types.Coordinate{types.At(0, 3)}, types.AnimationNone), true},
		"insert row into empty":        {NewInsertRows([]types.Coordinate{types.At(1, 0)}, types.AnimationNone), true},
		"insert rows final indexes":    {NewInsertRows([]types.Coordinate{types.At(1, 0), types.At(1, 1)}, types.AnimationNone), true},
		"insert row past end":          {NewInsertRows([]types.Coordinate{types.At(1, 1)}, types.AnimationNone), false},
		"insert duplicate rows":        {NewInsertRows([]types.Coordinate{types.At(0, 0), types.At(0, 0)}, types.AnimationNone), false},
		"delete row":                   {NewDeleteRows([]types.Coordinate{types.At(2, 1)}, types.AnimationNone), true},
		"delete missing row":           {NewDeleteRows([]types.Coordinate{types.At(2, 2)}, types.AnimationNone), false},
		"delete negative row":          {NewDeleteRows([]types.Coordinate{types.At(0, -1)}, types.AnimationNone), false},
		"reload row":                   {NewReloadRows([]types.Coordinate{types.At(0, 2)}, types.AnimationNone), true},
		"reload row in empty section":  {NewReloadRows([]types.Coordinate{types.At(1, 0)}, types.AnimationNone), false},
		"move row within section":      {NewMoveRow(types.At(0, 0), types.At(0, 2)), true},
		"move row past end of section": {NewMoveRow(types.At(0, 0), types.At(0, 3)), false},
		"move row to other section":    {NewMoveRow(types.At(0, 0), types.At(2, 2)), true},
		"move row into empty section":  {NewMoveRow(types.At(2, 1), types.At(1, 0)), true},
		"move missing row":             {NewMoveRow(types.At(1, 0), types.At(0, 0)), false},
	}
	for name, tc := range testcases {
		err := Validate(sp, tc.edit)
		if tc.valid && err != nil {
			t.Fatalf("%s: expected valid but got %v", name, err)
		}
		if !tc.valid && !errors.Is(err, ErrInvalidCoordinate) {
			t.Fatalf("%s: expected ErrInvalidCoordinate but got %v", name, err)
		}
	}
}

func TestApplyIsSequential(t *testing.T) {
	sp := space.New(1, []int{3})
	edits := []Edit{
		NewInsertRows([]types.Coordinate{types.At(0, 3)}, types.AnimationNone),
		// only valid because the insert above ran first
		NewDeleteRows([]types.Coordinate{types.At(0, 3)}, types.AnimationNone),
		NewInsertSections(types.NewIndexSet(0), []int{2}, types.AnimationNone),
		NewMoveRow(types.At(1, 0), types.At(0, 2)),
	}
	next, d := Apply(sp, edits, 2)
	if len(d.Rejected) != 0 {
		t.Fatalf("unexpected rejections: %v", d.Rejected)
	}
	if diff := pretty.Compare([]int{3, 2}, next.Counts()); diff != "" {
		t.Fatalf("unexpected counts (-want +got):\n%s", diff)
	}
	if next.Generation() != 2 || d.From != 1 || d.To != 2 {
		t.Fatalf("unexpected generations: space %d delta %d->%d", next.Generation(), d.From, d.To)
	}
}

func TestApplyRejectsOnlyTheBadEdit(t *testing.T) {
	sp := space.New(1, []int{2})
	edits := []Edit{
		NewDeleteRows([]types.Coordinate{types.At(0, 0), types.At(0, 5)}, types.AnimationNone),
		NewInsertRows([]types.Coordinate{types.At(0, 2)}, types.AnimationNone),
	}
	next, d := Apply(sp, edits, 2)
	if len(d.Rejected) != 1 || !errors.Is(d.Rejected[0], ErrInvalidCoordinate) {
		t.Fatalf("expected one rejection, got %v", d.Rejected)
	}
	if len(d.Applied) != 1 || d.Applied[0].Kind != InsertRows {
		t.Fatalf("expected only the insert to apply, got %v", d.Applied)
	}
	// the bad delete must not have removed 0.0
	if next.RowsInSection(0) != 3 {
		t.Fatalf("expected 3 rows, got %d", next.RowsInSection(0))
	}
	k, _ := sp.KeyAt(types.At(0, 0))
	if c, ok := next.Locate(k); !ok || c != types.At(0, 0) {
		t.Fatalf("expected row 0.0 to survive, got %s %v", c, ok)
	}
}

func TestApplyRejectsRepeatedSections(t *testing.T) {
	sp := space.New(1, []int{1, 1, 1})
	next, d := Apply(sp, []Edit{NewDeleteSections(types.IndexSet{2, 2}, types.AnimationNone)}, 2)
	if len(d.Rejected) != 1 || !errors.Is(d.Rejected[0], ErrInvalidCoordinate) {
		t.Fatalf("expected the edit to be rejected, got %v", d.Rejected)
	}
	if next != sp {
		t.Fatalf("expected the space to be left alone, got counts %v", next.Counts())
	}
}

func TestApplyNothingKeepsGeneration(t *testing.T) {
	sp := space.New(4, []int{1})
	next, d := Apply(sp, []Edit{NewDeleteSections(types.NewIndexSet(2), types.AnimationNone)}, 5)
	if next != sp || !d.Empty() || d.To != 4 {
		t.Fatalf("expected the original space back, got generation %d", next.Generation())
	}
}

func TestDeltaMap(t *testing.T) {
	sp := space.New(1, []int{4, 4})
	edits := []Edit{
		NewDeleteRows([]types.Coordinate{types.At(0, 1)}, types.AnimationNone),
		NewInsertRows([]types.Coordinate{types.At(1, 0)}, types.AnimationNone),
		NewMoveSection(1, 0),
	}
	next, d := Apply(sp, edits, 2)

	// Map must agree with identity tracking for every surviving row
	for flat, key := range sp.Keys(0, sp.NumRows()-1) {
		c, _ := sp.CoordinateAt(flat)
		mapped, alive := d.Map(c)
		located, ok := next.Locate(key)
		if c.Section == 1 {
			// moved sections renew identities but the position still maps
			if !alive || mapped.Section != 0 || mapped.Row != c.Row+1 {
				t.Fatalf("expected %s to map into section 0 row %d, got %s", c, c.Row+1, mapped)
			}
			continue
		}
		if c == types.At(0, 1) {
			if alive {
				t.Fatalf("expected deleted row %s not to map", c)
			}
			continue
		}
		if !alive || !ok || mapped != located {
			t.Fatalf("expected %s to map to %s, got %s (alive %v)", c, located, mapped, alive)
		}
	}
}

func TestQueueOrdersConcurrentSubmissions(t *testing.T) {
	q := NewQueue()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				q.Submit(NewInsertRows([]types.Coordinate{types.At(0, 0)}, types.AnimationNone))
			}
		}()
	}
	wg.Wait()

	edits, _ := q.Drain()
	if len(edits) != 400 {
		t.Fatalf("expected 400 edits, got %d", len(edits))
	}
	for i, e := range edits {
		if e.Seq != uint64(i+1) {
			t.Fatalf("expected sequence %d at position %d, got %d", i+1, i, e.Seq)
		}
	}
	next, d := Apply(space.New(1, []int{0}), edits, 2)
	if len(d.Rejected) != 0 || next.NumRows() != 400 {
		t.Fatalf("expected 400 rows, got %d with %d rejections", next.NumRows(), len(d.Rejected))
	}
}

func TestSameOrderSameResult(t *testing.T) {
	edits := []Edit{
		NewInsertSections(types.NewIndexSet(1), []int{3}, types.AnimationNone),
		NewMoveRow(types.At(1, 2), types.At(0, 0)),
		NewDeleteSections(types.NewIndexSet(2), types.AnimationNone),
		NewReloadSections(types.NewIndexSet(0), []int{6}, types.AnimationNone),
	}

	// each goroutine waits for the previous one, so the order is fixed while
	// the submitting goroutine varies
	q := NewQueue()
	gates := make([]chan struct{}, len(edits)+1)
	for i := range gates {
		gates[i] = make(chan struct{})
	}
	for i := len(edits) - 1; i >= 0; i-- {
		go func(i int) {
			<-gates[i]
			q.Submit(edits[i])
			close(gates[i+1])
		}(i)
	}
	close(gates[0])
	<-gates[len(edits)]

	base := space.New(1, []int{2, 2})
	want, _ := Apply(base, edits, 2)
	drained, _ := q.Drain()
	got, _ := Apply(base, drained, 2)
	if diff := pretty.Compare([]int{6, 2}, want.Counts()); diff != "" {
		t.Fatalf("unexpected counts (-want +got):\n%s", diff)
	}
	if diff := pretty.Compare(want.Counts(), got.Counts()); diff != "" {
		t.Fatalf("submission through the queue changed the result (-want +got):\n%s", diff)
	}
}

func TestQueueGrouping(t *testing.T) {
	q := NewQueue()
	q.Begin()
	q.Submit(NewMoveSection(0, 1))
	if edits, _ := q.Drain(); edits != nil {
		t.Fatalf("expected grouped edits to be held back, got %v", edits)
	}
	q.End()
	select {
	case <-q.Ready():
	default:
		t.Fatalf("expected End to signal the consumer")
	}
	if edits, _ := q.Drain(); len(edits) != 1 {
		t.Fatalf("expected 1 edit after End, got %d", len(edits))
	}

	q.Submit(NewMoveSection(0, 1))
	epoch := q.Reset()
	if q.Len() != 0 || epoch != 1 {
		t.Fatalf("expected reset to clear the log and bump the epoch, got %d pending epoch %d", q.Len(), epoch)
	}
}
