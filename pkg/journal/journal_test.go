package journal

import (
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/byxorna/asynctable/pkg/batch"
	"github.com/byxorna/asynctable/pkg/config"
	"github.com/byxorna/asynctable/pkg/db"
	"github.com/byxorna/asynctable/pkg/table"
	"github.com/byxorna/asynctable/pkg/types"
	"github.com/kylelemons/godebug/pretty"
)

var now = time.Date(2021, 7, 10, 12, 0, 0, 0, time.UTC)

// recorder is an Editor that notes each edit along with the shape of the
// journal at the moment it was submitted.
type recorder struct {
	mu     sync.Mutex
	j      *Journal
	edits  []string
	counts [][]int
}

func (r *recorder) note(format string, args ...interface{}) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.edits = append(r.edits, fmt.Sprintf(format, args...))
	r.counts = append(r.counts, db.Counts(r.j))
	return uint64(len(r.edits))
}

func (r *recorder) InsertSections(s types.IndexSet, _ types.Animation) uint64 {
	return r.note("insertSections %v", []int(s))
}
func (r *recorder) DeleteSections(s types.IndexSet, _ types.Animation) uint64 {
	return r.note("deleteSections %v", []int(s))
}
func (r *recorder) ReloadSections(s types.IndexSet, _ types.Animation) uint64 {
	return r.note("reloadSections %v", []int(s))
}
func (r *recorder) InsertRows(c []types.Coordinate, _ types.Animation) uint64 {
	return r.note("insertRows %v", c)
}
func (r *recorder) DeleteRows(c []types.Coordinate, _ types.Animation) uint64 {
	return r.note("deleteRows %v", c)
}
func (r *recorder) ReloadRows(c []types.Coordinate, _ types.Animation) uint64 {
	return r.note("reloadRows %v", c)
}
func (r *recorder) MoveRow(from, to types.Coordinate) uint64 {
	return r.note("moveRow %s %s", from, to)
}
func (r *recorder) ReloadData() { r.note("reloadData") }

func (r *recorder) log() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.edits...)
}

func testConfig(dir string) config.Config {
	c := config.Default
	c.Directory = dir
	c.BuildLatency = 0
	c.FetchLatency = 0
	c.GlamourStyle = "notty"
	c.MaxMonths = 3
	return c
}

// open copies the fixtures into a scratch directory and opens a journal
// there, attached to a recorder.
func open(t *testing.T) (*Journal, *recorder) {
	dir := t.TempDir()
	names, err := filepath.Glob("testdata/*.md")
	if err != nil {
		t.Fatal(err)
	}
	for _, fn := range names {
		bytes, err := ioutil.ReadFile(fn)
		if err != nil {
			t.Fatal(err)
		}
		if err := ioutil.WriteFile(filepath.Join(dir, filepath.Base(fn)), bytes, 0644); err != nil {
			t.Fatal(err)
		}
	}
	j, err := Open(testConfig(dir), "tester", func() time.Time { return now })
	if err != nil {
		t.Fatalf("unable to open journal: %v", err)
	}
	r := &recorder{j: j}
	j.Attach(r)
	return j, r
}

func titles(j *Journal, section int) []string {
	var got []string
	for row := 0; row < j.NumberOfRows(section); row++ {
		e, _ := j.EntryAt(types.At(section, row))
		got = append(got, e.Title())
	}
	return got
}

func TestOpenLoadsMonths(t *testing.T) {
	j, _ := open(t)
	if diff := pretty.Compare([]int{11, 30}, db.Counts(j)); diff != "" {
		t.Fatalf("unexpected counts (-want +got):\n%s", diff)
	}
	if got := j.SectionTitle(0); got != "July 2021" {
		t.Fatalf("unexpected section title %q", got)
	}
	want := []string{
		"2021-07-10 Saturday",
		"2021-07-09 Friday",
		"2021-07-08 Thursday",
		"2021-07-07 Wednesday",
		"standup notes",
		"2021-07-06 Tuesday",
		"2021-07-05 Monday (Independence Day)",
		"2021-07-04 Sunday (Independence Day)",
		"2021-07-03 Saturday",
		"2021-07-02 Friday",
		"2021-07-01 Thursday",
	}
	if diff := pretty.Compare(want, titles(j, 0)); diff != "" {
		t.Fatalf("unexpected rows (-want +got):\n%s", diff)
	}
	e, _ := j.EntryAt(types.At(1, 15))
	if e.ID != "2021-06-15" || !e.Stored() {
		t.Fatalf("expected the stored June 15th entry at 1.15, got %s (stored %v)", e.ID, e.Stored())
	}
}

func TestLoadFromReader(t *testing.T) {
	testcases := map[string]struct {
		in      string
		wantErr error
	}{
		"entry":           {"---\nid: a\ntitle: b\ncreated: 2021-07-01T00:00:00Z\n---\nbody\n", nil},
		"no front matter": {"# hello\n", ErrUnableToFindMetadataSection},
		"leading text":    {"hi\n---\nid: a\n---\n", ErrUnableToFindMetadataSection},
	}
	for name, tc := range testcases {
		e, err := LoadFromReader(strings.NewReader(tc.in))
		if tc.wantErr != nil {
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("%s: expected %v but got %v", name, tc.wantErr, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if e.Body != "body\n" {
			t.Fatalf("%s: unexpected body %q", name, e.Body)
		}
	}

	if _, err := LoadFromReader(strings.NewReader("---\ntitle: b\n---\n")); err == nil {
		t.Fatalf("expected an entry without id and created to fail validation")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	e, err := LoadFromFile("testdata/2021-07-04.md")
	if err != nil {
		t.Fatal(err)
	}
	bytes, err := e.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	back, err := LoadFromReader(strings.NewReader(string(bytes)))
	if err != nil {
		t.Fatal(err)
	}
	back.path = e.path
	if !back.MatchesFilter("independence") || back.MatchesFilter("standup") {
		t.Fatalf("unexpected filter results for %q", back.Title())
	}
	if diff := pretty.Compare(e, back); diff != "" {
		t.Fatalf("entry changed on the way through (-before +after):\n%s", diff)
	}
}

func TestAddEntry(t *testing.T) {
	j, r := open(t)
	c, err := j.AddEntry("")
	if err != nil {
		t.Fatal(err)
	}
	// newer than anything in July
	if c != types.At(0, 0) {
		t.Fatalf("expected the new entry at 0.0, got %s", c)
	}
	e, _ := j.EntryAt(c)
	if e.Title() != "2021-07-10 Saturday" || !e.Stored() {
		t.Fatalf("unexpected entry %+v", e)
	}
	if !strings.Contains(e.Body, "# 2021-07-10 Saturday") {
		t.Fatalf("expected the body to come from the template, got %q", e.Body)
	}
	if _, err := os.Stat(filepath.Join(j.Directory, "2021-07-10-120000.md")); err != nil {
		t.Fatalf("expected the entry to be written: %v", err)
	}
	if j.Status() != types.StatusOK {
		t.Fatalf("unexpected status %s", j.Status())
	}
	if diff := pretty.Compare([]string{"insertRows [0.0]"}, r.log()); diff != "" {
		t.Fatalf("unexpected edits (-want +got):\n%s", diff)
	}
	// the data already had the row when the edit went out
	if diff := pretty.Compare([]int{12, 30}, r.counts[0]); diff != "" {
		t.Fatalf("unexpected counts at submission (-want +got):\n%s", diff)
	}
	if _, err := j.AddEntry("again"); err == nil {
		t.Fatalf("expected a second entry in the same second to be refused")
	}
}

func TestAddEntryInNewMonth(t *testing.T) {
	j, r := open(t)
	j.now = func() time.Time { return time.Date(2021, 8, 2, 8, 0, 0, 0, time.UTC) }
	c, err := j.AddEntry("august")
	if err != nil {
		t.Fatal(err)
	}
	if c != types.At(0, 0) || j.SectionTitle(0) != "August 2021" {
		t.Fatalf("expected a new first section, got %s in %q", c, j.SectionTitle(0))
	}
	if diff := pretty.Compare([]string{"insertSections [0]"}, r.log()); diff != "" {
		t.Fatalf("unexpected edits (-want +got):\n%s", diff)
	}
}

func TestRemoveAndTouch(t *testing.T) {
	j, r := open(t)

	if err := j.TouchEntry("2021-07-09"); err != nil {
		t.Fatal(err)
	}
	e, _ := j.EntryAt(types.At(0, 1))
	if !e.Stored() || e.Modified() == nil {
		t.Fatalf("expected touching a daily entry to write it, got %+v", e)
	}

	if err := j.RemoveEntry("2021-07-06-093000"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(j.Directory, "2021-07-06-093000.md")); !os.IsNotExist(err) {
		t.Fatalf("expected the file to be removed, got %v", err)
	}
	if err := j.RemoveEntry("2021-07-06-093000"); !errors.Is(err, db.ErrNoEntryFound) {
		t.Fatalf("expected ErrNoEntryFound but got %v", err)
	}

	want := []string{"reloadRows [0.1]", "deleteRows [0.4]"}
	if diff := pretty.Compare(want, r.log()); diff != "" {
		t.Fatalf("unexpected edits (-want +got):\n%s", diff)
	}
}

func TestMoveEntry(t *testing.T) {
	j, r := open(t)
	to, err := j.MoveEntry("2021-07-10", 2)
	if err != nil {
		t.Fatal(err)
	}
	if to != types.At(0, 2) {
		t.Fatalf("expected the entry at 0.2, got %s", to)
	}
	if _, err := j.MoveEntry("2021-07-01", 1); !errors.Is(err, db.ErrNoNextEntry) {
		t.Fatalf("expected ErrNoNextEntry but got %v", err)
	}
	if _, err := j.MoveEntry("2021-07-09", -1); !errors.Is(err, db.ErrNoPrevEntry) {
		t.Fatalf("expected ErrNoPrevEntry but got %v", err)
	}
	if diff := pretty.Compare([]string{"moveRow 0.0 0.2"}, r.log()); diff != "" {
		t.Fatalf("unexpected edits (-want +got):\n%s", diff)
	}
	top := titles(j, 0)[:3]
	if diff := pretty.Compare([]string{"2021-07-09 Friday", "2021-07-08 Thursday", "2021-07-10 Saturday"}, top); diff != "" {
		t.Fatalf("unexpected order (-want +got):\n%s", diff)
	}
}

func TestMonthEdits(t *testing.T) {
	j, r := open(t)

	// another program adds a file for a loaded month
	extra := "---\nid: \"2021-06-20-101010\"\ntitle: dropped in\ncreated: 2021-06-20T10:10:10Z\n---\n"
	if err := ioutil.WriteFile(filepath.Join(j.Directory, "2021-06-20-101010.md"), []byte(extra), 0644); err != nil {
		t.Fatal(err)
	}
	if err := j.ReloadMonth(1); err != nil {
		t.Fatal(err)
	}
	if n := j.NumberOfRows(1); n != 31 {
		t.Fatalf("expected 31 rows in June after reloading, got %d", n)
	}
	if err := j.DropMonth(0); err != nil {
		t.Fatal(err)
	}
	if err := j.DropMonth(5); !errors.Is(err, db.ErrNoEntryFound) {
		t.Fatalf("expected ErrNoEntryFound but got %v", err)
	}
	want := []string{"reloadSections [1]", "deleteSections [0]"}
	if diff := pretty.Compare(want, r.log()); diff != "" {
		t.Fatalf("unexpected edits (-want +got):\n%s", diff)
	}
	if diff := pretty.Compare([][]int{{11, 31}, {31}}, r.counts); diff != "" {
		t.Fatalf("unexpected counts at submission (-want +got):\n%s", diff)
	}
}

func TestFetchOlderStopsAtMaxMonths(t *testing.T) {
	j, r := open(t)
	var contexts []*batch.Context
	sig := batch.NewSignal(j.ShouldBeginBatchFetch, func(ctx *batch.Context) {
		contexts = append(contexts, ctx)
		j.FetchOlder(ctx)
	}, nil)

	sig.Evaluate(0, 10, 1)
	if len(contexts) != 1 || !contexts[0].Succeeded() {
		t.Fatalf("expected one successful fetch, got %d", len(contexts))
	}
	if j.SectionTitle(2) != "May 2021" || j.NumberOfRows(2) != 31 {
		t.Fatalf("expected May as the third section, got %q with %d rows", j.SectionTitle(2), j.NumberOfRows(2))
	}
	// the completed signal rearms, but three months is the limit
	sig.Evaluate(0, 10, 1)
	if len(contexts) != 1 {
		t.Fatalf("expected no fetch past the limit, got %d", len(contexts))
	}
	if diff := pretty.Compare([]string{"insertSections [2]"}, r.log()); diff != "" {
		t.Fatalf("unexpected edits (-want +got):\n%s", diff)
	}
}

func TestWatchPicksUpOutsideChanges(t *testing.T) {
	j, r := open(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := j.Watch(ctx); err != nil {
		t.Fatal(err)
	}

	// our own writes are not echoed back
	if err := j.TouchEntry("2021-07-08"); err != nil {
		t.Fatal(err)
	}

	body := "---\nid: \"2021-07-07-070000\"\ntitle: from elsewhere\ncreated: 2021-07-07T07:00:00Z\n---\nhello\n"
	if err := ioutil.WriteFile(filepath.Join(j.Directory, "2021-07-07-070000.md"), []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	eventually(t, func() bool {
		for _, e := range r.log() {
			if e == "insertRows [0.3]" {
				return true
			}
		}
		return false
	})

	if err := os.Remove(filepath.Join(j.Directory, "2021-07-04.md")); err != nil {
		t.Fatal(err)
	}
	eventually(t, func() bool {
		log := r.log()
		return log[len(log)-1] == "deleteRows [0.8]"
	})
	if n := strings.Count(strings.Join(r.log(), ","), "reloadRows [0.2]"); n != 1 {
		t.Fatalf("expected our own write to be ignored, got %v", r.log())
	}
}

func TestTableFollowsJournal(t *testing.T) {
	j, _ := open(t)
	sched := table.NewSerial()
	defer sched.Close()
	o := table.NewOptions(j, j.Builder())
	o.Scheduler = sched
	o.Delegate = j.Delegate()
	tbl, err := table.New(o)
	if err != nil {
		t.Fatal(err)
	}
	j.Attach(tbl)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tbl.Start(ctx)
	defer tbl.Close()

	sched.Post(func() { tbl.SetViewport(table.Viewport{First: 0, Rows: 10, Height: 10, Width: 80}) })
	if _, err := j.AddEntry("first"); err != nil {
		t.Fatal(err)
	}
	if err := j.RemoveEntry("2021-07-06-093000"); err != nil {
		t.Fatal(err)
	}
	if _, err := j.MoveEntry("2021-07-09", 3); err != nil {
		t.Fatal(err)
	}

	eventually(t, func() bool {
		return pretty.Compare(db.Counts(j), tbl.Space().Counts()) == ""
	})
	eventually(t, func() bool {
		r, ok := tbl.RowAt(0)
		if !ok || r.Artifact == nil {
			return false
		}
		return r.Artifact.(*Card).Title == "first"
	})
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
