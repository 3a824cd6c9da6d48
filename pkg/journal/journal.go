// Package journal is a table data source backed by a directory of markdown
// entries. Sections are months, newest first, and rows are the entries of a
// month, newest first.
package journal

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/byxorna/asynctable/pkg/batch"
	"github.com/byxorna/asynctable/pkg/config"
	"github.com/byxorna/asynctable/pkg/db"
	"github.com/byxorna/asynctable/pkg/table"
	"github.com/byxorna/asynctable/pkg/text"
	"github.com/byxorna/asynctable/pkg/types"
	"github.com/go-playground/validator"
	"github.com/mitchellh/go-homedir"
)

var Debug = false

// Editor receives the edits that describe each change to the journal.
// *table.Table is one.
type Editor interface {
	InsertSections(types.IndexSet, types.Animation) uint64
	DeleteSections(types.IndexSet, types.Animation) uint64
	ReloadSections(types.IndexSet, types.Animation) uint64
	InsertRows([]types.Coordinate, types.Animation) uint64
	DeleteRows([]types.Coordinate, types.Animation) uint64
	ReloadRows([]types.Coordinate, types.Animation) uint64
	MoveRow(from, to types.Coordinate) uint64
	ReloadData()
}

type month struct {
	start   time.Time
	entries []*Entry
}

func (m *month) contains(t time.Time) bool {
	return !t.Before(m.start) && t.Before(m.start.AddDate(0, 1, 0))
}

func monthOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

type Journal struct {
	// edit is held from changing the data until its edit is submitted, so
	// edits reach the table in the order the data changed
	edit sync.Mutex
	mu   sync.Mutex

	Directory string `validate:"required,dir"`

	author       string
	calendar     *Calendar
	template     *template.Template
	now          func() time.Time
	maxMonths    int
	buildLatency time.Duration
	fetchLatency time.Duration
	previewLines int
	glamourStyle string

	status types.SyncStatus
	months []*month
	// every entry on disk by ID, loaded or not
	files  map[string]*Entry
	mtimes map[string]time.Time
	table  Editor
}

// Open loads the journal in c.Directory, creating the directory if needed,
// with the c.InitialMonths most recent months. now may be nil.
func Open(c config.Config, author string, now func() time.Time) (*Journal, error) {
	if now == nil {
		now = time.Now
	}
	expandedPath, err := homedir.Expand(c.Directory)
	if err != nil {
		return nil, err
	}
	finfo, err := os.Stat(expandedPath)
	if err != nil || !finfo.IsDir() {
		if err := os.MkdirAll(expandedPath, 0700); err != nil {
			return nil, fmt.Errorf("error creating %s: %w", c.Directory, err)
		}
	}
	tmpl, err := template.New("entry").Parse(c.EntryTemplate)
	if err != nil {
		return nil, fmt.Errorf("unable to parse entry template: %w", err)
	}

	j := Journal{
		Directory:    expandedPath,
		author:       author,
		calendar:     NewCalendar(c),
		template:     tmpl,
		now:          now,
		maxMonths:    c.MaxMonths,
		buildLatency: c.BuildLatency,
		fetchLatency: c.FetchLatency,
		previewLines: c.PreviewLines,
		glamourStyle: c.GlamourStyle,
		status:       types.StatusUninitialized,
	}
	if err := validator.New().Struct(&j); err != nil {
		return nil, fmt.Errorf("error validating journal: %w", err)
	}
	if err := j.scan(); err != nil {
		return nil, err
	}

	start := monthOf(now())
	for i := 0; i < c.InitialMonths; i++ {
		j.months = append(j.months, j.loadMonth(start.AddDate(0, -i, 0)))
	}
	j.status = types.StatusOK
	return &j, nil
}

// Attach starts sending edits to t. Until then changes only touch the data.
func (j *Journal) Attach(t Editor) {
	j.edit.Lock()
	defer j.edit.Unlock()
	j.table = t
}

// scan rereads every file in the directory. Files that fail to load are
// skipped.
func (j *Journal) scan() error {
	names, err := filepath.Glob(filepath.Join(j.Directory, StorageGlob))
	if err != nil {
		return err
	}
	files := map[string]*Entry{}
	mtimes := map[string]time.Time{}
	for _, fn := range names {
		e, err := LoadFromFile(fn)
		if err != nil {
			log.Printf("journal: skipping %v", err)
			continue
		}
		if finfo, err := os.Stat(fn); err == nil {
			mtimes[fn] = finfo.ModTime()
		}
		j.decorate(e)
		files[e.ID] = e
	}
	j.mu.Lock()
	j.files = files
	j.mtimes = mtimes
	j.mu.Unlock()
	return nil
}

func (j *Journal) decorate(e *Entry) {
	switch {
	case e.ID == e.CreatedAt.Format(DailyIDFormat):
		e.icon = j.calendar.Icon(e.CreatedAt)
	case e.ModifiedAt != nil:
		e.icon = text.EmojiEdited
	default:
		e.icon = text.EmojiEntry
	}
}

// daily makes the entry a day has before anything was written for it.
func (j *Journal) daily(day time.Time) *Entry {
	e := &Entry{
		ID:        day.Format(DailyIDFormat),
		Author:    j.author,
		Name:      j.calendar.Title(day),
		CreatedAt: day,
		Tags:      j.calendar.Tags(day),
	}
	j.decorate(e)
	return e
}

// loadMonth collects the stored entries of the month starting at start,
// plus a daily entry for every day up to today that has none.
func (j *Journal) loadMonth(start time.Time) *month {
	m := &month{start: start}
	today := j.now()

	j.mu.Lock()
	defer j.mu.Unlock()
	for _, e := range j.files {
		if m.contains(e.CreatedAt.In(start.Location())) {
			m.entries = append(m.entries, e)
		}
	}
	for day := start; m.contains(day) && !day.After(today); day = day.AddDate(0, 0, 1) {
		if _, ok := j.files[day.Format(DailyIDFormat)]; !ok {
			m.entries = append(m.entries, j.daily(day))
		}
	}
	sort.Slice(m.entries, func(a, b int) bool { return newerFirst(m.entries[a], m.entries[b]) })
	return m
}

func (j *Journal) NumberOfSections() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.months)
}

func (j *Journal) NumberOfRows(section int) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	if section < 0 || section >= len(j.months) {
		return 0
	}
	return len(j.months[section].entries)
}

// SectionTitle names a month, "July 2021".
func (j *Journal) SectionTitle(section int) string {
	j.mu.Lock()
	defer j.mu.Unlock()
	if section < 0 || section >= len(j.months) {
		return ""
	}
	return j.months[section].start.Format("January 2006")
}

// EntryAt returns a copy of the entry at c.
func (j *Journal) EntryAt(c types.Coordinate) (Entry, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	e := j.entryLocked(c)
	if e == nil {
		return Entry{}, false
	}
	return *e, true
}

// settledEntryAt reads an entry between edits, never after a change has
// been made but before it was submitted to the table.
func (j *Journal) settledEntryAt(c types.Coordinate) (Entry, bool) {
	j.edit.Lock()
	defer j.edit.Unlock()
	return j.EntryAt(c)
}

func (j *Journal) entryLocked(c types.Coordinate) *Entry {
	if c.Section < 0 || c.Section >= len(j.months) {
		return nil
	}
	entries := j.months[c.Section].entries
	if c.Row < 0 || c.Row >= len(entries) {
		return nil
	}
	return entries[c.Row]
}

func (j *Journal) locateLocked(id string) (types.Coordinate, *Entry, bool) {
	for s, m := range j.months {
		for r, e := range m.entries {
			if e.ID == id {
				return types.At(s, r), e, true
			}
		}
	}
	return types.Coordinate{}, nil, false
}

// Find lists the entries whose title or tags match query, best match first.
func (j *Journal) Find(query string) []types.Coordinate {
	j.mu.Lock()
	defer j.mu.Unlock()
	var (
		coords   []types.Coordinate
		haystack []string
	)
	for s, m := range j.months {
		for r, e := range m.entries {
			coords = append(coords, types.At(s, r))
			haystack = append(haystack, e.Name+" "+strings.Join(e.Tags, " "))
		}
	}
	var found []types.Coordinate
	for _, m := range text.Search(query, haystack) {
		found = append(found, coords[m.Index])
	}
	return found
}

func (j *Journal) body(e *Entry) string {
	var b bytes.Buffer
	data := struct {
		Title string
		Tags  []string
		Date  time.Time
	}{e.Name, e.Tags, e.CreatedAt}
	if err := j.template.Execute(&b, data); err != nil {
		log.Printf("journal: rendering template for %s: %v", e.ID, err)
		return ""
	}
	return b.String()
}

func (j *Journal) store(e *Entry) error {
	j.setStatus(types.StatusSynchronizing)
	path := filepath.Join(j.Directory, e.filename())
	mtime, err := e.write(path)
	if err != nil {
		j.setStatus(types.StatusError)
		return fmt.Errorf("unable to store entry %s: %w", e.ID, err)
	}
	j.remember(e, mtime)
	j.setStatus(types.StatusOK)
	return nil
}

func (j *Journal) setStatus(s types.SyncStatus) {
	j.mu.Lock()
	j.status = s
	j.mu.Unlock()
}

// Status is how the last write to the directory went.
func (j *Journal) Status() types.SyncStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// insertLocked places e in its month. A month newer than any loaded one is
// added as the first section. Entries of months that are not loaded are not
// placed.
func (j *Journal) insertLocked(e *Entry) (c types.Coordinate, placed, newSection bool) {
	for s, m := range j.months {
		if !m.contains(e.CreatedAt.In(m.start.Location())) {
			continue
		}
		r := sort.Search(len(m.entries), func(i int) bool { return newerFirst(e, m.entries[i]) })
		m.entries = append(m.entries, nil)
		copy(m.entries[r+1:], m.entries[r:])
		m.entries[r] = e
		return types.At(s, r), true, false
	}
	start := monthOf(e.CreatedAt.In(j.now().Location()))
	if len(j.months) == 0 || start.After(j.months[0].start) {
		j.months = append([]*month{{start: start, entries: []*Entry{e}}}, j.months...)
		return types.At(0, 0), true, true
	}
	return types.Coordinate{}, false, false
}

// place submits the edit for an entry insertLocked placed. Callers hold
// j.edit.
func (j *Journal) place(c types.Coordinate, placed, newSection bool) {
	switch {
	case j.table == nil || !placed:
	case newSection:
		j.table.InsertSections(types.NewIndexSet(0), types.AnimationTop)
	default:
		j.table.InsertRows([]types.Coordinate{c}, types.AnimationAutomatic)
	}
}

// AddEntry writes a new entry created now. An empty title gets the day's
// title.
func (j *Journal) AddEntry(title string) (types.Coordinate, error) {
	j.edit.Lock()
	defer j.edit.Unlock()

	now := j.now()
	e := &Entry{
		ID:        now.Format(NoteIDFormat),
		Author:    j.author,
		Name:      title,
		CreatedAt: now,
		Tags:      j.calendar.Tags(now),
	}
	if e.Name == "" {
		e.Name = j.calendar.Title(now)
	}
	j.mu.Lock()
	_, exists := j.files[e.ID]
	j.mu.Unlock()
	if exists {
		return types.Coordinate{}, fmt.Errorf("entry %s already exists", e.ID)
	}
	e.Body = j.body(e)
	j.decorate(e)
	if err := j.store(e); err != nil {
		return types.Coordinate{}, err
	}

	j.mu.Lock()
	c, placed, newSection := j.insertLocked(e)
	j.mu.Unlock()
	j.place(c, placed, newSection)
	return c, nil
}

// RemoveEntry deletes the entry and its file.
func (j *Journal) RemoveEntry(id string) error {
	j.edit.Lock()
	defer j.edit.Unlock()

	j.mu.Lock()
	c, e, ok := j.locateLocked(id)
	j.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s: %w", id, db.ErrNoEntryFound)
	}
	if e.Stored() {
		if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("unable to remove %s: %w", e.path, err)
		}
	}
	j.removeLocated(c, e)
	return nil
}

func (j *Journal) removeLocated(c types.Coordinate, e *Entry) {
	j.mu.Lock()
	m := j.months[c.Section]
	m.entries = append(m.entries[:c.Row], m.entries[c.Row+1:]...)
	delete(j.files, e.ID)
	delete(j.mtimes, e.path)
	j.mu.Unlock()
	if j.table != nil {
		j.table.DeleteRows([]types.Coordinate{c}, types.AnimationFade)
	}
}

// TouchEntry marks the entry modified now, writing it out if it only
// existed in memory.
func (j *Journal) TouchEntry(id string) error {
	j.edit.Lock()
	defer j.edit.Unlock()

	j.mu.Lock()
	c, e, ok := j.locateLocked(id)
	j.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s: %w", id, db.ErrNoEntryFound)
	}

	touched := *e
	now := j.now()
	touched.ModifiedAt = &now
	if !touched.Stored() {
		touched.Body = j.body(&touched)
	}
	j.decorate(&touched)
	if err := j.store(&touched); err != nil {
		return err
	}
	j.replace(c, &touched)
	return nil
}

func (j *Journal) replace(c types.Coordinate, e *Entry) {
	j.mu.Lock()
	j.months[c.Section].entries[c.Row] = e
	j.mu.Unlock()
	if j.table != nil {
		j.table.ReloadRows([]types.Coordinate{c}, types.AnimationFade)
	}
}

// MoveEntry moves the entry by delta rows within its month. The new order
// lasts until the month is reloaded.
func (j *Journal) MoveEntry(id string, delta int) (types.Coordinate, error) {
	j.edit.Lock()
	defer j.edit.Unlock()

	j.mu.Lock()
	from, e, ok := j.locateLocked(id)
	if !ok {
		j.mu.Unlock()
		return types.Coordinate{}, fmt.Errorf("%s: %w", id, db.ErrNoEntryFound)
	}
	m := j.months[from.Section]
	to := types.At(from.Section, from.Row+delta)
	switch {
	case to.Row < 0:
		j.mu.Unlock()
		return from, db.ErrNoPrevEntry
	case to.Row >= len(m.entries):
		j.mu.Unlock()
		return from, db.ErrNoNextEntry
	}
	m.entries = append(m.entries[:from.Row], m.entries[from.Row+1:]...)
	m.entries = append(m.entries, nil)
	copy(m.entries[to.Row+1:], m.entries[to.Row:])
	m.entries[to.Row] = e
	j.mu.Unlock()

	if j.table != nil && to != from {
		j.table.MoveRow(from, to)
	}
	return to, nil
}

// ReloadMonth rereads the directory and rebuilds one month.
func (j *Journal) ReloadMonth(section int) error {
	j.edit.Lock()
	defer j.edit.Unlock()

	j.mu.Lock()
	if section < 0 || section >= len(j.months) {
		j.mu.Unlock()
		return fmt.Errorf("month %d: %w", section, db.ErrNoEntryFound)
	}
	start := j.months[section].start
	j.mu.Unlock()

	if err := j.scan(); err != nil {
		return err
	}
	m := j.loadMonth(start)
	j.mu.Lock()
	j.months[section] = m
	j.mu.Unlock()
	if j.table != nil {
		j.table.ReloadSections(types.NewIndexSet(section), types.AnimationFade)
	}
	return nil
}

// DropMonth unloads a month. Its files stay on disk.
func (j *Journal) DropMonth(section int) error {
	j.edit.Lock()
	defer j.edit.Unlock()

	j.mu.Lock()
	if section < 0 || section >= len(j.months) {
		j.mu.Unlock()
		return fmt.Errorf("month %d: %w", section, db.ErrNoEntryFound)
	}
	j.months = append(j.months[:section], j.months[section+1:]...)
	j.mu.Unlock()
	if j.table != nil {
		j.table.DeleteSections(types.NewIndexSet(section), types.AnimationFade)
	}
	return nil
}

// Reload rereads the directory and rebuilds every loaded month.
func (j *Journal) Reload() error {
	j.edit.Lock()
	defer j.edit.Unlock()

	if err := j.scan(); err != nil {
		return err
	}
	j.mu.Lock()
	starts := make([]time.Time, len(j.months))
	for i, m := range j.months {
		starts[i] = m.start
	}
	j.mu.Unlock()

	months := make([]*month, len(starts))
	for i, start := range starts {
		months[i] = j.loadMonth(start)
	}
	j.mu.Lock()
	j.months = months
	j.mu.Unlock()
	if j.table != nil {
		j.table.ReloadData()
	}
	return nil
}

// ShouldBeginBatchFetch declines once maxMonths months are loaded.
func (j *Journal) ShouldBeginBatchFetch() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.months) < j.maxMonths
}

// FetchOlder loads the month before the oldest loaded one as a new last
// section, then completes ctx. It blocks for the configured fetch latency.
func (j *Journal) FetchOlder(ctx *batch.Context) {
	if j.fetchLatency > 0 {
		time.Sleep(j.fetchLatency)
	}

	j.edit.Lock()
	j.mu.Lock()
	if len(j.months) >= j.maxMonths {
		j.mu.Unlock()
		j.edit.Unlock()
		ctx.Complete(false)
		return
	}
	start := monthOf(j.now())
	if n := len(j.months); n > 0 {
		start = j.months[n-1].start.AddDate(0, -1, 0)
	}
	j.mu.Unlock()

	m := j.loadMonth(start)
	j.mu.Lock()
	j.months = append(j.months, m)
	section := len(j.months) - 1
	j.mu.Unlock()
	if j.table != nil {
		j.table.InsertSections(types.NewIndexSet(section), types.AnimationBottom)
	}
	j.edit.Unlock()

	if Debug {
		log.Printf("journal: fetched %s as section %d with %d entries", start.Format("2006-01"), section, len(m.entries))
	}
	ctx.Complete(true)
}

// Delegate wires batch fetching to FetchOlder.
func (j *Journal) Delegate() table.Delegate {
	d := table.Delegate{
		ShouldBeginBatchFetch: j.ShouldBeginBatchFetch,
		BeginBatchFetch: func(ctx *batch.Context) {
			go j.FetchOlder(ctx)
		},
	}
	if Debug {
		d.WillDisplay = func(c types.Coordinate) { log.Printf("journal: showing %s", c) }
		d.DidEndDisplay = func(c types.Coordinate) { log.Printf("journal: hid %s", c) }
	}
	return d
}
