// Package table coordinates an asynchronously rendered list of sectioned
// rows. Edits may be submitted from any goroutine; content is built in the
// background for a working range around the viewport and published to the
// host in one commit at a time on the host's own goroutine.
package table

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/byxorna/asynctable/pkg/batch"
	"github.com/byxorna/asynctable/pkg/db"
	"github.com/byxorna/asynctable/pkg/edit"
	"github.com/byxorna/asynctable/pkg/pipeline"
	"github.com/byxorna/asynctable/pkg/rangectl"
	"github.com/byxorna/asynctable/pkg/space"
	"github.com/byxorna/asynctable/pkg/types"
)

var (
	// Debug enables per-commit log lines.
	Debug = false

	ErrMissingDataSource = fmt.Errorf("a data source is required")
	ErrMissingBuilder    = fmt.Errorf("a content builder is required")
)

type (
	Artifact    = pipeline.Artifact
	Builder     = pipeline.Builder
	BuilderFunc = pipeline.BuilderFunc
)

// Presenter is the host's visible row list. Present is called on the
// scheduler's goroutine once per commit, after the committed space has been
// swapped in and before new content is announced through WillDisplay.
type Presenter interface {
	Present(u Update)
}

type PresenterFunc func(u Update)

func (f PresenterFunc) Present(u Update) { f(u) }

// Delegate holds the optional hooks of the embedding application. Nil
// functions are skipped.
type Delegate struct {
	// WillDisplay fires once a visible row shows committed content.
	WillDisplay func(c types.Coordinate)
	// DidEndDisplay fires with the row's old coordinate when it stops
	// showing content, before the change is presented.
	DidEndDisplay func(c types.Coordinate)
	// ShouldBeginBatchFetch may veto a fetch. Nil means yes.
	ShouldBeginBatchFetch func() bool
	// BeginBatchFetch asks for more data. It must call Complete on the
	// context exactly once.
	BeginBatchFetch func(ctx *batch.Context)
}

type Options struct {
	DataSource db.DataSource
	// Builder reads rows from the data source. It must not see a change
	// before the edit describing it has been submitted.
	Builder   Builder
	Presenter Presenter
	Scheduler Scheduler
	Delegate  Delegate

	Tuning                    rangectl.Tuning
	LeadingScreensForBatching float64
	Workers                   int
}

// NewOptions fills in the defaults for everything but the collaborators.
// Without a Scheduler the table runs its commits on a Serial of its own.
func NewOptions(ds db.DataSource, b Builder) Options {
	return Options{
		DataSource:                ds,
		Builder:                   b,
		Tuning:                    rangectl.DefaultTuning,
		LeadingScreensForBatching: batch.DefaultLeadingScreens,
		Workers:                   4,
	}
}

// Update describes one commit to the presenter.
type Update struct {
	From, To uint64
	// Reset is set when the data was reloaded; Edits is empty then.
	Reset bool
	Edits []edit.Edit
	Space *space.Space
	// First is where the row that was at the top of the viewport now sits.
	First int
	// Content is the number of rows that received content.
	Content int
}

type Stats struct {
	Generation, Committed uint64
	PendingEdits          int
	Range                 rangectl.Range
	Pipeline              pipeline.Stats
	Batch                 batch.State
	BatchFetches          uint64
	Content, Displayed    int
}

type Table struct {
	ds        db.DataSource
	presenter Presenter
	scheduler Scheduler
	owned     *Serial
	delegate  Delegate

	queue    *edit.Queue
	tracker  *rangectl.Tracker
	pipeline *pipeline.Pipeline
	signal   *batch.Signal
	surface  *surface

	// reconcile serializes the coordinator with ReloadData
	reconcile sync.Mutex

	mu             sync.Mutex
	gen            uint64
	latest         *space.Space
	resetGen       uint64
	history        []edit.Delta
	view           view
	pend           pending
	committedGen   uint64
	applied        uint64
	leadingBatches float64

	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

func New(o Options) (*Table, error) {
	if o.DataSource == nil {
		return nil, ErrMissingDataSource
	}
	if o.Builder == nil {
		return nil, ErrMissingBuilder
	}
	if err := validScreens(o.LeadingScreensForBatching); err != nil {
		return nil, err
	}
	tracker, err := rangectl.NewTracker(o.Tuning)
	if err != nil {
		return nil, err
	}
	var owned *Serial
	if o.Scheduler == nil {
		owned = NewSerial()
		o.Scheduler = owned
	}

	t := &Table{
		ds:             o.DataSource,
		presenter:      o.Presenter,
		scheduler:      o.Scheduler,
		owned:          owned,
		delegate:       o.Delegate,
		queue:          edit.NewQueue(),
		tracker:        tracker,
		pipeline:       pipeline.New(o.Builder, o.Workers),
		surface:        newSurface(),
		latest:         space.Empty(),
		leadingBatches: o.LeadingScreensForBatching,
		wake:           make(chan struct{}, 1),
	}
	t.pipeline.Track(t.queue.Seq)
	t.signal = batch.NewSignal(o.Delegate.ShouldBeginBatchFetch, o.Delegate.BeginBatchFetch, func() {
		t.scheduler.Post(t.evaluateBatch)
	})
	t.ReloadData()
	return t, nil
}

func validScreens(f float64) error {
	if !(f >= 0) || math.IsInf(f, 0) {
		return fmt.Errorf("leading screens for batching %v must be a finite value >= 0: %w", f, rangectl.ErrInvalidConfiguration)
	}
	return nil
}

// Start launches the content workers and the coordinator.
func (t *Table) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})
	t.pipeline.Start(ctx)
	go t.run(ctx)
	t.poke()
}

// Close stops the coordinator and waits for the workers to finish their
// current builds.
func (t *Table) Close() {
	if t.cancel != nil {
		t.cancel()
		<-t.done
	}
	t.pipeline.Close()
	if t.owned != nil {
		t.owned.Close()
	}
}

func (t *Table) poke() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// ReloadData drops every pending edit and all content, and rebuilds the
// structure from the data source. Edits submitted after it returns apply on
// top of the new generation.
func (t *Table) ReloadData() {
	t.reconcile.Lock()
	t.mu.Lock()
	t.queue.Reset()
	t.applied = t.queue.Seq()
	t.gen++
	t.latest = space.New(t.gen, db.Counts(t.ds))
	t.resetGen = t.gen
	t.history = nil
	t.pend = pending{space: t.latest, reset: true}
	t.tracker.Reset()
	t.pipeline.Reset()
	gen := t.gen
	t.mu.Unlock()
	t.reconcile.Unlock()

	log.Printf("table: reloaded data as generation %d", gen)
	t.poke()
	t.scheduler.Post(t.commit)
}

// BeginUpdates holds back the edits that follow until EndUpdates, so they
// are applied in a single commit. Calls nest.
func (t *Table) BeginUpdates() { t.queue.Begin() }
func (t *Table) EndUpdates()   { t.queue.End() }

func (t *Table) rowCounts(sections types.IndexSet) []int {
	rows := make([]int, len(sections))
	for i, s := range sections {
		rows[i] = t.ds.NumberOfRows(s)
	}
	return rows
}

// InsertSections records that the sections were added to the data source.
// Their row counts are read from the data source now.
func (t *Table) InsertSections(sections types.IndexSet, a types.Animation) uint64 {
	sections = types.NewIndexSet(sections...)
	return t.queue.SubmitFunc(func() edit.Edit {
		return edit.NewInsertSections(sections, t.rowCounts(sections), a)
	})
}

func (t *Table) DeleteSections(sections types.IndexSet, a types.Animation) uint64 {
	return t.queue.Submit(edit.NewDeleteSections(types.NewIndexSet(sections...), a))
}

func (t *Table) ReloadSections(sections types.IndexSet, a types.Animation) uint64 {
	sections = types.NewIndexSet(sections...)
	return t.queue.SubmitFunc(func() edit.Edit {
		return edit.NewReloadSections(sections, t.rowCounts(sections), a)
	})
}

func (t *Table) MoveSection(from, to int) uint64 {
	return t.queue.Submit(edit.NewMoveSection(from, to))
}

func (t *Table) InsertRows(rows []types.Coordinate, a types.Animation) uint64 {
	return t.queue.Submit(edit.NewInsertRows(rows, a))
}

func (t *Table) DeleteRows(rows []types.Coordinate, a types.Animation) uint64 {
	return t.queue.Submit(edit.NewDeleteRows(rows, a))
}

func (t *Table) ReloadRows(rows []types.Coordinate, a types.Animation) uint64 {
	return t.queue.Submit(edit.NewReloadRows(rows, a))
}

func (t *Table) MoveRow(from, to types.Coordinate) uint64 {
	return t.queue.Submit(edit.NewMoveRow(from, to))
}

func (t *Table) Tuning() rangectl.Tuning {
	return t.tracker.Tuning()
}

// SetTuning changes the working range size. Invalid values are rejected
// and the previous tuning is kept.
func (t *Table) SetTuning(tu rangectl.Tuning) error {
	if err := t.tracker.SetTuning(tu); err != nil {
		return err
	}
	t.poke()
	return nil
}

func (t *Table) LeadingScreensForBatching() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.leadingBatches
}

func (t *Table) SetLeadingScreensForBatching(f float64) error {
	if err := validScreens(f); err != nil {
		return err
	}
	t.mu.Lock()
	t.leadingBatches = f
	t.mu.Unlock()
	t.scheduler.Post(t.evaluateBatch)
	return nil
}

func (t *Table) Stats() Stats {
	t.mu.Lock()
	s := Stats{
		Generation: t.gen,
		Committed:  t.committedGen,
	}
	t.mu.Unlock()
	s.PendingEdits = t.queue.Len()
	s.Range = t.tracker.Range()
	s.Pipeline = t.pipeline.Stats()
	s.Batch = t.signal.State()
	s.BatchFetches = t.signal.Fired()
	s.Content, s.Displayed = t.surface.counts()
	return s
}
