package command

import (
	"context"
	"sync/atomic"
	"time"

	"mixdown/graph"
	"mixdown/logger"
	"mixdown/model"
	"mixdown/rt"
)

// Persister durably stores applied entries and the document they produced.
// It is called on the engine goroutine after every successful mutation,
// including undo and redo, which carry a zero Entry and only the document;
// implementations that talk to a database should hand the work off to their
// own goroutine.
type Persister interface {
	SaveEntry(entry Entry, doc *model.Document)
}

// EventSink receives change events in application order.
type EventSink func(model.ChangeEvent)

// Result is the outcome of a submit, undo or redo.
type Result struct {
	Revision uint64   `json:"revision"`
	Applied  bool     `json:"applied"` // false for an undo/redo no-op at a journal boundary
	Command  *Command `json:"command,omitempty"`
	Err      error    `json:"-"`
}

type opKind int

const (
	opSubmit opKind = iota
	opUndo
	opRedo
)

type request struct {
	op       opKind
	cmd      Command
	expected *uint64
	reply    chan Result
}

// Engine is the single mutation gateway. One goroutine owns the document,
// the journal and snapshot publication; Submit/Undo/Redo enqueue requests
// that are applied strictly in arrival order, which fixes the total order
// of the journal and the revision sequence.
type Engine struct {
	params  graph.Params
	resolve graph.PCMResolver

	snapshots *rt.Channel[graph.Plan]
	events    EventSink
	persist   Persister

	cur      atomic.Pointer[model.Document]
	journal  *Journal
	seq      uint64
	requests chan *request
	done     chan struct{}
	stopped  chan struct{}
}

// NewEngine builds an engine around an initial document and publishes its
// first snapshot. events and persist may be nil.
func NewEngine(doc *model.Document, params graph.Params, resolve graph.PCMResolver,
	events EventSink, persist Persister) (*Engine, error) {

	e := &Engine{
		params:    params,
		resolve:   resolve,
		snapshots: rt.NewChannel[graph.Plan](),
		events:    events,
		persist:   persist,
		journal:   NewJournal(),
		requests:  make(chan *request, 256),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	e.cur.Store(doc)

	plan, err := graph.Compile(doc, params, resolve)
	if err != nil {
		return nil, err
	}
	e.snapshots.Publish(plan)
	return e, nil
}

// Snapshots returns the channel the render scheduler reads plans from.
func (e *Engine) Snapshots() *rt.Channel[graph.Plan] {
	return e.snapshots
}

// Document returns the current document revision. Safe from any goroutine;
// the returned value is immutable.
func (e *Engine) Document() *model.Document {
	return e.cur.Load()
}

// Run processes requests until Stop is called. Call it on its own goroutine.
func (e *Engine) Run() {
	defer close(e.stopped)
	for {
		select {
		case req := <-e.requests:
			e.dispatch(req)
		case <-e.done:
			// Drain whatever was accepted before the stop so no submission
			// is left ambiguous.
			for {
				select {
				case req := <-e.requests:
					e.dispatch(req)
				default:
					return
				}
			}
		}
	}
}

// Stop shuts the engine down after draining accepted requests.
func (e *Engine) Stop() {
	close(e.done)
	<-e.stopped
}

func (e *Engine) dispatch(req *request) {
	var res Result
	switch req.op {
	case opSubmit:
		res = e.handleSubmit(req)
	case opUndo:
		res = e.handleUndo()
	case opRedo:
		res = e.handleRedo()
	}
	req.reply <- res
}

func (e *Engine) send(ctx context.Context, req *request) Result {
	select {
	case e.requests <- req:
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	case <-e.done:
		return Result{Err: model.NewError(model.ErrInternal, "engine is shutting down")}
	}
	// Accepted requests are applied exactly once; the caller waits for the
	// acknowledgement even if its context expires meanwhile.
	return <-req.reply
}

// Submit queues a command for application. expected, when non-nil, turns the
// submission into a compare-and-apply that fails with a conflict if another
// command advanced the revision first.
func (e *Engine) Submit(ctx context.Context, cmd Command, expected *uint64) Result {
	return e.send(ctx, &request{op: opSubmit, cmd: cmd, expected: expected, reply: make(chan Result, 1)})
}

// Undo reverses the most recent applied command. A no-op at the journal
// start, reported via Applied=false.
func (e *Engine) Undo(ctx context.Context) Result {
	return e.send(ctx, &request{op: opUndo, reply: make(chan Result, 1)})
}

// Redo re-applies the most recently undone command. A no-op at the journal
// end.
func (e *Engine) Redo(ctx context.Context) Result {
	return e.send(ctx, &request{op: opRedo, reply: make(chan Result, 1)})
}

func (e *Engine) handleSubmit(req *request) Result {
	doc := e.cur.Load()
	if req.expected != nil && *req.expected != doc.Revision {
		return Result{Err: model.NewError(model.ErrConflict,
			"expected revision %d, document is at %d", *req.expected, doc.Revision)}
	}

	cmd := req.cmd
	next, inverse, err := applyCommand(doc, &cmd)
	if err != nil {
		return Result{Err: err}
	}
	next = next.WithRevision(doc.Revision + 1)

	plan, err := graph.Compile(next, e.params, e.resolve)
	if err != nil {
		// Compilation refused the new document; the previous snapshot stays
		// in effect and the document is unchanged.
		return Result{Err: err}
	}

	e.seq++
	entry := Entry{
		Seq:       e.seq,
		Command:   cmd,
		Inverse:   inverse,
		RevBefore: doc.Revision,
		RevAfter:  next.Revision,
		AppliedAt: time.Now(),
	}
	e.journal.Append(entry)
	e.commit(next, plan, entry)
	e.emit(model.EventCommandApplied, &cmd, next.Revision)

	return Result{Revision: next.Revision, Applied: true, Command: &cmd}
}

func (e *Engine) handleUndo() Result {
	entry, ok := e.journal.StepBack()
	if !ok {
		return Result{Revision: e.cur.Load().Revision, Applied: false}
	}

	doc := e.cur.Load()
	inv := entry.Inverse
	next, _, err := applyCommand(doc, &inv)
	if err != nil {
		// A stored inverse must always apply; put the cursor back and
		// surface the fault instead of corrupting history.
		e.journal.StepForward()
		logger.Error("undo failed to apply stored inverse",
			logger.String("command", string(entry.Command.Kind)),
			logger.ErrorField(err))
		return Result{Err: model.NewError(model.ErrInternal, "undo failed: %v", err)}
	}
	next = next.WithRevision(entry.RevBefore)

	plan, err := graph.Compile(next, e.params, e.resolve)
	if err != nil {
		e.journal.StepForward()
		return Result{Err: err}
	}

	e.commit(next, plan, Entry{})
	e.emit(model.EventUndo, &entry.Command, next.Revision)
	return Result{Revision: next.Revision, Applied: true, Command: &entry.Command}
}

func (e *Engine) handleRedo() Result {
	entry, ok := e.journal.StepForward()
	if !ok {
		return Result{Revision: e.cur.Load().Revision, Applied: false}
	}

	doc := e.cur.Load()
	fwd := entry.Command
	next, _, err := applyCommand(doc, &fwd)
	if err != nil {
		e.journal.StepBack()
		logger.Error("redo failed to re-apply command",
			logger.String("command", string(entry.Command.Kind)),
			logger.ErrorField(err))
		return Result{Err: model.NewError(model.ErrInternal, "redo failed: %v", err)}
	}
	next = next.WithRevision(entry.RevAfter)

	plan, err := graph.Compile(next, e.params, e.resolve)
	if err != nil {
		e.journal.StepBack()
		return Result{Err: err}
	}

	e.commit(next, plan, Entry{})
	e.emit(model.EventRedo, &entry.Command, next.Revision)
	return Result{Revision: next.Revision, Applied: true, Command: &entry.Command}
}

// commit stores the document, publishes the snapshot and persists the entry
// in that order, so a reader that sees the new revision can also obtain its
// plan.
func (e *Engine) commit(doc *model.Document, plan *graph.Plan, entry Entry) {
	e.cur.Store(doc)
	e.snapshots.Publish(plan)
	if e.persist != nil {
		e.persist.SaveEntry(entry, doc)
	}
}

func (e *Engine) emit(kind string, cmd *Command, revision uint64) {
	if e.events == nil {
		return
	}
	topic := model.TopicDocument
	switch cmd.Kind {
	case KindPlay, KindStop, KindSeek, KindSetLoop:
		topic = model.TopicTransport
	}
	e.events(model.ChangeEvent{
		Topic:     topic,
		Kind:      kind,
		Revision:  revision,
		Command:   string(cmd.Kind),
		TrackID:   cmd.TrackID,
		ClipID:    cmd.ClipID,
		AssetID:   cmd.AssetID,
		Timestamp: time.Now().UnixMilli(),
	})
}
