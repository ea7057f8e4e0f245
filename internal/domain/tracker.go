package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	m "gooze.dev/pkg/luacover/internal/model"
)

// TrackerState is the lifecycle state of a Tracker.
type TrackerState int

const (
	TrackerIdle TrackerState = iota
	TrackerRunning
	TrackerPaused
	TrackerStopped
)

func (s TrackerState) String() string {
	switch s {
	case TrackerIdle:
		return "idle"
	case TrackerRunning:
		return "running"
	case TrackerPaused:
		return "paused"
	case TrackerStopped:
		return "stopped"
	}

	return fmt.Sprintf("state(%d)", int(s))
}

// TrackerStats accounts for the time spent handling events.
type TrackerStats struct {
	Calls   int64
	Total   time.Duration
	Average time.Duration
	Last    time.Duration
	Max     time.Duration
}

// Tracker consumes the host's ordered stream of line, call and return
// events and records what ran in the Store. Events must come from a single
// consumer; Handle never panics and never returns an error to the host.
type Tracker interface {
	Start() error
	Stop() error
	Pause() error
	Resume() error
	// Reset returns the tracker to idle and clears its call stack and stats.
	Reset()
	State() TrackerState

	Handle(ev m.Event)
	// Consume handles events until the channel closes or ctx is done.
	Consume(ctx context.Context, events <-chan m.Event) error
	Stats() TrackerStats
}

// frame is the tracking state of one active function call.
type frame struct {
	file  m.Path
	fn    int // function record id, 0 for a main chunk
	last  int // last line seen in this call
	guard *m.Guard
}

type tracker struct {
	store Store

	mu    sync.Mutex
	state TrackerState
	stats TrackerStats

	frames []frame
}

// NewTracker creates an idle Tracker writing to store.
func NewTracker(store Store) Tracker {
	return &tracker{store: store}
}

func (t *tracker) transition(to TrackerState, from ...TrackerState) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, s := range from {
		if t.state == s {
			t.state = to
			return nil
		}
	}

	return m.NewError(m.KindValidation, "", 0, fmt.Errorf("cannot move tracker from %s to %s", t.state, to))
}

func (t *tracker) Start() error  { return t.transition(TrackerRunning, TrackerIdle) }
func (t *tracker) Pause() error  { return t.transition(TrackerPaused, TrackerRunning) }
func (t *tracker) Resume() error { return t.transition(TrackerRunning, TrackerPaused) }
func (t *tracker) Stop() error   { return t.transition(TrackerStopped, TrackerRunning, TrackerPaused) }

func (t *tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state = TrackerIdle
	t.stats = TrackerStats{}
	t.frames = nil
}

func (t *tracker) State() TrackerState {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.state
}

func (t *tracker) Stats() TrackerStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.stats
}

func (t *tracker) record(elapsed time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.Calls++
	t.stats.Total += elapsed
	t.stats.Last = elapsed
	t.stats.Average = t.stats.Total / time.Duration(t.stats.Calls)

	if elapsed > t.stats.Max {
		t.stats.Max = elapsed
	}
}

func (t *tracker) Handle(ev m.Event) {
	if t.State() != TrackerRunning {
		return
	}

	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			slog.Debug("tracking hook recovered", "kind", ev.Kind, "file", ev.File, "line", ev.Line, "panic", r)
		}

		t.record(time.Since(start))
	}()

	if err := t.handle(ev); err != nil {
		slog.Debug("dropping event", "kind", ev.Kind, "file", ev.File, "line", ev.Line, "error", err)
	}
}

func (t *tracker) Consume(ctx context.Context, events <-chan m.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}

			t.Handle(ev)
		}
	}
}

func (t *tracker) handle(ev m.Event) error {
	if ev.File == "" {
		return m.NewError(m.KindValidation, "", ev.Line, errors.New("event without file"))
	}

	switch ev.Kind {
	case m.EventLine:
		if ev.Line < 1 {
			return m.NewError(m.KindValidation, ev.File, ev.Line, errors.New("line must be positive"))
		}

		file, err := layout(t.store, ev.File)
		if err != nil {
			return err
		}

		return t.line(file, ev.Line)
	case m.EventCall:
		file, err := layout(t.store, ev.File)
		if err != nil {
			return err
		}

		return t.call(file, ev.Line)
	case m.EventReturn:
		return t.ret()
	}

	return m.NewError(m.KindValidation, ev.File, ev.Line, fmt.Errorf("unknown event kind %s", ev.Kind))
}

func (t *tracker) top(path m.Path) *frame {
	if len(t.frames) == 0 {
		t.frames = append(t.frames, frame{file: path})
	}

	return &t.frames[len(t.frames)-1]
}

func (t *tracker) call(file *m.SourceFile, line int) error {
	t.frames = append(t.frames, frame{file: file.Path})

	if line < 1 {
		return nil
	}

	fn, err := enterFunction(t.store, file, line)
	if err != nil || fn == nil {
		return err
	}

	t.frames[len(t.frames)-1].fn = fn.ID

	return nil
}

// ret closes the innermost call. A body that ran off its end reached the
// closing `end` of the function and of any block still open.
func (t *tracker) ret() error {
	if len(t.frames) == 0 {
		return nil
	}

	f := t.frames[len(t.frames)-1]
	t.frames = t.frames[:len(t.frames)-1]

	file, ok := t.store.Layout(f.file)
	if !ok {
		return nil
	}

	if f.guard != nil {
		if err := t.decide(file, f.guard, 0); err != nil {
			return err
		}
	}

	if f.last == 0 || file.InReturn(f.last) {
		return nil
	}

	if err := exitBlocks(t.store, file, f.last, math.MaxInt); err != nil {
		return err
	}

	if fn, ok := file.Function(f.fn); ok && fn.EndLine > fn.StartLine {
		return t.store.SetLineExecuted(file.Path, fn.EndLine)
	}

	return nil
}

func (t *tracker) line(file *m.SourceFile, line int) error {
	f := t.top(file.Path)
	if f.file != file.Path {
		f.file, f.last, f.guard = file.Path, 0, nil
	}

	if f.guard != nil && (line < f.guard.HeaderStart || line > f.guard.HeaderEnd) {
		g := f.guard
		f.guard = nil

		if err := t.decide(file, g, line); err != nil {
			return err
		}
	}

	if f.last > 0 && line > f.last {
		if err := exitBlocks(t.store, file, f.last, line); err != nil {
			return err
		}
	}

	if err := markLine(t.store, file, line); err != nil {
		return err
	}

	if g, ok := file.Guards[line]; ok && f.guard == nil {
		f.guard = &g
	}

	f.last = line

	return nil
}

// decide records the outcome of a guard from the line reached after its
// header: the guarded body means true, anywhere else false. Repeat guards
// loop back into the body while false.
func (t *tracker) decide(file *m.SourceFile, g *m.Guard, next int) error {
	outcome := next >= g.BodyStart && next <= g.BodyEnd
	if g.Repeat {
		outcome = !outcome
	}

	return t.store.TrackConditionExecution(file.Path, g.ConditionID, outcome)
}

// layout returns the analyzed file, analyzing it on first reference.
func layout(s Store, path m.Path) (*m.SourceFile, error) {
	if file, ok := s.Layout(path); ok {
		return file, nil
	}

	return s.InitializeFile(path)
}

// markLine records line as executed together with the lines of its
// statement and the blocks it enters. Entering a branch or loop body also
// marks the header line owning it, as `else`, `do` and `repeat` lines raise
// no event of their own.
func markLine(s Store, file *m.SourceFile, line int) error {
	if err := s.SetLineExecuted(file.Path, line); err != nil {
		return err
	}

	for _, cont := range file.Continuations[line] {
		if err := s.SetLineExecuted(file.Path, cont); err != nil {
			return err
		}
	}

	for _, id := range file.Entries[line] {
		if err := s.TrackBlockExecution(file.Path, id); err != nil {
			return err
		}

		block, ok := file.Block(id)
		if !ok || block.Kind == m.BlockConditional || block.StartLine == line {
			continue
		}

		if err := s.SetLineExecuted(file.Path, block.StartLine); err != nil {
			return err
		}
	}

	return nil
}

// enterFunction records a call of the function defined on line and the
// execution of its body. It returns nil when no function starts there.
func enterFunction(s Store, file *m.SourceFile, line int) (*m.FunctionRecord, error) {
	fn, ok := file.FunctionAt(line)
	if !ok {
		return nil, nil
	}

	if err := trackEntry(s, file, fn); err != nil {
		return nil, err
	}

	return fn, nil
}

// trackEntry records a call of fn and the execution of its body.
func trackEntry(s Store, file *m.SourceFile, fn *m.FunctionRecord) error {
	if err := s.TrackFunctionExecution(file.Path, fn.ID); err != nil {
		return err
	}

	if fn.BlockID != m.RootID {
		return s.TrackBlockExecution(file.Path, fn.BlockID)
	}

	return nil
}

// exitBlocks marks the closing line of every block that control left
// forward when moving from line from to line to.
func exitBlocks(s Store, file *m.SourceFile, from, to int) error {
	for i := range file.Blocks {
		b := &file.Blocks[i]

		switch b.Kind {
		case m.BlockConditional, m.BlockWhile, m.BlockFor, m.BlockDo:
		default:
			continue
		}

		if !b.Contains(from) || to <= b.EndLine || b.EndLine == from {
			continue
		}

		if err := s.SetLineExecuted(file.Path, b.EndLine); err != nil {
			return err
		}
	}

	return nil
}
