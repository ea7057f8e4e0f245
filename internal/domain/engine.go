// Package domain holds the coverage engine: static analysis of Lua
// sources, the record store, the runtime tracker, the instrumenter and
// the calculator, tied together by Engine.
package domain

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"golang.org/x/sync/errgroup"

	"gooze.dev/pkg/luacover/internal/adapter"
	m "gooze.dev/pkg/luacover/internal/model"
)

// EngineDeps configures NewEngine.
type EngineDeps struct {
	FS     adapter.SourceFSAdapter
	Parser adapter.LuaParserAdapter
	// Cache persists rewrites between runs. Optional.
	Cache adapter.RewriteCache
	// RunID names this engine's results when merged; generated when empty.
	RunID string
	// Strategy applies to files no hook pattern matches.
	Strategy m.Strategy
	// HookPatterns select files observed through runtime events only.
	HookPatterns []*regexp.Regexp
	// Parallel bounds concurrent file preparation; 0 means unbounded.
	Parallel int
}

// Engine is the context object of one coverage session. It owns the store,
// the tracker and the rewrites; nothing is shared between engines.
type Engine interface {
	Start() error
	Stop() error
	// Reset clears the results recorded for one file.
	Reset(path m.Path) error
	// FullReset drops every file, rewrite and issue.
	FullReset()

	// TrackExecution marks a line executed without implying coverage.
	TrackExecution(file m.Path, line int) error
	// MarkCovered marks a line covered, which implies executed.
	MarkCovered(file m.Path, line int) error
	IsCovered(file m.Path, line int) bool

	// Prepare analyzes paths and instruments those using the instrument
	// strategy. Per-file failures become issues; only cancellation fails.
	Prepare(ctx context.Context, paths []m.Path) error
	// Instrumented returns the rewrite of an instrumented file.
	Instrumented(path m.Path) (*m.Rewrite, bool)

	// Hit, Enter and Guard receive the calls of instrumented sources.
	// They record only while the tracker runs. Enter takes a function
	// record id.
	Hit(file m.Path, line int)
	Enter(file m.Path, function int)
	Guard(file m.Path, line int, value bool)

	RawData() m.RawData
	Snapshot(path m.Path) m.CoverageSnapshot
	Issues() []m.FileIssue
	Tracker() Tracker
	Store() Store
	RunID() string
}

type engine struct {
	deps       EngineDeps
	store      Store
	tracker    Tracker
	instr      Instrumenter
	calculator Calculator

	mu       sync.RWMutex
	rewrites map[m.Path]*m.Rewrite
}

// NewEngine wires a fresh store, tracker, instrumenter and calculator.
func NewEngine(deps EngineDeps) Engine {
	if deps.RunID == "" {
		deps.RunID = rand.Text()
	}

	if deps.Strategy == "" {
		deps.Strategy = m.StrategyInstrument
	}

	store := NewStore(deps.FS, deps.Parser, NewClassifier(), NewAnalyzer())

	return &engine{
		deps:       deps,
		store:      store,
		tracker:    NewTracker(store),
		instr:      NewInstrumenter(deps.Parser, deps.Cache),
		calculator: NewCalculator(),
		rewrites:   make(map[m.Path]*m.Rewrite),
	}
}

func (e *engine) Start() error     { return e.tracker.Start() }
func (e *engine) Stop() error      { return e.tracker.Stop() }
func (e *engine) Tracker() Tracker { return e.tracker }
func (e *engine) Store() Store     { return e.store }
func (e *engine) RunID() string    { return e.deps.RunID }

func (e *engine) Reset(path m.Path) error {
	return e.store.ResetFile(path)
}

func (e *engine) FullReset() {
	e.store.FullReset()
	e.tracker.Reset()

	e.mu.Lock()
	e.rewrites = make(map[m.Path]*m.Rewrite)
	e.mu.Unlock()
}

func (e *engine) TrackExecution(file m.Path, line int) error {
	if _, err := layout(e.store, m.NormalizePath(file)); err != nil {
		return err
	}

	return e.store.SetLineExecuted(file, line)
}

func (e *engine) MarkCovered(file m.Path, line int) error {
	if _, err := layout(e.store, m.NormalizePath(file)); err != nil {
		return err
	}

	return e.store.SetLineCovered(file, line)
}

func (e *engine) IsCovered(file m.Path, line int) bool {
	data, ok := e.store.GetFileData(file)
	if !ok {
		return false
	}

	rec, ok := data.Line(line)

	return ok && rec.Covered
}

func (e *engine) Prepare(ctx context.Context, paths []m.Path) error {
	group, gctx := errgroup.WithContext(ctx)
	if e.deps.Parallel > 0 {
		group.SetLimit(e.deps.Parallel)
	}

	for _, path := range paths {
		group.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			return e.prepare(gctx, path)
		})
	}

	if err := group.Wait(); err != nil {
		return fmt.Errorf("prepare: %w", err)
	}

	return nil
}

func (e *engine) prepare(ctx context.Context, path m.Path) error {
	file, err := e.store.InitializeFile(path)
	if err != nil {
		slog.Warn("Skipping unreadable file", "path", path, "error", err)
		return nil
	}

	if !file.Tracked {
		return nil
	}

	if e.strategyFor(file.Path) == m.StrategyHook {
		return e.store.SetStrategy(file.Path, m.StrategyHook)
	}

	layoutFile, _ := e.store.Layout(file.Path)

	rw, err := e.instr.Instrument(ctx, layoutFile)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	if err != nil {
		slog.Warn("File left to runtime hooks", "path", file.Path, "error", err)

		e.store.AddIssue(m.FileIssue{Path: file.Path, Kind: m.KindInstrumentation, Reason: reasonOf(rw, err)})

		return e.store.SetStrategy(file.Path, m.StrategyHook)
	}

	e.mu.Lock()
	e.rewrites[file.Path] = rw
	e.mu.Unlock()

	return e.store.SetStrategy(file.Path, m.StrategyInstrument)
}

func reasonOf(rw *m.Rewrite, err error) string {
	if rw != nil && rw.Reason != "" {
		return rw.Reason
	}

	return err.Error()
}

func (e *engine) strategyFor(path m.Path) m.Strategy {
	for _, re := range e.deps.HookPatterns {
		if re.MatchString(string(path)) {
			return m.StrategyHook
		}
	}

	return e.deps.Strategy
}

func (e *engine) Instrumented(path m.Path) (*m.Rewrite, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rw, ok := e.rewrites[m.NormalizePath(path)]

	return rw, ok
}

// recording returns the analyzed file when calls should be recorded.
func (e *engine) recording(path m.Path) (*m.SourceFile, bool) {
	if e.tracker.State() != TrackerRunning {
		return nil, false
	}

	file, err := layout(e.store, m.NormalizePath(path))
	if err != nil {
		slog.Debug("Dropped tracking call", "path", path, "error", err)
		return nil, false
	}

	return file, file.Tracked
}

func (e *engine) Hit(path m.Path, line int) {
	file, ok := e.recording(path)
	if !ok {
		return
	}

	if err := markLine(e.store, file, line); err != nil {
		slog.Debug("Dropped line hit", "path", path, "line", line, "error", err)
	}
}

func (e *engine) Enter(path m.Path, function int) {
	file, ok := e.recording(path)
	if !ok {
		return
	}

	fn, ok := file.Function(function)
	if !ok {
		slog.Debug("Dropped entry of unknown function", "path", path, "function", function)
		return
	}

	if err := trackEntry(e.store, file, fn); err != nil {
		slog.Debug("Dropped function entry", "path", path, "function", function, "error", err)
	}
}

// Guard records a guard expression evaluated on line. The value is the
// condition's own truth value, whatever the kind of guard.
func (e *engine) Guard(path m.Path, line int, value bool) {
	file, ok := e.recording(path)
	if !ok {
		return
	}

	if err := markLine(e.store, file, line); err != nil {
		slog.Debug("Dropped guard line", "path", path, "line", line, "error", err)
		return
	}

	g, ok := file.Guards[line]
	if !ok {
		return
	}

	if err := e.store.TrackConditionExecution(file.Path, g.ConditionID, value); err != nil {
		slog.Debug("Dropped guard outcome", "path", path, "line", line, "error", err)
	}
}

func (e *engine) RawData() m.RawData {
	return RawDataOf(e.store, e.deps.RunID)
}

func (e *engine) Snapshot(path m.Path) m.CoverageSnapshot {
	return e.calculator.Compute(e.store, path)
}

func (e *engine) Issues() []m.FileIssue {
	return e.store.Issues()
}
