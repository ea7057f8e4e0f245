package domain

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "gooze.dev/pkg/luacover/internal/model"
)

func lineEv(path m.Path, line int) m.Event { return m.Event{Kind: m.EventLine, File: path, Line: line} }
func callEv(path m.Path, line int) m.Event { return m.Event{Kind: m.EventCall, File: path, Line: line} }
func retEv(path m.Path) m.Event           { return m.Event{Kind: m.EventReturn, File: path} }

func trace(path m.Path, lines ...int) []m.Event {
	out := make([]m.Event, len(lines))
	for i, l := range lines {
		out[i] = lineEv(path, l)
	}

	return out
}

func runTrace(t *testing.T, tr Tracker, events []m.Event) {
	t.Helper()

	require.NoError(t, tr.Start())

	for _, ev := range events {
		tr.Handle(ev)
	}

	require.NoError(t, tr.Stop())
}

func executedLines(file *m.SourceFile) []int {
	var out []int

	for _, rec := range file.Lines {
		if rec.Executed {
			out = append(out, rec.Number)
		}
	}

	return out
}

func TestTracker_StateTransitions(t *testing.T) {
	tests := []struct {
		name    string
		steps   []func(Tracker) error
		want    TrackerState
		wantErr bool
	}{
		{name: "start", steps: []func(Tracker) error{Tracker.Start}, want: TrackerRunning},
		{name: "start stop", steps: []func(Tracker) error{Tracker.Start, Tracker.Stop}, want: TrackerStopped},
		{name: "pause resume", steps: []func(Tracker) error{Tracker.Start, Tracker.Pause, Tracker.Resume}, want: TrackerRunning},
		{name: "stop while paused", steps: []func(Tracker) error{Tracker.Start, Tracker.Pause, Tracker.Stop}, want: TrackerStopped},
		{name: "stop when idle", steps: []func(Tracker) error{Tracker.Stop}, want: TrackerIdle, wantErr: true},
		{name: "start twice", steps: []func(Tracker) error{Tracker.Start, Tracker.Start}, want: TrackerRunning, wantErr: true},
		{name: "restart after stop", steps: []func(Tracker) error{Tracker.Start, Tracker.Stop, Tracker.Start}, want: TrackerStopped, wantErr: true},
		{name: "resume when running", steps: []func(Tracker) error{Tracker.Start, Tracker.Resume}, want: TrackerRunning, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker(newTestStore())

			var err error
			for _, step := range tt.steps {
				err = step(tr)
			}

			if tt.wantErr {
				require.ErrorIs(t, err, m.ErrValidation)
			} else {
				require.NoError(t, err)
			}

			assert.Equal(t, tt.want, tr.State())
		})
	}
}

func TestTracker_ResetReturnsToIdle(t *testing.T) {
	tr := NewTracker(newTestStore())
	require.NoError(t, tr.Start())
	require.NoError(t, tr.Stop())

	tr.Reset()

	assert.Equal(t, TrackerIdle, tr.State())
	assert.Zero(t, tr.Stats().Calls)
	require.NoError(t, tr.Start())
}

func TestTracker_IgnoresEventsUnlessRunning(t *testing.T) {
	s, file := analyzeSource(t, "a.lua", "x = 1\ny = 2\n")
	tr := NewTracker(s)

	tr.Handle(lineEv(file.Path, 1))
	require.NoError(t, tr.Start())
	require.NoError(t, tr.Pause())
	tr.Handle(lineEv(file.Path, 1))
	require.NoError(t, tr.Resume())
	tr.Handle(lineEv(file.Path, 2))

	got, _ := s.GetFileData(file.Path)
	assert.Equal(t, []int{2}, executedLines(got))
	assert.Equal(t, int64(1), tr.Stats().Calls)
}

func TestTracker_CommentScenario(t *testing.T) {
	s, file := analyzeExample(t, "comments", "comments.lua")
	tr := NewTracker(s)

	runTrace(t, tr, trace(file.Path, 1, 5))

	snap := NewCalculator().Compute(s, file.Path)
	require.Len(t, snap.Files, 1)

	fs := snap.Files[0]
	assert.Equal(t, 2, fs.Lines.Total)
	assert.Equal(t, 2, fs.Lines.Executed)
	assert.InDelta(t, 100.0, fs.Lines.ExecutedPercent, 0.001)
	assert.Zero(t, fs.Lines.Percent, "nothing was asserted")
	assert.Equal(t, []m.LineState{
		m.LineExecutedNotCovered,
		m.LineNonExecutable, m.LineNonExecutable, m.LineNonExecutable,
		m.LineExecutedNotCovered,
	}, fs.LineStates)
}

func TestTracker_Branches(t *testing.T) {
	s, file := analyzeExample(t, "branches", "branches.lua")
	p := file.Path
	tr := NewTracker(s)

	var events []m.Event
	events = append(events, callEv(p, 0))
	events = append(events, trace(p, 2, 12, 14)...)
	events = append(events, callEv(p, 2))
	events = append(events, trace(p, 3, 4, 5, 11)...)
	events = append(events, retEv(p))
	events = append(events, lineEv(p, 15), callEv(p, 2))
	events = append(events, trace(p, 3, 4, 6, 9, 11)...)
	events = append(events, retEv(p), retEv(p))

	runTrace(t, tr, events)

	got, _ := s.GetFileData(p)
	assert.Equal(t, []int{2, 3, 4, 5, 6, 8, 9, 10, 11, 12, 14, 15}, executedLines(got))

	assert.Equal(t, int64(2), got.Functions[0].Count)
	assert.Equal(t, int64(2), got.Blocks[0].Count, "function body")
	assert.Equal(t, int64(2), got.Blocks[1].Count, "conditional")
	assert.Equal(t, int64(1), got.Blocks[2].Count, "first branch")
	assert.False(t, got.Blocks[3].Executed, "elseif branch")
	assert.Equal(t, int64(1), got.Blocks[4].Count, "else branch")

	and := got.Conditions[0]
	assert.Equal(t, int64(1), and.TrueCount)
	assert.Equal(t, int64(1), and.FalseCount)
	assert.True(t, and.FullyCovered())

	strict := got.Conditions[3]
	assert.Equal(t, int64(1), strict.FalseCount)
	assert.True(t, strict.FalseInferred)

	or := got.Conditions[4]
	assert.Equal(t, int64(1), or.FalseCount)
	assert.Zero(t, or.TrueCount)
	assert.Equal(t, int64(1), got.Conditions[5].FalseCount)
}

func TestTracker_Loops(t *testing.T) {
	s, file := analyzeExample(t, "loops", "loops.lua")
	tr := NewTracker(s)

	runTrace(t, tr, trace(file.Path,
		1, 2, 3, 2, 3, 2, 3, 2,
		6, 7, 8, 7, 8, 7, 8, 7,
		12, 13, 12, 13,
		15, 16, 15, 16, 15,
		20, 21, 24,
	))

	got, _ := s.GetFileData(file.Path)
	assert.Equal(t, []int{1, 2, 3, 4, 6, 7, 8, 9, 11, 12, 13, 15, 16, 17, 19, 20, 21, 22, 24}, executedLines(got))

	while := got.Conditions[0]
	assert.Equal(t, int64(3), while.TrueCount)
	assert.Equal(t, int64(1), while.FalseCount)

	until := got.Conditions[1]
	assert.Equal(t, int64(1), until.FalseCount, "loops back once")
	assert.Equal(t, int64(1), until.TrueCount, "then exits")

	assert.Equal(t, int64(3), got.Blocks[0].Count)
	assert.Equal(t, int64(3), got.Blocks[1].Count)
	assert.Equal(t, int64(2), got.Blocks[2].Count)
	assert.Equal(t, int64(1), got.Blocks[4].Count)
}

func TestTracker_MultiLineGuardHeader(t *testing.T) {
	src := "if a and\n   b then\n  x = 1\nend\ny = 2\n"
	s, file := analyzeSource(t, "g.lua", src)
	tr := NewTracker(s)

	runTrace(t, tr, trace(file.Path, 1, 2, 5))

	got, _ := s.GetFileData(file.Path)
	assert.Equal(t, int64(1), got.Conditions[0].FalseCount)
	assert.Zero(t, got.Conditions[0].TrueCount)
	assert.Equal(t, []int{1, 2, 4, 5}, executedLines(got))
}

func TestTracker_GuardDecidedOnReturn(t *testing.T) {
	src := "local function f(n)\n  while n > 0 do\n    n = n - 1\n  end\nend\nf(0)\n"
	s, file := analyzeSource(t, "r.lua", src)
	tr := NewTracker(s)

	runTrace(t, tr, []m.Event{
		lineEv(file.Path, 5), lineEv(file.Path, 6),
		callEv(file.Path, 1), lineEv(file.Path, 2), retEv(file.Path),
	})

	got, _ := s.GetFileData(file.Path)
	assert.Equal(t, int64(1), got.Conditions[0].FalseCount)
	assert.True(t, got.Lines[3].Executed, "loop end reached by falling off")
	assert.True(t, got.Lines[4].Executed, "function end")
	assert.True(t, got.Functions[0].Executed)
}

func TestTracker_LazyAnalysisAndBadEvents(t *testing.T) {
	s := newTestStore()
	tr := NewTracker(s)
	path := m.Path(examplePath("calc", "calc.lua"))

	runTrace(t, tr, []m.Event{
		{Kind: m.EventLine, File: "", Line: 1},
		{Kind: m.EventLine, File: path, Line: -1},
		{Kind: m.EventKind(9), File: path, Line: 1},
		{Kind: m.EventLine, File: "missing.lua", Line: 1},
		lineEv(path, 1),
	})

	got, ok := s.GetFileData(path)
	require.True(t, ok, "file analyzed on first reference")
	assert.Equal(t, []int{1}, executedLines(got))
	assert.Equal(t, int64(5), tr.Stats().Calls)
}

type panicStore struct {
	Store
}

func (panicStore) Layout(m.Path) (*m.SourceFile, bool) {
	panic("boom")
}

func TestTracker_HandleRecoversPanics(t *testing.T) {
	tr := NewTracker(panicStore{Store: newTestStore()})
	require.NoError(t, tr.Start())

	require.NotPanics(t, func() {
		tr.Handle(lineEv("x.lua", 1))
	})

	assert.Equal(t, int64(1), tr.Stats().Calls)
}

func TestTracker_Consume(t *testing.T) {
	s, file := analyzeSource(t, "a.lua", "x = 1\ny = 2\n")
	tr := NewTracker(s)
	require.NoError(t, tr.Start())

	events := make(chan m.Event, 4)
	events <- lineEv(file.Path, 1)
	events <- lineEv(file.Path, 2)
	close(events)

	require.NoError(t, tr.Consume(context.Background(), events))

	got, _ := s.GetFileData(file.Path)
	assert.Equal(t, []int{1, 2}, executedLines(got))

	stats := tr.Stats()
	assert.Equal(t, int64(2), stats.Calls)
	assert.GreaterOrEqual(t, stats.Max, stats.Last)
	assert.Equal(t, stats.Total/2, stats.Average)
}

func TestTracker_ConsumeStopsOnCancel(t *testing.T) {
	tr := NewTracker(newTestStore())
	require.NoError(t, tr.Start())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := tr.Consume(ctx, make(chan m.Event))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
