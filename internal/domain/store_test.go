package domain

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gooze.dev/pkg/luacover/internal/adapter"
	m "gooze.dev/pkg/luacover/internal/model"
)

func TestStore_InitializeFile(t *testing.T) {
	s := newTestStore()
	path := m.Path(examplePath("calc", "calc.lua"))

	file, err := s.InitializeFile(path)
	require.NoError(t, err)
	require.True(t, file.Tracked)
	assert.Equal(t, 26, file.LineCount)
	assert.Len(t, file.Functions, 3)
	assert.Equal(t, m.StrategyInstrument, file.Strategy)

	again, err := s.InitializeFile(path)
	require.NoError(t, err)
	assert.Same(t, file, again, "unchanged content reuses the analysis")

	assert.Equal(t, []m.Path{m.NormalizePath(path)}, s.Files())
}

func TestStore_InitializeContentRebuildsOnChange(t *testing.T) {
	s := newTestStore()

	first, err := s.InitializeContent("a.lua", []byte("x = 1\n"))
	require.NoError(t, err)
	require.NoError(t, s.SetStrategy("a.lua", m.StrategyHook))

	second, err := s.InitializeContent("./a.lua", []byte("function f()\nend\n"))
	require.NoError(t, err)

	assert.NotEqual(t, first.Hash, second.Hash)
	assert.Len(t, second.Functions, 1)
	assert.Equal(t, m.StrategyHook, second.Strategy)
}

func TestStore_InitializeFileErrors(t *testing.T) {
	s := newTestStore()

	_, err := s.InitializeFile("")
	require.ErrorIs(t, err, m.ErrValidation)

	_, err = s.InitializeFile(m.Path(filepath.Join(t.TempDir(), "missing.lua")))
	require.ErrorIs(t, err, m.ErrIO)

	issues := s.Issues()
	require.Len(t, issues, 1)
	assert.Equal(t, m.KindIO, issues[0].Kind)
}

func TestStore_ParseFailureLeavesFileUntracked(t *testing.T) {
	s := newTestStore()

	file, err := s.InitializeFile(m.Path(examplePath("broken", "broken.lua")))
	require.NoError(t, err)

	assert.False(t, file.Tracked)
	assert.Equal(t, 4, file.LineCount)
	assert.Empty(t, file.Functions)
	assert.Equal(t, m.Executable, file.Lines[0].Class)

	issues := s.Issues()
	require.Len(t, issues, 1)
	assert.Equal(t, m.KindParse, issues[0].Kind)
	assert.Contains(t, issues[0].Reason, "broken.lua")

	// Lines of an untracked file still record execution.
	require.NoError(t, s.SetLineExecuted(file.Path, 1))
	got, _ := s.GetFileData(file.Path)
	assert.True(t, got.Lines[0].Executed)
}

func TestStore_NonExecutableLinesNeverExecute(t *testing.T) {
	s, file := analyzeExample(t, "comments", "comments.lua")

	for line := 1; line <= file.LineCount; line++ {
		require.NoError(t, s.SetLineExecuted(file.Path, line))
		require.NoError(t, s.SetLineCovered(file.Path, line))
	}

	got, ok := s.GetFileData(file.Path)
	require.True(t, ok)

	for _, rec := range got.Lines {
		if rec.Class != m.Executable {
			assert.False(t, rec.Executed, "line %d", rec.Number)
			assert.False(t, rec.Covered, "line %d", rec.Number)
			assert.Zero(t, rec.Count, "line %d", rec.Number)

			continue
		}

		assert.True(t, rec.Covered, "line %d", rec.Number)
		assert.True(t, rec.Executed, "line %d", rec.Number)
	}
}

func TestStore_LineValidation(t *testing.T) {
	s, file := analyzeSource(t, "a.lua", "x = 1\n")

	tests := []struct {
		name string
		path m.Path
		line int
	}{
		{name: "empty path", path: "", line: 1},
		{name: "unknown file", path: "b.lua", line: 1},
		{name: "zero line", path: file.Path, line: 0},
		{name: "negative line", path: file.Path, line: -3},
		{name: "past the end", path: file.Path, line: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.SetLineExecuted(tt.path, tt.line)
			require.ErrorIs(t, err, m.ErrValidation)
		})
	}
}

func TestStore_SetLineCoveredImpliesExecuted(t *testing.T) {
	s, file := analyzeSource(t, "a.lua", "x = 1\ny = 2\n")

	require.NoError(t, s.SetLineCovered(file.Path, 2))
	require.NoError(t, s.SetLineCovered(file.Path, 2))

	got, _ := s.GetFileData(file.Path)
	assert.True(t, got.Lines[1].Executed)
	assert.True(t, got.Lines[1].Covered)
	assert.Equal(t, int64(1), got.Lines[1].Count)
	assert.False(t, got.Lines[0].Executed)
}

func TestStore_FunctionsAndBlocks(t *testing.T) {
	s, file := analyzeExample(t, "calc", "calc.lua")

	require.NoError(t, s.TrackFunctionExecution(file.Path, 1))
	require.NoError(t, s.TrackFunctionExecution(file.Path, 1))
	require.NoError(t, s.SetFunctionCovered(file.Path, 2))
	require.NoError(t, s.TrackBlockExecution(file.Path, 3))

	require.ErrorIs(t, s.TrackFunctionExecution(file.Path, 99), m.ErrValidation)
	require.ErrorIs(t, s.TrackBlockExecution(file.Path, 0), m.ErrValidation)
	require.ErrorIs(t, s.TrackConditionExecution(file.Path, 42, true), m.ErrValidation)

	got, _ := s.GetFileData(file.Path)
	assert.Equal(t, int64(2), got.Functions[0].Count)
	assert.False(t, got.Functions[0].Covered)
	assert.True(t, got.Functions[1].Executed)
	assert.True(t, got.Functions[1].Covered)
	assert.True(t, got.Blocks[2].Executed)
}

func TestStore_TrackConditionExecution(t *testing.T) {
	// condition ids: 1 `a and b`, 2 `a`, 3 `b`
	t.Run("false on and implies nothing", func(t *testing.T) {
		s, file := analyzeSource(t, "c.lua", "if a and b then\n  x = 1\nend\n")

		require.NoError(t, s.TrackConditionExecution(file.Path, 1, false))

		got, _ := s.GetFileData(file.Path)
		and := got.Conditions[0]
		assert.True(t, and.Executed)
		assert.Equal(t, int64(1), and.FalseCount)
		assert.Zero(t, and.TrueCount)
		assert.False(t, and.FullyCovered())

		for _, c := range got.Conditions[1:] {
			assert.False(t, c.Executed)
			assert.Zero(t, c.TrueCount+c.FalseCount)
		}
	})

	t.Run("true on and marks both components true", func(t *testing.T) {
		s, file := analyzeSource(t, "c.lua", "if a and b then\n  x = 1\nend\n")

		require.NoError(t, s.TrackConditionExecution(file.Path, 1, true))

		got, _ := s.GetFileData(file.Path)
		for _, c := range got.Conditions[1:] {
			assert.True(t, c.Executed)
			assert.Equal(t, int64(1), c.TrueCount)
			assert.True(t, c.TrueInferred)
			assert.False(t, c.FalseInferred)
		}

		assert.False(t, got.Conditions[0].TrueInferred)
	})

	t.Run("observation clears the inferred flag", func(t *testing.T) {
		s, file := analyzeSource(t, "c.lua", "if a and b then\n  x = 1\nend\n")

		require.NoError(t, s.TrackConditionExecution(file.Path, 1, true))
		require.NoError(t, s.TrackConditionExecution(file.Path, 2, true))
		require.NoError(t, s.TrackConditionExecution(file.Path, 1, true))

		got, _ := s.GetFileData(file.Path)
		assert.False(t, got.Conditions[1].TrueInferred)
		assert.Equal(t, int64(3), got.Conditions[1].TrueCount)
		assert.True(t, got.Conditions[2].TrueInferred)
	})

	t.Run("or false and nested not", func(t *testing.T) {
		// 1 `a or not b`, 2 `a`, 3 `not b`, 4 `b`
		s, file := analyzeSource(t, "c.lua", "while a or not b do\n  x = 1\nend\n")

		require.NoError(t, s.TrackConditionExecution(file.Path, 1, false))

		got, _ := s.GetFileData(file.Path)
		assert.Equal(t, int64(1), got.Conditions[1].FalseCount)
		assert.Equal(t, int64(1), got.Conditions[2].FalseCount)
		assert.Equal(t, int64(1), got.Conditions[3].TrueCount)
		assert.True(t, got.Conditions[3].TrueInferred)
	})

	t.Run("fully covered tracks both counters", func(t *testing.T) {
		s, file := analyzeSource(t, "c.lua", "if a and b then\n  x = 1\nend\n")

		steps := []struct {
			id      int
			outcome bool
		}{{1, true}, {1, false}, {3, false}, {2, false}}

		for _, step := range steps {
			require.NoError(t, s.TrackConditionExecution(file.Path, step.id, step.outcome))

			got, _ := s.GetFileData(file.Path)
			for _, c := range got.Conditions {
				assert.Equal(t, c.TrueCount > 0 && c.FalseCount > 0, c.FullyCovered())
			}
		}

		got, _ := s.GetFileData(file.Path)
		for _, c := range got.Conditions {
			assert.True(t, c.FullyCovered(), "condition %d %q", c.ID, c.Text)
		}
	})
}

func TestStore_ResetFileAndFullReset(t *testing.T) {
	s, file := analyzeExample(t, "branches", "branches.lua")

	require.NoError(t, s.SetLineCovered(file.Path, 3))
	require.NoError(t, s.TrackFunctionExecution(file.Path, 1))
	require.NoError(t, s.TrackBlockExecution(file.Path, 2))
	require.NoError(t, s.TrackConditionExecution(file.Path, 1, true))

	require.NoError(t, s.ResetFile(file.Path))

	got, ok := s.GetFileData(file.Path)
	require.True(t, ok)
	assert.False(t, got.Lines[2].Covered)
	assert.Zero(t, got.Functions[0].Count)
	assert.False(t, got.Blocks[1].Executed)
	assert.Zero(t, got.Conditions[1].TrueCount)
	assert.False(t, got.Conditions[1].TrueInferred)
	assert.Len(t, got.Functions, 1, "structure survives a reset")

	s.FullReset()
	_, ok = s.GetFileData(file.Path)
	assert.False(t, ok)
	assert.Empty(t, s.Files())
	require.ErrorIs(t, s.ResetFile(file.Path), m.ErrValidation)
}

func TestStore_GetFileDataReturnsCopy(t *testing.T) {
	s, file := analyzeSource(t, "a.lua", "x = 1\n")

	got, _ := s.GetFileData(file.Path)
	got.Lines[0].Executed = true

	again, _ := s.GetFileData(file.Path)
	assert.False(t, again.Lines[0].Executed)
}

func TestStore_AddIssueDeduplicates(t *testing.T) {
	s := NewStore(adapter.NewLocalSourceFSAdapter(), nil, NewClassifier(), nil)

	s.AddIssue(m.FileIssue{Path: "./x.lua", Kind: m.KindInstrumentation, Reason: "a"})
	s.AddIssue(m.FileIssue{Path: "x.lua", Kind: m.KindInstrumentation, Reason: "b"})
	s.AddIssue(m.FileIssue{Path: "x.lua", Kind: m.KindIO, Reason: "c"})

	assert.Len(t, s.Issues(), 2)
}

func TestStore_InitializeFileWithoutParser(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.lua")
	require.NoError(t, os.WriteFile(path, []byte("x = 1\n"), 0o644))

	s := NewStore(adapter.NewLocalSourceFSAdapter(), nil, NewClassifier(), nil)

	file, err := s.InitializeFile(m.Path(path))
	require.NoError(t, err)
	assert.False(t, file.Tracked)
	assert.Equal(t, m.Executable, file.Lines[0].Class)
}
