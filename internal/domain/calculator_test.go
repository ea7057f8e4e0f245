package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "gooze.dev/pkg/luacover/internal/model"
)

func TestCalculator_ComputeFile(t *testing.T) {
	s, file := analyzeExample(t, "branches", "branches.lua")

	require.NoError(t, s.SetLineExecuted(file.Path, 2))
	require.NoError(t, s.SetLineCovered(file.Path, 14))
	require.NoError(t, s.TrackFunctionExecution(file.Path, 1))
	require.NoError(t, s.TrackBlockExecution(file.Path, 1))
	require.NoError(t, s.TrackConditionExecution(file.Path, 1, true))
	require.NoError(t, s.TrackConditionExecution(file.Path, 1, false))

	snap := NewCalculator().Compute(s, file.Path)
	require.Len(t, snap.Files, 1)

	fs := snap.Files[0]
	assert.True(t, fs.Tracked)
	assert.Equal(t, 13, fs.Lines.Total)
	assert.Equal(t, 2, fs.Lines.Executed)
	assert.Equal(t, 1, fs.Lines.Covered)
	assert.InDelta(t, 100.0/13, fs.Lines.Percent, 1e-9)
	assert.InDelta(t, 200.0/13, fs.Lines.ExecutedPercent, 1e-9)
	assert.Equal(t, m.Counts{Total: 1, Executed: 1, Covered: 0, Percent: 0, ExecutedPercent: 100}, fs.Functions)
	assert.Equal(t, 5, fs.Blocks.Total)
	assert.Equal(t, 1, fs.Blocks.Covered)
	assert.InDelta(t, 20.0, fs.Blocks.Percent, 0.001)
	assert.Equal(t, 7, fs.Conditions.Total)
	assert.Equal(t, 1, fs.Conditions.Covered, "only the and condition saw both outcomes")
	assert.Equal(t, 4, fs.Conditions.Executed)

	assert.Equal(t, m.LineNonExecutable, fs.LineStates[0])
	assert.Equal(t, m.LineExecutedNotCovered, fs.LineStates[1])
	assert.Equal(t, m.LineNotExecuted, fs.LineStates[2])
	assert.Equal(t, m.LineCovered, fs.LineStates[13])

	assert.Equal(t, fs.Lines, snap.Lines)
}

func TestCalculator_ComputeAll(t *testing.T) {
	s := newTestStore()

	_, err := s.InitializeContent("a.lua", []byte("x = 1\ny = 2\n"))
	require.NoError(t, err)
	_, err = s.InitializeContent("b.lua", []byte("-- only a comment\n"))
	require.NoError(t, err)

	require.NoError(t, s.SetLineCovered("a.lua", 1))

	snap := NewCalculator().Compute(s, "")
	require.Len(t, snap.Files, 2)
	assert.Equal(t, m.Path("a.lua"), snap.Files[0].Path)

	assert.Equal(t, 2, snap.Lines.Total)
	assert.InDelta(t, 50.0, snap.Lines.Percent, 0.001)

	empty := snap.Files[1]
	assert.Zero(t, empty.Lines.Total)
	assert.Zero(t, empty.Lines.Percent, "no division by zero")
	assert.Zero(t, snap.Functions.Percent)
}

func TestCalculator_UnknownPath(t *testing.T) {
	snap := NewCalculator().Compute(newTestStore(), "nope.lua")

	assert.Empty(t, snap.Files)
	assert.Zero(t, snap.Lines.Total)
}

func TestLineStateOf(t *testing.T) {
	tests := []struct {
		rec  m.LineRecord
		want m.LineState
	}{
		{m.LineRecord{Class: m.Comment}, m.LineNonExecutable},
		{m.LineRecord{Class: m.NonExecutable}, m.LineNonExecutable},
		{m.LineRecord{Class: m.Executable}, m.LineNotExecuted},
		{m.LineRecord{Class: m.Executable, Executed: true}, m.LineExecutedNotCovered},
		{m.LineRecord{Class: m.Executable, Executed: true, Covered: true}, m.LineCovered},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			assert.Equal(t, tt.want, LineStateOf(&tt.rec))
		})
	}
}
