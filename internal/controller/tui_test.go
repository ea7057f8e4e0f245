package controller

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "gooze.dev/pkg/luacover/internal/model"
)

func TestTUI_WaitPrintsShortSummary(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	tui := NewTUI(&buf)
	ctx := context.Background()

	require.NoError(t, tui.Start(ctx, WithReportMode()))
	require.NoError(t, tui.DisplaySnapshot(ctx, sampleSnapshot()))
	tui.DisplayIssues(ctx, []m.FileIssue{{Path: "src/broken.lua", Kind: m.KindParse, Reason: "bad"}})

	assert.Empty(t, buf.String(), "nothing is shown before Wait")

	tui.Wait(ctx)
	tui.Close(ctx)

	output := buf.String()
	assert.Contains(t, output, "luacover - coverage report")
	assert.Contains(t, output, "src/calc.lua")
	assert.Contains(t, output, "src/broken.lua [parse] bad")

	tui.Wait(ctx)
	assert.Equal(t, output, buf.String(), "summary is shown once")
}

func TestTUI_AnalyzeTitleAndEmpty(t *testing.T) {
	var buf bytes.Buffer
	tui := NewTUI(&buf)
	ctx := context.Background()

	require.NoError(t, tui.Start(ctx, WithAnalyzeMode()))
	require.NoError(t, tui.DisplaySnapshot(ctx, m.CoverageSnapshot{}))
	tui.Wait(ctx)

	assert.Contains(t, buf.String(), "luacover - source analysis")
	assert.Contains(t, buf.String(), "No source files found")
}

func TestTUI_IssuesWithoutSummary(t *testing.T) {
	var buf bytes.Buffer
	tui := NewTUI(&buf)

	tui.DisplayIssues(context.Background(), []m.FileIssue{{Path: "a.lua", Kind: m.KindInstrumentation, Reason: "x"}})
	tui.DisplayText(context.Background(), "done\n")

	assert.Contains(t, buf.String(), "a.lua [instrumentation] x")
	assert.True(t, strings.HasSuffix(buf.String(), "done\n"))
}

func pagedModel(lines, height int) summaryModel {
	model := newSummaryModel(ModeReport, m.CoverageSnapshot{})
	model.lines = nil

	for i := range lines {
		model.lines = append(model.lines, fmt.Sprintf("line %d", i))
	}

	model.height = height

	return model
}

func TestSummaryModel_Pagination(t *testing.T) {
	model := pagedModel(30, 18) // 10 lines per page

	assert.True(t, model.needsPagination())
	assert.Equal(t, 10, model.itemsPerPage())
	assert.Equal(t, 20, model.maxOffset())

	press := func(sm summaryModel, keys string) summaryModel {
		next, _ := sm.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(keys)})
		return next.(summaryModel)
	}

	model = press(model, "j")
	assert.Equal(t, 1, model.offset)

	model = press(model, "d")
	assert.Equal(t, 11, model.offset)

	model = press(model, "G")
	assert.Equal(t, 20, model.offset)

	model = press(model, "d")
	assert.Equal(t, 20, model.offset, "offset is clamped")

	model = press(model, "g")
	model = press(model, "k")
	assert.Equal(t, 0, model.offset)

	view := model.View()
	assert.Contains(t, view, "line 0")
	assert.NotContains(t, view, "line 10")
	assert.Contains(t, view, "Showing 1-10 of 30")
}

func TestSummaryModel_QuitAndResize(t *testing.T) {
	model := pagedModel(30, 18)

	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	model.offset = 20
	next, _ := model.Update(tea.WindowSizeMsg{Width: 80, Height: 40})
	resized := next.(summaryModel)

	assert.False(t, resized.needsPagination())
	assert.Equal(t, 0, resized.offset)
}

func TestNewUI(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetOut(&bytes.Buffer{})

	assert.IsType(t, &TUI{}, NewUI(cmd, true))
	assert.IsType(t, &SimpleUI{}, NewUI(cmd, false))
	assert.False(t, IsTTY(&bytes.Buffer{}))
}
