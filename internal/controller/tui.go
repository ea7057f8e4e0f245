package controller

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	m "gooze.dev/pkg/luacover/internal/model"
)

const boxWidth = 64

// TUI implements UI using Bubble Tea. Short summaries are printed; long
// ones open a pager that Wait keeps on screen until the user quits.
type TUI struct {
	output io.Writer
	config StartConfig
	model  *summaryModel
}

// NewTUI creates a new TUI.
func NewTUI(output io.Writer) *TUI {
	return &TUI{output: output}
}

// Start initializes the UI.
func (t *TUI) Start(ctx context.Context, options ...StartOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.config = newStartConfig(options...)
	t.model = nil

	return nil
}

// Close drops the pending summary.
func (t *TUI) Close(_ context.Context) {
	t.model = nil
}

// DisplaySnapshot prepares the summary shown by Wait.
func (t *TUI) DisplaySnapshot(ctx context.Context, snap m.CoverageSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	model := newSummaryModel(t.config.mode, snap)
	t.model = &model

	return nil
}

// DisplayIssues appends issues to the pending summary.
func (t *TUI) DisplayIssues(ctx context.Context, issues []m.FileIssue) {
	if err := ctx.Err(); err != nil || len(issues) == 0 {
		return
	}

	if t.model == nil {
		_, _ = fmt.Fprint(t.output, strings.Join(issueLines(issues), "\n")+"\n")
		return
	}

	t.model.lines = append(t.model.lines, issueLines(issues)...)
}

// DisplayText prints text as is.
func (t *TUI) DisplayText(ctx context.Context, text string) {
	if err := ctx.Err(); err != nil {
		return
	}

	_, _ = fmt.Fprint(t.output, text)
}

// Wait shows the pending summary and blocks while the pager is open.
func (t *TUI) Wait(ctx context.Context) {
	if err := ctx.Err(); err != nil || t.model == nil {
		return
	}

	model := *t.model
	t.model = nil

	if f, ok := t.output.(*os.File); ok {
		width, height, err := term.GetSize(int(f.Fd()))
		if err == nil {
			model.width = width
			model.height = height
		}
	}

	if !model.needsPagination() {
		_, _ = fmt.Fprint(t.output, model.View())
		return
	}

	program := tea.NewProgram(model, tea.WithOutput(t.output), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil {
		_, _ = fmt.Fprint(t.output, model.View())
	}
}

func issueLines(issues []m.FileIssue) []string {
	warn := lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	lines := []string{"", "  Issues:"}
	for _, issue := range issues {
		lines = append(lines, fmt.Sprintf("  %s %s [%s] %s", warn.Render("!"), issue.Path, issue.Kind, issue.Reason))
	}

	return lines
}

type keyMap struct {
	up, down, pageUp, pageDown, top, bottom, quit key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:       key.NewBinding(key.WithKeys("up", "k")),
		down:     key.NewBinding(key.WithKeys("down", "j")),
		pageUp:   key.NewBinding(key.WithKeys("pgup", "u")),
		pageDown: key.NewBinding(key.WithKeys("pgdown", "d")),
		top:      key.NewBinding(key.WithKeys("home", "g")),
		bottom:   key.NewBinding(key.WithKeys("end", "G")),
		quit:     key.NewBinding(key.WithKeys("q", "esc", "ctrl+c")),
	}
}

// summaryModel pages through the rendered summary lines.
type summaryModel struct {
	title  string
	lines  []string
	keys   keyMap
	height int
	width  int
	offset int
}

func newSummaryModel(mode StartMode, snap m.CoverageSnapshot) summaryModel {
	title := "luacover - coverage report"
	if mode == ModeAnalyze {
		title = "luacover - source analysis"
	}

	var lines []string
	if len(snap.Files) == 0 {
		lines = []string{"  No source files found"}
	} else {
		table := strings.TrimRight(renderSnapshotTable(snap, mode), "\n")
		lines = strings.Split(table, "\n")
	}

	return summaryModel{title: title, lines: lines, keys: newKeyMap()}
}

func (sm summaryModel) Init() tea.Cmd {
	return nil
}

func (sm summaryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		sm.width = msg.Width
		sm.height = msg.Height
		sm.offset = min(sm.offset, sm.maxOffset())

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, sm.keys.quit):
			return sm, tea.Quit
		case key.Matches(msg, sm.keys.down):
			sm.offset = min(sm.offset+1, sm.maxOffset())
		case key.Matches(msg, sm.keys.up):
			sm.offset = max(sm.offset-1, 0)
		case key.Matches(msg, sm.keys.pageDown):
			sm.offset = min(sm.offset+sm.itemsPerPage(), sm.maxOffset())
		case key.Matches(msg, sm.keys.pageUp):
			sm.offset = max(sm.offset-sm.itemsPerPage(), 0)
		case key.Matches(msg, sm.keys.top):
			sm.offset = 0
		case key.Matches(msg, sm.keys.bottom):
			sm.offset = sm.maxOffset()
		}
	}

	return sm, nil
}

// itemsPerPage leaves room for the header box and the footer.
func (sm summaryModel) itemsPerPage() int {
	if sm.height == 0 {
		return 10
	}

	const reserved = 8

	return max(sm.height-reserved, 1)
}

func (sm summaryModel) maxOffset() int {
	return max(len(sm.lines)-sm.itemsPerPage(), 0)
}

func (sm summaryModel) needsPagination() bool {
	return sm.height > 0 && len(sm.lines) > sm.itemsPerPage()
}

func (sm summaryModel) View() string {
	var b strings.Builder

	sm.renderHeader(&b)

	paged := sm.needsPagination()

	start, end := 0, len(sm.lines)
	if paged {
		start = sm.offset
		end = min(start+sm.itemsPerPage(), len(sm.lines))
	}

	clip := lipgloss.NewStyle()
	if sm.width > 0 {
		clip = clip.MaxWidth(sm.width)
	}

	for _, line := range sm.lines[start:end] {
		b.WriteString(clip.Render(line))
		b.WriteString("\n")
	}

	if paged {
		faint := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
		b.WriteString("\n")
		fmt.Fprintf(&b, "  Showing %d-%d of %d\n", start+1, end, len(sm.lines))
		b.WriteString(faint.Render("  ↑/k up • ↓/j down • g/G top/bottom • q quit"))
		b.WriteString("\n")
	}

	return b.String()
}

func (sm summaryModel) renderHeader(b *strings.Builder) {
	titleStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)

	pad := max(boxWidth-runewidth.StringWidth(sm.title), 0)
	left := pad / 2

	b.WriteString("╔" + strings.Repeat("═", boxWidth) + "╗\n")
	b.WriteString("║" + strings.Repeat(" ", left) + titleStyle.Render(sm.title) + strings.Repeat(" ", pad-left) + "║\n")
	b.WriteString("╚" + strings.Repeat("═", boxWidth) + "╝\n\n")
}
