package controller

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	m "gooze.dev/pkg/luacover/internal/model"
)

// SimpleUI implements UI using cobra Command's output writer.
type SimpleUI struct {
	cmd    *cobra.Command
	config StartConfig
}

// NewSimpleUI creates a new SimpleUI.
func NewSimpleUI(cmd *cobra.Command) *SimpleUI {
	return &SimpleUI{cmd: cmd}
}

// Start initializes the UI.
func (s *SimpleUI) Start(ctx context.Context, options ...StartOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.config = newStartConfig(options...)

	return nil
}

// Close finalizes the UI.
func (s *SimpleUI) Close(ctx context.Context) {
	if err := ctx.Err(); err != nil {
		return
	}
}

// Wait blocks until the UI is closed (no-op for SimpleUI).
func (s *SimpleUI) Wait(ctx context.Context) {
	if err := ctx.Err(); err != nil {
		return
	}
}

// DisplaySnapshot prints the per-file table and the totals.
func (s *SimpleUI) DisplaySnapshot(ctx context.Context, snap m.CoverageSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if len(snap.Files) == 0 {
		s.printf("No source files found\n")
		return nil
	}

	s.printf("\n%s", renderSnapshotTable(snap, s.config.mode))

	return nil
}

// DisplayIssues lists the files that fell back or failed analysis.
func (s *SimpleUI) DisplayIssues(ctx context.Context, issues []m.FileIssue) {
	if err := ctx.Err(); err != nil {
		return
	}

	if len(issues) == 0 {
		return
	}

	s.printf("\nIssues:\n")

	for _, issue := range issues {
		s.printf("  %s [%s] %s\n", issue.Path, issue.Kind, issue.Reason)
	}
}

// DisplayText prints text as is.
func (s *SimpleUI) DisplayText(ctx context.Context, text string) {
	if err := ctx.Err(); err != nil {
		return
	}

	s.printf("%s", text)
}

func (s *SimpleUI) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.cmd.OutOrStdout(), format, args...)
}
