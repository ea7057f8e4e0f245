// Package controller provides output adapters for displaying coverage results.
package controller

import (
	"context"

	m "gooze.dev/pkg/luacover/internal/model"
)

// StartMode defines the mode of operation for the UI.
type StartMode int

// Available StartMode values.
const (
	// ModeReport shows executed and covered percentages.
	ModeReport StartMode = iota
	// ModeAnalyze shows the static totals of each file.
	ModeAnalyze
)

// StartOption is a functional option for Start method.
type StartOption func(*StartConfig)

// StartConfig holds configuration for starting the UI.
type StartConfig struct {
	mode StartMode
}

// WithReportMode sets the UI to coverage report mode.
func WithReportMode() StartOption {
	return func(c *StartConfig) {
		c.mode = ModeReport
	}
}

// WithAnalyzeMode sets the UI to static analysis mode.
func WithAnalyzeMode() StartOption {
	return func(c *StartConfig) {
		c.mode = ModeAnalyze
	}
}

func newStartConfig(options ...StartOption) StartConfig {
	var cfg StartConfig
	for _, opt := range options {
		opt(&cfg)
	}

	return cfg
}

// UI defines the interface for displaying coverage summaries.
// Implementations can use different output methods (simple text, TUI, etc).
type UI interface {
	Start(ctx context.Context, options ...StartOption) error
	Close(ctx context.Context)
	Wait(ctx context.Context) // Wait for UI to finish (user closes it)
	DisplaySnapshot(ctx context.Context, snap m.CoverageSnapshot) error
	DisplayIssues(ctx context.Context, issues []m.FileIssue)
	DisplayText(ctx context.Context, text string)
}
