package model

// LineState is the canonical four-state classification of a line.
type LineState string

const (
	LineNonExecutable      LineState = "non_executable"
	LineNotExecuted        LineState = "not_executed"
	LineExecutedNotCovered LineState = "executed_not_covered"
	LineCovered            LineState = "covered"
)

// Counts aggregates one entity kind. Percent is covered over total and
// ExecutedPercent executed over total, both 0 when total is 0.
type Counts struct {
	Total           int
	Executed        int
	Covered         int
	Percent         float64
	ExecutedPercent float64
}

// Add accumulates other into c and refreshes the percentages.
func (c *Counts) Add(other Counts) {
	c.Total += other.Total
	c.Executed += other.Executed
	c.Covered += other.Covered
	c.Refresh()
}

// Refresh recomputes the percentages from the counters.
func (c *Counts) Refresh() {
	c.Percent, c.ExecutedPercent = 0, 0
	if c.Total == 0 {
		return
	}

	c.Percent = float64(c.Covered) / float64(c.Total) * 100
	c.ExecutedPercent = float64(c.Executed) / float64(c.Total) * 100
}

// FileSnapshot holds the aggregates of one file.
type FileSnapshot struct {
	Path       Path
	Tracked    bool
	Lines      Counts
	Functions  Counts
	Blocks     Counts
	Conditions Counts
	LineStates []LineState // index 0 is line 1
}

// CoverageSnapshot holds per-file aggregates plus global totals.
type CoverageSnapshot struct {
	Files      []FileSnapshot
	Lines      Counts
	Functions  Counts
	Blocks     Counts
	Conditions Counts
}
