package domain

import (
	m "gooze.dev/pkg/luacover/internal/model"
)

// Calculator derives aggregate statistics from a Store.
type Calculator interface {
	// Compute summarizes path, or every file when path is empty. An unknown
	// path yields an empty snapshot.
	Compute(s Store, path m.Path) m.CoverageSnapshot
}

type calculator struct{}

// NewCalculator creates a Calculator.
func NewCalculator() Calculator {
	return calculator{}
}

func (calculator) Compute(s Store, path m.Path) m.CoverageSnapshot {
	paths := s.Files()
	if path != "" {
		paths = []m.Path{m.NormalizePath(path)}
	}

	var snap m.CoverageSnapshot

	for _, p := range paths {
		file, ok := s.GetFileData(p)
		if !ok {
			continue
		}

		fs := SnapshotFile(file)
		snap.Files = append(snap.Files, fs)
		snap.Lines.Add(fs.Lines)
		snap.Functions.Add(fs.Functions)
		snap.Blocks.Add(fs.Blocks)
		snap.Conditions.Add(fs.Conditions)
	}

	return snap
}

// SnapshotFile aggregates one file. Blocks count as covered once executed
// and conditions once both outcomes were seen.
func SnapshotFile(file *m.SourceFile) m.FileSnapshot {
	fs := m.FileSnapshot{
		Path:       file.Path,
		Tracked:    file.Tracked,
		LineStates: make([]m.LineState, len(file.Lines)),
	}

	for i := range file.Lines {
		rec := &file.Lines[i]
		fs.LineStates[i] = LineStateOf(rec)

		if rec.Class != m.Executable {
			continue
		}

		fs.Lines.Total++
		fs.Lines.Executed += count(rec.Executed)
		fs.Lines.Covered += count(rec.Covered)
	}

	for i := range file.Functions {
		fn := &file.Functions[i]
		fs.Functions.Total++
		fs.Functions.Executed += count(fn.Executed)
		fs.Functions.Covered += count(fn.Covered)
	}

	for i := range file.Blocks {
		executed := count(file.Blocks[i].Executed)
		fs.Blocks.Total++
		fs.Blocks.Executed += executed
		fs.Blocks.Covered += executed
	}

	for i := range file.Conditions {
		c := &file.Conditions[i]
		fs.Conditions.Total++
		fs.Conditions.Executed += count(c.Executed)
		fs.Conditions.Covered += count(c.FullyCovered())
	}

	fs.Lines.Refresh()
	fs.Functions.Refresh()
	fs.Blocks.Refresh()
	fs.Conditions.Refresh()

	return fs
}

// LineStateOf returns the four-state classification of a line.
func LineStateOf(rec *m.LineRecord) m.LineState {
	switch {
	case rec.Class != m.Executable:
		return m.LineNonExecutable
	case rec.Covered:
		return m.LineCovered
	case rec.Executed:
		return m.LineExecutedNotCovered
	}

	return m.LineNotExecuted
}

func count(ok bool) int {
	if ok {
		return 1
	}

	return 0
}
