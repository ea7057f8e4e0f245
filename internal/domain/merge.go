package domain

import (
	"log/slog"
	"sort"

	m "gooze.dev/pkg/luacover/internal/model"
)

// RawDataOf serializes the store. runs names the tracker instances whose
// results the store holds.
func RawDataOf(s Store, runs ...string) m.RawData {
	raw := m.RawData{Version: m.RawDataVersion, Runs: sortedUnique(runs), Issues: s.Issues()}

	for _, path := range s.Files() {
		file, ok := s.GetFileData(path)
		if !ok {
			continue
		}

		raw.Files = append(raw.Files, m.FileData{
			Path:       file.Path,
			Hash:       file.Hash,
			Tracked:    file.Tracked,
			Strategy:   file.Strategy,
			Lines:      file.Lines,
			Functions:  file.Functions,
			Blocks:     file.Blocks,
			Conditions: file.Conditions,
		})
	}

	return raw
}

// SnapshotRaw aggregates serialized data the way Calculator does for a store.
func SnapshotRaw(raw m.RawData) m.CoverageSnapshot {
	var snap m.CoverageSnapshot

	for i := range raw.Files {
		fd := &raw.Files[i]
		fs := SnapshotFile(&m.SourceFile{
			Path:      fd.Path,
			Hash:      fd.Hash,
			LineCount: len(fd.Lines),
			Lines:     fd.Lines,
			CodeMap: m.CodeMap{
				Functions:  fd.Functions,
				Blocks:     fd.Blocks,
				Conditions: fd.Conditions,
			},
			Tracked:  fd.Tracked,
			Strategy: fd.Strategy,
		})

		snap.Files = append(snap.Files, fs)
		snap.Lines.Add(fs.Lines)
		snap.Functions.Add(fs.Functions)
		snap.Blocks.Add(fs.Blocks)
		snap.Conditions.Add(fs.Conditions)
	}

	return snap
}

// Merge combines the results of two runs: flags are OR-ed and counts
// summed. Inputs sharing a run id hold the same history, so their counts
// are combined with max instead, which makes Merge(s, s) equal s.
// Records are matched by file path and id; a file whose content hash
// differs keeps a's structure and drops b's records.
func Merge(a, b m.RawData) m.RawData {
	combine := sum
	if sharesHistory(a.Runs, b.Runs) {
		combine = maxOf
	}

	out := m.RawData{
		Version: m.RawDataVersion,
		Runs:    sortedUnique(append(append([]string(nil), a.Runs...), b.Runs...)),
	}

	byPath := make(map[m.Path]m.FileData, len(a.Files))
	for _, fd := range a.Files {
		byPath[fd.Path] = cloneData(fd)
	}

	for _, fd := range b.Files {
		existing, ok := byPath[fd.Path]
		if !ok {
			byPath[fd.Path] = cloneData(fd)
			continue
		}

		if existing.Hash != fd.Hash {
			slog.Warn("content changed between runs, keeping first", "path", fd.Path)
			continue
		}

		byPath[fd.Path] = mergeFile(existing, fd, combine)
	}

	for _, fd := range byPath {
		out.Files = append(out.Files, fd)
	}

	sort.Slice(out.Files, func(i, j int) bool { return out.Files[i].Path < out.Files[j].Path })

	out.Issues = mergeIssues(a.Issues, b.Issues)

	return out
}

// mergeIssues keeps one issue per path and kind, first input first.
func mergeIssues(a, b []m.FileIssue) []m.FileIssue {
	type key struct {
		path m.Path
		kind m.ErrorKind
	}

	var out []m.FileIssue

	seen := make(map[key]bool, len(a)+len(b))

	for _, issue := range append(append([]m.FileIssue(nil), a...), b...) {
		k := key{issue.Path, issue.Kind}
		if seen[k] {
			continue
		}

		seen[k] = true
		out = append(out, issue)
	}

	return out
}

func mergeFile(a, b m.FileData, combine func(x, y int64) int64) m.FileData {
	a.Tracked = a.Tracked || b.Tracked
	if a.Strategy == "" {
		a.Strategy = b.Strategy
	}

	for i := range a.Lines {
		if i >= len(b.Lines) {
			break
		}

		x, y := &a.Lines[i], b.Lines[i]
		x.Executed = x.Executed || y.Executed
		x.Covered = x.Covered || y.Covered
		x.Count = combine(x.Count, y.Count)
	}

	for i := range a.Functions {
		if i >= len(b.Functions) {
			break
		}

		x, y := &a.Functions[i], b.Functions[i]
		x.Executed = x.Executed || y.Executed
		x.Covered = x.Covered || y.Covered
		x.Count = combine(x.Count, y.Count)
	}

	for i := range a.Blocks {
		if i >= len(b.Blocks) {
			break
		}

		x, y := &a.Blocks[i], b.Blocks[i]
		x.Executed = x.Executed || y.Executed
		x.Count = combine(x.Count, y.Count)
	}

	for i := range a.Conditions {
		if i >= len(b.Conditions) {
			break
		}

		x, y := &a.Conditions[i], b.Conditions[i]
		trueSeen := observed(x.TrueCount, x.TrueInferred) || observed(y.TrueCount, y.TrueInferred)
		falseSeen := observed(x.FalseCount, x.FalseInferred) || observed(y.FalseCount, y.FalseInferred)

		x.Executed = x.Executed || y.Executed
		x.TrueCount = combine(x.TrueCount, y.TrueCount)
		x.FalseCount = combine(x.FalseCount, y.FalseCount)
		x.TrueInferred = x.TrueCount > 0 && !trueSeen
		x.FalseInferred = x.FalseCount > 0 && !falseSeen
	}

	return a
}

func observed(n int64, inferred bool) bool {
	return n > 0 && !inferred
}

func cloneData(fd m.FileData) m.FileData {
	fd.Lines = append([]m.LineRecord(nil), fd.Lines...)
	fd.Functions = append([]m.FunctionRecord(nil), fd.Functions...)
	fd.Blocks = append([]m.BlockRecord(nil), fd.Blocks...)
	fd.Conditions = append([]m.ConditionRecord(nil), fd.Conditions...)

	return fd
}

// sharesHistory reports whether two run sets overlap. Two anonymous inputs
// are treated as the same history.
func sharesHistory(a, b []string) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}

	seen := make(map[string]bool, len(a))
	for _, r := range a {
		seen[r] = true
	}

	for _, r := range b {
		if seen[r] {
			return true
		}
	}

	return false
}

func sortedUnique(runs []string) []string {
	if len(runs) == 0 {
		return nil
	}

	out := append([]string(nil), runs...)
	sort.Strings(out)

	n := 0
	for _, r := range out {
		if r == "" || (n > 0 && r == out[n-1]) {
			continue
		}

		out[n] = r
		n++
	}

	return out[:n]
}

func sum(x, y int64) int64 { return x + y }

func maxOf(x, y int64) int64 { return max(x, y) }
