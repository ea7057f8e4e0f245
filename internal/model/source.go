// Package model defines the data structures for source coverage tracking.
package model

import (
	"path/filepath"
	"strings"
)

// Path represents a file system path.
type Path string

// NormalizePath returns the canonical key used to index files: cleaned and
// slash separated so the same file reached via different spellings maps to
// one record.
func NormalizePath(path Path) Path {
	p := strings.TrimSpace(string(path))
	if p == "" {
		return ""
	}

	return Path(filepath.ToSlash(filepath.Clean(p)))
}

// Strategy selects how a file's execution is observed.
type Strategy string

const (
	// StrategyInstrument rewrites the source so it reports its own execution.
	StrategyInstrument Strategy = "instrument"
	// StrategyHook observes execution through runtime events without rewriting.
	StrategyHook Strategy = "hook"
)

// ParseStrategy converts a configuration value into a Strategy.
func ParseStrategy(value string) (Strategy, bool) {
	switch Strategy(strings.ToLower(strings.TrimSpace(value))) {
	case StrategyInstrument:
		return StrategyInstrument, true
	case StrategyHook:
		return StrategyHook, true
	}

	return "", false
}

// CodeMap is the static structure of one file: its functions, blocks and
// conditions, plus the statement layout the trackers rely on.
type CodeMap struct {
	Functions  []FunctionRecord
	Blocks     []BlockRecord
	Conditions []ConditionRecord

	// StatementLines holds the lines on which a statement begins.
	StatementLines map[int]bool
	// ReturnSpans holds [start, end] line ranges of return statements.
	ReturnSpans [][2]int
	// Guards maps the first line of a guard expression to its guard.
	Guards map[int]Guard
	// Entries maps a line to the blocks entered when it executes.
	Entries map[int][]int
	// Continuations maps a statement's first line to the other lines it
	// spans, excluding nested function bodies.
	Continuations map[int][]int
	// FunctionOffsets maps the offset of each `function` keyword to the id
	// of the function it opens.
	FunctionOffsets map[int]int
}

// Guard describes a condition controlling an if clause or a loop. The
// outcome is decided by the first line reached after the header.
type Guard struct {
	ConditionID int
	BlockID     int // block whose body the guard controls
	HeaderStart int
	HeaderEnd   int
	BodyStart   int
	BodyEnd     int
	// Repeat guards loop back into the body when they are false.
	Repeat bool
}

// SourceFile is a single analyzed file. It owns every record created for it;
// record ids are local to the file and start at 1.
type SourceFile struct {
	Path      Path
	Hash      string
	Content   []byte
	LineCount int

	Lines []LineRecord // index 0 is line 1
	CodeMap

	// Tracked is false when analysis failed and the file only counts lines.
	Tracked  bool
	Strategy Strategy
}

// Line returns the record for a 1-based line number.
func (f *SourceFile) Line(number int) (*LineRecord, bool) {
	if f == nil || number < 1 || number > len(f.Lines) {
		return nil, false
	}

	return &f.Lines[number-1], true
}

// Function returns the function record with the given id.
func (f *SourceFile) Function(id int) (*FunctionRecord, bool) {
	if f == nil || id < 1 || id > len(f.Functions) {
		return nil, false
	}

	return &f.Functions[id-1], true
}

// Block returns the block record with the given id.
func (f *SourceFile) Block(id int) (*BlockRecord, bool) {
	if f == nil || id < 1 || id > len(f.Blocks) {
		return nil, false
	}

	return &f.Blocks[id-1], true
}

// Condition returns the condition record with the given id.
func (f *SourceFile) Condition(id int) (*ConditionRecord, bool) {
	if f == nil || id < 1 || id > len(f.Conditions) {
		return nil, false
	}

	return &f.Conditions[id-1], true
}

// InReturn reports whether the line lies inside a return statement.
func (f *SourceFile) InReturn(line int) bool {
	for _, span := range f.ReturnSpans {
		if line >= span[0] && line <= span[1] {
			return true
		}
	}

	return false
}

// FunctionAt returns the function declared on line. When several start
// there, the last one spanning more than its first line wins, as that is the
// one whose body continues below.
func (f *SourceFile) FunctionAt(line int) (*FunctionRecord, bool) {
	if f == nil {
		return nil, false
	}

	var found *FunctionRecord

	for i := range f.Functions {
		fn := &f.Functions[i]
		if fn.StartLine != line {
			continue
		}

		if found == nil || fn.EndLine > line || found.EndLine == line {
			found = fn
		}
	}

	return found, found != nil
}

// FileIssue records why a file could not be analyzed, instrumented or read.
type FileIssue struct {
	Path   Path      `yaml:"path"`
	Kind   ErrorKind `yaml:"kind"`
	Reason string    `yaml:"reason"`
}

// Clone copies the file so its mutable record fields can be read while
// tracking continues. The static layout is shared.
func (f *SourceFile) Clone() *SourceFile {
	if f == nil {
		return nil
	}

	out := *f
	out.Lines = append([]LineRecord(nil), f.Lines...)
	out.Functions = append([]FunctionRecord(nil), f.Functions...)
	out.Blocks = append([]BlockRecord(nil), f.Blocks...)
	out.Conditions = append([]ConditionRecord(nil), f.Conditions...)

	return &out
}
