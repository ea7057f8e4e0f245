// Package syntax defines the parse tree contract the analyzer consumes: a
// closed set of node kinds with byte-offset spans, plus a line index.
package syntax

import (
	"fmt"
	"sort"

	"fortio.org/safecast"
)

// Span is a half-open byte range [Start, End) in a file's content.
type Span struct {
	Start int
	End   int
}

// Empty reports whether the span covers no bytes.
func (s Span) Empty() bool {
	return s.Start >= s.End
}

// Cover returns the smallest span containing both s and other.
func (s Span) Cover(other Span) Span {
	if other.Start < s.Start {
		s.Start = other.Start
	}

	if other.End > s.End {
		s.End = other.End
	}

	return s
}

func (s Span) String() string {
	return fmt.Sprintf("%d-%d", s.Start, s.End)
}

// LineIndex maps byte offsets to 1-based line numbers and back. It is built
// once per file content.
type LineIndex struct {
	starts []uint32 // offset of the first byte of each line
	size   uint32
	eol    bool // content ends with a newline
}

// NewLineIndex scans content once and records every line start.
func NewLineIndex(content []byte) (*LineIndex, error) {
	size, err := safecast.Conv[uint32](len(content))
	if err != nil {
		return nil, fmt.Errorf("content too large: %w", err)
	}

	starts := make([]uint32, 1, len(content)/32+1)
	for i, b := range content {
		if b == '\n' && i+1 < len(content) {
			starts = append(starts, uint32(i+1))
		}
	}

	eol := len(content) > 0 && content[len(content)-1] == '\n'

	return &LineIndex{starts: starts, size: size, eol: eol}, nil
}

// LineCount returns the number of lines. Empty content has one empty line.
func (x *LineIndex) LineCount() int {
	return len(x.starts)
}

// Line returns the 1-based line holding offset. Offsets past the end map to
// the last line.
func (x *LineIndex) Line(offset int) int {
	if offset <= 0 {
		return 1
	}

	off, err := safecast.Conv[uint32](offset)
	if err != nil {
		return len(x.starts)
	}

	// largest i with starts[i] <= off
	i := sort.Search(len(x.starts), func(i int) bool { return x.starts[i] > off })

	return i
}

// LineStart returns the offset of the first byte of line.
func (x *LineIndex) LineStart(line int) int {
	if line < 1 {
		return 0
	}

	if line > len(x.starts) {
		return int(x.size)
	}

	return int(x.starts[line-1])
}

// LineEnd returns the offset just past the last byte of line, excluding the
// newline.
func (x *LineIndex) LineEnd(line int) int {
	if line < 1 {
		return 0
	}

	if line >= len(x.starts) {
		if x.eol {
			return int(x.size) - 1
		}

		return int(x.size)
	}

	return int(x.starts[line]) - 1
}

// LineSpan returns the span of the lines first..last inclusive.
func (x *LineIndex) LineSpan(first, last int) Span {
	if last < first {
		last = first
	}

	return Span{Start: x.LineStart(first), End: x.LineEnd(last)}
}

// Lines returns the first and last line touched by span.
func (x *LineIndex) Lines(span Span) (int, int) {
	end := span.End - 1
	if end < span.Start {
		end = span.Start
	}

	return x.Line(span.Start), x.Line(end)
}
