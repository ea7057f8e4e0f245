package syntax

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineIndex_Line(t *testing.T) {
	content := []byte("local a = 1\n\nprint(a)\n")
	idx, err := NewLineIndex(content)
	require.NoError(t, err)

	assert.Equal(t, 3, idx.LineCount())

	tests := []struct {
		offset int
		line   int
	}{
		{0, 1},
		{10, 1},
		{11, 1}, // newline belongs to its line
		{12, 2},
		{13, 3},
		{21, 3},
		{100, 3},
		{-4, 1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.line, idx.Line(tt.offset), "offset %d", tt.offset)
	}
}

func TestLineIndex_StartEnd(t *testing.T) {
	content := []byte("ab\ncd\nef")
	idx, err := NewLineIndex(content)
	require.NoError(t, err)

	assert.Equal(t, 0, idx.LineStart(1))
	assert.Equal(t, 2, idx.LineEnd(1))
	assert.Equal(t, 3, idx.LineStart(2))
	assert.Equal(t, 5, idx.LineEnd(2))
	assert.Equal(t, 6, idx.LineStart(3))
	assert.Equal(t, 8, idx.LineEnd(3))
	assert.Equal(t, "cd", string(content[idx.LineStart(2):idx.LineEnd(2)]))
}

func TestLineIndex_TrailingNewline(t *testing.T) {
	content := []byte("x = 1\n")
	idx, err := NewLineIndex(content)
	require.NoError(t, err)

	require.Equal(t, 1, idx.LineCount())
	assert.Equal(t, "x = 1", string(content[idx.LineStart(1):idx.LineEnd(1)]))
}

func TestLineIndex_SpanRoundTrip(t *testing.T) {
	content := []byte("a\nbb\nccc\ndddd\n")
	idx, err := NewLineIndex(content)
	require.NoError(t, err)

	span := idx.LineSpan(2, 3)
	first, last := idx.Lines(span)
	assert.Equal(t, 2, first)
	assert.Equal(t, 3, last)

	single := idx.LineSpan(4, 1)
	first, last = idx.Lines(single)
	assert.Equal(t, 4, first)
	assert.Equal(t, 4, last)
}

func TestLineIndex_Empty(t *testing.T) {
	idx, err := NewLineIndex(nil)
	require.NoError(t, err)

	assert.Equal(t, 1, idx.LineCount())
	assert.Equal(t, 1, idx.Line(0))
	assert.Equal(t, 0, idx.LineEnd(1))
}

func TestSpan_Cover(t *testing.T) {
	a := Span{Start: 4, End: 9}
	b := Span{Start: 2, End: 6}

	assert.Equal(t, Span{Start: 2, End: 9}, a.Cover(b))
	assert.False(t, a.Empty())
	assert.True(t, Span{Start: 3, End: 3}.Empty())
	assert.Equal(t, "4-9", a.String())
}
