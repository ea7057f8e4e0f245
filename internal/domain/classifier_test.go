package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "gooze.dev/pkg/luacover/internal/model"
)

const (
	ex = m.Executable
	ne = m.NonExecutable
	cm = m.Comment
)

func TestClassifier_ClassifyContent(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		want     []m.Classification
		warnings int
	}{
		{
			name: "block comment between code",
			src:  "local a = 1\n--[[ first\n  second\n]]\nprint(a)\n",
			want: []m.Classification{ex, cm, cm, cm, ex},
		},
		{
			name: "blank lines and line comments",
			src:  "local a = 1\n\n   \n-- note\nprint(a) -- trailing\n",
			want: []m.Classification{ex, ne, ne, cm, ex},
		},
		{
			name: "code after a closing marker",
			src:  "--[[ c\n]] local x = 1\n",
			want: []m.Classification{cm, ex},
		},
		{
			name: "close then reopen on one line",
			src:  "--[[ a ]] --[[ b\nstill comment\n]]\nx = 1\n",
			want: []m.Classification{cm, cm, cm, ex},
		},
		{
			name: "code before an opening marker",
			src:  "x = 1 --[[ begins\nends ]]\n",
			want: []m.Classification{ex, cm},
		},
		{
			name: "leveled block comment ignores shorter closers",
			src:  "--[==[\n]]\n]==]\ny = 2\n",
			want: []m.Classification{cm, cm, cm, ex},
		},
		{
			name: "markers inside strings",
			src:  "s = \"--[[\"\nt = '--'\n",
			want: []m.Classification{ex, ex},
		},
		{
			name: "long string body",
			src:  "local s = [[\nnot code\n]]\nprint(s)\n",
			want: []m.Classification{ex, ne, ne, ex},
		},
		{
			name:     "unterminated block comment",
			src:      "x = 1\n--[[ open\ny = 2\nz = 3\n",
			want:     []m.Classification{ex, cm, cm, cm},
			warnings: 1,
		},
		{
			name: "shebang",
			src:  "#!/usr/bin/env lua\nprint(1)\n",
			want: []m.Classification{cm, ex},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClassifier()

			got, warnings := c.ClassifyContent([]byte(tt.src))
			assert.Equal(t, tt.want, got)
			assert.Len(t, warnings, tt.warnings)
		})
	}
}

func TestClassifier_ClassifyLineIsIdempotent(t *testing.T) {
	content := readExample(t, "literals", "literals.lua")
	file := &m.SourceFile{Path: "literals.lua", Content: content}
	c := NewClassifier()

	first := make([]m.Classification, 0, 24)
	for line := 1; line <= 24; line++ {
		class, err := c.ClassifyLine(file, line)
		require.NoError(t, err)

		first = append(first, class)
	}

	for line := 1; line <= 24; line++ {
		class, err := c.ClassifyLine(file, line)
		require.NoError(t, err)

		if class != first[line-1] {
			t.Fatalf("line %d: second call = %v, first = %v", line, class, first[line-1])
		}
	}

	assert.Equal(t, ne, first[11], "inside a long string")
	assert.Equal(t, ex, first[10], "long string opener")
}

func TestClassifier_ClassifyLineValidation(t *testing.T) {
	c := NewClassifier()

	_, err := c.ClassifyLine(nil, 1)
	require.ErrorIs(t, err, m.ErrValidation)

	file := &m.SourceFile{Path: "a.lua", Content: []byte("x = 1\n")}

	_, err = c.ClassifyLine(file, 0)
	require.ErrorIs(t, err, m.ErrValidation)

	_, err = c.ClassifyLine(file, 2)
	require.ErrorIs(t, err, m.ErrValidation)
}

func TestClassifier_ResultsAreCopies(t *testing.T) {
	c := NewClassifier()
	src := []byte("x = 1\n")

	got, _ := c.ClassifyContent(src)
	got[0] = m.Comment

	again, _ := c.ClassifyContent(src)
	assert.Equal(t, m.Executable, again[0])
}
