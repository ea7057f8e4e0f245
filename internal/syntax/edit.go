package syntax

import (
	"bytes"
	"fmt"
	"sort"
)

// Edit collects insertions into a file and applies them in one pass.
// Inserted lines are placed around existing lines; inserted text goes at
// byte offsets. Existing bytes are never removed.
type Edit struct {
	index *LineIndex
	size  int
	ops   []insertion
}

// insertion order at one offset: head text, lines appended after the
// previous line, lines prepended before the next one, then inline text.
const (
	orderHead = iota
	orderAppend
	orderPrepend
	orderInline
)

type insertion struct {
	offset int
	order  int
	seq    int
	text   string
}

// NewEdit starts an edit of content.
func NewEdit(content []byte, index *LineIndex) *Edit {
	return &Edit{index: index, size: len(content)}
}

func (e *Edit) add(offset, order int, text string) {
	e.ops = append(e.ops, insertion{offset: offset, order: order, seq: len(e.ops), text: text})
}

// Insert places text at offset.
func (e *Edit) Insert(offset int, text string) {
	e.add(offset, orderInline, text)
}

// Head places text at offset ahead of every other insertion there.
func (e *Edit) Head(offset int, text string) {
	e.add(offset, orderHead, text)
}

// Prepend places a new line holding text before line.
func (e *Edit) Prepend(line int, text string) {
	e.add(e.index.LineStart(line), orderPrepend, text+"\n")
}

// Append places a new line holding text after line.
func (e *Edit) Append(line int, text string) {
	end := e.index.LineEnd(line)
	if end < e.size {
		e.add(end+1, orderAppend, text+"\n")
		return
	}

	e.add(end, orderAppend, "\n"+text)
}

// Len returns the number of insertions.
func (e *Edit) Len() int {
	return len(e.ops)
}

// Apply returns content with every insertion applied.
func (e *Edit) Apply(content []byte) ([]byte, error) {
	if len(content) != e.size {
		return nil, fmt.Errorf("edit prepared for %d bytes, got %d", e.size, len(content))
	}

	ops := append([]insertion(nil), e.ops...)
	sort.SliceStable(ops, func(i, j int) bool {
		if ops[i].offset != ops[j].offset {
			return ops[i].offset < ops[j].offset
		}

		if ops[i].order != ops[j].order {
			return ops[i].order < ops[j].order
		}

		return ops[i].seq < ops[j].seq
	})

	var out bytes.Buffer
	out.Grow(len(content) + 32*len(ops))

	cursor := 0

	for _, op := range ops {
		if op.offset < cursor || op.offset > len(content) {
			return nil, fmt.Errorf("bad insertion offset %d", op.offset)
		}

		out.Write(content[cursor:op.offset])
		out.WriteString(op.text)
		cursor = op.offset
	}

	out.Write(content[cursor:])

	return out.Bytes(), nil
}

// Indent returns the leading whitespace of line.
func Indent(content []byte, index *LineIndex, line int) string {
	start, end := index.LineStart(line), index.LineEnd(line)

	i := start
	for i < end && (content[i] == ' ' || content[i] == '\t') {
		i++
	}

	return string(content[start:i])
}
