package adapter

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	m "gooze.dev/pkg/luacover/internal/model"
)

// EventReader decodes a recorded execution trace. Each line holds
// `<kind> <line> <file>`; blank lines and lines starting with `#` are
// skipped. The file is the rest of the line and may contain spaces.
type EventReader interface {
	// ReadEvents sends every event of r to out in order. It stops at the
	// first malformed line or when ctx is done; out is not closed.
	ReadEvents(ctx context.Context, r io.Reader, out chan<- m.Event) (int, error)
}

// TraceEventReader implements EventReader for the text trace format.
type TraceEventReader struct{}

// NewTraceEventReader constructs a TraceEventReader.
func NewTraceEventReader() *TraceEventReader {
	return &TraceEventReader{}
}

func (r *TraceEventReader) ReadEvents(ctx context.Context, in io.Reader, out chan<- m.Event) (int, error) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	sent, number := 0, 0

	for scanner.Scan() {
		number++

		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		ev, err := ParseEvent(text)
		if err != nil {
			return sent, m.NewError(m.KindValidation, "", number, fmt.Errorf("trace line %d: %w", number, err))
		}

		select {
		case <-ctx.Done():
			return sent, ctx.Err()
		case out <- ev:
			sent++
		}
	}

	if err := scanner.Err(); err != nil {
		return sent, m.NewError(m.KindIO, "", number, err)
	}

	return sent, nil
}

// ParseEvent decodes one trace line.
func ParseEvent(text string) (m.Event, error) {
	fields := strings.SplitN(strings.TrimSpace(text), " ", 3)
	if len(fields) != 3 {
		return m.Event{}, fmt.Errorf("want `<kind> <line> <file>`, got %q", text)
	}

	kind, ok := m.ParseEventKind(fields[0])
	if !ok {
		return m.Event{}, fmt.Errorf("unknown event kind %q", fields[0])
	}

	line, err := strconv.Atoi(fields[1])
	if err != nil {
		return m.Event{}, fmt.Errorf("bad line number %q: %w", fields[1], err)
	}

	file := strings.TrimSpace(fields[2])
	if file == "" {
		return m.Event{}, fmt.Errorf("missing file in %q", text)
	}

	return m.Event{Kind: kind, File: m.Path(file), Line: line}, nil
}

// FormatEvent encodes ev the way ParseEvent reads it.
func FormatEvent(ev m.Event) string {
	return fmt.Sprintf("%s %d %s", ev.Kind, ev.Line, ev.File)
}
