package model

import "fmt"

// EventKind is the kind of an execution event delivered by the host.
type EventKind int

const (
	// EventLine fires when a line starts executing.
	EventLine EventKind = iota
	// EventCall fires when a function is entered.
	EventCall
	// EventReturn fires when a function returns.
	EventReturn
)

func (k EventKind) String() string {
	switch k {
	case EventLine:
		return "line"
	case EventCall:
		return "call"
	case EventReturn:
		return "return"
	}

	return fmt.Sprintf("event(%d)", int(k))
}

// ParseEventKind converts the textual form produced by String.
func ParseEventKind(s string) (EventKind, bool) {
	switch s {
	case "line":
		return EventLine, true
	case "call":
		return EventCall, true
	case "return":
		return EventReturn, true
	}

	return 0, false
}

// Event is one entry of the host's ordered execution stream.
type Event struct {
	Kind EventKind
	File Path
	Line int
}
