package domain

import "strings"

// Priority ranks how urgent a task is. Completed tasks keep a priority slot so
// boards can filter them out.
type Priority string

const (
	PriorityLow       Priority = "low"
	PriorityMedium    Priority = "medium"
	PriorityHigh      Priority = "high"
	PriorityCompleted Priority = "completed"
)

// Priorities lists every accepted value in display order.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCompleted}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCompleted:
		return true
	}
	return false
}

// ParsePriority accepts any casing and surrounding whitespace.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", Errorf(KindInvalidInput, "priority.parse", "invalid priority %q", s)
	}
	return p, nil
}
