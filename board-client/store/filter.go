package store

import (
	"strings"

	"prism-board/domain"
)

// Filter narrows a board for display. The zero value matches everything.
type Filter struct {
	Priority      domain.Priority
	Query         string
	HideCompleted bool
}

func (f Filter) Empty() bool {
	return f.Priority == "" && strings.TrimSpace(f.Query) == "" && !f.HideCompleted
}

// Match reports whether t passes the filter. Query matches title or
// description, ignoring case.
func (f Filter) Match(t domain.Task) bool {
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.HideCompleted && t.Priority == domain.PriorityCompleted {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(t.Title), q) ||
		strings.Contains(strings.ToLower(t.Description), q)
}

// Apply returns a copy of b holding only matching tasks. Columns are kept even
// when empty so the board layout does not shift while filtering.
func (f Filter) Apply(b domain.Board) domain.Board {
	out := b.Clone()
	if f.Empty() {
		return out
	}
	for ci := range out.Columns {
		tasks := out.Columns[ci].Tasks[:0]
		for _, t := range out.Columns[ci].Tasks {
			if f.Match(t) {
				tasks = append(tasks, t)
			}
		}
		out.Columns[ci].Tasks = tasks
	}
	return out
}
