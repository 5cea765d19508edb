package domain

import (
	"strings"
	"unicode/utf8"
)

const (
	MaxTitleLen       = 100
	MaxDescriptionLen = 2000
)

func trimTitle(s string) string { return strings.TrimSpace(s) }

func validateTitle(op, title string) error {
	title = trimTitle(title)
	if title == "" {
		return E(KindInvalidInput, op, "title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLen {
		return Errorf(KindInvalidInput, op, "title must be <= %d characters", MaxTitleLen)
	}
	return nil
}

// NewBoard is the payload used to create a board.
type NewBoard struct {
	Title string     `json:"title"`
	Image BoardImage `json:"image"`
}

func (n NewBoard) Normalize() NewBoard {
	n.Title = trimTitle(n.Title)
	return n
}

func (n NewBoard) Validate() error {
	return validateTitle("board.create", n.Title)
}

// NewColumn is the payload used to create a column.
type NewColumn struct {
	Title   string `json:"title"`
	BoardID string `json:"boardId"`
}

func (n NewColumn) Normalize() NewColumn {
	n.Title = trimTitle(n.Title)
	return n
}

func (n NewColumn) Validate() error {
	const op = "column.create"
	if err := validateTitle(op, n.Title); err != nil {
		return err
	}
	if n.BoardID == "" {
		return E(KindInvalidInput, op, "boardId is required")
	}
	return nil
}

// ColumnPatch carries a partial column update. Nil fields are left unchanged.
type ColumnPatch struct {
	Title *string `json:"title,omitempty"`
	Order *int    `json:"order,omitempty"`
}

func (p ColumnPatch) Empty() bool { return p.Title == nil && p.Order == nil }

func (p ColumnPatch) Validate() error {
	const op = "column.patch"
	if p.Empty() {
		return E(KindInvalidInput, op, "no fields to update")
	}
	if p.Title != nil {
		if err := validateTitle(op, *p.Title); err != nil {
			return err
		}
	}
	if p.Order != nil && *p.Order < 0 {
		return E(KindInvalidInput, op, "order must not be negative")
	}
	return nil
}

// Normalize trims the title when one is set.
func (p ColumnPatch) Normalize() ColumnPatch {
	if p.Title != nil {
		t := trimTitle(*p.Title)
		p.Title = &t
	}
	return p
}

// Normalize trims the title of patches, leaving nil fields untouched.
func (p TaskPatch) Normalize() TaskPatch {
	if p.Title != nil {
		t := trimTitle(*p.Title)
		p.Title = &t
	}
	return p
}
