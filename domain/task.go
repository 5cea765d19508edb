package domain

import "time"

// Task represents a single unit of work belonging to exactly one column.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Priority    Priority  `json:"priority"`
	CreatorName string    `json:"creatorName,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	ColumnID    string    `json:"columnId"`
	Order       int       `json:"order"`
}

// TaskPatch carries a partial task update. Nil fields are left unchanged.
type TaskPatch struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Priority    *Priority `json:"priority,omitempty"`
	ColumnID    *string   `json:"columnId,omitempty"`
	Order       *int      `json:"order,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Priority == nil && p.ColumnID == nil && p.Order == nil
}

// Moves reports whether the patch changes the task position.
func (p TaskPatch) Moves() bool {
	return p.ColumnID != nil || p.Order != nil
}

// ApplyFields copies the non-positional fields of the patch onto t.
func (p TaskPatch) ApplyFields(t Task) Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	return t
}

// Validate checks the values the patch sets.
func (p TaskPatch) Validate() error {
	const op = "task.patch"
	if p.Empty() {
		return E(KindInvalidInput, op, "no fields to update")
	}
	if p.Title != nil {
		if err := validateTitle(op, *p.Title); err != nil {
			return err
		}
	}
	if p.Description != nil && len(*p.Description) > MaxDescriptionLen {
		return Errorf(KindInvalidInput, op, "description must be <= %d characters", MaxDescriptionLen)
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return Errorf(KindInvalidInput, op, "invalid priority %q", *p.Priority)
	}
	if p.ColumnID != nil && *p.ColumnID == "" {
		return E(KindInvalidInput, op, "columnId must not be empty")
	}
	if p.Order != nil && *p.Order < 0 {
		return E(KindInvalidInput, op, "order must not be negative")
	}
	return nil
}

// NewTask is the payload used to create a task.
type NewTask struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	ColumnID    string   `json:"columnId"`
	Priority    Priority `json:"priority,omitempty"`
	CreatorName string   `json:"creatorName,omitempty"`
}

// Normalize trims the title and fills in the default priority.
func (n NewTask) Normalize() NewTask {
	n.Title = trimTitle(n.Title)
	if n.Priority == "" {
		n.Priority = PriorityMedium
	}
	return n
}

// Validate reports the first invalid field of the payload.
func (n NewTask) Validate() error {
	const op = "task.create"
	if err := validateTitle(op, n.Title); err != nil {
		return err
	}
	if n.ColumnID == "" {
		return E(KindInvalidInput, op, "columnId is required")
	}
	if len(n.Description) > MaxDescriptionLen {
		return Errorf(KindInvalidInput, op, "description must be <= %d characters", MaxDescriptionLen)
	}
	if n.Priority != "" && !n.Priority.Valid() {
		return Errorf(KindInvalidInput, op, "invalid priority %q", n.Priority)
	}
	return nil
}
