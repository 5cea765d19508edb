package store

import (
	"prism-board/domain"
)

// Action is a single change to a board snapshot. Optimistic mutations and
// server confirmations are expressed with the same actions.
type Action interface {
	action()
}

// Load replaces the whole snapshot.
type Load struct{ Board domain.Board }

// MoveTask moves a task to Index of column ColumnID.
type MoveTask struct {
	TaskID   string
	ColumnID string
	Index    int
}

// UpsertTask inserts a task or replaces the task with the same id, wherever it is.
type UpsertTask struct{ Task domain.Task }

// PatchTask applies a partial update. A patch that sets ColumnID or Order is a move.
type PatchTask struct {
	TaskID string
	Patch  domain.TaskPatch
}

type RemoveTask struct{ TaskID string }

// UpsertColumn inserts a column or updates title and order of an existing one.
// Tasks of an existing column are kept.
type UpsertColumn struct{ Column domain.Column }

type PatchColumn struct {
	ColumnID string
	Patch    domain.ColumnPatch
}

type MoveColumn struct {
	ColumnID string
	Index    int
}

// RemoveColumn removes a column together with its tasks.
type RemoveColumn struct{ ColumnID string }

func (Load) action()         {}
func (MoveTask) action()     {}
func (UpsertTask) action()   {}
func (PatchTask) action()    {}
func (RemoveTask) action()   {}
func (UpsertColumn) action() {}
func (PatchColumn) action()  {}
func (MoveColumn) action()   {}
func (RemoveColumn) action() {}

// Reduce returns the board that results from applying a to b. The input board
// is never modified; on error the returned board is the unchanged input.
func Reduce(b domain.Board, a Action) (domain.Board, error) {
	if l, ok := a.(Load); ok {
		return sanitize(l.Board), nil
	}
	out := b.Clone()
	var err error
	switch a := a.(type) {
	case MoveTask:
		err = moveTask(&out, a.TaskID, a.ColumnID, a.Index)
	case UpsertTask:
		err = upsertTask(&out, a.Task)
	case PatchTask:
		err = patchTask(&out, a.TaskID, a.Patch)
	case RemoveTask:
		err = removeTask(&out, a.TaskID)
	case UpsertColumn:
		upsertColumn(&out, a.Column)
	case PatchColumn:
		err = patchColumn(&out, a.ColumnID, a.Patch)
	case MoveColumn:
		err = moveColumn(&out, a.ColumnID, a.Index)
	case RemoveColumn:
		err = removeColumn(&out, a.ColumnID)
	default:
		err = domain.Errorf(domain.KindInternal, "store.reduce", "unknown action %T", a)
	}
	if err != nil {
		return b, err
	}
	return out, nil
}

// sanitize copies a board received from the server into store shape: sorted,
// no duplicate column or task ids, every task stamped with its column.
func sanitize(in domain.Board) domain.Board {
	b := in.Clone()
	seenCols := make(map[string]struct{}, len(b.Columns))
	seenTasks := make(map[string]struct{})
	cols := b.Columns[:0]
	for _, c := range b.Columns {
		if _, dup := seenCols[c.ID]; dup {
			continue
		}
		seenCols[c.ID] = struct{}{}
		tasks := c.Tasks[:0]
		for _, t := range c.Tasks {
			if _, dup := seenTasks[t.ID]; dup {
				continue
			}
			seenTasks[t.ID] = struct{}{}
			tasks = append(tasks, t)
		}
		c.Tasks = tasks
		cols = append(cols, c)
	}
	b.Columns = cols
	b.Normalize()
	return b
}

func notFound(op, what, id string) error {
	return domain.Errorf(domain.KindNotFound, op, "%s %s not found", what, id)
}

func takeTask(b *domain.Board, id string) (domain.Task, int, bool) {
	ci, ti, ok := b.FindTask(id)
	if !ok {
		return domain.Task{}, -1, false
	}
	col := &b.Columns[ci]
	t := col.Tasks[ti]
	col.Tasks = append(col.Tasks[:ti:ti], col.Tasks[ti+1:]...)
	return t, ci, true
}

func moveTask(b *domain.Board, taskID, columnID string, index int) error {
	const op = "store.move_task"
	target := b.ColumnIndex(columnID)
	if target < 0 {
		return notFound(op, "column", columnID)
	}
	t, from, ok := takeTask(b, taskID)
	if !ok {
		return notFound(op, "task", taskID)
	}
	t.ColumnID = columnID
	col := &b.Columns[target]
	col.Tasks = domain.InsertTask(col.Tasks, t, index)
	domain.RenumberTasks(col.Tasks)
	if from != target {
		domain.RenumberTasks(b.Columns[from].Tasks)
	}
	return nil
}

func upsertTask(b *domain.Board, t domain.Task) error {
	const op = "store.upsert_task"
	target := b.ColumnIndex(t.ColumnID)
	if target < 0 {
		return notFound(op, "column", t.ColumnID)
	}
	takeTask(b, t.ID)
	col := &b.Columns[target]
	col.Tasks = append(col.Tasks, t)
	domain.SortTasks(col.Tasks)
	return nil
}

func patchTask(b *domain.Board, id string, p domain.TaskPatch) error {
	const op = "store.patch_task"
	ci, ti, ok := b.FindTask(id)
	if !ok {
		return notFound(op, "task", id)
	}
	col := &b.Columns[ci]
	col.Tasks[ti] = p.ApplyFields(col.Tasks[ti])
	if !p.Moves() {
		return nil
	}
	target, index := col.ID, ti
	if p.ColumnID != nil && *p.ColumnID != col.ID {
		target = *p.ColumnID
		index = len(col.Tasks)
		if tc := b.ColumnIndex(target); tc >= 0 {
			index = len(b.Columns[tc].Tasks)
		}
	}
	if p.Order != nil {
		index = *p.Order
	}
	return moveTask(b, id, target, index)
}

func removeTask(b *domain.Board, id string) error {
	_, from, ok := takeTask(b, id)
	if !ok {
		return notFound("store.remove_task", "task", id)
	}
	domain.RenumberTasks(b.Columns[from].Tasks)
	return nil
}

func upsertColumn(b *domain.Board, c domain.Column) {
	c = c.Clone()
	if b.ID != "" {
		c.BoardID = b.ID
	}
	if i := b.ColumnIndex(c.ID); i >= 0 {
		c.Tasks = b.Columns[i].Tasks
		b.Columns[i] = c
	} else {
		if c.Tasks == nil {
			c.Tasks = []domain.Task{}
		}
		for i := range c.Tasks {
			c.Tasks[i].ColumnID = c.ID
		}
		b.Columns = append(b.Columns, c)
	}
	domain.SortColumns(b.Columns)
}

func patchColumn(b *domain.Board, id string, p domain.ColumnPatch) error {
	i := b.ColumnIndex(id)
	if i < 0 {
		return notFound("store.patch_column", "column", id)
	}
	if p.Title != nil {
		b.Columns[i].Title = *p.Title
	}
	if p.Order != nil {
		return moveColumn(b, id, *p.Order)
	}
	return nil
}

func moveColumn(b *domain.Board, id string, index int) error {
	i := b.ColumnIndex(id)
	if i < 0 {
		return notFound("store.move_column", "column", id)
	}
	c := b.Columns[i]
	b.Columns = append(b.Columns[:i:i], b.Columns[i+1:]...)
	b.Columns = domain.InsertColumn(b.Columns, c, index)
	domain.RenumberColumns(b.Columns)
	return nil
}

func removeColumn(b *domain.Board, id string) error {
	i := b.ColumnIndex(id)
	if i < 0 {
		return notFound("store.remove_column", "column", id)
	}
	b.Columns = append(b.Columns[:i:i], b.Columns[i+1:]...)
	domain.RenumberColumns(b.Columns)
	return nil
}
