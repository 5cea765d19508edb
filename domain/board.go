package domain

import "time"

// BoardImage carries the cover picture metadata chosen when a board is created.
type BoardImage struct {
	ID       string `json:"id"`
	ThumbURL string `json:"thumbUrl"`
	FullURL  string `json:"fullUrl"`
	Username string `json:"username"`
	LinkHTML string `json:"linkHtml"`
}

// Board is the top-level container of columns, owned by one organization.
type Board struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	OrgID     string     `json:"orgId"`
	Image     BoardImage `json:"image"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	Columns   []Column   `json:"columns,omitempty"`
}

// Column is an ordered list of tasks within a board.
type Column struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Order     int       `json:"order"`
	BoardID   string    `json:"boardId"`
	CreatedAt time.Time `json:"createdAt"`
	Tasks     []Task    `json:"tasks,omitempty"`
}

// Clone returns a deep copy so callers can mutate the result freely.
func (b Board) Clone() Board {
	out := b
	if b.Columns == nil {
		return out
	}
	out.Columns = make([]Column, len(b.Columns))
	for i, c := range b.Columns {
		out.Columns[i] = c.Clone()
	}
	return out
}

// Clone returns a copy of the column with its own task slice.
func (c Column) Clone() Column {
	out := c
	if c.Tasks != nil {
		out.Tasks = append([]Task(nil), c.Tasks...)
	}
	return out
}

// ColumnIndex returns the position of the column with the given id, or -1.
func (b Board) ColumnIndex(id string) int {
	for i := range b.Columns {
		if b.Columns[i].ID == id {
			return i
		}
	}
	return -1
}

// FindTask locates a task by id and reports the column and task positions.
func (b Board) FindTask(id string) (col, idx int, ok bool) {
	for ci := range b.Columns {
		for ti := range b.Columns[ci].Tasks {
			if b.Columns[ci].Tasks[ti].ID == id {
				return ci, ti, true
			}
		}
	}
	return -1, -1, false
}

// TaskCount returns the number of tasks across all columns.
func (b Board) TaskCount() int {
	n := 0
	for _, c := range b.Columns {
		n += len(c.Tasks)
	}
	return n
}
