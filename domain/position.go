package domain

import (
	"cmp"
	"slices"
)

// CompareTasks orders tasks by rank. Equal ranks fall back to creation time
// and then id so repeated sorts of the same data never reshuffle.
func CompareTasks(a, b Task) int {
	if c := cmp.Compare(a.Order, b.Order); c != 0 {
		return c
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// CompareColumns orders columns left to right with the same tie breaks as tasks.
func CompareColumns(a, b Column) int {
	if c := cmp.Compare(a.Order, b.Order); c != 0 {
		return c
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func SortTasks(ts []Task) { slices.SortStableFunc(ts, CompareTasks) }

func SortColumns(cs []Column) { slices.SortStableFunc(cs, CompareColumns) }

// NextOrder returns the rank that appends after every given rank.
func NextOrder(orders ...int) int {
	if len(orders) == 0 {
		return 0
	}
	return slices.Max(orders) + 1
}

// RenumberTasks rewrites ranks to match slice positions.
func RenumberTasks(ts []Task) {
	for i := range ts {
		ts[i].Order = i
	}
}

// RenumberColumns rewrites ranks to match slice positions.
func RenumberColumns(cs []Column) {
	for i := range cs {
		cs[i].Order = i
	}
}

// InsertTask returns ts with t inserted at index, clamped to the valid range.
func InsertTask(ts []Task, t Task, index int) []Task {
	return slices.Insert(ts, clampIndex(index, len(ts)), t)
}

// InsertColumn returns cs with c inserted at index, clamped to the valid range.
func InsertColumn(cs []Column, c Column, index int) []Column {
	return slices.Insert(cs, clampIndex(index, len(cs)), c)
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

// Normalize sorts columns and their tasks into display order and stamps each
// task with the id of the column that holds it.
func (b *Board) Normalize() {
	SortColumns(b.Columns)
	for ci := range b.Columns {
		col := &b.Columns[ci]
		if b.ID != "" {
			col.BoardID = b.ID
		}
		for ti := range col.Tasks {
			col.Tasks[ti].ColumnID = col.ID
		}
		SortTasks(col.Tasks)
	}
}
