package domain

import (
	"testing"
	"time"
)

func TestSortTasksBreaksTiesByCreationThenID(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tasks := []Task{
		{ID: "c", Order: 0, CreatedAt: base.Add(time.Minute)},
		{ID: "b", Order: 0, CreatedAt: base},
		{ID: "a", Order: 0, CreatedAt: base},
		{ID: "z", Order: -1, CreatedAt: base.Add(time.Hour)},
	}

	SortTasks(tasks)

	want := []string{"z", "a", "b", "c"}
	for i, id := range want {
		if tasks[i].ID != id {
			t.Fatalf("position %d: want %s, got %s", i, id, tasks[i].ID)
		}
	}
}

func TestSortIsDeterministicAcrossInputPermutations(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	a := []Task{{ID: "1", CreatedAt: base}, {ID: "2", CreatedAt: base}, {ID: "3", Order: 1}}
	b := []Task{a[2], a[1], a[0]}

	SortTasks(a)
	SortTasks(b)

	for i := range a {
		if a[i].ID != b[i].ID {
			t.Fatalf("sort differs at %d: %s vs %s", i, a[i].ID, b[i].ID)
		}
	}
}

func TestNextOrderAppends(t *testing.T) {
	if got := NextOrder(); got != 0 {
		t.Fatalf("empty: want 0, got %d", got)
	}
	if got := NextOrder(0, 4, 2); got != 5 {
		t.Fatalf("want 5, got %d", got)
	}
}

func TestInsertTaskClampsIndex(t *testing.T) {
	ts := []Task{{ID: "a"}, {ID: "b"}}

	ts = InsertTask(ts, Task{ID: "head"}, -3)
	ts = InsertTask(ts, Task{ID: "tail"}, 99)
	RenumberTasks(ts)

	want := []string{"head", "a", "b", "tail"}
	for i, id := range want {
		if ts[i].ID != id || ts[i].Order != i {
			t.Fatalf("position %d: want %s/%d, got %s/%d", i, id, i, ts[i].ID, ts[i].Order)
		}
	}
}

func TestBoardNormalizeSortsAndStampsColumns(t *testing.T) {
	b := Board{
		ID: "b1",
		Columns: []Column{
			{ID: "done", Order: 1, Tasks: []Task{{ID: "t2", Order: 1}, {ID: "t1", Order: 0}}},
			{ID: "todo", Order: 0},
		},
	}

	b.Normalize()

	if b.Columns[0].ID != "todo" || b.Columns[1].ID != "done" {
		t.Fatalf("unexpected column order: %s, %s", b.Columns[0].ID, b.Columns[1].ID)
	}
	done := b.Columns[1]
	if done.Tasks[0].ID != "t1" || done.Tasks[1].ID != "t2" {
		t.Fatalf("unexpected task order: %+v", done.Tasks)
	}
	for _, tk := range done.Tasks {
		if tk.ColumnID != "done" {
			t.Fatalf("task %s not stamped with column: %q", tk.ID, tk.ColumnID)
		}
	}
	if done.BoardID != "b1" {
		t.Fatalf("column not stamped with board: %q", done.BoardID)
	}
}

func TestCloneIsDeep(t *testing.T) {
	b := Board{ID: "b", Columns: []Column{{ID: "c", Tasks: []Task{{ID: "t", Title: "orig"}}}}}

	cp := b.Clone()
	cp.Columns[0].Tasks[0].Title = "changed"
	cp.Columns[0].Title = "changed"

	if b.Columns[0].Tasks[0].Title != "orig" || b.Columns[0].Title != "" {
		t.Fatalf("clone shares memory with original: %+v", b)
	}
}
