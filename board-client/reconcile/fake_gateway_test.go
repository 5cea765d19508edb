package reconcile

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"prism-board/board-client/store"
	"prism-board/domain"
)

// fakeGateway keeps a server side board and answers like the API would. Hooks
// replace individual calls when a test needs to delay or fail them.
type fakeGateway struct {
	mu    sync.Mutex
	board domain.Board
	next  int
	calls map[string]int

	onGet          func(ctx context.Context) (domain.Board, error)
	onUpdateTask   func(ctx context.Context, id string, p domain.TaskPatch) (domain.Task, error)
	onCreateTask   func(ctx context.Context, in domain.NewTask) (domain.Task, error)
	onDeleteColumn func(ctx context.Context, id string) error
}

func newFakeGateway(b domain.Board) *fakeGateway {
	loaded, _ := store.Reduce(domain.Board{}, store.Load{Board: b})
	return &fakeGateway{board: loaded, calls: map[string]int{}}
}

func (f *fakeGateway) count(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeGateway) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeGateway) apply(a store.Action) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	next, err := store.Reduce(f.board, a)
	if err != nil {
		return err
	}
	f.board = next
	return nil
}

func (f *fakeGateway) serverBoard() domain.Board {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.board.Clone()
}

func (f *fakeGateway) GetBoard(ctx context.Context, id string) (domain.Board, error) {
	f.count("get")
	if f.onGet != nil {
		return f.onGet(ctx)
	}
	return f.serverBoard(), nil
}

func (f *fakeGateway) CreateColumn(ctx context.Context, in domain.NewColumn) (domain.Column, error) {
	f.count("create-column")
	f.mu.Lock()
	f.next++
	orders := []int{}
	for _, c := range f.board.Columns {
		orders = append(orders, c.Order)
	}
	c := domain.Column{ID: fmt.Sprintf("col-%d", f.next), Title: in.Title, BoardID: in.BoardID, Order: domain.NextOrder(orders...)}
	f.mu.Unlock()
	if err := f.apply(store.UpsertColumn{Column: c}); err != nil {
		return domain.Column{}, err
	}
	return c, nil
}

func (f *fakeGateway) UpdateColumn(ctx context.Context, id string, p domain.ColumnPatch) (domain.Column, error) {
	f.count("update-column")
	if err := f.apply(store.PatchColumn{ColumnID: id, Patch: p}); err != nil {
		return domain.Column{}, err
	}
	b := f.serverBoard()
	c := b.Columns[b.ColumnIndex(id)]
	c.Tasks = nil
	return c, nil
}

func (f *fakeGateway) DeleteColumn(ctx context.Context, id string) error {
	f.count("delete-column")
	if f.onDeleteColumn != nil {
		return f.onDeleteColumn(ctx, id)
	}
	return f.apply(store.RemoveColumn{ColumnID: id})
}

func (f *fakeGateway) createTask(in domain.NewTask) (domain.Task, error) {
	f.mu.Lock()
	f.next++
	t := domain.Task{
		ID:          fmt.Sprintf("task-%d", f.next),
		Title:       in.Title,
		Description: in.Description,
		Priority:    in.Priority,
		ColumnID:    in.ColumnID,
		CreatedAt:   time.Unix(int64(f.next), 0).UTC(),
	}
	if ci := f.board.ColumnIndex(in.ColumnID); ci >= 0 {
		var orders []int
		for _, x := range f.board.Columns[ci].Tasks {
			orders = append(orders, x.Order)
		}
		t.Order = domain.NextOrder(orders...)
	}
	f.mu.Unlock()
	if err := f.apply(store.UpsertTask{Task: t}); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (f *fakeGateway) CreateTask(ctx context.Context, in domain.NewTask) (domain.Task, error) {
	f.count("create-task")
	if f.onCreateTask != nil {
		return f.onCreateTask(ctx, in)
	}
	return f.createTask(in)
}

func (f *fakeGateway) updateTask(id string, p domain.TaskPatch) (domain.Task, error) {
	if err := f.apply(store.PatchTask{TaskID: id, Patch: p}); err != nil {
		return domain.Task{}, err
	}
	b := f.serverBoard()
	ci, ti, _ := b.FindTask(id)
	return b.Columns[ci].Tasks[ti], nil
}

func (f *fakeGateway) UpdateTask(ctx context.Context, id string, p domain.TaskPatch) (domain.Task, error) {
	f.count("update-task")
	if f.onUpdateTask != nil {
		return f.onUpdateTask(ctx, id, p)
	}
	return f.updateTask(id, p)
}

func (f *fakeGateway) DeleteTask(ctx context.Context, id string) error {
	f.count("delete-task")
	return f.apply(store.RemoveTask{TaskID: id})
}

func quietLogger() *log.Logger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

func seedBoard() domain.Board {
	return domain.Board{
		ID:    "b1",
		Title: "Sprint 1",
		Columns: []domain.Column{
			{ID: "a", Title: "Todo", Order: 0, Tasks: []domain.Task{
				{ID: "t1", Title: "Write spec", Priority: domain.PriorityMedium, Order: 0},
				{ID: "t2", Title: "Review", Priority: domain.PriorityLow, Order: 1},
			}},
			{ID: "b", Title: "Doing", Order: 1, Tasks: []domain.Task{
				{ID: "t3", Title: "Ship", Priority: domain.PriorityHigh, Order: 0},
			}},
		},
	}
}

// startEngine returns an engine whose store already holds the server board.
func startEngine(t *testing.T, gw *fakeGateway) (*Engine, *store.Store) {
	t.Helper()
	st := store.New()
	e := New(gw, st, Config{BoardID: "b1", Timeout: 2 * time.Second, Logger: quietLogger()})
	t.Cleanup(e.Close)
	if err := e.Refresh(context.Background(), false); err != nil {
		t.Fatalf("initial refresh: %v", err)
	}
	return e, st
}

func waitOp(t *testing.T, op *Op) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := op.Wait(ctx)
	if err == context.DeadlineExceeded {
		t.Fatalf("operation did not complete")
	}
	return err
}

func findTask(b domain.Board, id string) (domain.Task, bool) {
	ci, ti, ok := b.FindTask(id)
	if !ok {
		return domain.Task{}, false
	}
	return b.Columns[ci].Tasks[ti], true
}
