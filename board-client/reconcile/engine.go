package reconcile

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"prism-board/board-client/store"
	"prism-board/domain"
)

const tempPrefix = "tmp-"

// Gateway is the subset of the sync gateway the engine talks to.
type Gateway interface {
	GetBoard(ctx context.Context, id string) (domain.Board, error)
	CreateColumn(ctx context.Context, in domain.NewColumn) (domain.Column, error)
	UpdateColumn(ctx context.Context, id string, p domain.ColumnPatch) (domain.Column, error)
	DeleteColumn(ctx context.Context, id string) error
	CreateTask(ctx context.Context, in domain.NewTask) (domain.Task, error)
	UpdateTask(ctx context.Context, id string, p domain.TaskPatch) (domain.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// Watcher delivers board change events until ctx ends.
type Watcher interface {
	Watch(ctx context.Context, boardID string, fn func(domain.BoardEvent)) error
}

type Config struct {
	BoardID string
	// Timeout bounds every gateway call made by the engine. Defaults to 10s.
	Timeout time.Duration
	Logger  log.FieldLogger
}

type pendingOp struct {
	seq    uint64
	action store.Action
	create bool
}

// Engine applies mutations optimistically to a store and reconciles them with
// the server. All exported methods are safe for concurrent use. Store
// listeners run while the engine lock is held and must not call the engine.
type Engine struct {
	gw      Gateway
	st      *store.Store
	boardID string
	timeout time.Duration
	log     log.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	seq        uint64
	base       domain.Board
	baseSeq    uint64
	watermark  uint64
	loadingSeq uint64
	pending    []pendingOp
	stamps     stamps
	// tails holds, per entity, a channel closed when the newest request
	// touching that entity has finished.
	tails map[string]chan struct{}
	fatal error
}

func New(gw Gateway, st *store.Store, cfg Config) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		gw:      gw,
		st:      st,
		boardID: cfg.BoardID,
		timeout: cfg.Timeout,
		log:     cfg.Logger.WithField("board", cfg.BoardID),
		ctx:     ctx,
		cancel:  cancel,
		stamps:  stamps{},
		tails:   map[string]chan struct{}{},
	}
}

// Err returns the error that ended the session, if any.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fatal
}

// Wait blocks until every in-flight request and background refresh is done.
func (e *Engine) Wait() { e.wg.Wait() }

// Close abandons background work and waits for it to return.
func (e *Engine) Close() {
	e.cancel()
	e.wg.Wait()
}

// IsTemporary reports whether id was assigned locally to an unconfirmed create.
func IsTemporary(id string) bool { return strings.HasPrefix(id, tempPrefix) }

func (e *Engine) nextSeq() uint64 {
	e.seq++
	return e.seq
}

// view replays pending operations over the confirmed board.
func (e *Engine) view() domain.Board {
	v := e.base
	for _, p := range e.pending {
		a, ok := e.stamps.mask(p.action, p.seq)
		if !ok {
			continue
		}
		next, err := store.Reduce(v, a)
		if err != nil {
			continue
		}
		v = next
	}
	return v
}

func (e *Engine) publish() { e.st.Replace(e.view()) }

// creating reports whether a create is in flight. Its entity may already be
// on the server under an id the engine has not seen yet.
func (e *Engine) creating() bool {
	for _, p := range e.pending {
		if p.create {
			return true
		}
	}
	return false
}

func (e *Engine) dropPending(seq uint64) {
	for i, p := range e.pending {
		if p.seq == seq {
			e.pending = append(e.pending[:i:i], e.pending[i+1:]...)
			return
		}
	}
}

// Refresh fetches the board and applies it unless a newer refresh or a
// confirmation landed meanwhile. A non-silent refresh shows the loading state
// until the newest loading refresh completes.
func (e *Engine) Refresh(ctx context.Context, silent bool) error {
	e.mu.Lock()
	seq := e.nextSeq()
	if !silent {
		e.loadingSeq = seq
	}
	e.mu.Unlock()
	if !silent {
		e.st.SetLoading(true)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	b, err := e.gw.GetBoard(ctx, e.boardID)
	cancel()

	e.mu.Lock()
	defer e.mu.Unlock()
	if !silent && seq == e.loadingSeq {
		e.st.SetLoading(false)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		e.log.WithError(err).WithField("seq", seq).Warn("board refresh failed")
		kind := domain.KindOf(err)
		if kind.Fatal() {
			e.setFatal(err)
		}
		e.st.AddNotice(store.Notice{EntityID: e.boardID, Op: "board.refresh", Kind: kind, Err: err})
		return err
	}
	if seq <= e.baseSeq || seq <= e.watermark {
		e.log.WithFields(log.Fields{"seq": seq, "applied": e.baseSeq, "watermark": e.watermark}).Debug("discarding stale refresh")
		return nil
	}
	if e.creating() {
		// The confirmation schedules another refresh.
		e.log.WithField("seq", seq).Debug("deferring refresh while a create is in flight")
		return nil
	}
	loaded, _ := store.Reduce(domain.Board{}, store.Load{Board: b})
	e.base = loaded
	e.baseSeq = seq
	e.publish()
	return nil
}

func (e *Engine) refreshAsync(silent bool) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		_ = e.Refresh(e.ctx, silent)
	}()
}

// Follow triggers a silent refresh for every change event of the board until
// ctx ends or the watcher gives up. Bursts of events collapse into one refresh.
func (e *Engine) Follow(ctx context.Context, w Watcher) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	trigger := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-trigger:
				_ = e.Refresh(ctx, true)
			}
		}
	}()
	err := w.Watch(ctx, e.boardID, func(ev domain.BoardEvent) {
		if ev.BoardID != e.boardID {
			return
		}
		select {
		case trigger <- struct{}{}:
		default:
		}
	})
	cancel()
	<-done
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (e *Engine) setFatal(err error) {
	if e.fatal == nil {
		e.fatal = err
		e.log.WithError(err).Error("session ended")
	}
}

// mutation describes one optimistic operation.
type mutation struct {
	name     string
	entityID string
	// missing is dropped from the confirmed board when the server answers NotFound.
	missing string
	action  store.Action
	create  bool
	send    func(ctx context.Context, seq uint64) (string, error)
}

func (e *Engine) reject(name, entityID string, err error) *Op {
	e.st.AddNotice(store.Notice{EntityID: entityID, Op: name, Kind: domain.KindOf(err), Err: err})
	return failedOp(entityID, err)
}

func (e *Engine) submit(m mutation) *Op {
	op := newOp(m.entityID)

	e.mu.Lock()
	if e.fatal != nil {
		err := e.fatal
		e.mu.Unlock()
		op.finish("", err)
		return op
	}
	seq := e.nextSeq()
	e.pending = append(e.pending, pendingOp{seq: seq, action: m.action, create: m.create})
	prev := e.tails[m.entityID]
	mine := make(chan struct{})
	e.tails[m.entityID] = mine
	e.publish()
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.release(m.entityID, mine)
		// Requests on one entity reach the server in submission order.
		if prev != nil {
			select {
			case <-prev:
			case <-e.ctx.Done():
				e.fail(m, seq, e.ctx.Err())
				op.finish("", e.ctx.Err())
				return
			}
		}
		ctx, cancel := context.WithTimeout(e.ctx, e.timeout)
		id, err := m.send(ctx, seq)
		cancel()
		if err != nil {
			e.fail(m, seq, err)
			op.finish("", err)
			return
		}
		e.refreshAsync(true)
		op.finish(id, nil)
	}()
	return op
}

func (e *Engine) release(entityID string, mine chan struct{}) {
	e.mu.Lock()
	if e.tails[entityID] == mine {
		delete(e.tails, entityID)
	}
	e.mu.Unlock()
	close(mine)
}

// confirm runs fold against the confirmed board and retires the pending op.
// It is called by send functions after a successful request.
func (e *Engine) confirm(seq uint64, fold func(base domain.Board) (domain.Board, error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dropPending(seq)
	next, err := fold(e.base)
	if err != nil {
		e.log.WithError(err).WithField("seq", seq).Debug("confirmed entity does not fit local board")
	} else {
		e.base = next
	}
	e.watermark = e.seq
	e.publish()
}

func (e *Engine) fail(m mutation, seq uint64, err error) {
	if errors.Is(err, context.Canceled) {
		e.mu.Lock()
		e.dropPending(seq)
		e.publish()
		e.mu.Unlock()
		return
	}
	kind := domain.KindOf(err)
	e.log.WithError(err).WithFields(log.Fields{"op": m.name, "entity": m.entityID, "kind": kind.String()}).Warn("operation rejected")

	e.mu.Lock()
	e.dropPending(seq)
	switch {
	case kind.Fatal():
		e.setFatal(err)
	case kind == domain.KindNotFound && m.missing != "":
		e.base = without(e.base, m.missing)
	}
	e.publish()
	e.mu.Unlock()

	e.st.AddNotice(store.Notice{EntityID: m.entityID, Op: m.name, Kind: kind, Err: err})
	switch {
	case kind.Fatal():
	case kind == domain.KindInternal:
		e.refreshAsync(false)
	default:
		e.refreshAsync(true)
	}
}

func without(b domain.Board, id string) domain.Board {
	if next, err := store.Reduce(b, store.RemoveTask{TaskID: id}); err == nil {
		return next
	}
	if next, err := store.Reduce(b, store.RemoveColumn{ColumnID: id}); err == nil {
		return next
	}
	return b
}

func tempID() string { return tempPrefix + uuid.NewString() }

func (e *Engine) checkIDs(name string, ids ...string) error {
	for _, id := range ids {
		if id == "" {
			return domain.E(domain.KindInvalidInput, name, "id is required")
		}
		if IsTemporary(id) {
			return domain.Errorf(domain.KindInvalidInput, name, "%s is not saved yet", id)
		}
	}
	return nil
}

// CreateColumn appends a column. The returned op reports the server id.
func (e *Engine) CreateColumn(title string) *Op {
	const name = "column.create"
	in := domain.NewColumn{Title: title, BoardID: e.boardID}.Normalize()
	tmp := tempID()
	if err := in.Validate(); err != nil {
		return e.reject(name, tmp, err)
	}
	view := e.st.State().Board
	orders := make([]int, 0, len(view.Columns))
	for _, c := range view.Columns {
		orders = append(orders, c.Order)
	}
	optimistic := domain.Column{ID: tmp, Title: in.Title, BoardID: e.boardID, Order: domain.NextOrder(orders...), CreatedAt: time.Now()}
	return e.submit(mutation{
		name:     name,
		entityID: tmp,
		action:   store.UpsertColumn{Column: optimistic},
		create:   true,
		send: func(ctx context.Context, seq uint64) (string, error) {
			c, err := e.gw.CreateColumn(ctx, in)
			if err != nil {
				return "", err
			}
			e.confirm(seq, func(base domain.Board) (domain.Board, error) {
				e.stamps.setAll(c.ID, seq)
				return store.Reduce(base, store.UpsertColumn{Column: c})
			})
			return c.ID, nil
		},
	})
}

// RenameColumn changes a column title.
func (e *Engine) RenameColumn(id, title string) *Op {
	const name = "column.rename"
	p := domain.ColumnPatch{Title: &title}.Normalize()
	return e.patchColumn(name, id, p)
}

// MoveColumn places a column at index and renumbers its siblings.
func (e *Engine) MoveColumn(id string, index int) *Op {
	const name = "column.move"
	if index < 0 {
		index = 0
	}
	return e.patchColumn(name, id, domain.ColumnPatch{Order: &index})
}

func (e *Engine) patchColumn(name, id string, p domain.ColumnPatch) *Op {
	if err := e.checkIDs(name, id); err != nil {
		return e.reject(name, id, err)
	}
	if err := p.Validate(); err != nil {
		return e.reject(name, id, err)
	}
	return e.submit(mutation{
		name:     name,
		entityID: id,
		missing:  id,
		action:   store.PatchColumn{ColumnID: id, Patch: p},
		send: func(ctx context.Context, seq uint64) (string, error) {
			c, err := e.gw.UpdateColumn(ctx, id, p)
			if err != nil {
				return "", err
			}
			e.confirm(seq, func(base domain.Board) (domain.Board, error) {
				return e.stamps.foldColumn(base, seq, c, p)
			})
			return c.ID, nil
		},
	})
}

// DeleteColumn removes a column and, locally, every task in it.
func (e *Engine) DeleteColumn(id string) *Op {
	const name = "column.delete"
	if err := e.checkIDs(name, id); err != nil {
		return e.reject(name, id, err)
	}
	return e.submit(mutation{
		name:     name,
		entityID: id,
		missing:  id,
		action:   store.RemoveColumn{ColumnID: id},
		send: func(ctx context.Context, seq uint64) (string, error) {
			if err := e.gw.DeleteColumn(ctx, id); err != nil {
				return "", err
			}
			e.confirm(seq, func(base domain.Board) (domain.Board, error) {
				delete(e.stamps, id)
				if ci := base.ColumnIndex(id); ci >= 0 {
					for _, t := range base.Columns[ci].Tasks {
						delete(e.stamps, t.ID)
					}
				}
				return store.Reduce(base, store.RemoveColumn{ColumnID: id})
			})
			return id, nil
		},
	})
}

// CreateTask appends a task to a column.
func (e *Engine) CreateTask(in domain.NewTask) *Op {
	const name = "task.create"
	in = in.Normalize()
	tmp := tempID()
	if err := in.Validate(); err != nil {
		return e.reject(name, tmp, err)
	}
	if err := e.checkIDs(name, in.ColumnID); err != nil {
		return e.reject(name, tmp, err)
	}
	view := e.st.State().Board
	var orders []int
	if ci := view.ColumnIndex(in.ColumnID); ci >= 0 {
		for _, t := range view.Columns[ci].Tasks {
			orders = append(orders, t.Order)
		}
	}
	optimistic := domain.Task{
		ID:          tmp,
		Title:       in.Title,
		Description: in.Description,
		Priority:    in.Priority,
		CreatorName: in.CreatorName,
		CreatedAt:   time.Now(),
		ColumnID:    in.ColumnID,
		Order:       domain.NextOrder(orders...),
	}
	return e.submit(mutation{
		name:     name,
		entityID: tmp,
		missing:  in.ColumnID,
		action:   store.UpsertTask{Task: optimistic},
		create:   true,
		send: func(ctx context.Context, seq uint64) (string, error) {
			t, err := e.gw.CreateTask(ctx, in)
			if err != nil {
				return "", err
			}
			e.confirm(seq, func(base domain.Board) (domain.Board, error) {
				e.stamps.setAll(t.ID, seq)
				return store.Reduce(base, store.UpsertTask{Task: t})
			})
			return t.ID, nil
		},
	})
}

// UpdateTask applies a partial update. Nil patch fields are left unchanged.
func (e *Engine) UpdateTask(id string, p domain.TaskPatch) *Op {
	const name = "task.update"
	p = p.Normalize()
	if err := e.checkIDs(name, id); err != nil {
		return e.reject(name, id, err)
	}
	if p.ColumnID != nil {
		if err := e.checkIDs(name, *p.ColumnID); err != nil {
			return e.reject(name, id, err)
		}
	}
	if err := p.Validate(); err != nil {
		return e.reject(name, id, err)
	}
	return e.submit(mutation{
		name:     name,
		entityID: id,
		missing:  id,
		action:   store.PatchTask{TaskID: id, Patch: p},
		send: func(ctx context.Context, seq uint64) (string, error) {
			t, err := e.gw.UpdateTask(ctx, id, p)
			if err != nil {
				return "", err
			}
			e.confirm(seq, func(base domain.Board) (domain.Board, error) {
				return e.stamps.foldTask(base, seq, t, p)
			})
			return t.ID, nil
		},
	})
}

// MoveTask places a task at index of the target column.
func (e *Engine) MoveTask(id, columnID string, index int) *Op {
	if index < 0 {
		index = 0
	}
	return e.UpdateTask(id, domain.TaskPatch{ColumnID: &columnID, Order: &index})
}

// DeleteTask removes a task.
func (e *Engine) DeleteTask(id string) *Op {
	const name = "task.delete"
	if err := e.checkIDs(name, id); err != nil {
		return e.reject(name, id, err)
	}
	return e.submit(mutation{
		name:     name,
		entityID: id,
		missing:  id,
		action:   store.RemoveTask{TaskID: id},
		send: func(ctx context.Context, seq uint64) (string, error) {
			if err := e.gw.DeleteTask(ctx, id); err != nil {
				return "", err
			}
			e.confirm(seq, func(base domain.Board) (domain.Board, error) {
				delete(e.stamps, id)
				return store.Reduce(base, store.RemoveTask{TaskID: id})
			})
			return id, nil
		},
	})
}
