package store

import (
	"sync"
	"time"

	"prism-board/domain"
)

// Notice reports a failed operation on one entity. Notices accumulate in the
// store state until dismissed.
type Notice struct {
	EntityID string
	Op       string
	Kind     domain.Kind
	Err      error
	At       time.Time
}

// State is the immutable value handed to subscribers. Board must be treated as
// read-only; use Store.Snapshot for a private copy.
type State struct {
	Board   domain.Board
	Loading bool
	Version uint64
	Notices []Notice
}

// Listener receives every new state in version order.
type Listener func(State)

// Store holds the client side snapshot of one board session.
type Store struct {
	// notifyMu serializes notifications so listeners observe versions in order.
	notifyMu sync.Mutex
	mu       sync.RWMutex
	state    State
	subs     map[int]Listener
	nextSub  int
}

// New creates an empty store. Call Load once the board has been fetched.
func New() *Store {
	return &Store{subs: make(map[int]Listener)}
}

// Subscribe registers fn for state changes and returns a function that removes
// it. Listeners run synchronously and must not call back into mutating methods.
func (s *Store) Subscribe(fn Listener) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// State returns the current state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Snapshot returns a deep copy of the current board.
func (s *Store) Snapshot() domain.Board {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Board.Clone()
}

// Dispatch reduces a against the current board and publishes the result as a
// single swap. A failed action leaves the state untouched.
func (s *Store) Dispatch(a Action) error {
	var err error
	s.update(func(st *State) bool {
		var next domain.Board
		next, err = Reduce(st.Board, a)
		if err != nil {
			return false
		}
		st.Board = next
		return true
	})
	return err
}

// Replace publishes b as-is. It is used by owners that compute the board
// themselves, such as the reconciliation engine.
func (s *Store) Replace(b domain.Board) {
	s.update(func(st *State) bool {
		st.Board = b
		return true
	})
}

// SetLoading toggles the loading indicator.
func (s *Store) SetLoading(loading bool) {
	s.update(func(st *State) bool {
		if st.Loading == loading {
			return false
		}
		st.Loading = loading
		return true
	})
}

// AddNotice appends a failure notice.
func (s *Store) AddNotice(n Notice) {
	if n.At.IsZero() {
		n.At = time.Now()
	}
	s.update(func(st *State) bool {
		st.Notices = append(st.Notices[:len(st.Notices):len(st.Notices)], n)
		return true
	})
}

// DismissNotices removes every notice about entityID. An empty id clears all.
func (s *Store) DismissNotices(entityID string) {
	s.update(func(st *State) bool {
		if len(st.Notices) == 0 {
			return false
		}
		if entityID == "" {
			st.Notices = nil
			return true
		}
		kept := make([]Notice, 0, len(st.Notices))
		for _, n := range st.Notices {
			if n.EntityID != entityID {
				kept = append(kept, n)
			}
		}
		if len(kept) == len(st.Notices) {
			return false
		}
		st.Notices = kept
		return true
	})
}

func (s *Store) Load(b domain.Board) error { return s.Dispatch(Load{Board: b}) }

func (s *Store) MoveTask(taskID, targetColumnID string, targetIndex int) error {
	return s.Dispatch(MoveTask{TaskID: taskID, ColumnID: targetColumnID, Index: targetIndex})
}

func (s *Store) UpsertTask(t domain.Task) error { return s.Dispatch(UpsertTask{Task: t}) }

func (s *Store) RemoveTask(taskID string) error { return s.Dispatch(RemoveTask{TaskID: taskID}) }

func (s *Store) UpsertColumn(c domain.Column) error { return s.Dispatch(UpsertColumn{Column: c}) }

func (s *Store) RemoveColumn(columnID string) error {
	return s.Dispatch(RemoveColumn{ColumnID: columnID})
}

// update applies fn to a copy of the state and, when fn reports a change,
// swaps it in and notifies subscribers.
func (s *Store) update(fn func(*State) bool) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	next := s.state
	if !fn(&next) {
		s.mu.Unlock()
		return
	}
	next.Version = s.state.Version + 1
	s.state = next
	subs := make([]Listener, 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
}
