package reconcile

import (
	"prism-board/board-client/store"
	"prism-board/domain"
)

type field uint8

const (
	fieldTitle field = iota
	fieldDescription
	fieldPriority
	fieldPosition
)

// stamps records, per entity and field, the sequence of the newest confirmed
// operation that wrote it.
type stamps map[string]map[field]uint64

func (s stamps) get(id string, f field) uint64 { return s[id][f] }

func (s stamps) newer(id string, f field, seq uint64) bool { return seq > s.get(id, f) }

func (s stamps) set(id string, f field, seq uint64) {
	m, ok := s[id]
	if !ok {
		m = make(map[field]uint64, 4)
		s[id] = m
	}
	m[f] = seq
}

func (s stamps) setAll(id string, seq uint64) {
	for _, f := range []field{fieldTitle, fieldDescription, fieldPriority, fieldPosition} {
		s.set(id, f, seq)
	}
}

// mask strips from a pending action every field already settled by a newer
// confirmed operation. ok is false when nothing is left to replay.
func (s stamps) mask(a store.Action, seq uint64) (store.Action, bool) {
	switch a := a.(type) {
	case store.PatchTask:
		p := a.Patch
		if p.Title != nil && !s.newer(a.TaskID, fieldTitle, seq) {
			p.Title = nil
		}
		if p.Description != nil && !s.newer(a.TaskID, fieldDescription, seq) {
			p.Description = nil
		}
		if p.Priority != nil && !s.newer(a.TaskID, fieldPriority, seq) {
			p.Priority = nil
		}
		if p.Moves() && !s.newer(a.TaskID, fieldPosition, seq) {
			p.ColumnID, p.Order = nil, nil
		}
		if p.Empty() {
			return nil, false
		}
		a.Patch = p
		return a, true
	case store.MoveTask:
		return a, s.newer(a.TaskID, fieldPosition, seq)
	case store.PatchColumn:
		p := a.Patch
		if p.Title != nil && !s.newer(a.ColumnID, fieldTitle, seq) {
			p.Title = nil
		}
		if p.Order != nil && !s.newer(a.ColumnID, fieldPosition, seq) {
			p.Order = nil
		}
		if p.Empty() {
			return nil, false
		}
		a.Patch = p
		return a, true
	case store.MoveColumn:
		return a, s.newer(a.ColumnID, fieldPosition, seq)
	}
	return a, true
}

// foldTask merges the server copy of a task into base for the fields the
// confirmed patch touched, skipping fields a newer confirmation already owns.
func (s stamps) foldTask(base domain.Board, seq uint64, t domain.Task, touched domain.TaskPatch) (domain.Board, error) {
	var p domain.TaskPatch
	if touched.Title != nil && s.newer(t.ID, fieldTitle, seq) {
		p.Title = &t.Title
		s.set(t.ID, fieldTitle, seq)
	}
	if touched.Description != nil && s.newer(t.ID, fieldDescription, seq) {
		p.Description = &t.Description
		s.set(t.ID, fieldDescription, seq)
	}
	if touched.Priority != nil && s.newer(t.ID, fieldPriority, seq) {
		p.Priority = &t.Priority
		s.set(t.ID, fieldPriority, seq)
	}
	if touched.Moves() && s.newer(t.ID, fieldPosition, seq) {
		p.ColumnID = &t.ColumnID
		p.Order = &t.Order
		s.set(t.ID, fieldPosition, seq)
	}
	if p.Empty() {
		return base, nil
	}
	return store.Reduce(base, store.PatchTask{TaskID: t.ID, Patch: p})
}

// foldColumn is foldTask for columns.
func (s stamps) foldColumn(base domain.Board, seq uint64, c domain.Column, touched domain.ColumnPatch) (domain.Board, error) {
	var p domain.ColumnPatch
	if touched.Title != nil && s.newer(c.ID, fieldTitle, seq) {
		p.Title = &c.Title
		s.set(c.ID, fieldTitle, seq)
	}
	if touched.Order != nil && s.newer(c.ID, fieldPosition, seq) {
		p.Order = &c.Order
		s.set(c.ID, fieldPosition, seq)
	}
	if p.Empty() {
		return base, nil
	}
	return store.Reduce(base, store.PatchColumn{ColumnID: c.ID, Patch: p})
}
