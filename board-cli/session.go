package main

import (
	"context"
	"strings"

	"prism-board/board-client/gateway"
	"prism-board/board-client/reconcile"
	"prism-board/board-client/store"
	"prism-board/domain"
)

func (a *app) gateway() (*gateway.Client, error) {
	s, err := a.settings()
	if err != nil {
		return nil, err
	}
	gw := gateway.New(s.API, s.Token)
	gw.Timeout = s.Timeout
	gw.Logger = a.log
	return gw, nil
}

// session is one loaded board with its store and reconciliation engine.
type session struct {
	gw  *gateway.Client
	st  *store.Store
	eng *reconcile.Engine
}

func (a *app) openBoard(ctx context.Context, boardID string) (*session, error) {
	gw, err := a.gateway()
	if err != nil {
		return nil, err
	}
	st := store.New()
	eng := reconcile.New(gw, st, reconcile.Config{BoardID: boardID, Timeout: gw.Timeout, Logger: a.log})
	if err := eng.Refresh(ctx, false); err != nil {
		eng.Close()
		return nil, err
	}
	return &session{gw: gw, st: st, eng: eng}, nil
}

// apply waits for op and any refresh it triggered, returning the server id.
func (s *session) apply(ctx context.Context, op *reconcile.Op) (string, error) {
	err := op.Wait(ctx)
	s.eng.Wait()
	if err != nil {
		return "", err
	}
	return op.ID(), nil
}

func (s *session) close() { s.eng.Close() }

func (s *session) board() domain.Board { return s.st.Snapshot() }

// column resolves ref as a column id first and then as a case-insensitive title.
func (s *session) column(ref string) (domain.Column, error) {
	b := s.board()
	if ci := b.ColumnIndex(ref); ci >= 0 {
		return b.Columns[ci], nil
	}
	for _, c := range b.Columns {
		if strings.EqualFold(c.Title, strings.TrimSpace(ref)) {
			return c, nil
		}
	}
	return domain.Column{}, domain.Errorf(domain.KindNotFound, "column.lookup", "no column %q on board %s", ref, b.ID)
}

func (s *session) task(id string) (domain.Task, error) {
	b := s.board()
	ci, ti, ok := b.FindTask(id)
	if !ok {
		return domain.Task{}, domain.Errorf(domain.KindNotFound, "task.lookup", "no task %q on board %s", id, b.ID)
	}
	return b.Columns[ci].Tasks[ti], nil
}
