package api

import (
	"context"

	"prism-board/domain"
)

// Storage is the persistence the handlers need. Every call is scoped to an
// organization; ids outside it are reported as not found.
type Storage interface {
	ListBoards(ctx context.Context, orgID string) ([]domain.Board, error)
	GetBoard(ctx context.Context, orgID, id string) (domain.Board, error)
	CreateBoard(ctx context.Context, orgID string, in domain.NewBoard) (domain.Board, error)
	DeleteBoard(ctx context.Context, orgID, id string) error
	CreateColumn(ctx context.Context, orgID string, in domain.NewColumn) (domain.Column, error)
	UpdateColumn(ctx context.Context, orgID, id string, p domain.ColumnPatch) (domain.Column, error)
	DeleteColumn(ctx context.Context, orgID, id string) (boardID string, err error)
	CreateTask(ctx context.Context, orgID string, in domain.NewTask) (task domain.Task, boardID string, err error)
	UpdateTask(ctx context.Context, orgID, id string, p domain.TaskPatch) (task domain.Task, boardID string, err error)
	DeleteTask(ctx context.Context, orgID, id string) (boardID string, err error)
	Ping(ctx context.Context) error
}

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	OrgID  string
	Name   string
}

type Authenticator interface {
	IdentityFromAuthHeader(string) (Identity, error)
}

// Publisher announces board changes to stream subscribers.
type Publisher interface {
	Publish(ctx context.Context, ev domain.BoardEvent) error
}

// Broker hands out per-board event subscriptions.
type Broker interface {
	Subscribe(boardID string) (<-chan domain.BoardEvent, func())
}

// StoredResponse is a completed response kept for idempotent replay.
type StoredResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
}

// IdempotencyStore remembers responses by idempotency key. Reserve returns
// reserved=true when the caller should run the request; otherwise stored holds
// the earlier response, or is nil while that request is still running.
type IdempotencyStore interface {
	Reserve(ctx context.Context, scope, key string) (stored *StoredResponse, reserved bool, err error)
	Complete(ctx context.Context, scope, key string, resp StoredResponse) error
	Release(ctx context.Context, scope, key string) error
}
