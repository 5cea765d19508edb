package domain

import "time"

// Event types published after a successful write.
const (
	EventBoardDeleted  = "board-deleted"
	EventColumnChanged = "column-changed"
	EventColumnDeleted = "column-deleted"
	EventTaskChanged   = "task-changed"
	EventTaskDeleted   = "task-deleted"
)

// BoardEvent tells stream subscribers that a board changed. It carries ids
// only; clients refetch the board to learn the new state.
type BoardEvent struct {
	Type     string    `json:"type"`
	OrgID    string    `json:"orgId"`
	BoardID  string    `json:"boardId"`
	EntityID string    `json:"entityId,omitempty"`
	At       time.Time `json:"at"`
}
