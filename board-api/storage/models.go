package storage

import (
	"time"

	"gorm.io/datatypes"

	"prism-board/domain"
)

type boardModel struct {
	ID        string `gorm:"primaryKey;size:36"`
	OrgID     string `gorm:"size:128;not null;index:idx_boards_org_created,priority:1"`
	Title     string `gorm:"size:100;not null"`
	Image     datatypes.JSONType[domain.BoardImage]
	CreatedAt time.Time `gorm:"index:idx_boards_org_created,priority:2"`
	UpdatedAt time.Time
	Columns   []columnModel `gorm:"foreignKey:BoardID;constraint:OnDelete:CASCADE"`
}

func (boardModel) TableName() string { return "boards" }

type columnModel struct {
	ID        string `gorm:"primaryKey;size:36"`
	BoardID   string `gorm:"size:36;not null;index"`
	Title     string `gorm:"size:100;not null"`
	Position  int    `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Tasks     []taskModel `gorm:"foreignKey:ColumnID;constraint:OnDelete:CASCADE"`
}

func (columnModel) TableName() string { return "board_columns" }

type taskModel struct {
	ID          string `gorm:"primaryKey;size:36"`
	ColumnID    string `gorm:"size:36;not null;index"`
	Title       string `gorm:"size:100;not null"`
	Description string `gorm:"size:2000"`
	Priority    string `gorm:"size:16;not null;default:medium"`
	CreatorName string `gorm:"size:128"`
	Position    int    `gorm:"not null;default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (taskModel) TableName() string { return "tasks" }

func (m boardModel) toDomain() domain.Board {
	b := domain.Board{
		ID:        m.ID,
		Title:     m.Title,
		OrgID:     m.OrgID,
		Image:     m.Image.Data(),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if len(m.Columns) > 0 {
		b.Columns = make([]domain.Column, 0, len(m.Columns))
		for _, c := range m.Columns {
			b.Columns = append(b.Columns, c.toDomain())
		}
		b.Normalize()
	}
	return b
}

func (m columnModel) toDomain() domain.Column {
	c := domain.Column{
		ID:        m.ID,
		Title:     m.Title,
		Order:     m.Position,
		BoardID:   m.BoardID,
		CreatedAt: m.CreatedAt,
	}
	if len(m.Tasks) > 0 {
		c.Tasks = make([]domain.Task, 0, len(m.Tasks))
		for _, t := range m.Tasks {
			c.Tasks = append(c.Tasks, t.toDomain())
		}
	}
	return c
}

func (m taskModel) toDomain() domain.Task {
	return domain.Task{
		ID:          m.ID,
		Title:       m.Title,
		Description: m.Description,
		Priority:    domain.Priority(m.Priority),
		CreatorName: m.CreatorName,
		CreatedAt:   m.CreatedAt,
		ColumnID:    m.ColumnID,
		Order:       m.Position,
	}
}
