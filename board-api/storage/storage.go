package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"prism-board/domain"
)

// Storage persists boards, columns and tasks in a relational database. Every
// operation is scoped to the caller's organization: entities of another
// organization are reported as not found.
type Storage struct {
	db *gorm.DB
}

// Open connects to the database selected by driver ("postgres" or "sqlite").
func Open(driver, dsn string) (*Storage, error) {
	var dialector gorm.Dialector
	switch driver {
	case "", "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	if driver == "sqlite" {
		// sqlite allows a single writer.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	log.WithField("driver", driver).Info("database connection established")
	return &Storage{db: db}, nil
}

// Migrate creates or updates the schema.
func (s *Storage) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&boardModel{}, &columnModel{}, &taskModel{})
}

// Ping checks that the database answers.
func (s *Storage) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func failure(op string, err error) error {
	var derr *domain.Error
	if errors.As(err, &derr) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.E(domain.KindNotFound, op, "not found")
	}
	return domain.Wrap(domain.KindInternal, op, err)
}

func byPosition(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC, created_at ASC, id ASC")
}

// ListBoards returns the organization's boards, newest first, without columns.
func (s *Storage) ListBoards(ctx context.Context, orgID string) ([]domain.Board, error) {
	const op = "storage.list_boards"
	var rows []boardModel
	err := s.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, failure(op, err)
	}
	out := make([]domain.Board, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// GetBoard returns a board with its columns and tasks in display order.
func (s *Storage) GetBoard(ctx context.Context, orgID, id string) (domain.Board, error) {
	const op = "storage.get_board"
	var row boardModel
	err := s.db.WithContext(ctx).
		Preload("Columns", byPosition).
		Preload("Columns.Tasks", byPosition).
		Where("id = ? AND org_id = ?", id, orgID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Board{}, domain.E(domain.KindNotFound, op, "board not found")
	}
	if err != nil {
		return domain.Board{}, failure(op, err)
	}
	return row.toDomain(), nil
}

func (s *Storage) CreateBoard(ctx context.Context, orgID string, in domain.NewBoard) (domain.Board, error) {
	const op = "storage.create_board"
	row := boardModel{
		ID:    uuid.NewString(),
		OrgID: orgID,
		Title: in.Title,
		Image: datatypes.NewJSONType(in.Image),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return domain.Board{}, failure(op, err)
	}
	return row.toDomain(), nil
}

// DeleteBoard removes a board together with its columns and tasks.
func (s *Storage) DeleteBoard(ctx context.Context, orgID, id string) error {
	const op = "storage.delete_board"
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row boardModel
		if err := tx.Where("id = ? AND org_id = ?", id, orgID).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.E(domain.KindNotFound, op, "board not found")
			}
			return err
		}
		columns := tx.Model(&columnModel{}).Select("id").Where("board_id = ?", id)
		if err := tx.Where("column_id IN (?)", columns).Delete(&taskModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("board_id = ?", id).Delete(&columnModel{}).Error; err != nil {
			return err
		}
		return tx.Delete(&row).Error
	})
	return failure(op, err)
}

func scopedBoard(tx *gorm.DB, op, orgID, id string) (boardModel, error) {
	var row boardModel
	err := tx.Where("id = ? AND org_id = ?", id, orgID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return row, domain.E(domain.KindNotFound, op, "board not found")
	}
	return row, err
}

// lockedBoard selects the board row FOR UPDATE. Writes that rank columns or
// tasks of a board take this lock first so concurrent rankings of the same
// board run one after another. sqlite ignores the clause; its single writer
// already serializes them.
func lockedBoard(tx *gorm.DB, id string) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		Select("id").
		Where("id = ?", id)
}

func lockBoard(tx *gorm.DB, id string) error {
	return lockedBoard(tx, id).Take(&boardModel{}).Error
}

func scopedColumn(tx *gorm.DB, op, orgID, id string) (columnModel, error) {
	var row columnModel
	err := tx.Select("board_columns.*").
		Joins("JOIN boards ON boards.id = board_columns.board_id").
		Where("board_columns.id = ? AND boards.org_id = ?", id, orgID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return row, domain.E(domain.KindNotFound, op, "column not found")
	}
	return row, err
}

func scopedTask(tx *gorm.DB, op, orgID, id string) (taskModel, error) {
	var row taskModel
	err := tx.Select("tasks.*").
		Joins("JOIN board_columns ON board_columns.id = tasks.column_id").
		Joins("JOIN boards ON boards.id = board_columns.board_id").
		Where("tasks.id = ? AND boards.org_id = ?", id, orgID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return row, domain.E(domain.KindNotFound, op, "task not found")
	}
	return row, err
}

func loadColumns(tx *gorm.DB, boardID string) ([]domain.Column, error) {
	var rows []columnModel
	if err := byPosition(tx.Where("board_id = ?", boardID)).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Column, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func loadTasks(tx *gorm.DB, columnID string) ([]domain.Task, error) {
	var rows []taskModel
	if err := byPosition(tx.Where("column_id = ?", columnID)).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Task, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// saveColumnPositions writes slice positions as ranks, touching only the rows
// whose rank changed.
func saveColumnPositions(tx *gorm.DB, cs []domain.Column) error {
	for i := range cs {
		if cs[i].Order == i {
			continue
		}
		if err := tx.Model(&columnModel{}).Where("id = ?", cs[i].ID).Update("position", i).Error; err != nil {
			return err
		}
		cs[i].Order = i
	}
	return nil
}

func saveTaskPositions(tx *gorm.DB, columnID string, ts []domain.Task) error {
	for i := range ts {
		if ts[i].Order == i && ts[i].ColumnID == columnID {
			continue
		}
		err := tx.Model(&taskModel{}).Where("id = ?", ts[i].ID).
			Updates(map[string]any{"position": i, "column_id": columnID}).Error
		if err != nil {
			return err
		}
		ts[i].Order = i
		ts[i].ColumnID = columnID
	}
	return nil
}

func removeTaskByID(ts []domain.Task, id string) []domain.Task {
	out := ts[:0]
	for _, t := range ts {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}

func removeColumnByID(cs []domain.Column, id string) []domain.Column {
	out := cs[:0]
	for _, c := range cs {
		if c.ID != id {
			out = append(out, c)
		}
	}
	return out
}

// CreateColumn appends a column after the board's current last column.
func (s *Storage) CreateColumn(ctx context.Context, orgID string, in domain.NewColumn) (domain.Column, error) {
	const op = "storage.create_column"
	var row columnModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := scopedBoard(tx, op, orgID, in.BoardID); err != nil {
			return err
		}
		if err := lockBoard(tx, in.BoardID); err != nil {
			return err
		}
		next, err := nextPosition(tx, &columnModel{}, "board_id = ?", in.BoardID)
		if err != nil {
			return err
		}
		row = columnModel{ID: uuid.NewString(), BoardID: in.BoardID, Title: in.Title, Position: next}
		return tx.Create(&row).Error
	})
	if err != nil {
		return domain.Column{}, failure(op, err)
	}
	return row.toDomain(), nil
}

func nextPosition(tx *gorm.DB, model any, where string, args ...any) (int, error) {
	var last int
	err := tx.Model(model).Where(where, args...).Select("COALESCE(MAX(position), -1)").Row().Scan(&last)
	if err != nil {
		return 0, err
	}
	return last + 1, nil
}

// UpdateColumn renames and/or moves a column. A new order places the column at
// that index and renumbers its siblings.
func (s *Storage) UpdateColumn(ctx context.Context, orgID, id string, p domain.ColumnPatch) (domain.Column, error) {
	const op = "storage.update_column"
	var out domain.Column
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := scopedColumn(tx, op, orgID, id)
		if err != nil {
			return err
		}
		if p.Order != nil {
			if err := lockBoard(tx, row.BoardID); err != nil {
				return err
			}
		}
		if p.Title != nil {
			if err := tx.Model(&row).Update("title", *p.Title).Error; err != nil {
				return err
			}
			row.Title = *p.Title
		}
		out = row.toDomain()
		if p.Order == nil {
			return nil
		}
		cols, err := loadColumns(tx, row.BoardID)
		if err != nil {
			return err
		}
		cols = domain.InsertColumn(removeColumnByID(cols, id), out, *p.Order)
		if err := saveColumnPositions(tx, cols); err != nil {
			return err
		}
		for _, c := range cols {
			if c.ID == id {
				out.Order = c.Order
			}
		}
		return nil
	})
	if err != nil {
		return domain.Column{}, failure(op, err)
	}
	return out, nil
}

// DeleteColumn removes a column and its tasks and closes the gap it leaves.
// It returns the id of the board that held the column.
func (s *Storage) DeleteColumn(ctx context.Context, orgID, id string) (string, error) {
	const op = "storage.delete_column"
	var boardID string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := scopedColumn(tx, op, orgID, id)
		if err != nil {
			return err
		}
		boardID = row.BoardID
		if err := lockBoard(tx, boardID); err != nil {
			return err
		}
		if err := tx.Where("column_id = ?", id).Delete(&taskModel{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&row).Error; err != nil {
			return err
		}
		cols, err := loadColumns(tx, boardID)
		if err != nil {
			return err
		}
		return saveColumnPositions(tx, cols)
	})
	if err != nil {
		return "", failure(op, err)
	}
	return boardID, nil
}

// CreateTask appends a task to the end of its column. It returns the task and
// the id of the board it belongs to.
func (s *Storage) CreateTask(ctx context.Context, orgID string, in domain.NewTask) (domain.Task, string, error) {
	const op = "storage.create_task"
	var row taskModel
	var boardID string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		col, err := scopedColumn(tx, op, orgID, in.ColumnID)
		if err != nil {
			return err
		}
		boardID = col.BoardID
		if err := lockBoard(tx, boardID); err != nil {
			return err
		}
		next, err := nextPosition(tx, &taskModel{}, "column_id = ?", col.ID)
		if err != nil {
			return err
		}
		row = taskModel{
			ID:          uuid.NewString(),
			ColumnID:    col.ID,
			Title:       in.Title,
			Description: in.Description,
			Priority:    string(in.Priority),
			CreatorName: in.CreatorName,
			Position:    next,
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		return domain.Task{}, "", failure(op, err)
	}
	return row.toDomain(), boardID, nil
}

// UpdateTask applies the fields set in p. A column change without an order
// appends the task to the target column; an order places it at that index.
// Both the source and the target column are renumbered.
func (s *Storage) UpdateTask(ctx context.Context, orgID, id string, p domain.TaskPatch) (domain.Task, string, error) {
	const op = "storage.update_task"
	var out domain.Task
	var boardID string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := scopedTask(tx, op, orgID, id)
		if err != nil {
			return err
		}
		src, err := scopedColumn(tx, op, orgID, row.ColumnID)
		if err != nil {
			return err
		}
		boardID = src.BoardID
		if p.Moves() {
			if err := lockBoard(tx, boardID); err != nil {
				return err
			}
			// A move committed while waiting for the lock may have changed
			// the task's column or rank.
			if row, err = scopedTask(tx, op, orgID, id); err != nil {
				return err
			}
			if src, err = scopedColumn(tx, op, orgID, row.ColumnID); err != nil {
				return err
			}
		}

		fields := map[string]any{}
		if p.Title != nil {
			fields["title"] = *p.Title
		}
		if p.Description != nil {
			fields["description"] = *p.Description
		}
		if p.Priority != nil {
			fields["priority"] = string(*p.Priority)
		}
		if len(fields) > 0 {
			if err := tx.Model(&row).Updates(fields).Error; err != nil {
				return err
			}
		}
		out = p.ApplyFields(row.toDomain())
		if !p.Moves() {
			return nil
		}
		return moveTask(tx, op, orgID, &out, src, p)
	})
	if err != nil {
		return domain.Task{}, "", failure(op, err)
	}
	return out, boardID, nil
}

func moveTask(tx *gorm.DB, op, orgID string, t *domain.Task, src columnModel, p domain.TaskPatch) error {
	dst := src
	if p.ColumnID != nil && *p.ColumnID != src.ID {
		var err error
		if dst, err = scopedColumn(tx, op, orgID, *p.ColumnID); err != nil {
			return err
		}
		if dst.BoardID != src.BoardID {
			return domain.E(domain.KindInvalidInput, op, "target column belongs to another board")
		}
	}

	siblings, err := loadTasks(tx, dst.ID)
	if err != nil {
		return err
	}
	index := t.Order
	switch {
	case p.Order != nil:
		index = *p.Order
	case dst.ID != src.ID:
		index = len(siblings)
	}
	siblings = domain.InsertTask(removeTaskByID(siblings, t.ID), *t, index)
	if err := saveTaskPositions(tx, dst.ID, siblings); err != nil {
		return err
	}
	for _, s := range siblings {
		if s.ID == t.ID {
			*t = s
		}
	}
	if dst.ID == src.ID {
		return nil
	}
	rest, err := loadTasks(tx, src.ID)
	if err != nil {
		return err
	}
	return saveTaskPositions(tx, src.ID, rest)
}

// DeleteTask removes a task and closes the gap in its column. It returns the
// id of the board that held the task.
func (s *Storage) DeleteTask(ctx context.Context, orgID, id string) (string, error) {
	const op = "storage.delete_task"
	var boardID string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := scopedTask(tx, op, orgID, id)
		if err != nil {
			return err
		}
		col, err := scopedColumn(tx, op, orgID, row.ColumnID)
		if err != nil {
			return err
		}
		boardID = col.BoardID
		if err := lockBoard(tx, boardID); err != nil {
			return err
		}
		if err := tx.Delete(&row).Error; err != nil {
			return err
		}
		rest, err := loadTasks(tx, col.ID)
		if err != nil {
			return err
		}
		return saveTaskPositions(tx, col.ID, rest)
	})
	if err != nil {
		return "", failure(op, err)
	}
	return boardID, nil
}
