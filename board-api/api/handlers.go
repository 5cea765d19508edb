package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"prism-board/domain"
)

const (
	defaultRequestTimeout = 5 * time.Second
	defaultHeartbeat      = 15 * time.Second
	publishTimeout        = time.Second
)

// Options carries the optional collaborators of the API.
type Options struct {
	// Publisher receives an event after every successful write.
	Publisher Publisher
	// Broker feeds the update stream. The stream route is not registered
	// without one.
	Broker      Broker
	Idempotency IdempotencyStore
	// RequestTimeout bounds the storage work of a single request.
	RequestTimeout time.Duration
	Heartbeat      time.Duration
}

type server struct {
	store     Storage
	pub       Publisher
	broker    Broker
	timeout   time.Duration
	heartbeat time.Duration
	log       *log.Logger
}

// Register wires up the board API routes on the given Echo instance.
func Register(e *echo.Echo, store Storage, auth Authenticator, logger *log.Logger, opts Options) {
	s := &server{
		store:     store,
		pub:       opts.Publisher,
		broker:    opts.Broker,
		timeout:   opts.RequestTimeout,
		heartbeat: opts.Heartbeat,
		log:       logger,
	}
	if s.timeout <= 0 {
		s.timeout = defaultRequestTimeout
	}
	if s.heartbeat <= 0 {
		s.heartbeat = defaultHeartbeat
	}
	e.JSONSerializer = sonicSerializer{}

	authed := []echo.MiddlewareFunc{observe(logger), requireIdentity(auth, false)}
	writes := append(authed[:len(authed):len(authed)], idempotent(opts.Idempotency, logger))

	e.GET("/healthz", s.health)

	e.GET("/boards", s.getBoards, authed...)
	e.POST("/boards", s.createBoard, writes...)
	e.DELETE("/boards", s.deleteBoard, authed...)

	e.POST("/columns", s.createColumn, writes...)
	e.PATCH("/columns", s.updateColumn, authed...)
	e.DELETE("/columns", s.deleteColumn, authed...)

	e.POST("/tasks", s.createTask, writes...)
	e.PATCH("/tasks", s.updateTask, authed...)
	e.DELETE("/tasks", s.deleteTask, authed...)

	if s.broker != nil {
		e.GET("/boards/stream", s.streamBoard, observe(logger), requireIdentity(auth, true))
	}
}

func (s *server) requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), s.timeout)
}

func (s *server) publish(c echo.Context, typ, orgID, boardID, entityID string) {
	if s.pub == nil || boardID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), publishTimeout)
	defer cancel()
	ev := domain.BoardEvent{Type: typ, OrgID: orgID, BoardID: boardID, EntityID: entityID, At: time.Now().UTC()}
	if err := s.pub.Publish(ctx, ev); err != nil {
		s.log.WithError(err).WithFields(log.Fields{"board": boardID, "type": typ}).Warn("publish board update failed")
	}
}

func (s *server) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.log.WithError(err).Warn("health check failed")
		return c.String(http.StatusServiceUnavailable, "unavailable")
	}
	return c.NoContent(http.StatusNoContent)
}

// getBoards lists the organization's boards, or returns one board with its
// columns and tasks when ?id= is given.
func (s *server) getBoards(c echo.Context) error {
	id := identityFrom(c)
	m := metricsFrom(c)
	ctx, cancel := s.requestContext(c)
	defer cancel()

	start := time.Now()
	if boardID := c.QueryParam("id"); boardID != "" {
		board, err := s.store.GetBoard(ctx, id.OrgID, boardID)
		m.ObserveStorage(time.Since(start))
		if err != nil {
			return respondError(c, "storage", err)
		}
		m.SetEntities(board.TaskCount())
		return respond(c, board)
	}

	boards, err := s.store.ListBoards(ctx, id.OrgID)
	m.ObserveStorage(time.Since(start))
	if err != nil {
		return respondError(c, "storage", err)
	}
	if boards == nil {
		boards = []domain.Board{}
	}
	m.SetEntities(len(boards))
	return respond(c, boards)
}

func (s *server) createBoard(c echo.Context) error {
	const op = "boards.create"
	id := identityFrom(c)
	m := metricsFrom(c)

	var in domain.NewBoard
	if err := decodeBody(c, op, &in); err != nil {
		return respondError(c, "decode", err)
	}
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return respondError(c, "validate", err)
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()
	start := time.Now()
	board, err := s.store.CreateBoard(ctx, id.OrgID, in)
	m.ObserveStorage(time.Since(start))
	if err != nil {
		return respondError(c, "storage", err)
	}
	m.SetEntities(1)
	return respond(c, board)
}

func (s *server) deleteBoard(c echo.Context) error {
	const op = "boards.delete"
	id := identityFrom(c)
	m := metricsFrom(c)

	boardID, err := requiredID(c, op)
	if err != nil {
		return respondError(c, "validate", err)
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()
	start := time.Now()
	err = s.store.DeleteBoard(ctx, id.OrgID, boardID)
	m.ObserveStorage(time.Since(start))
	if err != nil {
		return respondError(c, "storage", err)
	}
	s.publish(c, domain.EventBoardDeleted, id.OrgID, boardID, boardID)
	m.SetEntities(1)
	return respond(c, successResponse{Success: true})
}
