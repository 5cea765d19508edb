package api

import (
	"time"

	"github.com/labstack/echo/v4"

	"prism-board/domain"
)

type columnPatchRequest struct {
	ID string `json:"id"`
	domain.ColumnPatch
}

func (s *server) createColumn(c echo.Context) error {
	const op = "columns.create"
	id := identityFrom(c)
	m := metricsFrom(c)

	var in domain.NewColumn
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
	col, err := s.store.CreateColumn(ctx, id.OrgID, in)
	m.ObserveStorage(time.Since(start))
	if err != nil {
		return respondError(c, "storage", err)
	}
	s.publish(c, domain.EventColumnChanged, id.OrgID, col.BoardID, col.ID)
	m.SetEntities(1)
	return respond(c, col)
}

// updateColumn renames a column and/or moves it to a new index.
func (s *server) updateColumn(c echo.Context) error {
	const op = "columns.update"
	id := identityFrom(c)
	m := metricsFrom(c)

	var req columnPatchRequest
	if err := decodeBody(c, op, &req); err != nil {
		return respondError(c, "decode", err)
	}
	if req.ID == "" {
		return respondError(c, "validate", domain.E(domain.KindInvalidInput, op, "id is required"))
	}
	patch := req.ColumnPatch.Normalize()
	if err := patch.Validate(); err != nil {
		return respondError(c, "validate", err)
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()
	start := time.Now()
	col, err := s.store.UpdateColumn(ctx, id.OrgID, req.ID, patch)
	m.ObserveStorage(time.Since(start))
	if err != nil {
		return respondError(c, "storage", err)
	}
	s.publish(c, domain.EventColumnChanged, id.OrgID, col.BoardID, col.ID)
	m.SetEntities(1)
	return respond(c, col)
}

func (s *server) deleteColumn(c echo.Context) error {
	const op = "columns.delete"
	id := identityFrom(c)
	m := metricsFrom(c)

	columnID, err := requiredID(c, op)
	if err != nil {
		return respondError(c, "validate", err)
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()
	start := time.Now()
	boardID, err := s.store.DeleteColumn(ctx, id.OrgID, columnID)
	m.ObserveStorage(time.Since(start))
	if err != nil {
		return respondError(c, "storage", err)
	}
	s.publish(c, domain.EventColumnDeleted, id.OrgID, boardID, columnID)
	m.SetEntities(1)
	return respond(c, successResponse{Success: true})
}
