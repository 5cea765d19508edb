package api

import (
	"time"

	"github.com/labstack/echo/v4"

	"prism-board/domain"
)

type taskPatchRequest struct {
	ID string `json:"id"`
	domain.TaskPatch
}

// createTask appends a task to its column. The creator name defaults to the
// caller's display name.
func (s *server) createTask(c echo.Context) error {
	const op = "tasks.create"
	id := identityFrom(c)
	m := metricsFrom(c)

	var in domain.NewTask
	if err := decodeBody(c, op, &in); err != nil {
		return respondError(c, "decode", err)
	}
	in = in.Normalize()
	if in.CreatorName == "" {
		in.CreatorName = id.Name
	}
	if err := in.Validate(); err != nil {
		return respondError(c, "validate", err)
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()
	start := time.Now()
	task, boardID, err := s.store.CreateTask(ctx, id.OrgID, in)
	m.ObserveStorage(time.Since(start))
	if err != nil {
		return respondError(c, "storage", err)
	}
	s.publish(c, domain.EventTaskChanged, id.OrgID, boardID, task.ID)
	m.SetEntities(1)
	return respond(c, task)
}

// updateTask changes only the fields present in the body.
func (s *server) updateTask(c echo.Context) error {
	const op = "tasks.update"
	id := identityFrom(c)
	m := metricsFrom(c)

	var req taskPatchRequest
	if err := decodeBody(c, op, &req); err != nil {
		return respondError(c, "decode", err)
	}
	if req.ID == "" {
		return respondError(c, "validate", domain.E(domain.KindInvalidInput, op, "id is required"))
	}
	patch := req.TaskPatch.Normalize()
	if err := patch.Validate(); err != nil {
		return respondError(c, "validate", err)
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()
	start := time.Now()
	task, boardID, err := s.store.UpdateTask(ctx, id.OrgID, req.ID, patch)
	m.ObserveStorage(time.Since(start))
	if err != nil {
		return respondError(c, "storage", err)
	}
	s.publish(c, domain.EventTaskChanged, id.OrgID, boardID, task.ID)
	m.SetEntities(1)
	return respond(c, task)
}

func (s *server) deleteTask(c echo.Context) error {
	const op = "tasks.delete"
	id := identityFrom(c)
	m := metricsFrom(c)

	taskID, err := requiredID(c, op)
	if err != nil {
		return respondError(c, "validate", err)
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()
	start := time.Now()
	boardID, err := s.store.DeleteTask(ctx, id.OrgID, taskID)
	m.ObserveStorage(time.Since(start))
	if err != nil {
		return respondError(c, "storage", err)
	}
	s.publish(c, domain.EventTaskDeleted, id.OrgID, boardID, taskID)
	m.SetEntities(1)
	return respond(c, successResponse{Success: true})
}
