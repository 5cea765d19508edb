package api

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"prism-board/domain"
)

// streamBoard sends a server-sent event for every change to one board. Events
// carry ids only; clients refetch the board when one arrives.
func (s *server) streamBoard(c echo.Context) error {
	const op = "boards.stream"
	id := identityFrom(c)
	m := metricsFrom(c)

	boardID, err := requiredID(c, op)
	if err != nil {
		return respondError(c, "validate", err)
	}
	ctx, cancel := s.requestContext(c)
	start := time.Now()
	_, err = s.store.GetBoard(ctx, id.OrgID, boardID)
	cancel()
	m.ObserveStorage(time.Since(start))
	if err != nil {
		return respondError(c, "storage", err)
	}

	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return c.String(http.StatusInternalServerError, "stream unsupported")
	}
	events, unsubscribe := s.broker.Subscribe(boardID)
	defer unsubscribe()

	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set(echo.HeaderCacheControl, "no-cache")
	h.Set(echo.HeaderConnection, "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)
	if _, err := c.Response().Write([]byte(": connected\n\n")); err != nil {
		return nil
	}
	flusher.Flush()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()
	done := c.Request().Context().Done()
	sent := 0
	defer func() { m.SetEntities(sent) }()
	for {
		var frame []byte
		last := false
		select {
		case <-done:
			return nil
		case <-heartbeat.C:
			frame = []byte(": ping\n\n")
		case ev := <-events:
			if ev.OrgID != "" && ev.OrgID != id.OrgID {
				continue
			}
			data, err := sonic.Marshal(ev)
			if err != nil {
				s.log.WithError(err).Warn("encode stream event")
				continue
			}
			frame = append(append([]byte("data: "), data...), '\n', '\n')
			sent++
			last = ev.Type == domain.EventBoardDeleted
		}
		if _, err := c.Response().Write(frame); err != nil {
			return nil
		}
		flusher.Flush()
		if last {
			return nil
		}
	}
}
