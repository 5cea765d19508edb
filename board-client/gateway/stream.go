package gateway

import (
	"bufio"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"prism-board/domain"
)

// Watch follows the board update stream and calls fn for every event. Dropped
// connections are re-established with backoff until ctx ends. Authentication
// and scope failures end the watch.
func (c *Client) Watch(ctx context.Context, boardID string, fn func(domain.BoardEvent)) error {
	const op = "gateway.watch"
	backoff := time.Second
	for {
		err := c.stream(ctx, boardID, fn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if k := domain.KindOf(err); k.Fatal() || k == domain.KindNotFound {
			return err
		}
		if err != nil {
			c.Logger.WithError(err).WithField("board", boardID).Debug("update stream dropped")
		} else {
			backoff = time.Second
		}
		select {
		case <-ctx.Done():
			return domain.Wrap(domain.KindInternal, op, ctx.Err())
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 5*time.Second)
	}
}

func (c *Client) stream(ctx context.Context, boardID string, fn func(domain.BoardEvent)) error {
	const op = "gateway.watch"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/boards/stream?"+idQuery(boardID).Encode(), nil)
	if err != nil {
		return domain.Wrap(domain.KindInternal, op, err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if c.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.Bearer)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return domain.Wrap(domain.KindInternal, op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusError(op, resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		var ev domain.BoardEvent
		if err := sonic.UnmarshalString(strings.TrimSpace(strings.TrimPrefix(line, "data:")), &ev); err != nil {
			c.Logger.WithError(err).Debug("skipping malformed stream event")
			continue
		}
		fn(ev)
	}
	if err := scanner.Err(); err != nil {
		return domain.Wrap(domain.KindInternal, op, err)
	}
	return nil
}
