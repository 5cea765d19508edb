package gateway

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"prism-board/domain"
)

const maxErrorBody = 4 << 10

// Client talks to the board API. Failures are returned as *domain.Error with a
// kind derived from the response status; error bodies are never decoded as
// entities.
type Client struct {
	BaseURL string
	Bearer  string
	HTTP    *http.Client
	// Timeout bounds each attempt of a request.
	Timeout time.Duration
	// Retries is the number of extra attempts after a transport error or 5xx.
	Retries int
	Backoff time.Duration
	Logger  log.FieldLogger
}

// New creates a Client with a 10s per-request timeout and one retry.
func New(baseURL, bearer string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Bearer:  bearer,
		HTTP:    &http.Client{},
		Timeout: 10 * time.Second,
		Retries: 1,
		Backoff: 200 * time.Millisecond,
		Logger:  log.StandardLogger(),
	}
}

type request struct {
	op     string
	method string
	path   string
	query  url.Values
	body   any
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	var payload []byte
	if r.body != nil {
		var err error
		if payload, err = sonic.Marshal(r.body); err != nil {
			return domain.Wrap(domain.KindInternal, r.op, err)
		}
	}
	// One key per logical request so a retried POST is replayed, not repeated.
	idemKey := ""
	if r.method == http.MethodPost {
		idemKey = uuid.NewString()
	}

	var err error
	for attempt := 0; attempt <= c.Retries; attempt++ {
		if attempt > 0 {
			c.Logger.WithError(err).WithFields(log.Fields{"op": r.op, "attempt": attempt}).Debug("retrying request")
			select {
			case <-ctx.Done():
				return domain.Wrap(domain.KindInternal, r.op, ctx.Err())
			case <-time.After(c.Backoff * time.Duration(attempt)):
			}
		}
		var retry bool
		retry, err = c.attempt(ctx, r, payload, idemKey, out)
		if err == nil || !retry || ctx.Err() != nil {
			return err
		}
	}
	return err
}

func (c *Client) attempt(ctx context.Context, r request, payload []byte, idemKey string, out any) (bool, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	target := c.BaseURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return false, domain.Wrap(domain.KindInternal, r.op, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.Bearer)
	}
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return true, domain.Wrap(domain.KindInternal, r.op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode >= 500, statusError(r.op, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return false, nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return true, domain.Wrap(domain.KindInternal, r.op, err)
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return false, &domain.Error{Kind: domain.KindInternal, Op: r.op, Msg: "decode response", Err: err}
	}
	return false, nil
}

func statusError(op string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &domain.Error{Kind: domain.KindFromStatus(resp.StatusCode), Op: op, Msg: msg}
}

func idQuery(id string) url.Values { return url.Values{"id": {id}} }

// Health reports whether the API and its dependencies answer.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, request{op: "gateway.health", method: http.MethodGet, path: "/healthz"}, nil)
}

// ListBoards returns the boards of the caller's organization, newest first.
func (c *Client) ListBoards(ctx context.Context) ([]domain.Board, error) {
	var out []domain.Board
	err := c.do(ctx, request{op: "gateway.list_boards", method: http.MethodGet, path: "/boards"}, &out)
	return out, err
}

// GetBoard returns a board with its columns and tasks.
func (c *Client) GetBoard(ctx context.Context, id string) (domain.Board, error) {
	var out domain.Board
	err := c.do(ctx, request{op: "gateway.get_board", method: http.MethodGet, path: "/boards", query: idQuery(id)}, &out)
	return out, err
}

func (c *Client) CreateBoard(ctx context.Context, in domain.NewBoard) (domain.Board, error) {
	var out domain.Board
	err := c.do(ctx, request{op: "gateway.create_board", method: http.MethodPost, path: "/boards", body: in}, &out)
	return out, err
}

func (c *Client) DeleteBoard(ctx context.Context, id string) error {
	return c.do(ctx, request{op: "gateway.delete_board", method: http.MethodDelete, path: "/boards", query: idQuery(id)}, nil)
}

func (c *Client) CreateColumn(ctx context.Context, in domain.NewColumn) (domain.Column, error) {
	var out domain.Column
	err := c.do(ctx, request{op: "gateway.create_column", method: http.MethodPost, path: "/columns", body: in}, &out)
	return out, err
}

type columnPatchBody struct {
	ID string `json:"id"`
	domain.ColumnPatch
}

func (c *Client) UpdateColumn(ctx context.Context, id string, p domain.ColumnPatch) (domain.Column, error) {
	var out domain.Column
	body := columnPatchBody{ID: id, ColumnPatch: p}
	err := c.do(ctx, request{op: "gateway.update_column", method: http.MethodPatch, path: "/columns", body: body}, &out)
	return out, err
}

func (c *Client) DeleteColumn(ctx context.Context, id string) error {
	return c.do(ctx, request{op: "gateway.delete_column", method: http.MethodDelete, path: "/columns", query: idQuery(id)}, nil)
}

func (c *Client) CreateTask(ctx context.Context, in domain.NewTask) (domain.Task, error) {
	var out domain.Task
	err := c.do(ctx, request{op: "gateway.create_task", method: http.MethodPost, path: "/tasks", body: in}, &out)
	return out, err
}

type taskPatchBody struct {
	ID string `json:"id"`
	domain.TaskPatch
}

// UpdateTask sends only the fields set in p.
func (c *Client) UpdateTask(ctx context.Context, id string, p domain.TaskPatch) (domain.Task, error) {
	var out domain.Task
	body := taskPatchBody{ID: id, TaskPatch: p}
	err := c.do(ctx, request{op: "gateway.update_task", method: http.MethodPatch, path: "/tasks", body: body}, &out)
	return out, err
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, request{op: "gateway.delete_task", method: http.MethodDelete, path: "/tasks", query: idQuery(id)}, nil)
}
