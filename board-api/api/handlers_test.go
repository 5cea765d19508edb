package api

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"prism-board/board-api/storage"
	"prism-board/board-api/subscription"
	"prism-board/domain"
)

var testSecret = []byte("test-secret")

type testEnv struct {
	e     *echo.Echo
	store *storage.Storage
	hub   *subscription.Hub
	redis *miniredis.Miniredis
}

func quietLogger() *log.Logger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

func testAuth() *Auth {
	return &Auth{
		TestMode:   true,
		TestSecret: testSecret,
		OrgClaim:   "org_id",
		parser:     jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})),
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	hub := subscription.NewHub()
	e := echo.New()
	e.Use(GzipRequestMiddleware())
	Register(e, store, testAuth(), quietLogger(), Options{
		Publisher:      hub,
		Broker:         hub,
		Idempotency:    NewRedisIdempotency(rc, time.Hour),
		RequestTimeout: 2 * time.Second,
		Heartbeat:      50 * time.Millisecond,
	})
	return &testEnv{e: e, store: store, hub: hub, redis: mr}
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(5 * time.Minute).Unix()
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func orgToken(t *testing.T, org string) string {
	return signToken(t, jwt.MapClaims{"sub": "user-" + org, "org_id": org, "name": "Ada " + org})
}

func (env *testEnv) do(t *testing.T, token, method, target string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := sonic.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

// seed creates a board with the given columns and returns it with ids filled in.
func (env *testEnv) seed(t *testing.T, token string, columns ...string) (domain.Board, []domain.Column) {
	t.Helper()
	rec := env.do(t, token, http.MethodPost, "/boards", domain.NewBoard{Title: "Sprint"})
	expectStatus(t, rec, http.StatusOK)
	board := decode[domain.Board](t, rec)
	var cols []domain.Column
	for _, title := range columns {
		rec := env.do(t, token, http.MethodPost, "/columns", domain.NewColumn{Title: title, BoardID: board.ID})
		expectStatus(t, rec, http.StatusOK)
		cols = append(cols, decode[domain.Column](t, rec))
	}
	return board, cols
}

func (env *testEnv) createTask(t *testing.T, token, columnID, title string) domain.Task {
	t.Helper()
	rec := env.do(t, token, http.MethodPost, "/tasks", domain.NewTask{Title: title, ColumnID: columnID})
	expectStatus(t, rec, http.StatusOK)
	return decode[domain.Task](t, rec)
}

func TestMoveTaskThroughAPI(t *testing.T) {
	env := newTestEnv(t)
	token := orgToken(t, "org-1")
	board, cols := env.seed(t, token, "Todo", "Done")

	t1 := env.createTask(t, token, cols[0].ID, "Write spec")
	env.createTask(t, token, cols[0].ID, "Review")
	if t1.Order != 0 || t1.Priority != domain.PriorityMedium {
		t.Fatalf("unexpected created task %+v", t1)
	}

	rec := env.do(t, token, http.MethodPatch, "/tasks", map[string]any{"id": t1.ID, "columnId": cols[1].ID, "order": 0})
	expectStatus(t, rec, http.StatusOK)
	moved := decode[domain.Task](t, rec)
	if moved.ColumnID != cols[1].ID || moved.Order != 0 {
		t.Fatalf("unexpected moved task %+v", moved)
	}

	rec = env.do(t, token, http.MethodGet, "/boards?id="+board.ID, nil)
	expectStatus(t, rec, http.StatusOK)
	got := decode[domain.Board](t, rec)
	if len(got.Columns) != 2 || len(got.Columns[0].Tasks) != 1 || got.Columns[0].Tasks[0].Order != 0 {
		t.Fatalf("source column not renumbered: %+v", got.Columns)
	}
	if len(got.Columns[1].Tasks) != 1 || got.Columns[1].Tasks[0].ID != t1.ID {
		t.Fatalf("task not in target column: %+v", got.Columns[1])
	}
}

func TestListBoardsOmitsColumns(t *testing.T) {
	env := newTestEnv(t)
	token := orgToken(t, "org-1")

	rec := env.do(t, token, http.MethodGet, "/boards", nil)
	expectStatus(t, rec, http.StatusOK)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Fatalf("expected empty list, got %s", rec.Body.String())
	}

	env.seed(t, token, "Todo")
	rec = env.do(t, token, http.MethodGet, "/boards", nil)
	boards := decode[[]domain.Board](t, rec)
	if len(boards) != 1 || boards[0].Columns != nil || boards[0].OrgID != "org-1" {
		t.Fatalf("unexpected boards %+v", boards)
	}
}

func TestAuthFailures(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "", http.MethodGet, "/boards", nil)
	expectStatus(t, rec, http.StatusUnauthorized)
	if rec.Body.String() != "missing authorization header" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}

	noOrg := signToken(t, jwt.MapClaims{"sub": "user-1"})
	rec = env.do(t, noOrg, http.MethodGet, "/boards", nil)
	expectStatus(t, rec, http.StatusForbidden)

	expired := signToken(t, jwt.MapClaims{"sub": "user-1", "org_id": "org-1", "exp": time.Now().Add(-time.Hour).Unix()})
	rec = env.do(t, expired, http.MethodGet, "/boards", nil)
	expectStatus(t, rec, http.StatusUnauthorized)
}

func TestOtherOrganizationSeesNotFound(t *testing.T) {
	env := newTestEnv(t)
	owner := orgToken(t, "org-1")
	other := orgToken(t, "org-2")
	board, cols := env.seed(t, owner, "Todo")
	task := env.createTask(t, owner, cols[0].ID, "Secret")

	expectStatus(t, env.do(t, other, http.MethodGet, "/boards?id="+board.ID, nil), http.StatusNotFound)
	expectStatus(t, env.do(t, other, http.MethodPost, "/tasks", domain.NewTask{Title: "x", ColumnID: cols[0].ID}), http.StatusNotFound)
	expectStatus(t, env.do(t, other, http.MethodPatch, "/tasks", map[string]any{"id": task.ID, "title": "mine"}), http.StatusNotFound)
	expectStatus(t, env.do(t, other, http.MethodDelete, "/columns?id="+cols[0].ID, nil), http.StatusNotFound)
	expectStatus(t, env.do(t, other, http.MethodDelete, "/boards?id="+board.ID, nil), http.StatusNotFound)
}

func TestPartialTaskUpdate(t *testing.T) {
	env := newTestEnv(t)
	token := orgToken(t, "org-1")
	_, cols := env.seed(t, token, "Todo")

	rec := env.do(t, token, http.MethodPost, "/tasks", map[string]any{
		"title": "  Write spec ", "description": "details", "columnId": cols[0].ID, "priority": "low",
	})
	expectStatus(t, rec, http.StatusOK)
	task := decode[domain.Task](t, rec)
	if task.Title != "Write spec" || task.CreatorName != "Ada org-1" {
		t.Fatalf("unexpected created task %+v", task)
	}

	rec = env.do(t, token, http.MethodPatch, "/tasks", map[string]any{"id": task.ID, "priority": "high"})
	expectStatus(t, rec, http.StatusOK)
	updated := decode[domain.Task](t, rec)
	if updated.Title != "Write spec" || updated.Description != "details" || updated.Priority != domain.PriorityHigh {
		t.Fatalf("unexpected update %+v", updated)
	}
}

func TestValidationErrors(t *testing.T) {
	env := newTestEnv(t)
	token := orgToken(t, "org-1")
	_, cols := env.seed(t, token, "Todo")

	rec := env.do(t, token, http.MethodPost, "/tasks", domain.NewTask{Title: "   ", ColumnID: cols[0].ID})
	expectStatus(t, rec, http.StatusBadRequest)
	if rec.Body.String() != "title is required" {
		t.Fatalf("unexpected message %q", rec.Body.String())
	}

	rec = env.do(t, token, http.MethodPost, "/tasks", map[string]any{"title": "x", "columnId": cols[0].ID, "priority": "urgent"})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = env.do(t, token, http.MethodPatch, "/columns", map[string]any{"id": cols[0].ID})
	expectStatus(t, rec, http.StatusBadRequest)

	rec = env.do(t, token, http.MethodPost, "/columns", map[string]any{"title": "x", "boardId": "b", "extra": true})
	expectStatus(t, rec, http.StatusBadRequest)

	expectStatus(t, env.do(t, token, http.MethodDelete, "/tasks", nil), http.StatusBadRequest)
}

func TestIdempotentCreateReplays(t *testing.T) {
	env := newTestEnv(t)
	token := orgToken(t, "org-1")
	board, cols := env.seed(t, token, "Todo")

	body := domain.NewTask{Title: "Once", ColumnID: cols[0].ID}
	first := env.do(t, token, http.MethodPost, "/tasks", body, headerIdempotencyKey, "key-1")
	expectStatus(t, first, http.StatusOK)
	second := env.do(t, token, http.MethodPost, "/tasks", body, headerIdempotencyKey, "key-1")
	expectStatus(t, second, http.StatusOK)

	if second.Header().Get(headerReplayed) != "true" {
		t.Fatalf("expected replay header")
	}
	if decode[domain.Task](t, first).ID != decode[domain.Task](t, second).ID {
		t.Fatalf("replay returned a different task")
	}

	other := env.do(t, orgToken(t, "org-2"), http.MethodPost, "/tasks", body, headerIdempotencyKey, "key-1")
	expectStatus(t, other, http.StatusNotFound)

	got, err := env.store.GetBoard(context.Background(), "org-1", board.ID)
	if err != nil {
		t.Fatalf("get board: %v", err)
	}
	if got.TaskCount() != 1 {
		t.Fatalf("expected one task, got %d", got.TaskCount())
	}
}

func TestIdempotencyKeyReleasedOnFailure(t *testing.T) {
	env := newTestEnv(t)
	token := orgToken(t, "org-1")
	_, cols := env.seed(t, token, "Todo")

	bad := env.do(t, token, http.MethodPost, "/tasks", domain.NewTask{Title: "", ColumnID: cols[0].ID}, headerIdempotencyKey, "key-2")
	expectStatus(t, bad, http.StatusBadRequest)
	good := env.do(t, token, http.MethodPost, "/tasks", domain.NewTask{Title: "Fixed", ColumnID: cols[0].ID}, headerIdempotencyKey, "key-2")
	expectStatus(t, good, http.StatusOK)
	if good.Header().Get(headerReplayed) != "" {
		t.Fatalf("failed attempt must not be replayed")
	}
}

func TestGzipRequestBody(t *testing.T) {
	env := newTestEnv(t)
	token := orgToken(t, "org-1")

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write([]byte(`{"title":"Compressed"}`))
	_ = zw.Close()

	req := httptest.NewRequest(http.MethodPost, "/boards", &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusOK)
	if decode[domain.Board](t, rec).Title != "Compressed" {
		t.Fatalf("unexpected board %s", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/boards", strings.NewReader("plain"))
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec = httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestWritesPublishEvents(t *testing.T) {
	env := newTestEnv(t)
	token := orgToken(t, "org-1")
	board, cols := env.seed(t, token, "Todo")

	events, cancel := env.hub.Subscribe(board.ID)
	defer cancel()

	task := env.createTask(t, token, cols[0].ID, "Announce")
	expectStatus(t, env.do(t, token, http.MethodDelete, "/columns?id="+cols[0].ID, nil), http.StatusOK)

	want := []domain.BoardEvent{
		{Type: domain.EventTaskChanged, EntityID: task.ID},
		{Type: domain.EventColumnDeleted, EntityID: cols[0].ID},
	}
	for _, w := range want {
		select {
		case ev := <-events:
			if ev.Type != w.Type || ev.EntityID != w.EntityID || ev.OrgID != "org-1" || ev.BoardID != board.ID {
				t.Fatalf("unexpected event %+v, want %+v", ev, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing %s event", w.Type)
		}
	}
}

func TestDeleteBoardCascades(t *testing.T) {
	env := newTestEnv(t)
	token := orgToken(t, "org-1")
	board, cols := env.seed(t, token, "Todo")
	task := env.createTask(t, token, cols[0].ID, "Gone")

	rec := env.do(t, token, http.MethodDelete, "/boards?id="+board.ID, nil)
	expectStatus(t, rec, http.StatusOK)
	if !decode[successResponse](t, rec).Success {
		t.Fatalf("expected success body")
	}
	expectStatus(t, env.do(t, token, http.MethodDelete, "/tasks?id="+task.ID, nil), http.StatusNotFound)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "", http.MethodGet, "/healthz", nil)
	expectStatus(t, rec, http.StatusNoContent)
}
