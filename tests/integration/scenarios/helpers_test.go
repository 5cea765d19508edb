package scenarios

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"prism-board/board-client/gateway"
	"prism-board/board-client/reconcile"
	"prism-board/board-client/store"
	"prism-board/domain"
	"prism-board/tests/integration/internal/httpclient"
	testutil "prism-board/tests/utils"
)

type testConfig struct {
	APIBase          string `yaml:"api_base"`
	HealthEndpoint   string `yaml:"health_endpoint"`
	Org              string `yaml:"org"`
	OtherOrg         string `yaml:"other_org"`
	RequestTimeoutMs int    `yaml:"request_timeout_ms"`
	StreamTimeoutMs  int    `yaml:"stream_timeout_ms"`
}

func (c testConfig) requestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

func (c testConfig) streamTimeout() time.Duration {
	return time.Duration(c.StreamTimeoutMs) * time.Millisecond
}

func loadConfig() testConfig {
	cfg := testConfig{
		APIBase:          "http://localhost:8080",
		HealthEndpoint:   "/healthz",
		Org:              "integration-org",
		OtherOrg:         "integration-other-org",
		RequestTimeoutMs: 5000,
		StreamTimeoutMs:  10000,
	}
	if data, err := os.ReadFile("../config.test.yaml"); err == nil {
		_ = yaml.Unmarshal(data, &cfg)
	}
	if v := os.Getenv("API_BASE"); v != "" {
		cfg.APIBase = v
	}
	if v := os.Getenv("HEALTH_ENDPOINT"); v != "" {
		cfg.HealthEndpoint = v
	}
	return cfg
}

// requireAPI skips the test unless the board API answers its health check.
func requireAPI(t *testing.T) testConfig {
	t.Helper()
	cfg := loadConfig()
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(cfg.APIBase + cfg.HealthEndpoint)
	if err != nil {
		t.Skipf("skipping, API not reachable: %v", err)
	}
	resp.Body.Close()
	return cfg
}

func bearerFor(t *testing.T, userID, orgID string) string {
	t.Helper()
	if tok := os.Getenv("TEST_BEARER"); tok != "" && orgID == loadConfig().Org {
		return tok
	}
	secret := os.Getenv("TEST_JWT_SECRET")
	if secret == "" {
		secret = "testsecret"
	}
	tok, err := testutil.SignedToken([]byte(secret), userID, orgID, time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return tok
}

func newHTTPClient(t *testing.T) (*httpclient.Client, testConfig) {
	cfg := requireAPI(t)
	return httpclient.New(cfg.APIBase, bearerFor(t, "integration-user", cfg.Org)), cfg
}

func newGateway(t *testing.T) (*gateway.Client, testConfig) {
	cfg := requireAPI(t)
	gw := gateway.New(cfg.APIBase, bearerFor(t, "integration-user", cfg.Org))
	gw.Timeout = cfg.requestTimeout()
	return gw, cfg
}

func testContext(t *testing.T, cfg testConfig) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 4*cfg.requestTimeout())
	t.Cleanup(cancel)
	return ctx
}

// newBoard creates a uniquely named board that is removed when the test ends.
func newBoard(t *testing.T, ctx context.Context, gw *gateway.Client, prefix string) domain.Board {
	t.Helper()
	b, err := gw.CreateBoard(ctx, domain.NewBoard{Title: fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())})
	if err != nil {
		t.Fatalf("create board: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := gw.DeleteBoard(ctx, b.ID); err != nil && !domain.IsKind(err, domain.KindNotFound) {
			t.Logf("cleanup board %s: %v", b.ID, err)
		}
	})
	return b
}

func newColumn(t *testing.T, ctx context.Context, gw *gateway.Client, boardID, title string) domain.Column {
	t.Helper()
	c, err := gw.CreateColumn(ctx, domain.NewColumn{Title: title, BoardID: boardID})
	if err != nil {
		t.Fatalf("create column %q: %v", title, err)
	}
	return c
}

func newTask(t *testing.T, ctx context.Context, gw *gateway.Client, columnID, title string) domain.Task {
	t.Helper()
	tk, err := gw.CreateTask(ctx, domain.NewTask{Title: title, ColumnID: columnID})
	if err != nil {
		t.Fatalf("create task %q: %v", title, err)
	}
	return tk
}

// startSession loads the board into a fresh store and engine.
func startSession(t *testing.T, ctx context.Context, gw *gateway.Client, boardID string) (*reconcile.Engine, *store.Store) {
	t.Helper()
	logger := log.New()
	logger.SetLevel(log.WarnLevel)
	st := store.New()
	eng := reconcile.New(gw, st, reconcile.Config{BoardID: boardID, Timeout: gw.Timeout, Logger: logger})
	t.Cleanup(eng.Close)
	if err := eng.Refresh(ctx, false); err != nil {
		t.Fatalf("load board: %v", err)
	}
	return eng, st
}

func columnByID(t *testing.T, b domain.Board, id string) domain.Column {
	t.Helper()
	ci := b.ColumnIndex(id)
	if ci < 0 {
		t.Fatalf("column %s missing from board %s", id, b.ID)
	}
	return b.Columns[ci]
}

func taskIDs(c domain.Column) []string {
	ids := make([]string, 0, len(c.Tasks))
	for _, tk := range c.Tasks {
		ids = append(ids, tk.ID)
	}
	return ids
}
