package scenarios

import (
	"net/http"
	"testing"

	"prism-board/domain"
	"prism-board/tests/integration/internal/assertx"
)

func TestBoardsAreScopedToOrganization(t *testing.T) {
	gw, cfg := newGateway(t)
	ctx := testContext(t, cfg)
	b := newBoard(t, ctx, gw, "scoped")
	col := newColumn(t, ctx, gw, b.ID, "Todo")

	outsider, _ := newHTTPClient(t)
	outsider = outsider.WithBearer(bearerFor(t, "outsider", cfg.OtherOrg))

	resp, err := outsider.GetJSON("/boards?id="+b.ID, nil)
	if err != nil {
		t.Fatalf("get foreign board: %v", err)
	}
	assertx.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = outsider.PostJSON("/tasks", domain.NewTask{Title: "intruder", ColumnID: col.ID}, nil)
	if err != nil {
		t.Fatalf("create foreign task: %v", err)
	}
	assertx.Equal(t, http.StatusNotFound, resp.StatusCode)

	var boards []domain.Board
	if _, err := outsider.GetJSON("/boards", &boards); err != nil {
		t.Fatalf("list boards: %v", err)
	}
	for _, ob := range boards {
		if ob.ID == b.ID {
			t.Fatalf("foreign org listed board %s", b.ID)
		}
	}

	resp, err = outsider.WithBearer(bearerFor(t, "no-org", "")).GetJSON("/boards", nil)
	if err != nil {
		t.Fatalf("list without org: %v", err)
	}
	assertx.Equal(t, http.StatusForbidden, resp.StatusCode)
}
