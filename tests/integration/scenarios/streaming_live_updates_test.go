package scenarios

import (
	"context"
	"testing"
	"time"

	"prism-board/domain"
)

func TestStreamDeliversTaskChanges(t *testing.T) {
	gw, cfg := newGateway(t)
	ctx := testContext(t, cfg)
	b := newBoard(t, ctx, gw, "stream")
	col := newColumn(t, ctx, gw, b.ID, "Todo")

	watchCtx, cancel := context.WithTimeout(context.Background(), cfg.streamTimeout())
	defer cancel()

	events := make(chan domain.BoardEvent, 16)
	go func() {
		_ = gw.Watch(watchCtx, b.ID, func(ev domain.BoardEvent) {
			select {
			case events <- ev:
			default:
			}
		})
	}()

	// Writes keep coming until the subscriber is connected and sees one.
	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case ev := <-events:
			if ev.BoardID != b.ID {
				t.Fatalf("event for wrong board: %+v", ev)
			}
			if ev.Type != domain.EventTaskChanged {
				continue
			}
			return
		case <-ticker.C:
			newTask(t, ctx, gw, col.ID, "ping")
		case <-watchCtx.Done():
			t.Fatalf("no task-changed event within %v", cfg.streamTimeout())
		}
	}
}
