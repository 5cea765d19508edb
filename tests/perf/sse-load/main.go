package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"prism-board/board-client/gateway"
	"prism-board/domain"
	testutil "prism-board/tests/utils"
)

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func main() {
	apiBase := strings.TrimRight(getenv("API_BASE", "http://localhost:8080"), "/")
	conns := getenvInt("SSE_CONNECTIONS", 200)
	duration := time.Duration(getenvInt("DURATION_SEC", 120)) * time.Second
	writeEvery := time.Duration(getenvInt("WRITE_INTERVAL_MS", 500)) * time.Millisecond
	bearer := os.Getenv("TEST_BEARER")
	if bearer == "" {
		var err error
		if bearer, err = testutil.TestToken("sse-load", getenv("TEST_ORG", "perf-org")); err != nil {
			log.Fatalf("TEST_BEARER not set and no test token: %v", err)
		}
	}

	var events uint64
	var attempts uint64
	var failures uint64

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	api := gateway.New(apiBase, bearer)
	boardID, taskID, err := seedBoard(ctx, api)
	if err != nil {
		log.Fatalf("seed board: %v", err)
	}
	defer func() {
		cleanup, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := api.DeleteBoard(cleanup, boardID); err != nil {
			log.WithError(err).Warn("delete load board")
		}
	}()
	streamURL := apiBase + "/boards/stream?id=" + boardID
	go generateWrites(ctx, api, taskID, writeEvery)

	client := &http.Client{}
	var wg sync.WaitGroup
	wg.Add(conns)
	for i := 0; i < conns; i++ {
		go func() {
			defer wg.Done()
			backoff := time.Second
			for {
				if ctx.Err() != nil {
					return
				}
				atomic.AddUint64(&attempts, 1)
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
				if err != nil {
					atomic.AddUint64(&failures, 1)
					time.Sleep(backoff)
					backoff = min(backoff*2, 5*time.Second)
					continue
				}
				if bearer != "" {
					req.Header.Set("Authorization", "Bearer "+bearer)
				}
				resp, err := client.Do(req)
				if err != nil || resp.StatusCode != http.StatusOK {
					if resp != nil {
						resp.Body.Close()
					}
					atomic.AddUint64(&failures, 1)
					time.Sleep(backoff)
					backoff = min(backoff*2, 5*time.Second)
					continue
				}
				backoff = time.Second
				scanner := bufio.NewScanner(resp.Body)
				for scanner.Scan() {
					line := scanner.Text()
					if strings.HasPrefix(line, "data:") {
						atomic.AddUint64(&events, 1)
					}
					if ctx.Err() != nil {
						resp.Body.Close()
						return
					}
				}
				resp.Body.Close()
				if ctx.Err() != nil {
					return
				}
				atomic.AddUint64(&failures, 1)
				time.Sleep(backoff)
				backoff = min(backoff*2, 5*time.Second)
			}
		}()
	}

	go func() {
		select {
		case <-time.After(60 * time.Second):
			if atomic.LoadUint64(&events) == 0 {
				fmt.Println("no events received in 60s")
				os.Exit(1)
			}
		case <-ctx.Done():
		}
	}()

	wg.Wait()
	failuresVal := atomic.LoadUint64(&failures)
	attemptsVal := atomic.LoadUint64(&attempts)
	eventsVal := atomic.LoadUint64(&events)
	failureRate := 0.0
	if attemptsVal > 0 {
		failureRate = float64(failuresVal) / float64(attemptsVal)
	}
	fmt.Printf("connections=%d duration_sec=%d events_received=%d connection_failures=%d\n", conns, int(duration.Seconds()), eventsVal, failuresVal)
	if eventsVal == 0 || failureRate > 0.01 {
		os.Exit(1)
	}
}

func seedBoard(ctx context.Context, api *gateway.Client) (string, string, error) {
	b, err := api.CreateBoard(ctx, domain.NewBoard{Title: fmt.Sprintf("sse-load-%d", time.Now().UnixNano())})
	if err != nil {
		return "", "", err
	}
	col, err := api.CreateColumn(ctx, domain.NewColumn{Title: "Load", BoardID: b.ID})
	if err != nil {
		return b.ID, "", err
	}
	t, err := api.CreateTask(ctx, domain.NewTask{Title: "tick 0", ColumnID: col.ID})
	if err != nil {
		return b.ID, "", err
	}
	return b.ID, t.ID, nil
}

// generateWrites retitles one task on every tick so each subscriber receives
// a task-changed event.
func generateWrites(ctx context.Context, api *gateway.Client, taskID string, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for n := 1; ; n++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		title := "tick " + strconv.Itoa(n)
		if _, err := api.UpdateTask(ctx, taskID, domain.TaskPatch{Title: &title}); err != nil && ctx.Err() == nil {
			log.WithError(err).Warn("write failed")
		}
	}
}
