// Command collect-otel-events summarizes the board.request.metrics events that
// board-api writes to its JSON log, e.g. after a load run:
//
//	docker compose logs board-api | collect-otel-events -out results/requests.json
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

func main() {
	var (
		inPath      string
		outPath     string
		eventName   string
		eventDomain string
	)
	flag.StringVar(&inPath, "in", "", "log file to read (default stdin)")
	flag.StringVar(&outPath, "out", "", "path to write aggregated metrics JSON")
	flag.StringVar(&eventName, "event-name", boardEventName, "observability event name to collect")
	flag.StringVar(&eventDomain, "event-domain", boardEventDomain, "observability event domain to match")
	flag.Parse()

	if outPath == "" {
		fmt.Fprintln(os.Stderr, "-out is required")
		os.Exit(2)
	}

	var in io.Reader = os.Stdin
	if inPath != "" {
		f, err := os.Open(inPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open logs: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	collector := newCollector(eventName, eventDomain)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64<<10), 1<<20)
	for scanner.Scan() {
		collector.ingest(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "read logs: %v\n", err)
		os.Exit(1)
	}

	summary := collector.summary()
	if err := writeSummary(outPath, summary); err != nil {
		fmt.Fprintf(os.Stderr, "write summary: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(summary.ShortString())
}

func writeSummary(path string, summary summaryOutput) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
