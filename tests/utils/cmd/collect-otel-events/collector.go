package main

import (
	"encoding/json"
	"math"
	"slices"
	"strconv"
	"strings"
)

const (
	boardEventName   = "board.request.metrics"
	boardEventDomain = "prism.board"

	attrHTTPStatusCode = "http.status_code"
	attrHTTPRoute      = "http.route"
	attrHTTPMethod     = "http.method"
	attrEntities       = "prism.board.entities"
	attrReplayed       = "prism.board.replayed"
	attrErrorStage     = "prism.board.error_stage"
)

// stageAttrs maps request stages to the attribute carrying their duration.
var stageAttrs = map[string]string{
	"total":   "prism.board.total_ms",
	"auth":    "prism.board.auth_ms",
	"storage": "prism.board.storage_ms",
	"encode":  "prism.board.encode_ms",
}

type logRecord struct {
	EventName    string         `json:"event.name"`
	EventDomain  string         `json:"event.domain"`
	SeverityText string         `json:"severity_text"`
	Attributes   map[string]any `json:"attributes"`
}

// samples keeps every observed value so percentiles can be reported.
type samples []float64

func (s samples) summary() sampleSummary {
	if len(s) == 0 {
		return sampleSummary{}
	}
	sorted := slices.Clone(s)
	slices.Sort(sorted)
	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return sampleSummary{
		Count: len(sorted),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Avg:   sum / float64(len(sorted)),
		P50:   percentile(sorted, 0.50),
		P95:   percentile(sorted, 0.95),
	}
}

// percentile uses nearest rank on already sorted values.
func percentile(sorted []float64, p float64) float64 {
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	return sorted[max(rank, 0)]
}

type sampleSummary struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
}

type boolCounts struct {
	True  int `json:"true"`
	False int `json:"false"`
}

type summaryOutput struct {
	EventName      string                   `json:"event_name"`
	EventDomain    string                   `json:"event_domain"`
	TotalEvents    int                      `json:"total_events"`
	SeverityCounts map[string]int           `json:"severity_counts"`
	StatusCounts   map[string]int           `json:"status_counts"`
	DurationMs     map[string]sampleSummary `json:"duration_ms"`
	Entities       sampleSummary            `json:"entities"`
	Routes         map[string]int           `json:"routes,omitempty"`
	Replayed       boolCounts               `json:"replayed"`
	ErrorStages    map[string]int           `json:"error_stages,omitempty"`
	ErrorEvents    int                      `json:"error_events"`
	WarnEvents     int                      `json:"warn_events"`
	SkippedLines   int                      `json:"skipped_lines"`
}

type collector struct {
	eventName   string
	eventDomain string
	skipped     int
	out         summaryOutput
	durations   map[string]samples
	entities    samples
}

func newCollector(eventName, eventDomain string) *collector {
	return &collector{
		eventName:   eventName,
		eventDomain: eventDomain,
		durations:   make(map[string]samples),
		out: summaryOutput{
			EventName:      eventName,
			EventDomain:    eventDomain,
			SeverityCounts: make(map[string]int),
			StatusCounts:   make(map[string]int),
			Routes:         make(map[string]int),
			ErrorStages:    make(map[string]int),
		},
	}
}

// ingest consumes one log line. Lines prefixed by a compose service name
// ("board-api-1  | {...}") are accepted.
func (c *collector) ingest(line string) {
	raw := strings.TrimSpace(line)
	if raw == "" {
		return
	}
	if pipe := strings.Index(raw, "|"); pipe >= 0 && !strings.HasPrefix(raw, "{") {
		raw = strings.TrimSpace(raw[pipe+1:])
	}

	var rec logRecord
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		c.skipped++
		return
	}
	if rec.EventName != c.eventName || (c.eventDomain != "" && rec.EventDomain != c.eventDomain) {
		return
	}
	c.add(rec)
}

func (c *collector) add(rec logRecord) {
	c.out.TotalEvents++
	severity := strings.ToUpper(strings.TrimSpace(rec.SeverityText))
	if severity == "" {
		severity = "UNSPECIFIED"
	}
	c.out.SeverityCounts[severity]++
	switch severity {
	case "ERROR":
		c.out.ErrorEvents++
	case "WARN", "WARNING":
		c.out.WarnEvents++
	}

	attrs := rec.Attributes
	if attrs == nil {
		return
	}
	if status, ok := asFloat(attrs[attrHTTPStatusCode]); ok {
		c.out.StatusCounts[strconv.Itoa(int(status))]++
	}
	for stage, key := range stageAttrs {
		if v, ok := asFloat(attrs[key]); ok {
			c.durations[stage] = append(c.durations[stage], v)
		}
	}
	if v, ok := asFloat(attrs[attrEntities]); ok {
		c.entities = append(c.entities, v)
	}
	if route, _ := attrs[attrHTTPRoute].(string); route != "" {
		if method, _ := attrs[attrHTTPMethod].(string); method != "" {
			route = method + " " + route
		}
		c.out.Routes[route]++
	}
	if replayed, ok := attrs[attrReplayed].(bool); ok {
		if replayed {
			c.out.Replayed.True++
		} else {
			c.out.Replayed.False++
		}
	}
	if stage, _ := attrs[attrErrorStage].(string); stage != "" {
		c.out.ErrorStages[stage]++
	}
}

func (c *collector) summary() summaryOutput {
	out := c.out
	out.SkippedLines = c.skipped
	out.DurationMs = make(map[string]sampleSummary, len(c.durations))
	for stage, s := range c.durations {
		out.DurationMs[stage] = s.summary()
	}
	out.Entities = c.entities.summary()
	if len(out.Routes) == 0 {
		out.Routes = nil
	}
	if len(out.ErrorStages) == 0 {
		out.ErrorStages = nil
	}
	return out
}

func (s summaryOutput) ShortString() string {
	total := s.DurationMs["total"]
	fields := []string{
		"event=" + s.EventName,
		"domain=" + s.EventDomain,
		"total=" + strconv.Itoa(s.TotalEvents),
		"info=" + strconv.Itoa(s.SeverityCounts["INFO"]),
		"warn=" + strconv.Itoa(s.WarnEvents),
		"error=" + strconv.Itoa(s.ErrorEvents),
		"avg_total_ms=" + formatFloat(total.Avg),
		"p95_total_ms=" + formatFloat(total.P95),
		"max_total_ms=" + formatFloat(total.Max),
	}
	return strings.Join(fields, " ")
}

func formatFloat(v float64) string {
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// asFloat accepts the shapes a UseNumber decoder yields for numeric attributes.
func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}
