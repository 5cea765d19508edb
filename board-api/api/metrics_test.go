package api

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestRequestMetricsLogProducesObservabilityEvent(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetFormatter(&log.JSONFormatter{})

	tp, exporter, restore := setupTestTracer(t)
	defer restore()

	metrics, _ := newRequestMetrics(context.Background(), logger, http.MethodGet, "/boards")
	metrics.start = metrics.start.Add(-50 * time.Millisecond)
	metrics.ObserveAuth(10 * time.Millisecond)
	metrics.ObserveStorage(15 * time.Millisecond)
	metrics.ObserveStorage(5 * time.Millisecond)
	metrics.ObserveEncode(5 * time.Millisecond)
	metrics.SetEntities(3)

	metrics.Log(http.StatusOK, nil)

	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("force flush spans: %v", err)
	}

	entry := waitForLogEntry(t, hook, time.Second)
	if entry.Message != observabilityEvent {
		t.Fatalf("unexpected message: %s", entry.Message)
	}
	if got := entry.Data["event.name"]; got != requestEventName {
		t.Fatalf("unexpected event name: %v", got)
	}
	if got := entry.Data["event.domain"]; got != requestEventDomain {
		t.Fatalf("unexpected event domain: %v", got)
	}
	attrsVal, ok := entry.Data["attributes"].(map[string]any)
	if !ok {
		t.Fatalf("attributes not logged as map: %#v", entry.Data["attributes"])
	}
	if attrsVal["http.route"] != "/boards" {
		t.Fatalf("unexpected route attribute: %#v", attrsVal["http.route"])
	}
	if attrsVal[attrPrefix+"entities"] != int64(3) {
		t.Fatalf("unexpected entities: %#v", attrsVal[attrPrefix+"entities"])
	}
	if attrsVal[attrPrefix+"storage_ms"] != 20.0 {
		t.Fatalf("expected storage time to accumulate, got %#v", attrsVal[attrPrefix+"storage_ms"])
	}
	if total, _ := attrsVal[attrPrefix+"total_ms"].(float64); total < 50 {
		t.Fatalf("expected total duration attribute to be set, got %#v", attrsVal[attrPrefix+"total_ms"])
	}
	if entry.Data["severity_text"] != "INFO" || entry.Data["severity_number"] != 9 {
		t.Fatalf("unexpected severity: %v/%v", entry.Data["severity_text"], entry.Data["severity_number"])
	}
	if traceID, ok := entry.Data["trace_id"].(string); !ok || traceID == "" {
		t.Fatalf("expected trace_id to be recorded, got %#v", entry.Data["trace_id"])
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != requestSpanName {
		t.Fatalf("unexpected span name: %s", span.Name)
	}
	spanAttrs := attributesToMap(span.Attributes)
	if code, ok := spanAttrs["http.status_code"].(int64); !ok || code != int64(http.StatusOK) {
		t.Fatalf("unexpected http.status_code on span: %#v", spanAttrs["http.status_code"])
	}
	if _, exists := spanAttrs[attrPrefix+"error_stage"]; exists {
		t.Fatalf("expected no error stage")
	}
	if span.Status.Code != codes.Ok {
		t.Fatalf("expected span status Ok, got %v", span.Status.Code)
	}

	var event sdktrace.Event
	for _, ev := range span.Events {
		if ev.Name == observabilityEvent {
			event = ev
			break
		}
	}
	if event.Name == "" {
		t.Fatalf("expected observability.event span event, got %#v", span.Events)
	}
	eventAttrs := attributesToMap(event.Attributes)
	if eventAttrs["event.name"] != requestEventName || eventAttrs["severity_text"] != "INFO" {
		t.Fatalf("unexpected span event attributes: %#v", eventAttrs)
	}
}

func TestRequestMetricsLogWithErrorSetsSpanStatus(t *testing.T) {
	logger, hook := test.NewNullLogger()

	tp, exporter, restore := setupTestTracer(t)
	defer restore()

	metrics, _ := newRequestMetrics(context.Background(), logger, http.MethodPost, "/tasks")
	metrics.SetErrorStage("storage")
	boom := errors.New("storage failure")
	metrics.SetError(boom)

	metrics.Log(http.StatusInternalServerError, nil)

	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("force flush spans: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Status.Code != codes.Error || span.Status.Description != boom.Error() {
		t.Fatalf("unexpected span status %+v", span.Status)
	}
	attrs := attributesToMap(span.Attributes)
	if attrs[attrPrefix+"error_stage"] != "storage" {
		t.Fatalf("expected error stage attribute, got %#v", attrs[attrPrefix+"error_stage"])
	}
	if attrs["error.message"] != boom.Error() {
		t.Fatalf("expected error.message attribute, got %#v", attrs["error.message"])
	}
	if entry := hook.LastEntry(); entry == nil || entry.Level != log.ErrorLevel {
		t.Fatalf("expected error level log entry, got %#v", entry)
	}
}

func TestClientErrorKeepsSpanOk(t *testing.T) {
	logger, hook := test.NewNullLogger()
	tp, exporter, restore := setupTestTracer(t)
	defer restore()

	metrics, _ := newRequestMetrics(context.Background(), logger, http.MethodPost, "/tasks")
	metrics.SetErrorStage("validate")
	metrics.Log(http.StatusBadRequest, errors.New("title is required"))
	_ = tp.ForceFlush(context.Background())

	if span := exporter.GetSpans()[0]; span.Status.Code != codes.Ok {
		t.Fatalf("client errors should not mark the span failed, got %v", span.Status.Code)
	}
	if entry := hook.LastEntry(); entry == nil || entry.Data["severity_text"] != "WARN" {
		t.Fatalf("expected warn severity")
	}
}

func TestSeverityForStatus(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		err        error
		wantText   string
		wantNumber int
	}{
		{name: "ok", status: http.StatusOK, wantText: "INFO", wantNumber: 9},
		{name: "warn", status: http.StatusBadRequest, wantText: "WARN", wantNumber: 13},
		{name: "error", status: http.StatusInternalServerError, wantText: "ERROR", wantNumber: 17},
		{name: "errorFromErr", status: 0, err: errors.New("boom"), wantText: "ERROR", wantNumber: 17},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotText, gotNumber := severityForStatus(tt.status, tt.err)
			if gotText != tt.wantText || gotNumber != tt.wantNumber {
				t.Fatalf("severityForStatus(%d, %v) = %s/%d, want %s/%d", tt.status, tt.err, gotText, gotNumber, tt.wantText, tt.wantNumber)
			}
		})
	}
}

func TestObserveMiddlewareRecordsRoute(t *testing.T) {
	tp, exporter, restore := setupTestTracer(t)
	defer restore()

	env := newTestEnv(t)
	rec := env.do(t, "", http.MethodGet, "/boards", nil)
	expectStatus(t, rec, http.StatusUnauthorized)
	_ = tp.ForceFlush(context.Background())

	spans := exporter.GetSpans()
	if len(spans) == 0 {
		t.Fatalf("expected a request span")
	}
	attrs := attributesToMap(spans[len(spans)-1].Attributes)
	if attrs["http.route"] != "/boards" || attrs["http.status_code"] != int64(http.StatusUnauthorized) {
		t.Fatalf("unexpected span attributes %#v", attrs)
	}
	if attrs[attrPrefix+"error_stage"] != "auth" {
		t.Fatalf("expected auth error stage, got %#v", attrs[attrPrefix+"error_stage"])
	}
}

func setupTestTracer(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter, func()) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
	)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)

	cleanup := func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("shutdown tracer provider: %v", err)
		}
		otel.SetTracerProvider(prev)
	}
	return tp, exporter, cleanup
}

func attributesToMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func waitForLogEntry(t *testing.T, hook *test.Hook, timeout time.Duration) *log.Entry {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		if entry := hook.LastEntry(); entry != nil {
			return entry
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected log entry within %v", timeout)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
