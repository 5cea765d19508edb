package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName         = "prism-board/board-api"
	requestSpanName    = "board.request"
	requestEventName   = "board.request.metrics"
	requestEventDomain = "prism.board"
	observabilityEvent = "observability.event"
	attrPrefix         = "prism.board."
)

// requestMetrics records stage timings for one request and reports them as a
// span plus one structured log line when the request ends.
type requestMetrics struct {
	logger *log.Logger
	span   trace.Span
	method string
	route  string
	start  time.Time

	authDuration    time.Duration
	storageDuration time.Duration
	encodeDuration  time.Duration
	entities        int
	replayed        bool
	errorStage      string
	err             error
}

func newRequestMetrics(ctx context.Context, logger *log.Logger, method, route string) (*requestMetrics, context.Context) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, requestSpanName, trace.WithSpanKind(trace.SpanKindServer))
	return &requestMetrics{
		logger: logger,
		span:   span,
		method: method,
		route:  route,
		start:  time.Now(),
	}, ctx
}

func (m *requestMetrics) ObserveAuth(d time.Duration) {
	if d > 0 {
		m.authDuration = d
	}
}

// ObserveStorage accumulates, since one request may touch storage twice.
func (m *requestMetrics) ObserveStorage(d time.Duration) {
	if d > 0 {
		m.storageDuration += d
	}
}

func (m *requestMetrics) ObserveEncode(d time.Duration) {
	if d > 0 {
		m.encodeDuration = d
	}
}

func (m *requestMetrics) SetEntities(n int) {
	if n < 0 {
		n = 0
	}
	m.entities = n
}

func (m *requestMetrics) SetReplayed(replayed bool) { m.replayed = replayed }

func (m *requestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

func (m *requestMetrics) SetError(err error) {
	if err != nil {
		m.err = err
	}
}

func (m *requestMetrics) attributes(status int, err error) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("http.route", m.route),
		attribute.String("http.method", m.method),
		attribute.Int("http.status_code", status),
		attribute.Float64(attrPrefix+"total_ms", durationToMillis(time.Since(m.start))),
		attribute.Int(attrPrefix+"entities", m.entities),
		attribute.Bool(attrPrefix+"replayed", m.replayed),
	}
	if m.authDuration > 0 {
		attrs = append(attrs, attribute.Float64(attrPrefix+"auth_ms", durationToMillis(m.authDuration)))
	}
	if m.storageDuration > 0 {
		attrs = append(attrs, attribute.Float64(attrPrefix+"storage_ms", durationToMillis(m.storageDuration)))
	}
	if m.encodeDuration > 0 {
		attrs = append(attrs, attribute.Float64(attrPrefix+"encode_ms", durationToMillis(m.encodeDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String(attrPrefix+"error_stage", m.errorStage))
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error.message", err.Error()))
	}
	return attrs
}

// Log ends the span and emits the observability event. err falls back to the
// error recorded with SetError.
func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	if err == nil {
		err = m.err
	}
	attrs := m.attributes(status, err)
	severityText, severityNumber := severityForStatus(status, err)

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		eventAttrs := append([]attribute.KeyValue{
			attribute.String("event.name", requestEventName),
			attribute.String("event.domain", requestEventDomain),
			attribute.String("severity_text", severityText),
			attribute.Int("severity_number", severityNumber),
		}, attrs...)
		m.span.AddEvent(observabilityEvent, trace.WithAttributes(eventAttrs...))
		if status >= http.StatusInternalServerError || (err != nil && status < http.StatusBadRequest) {
			if err != nil {
				m.span.RecordError(err)
				m.span.SetStatus(codes.Error, err.Error())
			} else {
				m.span.SetStatus(codes.Error, http.StatusText(status))
			}
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"event.name":      requestEventName,
		"event.domain":    requestEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"attributes":      attributesToFields(attrs),
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.IsValid() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
		}
	}
	entry := m.logger.WithFields(fields)
	switch severityText {
	case "ERROR":
		entry.Error(observabilityEvent)
	case "WARN":
		entry.Warn(observabilityEvent)
	default:
		entry.Info(observabilityEvent)
	}
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	case err != nil:
		return "ERROR", 17
	default:
		return "INFO", 9
	}
}

func attributesToFields(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
