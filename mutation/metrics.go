package mutation

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"kanban-sync/domain"
)

const (
	tracerName          = "kanban-sync/mutation"
	mutationSpanName    = "board.mutation"
	mutationEventName   = "board.mutation"
	mutationEventDomain = "kanban"
	observabilityEvent  = "observability.event"
)

type mutationMetrics struct {
	logger    *log.Logger
	span      trace.Span
	start     time.Time
	kind      string
	requestID string
	stage     string
}

func newMutationMetrics(ctx context.Context, logger *log.Logger, kind, requestID string) (*mutationMetrics, context.Context) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, mutationSpanName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("board.mutation.kind", kind)),
	)
	return &mutationMetrics{
		logger:    logger,
		span:      span,
		start:     time.Now(),
		kind:      kind,
		requestID: requestID,
	}, ctx
}

// SetStage records where a failed mutation stopped.
func (m *mutationMetrics) SetStage(stage string) {
	if stage == "" {
		return
	}
	m.stage = stage
}

func (m *mutationMetrics) Finish(ev domain.Event, err error) {
	if m == nil {
		return
	}
	total := durationToMillis(time.Since(m.start))
	severityText, severityNumber := severityForError(err)

	attrs := map[string]any{
		"board.mutation.kind":     m.kind,
		"board.mutation.total_ms": total,
		"board.mutation.outcome":  "committed",
	}
	spanAttrs := []attribute.KeyValue{
		attribute.String("board.mutation.kind", m.kind),
		attribute.Float64("board.mutation.total_ms", total),
	}
	if m.requestID != "" {
		attrs["board.mutation.request_id"] = m.requestID
		spanAttrs = append(spanAttrs, attribute.String("board.mutation.request_id", m.requestID))
	}
	if err != nil {
		code := domain.Code(err)
		attrs["board.mutation.outcome"] = "rejected"
		attrs["error.code"] = code
		attrs["error.message"] = err.Error()
		spanAttrs = append(spanAttrs,
			attribute.String("error.code", code),
			attribute.String("error.message", err.Error()),
		)
		if m.stage != "" {
			attrs["board.mutation.error_stage"] = m.stage
			spanAttrs = append(spanAttrs, attribute.String("board.mutation.error_stage", m.stage))
		}
	} else {
		attrs["board.mutation.seq"] = ev.Seq
		attrs["board.mutation.task_id"] = ev.TaskID
		attrs["board.mutation.event_type"] = ev.Type
		spanAttrs = append(spanAttrs,
			attribute.Int64("board.mutation.seq", int64(ev.Seq)),
			attribute.String("board.mutation.task_id", ev.TaskID),
			attribute.String("board.mutation.event_type", ev.Type),
		)
	}
	spanAttrs = append(spanAttrs, attribute.String("board.mutation.outcome", attrs["board.mutation.outcome"].(string)))

	m.span.SetAttributes(spanAttrs...)
	m.span.AddEvent(observabilityEvent, trace.WithAttributes(append([]attribute.KeyValue{
		attribute.String("event.name", mutationEventName),
		attribute.String("event.domain", mutationEventDomain),
		attribute.String("severity_text", severityText),
		attribute.Int("severity_number", severityNumber),
	}, spanAttrs...)...))
	if err != nil {
		m.span.RecordError(err)
		m.span.SetStatus(codes.Error, err.Error())
	} else {
		m.span.SetStatus(codes.Ok, "")
	}

	fields := log.Fields{
		"event.name":      mutationEventName,
		"event.domain":    mutationEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"attributes":      attrs,
	}
	if sc := m.span.SpanContext(); sc.IsValid() {
		fields["trace_id"] = sc.TraceID().String()
		fields["span_id"] = sc.SpanID().String()
	}
	m.span.End()

	if m.logger != nil {
		m.logger.WithFields(fields).Log(levelForSeverity(severityNumber), observabilityEvent)
	}
}

// severityForError follows the OpenTelemetry severity numbers: rejected client
// input is a warning, anything else an error.
func severityForError(err error) (string, int) {
	switch {
	case err == nil:
		return "INFO", 9
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidColumn),
		errors.Is(err, domain.ErrTaskNotFound),
		errors.Is(err, domain.ErrDuplicateRequest):
		return "WARN", 13
	default:
		return "ERROR", 17
	}
}

func levelForSeverity(n int) log.Level {
	switch {
	case n >= 17:
		return log.ErrorLevel
	case n >= 13:
		return log.WarnLevel
	default:
		return log.InfoLevel
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
