package mutation

import (
	"context"
	"errors"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"kanban-sync/domain"
	"kanban-sync/storage"
)

func setupTestTracer(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
	)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)

	t.Cleanup(func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("shutdown tracer provider: %v", err)
		}
		otel.SetTracerProvider(prev)
	})
	return tp, exporter
}

func attributesToMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func findEvent(events []sdktrace.Event, name string) (sdktrace.Event, bool) {
	for _, ev := range events {
		if ev.Name == name {
			return ev, true
		}
	}
	return sdktrace.Event{}, false
}

func TestCommittedMutationEmitsSpanAndLog(t *testing.T) {
	tp, exporter := setupTestTracer(t)

	store, err := storage.NewStore(domain.DefaultColumns())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	logger, hook := test.NewNullLogger()
	p, err := NewProcessor(store, &recordingPublisher{}, logger)
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}

	ev, err := p.Create(context.Background(), "req-9", domain.CreateTask{Title: "observed"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("force flush spans: %v", err)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Message != observabilityEvent {
		t.Fatalf("expected observability log entry, got %#v", entry)
	}
	if entry.Level != log.InfoLevel {
		t.Fatalf("unexpected level %v", entry.Level)
	}
	if entry.Data["event.name"] != mutationEventName || entry.Data["event.domain"] != mutationEventDomain {
		t.Fatalf("unexpected event identity: %#v", entry.Data)
	}
	if entry.Data["severity_text"] != "INFO" || entry.Data["severity_number"] != 9 {
		t.Fatalf("unexpected severity: %v/%v", entry.Data["severity_text"], entry.Data["severity_number"])
	}
	attrs, ok := entry.Data["attributes"].(map[string]any)
	if !ok {
		t.Fatalf("attributes not logged as map: %#v", entry.Data["attributes"])
	}
	if attrs["board.mutation.kind"] != domain.CreateTaskCommand || attrs["board.mutation.outcome"] != "committed" {
		t.Fatalf("unexpected attributes %#v", attrs)
	}
	if attrs["board.mutation.task_id"] != ev.TaskID {
		t.Fatalf("expected task id attribute, got %#v", attrs["board.mutation.task_id"])
	}
	if traceID, ok := entry.Data["trace_id"].(string); !ok || traceID == "" {
		t.Fatalf("expected trace_id to be recorded, got %#v", entry.Data["trace_id"])
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != mutationSpanName {
		t.Fatalf("unexpected span name %s", span.Name)
	}
	if span.Status.Code != codes.Ok {
		t.Fatalf("expected span status Ok, got %v", span.Status.Code)
	}
	spanAttrs := attributesToMap(span.Attributes)
	if seq, ok := spanAttrs["board.mutation.seq"].(int64); !ok || seq != 1 {
		t.Fatalf("unexpected seq attribute %#v", spanAttrs["board.mutation.seq"])
	}
	if spanAttrs["board.mutation.request_id"] != "req-9" {
		t.Fatalf("unexpected request id attribute %#v", spanAttrs["board.mutation.request_id"])
	}
	obs, ok := findEvent(span.Events, observabilityEvent)
	if !ok {
		t.Fatalf("expected observability span event, got %#v", span.Events)
	}
	if got := attributesToMap(obs.Attributes)["severity_text"]; got != "INFO" {
		t.Fatalf("unexpected span event severity %#v", got)
	}
}

func TestRejectedMutationMarksSpanError(t *testing.T) {
	tp, exporter := setupTestTracer(t)

	store, err := storage.NewStore(domain.DefaultColumns())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	logger, hook := test.NewNullLogger()
	p, err := NewProcessor(store, &recordingPublisher{}, logger)
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}

	_, err = p.Delete(context.Background(), "", domain.DeleteTask{TaskID: "ghost", Column: domain.ColumnDone})
	if !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := tp.ForceFlush(context.Background()); err != nil {
		t.Fatalf("force flush spans: %v", err)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Level != log.WarnLevel {
		t.Fatalf("expected warning entry, got %#v", entry)
	}
	attrs := entry.Data["attributes"].(map[string]any)
	if attrs["error.code"] != domain.CodeTaskNotFound || attrs["board.mutation.error_stage"] != "apply" {
		t.Fatalf("unexpected error attributes %#v", attrs)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error || spans[0].Status.Description == "" {
		t.Fatalf("expected error status, got %+v", spans[0].Status)
	}
	obs, ok := findEvent(spans[0].Events, observabilityEvent)
	if !ok {
		t.Fatalf("expected observability span event")
	}
	if got := attributesToMap(obs.Attributes)["severity_text"]; got != "WARN" {
		t.Fatalf("unexpected span event severity %#v", got)
	}
}

func TestSeverityForError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantText   string
		wantNumber int
	}{
		{name: "ok", wantText: "INFO", wantNumber: 9},
		{name: "validation", err: domain.Validationf("bad"), wantText: "WARN", wantNumber: 13},
		{name: "column", err: domain.ErrInvalidColumn, wantText: "WARN", wantNumber: 13},
		{name: "duplicate", err: domain.ErrDuplicateRequest, wantText: "WARN", wantNumber: 13},
		{name: "internal", err: errors.New("boom"), wantText: "ERROR", wantNumber: 17},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, number := severityForError(tt.err)
			if text != tt.wantText || number != tt.wantNumber {
				t.Fatalf("severityForError(%v) = %s/%d, want %s/%d", tt.err, text, number, tt.wantText, tt.wantNumber)
			}
		})
	}
}
