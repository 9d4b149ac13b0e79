package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the name of the tracer for timer coordination operations.
const TracerName = "airtime"

// Span attribute keys
const (
	AttrSession    = "session"
	AttrCategory   = "category"
	AttrKind       = "message_kind"
	AttrRole       = "role"
	AttrDurationS  = "duration_seconds"
	AttrNotifyPeer = "notify_peer"
)

// Span names
const (
	SpanStartSpeaking = "coordinator.start_speaking"
	SpanPauseSpeaking = "coordinator.pause_speaking"
	SpanEndMeeting    = "coordinator.end_meeting"
	SpanHandleMessage = "coordinator.handle_message"
	SpanCommitSample  = "coordinator.commit_sample"
)

// Tracer provides tracing for coordinator operations. With no SDK
// installed the spans are no-ops, which is the default for the CLI.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a coordination tracer.
func NewTracer() *Tracer {
	return &Tracer{tracer: otel.Tracer(TracerName)}
}

// StartTransitionSpan starts a span for a speaker transition.
func (t *Tracer) StartTransitionSpan(ctx context.Context, name, session, category string, notify bool) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name,
		trace.WithAttributes(
			attribute.String(AttrSession, session),
			attribute.String(AttrCategory, category),
			attribute.Bool(AttrNotifyPeer, notify),
		),
	)
}

// StartMessageSpan starts a span for handling one inbound message.
func (t *Tracer) StartMessageSpan(ctx context.Context, role, kind string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanHandleMessage,
		trace.WithAttributes(
			attribute.String(AttrRole, role),
			attribute.String(AttrKind, kind),
		),
	)
}

// RecordCommit annotates a span with a committed sample.
func RecordCommit(span trace.Span, category string, seconds float64) {
	span.SetAttributes(
		attribute.String(AttrCategory, category),
		attribute.Float64(AttrDurationS, seconds),
	)
}

// RecordError marks the span failed with the given error.
func RecordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
