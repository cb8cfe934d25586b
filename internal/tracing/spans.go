package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys.
const (
	AttrTag       = "tagpulse.tag"
	AttrCollector = "tagpulse.collector"
	AttrStatusID  = "tagpulse.status.id"
	AttrTagCount  = "tagpulse.status.tag_count"
	AttrErrorType = "error.type"
)

// Span names.
const (
	SpanStatus  = "tagpulse.status"
	SpanForward = "tagpulse.forward"
)

// StartSpan starts a new span with the given name and options.
// If tracer is nil, returns the span already in ctx.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// SetSpanError records an error on the span and sets the status to Error.
func SetSpanError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanOK sets the span status to Ok.
func SetSpanOK(span trace.Span) {
	if span == nil {
		return
	}
	span.SetStatus(codes.Ok, "")
}

func TagAttr(tag string) attribute.KeyValue {
	return attribute.String(AttrTag, tag)
}

func CollectorAttr(name string) attribute.KeyValue {
	return attribute.String(AttrCollector, name)
}

func StatusIDAttr(id string) attribute.KeyValue {
	return attribute.String(AttrStatusID, id)
}

func TagCountAttr(n int) attribute.KeyValue {
	return attribute.Int(AttrTagCount, n)
}

func ErrorTypeAttr(errType string) attribute.KeyValue {
	return attribute.String(AttrErrorType, errType)
}
