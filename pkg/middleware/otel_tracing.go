package middleware

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hyp3rd/kvs"
	"github.com/hyp3rd/kvs/internal/telemetry/attrs"
)

// OTelTracingMiddleware wraps kvs.Service methods with OpenTelemetry spans.
type OTelTracingMiddleware struct {
	next   kvs.Service
	tracer trace.Tracer
	// static attributes applied to all spans
	commonAttrs []attribute.KeyValue
}

// OTelTracingOption allows configuring the tracing middleware.
type OTelTracingOption func(*OTelTracingMiddleware)

// WithCommonAttributes sets attributes applied to all spans.
func WithCommonAttributes(attributes ...attribute.KeyValue) OTelTracingOption {
	return func(m *OTelTracingMiddleware) { m.commonAttrs = append(m.commonAttrs, attributes...) }
}

// NewOTelTracingMiddleware creates a tracing middleware.
func NewOTelTracingMiddleware(next kvs.Service, tracer trace.Tracer, opts ...OTelTracingOption) kvs.Service {
	mw := &OTelTracingMiddleware{next: next, tracer: tracer}
	for _, o := range opts {
		o(mw)
	}

	return mw
}

// Get implements Service.Get with tracing.
func (mw OTelTracingMiddleware) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, span := mw.startSpan(ctx, "kvs.Get", attribute.Int(attrs.AttrKeyLength, len(key)))
	defer span.End()

	value, found, err := mw.next.Get(ctx, key)
	span.SetAttributes(attribute.Bool(attrs.AttrFound, found))
	recordError(span, err)

	return value, found, err
}

// Set implements Service.Set with tracing.
func (mw OTelTracingMiddleware) Set(ctx context.Context, key, value string) error {
	ctx, span := mw.startSpan(
		ctx, "kvs.Set",
		attribute.Int(attrs.AttrKeyLength, len(key)),
		attribute.Int(attrs.AttrValueLength, len(value)))
	defer span.End()

	err := mw.next.Set(ctx, key, value)
	recordError(span, err)

	return err
}

// Remove implements Service.Remove with tracing.
func (mw OTelTracingMiddleware) Remove(ctx context.Context, key string) error {
	ctx, span := mw.startSpan(ctx, "kvs.Remove", attribute.Int(attrs.AttrKeyLength, len(key)))
	defer span.End()

	err := mw.next.Remove(ctx, key)
	recordError(span, err)

	return err
}

// Close closes the underlying service.
func (mw OTelTracingMiddleware) Close() error { return mw.next.Close() }

// startSpan starts a span with common and provided attributes.
func (mw OTelTracingMiddleware) startSpan(ctx context.Context, name string, attributes ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := mw.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	if len(mw.commonAttrs) > 0 {
		span.SetAttributes(mw.commonAttrs...)
	}

	if len(attributes) > 0 {
		span.SetAttributes(attributes...)
	}

	return ctx, span
}

func recordError(span trace.Span, err error) {
	if err == nil {
		return
	}

	span.RecordError(err)
	span.SetAttributes(attribute.String(attrs.AttrErrorKind, kvs.KindOf(err).String()))
	span.SetStatus(codes.Error, err.Error())
}
