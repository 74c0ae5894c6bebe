package middleware

import (
	"context"
	"time"

	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/hyp3rd/kvs"
	"github.com/hyp3rd/kvs/internal/telemetry/attrs"
)

// OTelMetricsMiddleware emits OpenTelemetry metrics for service methods.
type OTelMetricsMiddleware struct {
	next  kvs.Service
	meter metric.Meter

	// instruments
	calls     metric.Int64Counter
	durations metric.Float64Histogram
}

// NewOTelMetricsMiddleware constructs a metrics middleware using the provided meter.
func NewOTelMetricsMiddleware(next kvs.Service, meter metric.Meter) (kvs.Service, error) {
	calls, err := meter.Int64Counter("kvs.client.calls")
	if err != nil {
		return nil, ewrap.Wrap(err, "create counter")
	}

	durations, err := meter.Float64Histogram("kvs.client.duration.ms")
	if err != nil {
		return nil, ewrap.Wrap(err, "create histogram")
	}

	return &OTelMetricsMiddleware{next: next, meter: meter, calls: calls, durations: durations}, nil
}

// Get implements Service.Get with metrics.
func (mw *OTelMetricsMiddleware) Get(ctx context.Context, key string) (string, bool, error) {
	start := time.Now()
	value, found, err := mw.next.Get(ctx, key)
	mw.rec(ctx, "Get", start, err, attribute.Int(attrs.AttrKeyLength, len(key)), attribute.Bool(attrs.AttrFound, found))

	return value, found, err
}

// Set implements Service.Set with metrics.
func (mw *OTelMetricsMiddleware) Set(ctx context.Context, key, value string) error {
	start := time.Now()
	err := mw.next.Set(ctx, key, value)
	mw.rec(ctx, "Set", start, err, attribute.Int(attrs.AttrKeyLength, len(key)))

	return err
}

// Remove implements Service.Remove with metrics.
func (mw *OTelMetricsMiddleware) Remove(ctx context.Context, key string) error {
	start := time.Now()
	err := mw.next.Remove(ctx, key)
	mw.rec(ctx, "Remove", start, err, attribute.Int(attrs.AttrKeyLength, len(key)))

	return err
}

// Close closes the underlying service.
func (mw *OTelMetricsMiddleware) Close() error { return mw.next.Close() }

// rec records call count and duration with attributes.
func (mw *OTelMetricsMiddleware) rec(ctx context.Context, method string, start time.Time, err error, extra ...attribute.KeyValue) {
	base := []attribute.KeyValue{attribute.String(attrs.AttrMethod, method)}
	if err != nil {
		base = append(base, attribute.String(attrs.AttrErrorKind, kvs.KindOf(err).String()))
	}

	base = append(base, extra...)

	mw.calls.Add(ctx, 1, metric.WithAttributes(base...))
	mw.durations.Record(ctx, float64(time.Since(start).Microseconds())/1000, metric.WithAttributes(base...))
}
