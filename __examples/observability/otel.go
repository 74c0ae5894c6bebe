package main

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/hyp3rd/kvs"
	"github.com/hyp3rd/kvs/pkg/middleware"
)

// This example shows how to wrap a Session with OpenTelemetry middleware.
func main() {
	svc := kvs.Service(kvs.NewSession("127.0.0.1:7000"))

	// Use noop providers for a minimal example. Replace with real SDK providers in production.
	meter := noop.NewMeterProvider().Meter("kvs/examples")
	tracer := tracenoop.NewTracerProvider().Tracer("kvs/examples")

	svc = kvs.ApplyMiddleware(svc,
		func(next kvs.Service) kvs.Service {
			return middleware.NewOTelTracingMiddleware(next, tracer, middleware.WithCommonAttributes(
				attribute.String("component", "kvs"),
			))
		},
		func(next kvs.Service) kvs.Service {
			mw, err := middleware.NewOTelMetricsMiddleware(next, meter)
			if err != nil {
				return next
			}

			return mw
		},
	)
	defer svc.Close()

	ctx := context.Background()

	err := svc.Set(ctx, "key", "value")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)

		return
	}

	value, found, err := svc.Get(ctx, "key")
	fmt.Fprintln(os.Stdout, value, found, err)
}
