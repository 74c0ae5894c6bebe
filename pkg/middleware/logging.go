// Package middleware provides kvs.Service decorators: logging, statistics,
// OpenTelemetry tracing and OpenTelemetry metrics. Compose them with
// kvs.ApplyMiddleware.
package middleware

import (
	"context"
	"time"

	"github.com/hyp3rd/kvs"
)

// Logger describes a logging interface allowing to implement different external, or custom logger.
// The standard library *log.Logger and zap's SugaredLogger both satisfy it.
type Logger interface {
	Printf(format string, v ...any)
}

// LoggingMiddleware is a middleware that logs every call and the time it took.
// Values are never logged, only their length.
type LoggingMiddleware struct {
	next   kvs.Service
	logger Logger
}

// NewLoggingMiddleware returns a new LoggingMiddleware.
func NewLoggingMiddleware(next kvs.Service, logger Logger) kvs.Service {
	return &LoggingMiddleware{next: next, logger: logger}
}

// Get logs the call and its outcome.
func (mw LoggingMiddleware) Get(ctx context.Context, key string) (string, bool, error) {
	begin := time.Now()

	value, found, err := mw.next.Get(ctx, key)
	if err != nil {
		mw.logger.Printf("method Get key: %q failed after %s: kind=%s err=%v", key, time.Since(begin), kvs.KindOf(err), err)
	} else {
		mw.logger.Printf("method Get key: %q found: %t took: %s", key, found, time.Since(begin))
	}

	return value, found, err
}

// Set logs the call and its outcome.
func (mw LoggingMiddleware) Set(ctx context.Context, key, value string) error {
	begin := time.Now()

	err := mw.next.Set(ctx, key, value)
	if err != nil {
		mw.logger.Printf("method Set key: %q value.len: %d failed after %s: kind=%s err=%v", key, len(value), time.Since(begin), kvs.KindOf(err), err)
	} else {
		mw.logger.Printf("method Set key: %q value.len: %d took: %s", key, len(value), time.Since(begin))
	}

	return err
}

// Remove logs the call and its outcome.
func (mw LoggingMiddleware) Remove(ctx context.Context, key string) error {
	begin := time.Now()

	err := mw.next.Remove(ctx, key)
	if err != nil {
		mw.logger.Printf("method Remove key: %q failed after %s: kind=%s err=%v", key, time.Since(begin), kvs.KindOf(err), err)
	} else {
		mw.logger.Printf("method Remove key: %q took: %s", key, time.Since(begin))
	}

	return err
}

// Close logs the shutdown.
func (mw LoggingMiddleware) Close() error {
	mw.logger.Printf("method Close called")

	return mw.next.Close()
}
