package middleware

import (
	"context"
	"time"

	"github.com/hyp3rd/kvs"
)

// StatsCollectorMiddleware is a middleware that collects stats. It can and should
// re-use the collector handed to the cluster, so the management endpoint serves it.
type StatsCollectorMiddleware struct {
	next           kvs.Service
	statsCollector *kvs.StatsCollector
}

// NewStatsCollectorMiddleware returns a new StatsCollectorMiddleware.
func NewStatsCollectorMiddleware(next kvs.Service, statsCollector *kvs.StatsCollector) kvs.Service {
	return &StatsCollectorMiddleware{next: next, statsCollector: statsCollector}
}

// Get collects stats for the Get method.
func (mw StatsCollectorMiddleware) Get(ctx context.Context, key string) (string, bool, error) {
	start := time.Now()

	value, found, err := mw.next.Get(ctx, key)

	mw.statsCollector.Record(kvs.OpGet, time.Since(start), err)

	if err == nil {
		mw.statsCollector.RecordLookup(found)
	}

	return value, found, err
}

// Set collects stats for the Set method.
func (mw StatsCollectorMiddleware) Set(ctx context.Context, key, value string) error {
	start := time.Now()

	err := mw.next.Set(ctx, key, value)
	mw.statsCollector.Record(kvs.OpSet, time.Since(start), err)

	return err
}

// Remove collects stats for the Remove method.
func (mw StatsCollectorMiddleware) Remove(ctx context.Context, key string) error {
	start := time.Now()

	err := mw.next.Remove(ctx, key)
	mw.statsCollector.Record(kvs.OpRemove, time.Since(start), err)

	return err
}

// Close closes the underlying service.
func (mw StatsCollectorMiddleware) Close() error { return mw.next.Close() }
