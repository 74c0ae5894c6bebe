package kvs

import (
	"maps"
	"sync"
	"time"
)

// Stats is a snapshot of client statistics.
type Stats struct {
	Calls    map[string]uint64 `json:"calls"`    // calls per operation
	Failures map[string]uint64 `json:"failures"` // failures per error kind
	Latency  map[string]string `json:"latency"`  // mean latency per operation
	Hits     uint64            `json:"hits"`     // gets that found a value
	Misses   uint64            `json:"misses"`   // gets that found nothing
}

// StatsCollector accumulates client statistics. It is safe for concurrent use.
type StatsCollector struct {
	mu       sync.RWMutex
	calls    map[string]uint64
	failures map[string]uint64
	elapsed  map[string]time.Duration
	hits     uint64
	misses   uint64
}

// NewStatsCollector creates a new stats collector.
func NewStatsCollector() *StatsCollector {
	return &StatsCollector{
		calls:    make(map[string]uint64),
		failures: make(map[string]uint64),
		elapsed:  make(map[string]time.Duration),
	}
}

// Record counts one call of op that took d and ended with err.
func (c *StatsCollector) Record(op string, d time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls[op]++
	c.elapsed[op] += d

	if err != nil {
		c.failures[KindOf(err).String()]++
	}
}

// RecordLookup counts a successful get as a hit or a miss.
func (c *StatsCollector) RecordLookup(found bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if found {
		c.hits++
	} else {
		c.misses++
	}
}

// GetStats returns a copy of the collected statistics.
func (c *StatsCollector) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	latency := make(map[string]string, len(c.elapsed))
	for op, total := range c.elapsed {
		if n := c.calls[op]; n > 0 {
			latency[op] = (total / time.Duration(n)).String()
		}
	}

	return Stats{
		Calls:    maps.Clone(c.calls),
		Failures: maps.Clone(c.failures),
		Latency:  latency,
		Hits:     c.hits,
		Misses:   c.misses,
	}
}
