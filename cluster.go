package kvs

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/kvs/internal/cluster"
	"github.com/hyp3rd/kvs/internal/constants"
	"github.com/hyp3rd/kvs/internal/sentinel"
)

// Cluster routes each key to one of several servers with a consistent hashing
// ring. It keeps a bounded pool of connections per server; every pooled
// connection is borrowed by exactly one operation at a time, so the one-request-
// in-flight rule of a Handle holds while different connections proceed in parallel.
type Cluster struct {
	ring  *cluster.Ring
	pools map[string]*nodePool
	opts  []Option

	poolSize     int
	virtualNodes int
	fanOut       int
	stats        *StatsCollector

	mgmtAddr string
	mgmtOpts []ManagementHTTPOption
	mgmt     *ManagementHTTPServer

	closed atomic.Bool
}

// PoolStats describes the connections held for one node.
type PoolStats struct {
	Size int `json:"size"` // maximum connections
	Open int `json:"open"` // connections currently open, idle or borrowed
	Idle int `json:"idle"` // connections waiting in the pool
}

// NewCluster builds a cluster from cfg. Connections are opened lazily, on first use.
func NewCluster(ctx context.Context, cfg *Config) (*Cluster, error) {
	if cfg == nil || len(cfg.Nodes) == 0 {
		return nil, sentinel.ErrNoNodes
	}

	c := &Cluster{
		pools:        make(map[string]*nodePool, len(cfg.Nodes)),
		opts:         cfg.ConnectionOptions,
		poolSize:     constants.DefaultPoolSize,
		virtualNodes: constants.DefaultVirtualNodes,
		fanOut:       constants.DefaultFanOut,
		stats:        NewStatsCollector(),
	}

	for _, opt := range cfg.ClusterOptions {
		opt(c)
	}

	_, err := applyOptions(c.opts...).transport()
	if err != nil {
		return nil, newError(KindSerialization, OpConnect, "", err)
	}

	nodes := make([]*cluster.Node, 0, len(cfg.Nodes))
	for _, addr := range cfg.Nodes {
		node := cluster.NewNode(addr)

		err := node.Validate()
		if err != nil {
			return nil, ewrap.Wrapf(err, "node %q", addr)
		}

		if _, dup := c.pools[addr]; dup {
			continue
		}

		nodes = append(nodes, node)
		c.pools[addr] = newNodePool(addr, c.poolSize, c.opts)
	}

	c.ring = cluster.NewRing(cluster.WithVirtualNodes(c.virtualNodes))
	c.ring.Build(nodes)

	if c.mgmtAddr != "" {
		c.mgmt = NewManagementHTTPServer(c.mgmtAddr, c.mgmtOpts...)

		err := c.mgmt.Start(ctx, c)
		if err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Get implements Service.Get.
func (c *Cluster) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		value string
		found bool
	)

	err := c.with(ctx, OpGet, key, func(h *Handle) (*Handle, error) {
		var (
			next *Handle
			err  error
		)

		value, found, next, err = h.Get(ctx, key)

		return next, err
	})

	return value, found, err
}

// Set implements Service.Set.
func (c *Cluster) Set(ctx context.Context, key, value string) error {
	return c.with(ctx, OpSet, key, func(h *Handle) (*Handle, error) {
		return h.Set(ctx, key, value)
	})
}

// Remove implements Service.Remove.
func (c *Cluster) Remove(ctx context.Context, key string) error {
	return c.with(ctx, OpRemove, key, func(h *Handle) (*Handle, error) {
		return h.Remove(ctx, key)
	})
}

// GetMultiple fetches keys in parallel. Keys without a value are reported in
// failed with KindKeyNotFound; other failures keep their own kind.
func (c *Cluster) GetMultiple(ctx context.Context, keys ...string) (result map[string]string, failed map[string]error) {
	result = make(map[string]string, len(keys))
	failed = make(map[string]error)

	var mu sync.Mutex

	pool := NewWorkerPool(min(c.fanOut, len(keys)))
	for _, key := range keys {
		pool.Enqueue(func() error {
			value, found, err := c.Get(ctx, key)

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err != nil:
				failed[key] = err
			case !found:
				failed[key] = NewKeyNotFoundError(OpGet, key)
			default:
				result[key] = value
			}

			return err
		})
	}

	_ = pool.Wait() //nolint:errcheck // every error is already reported per key in failed

	return result, failed
}

// Close releases every pooled connection and stops the management server.
func (c *Cluster) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	pool := NewWorkerPool(len(c.pools))
	for _, p := range c.pools {
		pool.Enqueue(p.close)
	}

	eg := ewrap.NewErrorGroup()

	err := pool.Wait()
	if err != nil {
		eg.Add(err)
	}

	if c.mgmt != nil {
		err := c.mgmt.Shutdown(context.Background())
		if err != nil {
			eg.Add(err)
		}
	}

	return eg.ErrorOrNil()
}

// Owner returns the address of the node that owns key.
func (c *Cluster) Owner(key string) string {
	node := c.ring.Lookup(key)
	if node == nil {
		return ""
	}

	return node.Address
}

// Nodes returns the configured node addresses.
func (c *Cluster) Nodes() []string {
	nodes := c.ring.Nodes()

	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Address)
	}

	return out
}

// RingHashes returns the ring points as "hash:node-id" strings.
func (c *Cluster) RingHashes() []string { return c.ring.VNodeHashes() }

// PoolStats returns the connection pool state per node address.
func (c *Cluster) PoolStats() map[string]PoolStats {
	out := make(map[string]PoolStats, len(c.pools))
	for addr, p := range c.pools {
		out[addr] = p.snapshot()
	}

	return out
}

// StatsCollector returns the collector served by the management endpoint.
func (c *Cluster) StatsCollector() *StatsCollector { return c.stats }

// GetStats implements the management stats view.
func (c *Cluster) GetStats() Stats { return c.stats.GetStats() }

// Settings returns the effective configuration, for introspection.
func (c *Cluster) Settings() map[string]any {
	o := applyOptions(c.opts...)

	return map[string]any{
		"nodes":          c.Nodes(),
		"poolSize":       c.poolSize,
		"virtualNodes":   c.virtualNodes,
		"fanOut":         c.fanOut,
		"serializer":     o.serializer,
		"maxFrameLength": o.maxFrameLength,
		"dialTimeout":    o.dialTimeout.String(),
	}
}

// ManagementHTTPAddress returns the bound management address, or "" when disabled.
func (c *Cluster) ManagementHTTPAddress() string {
	if c.mgmt == nil {
		return ""
	}

	return c.mgmt.Address()
}

func (c *Cluster) with(ctx context.Context, op, key string, fn func(*Handle) (*Handle, error)) error {
	if c.closed.Load() {
		return newError(KindIO, op, "", sentinel.ErrSessionClosed)
	}

	p := c.pools[c.Owner(key)]

	h, err := p.acquire(ctx, op)
	if err != nil {
		return err
	}

	next, err := fn(h)
	p.release(next)

	return err
}

// nodePool holds up to size open connections to one node. slots counts open
// connections; idle holds the handles of those not currently borrowed.
type nodePool struct {
	addr  string
	opts  []Option
	idle  chan *Handle
	slots chan struct{}

	mu     sync.Mutex
	closed bool
}

func newNodePool(addr string, size int, opts []Option) *nodePool {
	return &nodePool{
		addr:  addr,
		opts:  opts,
		idle:  make(chan *Handle, size),
		slots: make(chan struct{}, size),
	}
}

func (p *nodePool) acquire(ctx context.Context, op string) (*Handle, error) {
	select {
	case h := <-p.idle:
		return p.reuse(h, op)
	default:
	}

	if p.isClosed() {
		return nil, newError(KindIO, op, p.addr, sentinel.ErrSessionClosed)
	}

	select {
	case h := <-p.idle:
		return p.reuse(h, op)
	case p.slots <- struct{}{}:
		// the pool may have closed while this caller was waiting for the slot
		if p.isClosed() {
			<-p.slots

			return nil, newError(KindIO, op, p.addr, sentinel.ErrSessionClosed)
		}

		h, err := Connect(ctx, p.addr, p.opts...)
		if err != nil {
			<-p.slots

			return nil, err
		}

		return h, nil
	case <-ctx.Done():
		return nil, newError(KindIO, op, p.addr, ctx.Err())
	}
}

// reuse hands out an idle handle unless the pool closed after it was taken from idle.
func (p *nodePool) reuse(h *Handle, op string) (*Handle, error) {
	if !p.isClosed() {
		return h, nil
	}

	_ = h.Close() //nolint:errcheck // pool is shutting down

	<-p.slots

	return nil, newError(KindIO, op, p.addr, sentinel.ErrSessionClosed)
}

func (p *nodePool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.closed
}

// release returns a successor handle to the pool. A nil handle means the
// operation failed and its connection is gone, which frees its slot.
func (p *nodePool) release(next *Handle) {
	if next == nil {
		<-p.slots

		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		_ = next.Close() //nolint:errcheck // pool is shutting down

		<-p.slots

		return
	}

	p.idle <- next
}

func (p *nodePool) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true

	eg := ewrap.NewErrorGroup()

	for {
		select {
		case h := <-p.idle:
			err := h.Close()
			if err != nil {
				eg.Add(err)
			}

			<-p.slots
		default:
			return eg.ErrorOrNil()
		}
	}
}

func (p *nodePool) snapshot() PoolStats {
	return PoolStats{Size: cap(p.slots), Open: len(p.slots), Idle: len(p.idle)}
}
