package kvs

import (
	"github.com/hyp3rd/kvs/internal/constants"
)

// Config wraps the configuration of a Cluster: the server addresses, the options
// applied to every connection, and the options of the cluster itself.
type Config struct {
	// Nodes lists the server addresses (host:port).
	Nodes []string
	// ConnectionOptions are applied to every connection the cluster opens.
	ConnectionOptions []Option
	// ClusterOptions configure the `Cluster`.
	ClusterOptions []ClusterOption
}

// NewConfig returns a new `Config` for nodes with default values:
//   - `ConnectionOptions` is empty (json payloads, 8 MiB frames, 5s dial timeout)
//   - `ClusterOptions` is set to:
//     -- `WithPoolSize(4)`
//     -- `WithVirtualNodes(64)`
//     -- `WithFanOut(8)`
//
// Each of the above options can be overridden by appending a different option.
func NewConfig(nodes ...string) *Config {
	return &Config{
		Nodes:             nodes,
		ConnectionOptions: []Option{},
		ClusterOptions: []ClusterOption{
			WithPoolSize(constants.DefaultPoolSize),
			WithVirtualNodes(constants.DefaultVirtualNodes),
			WithFanOut(constants.DefaultFanOut),
		},
	}
}

// ClusterOption is a function type that can be used to configure a `Cluster`.
type ClusterOption func(*Cluster)

// WithPoolSize sets how many connections the cluster may hold open per node.
// Each connection serves one request at a time.
func WithPoolSize(n int) ClusterOption {
	return func(c *Cluster) {
		if n > 0 {
			c.poolSize = n
		}
	}
}

// WithVirtualNodes sets the number of ring points per node.
func WithVirtualNodes(n int) ClusterOption {
	return func(c *Cluster) {
		if n > 0 {
			c.virtualNodes = n
		}
	}
}

// WithFanOut sets the number of workers used by `GetMultiple`.
func WithFanOut(n int) ClusterOption {
	return func(c *Cluster) {
		if n > 0 {
			c.fanOut = n
		}
	}
}

// WithStatsCollector sets the collector exposed by the management endpoint.
// Pass the same collector to the stats middleware to populate it.
func WithStatsCollector(sc *StatsCollector) ClusterOption {
	return func(c *Cluster) {
		if sc != nil {
			c.stats = sc
		}
	}
}

// WithManagementHTTP starts a management HTTP server on addr when the cluster is created.
func WithManagementHTTP(addr string, opts ...ManagementHTTPOption) ClusterOption {
	return func(c *Cluster) {
		c.mgmtAddr = addr
		c.mgmtOpts = opts
	}
}
