package kvs_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/longbridgeapp/assert"

	"github.com/hyp3rd/kvs"
	"github.com/hyp3rd/kvs/internal/protocol"
	"github.com/hyp3rd/kvs/internal/testutil/kvserver"
)

func newTestCluster(t *testing.T, opts ...kvs.ClusterOption) (*kvs.Cluster, []*kvserver.Server) {
	t.Helper()

	servers := []*kvserver.Server{
		kvserver.Start(t, kvserver.NewStore().Handle),
		kvserver.Start(t, kvserver.NewStore().Handle),
	}

	cfg := kvs.NewConfig(servers[0].Addr(), servers[1].Addr())
	cfg.ClusterOptions = append(cfg.ClusterOptions, opts...)

	c, err := kvs.NewCluster(context.Background(), cfg)
	assert.Nil(t, err)

	t.Cleanup(func() { _ = c.Close() })

	return c, servers
}

func TestNewCluster_Errors(t *testing.T) {
	_, err := kvs.NewCluster(context.Background(), nil)
	assert.True(t, errors.Is(err, kvs.ErrNoNodes))

	_, err = kvs.NewCluster(context.Background(), kvs.NewConfig())
	assert.True(t, errors.Is(err, kvs.ErrNoNodes))

	_, err = kvs.NewCluster(context.Background(), kvs.NewConfig("no-port"))
	assert.True(t, err != nil)

	cfg := kvs.NewConfig("127.0.0.1:1")
	cfg.ConnectionOptions = append(cfg.ConnectionOptions, kvs.WithSerializer("yaml"))

	_, err = kvs.NewCluster(context.Background(), cfg)
	assert.Equal(t, kvs.KindSerialization, kvs.KindOf(err))
}

func TestCluster_RoutesToOwner(t *testing.T) {
	c, servers := newTestCluster(t)
	ctx := context.Background()

	owners := map[string]int{}

	for i := range 50 {
		key := fmt.Sprintf("key-%d", i)
		assert.Nil(t, c.Set(ctx, key, "v-"+key))

		owners[c.Owner(key)]++
	}

	// both nodes receive traffic and every request reached its owner
	assert.Equal(t, 2, len(owners))
	assert.Equal(t, int64(50), servers[0].Requests()+servers[1].Requests())
	assert.Equal(t, int64(owners[servers[0].Addr()]), servers[0].Requests())

	for i := range 50 {
		key := fmt.Sprintf("key-%d", i)

		value, found, err := c.Get(ctx, key)
		assert.Nil(t, err)
		assert.True(t, found)
		assert.Equal(t, "v-"+key, value)
	}
}

func TestCluster_RemoveMissingKey(t *testing.T) {
	c, _ := newTestCluster(t)

	err := c.Remove(context.Background(), "absent")
	msg, ok := kvs.RemoteMessage(err)
	assert.True(t, ok)
	assert.Equal(t, "Key not found", msg)

	// the failed connection was replaced transparently
	assert.Nil(t, c.Set(context.Background(), "absent", "now"))
	assert.Nil(t, c.Remove(context.Background(), "absent"))
}

func TestCluster_GetMultiple(t *testing.T) {
	c, _ := newTestCluster(t, kvs.WithFanOut(3))
	ctx := context.Background()

	assert.Nil(t, c.Set(ctx, "a", "1"))
	assert.Nil(t, c.Set(ctx, "b", "2"))

	result, failed := c.GetMultiple(ctx, "a", "b", "missing")
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, result)
	assert.Equal(t, 1, len(failed))
	assert.Equal(t, kvs.KindKeyNotFound, kvs.KindOf(failed["missing"]))
}

func TestCluster_PoolStats(t *testing.T) {
	c, _ := newTestCluster(t, kvs.WithPoolSize(2))
	ctx := context.Background()

	for _, stats := range c.PoolStats() {
		assert.Equal(t, kvs.PoolStats{Size: 2}, stats)
	}

	assert.Nil(t, c.Set(ctx, "k", "v"))
	assert.Nil(t, c.Set(ctx, "k", "w"))

	stats := c.PoolStats()[c.Owner("k")]
	assert.Equal(t, kvs.PoolStats{Size: 2, Open: 1, Idle: 1}, stats)
}

func TestCluster_Introspection(t *testing.T) {
	c, servers := newTestCluster(t, kvs.WithVirtualNodes(16))

	assert.Equal(t, 2, len(c.Nodes()))
	assert.Equal(t, 32, len(c.RingHashes()))
	assert.Equal(t, "", c.ManagementHTTPAddress())

	settings := c.Settings()
	assert.Equal(t, 16, settings["virtualNodes"])
	assert.Equal(t, "json", settings["serializer"])

	owner := c.Owner("k")
	assert.True(t, owner == servers[0].Addr() || owner == servers[1].Addr())
}

func TestCluster_Close(t *testing.T) {
	c, _ := newTestCluster(t)
	ctx := context.Background()

	assert.Nil(t, c.Set(ctx, "k", "v"))
	assert.Nil(t, c.Close())
	assert.Nil(t, c.Close())

	_, _, err := c.Get(ctx, "k")
	assert.Equal(t, kvs.KindIO, kvs.KindOf(err))
	assert.True(t, errors.Is(err, kvs.ErrSessionClosed))

	for _, stats := range c.PoolStats() {
		assert.Equal(t, 0, stats.Open)
	}
}

// newSlowCluster returns a single-node cluster with one connection whose server
// takes delay to answer each request.
func newSlowCluster(t *testing.T, delay time.Duration) (*kvs.Cluster, *kvserver.Server) {
	t.Helper()

	srv := kvserver.Start(t, func(protocol.Request) kvserver.Reply {
		return kvserver.Reply{Response: protocol.SetResponse(), Delay: delay}
	})

	cfg := kvs.NewConfig(srv.Addr())
	cfg.ClusterOptions = append(cfg.ClusterOptions, kvs.WithPoolSize(1))

	c, err := kvs.NewCluster(context.Background(), cfg)
	assert.Nil(t, err)

	t.Cleanup(func() { _ = c.Close() })

	return c, srv
}

func TestCluster_CloseRejectsWaiters(t *testing.T) {
	c, srv := newSlowCluster(t, 200*time.Millisecond)
	ctx := context.Background()

	holder := make(chan error, 1)

	go func() { holder <- c.Set(ctx, "k", "first") }()

	// the first call owns the only connection
	assert.True(t, waitFor(func() bool { return srv.Requests() == 1 }))

	waiter := make(chan error, 1)

	go func() { waiter <- c.Set(ctx, "k", "second") }()

	// give the second call time to block on the pool
	time.Sleep(50 * time.Millisecond)

	assert.Nil(t, c.Close())
	assert.Nil(t, <-holder)

	err := <-waiter
	assert.Equal(t, kvs.KindIO, kvs.KindOf(err))
	assert.True(t, errors.Is(err, kvs.ErrSessionClosed))
	assert.Equal(t, int64(1), srv.Requests())

	stats := c.PoolStats()[srv.Addr()]
	assert.Equal(t, 0, stats.Open)
	assert.Equal(t, 0, stats.Idle)
}

func TestCluster_WaiterContextExpires(t *testing.T) {
	c, srv := newSlowCluster(t, 200*time.Millisecond)

	holder := make(chan error, 1)

	go func() { holder <- c.Set(context.Background(), "k", "first") }()

	assert.True(t, waitFor(func() bool { return srv.Requests() == 1 }))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := c.Set(ctx, "k", "second")
	assert.Equal(t, kvs.KindIO, kvs.KindOf(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	// the expired waiter never took a slot
	assert.Equal(t, kvs.PoolStats{Size: 1, Open: 1, Idle: 0}, c.PoolStats()[srv.Addr()])

	assert.Nil(t, <-holder)
	assert.Equal(t, kvs.PoolStats{Size: 1, Open: 1, Idle: 1}, c.PoolStats()[srv.Addr()])
	assert.Equal(t, int64(1), srv.Requests())

	// the connection is still usable
	assert.Nil(t, c.Set(context.Background(), "k", "third"))
	assert.Equal(t, int64(2), srv.Requests())
}
