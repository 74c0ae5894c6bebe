package cluster

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/hyp3rd/kvs/internal/constants"
)

const vnodeIndexLen = 4

// Ring implements a consistent hashing ring with virtual nodes.
type Ring struct {
	mu        sync.RWMutex
	vnodes    []vnode
	nodes     map[NodeID]*Node
	vnPerNode int
}

type vnode struct {
	hash uint64
	nid  NodeID
}

// RingOption configures ring.
type RingOption func(*Ring)

// WithVirtualNodes sets the number of virtual nodes per physical node.
func WithVirtualNodes(n int) RingOption {
	return func(r *Ring) {
		if n > 0 {
			r.vnPerNode = n
		}
	}
}

// NewRing constructs a new Ring applying provided options.
func NewRing(opts ...RingOption) *Ring {
	r := &Ring{vnPerNode: constants.DefaultVirtualNodes, nodes: map[NodeID]*Node{}}
	for _, o := range opts {
		o(r)
	}

	return r
}

// Build rebuilds the ring using the supplied node list.
func (r *Ring) Build(nodes []*Node) {
	vn := make([]vnode, 0, len(nodes)*r.vnPerNode)
	byID := make(map[NodeID]*Node, len(nodes))

	for _, node := range nodes {
		byID[node.ID] = node

		buf := make([]byte, 0, len(node.ID)+vnodeIndexLen)
		for i := range r.vnPerNode {
			// node id followed by the vnode index
			buf = binary.BigEndian.AppendUint32(append(buf[:0], node.ID...), uint32(i)) //nolint:gosec // i < vnPerNode

			vn = append(vn, vnode{hash: xxhash.Sum64(buf), nid: node.ID})
		}
	}

	sort.Slice(vn, func(i, j int) bool { return vn[i].hash < vn[j].hash })

	r.mu.Lock()
	r.vnodes = vn
	r.nodes = byID
	r.mu.Unlock()
}

// Lookup returns the node owning key, or nil when the ring is empty.
func (r *Ring) Lookup(key string) *Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.vnodes) == 0 {
		return nil
	}

	target := xxhash.Sum64String(key)

	idx := sort.Search(len(r.vnodes), func(i int) bool { return r.vnodes[i].hash >= target })
	if idx == len(r.vnodes) {
		idx = 0
	}

	return r.nodes[r.vnodes[idx].nid]
}

// Nodes returns the nodes on the ring, in no particular order.
func (r *Ring) Nodes() []*Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}

	return out
}

// VirtualNodesPerNode returns configured virtual nodes per physical node.
func (r *Ring) VirtualNodesPerNode() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.vnPerNode
}

// VNodeHashes returns a copy of vnode hash values as hex strings (debug only).
func (r *Ring) VNodeHashes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.vnodes))
	for _, v := range r.vnodes {
		out = append(out, fmt.Sprintf("%016x:%s", v.hash, v.nid))
	}

	return out
}
