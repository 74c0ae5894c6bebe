// Package cluster maps keys onto the servers of a kvs deployment with a
// consistent hashing ring, so that adding or removing a server only moves the
// keys that hashed near it.
package cluster

import (
	"encoding/hex"
	"net"

	"github.com/cespare/xxhash/v2"
	"github.com/hyp3rd/ewrap"
)

// internal constants.
const (
	nodeIDBytes = 8
	byteShift   = 8 // bits per byte for id derivation
)

// NodeID is a stable identifier for a server.
type NodeID string

// Node is one server of the deployment.
type Node struct {
	ID      NodeID
	Address string // host:port the client dials
}

// ErrInvalidAddress is returned when the node address is invalid.
var ErrInvalidAddress = ewrap.New("invalid node address")

// NewNode creates a node from address (host:port). The id is a short hex digest of the address.
func NewNode(addr string) *Node {
	hv := xxhash.Sum64String(addr)

	b := make([]byte, nodeIDBytes)
	for i := range nodeIDBytes {
		b[i] = byte(hv >> (byteShift * i))
	}

	return &Node{ID: NodeID(hex.EncodeToString(b)), Address: addr}
}

// Validate checks that the address is a host:port pair.
func (n *Node) Validate() error {
	if n.Address == "" {
		return ErrInvalidAddress
	}

	_, _, err := net.SplitHostPort(n.Address)
	if err != nil {
		return ewrap.Wrap(ErrInvalidAddress, err.Error())
	}

	return nil
}
