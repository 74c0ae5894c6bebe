// Package constants defines default configuration values for the kvs client:
// framing limits, dial settings, the default payload serializer and the
// cluster routing defaults.
package constants

import "time"

const (
	// FrameHeaderLen is the width of the frame length header in bytes.
	// The header is an unsigned big-endian integer giving the payload length.
	FrameHeaderLen = 4
	// DefaultMaxFrameLength is the largest payload accepted or produced by the framing codec.
	DefaultMaxFrameLength = 8 * 1024 * 1024
	// DefaultDialTimeout bounds connection establishment when the context carries no deadline.
	DefaultDialTimeout = 5 * time.Second
	// DefaultKeepAlive is the TCP keep-alive period of dialed connections.
	DefaultKeepAlive = 30 * time.Second
	// DefaultSerializer is the payload encoding both peers agree on unless configured otherwise.
	DefaultSerializer = "json"
	// MsgpackSerializer selects the msgpack payload encoding.
	MsgpackSerializer = "msgpack"
	// CBORSerializer selects the CBOR payload encoding.
	CBORSerializer = "cbor"
	// DefaultPoolSize is the number of connections a cluster keeps per node.
	DefaultPoolSize = 4
	// DefaultVirtualNodes is the number of ring points per node.
	DefaultVirtualNodes = 64
	// DefaultFanOut is the number of workers used by multi-key operations.
	DefaultFanOut = 8
)
