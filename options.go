package kvs

import (
	"time"

	"github.com/hyp3rd/kvs/internal/constants"
	"github.com/hyp3rd/kvs/internal/transport"
)

// Option is a function type that can be used to configure a connection.
type Option func(*options)

type options struct {
	serializer     string
	maxFrameLength int
	dialTimeout    time.Duration
	keepAlive      time.Duration
}

func defaultOptions() options {
	return options{
		serializer:     constants.DefaultSerializer,
		maxFrameLength: constants.DefaultMaxFrameLength,
		dialTimeout:    constants.DefaultDialTimeout,
		keepAlive:      constants.DefaultKeepAlive,
	}
}

func applyOptions(opts ...Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// WithSerializer selects the payload encoding by name: "json" (default), "msgpack" or "cbor".
// The server must use the same encoding.
func WithSerializer(name string) Option {
	return func(o *options) {
		o.serializer = name
	}
}

// WithMaxFrameLength sets the largest payload the connection sends or accepts.
// Non-positive values keep the default of 8 MiB.
func WithMaxFrameLength(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxFrameLength = n
		}
	}
}

// WithDialTimeout bounds connection establishment. Zero disables the bound; the context still applies.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.dialTimeout = d
		}
	}
}

// WithKeepAlive sets the TCP keep-alive period. A negative value disables keep-alive.
func WithKeepAlive(d time.Duration) Option {
	return func(o *options) {
		o.keepAlive = d
	}
}

func (o options) transport() (transport.Options, error) {
	codec, err := serializerRegistry.New(o.serializer)
	if err != nil {
		return transport.Options{}, err
	}

	return transport.Options{
		Serializer:     codec,
		MaxFrameLength: o.maxFrameLength,
		DialTimeout:    o.dialTimeout,
		KeepAlive:      o.keepAlive,
	}, nil
}
