// Package transport implements the connection layer of the kvs client: it dials a
// reliable byte stream, splits it into an independently owned send half and
// receive half, and wraps each half with the length-prefixed framing codec.
package transport

import (
	"context"
	"net"
	"time"

	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/kvs/internal/constants"
	"github.com/hyp3rd/kvs/internal/libs/serializer"
)

// Options configures a connection.
type Options struct {
	Serializer     serializer.ISerializer
	MaxFrameLength int
	DialTimeout    time.Duration
	KeepAlive      time.Duration
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Serializer:     &serializer.JSONSerializer{},
		MaxFrameLength: constants.DefaultMaxFrameLength,
		DialTimeout:    constants.DefaultDialTimeout,
		KeepAlive:      constants.DefaultKeepAlive,
	}
}

// Conn is an open transport split into two framed halves.
type Conn struct {
	raw  net.Conn
	send *Sender
	recv *Receiver
}

type closeWriter interface{ CloseWrite() error }

type closeReader interface{ CloseRead() error }

// Dial opens a TCP connection to address and splits it into framed halves.
func Dial(ctx context.Context, address string, opts Options) (*Conn, error) {
	dialer := net.Dialer{Timeout: opts.DialTimeout, KeepAlive: opts.KeepAlive}

	raw, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, ewrap.Wrapf(err, "dial %s", address)
	}

	return NewConn(raw, opts), nil
}

// NewConn splits an established stream into framed halves.
func NewConn(raw net.Conn, opts Options) *Conn {
	if opts.Serializer == nil {
		opts.Serializer = &serializer.JSONSerializer{}
	}

	send := NewSender(raw, opts.Serializer, opts.MaxFrameLength)
	if cw, ok := raw.(closeWriter); ok {
		send.close = cw.CloseWrite
	}

	recv := NewReceiver(raw, opts.Serializer, opts.MaxFrameLength)
	if cr, ok := raw.(closeReader); ok {
		recv.close = cr.CloseRead
	}

	return &Conn{raw: raw, send: send, recv: recv}
}

// Sender returns the write half.
func (c *Conn) Sender() *Sender { return c.send }

// Receiver returns the read half.
func (c *Conn) Receiver() *Receiver { return c.recv }

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string { return c.raw.RemoteAddr().String() }

// SetDeadline bounds pending and future I/O on both halves. A zero value clears it.
func (c *Conn) SetDeadline(t time.Time) error {
	err := c.raw.SetDeadline(t)
	if err != nil {
		return ewrap.Wrap(err, "set deadline")
	}

	return nil
}

// Close releases the transport.
func (c *Conn) Close() error {
	err := c.raw.Close()
	if err != nil {
		return ewrap.Wrap(err, "close connection")
	}

	return nil
}
