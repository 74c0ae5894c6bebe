// Package kvs is a client for a remote key-value server that speaks a
// length-framed, tagged request/response protocol over one persistent connection.
//
// A connection is represented by a *Handle. Every operation consumes the handle it
// is called on and, on success, returns a fresh successor bound to the same
// connection:
//
//	h, err := kvs.Connect(ctx, "127.0.0.1:4000")
//	h, err = h.Set(ctx, "k", "v")
//	v, ok, h, err := h.Get(ctx, "k")
//	err = h.Close()
//
// Using a handle a second time fails with KindConcurrentUse, so at most one request
// is ever outstanding on a connection. A failed operation returns no handle and
// closes the connection; callers reconnect to continue. Session and Cluster wrap
// this discipline for callers that prefer a long-lived value.
package kvs

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"time"

	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/kvs/internal/libs/serializer"
	"github.com/hyp3rd/kvs/internal/protocol"
	"github.com/hyp3rd/kvs/internal/sentinel"
	"github.com/hyp3rd/kvs/internal/transport"
)

// Operation names reported in Error.Op.
const (
	OpConnect = "connect"
	OpGet     = "get"
	OpSet     = "set"
	OpRemove  = "remove"
	OpClose   = "close"
)

//nolint:gochecknoglobals
var serializerRegistry = serializer.NewSerializerRegistry()

// Handle is the exclusive right to issue the next request on a connection.
type Handle struct {
	link  *link
	spent atomic.Bool
}

// link is the connection shared by a chain of handles. Only the handle that
// currently owns it may touch it.
type link struct {
	conn *transport.Conn
	addr string
}

// Connect opens a connection to address and returns its first handle.
func Connect(ctx context.Context, address string, opts ...Option) (*Handle, error) {
	o := applyOptions(opts...)

	topts, err := o.transport()
	if err != nil {
		return nil, newError(KindSerialization, OpConnect, address, err)
	}

	conn, err := transport.Dial(ctx, address, topts)
	if err != nil {
		return nil, newError(KindIO, OpConnect, address, err)
	}

	return &Handle{link: &link{conn: conn, addr: address}}, nil
}

// Addr returns the address the handle's connection was opened to.
func (h *Handle) Addr() string {
	if h == nil || h.link == nil {
		return ""
	}

	return h.link.addr
}

// Get fetches key. found is false when the server holds no value for it.
func (h *Handle) Get(ctx context.Context, key string) (value string, found bool, next *Handle, err error) {
	resp, next, err := h.roundTrip(ctx, OpGet, protocol.GetRequest(key), protocol.TagGet)
	if err != nil {
		return "", false, nil, err
	}

	if resp.Value == nil {
		return "", false, next, nil
	}

	return *resp.Value, true, next, nil
}

// Set stores value under key.
func (h *Handle) Set(ctx context.Context, key, value string) (*Handle, error) {
	_, next, err := h.roundTrip(ctx, OpSet, protocol.SetRequest(key, value), protocol.TagSet)

	return next, err
}

// Remove deletes key.
func (h *Handle) Remove(ctx context.Context, key string) (*Handle, error) {
	_, next, err := h.roundTrip(ctx, OpRemove, protocol.RemoveRequest(key), protocol.TagRemove)

	return next, err
}

// Close consumes the handle and releases the connection.
func (h *Handle) Close() error {
	l, err := h.claim(OpClose)
	if err != nil {
		return err
	}

	err = l.conn.Close()
	if err != nil {
		return newError(KindIO, OpClose, l.addr, err)
	}

	return nil
}

func (h *Handle) claim(op string) (*link, error) {
	if h == nil || h.link == nil {
		return nil, newError(KindConcurrentUse, op, "", sentinel.ErrConcurrentUse)
	}

	if !h.spent.CompareAndSwap(false, true) {
		return nil, newError(KindConcurrentUse, op, h.link.addr, sentinel.ErrConcurrentUse)
	}

	return h.link, nil
}

// roundTrip runs one request through Sending and Awaiting. On success it mints the
// successor handle; on failure the connection is closed and no handle is returned.
func (h *Handle) roundTrip(ctx context.Context, op string, req protocol.Request, want protocol.Tag) (protocol.Response, *Handle, error) {
	l, err := h.claim(op)
	if err != nil {
		return protocol.Response{}, nil, err
	}

	resp, err := l.exchange(ctx, op, req)
	if err == nil {
		err = expect(op, l.addr, &resp, want)
	}

	if err != nil {
		_ = l.conn.Close() //nolint:errcheck // the operation error is what the caller needs

		return protocol.Response{}, nil, err
	}

	return resp, &Handle{link: l}, nil
}

func (l *link) exchange(ctx context.Context, op string, req protocol.Request) (protocol.Response, error) {
	var resp protocol.Response

	err := req.Validate()
	if err != nil {
		return resp, classify(op, l.addr, err)
	}

	stop, err := l.bind(ctx)
	if err != nil {
		return resp, l.fail(ctx, op, err)
	}

	err = l.conn.Sender().Send(&req)
	if err != nil {
		stop()

		return resp, l.fail(ctx, op, err)
	}

	ok, err := l.conn.Receiver().Receive(&resp)
	if !stop() && err == nil {
		// cancellation fired after the reply arrived; the deadline it set would leak into the next request
		err = ctx.Err()
	}

	if err != nil {
		return resp, l.fail(ctx, op, err)
	}

	if !ok {
		return resp, newError(KindMessage, op, l.addr, sentinel.ErrNoResponse)
	}

	err = resp.Validate()
	if err != nil {
		return resp, classify(op, l.addr, err)
	}

	return resp, nil
}

// bind maps the context onto the connection: its deadline bounds the I/O and its
// cancellation forces blocked reads and writes to return.
func (l *link) bind(ctx context.Context) (func() bool, error) {
	err := ctx.Err()
	if err != nil {
		return nil, err
	}

	deadline, _ := ctx.Deadline()

	err = l.conn.SetDeadline(deadline)
	if err != nil {
		return nil, err
	}

	return context.AfterFunc(ctx, func() {
		_ = l.conn.SetDeadline(time.Unix(1, 0)) //nolint:errcheck // the blocked call reports the failure
	}), nil
}

func (l *link) fail(ctx context.Context, op string, err error) *Error {
	ctxErr := ctx.Err()
	if ctxErr == nil && errors.Is(err, os.ErrDeadlineExceeded) {
		// the socket deadline can fire just before the context timer does
		if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
			ctxErr = context.DeadlineExceeded
		}
	}

	if ctxErr != nil {
		return newError(KindIO, op, l.addr, errors.Join(ctxErr, err))
	}

	return classify(op, l.addr, err)
}

func expect(op, addr string, resp *protocol.Response, want protocol.Tag) error {
	switch resp.Type {
	case want:
		return nil
	case protocol.TagErr:
		return remoteError(op, addr, resp.Message)
	default:
		return newError(KindProtocolViolation, op, addr,
			ewrap.Wrapf(sentinel.ErrUnexpectedResponse, "expected %s, got %s", want, resp.Type))
	}
}
