package kvs_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/longbridgeapp/assert"

	"github.com/hyp3rd/kvs"
	"github.com/hyp3rd/kvs/internal/protocol"
	"github.com/hyp3rd/kvs/internal/testutil/kvserver"
)

func connect(t *testing.T, srv *kvserver.Server, opts ...kvs.Option) *kvs.Handle {
	t.Helper()

	h, err := kvs.Connect(context.Background(), srv.Addr(), opts...)
	assert.Nil(t, err)

	return h
}

func TestConnect_Refused(t *testing.T) {
	srv := kvserver.Start(t, kvserver.NewStore().Handle)
	addr := srv.Addr()
	srv.Close()

	h, err := kvs.Connect(context.Background(), addr)
	assert.True(t, h == nil)
	assert.Equal(t, kvs.KindIO, kvs.KindOf(err))
}

func TestConnect_UnknownSerializer(t *testing.T) {
	srv := kvserver.Start(t, kvserver.NewStore().Handle)

	_, err := kvs.Connect(context.Background(), srv.Addr(), kvs.WithSerializer("yaml"))
	assert.Equal(t, kvs.KindSerialization, kvs.KindOf(err))
}

func TestHandle_SetAck(t *testing.T) {
	srv := kvserver.Start(t, kvserver.Always(protocol.SetResponse()))
	h := connect(t, srv)

	next, err := h.Set(context.Background(), "k", "v")
	assert.Nil(t, err)
	assert.True(t, next != nil)
	assert.True(t, next != h)
	assert.Equal(t, srv.Addr(), next.Addr())

	// the successor is usable
	next, err = next.Set(context.Background(), "k2", "v2")
	assert.Nil(t, err)
	assert.Nil(t, next.Close())
}

func TestHandle_GetMissing(t *testing.T) {
	srv := kvserver.Start(t, func(req protocol.Request) kvserver.Reply {
		if req.Type == protocol.TagGet && req.Key == "missing" {
			return kvserver.Reply{Response: protocol.GetResponse("", false)}
		}

		return kvserver.Reply{Response: protocol.ErrResponse("unexpected")}
	})
	h := connect(t, srv)

	value, found, next, err := h.Get(context.Background(), "missing")
	assert.Nil(t, err)
	assert.False(t, found)
	assert.Equal(t, "", value)
	assert.True(t, next != nil)
	assert.Nil(t, next.Close())
}

func TestHandle_RemoteError(t *testing.T) {
	srv := kvserver.Start(t, kvserver.Always(protocol.ErrResponse("boom")))

	ops := map[string]func(h *kvs.Handle) (*kvs.Handle, error){
		"get": func(h *kvs.Handle) (*kvs.Handle, error) {
			_, _, next, err := h.Get(context.Background(), "k")

			return next, err
		},
		"set":    func(h *kvs.Handle) (*kvs.Handle, error) { return h.Set(context.Background(), "k", "v") },
		"remove": func(h *kvs.Handle) (*kvs.Handle, error) { return h.Remove(context.Background(), "k") },
	}

	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			next, err := op(connect(t, srv))
			assert.True(t, next == nil)
			assert.Equal(t, kvs.KindMessage, kvs.KindOf(err))
			assert.True(t, errors.Is(err, kvs.ErrRemote))

			msg, ok := kvs.RemoteMessage(err)
			assert.True(t, ok)
			assert.Equal(t, "boom", msg)

			var kerr *kvs.Error
			assert.True(t, errors.As(err, &kerr))
			assert.Equal(t, name, kerr.Op)
		})
	}
}

func TestHandle_NoResponse(t *testing.T) {
	srv := kvserver.Start(t, func(protocol.Request) kvserver.Reply { return kvserver.Reply{Close: true} })
	h := connect(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	next, err := h.Set(ctx, "k", "v")
	assert.True(t, next == nil)
	assert.Equal(t, kvs.KindMessage, kvs.KindOf(err))
	assert.True(t, errors.Is(err, kvs.ErrNoResponse))

	_, ok := kvs.RemoteMessage(err)
	assert.False(t, ok)
	assert.Nil(t, ctx.Err())
}

func TestHandle_TruncatedFrame(t *testing.T) {
	srv := kvserver.Start(t, func(protocol.Request) kvserver.Reply {
		return kvserver.Reply{Raw: kvserver.FrameWithLength(64, []byte(`{"type":`)), Close: true}
	})
	h := connect(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, _, next, err := h.Get(ctx, "k")
	assert.True(t, next == nil)
	assert.Equal(t, kvs.KindIO, kvs.KindOf(err))
	assert.Nil(t, ctx.Err())
}

func TestHandle_OversizedFrame(t *testing.T) {
	srv := kvserver.Start(t, kvserver.Always(protocol.GetResponse(strings.Repeat("x", 256), true)))
	h := connect(t, srv, kvs.WithMaxFrameLength(64))

	_, _, _, err := h.Get(context.Background(), "k")
	assert.Equal(t, kvs.KindIO, kvs.KindOf(err))
	assert.True(t, errors.Is(err, kvs.ErrFrameTooLarge))
}

func TestHandle_ResponseMismatch(t *testing.T) {
	srv := kvserver.Start(t, kvserver.Always(protocol.RemoveResponse()))
	h := connect(t, srv)

	next, err := h.Set(context.Background(), "k", "v")
	assert.True(t, next == nil)
	assert.Equal(t, kvs.KindProtocolViolation, kvs.KindOf(err))
	assert.True(t, errors.Is(err, kvs.ErrUnexpectedResponse))
}

func TestHandle_MalformedPayload(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{name: "not json", raw: kvserver.Frame([]byte("not json"))},
		{name: "unknown tag", raw: kvserver.Frame([]byte(`{"type":"Bogus"}`))},
		{name: "empty payload", raw: kvserver.Frame(nil)},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			srv := kvserver.Start(t, func(protocol.Request) kvserver.Reply { return kvserver.Reply{Raw: test.raw} })

			_, _, next, err := connect(t, srv).Get(context.Background(), "k")
			assert.True(t, next == nil)
			assert.Equal(t, kvs.KindSerialization, kvs.KindOf(err))
		})
	}
}

func TestHandle_InvalidUTF8(t *testing.T) {
	srv := kvserver.Start(t, kvserver.NewStore().Handle)
	h := connect(t, srv)

	next, err := h.Set(context.Background(), "bad\xff", "v")
	assert.True(t, next == nil)
	assert.Equal(t, kvs.KindEncoding, kvs.KindOf(err))
	assert.True(t, errors.Is(err, kvs.ErrInvalidUTF8))
	assert.Equal(t, int64(0), srv.Requests())
}

func TestHandle_InvalidUTF8Response(t *testing.T) {
	srv := kvserver.Start(t, kvserver.Always(protocol.GetResponse("bad\xff", true)), "msgpack")
	h := connect(t, srv, kvs.WithSerializer("msgpack"))

	_, _, _, err := h.Get(context.Background(), "k")
	assert.Equal(t, kvs.KindEncoding, kvs.KindOf(err))
}

func TestHandle_ReuseIsRejected(t *testing.T) {
	srv := kvserver.Start(t, kvserver.NewStore().Handle)
	h := connect(t, srv)

	next, err := h.Set(context.Background(), "k", "v")
	assert.Nil(t, err)

	// h already produced next
	_, err = h.Set(context.Background(), "k", "other")
	assert.Equal(t, kvs.KindConcurrentUse, kvs.KindOf(err))
	assert.True(t, errors.Is(err, kvs.ErrConcurrentUse))

	assert.Equal(t, kvs.KindConcurrentUse, kvs.KindOf(h.Close()))

	// the rejected call did not disturb the live successor
	value, found, next, err := next.Get(context.Background(), "k")
	assert.Nil(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", value)
	assert.Nil(t, next.Close())
}

func TestHandle_ConcurrentUseOfOneHandle(t *testing.T) {
	srv := kvserver.Start(t, func(protocol.Request) kvserver.Reply {
		return kvserver.Reply{Response: protocol.SetResponse(), Delay: 20 * time.Millisecond}
	})
	h := connect(t, srv)

	const callers = 8

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		rejected int
	)

	wg.Add(callers)

	for range callers {
		go func() {
			defer wg.Done()

			next, err := h.Set(context.Background(), "k", "v")

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				ok++

				_ = next.Close()
			case kvs.KindOf(err) == kvs.KindConcurrentUse:
				rejected++
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, callers-1, rejected)
	assert.Equal(t, int64(1), srv.Requests())
}

func TestHandle_FailedHandleIsTerminal(t *testing.T) {
	srv := kvserver.Start(t, kvserver.Always(protocol.ErrResponse("boom")))
	h := connect(t, srv)

	_, err := h.Remove(context.Background(), "k")
	assert.Equal(t, kvs.KindMessage, kvs.KindOf(err))

	_, err = h.Remove(context.Background(), "k")
	assert.Equal(t, kvs.KindConcurrentUse, kvs.KindOf(err))
}

func TestHandle_ContextCancel(t *testing.T) {
	srv := kvserver.Start(t, func(protocol.Request) kvserver.Reply {
		return kvserver.Reply{Response: protocol.SetResponse(), Delay: 2 * time.Second}
	})
	h := connect(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	next, err := h.Set(ctx, "k", "v")
	assert.True(t, next == nil)
	assert.Equal(t, kvs.KindIO, kvs.KindOf(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.True(t, time.Since(start) < time.Second)
}

func TestHandle_AlreadyCancelled(t *testing.T) {
	srv := kvserver.Start(t, kvserver.NewStore().Handle)
	h := connect(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.Set(ctx, "k", "v")
	assert.Equal(t, kvs.KindIO, kvs.KindOf(err))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestHandle_ChainAgainstStore(t *testing.T) {
	for _, name := range []string{"json", "msgpack", "cbor"} {
		t.Run(name, func(t *testing.T) {
			srv := kvserver.Start(t, kvserver.NewStore().Handle, name)
			ctx := context.Background()

			h := connect(t, srv, kvs.WithSerializer(name))

			h, err := h.Set(ctx, "", "")
			assert.Nil(t, err)

			h, err = h.Set(ctx, "ctl", "a\x00b\nc\t")
			assert.Nil(t, err)

			value, found, h, err := h.Get(ctx, "ctl")
			assert.Nil(t, err)
			assert.True(t, found)
			assert.Equal(t, "a\x00b\nc\t", value)

			value, found, h, err = h.Get(ctx, "")
			assert.Nil(t, err)
			assert.True(t, found)
			assert.Equal(t, "", value)

			h, err = h.Remove(ctx, "ctl")
			assert.Nil(t, err)

			_, found, h, err = h.Get(ctx, "ctl")
			assert.Nil(t, err)
			assert.False(t, found)

			_, err = h.Remove(ctx, "ctl")
			msg, ok := kvs.RemoteMessage(err)
			assert.True(t, ok)
			assert.Equal(t, "Key not found", msg)
		})
	}
}
