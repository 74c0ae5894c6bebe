package transport

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/longbridgeapp/assert"

	"github.com/hyp3rd/kvs/internal/libs/serializer"
	"github.com/hyp3rd/kvs/internal/sentinel"
)

type message struct {
	Type string `codec:"type" json:"type" msgpack:"type"`
	Body string `codec:"body" json:"body" msgpack:"body"`
}

func pipe(t *testing.T, name string) (*Conn, *Conn) {
	t.Helper()

	codec, err := serializer.New(name)
	assert.Nil(t, err)

	a, b := net.Pipe()
	opts := Options{Serializer: codec, MaxFrameLength: 1024}

	ca, cb := NewConn(a, opts), NewConn(b, opts)

	t.Cleanup(func() {
		_ = ca.Close()
		_ = cb.Close()
	})

	return ca, cb
}

func TestCodec_SendReceive(t *testing.T) {
	for _, name := range []string{"json", "msgpack", "cbor"} {
		t.Run(name, func(t *testing.T) {
			client, server := pipe(t, name)

			sent := make(chan error, 1)

			go func() { sent <- client.Sender().Send(&message{Type: "Set", Body: "héllo\n"}) }()

			var got message

			ok, err := server.Receiver().Receive(&got)
			assert.Nil(t, err)
			assert.True(t, ok)
			assert.Nil(t, <-sent)
			assert.Equal(t, message{Type: "Set", Body: "héllo\n"}, got)
		})
	}
}

func TestCodec_PeerClosedBeforeFrame(t *testing.T) {
	client, server := pipe(t, "json")

	assert.Nil(t, server.Close())

	var got message

	ok, err := client.Receiver().Receive(&got)
	assert.Nil(t, err)
	assert.False(t, ok)
}

func TestCodec_DecodeFailure(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	recv := NewReceiver(b, &serializer.JSONSerializer{}, 0)

	go func() { _ = WriteFrame(a, []byte("{not json"), 0) }()

	var got message

	ok, err := recv.Receive(&got)
	assert.False(t, ok)

	var codecErr *CodecError
	assert.True(t, errors.As(err, &codecErr))
	assert.Equal(t, "decode", codecErr.Op)
}

func TestCodec_HalfClosed(t *testing.T) {
	client, _ := pipe(t, "json")

	assert.Nil(t, client.Sender().Close())
	assert.Nil(t, client.Sender().Close())
	assert.True(t, errors.Is(client.Sender().Send(&message{}), sentinel.ErrHalfClosed))

	assert.Nil(t, client.Receiver().Close())

	_, err := client.Receiver().Receive(&message{})
	assert.True(t, errors.Is(err, sentinel.ErrHalfClosed))
}

func TestConn_DeadlineUnblocksReceive(t *testing.T) {
	client, _ := pipe(t, "json")

	assert.Nil(t, client.SetDeadline(time.Now().Add(20*time.Millisecond)))

	ok, err := client.Receiver().Receive(&message{})
	assert.False(t, ok)

	var netErr net.Error
	assert.True(t, errors.As(err, &netErr))
	assert.True(t, netErr.Timeout())
}
