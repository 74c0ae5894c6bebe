// Package kvserver is a scriptable kvs server for tests. It speaks the real
// framing codec over TCP on a loopback port, and lets a test decide, per request,
// whether to answer, answer with raw bytes, or drop the connection.
package kvserver

import (
	"encoding/binary"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyp3rd/kvs"
	"github.com/hyp3rd/kvs/internal/constants"
	"github.com/hyp3rd/kvs/internal/libs/serializer"
	"github.com/hyp3rd/kvs/internal/protocol"
	"github.com/hyp3rd/kvs/internal/transport"
)

// Reply scripts the server's reaction to one request.
type Reply struct {
	Response protocol.Response
	Raw      []byte        // written verbatim instead of Response when non-nil
	Close    bool          // close the connection after writing Raw (or instead of replying)
	Delay    time.Duration // wait before reacting
}

// Handler decides the reply to a request.
type Handler func(req protocol.Request) Reply

// Server is a running test double.
type Server struct {
	ln       net.Listener
	handler  Handler
	opts     transport.Options
	requests atomic.Int64

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// Start listens on 127.0.0.1:0 and serves until the test ends.
func Start(tb testing.TB, handler Handler, serializerName ...string) *Server {
	tb.Helper()

	opts := transport.DefaultOptions()
	if len(serializerName) > 0 {
		codec, err := serializer.New(serializerName[0])
		if err != nil {
			tb.Fatalf("serializer: %v", err)
		}

		opts.Serializer = codec
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("listen: %v", err)
	}

	s := &Server{ln: ln, handler: handler, opts: opts, conns: map[net.Conn]struct{}{}}

	s.wg.Add(1)

	go s.accept()

	tb.Cleanup(s.Close)

	return s
}

// Addr returns the listening address.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Requests returns how many requests were decoded so far.
func (s *Server) Requests() int64 { return s.requests.Load() }

// Close stops the listener, drops open connections and waits for handlers to exit.
func (s *Server) Close() {
	_ = s.ln.Close()

	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Server) accept() {
	defer s.wg.Done()

	for {
		raw, err := s.ln.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		s.conns[raw] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)

		go s.serve(raw)
	}
}

func (s *Server) serve(raw net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, raw)
		s.mu.Unlock()

		_ = raw.Close()
	}()

	conn := transport.NewConn(raw, s.opts)

	for {
		var req protocol.Request

		ok, err := conn.Receiver().Receive(&req)
		if err != nil || !ok {
			return
		}

		s.requests.Add(1)

		reply := s.handler(req)
		if reply.Delay > 0 {
			time.Sleep(reply.Delay)
		}

		if reply.Raw != nil {
			_, err = raw.Write(reply.Raw)
		} else if !reply.Close {
			err = conn.Sender().Send(&reply.Response)
		}

		if err != nil || reply.Close {
			return
		}
	}
}

// Frame prefixes payload with a length header.
func Frame(payload []byte) []byte {
	return FrameWithLength(uint32(len(payload)), payload) //nolint:gosec // test payloads are small
}

// FrameWithLength writes an arbitrary length header before payload, for truncated frames.
func FrameWithLength(n uint32, payload []byte) []byte {
	out := make([]byte, constants.FrameHeaderLen, constants.FrameHeaderLen+len(payload))
	binary.BigEndian.PutUint32(out, n)

	return append(out, payload...)
}

// Always answers every request with resp.
func Always(resp protocol.Response) Handler {
	return func(protocol.Request) Reply { return Reply{Response: resp} }
}

// Store is an in-memory key-value handler shared by every connection of a server.
type Store struct {
	mu   sync.Mutex
	data map[string]string
}

// NewStore returns an empty store.
func NewStore() *Store { return &Store{data: map[string]string{}} }

// Handle answers requests from the store. Removing a missing key yields an `Err`
// response with the storage engine's message.
func (st *Store) Handle(req protocol.Request) Reply {
	st.mu.Lock()
	defer st.mu.Unlock()

	switch req.Type {
	case protocol.TagGet:
		v, ok := st.data[req.Key]

		return Reply{Response: protocol.GetResponse(v, ok)}
	case protocol.TagSet:
		if req.Value == nil {
			return Reply{Response: protocol.ErrResponse("missing value")}
		}

		st.data[req.Key] = *req.Value

		return Reply{Response: protocol.SetResponse()}
	case protocol.TagRemove:
		if _, ok := st.data[req.Key]; !ok {
			return Reply{Response: protocol.ErrResponse(message(kvs.NewKeyNotFoundError(kvs.OpRemove, req.Key)))}
		}

		delete(st.data, req.Key)

		return Reply{Response: protocol.RemoveResponse()}
	default:
		return Reply{Response: protocol.ErrResponse("unexpected command type")}
	}
}

// message renders a store failure the way a server reports it on the wire.
func message(err error) string {
	if errors.Is(err, kvs.ErrKeyNotFound) {
		return "Key not found"
	}

	return err.Error()
}
