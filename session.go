package kvs

import (
	"context"
	"sync"
)

// Session owns one connection and threads its handle through successive calls.
// It never queues: a call made while another is in flight fails immediately with
// KindConcurrentUse. After a failed call the connection is dropped and the next
// call dials again; the failed call itself is not retried.
type Session struct {
	mu     sync.Mutex
	addr   string
	opts   []Option
	handle *Handle
	closed bool
}

// NewSession returns a session for address. No connection is opened until the first call.
func NewSession(address string, opts ...Option) *Session {
	return &Session{addr: address, opts: opts}
}

// Addr returns the server address of the session.
func (s *Session) Addr() string { return s.addr }

// Get implements Service.Get.
func (s *Session) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		value string
		found bool
	)

	err := s.do(ctx, OpGet, func(h *Handle) (*Handle, error) {
		var (
			next *Handle
			err  error
		)

		value, found, next, err = h.Get(ctx, key)

		return next, err
	})

	return value, found, err
}

// Set implements Service.Set.
func (s *Session) Set(ctx context.Context, key, value string) error {
	return s.do(ctx, OpSet, func(h *Handle) (*Handle, error) {
		return h.Set(ctx, key, value)
	})
}

// Remove implements Service.Remove.
func (s *Session) Remove(ctx context.Context, key string) error {
	return s.do(ctx, OpRemove, func(h *Handle) (*Handle, error) {
		return h.Remove(ctx, key)
	})
}

// Close releases the connection. Later calls fail with ErrSessionClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	h := s.handle
	s.handle = nil

	if h == nil {
		return nil
	}

	return h.Close()
}

func (s *Session) do(ctx context.Context, op string, fn func(*Handle) (*Handle, error)) error {
	if !s.mu.TryLock() {
		return newError(KindConcurrentUse, op, s.addr, ErrConcurrentUse)
	}
	defer s.mu.Unlock()

	if s.closed {
		return newError(KindIO, op, s.addr, ErrSessionClosed)
	}

	if s.handle == nil {
		h, err := Connect(ctx, s.addr, s.opts...)
		if err != nil {
			return err
		}

		s.handle = h
	}

	h := s.handle
	s.handle = nil

	next, err := fn(h)
	if err != nil {
		return err
	}

	s.handle = next

	return nil
}
