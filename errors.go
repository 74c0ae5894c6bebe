package kvs

import (
	"errors"

	"github.com/hyp3rd/kvs/internal/sentinel"
	"github.com/hyp3rd/kvs/internal/transport"
)

// Kind classifies a failure. The set is closed: every error returned by this
// package is an *Error carrying one of these kinds.
type Kind uint8

// Error kinds.
const (
	// KindIO is a transport failure while connecting, reading or writing.
	KindIO Kind = iota + 1
	// KindSerialization is a frame payload that could not be encoded or decoded.
	KindSerialization
	// KindKeyNotFound is a store-side report that a key is absent.
	KindKeyNotFound
	// KindProtocolViolation is a well-formed response that does not answer the request in flight.
	KindProtocolViolation
	// KindStore is a failure passed through from the storage engine.
	KindStore
	// KindMessage is a free-text failure: a remote `Err` response, or a local condition such as no response.
	KindMessage
	// KindEncoding is text that is not valid UTF-8.
	KindEncoding
	// KindConcurrentUse is a handle used after it produced a successor, or a busy session.
	KindConcurrentUse
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindSerialization:
		return "serialization"
	case KindKeyNotFound:
		return "key not found"
	case KindProtocolViolation:
		return "protocol violation"
	case KindStore:
		return "store"
	case KindMessage:
		return "message"
	case KindEncoding:
		return "encoding"
	case KindConcurrentUse:
		return "concurrent use"
	}

	return "unknown"
}

// Sentinels re-exported for errors.Is checks by callers.
var (
	ErrNoResponse         = sentinel.ErrNoResponse
	ErrRemote             = sentinel.ErrRemote
	ErrUnexpectedResponse = sentinel.ErrUnexpectedResponse
	ErrUnknownResponse    = sentinel.ErrUnknownResponse
	ErrConcurrentUse      = sentinel.ErrConcurrentUse
	ErrInvalidUTF8        = sentinel.ErrInvalidUTF8
	ErrKeyNotFound        = sentinel.ErrKeyNotFound
	ErrFrameTooLarge      = sentinel.ErrFrameTooLarge
	ErrSessionClosed      = sentinel.ErrSessionClosed
	ErrNoNodes            = sentinel.ErrNoNodes
)

// Error is the single error type reported by the client.
type Error struct {
	Kind Kind
	Op   string // operation that failed: connect, get, set, remove, close
	Addr string // server address, when known
	Msg  string // remote message for KindMessage, key for KindKeyNotFound
	Err  error  // underlying cause
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	s := "kvs: " + e.Op
	if e.Addr != "" {
		s += "(" + e.Addr + ")"
	}

	switch {
	case e.Kind == KindMessage && e.Msg != "":
		s += ": " + e.Msg
	case e.Err != nil:
		s += ": " + e.Err.Error()
	default:
		s += ": " + e.Kind.String()
	}

	return s
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, or zero when err was not produced by this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return 0
}

// RemoteMessage returns the text of a remote `Err` response.
func RemoteMessage(err error) (string, bool) {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindMessage && errors.Is(e.Err, sentinel.ErrRemote) {
		return e.Msg, true
	}

	return "", false
}

// NewKeyNotFoundError reports a missing key on behalf of a storage engine.
// Its message matches what servers send in an `Err` response for the same condition.
func NewKeyNotFoundError(op, key string) error {
	return &Error{Kind: KindKeyNotFound, Op: op, Msg: key, Err: sentinel.ErrKeyNotFound}
}

// NewStoreError wraps a failure reported by a storage engine.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}

	return &Error{Kind: KindStore, Op: op, Err: errors.Join(sentinel.ErrStore, err)}
}

func newError(kind Kind, op, addr string, err error) *Error {
	return &Error{Kind: kind, Op: op, Addr: addr, Err: err}
}

func remoteError(op, addr, msg string) *Error {
	return &Error{Kind: KindMessage, Op: op, Addr: addr, Msg: msg, Err: sentinel.ErrRemote}
}

// classify maps a failure observed below the engine into the taxonomy.
func classify(op, addr string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	var codecErr *transport.CodecError

	switch {
	case errors.As(err, &codecErr):
		return newError(KindSerialization, op, addr, err)
	case errors.Is(err, sentinel.ErrInvalidUTF8):
		return newError(KindEncoding, op, addr, err)
	case errors.Is(err, sentinel.ErrUnknownResponse):
		return newError(KindSerialization, op, addr, err)
	default:
		return newError(KindIO, op, addr, err)
	}
}
