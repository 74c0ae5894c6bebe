// Package sentinel provides standardized error definitions for the kvs client.
// This package centralizes the sentinel errors used across the transport, the
// request/response engine and the cluster layer, so that every component reports
// the same values for the same conditions.
//
// The errors defined here cover:
// - Framing and transport failures (oversized frames, closed halves)
// - Protocol failures (unexpected or unknown response tags, missing responses)
// - Ownership failures (a handle used after it produced a successor)
// - Remote failures reported by the server inside an error-tagged response
//
// All errors are created using the ewrap package to provide enhanced error
// wrapping and context capabilities.
package sentinel

import (
	"github.com/hyp3rd/ewrap"
)

var (
	// ErrFrameTooLarge is returned when a frame exceeds the configured maximum length.
	ErrFrameTooLarge = ewrap.New("frame too large")

	// ErrHalfClosed is returned when a send or receive half is used after it was closed.
	ErrHalfClosed = ewrap.New("connection half closed")

	// ErrNoResponse is returned when the peer closes the connection before replying.
	ErrNoResponse = ewrap.New("no response")

	// ErrRemote marks a failure message reported by the server in an `Err` response.
	ErrRemote = ewrap.New("remote error")

	// ErrUnexpectedResponse is returned when a response tag is valid but does not
	// match the request that is in flight.
	ErrUnexpectedResponse = ewrap.New("unexpected response")

	// ErrUnknownResponse is returned when a decoded frame carries a tag that is not part of the protocol.
	ErrUnknownResponse = ewrap.New("unknown response type")

	// ErrConcurrentUse is returned when a handle is used after it already produced a successor,
	// or when a session is entered while another operation holds it.
	ErrConcurrentUse = ewrap.New("concurrent use of connection handle")

	// ErrInvalidUTF8 is returned when text is not a valid UTF-8 sequence.
	ErrInvalidUTF8 = ewrap.New("invalid utf-8 sequence")

	// ErrKeyNotFound is returned by the store when a key is absent.
	ErrKeyNotFound = ewrap.New("Key not found")

	// ErrStore marks a failure passed through from the storage engine.
	ErrStore = ewrap.New("store failure")

	// ErrSessionClosed is returned when an operation is issued on a closed session or cluster.
	ErrSessionClosed = ewrap.New("session closed")

	// ErrNoNodes is returned when a cluster is built without any node address.
	ErrNoNodes = ewrap.New("no nodes configured")

	// ErrParamCannotBeEmpty is returned when a parameter cannot be empty.
	ErrParamCannotBeEmpty = ewrap.New("param cannot be empty")

	// ErrSerializerNotFound is returned when a serializer is not found.
	ErrSerializerNotFound = ewrap.New("serializer not found")

	// ErrMgmtHTTPShutdownTimeout is returned when the management HTTP server fails to shutdown before context deadline.
	ErrMgmtHTTPShutdownTimeout = ewrap.New("management http shutdown timeout")
)
