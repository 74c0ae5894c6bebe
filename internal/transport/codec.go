package transport

import (
	"bufio"
	"errors"
	"io"

	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/kvs/internal/libs/serializer"
	"github.com/hyp3rd/kvs/internal/sentinel"
)

// CodecError is a payload that could not be serialized or deserialized.
type CodecError struct {
	Op  string // "encode" or "decode"
	Err error
}

func (e *CodecError) Error() string {
	if e == nil {
		return ""
	}

	return e.Op + " payload: " + e.Err.Error()
}

func (e *CodecError) Unwrap() error { return e.Err }

// Sender is the write half of a connection. It frames and flushes one message per Send.
// A Sender is owned by a single operation at a time and is not safe for concurrent use.
type Sender struct {
	w      *bufio.Writer
	close  func() error
	codec  serializer.ISerializer
	maxLen int
	closed bool
}

// NewSender wraps w with the framing codec.
func NewSender(w io.Writer, codec serializer.ISerializer, maxLen int) *Sender {
	return &Sender{w: bufio.NewWriter(w), codec: codec, maxLen: maxLen, close: func() error { return nil }}
}

// Send serializes msg, writes it as one frame and flushes it to the transport.
func (s *Sender) Send(msg any) error {
	if s.closed {
		return sentinel.ErrHalfClosed
	}

	payload, err := s.codec.Marshal(msg)
	if err != nil {
		return &CodecError{Op: "encode", Err: err}
	}

	err = WriteFrame(s.w, payload, s.maxLen)
	if err != nil {
		return err
	}

	err = s.w.Flush()
	if err != nil {
		return ewrap.Wrap(err, "flush frame")
	}

	return nil
}

// Close half-closes the write side when the transport supports it.
func (s *Sender) Close() error {
	if s.closed {
		return nil
	}

	s.closed = true

	return s.close()
}

// Receiver is the read half of a connection. Partial reads are buffered until a full frame is available.
// A Receiver is owned by a single operation at a time and is not safe for concurrent use.
type Receiver struct {
	r      *bufio.Reader
	close  func() error
	codec  serializer.ISerializer
	maxLen int
	closed bool
}

// NewReceiver wraps r with the framing codec.
func NewReceiver(r io.Reader, codec serializer.ISerializer, maxLen int) *Receiver {
	return &Receiver{r: bufio.NewReader(r), codec: codec, maxLen: maxLen, close: func() error { return nil }}
}

// Receive reads the next frame and decodes it into msg.
// It reports false with a nil error when the peer closed the stream before a frame started.
func (r *Receiver) Receive(msg any) (bool, error) {
	if r.closed {
		return false, sentinel.ErrHalfClosed
	}

	payload, err := ReadFrame(r.r, r.maxLen)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}

		return false, err
	}

	err = r.codec.Unmarshal(payload, msg)
	if err != nil {
		return false, &CodecError{Op: "decode", Err: err}
	}

	return true, nil
}

// Close half-closes the read side when the transport supports it.
func (r *Receiver) Close() error {
	if r.closed {
		return nil
	}

	r.closed = true

	return r.close()
}
