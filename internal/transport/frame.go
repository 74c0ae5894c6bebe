package transport

import (
	"encoding/binary"
	"errors"
	"io"
	"math"

	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/kvs/internal/constants"
	"github.com/hyp3rd/kvs/internal/sentinel"
)

// WriteFrame writes payload prefixed by its length as a 4-byte big-endian unsigned integer.
func WriteFrame(w io.Writer, payload []byte, maxLen int) error {
	if uint64(len(payload)) > limit(maxLen) {
		return ewrap.Wrapf(sentinel.ErrFrameTooLarge, "payload of %d bytes", len(payload))
	}

	var hdr [constants.FrameHeaderLen]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload))) //nolint:gosec // bounded by limit

	_, err := w.Write(hdr[:])
	if err != nil {
		return ewrap.Wrap(err, "write frame header")
	}

	if len(payload) == 0 {
		return nil
	}

	_, err = w.Write(payload)
	if err != nil {
		return ewrap.Wrap(err, "write frame payload")
	}

	return nil
}

// ReadFrame reads one frame and returns its payload.
//
// It returns io.EOF, unwrapped, only when the stream ends cleanly before the first
// header byte. A stream ending anywhere inside a frame yields io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader, maxLen int) ([]byte, error) {
	var hdr [constants.FrameHeaderLen]byte

	_, err := io.ReadFull(r, hdr[:])
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}

		return nil, ewrap.Wrap(err, "read frame header")
	}

	n := binary.BigEndian.Uint32(hdr[:])
	if uint64(n) > limit(maxLen) {
		return nil, ewrap.Wrapf(sentinel.ErrFrameTooLarge, "header announces %d bytes", n)
	}

	payload := make([]byte, n)
	if n == 0 {
		return payload, nil
	}

	_, err = io.ReadFull(r, payload)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}

		return nil, ewrap.Wrapf(err, "read frame payload of %d bytes", n)
	}

	return payload, nil
}

// limit returns the effective frame bound. It never exceeds what the 4-byte header can announce.
func limit(maxLen int) uint64 {
	if maxLen <= 0 {
		maxLen = constants.DefaultMaxFrameLength
	}

	return min(uint64(maxLen), math.MaxUint32)
}
