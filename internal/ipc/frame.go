// Package ipc exchanges protocol envelopes between the background service and
// the management client over a single duplex local channel, one length-prefixed
// frame per envelope.
package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	// MaxFrameSize bounds memory use against a corrupted or hostile peer.
	MaxFrameSize = 1 << 20

	DefaultConnectTimeout = 3 * time.Second
	DefaultRequestTimeout = 10 * time.Second
)

var (
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
	ErrEmptyFrame    = errors.New("frame length is zero")
)

// WriteFrame writes a 4-byte big-endian length prefix followed by the body.
func WriteFrame(w io.Writer, body []byte) error {
	if len(body) == 0 {
		return ErrEmptyFrame
	}
	if len(body) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(body))
	}

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(body)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("write frame prefix: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads exactly one frame. The claimed length is validated before
// any body bytes are read; a peer closing mid-frame surfaces as an I/O error,
// never as a short message.
func ReadFrame(r io.Reader) ([]byte, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, fmt.Errorf("read frame prefix: %w", err)
	}

	n := binary.BigEndian.Uint32(prefix[:])
	if n == 0 {
		return nil, ErrEmptyFrame
	}
	if n > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return body, nil
}
