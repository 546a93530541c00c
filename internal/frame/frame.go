// Package frame provides the length-prefixed framing codec used by all
// workerfabric IPC: a fixed 8 byte big-endian header (cmd, size) followed by
// exactly size bytes of payload.
package frame

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// MaxPayloadSize is the largest payload a Frame may carry. Headers
// advertising a larger size are rejected before any payload is read.
const MaxPayloadSize = 1 << 24

// headerSize is the encoded size, in bytes, of a Frame's cmd and size
// fields.
const headerSize = 8

// ErrFrameTooLarge indicates a header advertised a payload size exceeding
// MaxPayloadSize.
var ErrFrameTooLarge = fmt.Errorf("frame: payload exceeds max size of %d bytes", MaxPayloadSize)

// ErrNegativeSize indicates a header advertised a negative payload size.
var ErrNegativeSize = fmt.Errorf("frame: negative payload size")

// Frame is a single unit of transfer: a command code and its payload.
type Frame struct {
	Cmd     int32
	Payload []byte
}

// Encode writes a single Frame to w as an 8 byte header followed by
// payload. Encode performs a single Write per field pair; callers that need
// atomic multi-frame emission must serialize their own calls to Encode.
func Encode(w io.Writer, cmd int32, payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return ErrFrameTooLarge
	}

	var header [headerSize]byte
	binary.BigEndian.PutUint32(header[0:4], uint32(cmd))
	binary.BigEndian.PutUint32(header[4:8], uint32(len(payload)))

	if _, err := w.Write(header[:]); err != nil {
		return errors.Wrap(err, "frame: write header")
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := w.Write(payload); err != nil {
		return errors.Wrap(err, "frame: write payload")
	}
	return nil
}

// NewDecoder creates a Decoder that reads framed data from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Decoder incrementally reassembles Frames from a byte stream. A single
// Decoder must not be used concurrently from multiple goroutines.
type Decoder struct {
	r io.Reader
}

// Next blocks until a complete Frame has been read from the underlying
// reader, or an error (including io.EOF) occurs. Next enforces
// 0 <= size <= MaxPayloadSize before attempting to read the payload.
func (d *Decoder) Next() (int32, []byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(d.r, header[:]); err != nil {
		return 0, nil, err
	}

	cmd := int32(binary.BigEndian.Uint32(header[0:4]))
	size := int32(binary.BigEndian.Uint32(header[4:8]))
	if size < 0 {
		return 0, nil, ErrNegativeSize
	}
	if size > MaxPayloadSize {
		return 0, nil, ErrFrameTooLarge
	}
	if size == 0 {
		return cmd, nil, nil
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(d.r, payload); err != nil {
		return 0, nil, errors.Wrap(err, "frame: read payload")
	}
	return cmd, payload, nil
}
