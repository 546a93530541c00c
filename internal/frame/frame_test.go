package frame

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := map[string]struct {
		cmd     int32
		payload []byte
	}{
		"zero payload": {
			cmd:     3,
			payload: nil,
		},
		"small payload": {
			cmd:     100,
			payload: []byte{1, 2, 3},
		},
		"max payload": {
			cmd:     200,
			payload: bytes.Repeat([]byte{0xAB}, MaxPayloadSize),
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Encode(&buf, test.cmd, test.payload); err != nil {
				t.Fatalf("unexpected error: %s", err)
			}

			cmd, payload, err := NewDecoder(&buf).Next()
			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			if cmd != test.cmd {
				t.Fatalf("unexpected cmd; actual: %d, expected: %d", cmd, test.cmd)
			}
			if !bytes.Equal(payload, test.payload) {
				t.Fatalf("unexpected payload length; actual: %d, expected: %d", len(payload), len(test.payload))
			}
		})
	}
}

func TestEncodeFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, 1, make([]byte, MaxPayloadSize+1))
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDecoderFrameBoundary(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, 100, []byte{1, 2, 3}); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if err := Encode(&buf, 200, nil); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	// Feed the encoded bytes through in arbitrary small chunks to exercise
	// partial-buffer reassembly.
	all := buf.Bytes()
	chunks := [][]byte{all[:5], all[5:9], all[9:]}
	pr, pw := io.Pipe()
	go func() {
		for _, chunk := range chunks {
			_, _ = pw.Write(chunk)
		}
		pw.Close()
	}()

	dec := NewDecoder(pr)

	cmd, payload, err := dec.Next()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if cmd != 100 || !bytes.Equal(payload, []byte{1, 2, 3}) {
		t.Fatalf("unexpected first frame: cmd=%d payload=%v", cmd, payload)
	}

	cmd, payload, err = dec.Next()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if cmd != 200 || len(payload) != 0 {
		t.Fatalf("unexpected second frame: cmd=%d payload=%v", cmd, payload)
	}

	if _, _, err := dec.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got: %v", err)
	}
}

func TestDecoderNegativeSize(t *testing.T) {
	header := []byte{0, 0, 0, 1, 0xFF, 0xFF, 0xFF, 0xFF}
	_, _, err := NewDecoder(bytes.NewReader(header)).Next()
	if !errors.Is(err, ErrNegativeSize) {
		t.Fatalf("unexpected error: %v", err)
	}
}
