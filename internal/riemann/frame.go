package riemann

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize bounds the length prefix accepted from a server.
const MaxFrameSize = 16 << 20

// WriteMsg writes m to w as a 4-byte big-endian length followed by the
// encoded message.
func WriteMsg(w io.Writer, m Msg) error {
	payload := Marshal(m)
	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[4:], payload)
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadMsg reads one length-prefixed message from r.
func ReadMsg(r io.Reader) (Msg, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Msg{}, fmt.Errorf("read frame header: %w", err)
	}
	size := binary.BigEndian.Uint32(hdr[:])
	if size > MaxFrameSize {
		return Msg{}, fmt.Errorf("frame size %d exceeds max %d bytes", size, MaxFrameSize)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Msg{}, fmt.Errorf("read frame body: %w", err)
	}
	m, err := Unmarshal(payload)
	if err != nil {
		return Msg{}, fmt.Errorf("decode frame: %w", err)
	}
	return m, nil
}
