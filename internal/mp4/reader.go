package mp4

import (
	"encoding/binary"
	"fmt"
)

var be = binary.BigEndian

// Reader is a bounds-checked big-endian cursor over a box payload.
type Reader struct {
	buf []byte
	pos int
}

// NewReader returns a Reader positioned at the start of buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

// ReadUint8 consumes one byte.
func (r *Reader) ReadUint8() (uint8, error) {
	if r.Remaining() < 1 {
		return 0, fmt.Errorf("read uint8 at %d: %w", r.pos, ErrTruncatedBox)
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

// ReadUint24 consumes a 3-byte big-endian unsigned integer.
func (r *Reader) ReadUint24() (uint32, error) {
	if r.Remaining() < 3 {
		return 0, fmt.Errorf("read uint24 at %d: %w", r.pos, ErrTruncatedBox)
	}
	v := uint32(r.buf[r.pos])<<16 | uint32(r.buf[r.pos+1])<<8 | uint32(r.buf[r.pos+2])
	r.pos += 3
	return v, nil
}

// ReadUint32 consumes a 4-byte big-endian unsigned integer.
func (r *Reader) ReadUint32() (uint32, error) {
	if r.Remaining() < 4 {
		return 0, fmt.Errorf("read uint32 at %d: %w", r.pos, ErrTruncatedBox)
	}
	v := be.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

// ReadUint64 consumes an 8-byte big-endian unsigned integer.
func (r *Reader) ReadUint64() (uint64, error) {
	if r.Remaining() < 8 {
		return 0, fmt.Errorf("read uint64 at %d: %w", r.pos, ErrTruncatedBox)
	}
	v := be.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

// Skip advances the cursor by n bytes without interpreting them.
func (r *Reader) Skip(n int) error {
	if n < 0 || r.Remaining() < n {
		return fmt.Errorf("skip %d at %d: %w", n, r.pos, ErrTruncatedBox)
	}
	r.pos += n
	return nil
}
