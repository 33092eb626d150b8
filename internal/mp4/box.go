// Package mp4 implements the subset of ISO Base Media File Format (MP4)
// parsing needed to read per-track timescales from initialization segments
// and base media decode times from media segments.
package mp4

import (
	"errors"
	"fmt"
)

// ErrTruncatedBox is returned when a buffer ends before a box's declared
// size. Walks with partial tolerance enabled swallow it for trailing boxes.
var ErrTruncatedBox = errors.New("truncated box")

// BoxType is a 4-byte box type identifier.
type BoxType [4]byte

func (t BoxType) String() string {
	return string(t[:])
}

// newBoxType creates a BoxType from a 4-character string.
func newBoxType(s string) BoxType {
	var t BoxType
	copy(t[:], s)
	return t
}

// Box types walked by the extraction routines.
var (
	TypeMoov = newBoxType("moov")
	TypeTrak = newBoxType("trak")
	TypeTkhd = newBoxType("tkhd")
	TypeMdia = newBoxType("mdia")
	TypeMdhd = newBoxType("mdhd")
	TypeMoof = newBoxType("moof")
	TypeTraf = newBoxType("traf")
	TypeTfhd = newBoxType("tfhd")
	TypeTfdt = newBoxType("tfdt")
)

// Box is what a leaf handler receives: the decoded header of a full box and
// a reader scoped to exactly the box's payload.
type Box struct {
	Type    BoxType
	Size    uint64 // total size including header
	Version uint8
	Flags   uint32
	Reader  *Reader
}

// Handler is invoked for a registered leaf box.
type Handler func(b *Box) error

// Action says what the walker does with a registered box type: descend into
// its children, or decode the full-box header and invoke the handler. Exactly
// one of the two forms applies; Invoke is nil for containers.
type Action struct {
	Descend bool
	Invoke  Handler
}

// Descend marks a box type as a container to recurse into.
func Descend() Action {
	return Action{Descend: true}
}

// Invoke marks a box type as a full-box leaf handled by fn.
func Invoke(fn Handler) Action {
	return Action{Invoke: fn}
}

// Registry maps box types to the action taken when they are encountered.
// The same registry services every nesting level, so sibling boxes the
// caller does not care about are skipped structurally.
type Registry map[BoxType]Action

// Walk traverses the boxes in buf depth-first in buffer order. Registered
// containers are recursed into with the same registry; registered leaves get
// their full-box version/flags decoded and their handler invoked with a
// payload-scoped reader; unregistered boxes are skipped using their declared
// size. A box size of 0 means the box extends to the end of the buffer, a
// size of 1 signals a 64-bit extended size field.
//
// With tolerant set, a trailing box whose declared size exceeds the remaining
// bytes terminates the walk successfully instead of failing; initialization
// segments may be probed before they are fully buffered. Internally
// inconsistent sizes (smaller than the header they declare) are fatal either
// way.
func Walk(buf []byte, regs Registry, tolerant bool) error {
	pos := 0
	for pos < len(buf) {
		if len(buf)-pos < 8 {
			if tolerant {
				return nil
			}
			return fmt.Errorf("box header at %d: %w", pos, ErrTruncatedBox)
		}

		size := uint64(be.Uint32(buf[pos:]))
		var typ BoxType
		copy(typ[:], buf[pos+4:])
		headerSize := 8

		if size == 1 {
			if len(buf)-pos < 16 {
				if tolerant {
					return nil
				}
				return fmt.Errorf("box %s extended size at %d: %w", typ, pos, ErrTruncatedBox)
			}
			size = be.Uint64(buf[pos+8:])
			headerSize = 16
		} else if size == 0 {
			size = uint64(len(buf) - pos)
		}

		if size < uint64(headerSize) {
			return fmt.Errorf("box %s at %d: declared size %d smaller than header", typ, pos, size)
		}
		end := pos + int(size)
		if end < pos || end > len(buf) {
			if !tolerant {
				return fmt.Errorf("box %s at %d: declared size %d exceeds buffer: %w", typ, pos, size, ErrTruncatedBox)
			}
			// A truncated trailing container still gets walked over the
			// bytes that did arrive; a truncated leaf is not invoked.
			if action, ok := regs[typ]; ok && action.Descend {
				if err := Walk(buf[pos+headerSize:], regs, tolerant); err != nil {
					return fmt.Errorf("in container %s: %w", typ, err)
				}
			}
			return nil
		}

		if action, ok := regs[typ]; ok {
			if action.Descend {
				if err := Walk(buf[pos+headerSize:end], regs, tolerant); err != nil {
					return fmt.Errorf("in container %s: %w", typ, err)
				}
			} else {
				payload := buf[pos+headerSize : end]
				if len(payload) < 4 {
					return fmt.Errorf("box %s at %d: full box header: %w", typ, pos, ErrTruncatedBox)
				}
				vf := be.Uint32(payload)
				box := &Box{
					Type:    typ,
					Size:    size,
					Version: uint8(vf >> 24),
					Flags:   vf & 0x00ffffff,
					Reader:  NewReader(payload[4:]),
				}
				if err := action.Invoke(box); err != nil {
					return fmt.Errorf("handling %s at %d: %w", typ, pos, err)
				}
			}
		}

		// Advance past the whole box regardless of how much a handler read.
		pos = end
	}
	return nil
}
