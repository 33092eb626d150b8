package mp4

import "encoding/binary"

// Test-side box builders. Boxes are assembled bottom-up: leaf payloads are
// wrapped in full-box headers, containers concatenate their children.

func u16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func u32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func u64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// box wraps a payload in a plain box header.
func box(typ string, payload ...[]byte) []byte {
	content := cat(payload...)
	return cat(u32(uint32(8+len(content))), []byte(typ), content)
}

// fullBox wraps a payload in a box header plus version and flags.
func fullBox(typ string, version uint8, flags uint32, payload ...[]byte) []byte {
	content := cat(payload...)
	vf := uint32(version)<<24 | flags&0x00ffffff
	return cat(u32(uint32(12+len(content))), []byte(typ), u32(vf), content)
}

// tkhdBox builds a version 0 track header carrying the given track ID.
func tkhdBox(trackID uint32) []byte {
	return fullBox("tkhd", 0, 0,
		u32(0), u32(0), // creation, modification
		u32(trackID),
		u32(0), // reserved
		u32(0)) // duration
}

// tkhdBoxV1 builds a version 1 track header with 64-bit times.
func tkhdBoxV1(trackID uint32) []byte {
	return fullBox("tkhd", 1, 0,
		u64(0), u64(0), // creation, modification
		u32(trackID),
		u32(0),  // reserved
		u64(0)) // duration
}

// mdhdBox builds a version 0 media header carrying the given timescale.
func mdhdBox(timescale uint32) []byte {
	return fullBox("mdhd", 0, 0,
		u32(0), u32(0), // creation, modification
		u32(timescale),
		u32(0), // duration
		u16(0x55c4), // language
		u16(0))
}

// mdhdBoxV1 builds a version 1 media header with 64-bit times.
func mdhdBoxV1(timescale uint32) []byte {
	return fullBox("mdhd", 1, 0,
		u64(0), u64(0),
		u32(timescale),
		u64(0),
		u16(0x55c4),
		u16(0))
}

// trakBox builds a trak container with a tkhd and an mdia/mdhd subtree.
func trakBox(tkhd, mdhd []byte) []byte {
	return box("trak", tkhd, box("mdia", mdhd))
}

// initSegment builds a moov with the given trak children, preceded by an
// ftyp the walker must skip.
func initSegment(traks ...[]byte) []byte {
	ftyp := box("ftyp", []byte("iso6"), u32(0))
	return cat(ftyp, box("moov", cat(traks...)))
}

// tfhdBox builds a track fragment header with no optional fields.
func tfhdBox(trackID uint32) []byte {
	return fullBox("tfhd", 0, 0, u32(trackID))
}

// tfdtBox builds a track fragment decode time box; version picks the width.
func tfdtBox(version uint8, decodeTime uint64) []byte {
	if version == 1 {
		return fullBox("tfdt", 1, 0, u64(decodeTime))
	}
	return fullBox("tfdt", 0, 0, u32(uint32(decodeTime)))
}

// mediaSegment builds a moof/traf tree with the given tfhd and tfdt, plus a
// trailing mdat the walker must skip.
func mediaSegment(tfhd, tfdt []byte) []byte {
	moof := box("moof",
		fullBox("mfhd", 0, 0, u32(1)),
		box("traf", tfhd, tfdt),
	)
	return cat(moof, box("mdat", []byte{0xde, 0xad}))
}
