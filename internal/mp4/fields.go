package mp4

// Flag bits of the track fragment header (tfhd) box that gate optional
// fields, per ISO/IEC 14496-12 8.8.7.
const (
	tfhdBaseDataOffsetPresent        = 0x000001
	tfhdSampleDescriptionIndexGiven  = 0x000002
	tfhdDefaultSampleDurationPresent = 0x000008
	tfhdDefaultSampleSizePresent     = 0x000010
	tfhdDefaultSampleFlagsPresent    = 0x000020
)

// TrackFragmentHeader holds the decoded fields of a tfhd box. Optional
// fields are zero when their flag bit is absent.
type TrackFragmentHeader struct {
	TrackID                uint32
	BaseDataOffset         uint64
	SampleDescriptionIndex uint32
	DefaultSampleDuration  uint32
	DefaultSampleSize      uint32
	DefaultSampleFlags     uint32
}

// ParseTrackFragmentHeader decodes a tfhd payload. Every optional field
// present per the flags word is consumed so the cursor lands past the box's
// fixed layout even when a caller only needs the track ID.
func ParseTrackFragmentHeader(r *Reader, flags uint32) (*TrackFragmentHeader, error) {
	h := &TrackFragmentHeader{}

	var err error
	if h.TrackID, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	if flags&tfhdBaseDataOffsetPresent != 0 {
		if h.BaseDataOffset, err = r.ReadUint64(); err != nil {
			return nil, err
		}
	}
	if flags&tfhdSampleDescriptionIndexGiven != 0 {
		if h.SampleDescriptionIndex, err = r.ReadUint32(); err != nil {
			return nil, err
		}
	}
	if flags&tfhdDefaultSampleDurationPresent != 0 {
		if h.DefaultSampleDuration, err = r.ReadUint32(); err != nil {
			return nil, err
		}
	}
	if flags&tfhdDefaultSampleSizePresent != 0 {
		if h.DefaultSampleSize, err = r.ReadUint32(); err != nil {
			return nil, err
		}
	}
	if flags&tfhdDefaultSampleFlagsPresent != 0 {
		if h.DefaultSampleFlags, err = r.ReadUint32(); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// ParseTrackFragmentDecodeTime decodes a tfdt payload and returns the base
// media decode time in track timescale ticks. Version 1 carries a 64-bit
// value, version 0 a 32-bit one.
func ParseTrackFragmentDecodeTime(r *Reader, version uint8) (uint64, error) {
	if version == 1 {
		return r.ReadUint64()
	}
	v, err := r.ReadUint32()
	return uint64(v), err
}

// ParseTrackHeader decodes a tkhd payload and returns the track ID. The
// creation and modification times preceding it are 64-bit in version 1 and
// 32-bit in version 0; the track ID itself is always 32-bit.
func ParseTrackHeader(r *Reader, version uint8) (uint32, error) {
	skip := 8 // creation + modification, 32-bit each
	if version == 1 {
		skip = 16
	}
	if err := r.Skip(skip); err != nil {
		return 0, err
	}
	return r.ReadUint32()
}

// ParseMediaHeader decodes an mdhd payload and returns the timescale. As in
// tkhd, the creation and modification times before it widen to 64-bit in
// version 1; the timescale is always 32-bit.
func ParseMediaHeader(r *Reader, version uint8) (uint32, error) {
	skip := 8
	if version == 1 {
		skip = 16
	}
	if err := r.Skip(skip); err != nil {
		return 0, err
	}
	return r.ReadUint32()
}
