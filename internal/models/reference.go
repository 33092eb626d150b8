package models

// SegmentReference is the timeline-side view of a media segment: where the
// manifest says it should start, and the offset currently placing it on the
// shared presentation timeline. The timing corrector proposes corrected
// offsets through SetCorrectedTimestampOffset; the acceptance policy lives
// here, not in the corrector.
type SegmentReference struct {
	// startTime is the expected presentation start time in seconds.
	startTime float64
	// offset is the currently assigned timeline offset in seconds.
	offset    float64
	corrected bool
}

// NewSegmentReference creates a reference with the given expected start time
// and initial timestamp offset, both in seconds.
func NewSegmentReference(startTime, offset float64) *SegmentReference {
	return &SegmentReference{
		startTime: startTime,
		offset:    offset,
	}
}

// StartTime returns the expected presentation start time in seconds.
func (r *SegmentReference) StartTime() float64 {
	return r.startTime
}

// TimestampOffset returns the currently assigned timeline offset in seconds.
func (r *SegmentReference) TimestampOffset() float64 {
	return r.offset
}

// TimestampOffsetCorrected reports whether a correction has been accepted.
func (r *SegmentReference) TimestampOffsetCorrected() bool {
	return r.corrected
}

// SetCorrectedTimestampOffset proposes a corrected timeline offset. The
// proposal is rejected when the reference is already corrected: a reference
// is placed on the timeline once, and later replays of a cached category
// offset must not move it again. It returns whether the proposal was
// accepted.
func (r *SegmentReference) SetCorrectedTimestampOffset(offset float64) bool {
	if r.corrected {
		return false
	}
	r.offset = offset
	r.corrected = true
	return true
}
