package dash

import (
	"fmt"
	"sort"

	"driftwatch/internal/models"
)

// ExpandTimeline flattens a SegmentTimeline into explicit (time, duration)
// segments, unrolling repeat counts.
func ExpandTimeline(timeline SegmentTimeline) []models.Segment {
	var segments []models.Segment
	var currentTime uint64 = 0

	for _, s := range timeline.Segments {
		// If t is specified, it's an absolute start time.
		if s.T > 0 {
			currentTime = s.T
		}

		// The r attribute counts additional segments with the same duration,
		// so each S element expands to r+1 segments.
		for i := 0; i <= s.R; i++ {
			segments = append(segments, models.Segment{
				ID:       fmt.Sprintf("%d", currentTime),
				Time:     currentTime,
				Duration: s.D,
			})
			currentTime += s.D
		}
	}

	return segments
}

// LiveEdgeSegment returns the newest segment in the timeline, the one a live
// probe should fetch. The boolean is false for an empty timeline.
func LiveEdgeSegment(timeline SegmentTimeline) (models.Segment, bool) {
	segments := ExpandTimeline(timeline)
	if len(segments) == 0 {
		return models.Segment{}, false
	}
	return segments[len(segments)-1], true
}

// MergeTimelines combines an old timeline with a refreshed one. Segments are
// keyed by start time; the new timeline wins on conflicts so updated
// durations replace stale ones. The result is sorted by start time.
func MergeTimelines(oldTimeline, newTimeline SegmentTimeline) SegmentTimeline {
	byTime := make(map[uint64]S)
	for _, tl := range []SegmentTimeline{oldTimeline, newTimeline} {
		var currentTime uint64 = 0
		for _, s := range tl.Segments {
			if s.T > 0 {
				currentTime = s.T
			}
			for i := 0; i <= s.R; i++ {
				byTime[currentTime] = S{T: currentTime, D: s.D}
				currentTime += s.D
			}
		}
	}

	times := make([]uint64, 0, len(byTime))
	for t := range byTime {
		times = append(times, t)
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	merged := SegmentTimeline{Segments: make([]S, 0, len(times))}
	for _, t := range times {
		merged.Segments = append(merged.Segments, byTime[t])
	}
	return merged
}

// BuildReference places a timeline segment on the presentation timeline. The
// timestamp offset is periodStart − presentationTimeOffset/timescale (the
// value a player would assign to its source buffer), and the expected start
// is that offset plus the segment's declared media time in seconds.
func BuildReference(seg models.Segment, periodStartSeconds float64, presentationTimeOffset uint64, timescale uint64) *models.SegmentReference {
	if timescale == 0 {
		timescale = 1
	}
	offset := periodStartSeconds - float64(presentationTimeOffset)/float64(timescale)
	expectedStart := offset + float64(seg.Time)/float64(timescale)
	return models.NewSegmentReference(expectedStart, offset)
}
