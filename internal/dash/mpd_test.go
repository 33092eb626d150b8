package dash

import (
	"encoding/xml"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMPD = `<?xml version="1.0" encoding="UTF-8"?>
<MPD type="dynamic" profiles="urn:mpeg:dash:profile:isoff-live:2011" minimumUpdatePeriod="PT5S">
  <Period id="p0" start="PT10S">
    <AdaptationSet id="1" contentType="video" mimeType="video/mp4">
      <SegmentTemplate timescale="90000" initialization="$RepresentationID$/init.m4s" media="$RepresentationID$/$Time$.m4s">
        <SegmentTimeline>
          <S t="900000" d="180000" r="2"/>
        </SegmentTimeline>
      </SegmentTemplate>
      <Representation id="v1" bandwidth="2500000" codecs="avc1.64001f" width="1280" height="720"/>
      <Representation id="v2" bandwidth="800000" codecs="avc1.64001e" width="640" height="360"/>
    </AdaptationSet>
    <AdaptationSet id="2" contentType="audio" mimeType="audio/mp4">
      <SegmentTemplate timescale="48000" initialization="$RepresentationID$/init.m4s" media="$RepresentationID$/$Time$.m4s">
        <SegmentTimeline>
          <S t="480000" d="96000"/>
        </SegmentTimeline>
      </SegmentTemplate>
      <Representation id="a1" bandwidth="128000" codecs="mp4a.40.2" audioSamplingRate="48000"/>
    </AdaptationSet>
  </Period>
</MPD>`

func TestUnmarshalMPD(t *testing.T) {
	var mpd MPD
	require.NoError(t, xml.Unmarshal([]byte(sampleMPD), &mpd))

	assert.Equal(t, "dynamic", mpd.Type)
	require.Len(t, mpd.Periods, 1)

	period := mpd.Periods[0]
	start, err := period.GetStart()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, start)
	require.Len(t, period.Sets, 2)

	video := period.Sets[0]
	assert.Equal(t, "video", video.ContentType)
	assert.Equal(t, 90000, video.SegmentTemplate.Timescale)
	require.Len(t, video.SegmentTemplate.Timeline.Segments, 1)
	assert.Equal(t, uint64(900000), video.SegmentTemplate.Timeline.Segments[0].T)
	assert.Equal(t, 2, video.SegmentTemplate.Timeline.Segments[0].R)
	require.Len(t, video.Representations, 2)
	assert.Equal(t, 2500000, video.Representations[0].Bandwidth)

	update, err := mpd.GetMinimumUpdatePeriod()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, update)
}

func TestParseDuration(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want time.Duration
	}{
		{"PT8S", 8 * time.Second},
		{"PT1M30S", 90 * time.Second},
		{"PT2H", 2 * time.Hour},
		{"PT0.5S", 500 * time.Millisecond},
		{"PT", 0},
	} {
		got, err := parseDuration(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := parseDuration("P1D")
	assert.Error(t, err, "date components are not supported")
}
