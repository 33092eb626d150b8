package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCategory(t *testing.T) {
	for _, tc := range []struct {
		contentType string
		want        Category
		ok          bool
	}{
		{"video", CategoryVideo, true},
		{"audio", CategoryAudio, true},
		{"text", CategoryText, true},
		{"image", 0, false},
		{"", 0, false},
	} {
		got, ok := ParseCategory(tc.contentType)
		assert.Equal(t, tc.ok, ok, tc.contentType)
		if ok {
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.contentType, got.String())
		}
	}
}

func TestSegmentReferenceAcceptsFirstCorrection(t *testing.T) {
	ref := NewSegmentReference(40, 5)
	assert.Equal(t, 40.0, ref.StartTime())
	assert.Equal(t, 5.0, ref.TimestampOffset())
	assert.False(t, ref.TimestampOffsetCorrected())

	accepted := ref.SetCorrectedTimestampOffset(-10)
	assert.True(t, accepted)
	assert.Equal(t, -10.0, ref.TimestampOffset())
	assert.True(t, ref.TimestampOffsetCorrected())
}

func TestSegmentReferenceRejectsSecondCorrection(t *testing.T) {
	ref := NewSegmentReference(40, 5)
	assert.True(t, ref.SetCorrectedTimestampOffset(-10))

	accepted := ref.SetCorrectedTimestampOffset(99)
	assert.False(t, accepted, "an already corrected reference must not move again")
	assert.Equal(t, -10.0, ref.TimestampOffset())
}
