// Package timing detects and corrects timeline drift between a segment
// reference's expected presentation start and the decode time embedded in
// its fMP4 payload.
package timing

import (
	"errors"
	"fmt"
	"math"

	"driftwatch/internal/logger"
	"driftwatch/internal/models"
	"driftwatch/internal/mp4"
)

// ErrNotConfigured is returned when a corrector operation runs before
// Configure.
var ErrNotConfigured = errors.New("timing: corrector not configured")

// Options configures a Corrector.
type Options struct {
	// CorrectTimestampOffset gates the whole feature. When false every
	// operation is a no-op.
	CorrectTimestampOffset bool
	// MaxTimestampDiscrepancy is the tolerance in seconds. Discrepancies at
	// or below it leave the offset unchanged.
	MaxTimestampDiscrepancy float64
}

// Reference is the narrow view of a segment reference the corrector needs.
// *models.SegmentReference implements it.
type Reference interface {
	StartTime() float64
	TimestampOffset() float64
	TimestampOffsetCorrected() bool
	SetCorrectedTimestampOffset(offset float64) bool
}

// Corrector holds per-category timescale tables and the most recently
// derived corrected offset. It is not safe for concurrent calls on the same
// category; the monitor serializes per stream.
type Corrector struct {
	log           logger.Logger
	opts          *Options
	timescales    map[models.Category]mp4.TimescaleMap
	corrected     map[models.Category]float64
	discrepancies map[models.Category]float64
}

// NewCorrector creates an unconfigured corrector. Configure must be called
// before any other operation.
func NewCorrector(log logger.Logger) *Corrector {
	return &Corrector{
		log:           log,
		timescales:    make(map[models.Category]mp4.TimescaleMap),
		corrected:     make(map[models.Category]float64),
		discrepancies: make(map[models.Category]float64),
	}
}

// Configure stores the feature gate and discrepancy tolerance. Idempotent.
func (c *Corrector) Configure(opts Options) {
	c.opts = &opts
}

// ParseTimescalesFromInitSegment rebuilds the category's track timescale
// table from an initialization segment and discards any cached corrected
// offset: a new init segment restarts the category's correction lifecycle.
// No-op when the feature is disabled.
func (c *Corrector) ParseTimescalesFromInitSegment(category models.Category, init []byte) error {
	if c.opts == nil {
		return ErrNotConfigured
	}
	if !c.opts.CorrectTimestampOffset {
		return nil
	}

	table, err := mp4.ExtractTimescales(init)
	if err != nil {
		return fmt.Errorf("parse timescales for %s: %w", category, err)
	}

	delete(c.corrected, category)
	delete(c.discrepancies, category)
	c.timescales[category] = table
	c.log.Debugf("Parsed %d track timescale(s) from %s init segment", len(table), category)
	return nil
}

// CheckTimestampOffset extracts the base decode time from a media segment,
// compares the decoded presentation start against the reference's expected
// start, and derives a corrected offset. The corrected offset is pushed onto
// the reference and cached for the category even when the discrepancy is
// within tolerance (the corrected offset then equals the original).
//
// It returns true when a discrepancy check was performed, false when the
// feature is disabled or the reference is already corrected. A malformed
// segment surfaces as an error with no state mutated.
func (c *Corrector) CheckTimestampOffset(category models.Category, ref Reference, segment []byte) (bool, error) {
	if c.opts == nil {
		return false, ErrNotConfigured
	}
	if !c.opts.CorrectTimestampOffset || ref.TimestampOffsetCorrected() {
		return false, nil
	}

	decodeTime, err := mp4.ExtractBaseDecodeTime(segment, c.timescales[category])
	if err != nil {
		return false, fmt.Errorf("check timestamp offset for %s: %w", category, err)
	}

	offset := ref.TimestampOffset()
	decodedStart := decodeTime + offset
	discrepancy := decodedStart - ref.StartTime()

	correctedOffset := offset
	if math.Abs(discrepancy) > c.opts.MaxTimestampDiscrepancy {
		correctedOffset = offset - discrepancy
	}

	c.log.Infof("Timestamp check for %s: decoded start %.6f, expected start %.6f, discrepancy %.6f, offset %.6f -> %.6f",
		category, decodedStart, ref.StartTime(), discrepancy, offset, correctedOffset)

	ref.SetCorrectedTimestampOffset(correctedOffset)
	c.corrected[category] = correctedOffset
	c.discrepancies[category] = discrepancy
	return true, nil
}

// CorrectTimestampOffset replays the category's cached corrected offset onto
// a reference that was never individually probed. Silently a no-op when the
// feature is disabled or nothing is cached yet; whether the reference accepts
// the proposal is its own policy.
func (c *Corrector) CorrectTimestampOffset(category models.Category, ref Reference) error {
	if c.opts == nil {
		return ErrNotConfigured
	}
	if !c.opts.CorrectTimestampOffset {
		return nil
	}
	if offset, ok := c.corrected[category]; ok {
		ref.SetCorrectedTimestampOffset(offset)
	}
	return nil
}

// CachedOffset returns the category's cached corrected offset, if any.
func (c *Corrector) CachedOffset(category models.Category) (float64, bool) {
	offset, ok := c.corrected[category]
	return offset, ok
}

// LastDiscrepancy returns the discrepancy measured by the category's most
// recent check, if any.
func (c *Corrector) LastDiscrepancy(category models.Category) (float64, bool) {
	d, ok := c.discrepancies[category]
	return d, ok
}
