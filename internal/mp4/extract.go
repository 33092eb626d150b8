package mp4

import (
	"errors"
	"fmt"
)

// TimescaleMap maps a track ID to its timescale in ticks per second.
type TimescaleMap map[uint32]uint32

// Timescale returns the timescale for a track, falling back to 1 (ticks
// treated as seconds) for unknown tracks. Missing entries degrade, they
// never fail.
func (m TimescaleMap) Timescale(trackID uint32) uint32 {
	if ts, ok := m[trackID]; ok && ts != 0 {
		return ts
	}
	return 1
}

// ExtractTimescales harvests (track ID → timescale) pairs from an
// initialization segment buffer by walking moov→trak→tkhd and
// moov→trak→mdia→mdhd. Track IDs and timescales are collected in box order
// and paired positionally: each trak contains exactly one tkhd and one mdhd
// in its subtree, so the nth of each belongs to the nth track.
//
// The walk is tolerant: a truncated buffer yields whatever complete track
// entries preceded the truncation.
func ExtractTimescales(init []byte) (TimescaleMap, error) {
	var trackIDs []uint32
	var timescales []uint32

	regs := Registry{
		TypeMoov: Descend(),
		TypeTrak: Descend(),
		TypeMdia: Descend(),
		TypeTkhd: Invoke(func(b *Box) error {
			id, err := ParseTrackHeader(b.Reader, b.Version)
			if err != nil {
				return err
			}
			trackIDs = append(trackIDs, id)
			return nil
		}),
		TypeMdhd: Invoke(func(b *Box) error {
			ts, err := ParseMediaHeader(b.Reader, b.Version)
			if err != nil {
				return err
			}
			timescales = append(timescales, ts)
			return nil
		}),
	}

	if err := Walk(init, regs, true); err != nil {
		return nil, fmt.Errorf("init segment: %w", err)
	}

	table := make(TimescaleMap, len(trackIDs))
	for i, id := range trackIDs {
		if i >= len(timescales) {
			break
		}
		table[id] = timescales[i]
	}
	return table, nil
}

// ExtractBaseDecodeTime reads the base media decode time of a media segment
// buffer, walking moof→traf→tfhd (track ID) and moof→traf→tfdt (raw ticks),
// and converts it to seconds using the track's timescale from the supplied
// table. The walk is strict: a media segment must be fully well formed.
func ExtractBaseDecodeTime(segment []byte, timescales TimescaleMap) (float64, error) {
	var trackID uint32
	var decodeTime uint64
	sawHeader := false
	sawDecodeTime := false

	regs := Registry{
		TypeMoof: Descend(),
		TypeTraf: Descend(),
		TypeTfhd: Invoke(func(b *Box) error {
			h, err := ParseTrackFragmentHeader(b.Reader, b.Flags)
			if err != nil {
				return err
			}
			if !sawHeader {
				trackID = h.TrackID
				sawHeader = true
			}
			return nil
		}),
		TypeTfdt: Invoke(func(b *Box) error {
			t, err := ParseTrackFragmentDecodeTime(b.Reader, b.Version)
			if err != nil {
				return err
			}
			if !sawDecodeTime {
				decodeTime = t
				sawDecodeTime = true
			}
			return nil
		}),
	}

	if err := Walk(segment, regs, false); err != nil {
		return 0, fmt.Errorf("media segment: %w", err)
	}
	if !sawDecodeTime {
		return 0, errors.New("media segment: no track fragment decode time found")
	}

	return float64(decodeTime) / float64(timescales.Timescale(trackID)), nil
}
