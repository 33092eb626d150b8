package mp4

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalkInvokesHandlersInBufferOrder(t *testing.T) {
	buf := cat(
		box("ftyp", []byte("iso6")),
		box("moov",
			trakBox(tkhdBox(1), mdhdBox(1000)),
			trakBox(tkhdBox(2), mdhdBox(48000)),
		),
	)

	var visited []string
	regs := Registry{
		TypeMoov: Descend(),
		TypeTrak: Descend(),
		TypeMdia: Descend(),
		TypeTkhd: Invoke(func(b *Box) error {
			visited = append(visited, "tkhd")
			return nil
		}),
		TypeMdhd: Invoke(func(b *Box) error {
			visited = append(visited, "mdhd")
			return nil
		}),
	}

	err := Walk(buf, regs, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"tkhd", "mdhd", "tkhd", "mdhd"}, visited)
}

func TestWalkDecodesFullBoxHeader(t *testing.T) {
	buf := fullBox("tfdt", 1, 0x000102, u64(9000))

	var got *Box
	regs := Registry{
		TypeTfdt: Invoke(func(b *Box) error {
			got = b
			return nil
		}),
	}

	require.NoError(t, Walk(buf, regs, false))
	require.NotNil(t, got)
	assert.Equal(t, uint8(1), got.Version)
	assert.Equal(t, uint32(0x000102), got.Flags)
	assert.Equal(t, 8, got.Reader.Remaining())
}

func TestWalkSkipsUnregisteredBoxes(t *testing.T) {
	called := false
	buf := cat(
		box("free", make([]byte, 32)),
		fullBox("tfdt", 0, 0, u32(1)),
		box("mdat", []byte{1, 2, 3}),
	)

	regs := Registry{
		TypeTfdt: Invoke(func(b *Box) error {
			called = true
			return nil
		}),
	}

	require.NoError(t, Walk(buf, regs, false))
	assert.True(t, called)
}

func TestWalkSizeZeroExtendsToEndOfBuffer(t *testing.T) {
	// A terminal box with size 0 claims the rest of the buffer.
	payload := []byte{1, 2, 3, 4, 5, 6}
	buf := cat(u32(0), []byte("mdat"), payload)

	seen := false
	regs := Registry{
		newBoxType("mdat"): Invoke(func(b *Box) error {
			seen = true
			assert.Equal(t, uint64(8+len(payload)), b.Size)
			return nil
		}),
	}

	require.NoError(t, Walk(buf, regs, false))
	assert.True(t, seen)
}

func TestWalkExtendedSize(t *testing.T) {
	content := fullBox("tfdt", 0, 0, u32(77))
	// size field 1 signals a 64-bit size following the type code
	buf := cat(u32(1), []byte("traf"), u64(uint64(16+len(content))), content)

	var decodeTime uint64
	regs := Registry{
		TypeTraf: Descend(),
		TypeTfdt: Invoke(func(b *Box) error {
			v, err := ParseTrackFragmentDecodeTime(b.Reader, b.Version)
			if err != nil {
				return err
			}
			decodeTime = v
			return nil
		}),
	}

	require.NoError(t, Walk(buf, regs, false))
	assert.Equal(t, uint64(77), decodeTime)
}

func TestWalkTruncatedBuffer(t *testing.T) {
	full := cat(
		fullBox("tfdt", 0, 0, u32(500)),
		fullBox("tfdt", 0, 0, u32(900)),
	)
	truncated := full[:len(full)-6]

	var times []uint64
	regs := Registry{
		TypeTfdt: Invoke(func(b *Box) error {
			v, err := ParseTrackFragmentDecodeTime(b.Reader, b.Version)
			if err != nil {
				return err
			}
			times = append(times, v)
			return nil
		}),
	}

	t.Run("tolerant walk stops cleanly", func(t *testing.T) {
		times = nil
		err := Walk(truncated, regs, true)
		require.NoError(t, err)
		assert.Equal(t, []uint64{500}, times)
	})

	t.Run("strict walk fails", func(t *testing.T) {
		times = nil
		err := Walk(truncated, regs, false)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTruncatedBox)
	})
}

func TestWalkInconsistentSizeAlwaysFatal(t *testing.T) {
	// Declared size 4 is smaller than the 8-byte header it includes.
	buf := cat(u32(4), []byte("free"), box("moov"))

	assert.Error(t, Walk(buf, Registry{}, false))
	assert.Error(t, Walk(buf, Registry{}, true))
}

func TestWalkAdvancesPastPartiallyConsumedBox(t *testing.T) {
	buf := cat(
		fullBox("tfhd", 0, 0, u32(7), make([]byte, 20)),
		fullBox("tfdt", 0, 0, u32(123)),
	)

	var order []string
	regs := Registry{
		TypeTfhd: Invoke(func(b *Box) error {
			// Read only the track ID, leaving the rest of the payload.
			_, err := b.Reader.ReadUint32()
			order = append(order, "tfhd")
			return err
		}),
		TypeTfdt: Invoke(func(b *Box) error {
			order = append(order, "tfdt")
			return nil
		}),
	}

	require.NoError(t, Walk(buf, regs, false))
	assert.Equal(t, []string{"tfhd", "tfdt"}, order)
}

func TestWalkHandlerErrorPropagates(t *testing.T) {
	buf := box("moov", fullBox("tfdt", 0, 0, u32(1)))
	regs := Registry{
		TypeMoov: Descend(),
		TypeTfdt: Invoke(func(b *Box) error {
			return assert.AnError
		}),
	}

	err := Walk(buf, regs, false)
	assert.ErrorIs(t, err, assert.AnError)
}
