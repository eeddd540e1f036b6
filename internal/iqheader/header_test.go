package iqheader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	h := NewConstant("KerberosSDR", 1, 4, 3, 2400000)
	h.TimeStamp = 1700000000
	h.DAQBlockIndex = 42
	h.FrameType = FrameTypeData
	h.IFGains[0] = 140

	b, err := Encode(h)
	require.NoError(t, err)
	assert.Len(t, b, Size)

	got, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestDecodeShortBuffer(t *testing.T) {
	_, err := Decode(make([]byte, Size-1))
	assert.Error(t, err)
}

// TestRoundTripProperty exercises P1-adjacent behaviour: whatever header
// is encoded decodes back byte-identical, for arbitrary field values.
func TestRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var h Header
		h.SyncWord = SyncWord
		h.HeaderVersion = HeaderVersion
		h.UnitID = uint32(rapid.Uint32().Draw(t, "unitID"))
		h.ActiveAntChs = uint32(rapid.IntRange(1, MaxChannels).Draw(t, "activeAntChs"))
		h.DAQBlockIndex = uint32(rapid.Uint32().Draw(t, "blockIndex"))
		h.FrameType = rapid.SampledFrom([]uint32{FrameTypeData, FrameTypeCal, FrameTypeDummy}).Draw(t, "frameType")
		for i := range h.IFGains {
			h.IFGains[i] = uint32(rapid.Uint32().Draw(t, "gain"))
		}

		b, err := Encode(h)
		require.NoError(t, err)

		got, err := Decode(b)
		require.NoError(t, err)
		assert.Equal(t, h, got)
	})
}
