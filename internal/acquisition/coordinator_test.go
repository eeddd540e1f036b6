package acquisition

import (
	"bytes"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/petotamas/heimdall-daq-go/internal/control"
	"github.com/petotamas/heimdall-daq-go/internal/iqheader"
	"github.com/petotamas/heimdall-daq-go/internal/noisesource"
	"github.com/petotamas/heimdall-daq-go/internal/rtlsdr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBlockBytes = 16

func newTestCoordinator(t *testing.T, numCh int) (*Coordinator, []*Receiver, *control.Mailbox, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	logger := log.New(io.Discard)

	receivers := make([]*Receiver, numCh)
	devices := make(map[int]noisesource.GPIOSetter, numCh)
	for i := 0; i < numCh; i++ {
		dev := rtlsdr.NewFakeDevice()
		receivers[i] = NewReceiver(i, "1000", dev, testBlockBytes, 100_000_000, 200, 2_400_000)
		devices[i] = dev
	}
	noiseCtrl := noisesource.New(devices, 0, numCh, logger)

	header := iqheader.NewConstant("unit", 1, uint32(numCh), 0, 2_400_000)

	var coordinator *Coordinator
	mb := control.NewMailbox(func() {
		if coordinator != nil {
			coordinator.Signal()
		}
	})
	coordinator = NewCoordinator(receivers, mb, out, noiseCtrl, header, logger)
	return coordinator, receivers, mb, out
}

// fillRing pushes n full slots of the given fill byte into every
// receiver's ring directly, bypassing ReadAsync plumbing.
func fillRing(receivers []*Receiver, n int, fill byte) {
	for i := 0; i < n; i++ {
		for _, r := range receivers {
			slot := r.Ring.WriteSlot()
			for j := range slot {
				slot[j] = fill
			}
			r.Ring.Advance()
		}
	}
}

func decodeFrames(t *testing.T, out []byte, numCh int) []iqheader.Header {
	t.Helper()
	var headers []iqheader.Header
	for len(out) > 0 {
		h, err := iqheader.Decode(out)
		require.NoError(t, err)
		headers = append(headers, h)
		out = out[iqheader.Size:]
		if h.FrameType != iqheader.FrameTypeDummy {
			out = out[numCh*testBlockBytes:]
		}
	}
	return headers
}

// P2: sync word and header version are present and correct on every
// frame, regardless of frame type.
func TestEveryFrameCarriesSyncWordAndVersion(t *testing.T) {
	c, receivers, _, out := newTestCoordinator(t, 2)
	fillRing(receivers, 3, 0x10)

	for i := 0; i < 3; i++ {
		require.NoError(t, c.emitOneFrame())
	}

	headers := decodeFrames(t, out.Bytes(), 2)
	require.Len(t, headers, 3)
	for _, h := range headers {
		assert.Equal(t, iqheader.SyncWord, h.SyncWord)
		assert.Equal(t, iqheader.HeaderVersion, h.HeaderVersion)
	}
}

// P3: daq_block_index is strictly monotonic across emitted frames.
func TestBlockIndexStrictlyMonotonic(t *testing.T) {
	c, receivers, _, out := newTestCoordinator(t, 2)
	fillRing(receivers, 5, 0x10)

	for i := 0; i < 5; i++ {
		require.NoError(t, c.emitOneFrame())
	}

	headers := decodeFrames(t, out.Bytes(), 2)
	require.Len(t, headers, 5)
	for i := 1; i < len(headers); i++ {
		assert.Equal(t, headers[i-1].DAQBlockIndex+1, headers[i].DAQBlockIndex)
	}
}

// P4: a command opens exactly NoDummyFrames dummy frames, after which
// frames resume as DATA (or CAL, if noise is on).
func TestControlCommandOpensExactDummyWindow(t *testing.T) {
	c, receivers, mb, out := newTestCoordinator(t, 2)
	fillRing(receivers, NoDummyFrames+2, 0x10)

	mb.SubmitCenterFreq(50_000_000)
	require.True(t, mb.DummyWindowActive())

	for i := 0; i < NoDummyFrames+2; i++ {
		require.NoError(t, c.emitOneFrame())
	}

	headers := decodeFrames(t, out.Bytes(), 2)
	require.Len(t, headers, NoDummyFrames+2)
	for i := 0; i < NoDummyFrames; i++ {
		assert.Equal(t, iqheader.FrameTypeDummy, headers[i].FrameType, "frame %d should be dummy", i)
	}
	for i := NoDummyFrames; i < len(headers); i++ {
		assert.Equal(t, iqheader.FrameTypeData, headers[i].FrameType, "frame %d should resume as data", i)
	}
}

// P5: noise_source_state drives CAL vs DATA selection once the dummy
// window has cleared.
func TestNoiseOnSelectsCalFrameType(t *testing.T) {
	c, receivers, mb, out := newTestCoordinator(t, 2)
	fillRing(receivers, NoDummyFrames+1, 0x10)

	mb.SubmitNoiseSource(true)
	for i := 0; i < NoDummyFrames+1; i++ {
		require.NoError(t, c.emitOneFrame())
	}

	headers := decodeFrames(t, out.Bytes(), 2)
	last := headers[len(headers)-1]
	assert.Equal(t, iqheader.FrameTypeCal, last.FrameType)
	assert.Equal(t, uint32(1), last.NoiseSourceState)
}

// P6: overdrive_flags has bit i set only for channels whose slot
// contains the clipping marker, and the marker 0x00 is never treated
// as clipping.
func TestOverdriveFlagsPerChannel(t *testing.T) {
	c, receivers, _, out := newTestCoordinator(t, 3)

	// Channel 0 clips, channel 1 doesn't, channel 2 is all zero.
	slot0 := receivers[0].Ring.WriteSlot()
	slot0[0] = ClipMarker
	receivers[0].Ring.Advance()

	slot1 := receivers[1].Ring.WriteSlot()
	for j := range slot1 {
		slot1[j] = 0x42
	}
	receivers[1].Ring.Advance()

	slot2 := receivers[2].Ring.WriteSlot()
	for j := range slot2 {
		slot2[j] = 0x00
	}
	receivers[2].Ring.Advance()

	require.NoError(t, c.emitOneFrame())

	headers := decodeFrames(t, out.Bytes(), 3)
	require.Len(t, headers, 1)
	assert.Equal(t, uint32(0b001), headers[0].ADCOverdriveFlags)
}

// P7: if_gains reflects each receiver's last successfully applied
// gain, not a stale or default value.
func TestIFGainsReflectLastAppliedGain(t *testing.T) {
	c, receivers, _, out := newTestCoordinator(t, 2)
	receivers[0].SetGain(77)
	receivers[1].SetGain(-30)
	fillRing(receivers, 1, 0x01)

	require.NoError(t, c.emitOneFrame())

	headers := decodeFrames(t, out.Bytes(), 2)
	assert.Equal(t, uint32(77), headers[0].IFGains[0])
	assert.Equal(t, uint32(uint32(int32(-30))), headers[0].IFGains[1])
}

// Dummy frames carry cpi_length 0 and write no payload bytes.
func TestDummyFramesCarryNoPayload(t *testing.T) {
	c, receivers, mb, out := newTestCoordinator(t, 2)
	fillRing(receivers, 1, 0x10)
	mb.SubmitCenterFreq(1)

	require.NoError(t, c.emitOneFrame())

	assert.Equal(t, iqheader.Size, out.Len())
	h, err := iqheader.Decode(out.Bytes())
	require.NoError(t, err)
	assert.Equal(t, iqheader.FrameTypeDummy, h.FrameType)
	assert.Equal(t, uint32(0), h.CPILength)
}

// Noise-source transitions toggle the control channel's GPIO exactly
// once per edge, and additionally toggle receiver index 7 when the
// channel count exceeds 4.
func TestNoiseSourceTogglesSecondUnitAboveFourChannels(t *testing.T) {
	c, receivers, mb, out := newTestCoordinator(t, 8)
	fillRing(receivers, 1, 0x10)

	mb.SubmitNoiseSource(true)
	require.NoError(t, c.emitOneFrame())
	c.applyControl()

	ctrlDev := receivers[0].Device.(*rtlsdr.FakeDevice)
	auxDev := receivers[7].Device.(*rtlsdr.FakeDevice)
	assert.True(t, ctrlDev.GPIO[0])
	assert.True(t, auxDev.GPIO[0])
	_ = out
}
