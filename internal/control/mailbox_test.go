package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrainClearsOneShotActionsButNotNoiseOn(t *testing.T) {
	mb := NewMailbox(nil)
	mb.SubmitCenterFreq(1_000_000)
	mb.SubmitNoiseSource(true)

	pa := mb.Drain()
	require.NotNil(t, pa.CenterFreq)
	assert.Equal(t, uint32(1_000_000), *pa.CenterFreq)
	assert.True(t, mb.NoiseOn())

	pa2 := mb.Drain()
	assert.Nil(t, pa2.CenterFreq)
	assert.True(t, mb.NoiseOn(), "noise state persists across drains until changed")
}

func TestSubmitOpensDummyWindowAndNotifies(t *testing.T) {
	var notified int
	mb := NewMailbox(func() { notified++ })

	assert.False(t, mb.DummyWindowActive())
	mb.SubmitCenterFreq(5)
	assert.True(t, mb.DummyWindowActive())
	assert.Equal(t, 1, notified)

	mb.ClearDummyWindow()
	assert.False(t, mb.DummyWindowActive())
}

func TestRapidFireCommandsCollapseIntoOneWindow(t *testing.T) {
	mb := NewMailbox(nil)
	mb.SubmitCenterFreq(1)
	mb.SubmitGains([]int32{1, 2, 3, 4})
	mb.SubmitNoiseSource(true)

	assert.True(t, mb.DummyWindowActive())
	mb.ClearDummyWindow()
	assert.False(t, mb.DummyWindowActive())
}
