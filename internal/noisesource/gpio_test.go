package noisesource

import (
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
)

type fakeSetter struct {
	pins map[int]bool
}

func newFakeSetter() *fakeSetter { return &fakeSetter{pins: make(map[int]bool)} }

func (f *fakeSetter) SetGPIO(pin int, high bool) error {
	f.pins[pin] = high
	return nil
}

func TestSetTogglesOnlyControlChannelWhenFourOrFewer(t *testing.T) {
	ctrl := newFakeSetter()
	devices := map[int]GPIOSetter{0: ctrl}

	c := New(devices, 0, 4, log.New(io.Discard))
	c.Set(true)

	assert.True(t, ctrl.pins[gpioPin])
}

func TestSetAlsoTogglesSecondUnitWhenMoreThanFourChannels(t *testing.T) {
	ctrl := newFakeSetter()
	aux := newFakeSetter()
	devices := map[int]GPIOSetter{0: ctrl, secondUnitIndex: aux}

	c := New(devices, 0, 8, log.New(io.Discard))
	c.Set(true)

	assert.True(t, ctrl.pins[gpioPin])
	assert.True(t, aux.pins[gpioPin])
}
