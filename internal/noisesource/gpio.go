// Package noisesource owns the noise-source GPIO quirk described in
// spec §4.4 step 8 and §9: toggling the control channel's GPIO, plus —
// for stacks of more than 4 channels — the second physical unit's
// control channel at receiver index 7. Callers never special-case the
// channel count themselves; they just call Set and the controller
// fans it out to whichever receiver indices actually carry the signal.
package noisesource

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/warthog618/go-gpiocdev"
)

// gpioPin is the GPIO line index on the control-channel tuner that
// drives the noise source, matching rtlsdr_set_gpio(dev, level, 0) in
// the original implementation.
const gpioPin = 0

// secondUnitIndex is the hardware workaround from spec §9: a second
// physical KerberosSDR unit's control channel sits at receiver index 7.
const secondUnitIndex = 7

// GPIOSetter is the subset of rtlsdr.Device the controller needs; kept
// narrow so tests (and callers wiring the map up) can fake it without
// pulling in cgo.
type GPIOSetter interface {
	SetGPIO(pin int, high bool) error
}

// Controller toggles the noise-source GPIO across whichever receiver
// indices carry it for the configured channel count.
type Controller struct {
	devices   map[int]GPIOSetter
	ctrlIndex int
	auxIndex  int
	hasAux    bool
	logger    *log.Logger
}

// New builds a Controller. devices maps receiver index to its GPIO
// setter; ctrlIndex is the resolved control channel (spec §6); the
// second-unit quirk is enabled automatically when channelCount > 4.
func New(devices map[int]GPIOSetter, ctrlIndex, channelCount int, logger *log.Logger) *Controller {
	c := &Controller{
		devices:   devices,
		ctrlIndex: ctrlIndex,
		logger:    logger,
	}
	if channelCount > 4 {
		c.auxIndex = secondUnitIndex
		c.hasAux = true
	}
	return c
}

// Set drives the noise source on or off. Failures on individual
// channels are logged and do not stop the remaining channels from being
// set — device-operation failures are non-fatal per spec §7.
func (c *Controller) Set(on bool) {
	c.setOne(c.ctrlIndex, on)
	if c.hasAux {
		c.logger.Warn("noise source also controlled on second unit's control channel", "index", c.auxIndex)
		c.setOne(c.auxIndex, on)
	}
}

func (c *Controller) setOne(index int, on bool) {
	dev, ok := c.devices[index]
	if !ok {
		c.logger.Error("noise source controller: no device at index", "index", index)
		return
	}
	if err := dev.SetGPIO(gpioPin, on); err != nil {
		c.logger.Error("failed to toggle noise source GPIO", "index", index, "on", on, "err", err)
	}
}

// HostGPIOLine optionally drives a host-side GPIO chardev line (e.g. a
// companion relay on the receiver chassis, distinct from the tuner's
// own USB-GPIO) instead of the tuner's GPIO. This is an additive path:
// most deployments only ever use the tuner's own GPIO via Set above.
func HostGPIOLine(chipPath string, line int) (*gpiocdev.Line, error) {
	l, err := gpiocdev.RequestLine(chipPath, line, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("noisesource: request host gpio line %d on %s: %w", line, chipPath, err)
	}
	return l, nil
}
