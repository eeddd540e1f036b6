// Package acquisition implements the coherent multichannel acquisition
// core: the circular-buffer rendezvous, the main coordinator loop, and
// the startup/shutdown lifecycle (spec §4.4-§4.6, components C5-C7).
package acquisition

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
	"github.com/petotamas/heimdall-daq-go/internal/control"
	"github.com/petotamas/heimdall-daq-go/internal/iqheader"
	"github.com/petotamas/heimdall-daq-go/internal/noisesource"
)

// NoDummyFrames is NO_DUMMY_FRAMES from spec §3/§4.4: the number of
// dummy frames emitted after any control mutation, to hide the
// reconfiguration transient from downstream DSP.
const NoDummyFrames = 8

// ClipMarker is the full-scale sample value the overdrive detector
// (C7) scans for. The negative-rail marker 0x00 is intentionally not
// scanned (spec §9).
const ClipMarker = 0xFF

// Coordinator is the acquisition main loop (C5). It owns stdout, the
// frame header, and the read index; it is the only writer of both.
type Coordinator struct {
	receivers []*Receiver
	mailbox   *control.Mailbox
	out       io.Writer
	logger    *log.Logger
	noiseCtrl *noisesource.Controller

	mu   sync.Mutex
	cond *sync.Cond

	header       iqheader.Header
	readIdx      uint64
	dummyCounter int

	lastNoiseOn bool
	exiting     atomic.Bool

	// timestampFormat is an optional strftime layout (SPEC_FULL.md
	// logging enrichment) used to render time_stamp as a human-readable
	// string in the per-frame debug log. Empty disables it; the wire
	// header always carries the raw unix-seconds value regardless.
	timestampFormat string
}

// SetTimestampFormat sets the strftime layout used to format
// time_stamp in the per-frame debug log line.
func (c *Coordinator) SetTimestampFormat(layout string) {
	c.timestampFormat = layout
}

// NewCoordinator builds a Coordinator. header must already carry the
// constant fields (sync word, version, hardware identity, channel
// count) from iqheader.NewConstant.
func NewCoordinator(receivers []*Receiver, mailbox *control.Mailbox, out io.Writer, noiseCtrl *noisesource.Controller, header iqheader.Header, logger *log.Logger) *Coordinator {
	c := &Coordinator{
		receivers: receivers,
		mailbox:   mailbox,
		out:       out,
		noiseCtrl: noiseCtrl,
		header:    header,
		logger:    logger,
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Signal wakes the coordinator. Reader callbacks and the control task
// both call this after latching their respective state; per spec §4.2a
// it takes the mutex only for the notify, never for the work itself.
func (c *Coordinator) Signal() {
	c.mu.Lock()
	c.cond.Signal()
	c.mu.Unlock()
}

// RequestExit marks the coordinator for shutdown; it will stop after
// its current wait returns.
func (c *Coordinator) RequestExit() {
	c.exiting.Store(true)
	c.Signal()
}

// Exiting returns the coordinator's shutdown flag, which reports whether
// the coordinator (and therefore the whole acquisition engine) has been
// asked to stop.
func (c *Coordinator) Exiting() *atomic.Bool {
	return &c.exiting
}

// dataReady reports whether every channel's write index has passed
// readIdx — the single invariant (I1) that gates emitting a block.
func (c *Coordinator) dataReady() bool {
	for _, r := range c.receivers {
		if r.Ring.WriteIndex() <= c.readIdx {
			return false
		}
	}
	return true
}

// Run is the coordinator's WAIT/READY/EMIT/APPLY_CONTROL loop (spec
// §4.4, §4.6 state machine). It returns once exiting has been
// requested and observed.
func (c *Coordinator) Run() error {
	for {
		c.mu.Lock()
		for !c.exiting.Load() && !c.mailbox.ExitRequested() && !c.dataReady() {
			c.cond.Wait()
		}
		exiting := c.exiting.Load() || c.mailbox.ExitRequested()
		c.mu.Unlock()

		if exiting {
			// Make sure the reader tasks' own exiting check (which reads
			// this same atomic, not the mailbox) observes the halt too.
			c.exiting.Store(true)
			return nil
		}

		if err := c.emitOneFrame(); err != nil {
			return err
		}
		c.applyControl()
	}
}

// emitOneFrame builds and writes one frame for the current readIdx,
// then advances it. Header emission is fully committed before any
// control mutation is applied (spec §4.4 rationale): a command latched
// during this cycle affects the samples read starting next cycle.
func (c *Coordinator) emitOneFrame() error {
	h := &c.header
	h.TimeStamp = uint64(time.Now().Unix())
	h.DAQBlockIndex = uint32(c.readIdx)

	var overdrive uint32
	for i, r := range c.receivers {
		h.RFCenterFreq = uint64(r.CenterFreq())
		h.IFGains[i] = uint32(r.Gain())

		slot := r.Ring.ReadSlot(c.readIdx)
		for _, b := range slot {
			if b == ClipMarker {
				overdrive |= 1 << uint(i)
				break
			}
		}
	}
	h.ADCOverdriveFlags = overdrive
	h.NoiseSourceState = boolToU32(c.mailbox.NoiseOn())

	dummy := c.mailbox.DummyWindowActive()
	switch {
	case dummy:
		h.FrameType = iqheader.FrameTypeDummy
		h.DataType = iqheader.DataTypeDummy
		h.CPILength = 0
	case c.mailbox.NoiseOn():
		h.FrameType = iqheader.FrameTypeCal
		h.DataType = iqheader.DataTypeReal
		h.CPILength = uint32(c.receivers[0].Ring.SlotBytes() / 2)
	default:
		h.FrameType = iqheader.FrameTypeData
		h.DataType = iqheader.DataTypeReal
		h.CPILength = uint32(c.receivers[0].Ring.SlotBytes() / 2)
	}

	encoded, err := iqheader.Encode(*h)
	if err != nil {
		return err
	}
	if _, err := c.out.Write(encoded); err != nil {
		return err
	}

	if !dummy {
		for _, r := range c.receivers {
			if _, err := c.out.Write(r.Ring.ReadSlot(c.readIdx)); err != nil {
				return err
			}
		}
	}

	if flusher, ok := c.out.(interface{ Flush() error }); ok {
		if err := flusher.Flush(); err != nil {
			return err
		}
	}

	if overdrive != 0 {
		c.logger.Warn("overdrive detected", "flags", overdrive, "block_index", c.readIdx)
	}
	if c.timestampFormat != "" {
		formatted, err := strftime.Format(c.timestampFormat, time.Unix(int64(h.TimeStamp), 0))
		if err != nil {
			c.logger.Debug("frame written", "block_index", c.readIdx, "frame_type", h.FrameType, "timestamp_format_err", err)
		} else {
			c.logger.Debug("frame written", "block_index", c.readIdx, "frame_type", h.FrameType, "time", formatted)
		}
	} else {
		c.logger.Debug("frame written", "block_index", c.readIdx, "frame_type", h.FrameType)
	}

	c.readIdx++
	if dummy {
		c.dummyCounter++
		if c.dummyCounter == NoDummyFrames {
			c.mailbox.ClearDummyWindow()
			c.dummyCounter = 0
		}
	}
	return nil
}

// applyControl services pending control flags in the fixed order spec
// §4.4 step 8 specifies: retune-restart subsumes freq/gain by forcing a
// full reconfigure, so it goes first.
func (c *Coordinator) applyControl() {
	pa := c.mailbox.Drain()

	if pa.ExitRequested {
		c.RequestExit()
	}

	if pa.Retune != nil {
		c.logger.Info("applying retune-restart (deprecated path)")
		for _, r := range c.receivers {
			r.SetCenterFreq(pa.Retune.CenterFreq)
			r.SetGain(pa.Retune.GainTenths)
			r.SetSampleRate(pa.Retune.SampleRate)
			if err := r.Device.CancelAsync(); err != nil {
				c.logger.Error("async cancel failed during retune-restart", "channel", r.Index, "err", err)
			}
		}
	}

	if pa.CenterFreq != nil {
		for _, r := range c.receivers {
			if err := r.Device.SetCenterFreq(*pa.CenterFreq); err != nil {
				c.logger.Error("failed to set center frequency", "channel", r.Index, "err", err)
				continue
			}
			r.SetCenterFreq(r.Device.GetCenterFreq())
			c.logger.Info("center frequency changed", "channel", r.Index, "center_freq", r.CenterFreq())
		}
	}

	if pa.Gains != nil {
		for i, r := range c.receivers {
			if i >= len(pa.Gains) {
				break
			}
			if err := r.Device.SetGain(pa.Gains[i]); err != nil {
				c.logger.Error("failed to set gain", "channel", r.Index, "err", err)
				continue
			}
			r.SetGain(pa.Gains[i])
			c.logger.Info("gain changed", "channel", r.Index, "gain", pa.Gains[i])
		}
	}

	noiseOn := c.mailbox.NoiseOn()
	if noiseOn != c.lastNoiseOn && c.noiseCtrl != nil {
		c.noiseCtrl.Set(noiseOn)
		if noiseOn {
			c.logger.Info("noise source turned on")
		} else {
			c.logger.Info("noise source turned off")
		}
	}
	c.lastNoiseOn = noiseOn
}

func boolToU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
