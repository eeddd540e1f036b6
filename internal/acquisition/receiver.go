package acquisition

import (
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/petotamas/heimdall-daq-go/internal/ringbuffer"
	"github.com/petotamas/heimdall-daq-go/internal/rtlsdr"
)

// Receiver is the per-channel record from spec §3: a device handle, its
// logical index, mutable tuner parameters, and its own ring buffer. The
// record exclusively owns its ring for its lifetime; the coordinator
// only ever borrows read-only slices from it.
//
// CenterFreq/Gain/SampleRate are mutated by the coordinator's
// APPLY_CONTROL step and by this receiver's own reader task during
// CONFIGURING. Spec §5 notes these phases are mutually exclusive by
// construction, but the fields are still atomics rather than plain ints
// so a concurrent header build (which reads CenterFreq/Gain every
// cycle) never races with either writer.
type Receiver struct {
	Index  int
	Serial string
	Device rtlsdr.Device
	Ring   *ringbuffer.Ring

	centerFreq atomic.Uint32
	gain       atomic.Int32
	sampleRate atomic.Uint32
}

// NewReceiver builds a Receiver with its initial tuner parameters.
func NewReceiver(index int, serial string, dev rtlsdr.Device, blockBytes int, centerFreq uint32, gain int32, sampleRate uint32) *Receiver {
	r := &Receiver{
		Index:  index,
		Serial: serial,
		Device: dev,
		Ring:   ringbuffer.New(blockBytes),
	}
	r.centerFreq.Store(centerFreq)
	r.gain.Store(gain)
	r.sampleRate.Store(sampleRate)
	return r
}

func (r *Receiver) CenterFreq() uint32  { return r.centerFreq.Load() }
func (r *Receiver) Gain() int32         { return r.gain.Load() }
func (r *Receiver) SampleRate() uint32  { return r.sampleRate.Load() }
func (r *Receiver) SetCenterFreq(v uint32) { r.centerFreq.Store(v) }
func (r *Receiver) SetGain(v int32)        { r.gain.Store(v) }
func (r *Receiver) SetSampleRate(v uint32) { r.sampleRate.Store(v) }

// asyncBufNumber is ASYNC_BUF_NUMBER from spec §4.2: in-flight USB
// buffers the driver keeps posted.
const asyncBufNumber = 12

// configure applies the one-time-per-CONFIGURING-phase device setup
// spec §4.2 describes: disable dithering, force manual gain, push the
// current center_freq/gain/sample_rate, force the noise-source GPIO
// low, and reset the device's internal buffers. Every call here is
// logged-and-continue on failure (spec §7 device-operation non-fatal).
func (r *Receiver) configure(logger *log.Logger) {
	if err := r.Device.SetDithering(false); err != nil {
		logger.Error("failed to disable dithering", "channel", r.Index, "err", err)
	}
	if err := r.Device.SetGainMode(true); err != nil {
		logger.Error("failed to disable AGC", "channel", r.Index, "err", err)
	}
	if err := r.Device.SetCenterFreq(r.CenterFreq()); err != nil {
		logger.Error("failed to set center frequency", "channel", r.Index, "err", err)
	} else {
		r.SetCenterFreq(r.Device.GetCenterFreq())
	}
	if err := r.Device.SetGain(r.Gain()); err != nil {
		logger.Error("failed to set gain", "channel", r.Index, "err", err)
	}
	if err := r.Device.SetSampleRate(r.SampleRate()); err != nil {
		logger.Error("failed to set sample rate", "channel", r.Index, "err", err)
	}
	if err := r.Device.SetGPIO(0, false); err != nil {
		logger.Error("failed to force noise-source GPIO low", "channel", r.Index, "err", err)
	}
	if err := r.Device.ResetBuffer(); err != nil {
		logger.Error("failed to reset device buffer", "channel", r.Index, "err", err)
	}
	logger.Info("device initialized", "channel", r.Index, "serial", r.Serial)
}

// RunReaderTask is the per-tuner task from spec §4.2/C3: configure,
// wait on the startup barrier, then block in the driver's async read
// until it returns. If the outer loop observes !exiting after the
// async read returns, it re-enters CONFIGURING and arms again — the
// deprecated-but-live retune-restart mechanism (spec §9).
func RunReaderTask(r *Receiver, barrier *Barrier, exiting *atomic.Bool, onSignal func(), logger *log.Logger) {
	for !exiting.Load() {
		r.configure(logger)
		barrier.Wait()

		err := r.Device.ReadAsync(func(buf []byte) {
			copy(r.Ring.WriteSlot(), buf)
			r.Ring.Advance()
			onSignal()
		}, asyncBufNumber, uint32(r.Ring.SlotBytes()))

		if err != nil {
			logger.Error("async read returned with error", "channel", r.Index, "err", err)
		}
	}
}
