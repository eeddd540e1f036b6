package acquisition

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/petotamas/heimdall-daq-go/internal/control"
	"github.com/petotamas/heimdall-daq-go/internal/daqcfg"
	"github.com/petotamas/heimdall-daq-go/internal/iqheader"
	"github.com/petotamas/heimdall-daq-go/internal/noisesource"
	"github.com/petotamas/heimdall-daq-go/internal/rtlsdr"
	"github.com/petotamas/heimdall-daq-go/internal/usbenum"
)

// OpenFunc opens a tuner at a resolved driver index. Real startup wires
// this to rtlsdr.Open; tests substitute a fake-device constructor so
// the rest of Start never touches cgo.
type OpenFunc func(index int, logger *log.Logger) (rtlsdr.Device, error)

// ResolveFunc resolves a channel's configured serial number to a
// driver index. Real startup wires this to udevResolve (usbenum first,
// GetIndexBySerial as fallback); tests substitute a fixed mapping so
// Start never touches udev or cgo.
type ResolveFunc func(serial string) (driverIndex int, err error)

// udevResolve is the production ResolveFunc: spec §6's udev-first,
// driver-serial-lookup-fallback resolution order (SPEC_FULL.md C8).
func udevResolve(enumerator *usbenum.Enumerator) ResolveFunc {
	return func(serial string) (int, error) {
		if idx, found := enumerator.ResolveBySerial(serial); found {
			return idx, nil
		}
		return rtlsdr.GetIndexBySerial(serial)
	}
}

// Engine bundles everything Start assembles: the coordinator, the
// control reader, and the per-channel receivers, so a caller can run
// and then shut the whole thing down in one place.
type Engine struct {
	Coordinator *Coordinator
	Control     *control.Reader
	Receivers   []*Receiver
	logger      *log.Logger
}

// Start is the C6 startup sequence from spec §4.5: resolve every
// channel's device index (udev first, driver serial lookup as
// fallback), open it, build its Receiver, wire the mailbox, and hand
// back a ready-to-run Engine. Nothing acquires until the caller calls
// Run, which also creates the reader tasks' shared barrier.
func Start(cfg daqcfg.Config, serialOverrides map[int]string, open OpenFunc, out io.Writer, logger *log.Logger) (*Engine, error) {
	return StartWithResolver(cfg, serialOverrides, udevResolve(usbenum.NewEnumerator(logger)), open, out, logger)
}

// StartWithResolver is Start with the serial-to-driver-index resolver
// injected, so tests can substitute a fixed mapping instead of the
// real udev/cgo lookup chain.
func StartWithResolver(cfg daqcfg.Config, serialOverrides map[int]string, resolve ResolveFunc, open OpenFunc, out io.Writer, logger *log.Logger) (*Engine, error) {
	if cfg.NumCh <= 0 {
		return nil, fmt.Errorf("acquisition: channel count must be positive, got %d", cfg.NumCh)
	}

	receivers := make([]*Receiver, cfg.NumCh)
	devicesByIndex := make(map[int]noisesource.GPIOSetter, cfg.NumCh)

	for i := 0; i < cfg.NumCh; i++ {
		serial := daqcfg.ResolveSerial(serialOverrides, i)

		driverIndex, err := resolve(serial)
		if err != nil {
			return nil, fmt.Errorf("acquisition: resolve channel %d (serial %s): %w", i, serial, err)
		}

		dev, err := open(driverIndex, logger)
		if err != nil {
			return nil, fmt.Errorf("acquisition: open channel %d (driver index %d): %w", i, driverIndex, err)
		}

		r := NewReceiver(i, serial, dev, cfg.BlockBytes(), uint32(cfg.CenterFreq), int32(cfg.Gain), uint32(cfg.SampleRate))
		receivers[i] = r
		devicesByIndex[i] = dev
	}

	ctrlIndex := resolveControlChannelIndex(receivers, cfg.CtrChannelSerial, logger)
	noiseCtrl := noisesource.New(devicesByIndex, ctrlIndex, cfg.NumCh, logger)

	header := iqheader.NewConstant(cfg.Name, uint32(cfg.UnitID), uint32(cfg.NumCh), uint32(cfg.IooType), uint64(cfg.SampleRate))

	// coordinator is wired into the mailbox's onSubmit closure before it
	// exists: the closure captures the variable, not its value, and
	// nothing can submit to the mailbox until Run starts the control
	// task below, by which point coordinator is assigned.
	var coordinator *Coordinator
	mailbox := control.NewMailbox(func() {
		if coordinator != nil {
			coordinator.Signal()
		}
	})
	coordinator = NewCoordinator(receivers, mailbox, out, noiseCtrl, header, logger)
	coordinator.SetTimestampFormat(cfg.TimestampFormat)

	controlReader := control.NewReader(control.FIFOPath, cfg.NumCh, mailbox, logger)

	return &Engine{
		Coordinator: coordinator,
		Control:     controlReader,
		Receivers:   receivers,
		logger:      logger,
	}, nil
}

// resolveControlChannelIndex finds the receiver whose serial matches
// ctrChannelSerial (spec §6's ctr_channel_serial_no). If none matches,
// it falls back to receiver index 0 with a warning, matching the
// original's documented default.
func resolveControlChannelIndex(receivers []*Receiver, ctrChannelSerial int, logger *log.Logger) int {
	want := fmt.Sprintf("%d", ctrChannelSerial)
	for _, r := range receivers {
		if r.Serial == want {
			return r.Index
		}
	}
	logger.Warn("ctr_channel_serial_no not found among resolved channels, defaulting to index 0", "ctr_channel_serial_no", ctrChannelSerial)
	return 0
}

// Run starts every reader task and the control task, then blocks in the
// coordinator's main loop until a graceful halt is requested (spec
// §4.3/§4.6). It returns once the coordinator has stopped and every
// reader task has been signalled to exit.
func (e *Engine) Run() error {
	// The barrier is shared only among the reader tasks themselves, so
	// it can be re-armed by the deprecated retune-restart path (spec
	// §9) without this goroutine re-joining it every time.
	barrier := NewBarrier(len(e.Receivers))
	exiting := e.Coordinator.Exiting()

	for _, r := range e.Receivers {
		go RunReaderTask(r, barrier, exiting, e.Coordinator.Signal, e.logger)
	}

	controlErrCh := make(chan error, 1)
	go func() {
		if err := control.EnsureFIFO(control.FIFOPath); err != nil {
			controlErrCh <- err
			return
		}
		controlErrCh <- e.Control.Run()
	}()

	runErr := e.Coordinator.Run()

	for _, r := range e.Receivers {
		if err := r.Device.CancelAsync(); err != nil {
			e.logger.Error("failed to cancel async read during shutdown", "channel", r.Index, "err", err)
		}
		if err := r.Device.Close(); err != nil {
			e.logger.Error("failed to close device during shutdown", "channel", r.Index, "err", err)
		}
	}

	select {
	case err := <-controlErrCh:
		if err != nil {
			e.logger.Warn("control reader task ended", "err", err)
		}
	default:
	}

	return runErr
}
