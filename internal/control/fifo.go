package control

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"
)

// Command bytes, spec §4.3.
const (
	CmdRetune       byte = 'r'
	CmdCenterFreq   byte = 'c'
	CmdGain         byte = 'g'
	CmdNoiseOn      byte = 'n'
	CmdNoiseOff     byte = 'f'
	CmdGracefulHalt byte = 0x02
)

// FIFOPath is the control surface's fixed location, spec §6.
const FIFOPath = "_data_control/rec_control_fifo"

// Reader runs the blocking control-pipe task (C4): open the named
// FIFO, parse one command at a time, and submit it to a Mailbox. A
// failed open is fatal per spec §4.3 — the caller is expected to treat
// a non-nil return from Run's first open as a fatal-startup error.
type Reader struct {
	path         string
	channelCount int
	mailbox      *Mailbox
	logger       *log.Logger
}

// NewReader constructs a Reader for the given FIFO path.
func NewReader(path string, channelCount int, mailbox *Mailbox, logger *log.Logger) *Reader {
	return &Reader{path: path, channelCount: channelCount, mailbox: mailbox, logger: logger}
}

// EnsureFIFO creates the named pipe if it does not already exist.
func EnsureFIFO(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("control: stat %s: %w", path, err)
	}
	if err := unix.Mkfifo(path, 0o600); err != nil {
		return fmt.Errorf("control: mkfifo %s: %w", path, err)
	}
	return nil
}

// Run opens the FIFO and blocks, dispatching commands to the mailbox.
// When the writer closes its end the FIFO is reopened; other read
// errors are logged and reading continues. Run returns nil after a
// graceful-halt command or once an exit has been latched, and an error
// when the FIFO cannot be opened or reopened. On open failure
// it latches an exit request itself, matching the original's "failed
// open is fatal, signal main and return" behaviour, and returns the
// error for the caller to log.
func (r *Reader) Run() error {
	f, err := os.OpenFile(r.path, os.O_RDONLY, 0)
	if err != nil {
		r.mailbox.SubmitExit()
		return fmt.Errorf("control: open fifo %s: %w", r.path, err)
	}
	defer f.Close()

	var cmd [1]byte
	for {
		if _, err := io.ReadFull(f, cmd[:]); err != nil {
			if err == io.EOF {
				// Writer closed its end; a fresh one may open it again.
				// Re-open rather than exit, matching a long-lived FIFO.
				f.Close()
				f, err = os.OpenFile(r.path, os.O_RDONLY, 0)
				if err != nil {
					r.mailbox.SubmitExit()
					return fmt.Errorf("control: reopen fifo %s: %w", r.path, err)
				}
				continue
			}
			r.logger.Error("control fifo read error", "err", err)
			continue
		}

		if r.mailbox.ExitRequested() {
			return nil
		}

		r.dispatch(f, cmd[0])

		if cmd[0] == CmdGracefulHalt {
			return nil
		}
	}
}

func (r *Reader) dispatch(f io.Reader, b byte) {
	switch b {
	case CmdRetune:
		var freq, rate uint32
		var gain int32
		if err := binary.Read(f, binary.NativeEndian, &freq); err != nil {
			r.logger.Error("control: short read on retune center_freq", "err", err)
			return
		}
		if err := binary.Read(f, binary.NativeEndian, &rate); err != nil {
			r.logger.Error("control: short read on retune sample_rate", "err", err)
			return
		}
		if err := binary.Read(f, binary.NativeEndian, &gain); err != nil {
			r.logger.Error("control: short read on retune gain", "err", err)
			return
		}
		r.logger.Info("retune requested (deprecated path)", "center_freq", freq, "sample_rate", rate, "gain", gain)
		r.mailbox.SubmitRetune(RetuneRequest{CenterFreq: freq, SampleRate: rate, GainTenths: gain})

	case CmdCenterFreq:
		var freq uint32
		if err := binary.Read(f, binary.NativeEndian, &freq); err != nil {
			r.logger.Error("control: short read on center_freq", "err", err)
			return
		}
		r.logger.Info("center frequency change requested", "center_freq", freq)
		r.mailbox.SubmitCenterFreq(freq)

	case CmdGain:
		gains := make([]int32, r.channelCount)
		if err := binary.Read(f, binary.NativeEndian, gains); err != nil {
			r.logger.Error("control: short read on gain array", "err", err)
			return
		}
		r.logger.Info("gain change requested", "gains", gains)
		r.mailbox.SubmitGains(gains)

	case CmdNoiseOn:
		r.logger.Info("noise source on requested")
		r.mailbox.SubmitNoiseSource(true)

	case CmdNoiseOff:
		r.logger.Info("noise source off requested")
		r.mailbox.SubmitNoiseSource(false)

	case CmdGracefulHalt:
		r.logger.Info("graceful halt requested")
		r.mailbox.SubmitExit()

	default:
		// Unknown command bytes are silently ignored, spec §4.3/§7.
		r.logger.Debug("ignoring unknown control command byte", "byte", b)
	}
}
