// Package rtlsdr binds the RTL2832U/R820T USB tuner driver (librtlsdr)
// that spec.md treats as an external collaborator: open-by-index,
// parameter setters, async read, and cancellation. The acquisition
// engine never talks to libusb directly — it only ever sees the Device
// interface below, so tests can swap in a fake (see device_fake.go)
// without touching real hardware.
package rtlsdr

// #cgo pkg-config: librtlsdr
// #include <stdlib.h>
// #include <rtl-sdr.h>
//
// extern void goReadCallback(unsigned char *buf, uint32_t len, void *ctx);
import "C"

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/charmbracelet/log"
)

// ReadCallback is invoked once per completed USB transfer with a
// pointer-stable copy of the transfer payload. It must not block.
type ReadCallback func(buf []byte)

// Device is everything spec §4.2/§4.4 needs from a tuner. A *Handle
// implements it against real hardware; tests use a fake.
type Device interface {
	SetDithering(on bool) error
	SetGainMode(manual bool) error
	SetCenterFreq(hz uint32) error
	GetCenterFreq() uint32
	SetGain(tenthsDB int32) error
	SetSampleRate(hz uint32) error
	SetGPIO(pin int, high bool) error
	ResetBuffer() error
	ReadAsync(cb ReadCallback, bufNum uint32, bufLen uint32) error
	CancelAsync() error
	Close() error
}

// Handle wraps one open rtlsdr_dev_t.
type Handle struct {
	dev    *C.rtlsdr_dev_t
	index  int
	logger *log.Logger
}

// GetIndexBySerial is the driver's own serial lookup, used as a
// fallback when usbenum's udev-based enumeration (C8) finds nothing.
func GetIndexBySerial(serial string) (int, error) {
	cs := C.CString(serial)
	defer C.free(unsafe.Pointer(cs))

	idx := C.rtlsdr_get_index_by_serial(cs)
	if idx < 0 {
		return 0, fmt.Errorf("rtlsdr: no device with serial %q (code %d)", serial, int(idx))
	}
	return int(idx), nil
}

// Open opens the device at the given driver index.
func Open(index int, logger *log.Logger) (*Handle, error) {
	var dev *C.rtlsdr_dev_t
	if rc := C.rtlsdr_open(&dev, C.uint32_t(index)); rc != 0 {
		return nil, fmt.Errorf("rtlsdr: open index %d: rc=%d", index, int(rc))
	}
	return &Handle{dev: dev, index: index, logger: logger}, nil
}

func (h *Handle) SetDithering(on bool) error {
	v := C.int(0)
	if on {
		v = 1
	}
	if rc := C.rtlsdr_set_dithering(h.dev, v); rc != 0 {
		return fmt.Errorf("rtlsdr: set_dithering: rc=%d", int(rc))
	}
	return nil
}

func (h *Handle) SetGainMode(manual bool) error {
	v := C.int(0)
	if manual {
		v = 1
	}
	if rc := C.rtlsdr_set_tuner_gain_mode(h.dev, v); rc != 0 {
		return fmt.Errorf("rtlsdr: set_tuner_gain_mode: rc=%d", int(rc))
	}
	return nil
}

func (h *Handle) SetCenterFreq(hz uint32) error {
	if rc := C.rtlsdr_set_center_freq(h.dev, C.uint32_t(hz)); rc != 0 {
		return fmt.Errorf("rtlsdr: set_center_freq: rc=%d", int(rc))
	}
	return nil
}

func (h *Handle) GetCenterFreq() uint32 {
	return uint32(C.rtlsdr_get_center_freq(h.dev))
}

func (h *Handle) SetGain(tenthsDB int32) error {
	if rc := C.rtlsdr_set_tuner_gain(h.dev, C.int(tenthsDB)); rc != 0 {
		return fmt.Errorf("rtlsdr: set_tuner_gain: rc=%d", int(rc))
	}
	return nil
}

func (h *Handle) SetSampleRate(hz uint32) error {
	if rc := C.rtlsdr_set_sample_rate(h.dev, C.uint32_t(hz)); rc != 0 {
		return fmt.Errorf("rtlsdr: set_sample_rate: rc=%d", int(rc))
	}
	return nil
}

func (h *Handle) SetGPIO(pin int, high bool) error {
	v := C.int(0)
	if high {
		v = 1
	}
	if rc := C.rtlsdr_set_gpio(h.dev, v, C.int(pin)); rc != 0 {
		return fmt.Errorf("rtlsdr: set_gpio(%d): rc=%d", pin, int(rc))
	}
	return nil
}

func (h *Handle) ResetBuffer() error {
	if rc := C.rtlsdr_reset_buffer(h.dev); rc != 0 {
		return fmt.Errorf("rtlsdr: reset_buffer: rc=%d", int(rc))
	}
	return nil
}

// callbackRegistry lets the cgo trampoline (which can only carry a
// void* context, not a Go closure) find the right Go callback for a
// given Handle. Keyed by the Handle's C device pointer (h.dev, which is
// also the context pointer the trampoline receives), set only for the
// duration of one ReadAsync call. Every channel's reader task arms its
// ReadAsync in the same scheduling window (the startup barrier
// releases all of them together), so registry access must be
// mutex-guarded rather than a bare map.
var (
	callbackRegistryMu sync.Mutex
	callbackRegistry   = map[*C.rtlsdr_dev_t]ReadCallback{}
)

//export goReadCallback
func goReadCallback(buf *C.uchar, length C.uint32_t, ctx unsafe.Pointer) {
	dev := (*C.rtlsdr_dev_t)(ctx)
	callbackRegistryMu.Lock()
	cb, ok := callbackRegistry[dev]
	callbackRegistryMu.Unlock()
	if !ok {
		return
	}
	b := C.GoBytes(unsafe.Pointer(buf), C.int(length))
	cb(b)
}

// ReadAsync blocks until CancelAsync is called from another goroutine,
// invoking cb once per completed transfer. This mirrors
// rtlsdr_read_async's documented lifetime exactly (spec §4.2).
func (h *Handle) ReadAsync(cb ReadCallback, bufNum uint32, bufLen uint32) error {
	callbackRegistryMu.Lock()
	callbackRegistry[h.dev] = cb
	callbackRegistryMu.Unlock()
	defer func() {
		callbackRegistryMu.Lock()
		delete(callbackRegistry, h.dev)
		callbackRegistryMu.Unlock()
	}()

	rc := C.rtlsdr_read_async(
		h.dev,
		(C.rtlsdr_read_async_cb_t)(unsafe.Pointer(C.goReadCallback)),
		unsafe.Pointer(h.dev),
		C.uint32_t(bufNum),
		C.uint32_t(bufLen),
	)
	if rc != 0 {
		return fmt.Errorf("rtlsdr: read_async: rc=%d", int(rc))
	}
	return nil
}

func (h *Handle) CancelAsync() error {
	if rc := C.rtlsdr_cancel_async(h.dev); rc != 0 {
		return fmt.Errorf("rtlsdr: cancel_async: rc=%d", int(rc))
	}
	return nil
}

func (h *Handle) Close() error {
	if rc := C.rtlsdr_close(h.dev); rc != 0 {
		return fmt.Errorf("rtlsdr: close: rc=%d", int(rc))
	}
	return nil
}
