package rtlsdr

import "sync"

// FakeDevice is a hardware-free Device used by the acquisition tests,
// in the spirit of the teacher's *_test_shim.go fakes for code
// that otherwise only talks to hardware or a C library. It records the
// calls made against it and lets a test drive ReadAsync by pushing
// buffers from another goroutine.
type FakeDevice struct {
	mu sync.Mutex

	CenterFreq uint32
	GainTenths int32
	SampleRate uint32
	Dithering  bool
	ManualGain bool
	GPIO       map[int]bool

	SetCenterFreqErr error
	SetGainErr       error

	cancel chan struct{}
	cb     ReadCallback
}

// NewFakeDevice returns a FakeDevice ready for use.
func NewFakeDevice() *FakeDevice {
	return &FakeDevice{GPIO: make(map[int]bool)}
}

func (f *FakeDevice) SetDithering(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Dithering = on
	return nil
}

func (f *FakeDevice) SetGainMode(manual bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ManualGain = manual
	return nil
}

func (f *FakeDevice) SetCenterFreq(hz uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetCenterFreqErr != nil {
		return f.SetCenterFreqErr
	}
	f.CenterFreq = hz
	return nil
}

func (f *FakeDevice) GetCenterFreq() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.CenterFreq
}

func (f *FakeDevice) SetGain(tenthsDB int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetGainErr != nil {
		return f.SetGainErr
	}
	f.GainTenths = tenthsDB
	return nil
}

func (f *FakeDevice) SetSampleRate(hz uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SampleRate = hz
	return nil
}

func (f *FakeDevice) SetGPIO(pin int, high bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.GPIO[pin] = high
	return nil
}

func (f *FakeDevice) ResetBuffer() error { return nil }

// ReadAsync blocks until CancelAsync is called, same as the real
// driver. Tests feed it data with Push.
func (f *FakeDevice) ReadAsync(cb ReadCallback, bufNum uint32, bufLen uint32) error {
	f.mu.Lock()
	f.cancel = make(chan struct{})
	cancel := f.cancel
	f.mu.Unlock()

	f.cb = cb
	_ = bufNum
	_ = bufLen
	<-cancel
	return nil
}

// Push delivers one transfer's worth of bytes to the registered
// callback, as if the driver had just completed a USB transfer.
func (f *FakeDevice) Push(buf []byte) {
	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	if cb != nil {
		cb(buf)
	}
}

func (f *FakeDevice) CancelAsync() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		close(f.cancel)
		f.cancel = nil
	}
	return nil
}

func (f *FakeDevice) Close() error { return nil }
