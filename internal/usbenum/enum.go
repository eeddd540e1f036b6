// Package usbenum resolves RTL-SDR channel serial numbers to device
// indices by walking the udev device tree directly, independent of the
// cgo rtlsdr binding's own (also cgo) serial lookup. This is the C8
// component from SPEC_FULL.md: a pure-Go enumeration path the KerberosSDR
// convention ("1000", "1001", ...) can be resolved against before any
// device handle is opened.
package usbenum

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/jochenvg/go-udev"
)

// rtlVendorID/rtlProductID identify the stock RTL2832U USB bridge the
// vast majority of RTL-SDR dongles (including KerberosSDR units) ship
// with.
const (
	rtlVendorID  = "0bda"
	rtlProductID = "2838"
)

// Enumerator scans udev for candidate RTL-SDR USB nodes.
type Enumerator struct {
	u      *udev.Udev
	logger *log.Logger
}

// NewEnumerator returns an Enumerator bound to the system udev context.
func NewEnumerator(logger *log.Logger) *Enumerator {
	return &Enumerator{u: &udev.Udev{}, logger: logger}
}

// candidate is one RTL2832U-looking USB device found on the bus.
type candidate struct {
	serial  string
	syspath string
}

// scan enumerates USB devices matching the RTL2832U vendor/product pair
// and returns their serial numbers and syspaths.
func (e *Enumerator) scan() ([]candidate, error) {
	enumerate := e.u.NewEnumerate()
	if err := enumerate.AddMatchSubsystem("usb"); err != nil {
		return nil, fmt.Errorf("usbenum: match subsystem: %w", err)
	}
	if err := enumerate.AddMatchProperty("ID_VENDOR_ID", rtlVendorID); err != nil {
		return nil, fmt.Errorf("usbenum: match vendor: %w", err)
	}
	if err := enumerate.AddMatchProperty("ID_MODEL_ID", rtlProductID); err != nil {
		return nil, fmt.Errorf("usbenum: match product: %w", err)
	}

	devices, err := enumerate.Devices()
	if err != nil {
		return nil, fmt.Errorf("usbenum: scan devices: %w", err)
	}

	out := make([]candidate, 0, len(devices))
	for _, d := range devices {
		serial := d.PropertyValue("ID_SERIAL_SHORT")
		if serial == "" {
			continue
		}
		out = append(out, candidate{serial: serial, syspath: d.Syspath()})
	}
	return out, nil
}

// ResolveBySerial returns the bus enumeration order (0-based) of the
// device whose ID_SERIAL_SHORT matches serial. The order is not
// guaranteed to match the rtlsdr driver's own internal index. The
// production resolver uses this order whenever a match is found and
// falls back to rtlsdr.GetIndexBySerial only when udev finds nothing or
// the scan fails (spec §6, SPEC_FULL.md C8).
func (e *Enumerator) ResolveBySerial(serial string) (index int, found bool) {
	candidates, err := e.scan()
	if err != nil {
		e.logger.Error("udev enumeration failed, falling back to driver lookup", "err", err)
		return 0, false
	}
	for i, c := range candidates {
		if c.serial == serial {
			return i, true
		}
	}
	return 0, false
}
