// Package iqheader implements the fixed-layout binary frame header that
// precedes every block the acquisition coordinator writes to stdout.
package iqheader

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// MaxChannels bounds the if_gains array so the header has a constant
// size regardless of the configured channel count (a dual KerberosSDR
// stack tops out at 8).
const MaxChannels = 8

// SyncWord marks the start of every frame on the wire.
const SyncWord uint32 = 0x2A0C1EED

// HeaderVersion is the constant version tag carried in every frame.
const HeaderVersion uint32 = 7

// Frame type values.
const (
	FrameTypeData  uint32 = 0
	FrameTypeCal   uint32 = 1
	FrameTypeDummy uint32 = 2
)

// Data type values.
const (
	DataTypeDummy uint32 = 0
	DataTypeReal  uint32 = 1
	DataTypeIQ    uint32 = 2
)

// SampleBitDepth is fixed by the RTL2832U ADC.
const SampleBitDepth uint32 = 8

// Header is the wire struct. Field order matches SPEC_FULL.md §3 and is
// never reordered; Encode/Decode rely on it.
type Header struct {
	SyncWord           uint32
	HeaderVersion      uint32
	HardwareID         [16]byte
	UnitID             uint32
	ActiveAntChs       uint32
	IooType            uint32
	RFCenterFreq       uint64
	ADCSamplingFreq    uint64
	SamplingFreq       uint64
	CPILength          uint32
	TimeStamp          uint64
	DAQBlockIndex      uint32
	CPIIndex           uint32
	ExtIntegrationCntr uint32
	FrameType          uint32
	DataType           uint32
	SampleBitDepth     uint32
	ADCOverdriveFlags  uint32
	IFGains            [MaxChannels]uint32
	DelaySyncFlag      uint32
	IQSyncFlag         uint32
	SyncState          uint32
	NoiseSourceState   uint32
}

// Size is the fixed on-wire size of a Header, in bytes.
var Size = binary.Size(Header{})

// NewConstant builds a header with the fields that never change after
// startup (sync word, version, hardware identity, channel count)
// populated. Per-cycle fields are left zero; the coordinator fills them
// in each loop iteration.
func NewConstant(hardwareID string, unitID, activeAntChs, iooType uint32, adcRate uint64) Header {
	var h Header
	h.SyncWord = SyncWord
	h.HeaderVersion = HeaderVersion
	copy(h.HardwareID[:], hardwareID)
	h.UnitID = unitID
	h.ActiveAntChs = activeAntChs
	h.IooType = iooType
	h.ADCSamplingFreq = adcRate
	h.SamplingFreq = adcRate
	h.SampleBitDepth = SampleBitDepth
	h.DataType = DataTypeIQ // startup value; overwritten every cycle, see §9
	return h
}

// Encode serialises h in little-endian wire order.
func Encode(h Header) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(Size)
	if err := binary.Write(&buf, binary.LittleEndian, h); err != nil {
		return nil, fmt.Errorf("iqheader: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses a Header from its wire representation.
func Decode(b []byte) (Header, error) {
	var h Header
	if len(b) < Size {
		return h, fmt.Errorf("iqheader: decode: need %d bytes, got %d", Size, len(b))
	}
	r := bytes.NewReader(b[:Size])
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return h, fmt.Errorf("iqheader: decode: %w", err)
	}
	return h, nil
}
