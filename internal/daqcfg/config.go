// Package daqcfg parses daq_chain_config.ini (spec §6) and the optional
// serial_map.yaml / [site] supplements (SPEC_FULL.md §3/§6). No INI
// library exists anywhere in the example corpus this project is
// grounded on, so the [hw]/[daq]/[site] sections are parsed by hand with
// bufio+strings; the optional serial map uses yaml.v3, matching the
// teacher's own config-file convention in deviceid.go.
package daqcfg

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config mirrors the fields read from daq_chain_config.ini.
type Config struct {
	// [hw]
	NumCh     int
	Name      string
	UnitID    int
	IooType   int
	Advertise bool // SPEC_FULL.md C9: optional DNS-SD advertisement

	// [daq]
	DAQBufferSize     int // IQ samples per channel per block
	SampleRate        int
	CenterFreq        int
	Gain              int // tenths of dB
	EnNoiseSourceCtr  bool
	CtrChannelSerial  int
	LogLevel          string
	TimestampFormat   string // SPEC_FULL.md logging enrichment; strftime layout, empty disables

	// [site] — optional, SPEC_FULL.md §3
	HasSite bool
	Lat     float64
	Lon     float64
}

// BlockBytes is 2 * DAQBufferSize: two interleaved 8-bit values (I, Q)
// per sample, per spec §3.
func (c Config) BlockBytes() int { return 2 * c.DAQBufferSize }

// Load reads and parses the INI file at path.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("daqcfg: open %s: %w", path, err)
	}
	defer f.Close()

	cfg := Config{LogLevel: "info"}
	section := ""

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.ToLower(strings.TrimSpace(line[1 : len(line)-1]))
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return Config{}, fmt.Errorf("daqcfg: %s:%d: expected key=value, got %q", path, lineNo, line)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		if err := cfg.set(section, key, value); err != nil {
			return Config{}, fmt.Errorf("daqcfg: %s:%d: %w", path, lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return Config{}, fmt.Errorf("daqcfg: read %s: %w", path, err)
	}

	if cfg.NumCh <= 0 {
		return Config{}, fmt.Errorf("daqcfg: [hw] num_ch must be set and positive")
	}
	if cfg.DAQBufferSize <= 0 {
		return Config{}, fmt.Errorf("daqcfg: [daq] daq_buffer_size must be set and positive")
	}
	return cfg, nil
}

func (c *Config) set(section, key, value string) error {
	switch section {
	case "hw":
		switch key {
		case "num_ch":
			return c.setInt(&c.NumCh, value)
		case "name":
			c.Name = value
		case "unit_id":
			return c.setInt(&c.UnitID, value)
		case "ioo_type":
			return c.setInt(&c.IooType, value)
		case "advertise":
			return c.setBool(&c.Advertise, value)
		}
	case "daq":
		switch key {
		case "daq_buffer_size":
			return c.setInt(&c.DAQBufferSize, value)
		case "sample_rate":
			return c.setInt(&c.SampleRate, value)
		case "center_freq":
			return c.setInt(&c.CenterFreq, value)
		case "gain":
			return c.setInt(&c.Gain, value)
		case "en_noise_source_ctr":
			return c.setBool(&c.EnNoiseSourceCtr, value)
		case "ctr_channel_serial_no":
			return c.setInt(&c.CtrChannelSerial, value)
		case "log_level":
			c.LogLevel = value
		case "timestamp_format":
			c.TimestampFormat = value
		}
	case "site":
		c.HasSite = true
		switch key {
		case "lat":
			return c.setFloat(&c.Lat, value)
		case "lon":
			return c.setFloat(&c.Lon, value)
		}
	}
	// Unknown section/key is ignored, mirroring the original ini.h
	// handler's tolerant behaviour for anything it doesn't recognise.
	return nil
}

func (c *Config) setInt(dst *int, value string) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer %q: %w", value, err)
	}
	*dst = v
	return nil
}

func (c *Config) setBool(dst *bool, value string) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid boolean (0|1) %q: %w", value, err)
	}
	*dst = v != 0
	return nil
}

func (c *Config) setFloat(dst *float64, value string) error {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid float %q: %w", value, err)
	}
	*dst = v
	return nil
}
