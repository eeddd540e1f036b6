package daqcfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadParsesAllSections(t *testing.T) {
	path := writeTempFile(t, "daq_chain_config.ini", `
[hw]
num_ch=4
name=KerberosSDR
unit_id=1
ioo_type=3
advertise=1

[daq]
daq_buffer_size=131072
sample_rate=2400000
center_freq=433900000
gain=140
en_noise_source_ctr=1
ctr_channel_serial_no=1000
log_level=debug
timestamp_format=%Y-%m-%d %H:%M:%S

[site]
lat=47.4979
lon=19.0402
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.NumCh)
	assert.Equal(t, "KerberosSDR", cfg.Name)
	assert.True(t, cfg.Advertise)
	assert.Equal(t, 131072, cfg.DAQBufferSize)
	assert.Equal(t, 262144, cfg.BlockBytes())
	assert.True(t, cfg.EnNoiseSourceCtr)
	assert.Equal(t, 1000, cfg.CtrChannelSerial)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "%Y-%m-%d %H:%M:%S", cfg.TimestampFormat)
	assert.True(t, cfg.HasSite)
	assert.InDelta(t, 47.4979, cfg.Lat, 1e-9)
}

func TestLoadMissingRequiredFieldsErrors(t *testing.T) {
	path := writeTempFile(t, "daq_chain_config.ini", `
[hw]
name=Nope
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestResolveSerialDefaultsAndOverrides(t *testing.T) {
	assert.Equal(t, "1000", ResolveSerial(nil, 0))
	assert.Equal(t, "1003", ResolveSerial(nil, 3))

	overrides := map[int]string{1: "1042"}
	assert.Equal(t, "1000", ResolveSerial(overrides, 0))
	assert.Equal(t, "1042", ResolveSerial(overrides, 1))
}

func TestLoadSerialMapMissingFileIsNotError(t *testing.T) {
	m, err := LoadSerialMap(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestLoadSerialMapParsesOverrides(t *testing.T) {
	path := writeTempFile(t, "serial_map.yaml", `
channels:
  - index: 0
    serial: "1000"
  - index: 1
    serial: "1042"
`)
	m, err := LoadSerialMap(path)
	require.NoError(t, err)
	assert.Equal(t, "1042", m[1])
}
