package daqcfg

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SerialMapEntry overrides the default "1000+i" serial convention
// (spec §6) for one channel.
type SerialMapEntry struct {
	Index  int    `yaml:"index"`
	Serial string `yaml:"serial"`
}

type serialMapFile struct {
	Channels []SerialMapEntry `yaml:"channels"`
}

// LoadSerialMap reads an optional serial_map.yaml. A missing file is
// not an error — callers fall back to the "1000+i" convention.
func LoadSerialMap(path string) (map[int]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("daqcfg: read serial map %s: %w", path, err)
	}

	var doc serialMapFile
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("daqcfg: parse serial map %s: %w", path, err)
	}

	out := make(map[int]string, len(doc.Channels))
	for _, e := range doc.Channels {
		out[e.Index] = e.Serial
	}
	return out, nil
}

// DefaultSerial returns the KerberosSDR convention serial for channel i
// (spec §6): "1000+i".
func DefaultSerial(i int) string {
	return fmt.Sprintf("%d", 1000+i)
}

// ResolveSerial returns the configured override for channel i if
// present in the map, otherwise the default convention.
func ResolveSerial(overrides map[int]string, i int) string {
	if overrides != nil {
		if s, ok := overrides[i]; ok {
			return s
		}
	}
	return DefaultSerial(i)
}
