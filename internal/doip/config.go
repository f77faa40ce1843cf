package doip

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default gateway parameters used for any field doipserver.yaml omits.
const (
	DefaultAnnounceNum        = 3
	DefaultAnnounceIntervalMs = 500
	DefaultTCPInactivityMs    = 50000
	defaultVIN                = "00000000000000000"
)

// Config is the doipserver.yaml document: the gateway's own announcement
// identity and connection parameters.
type Config struct {
	VIN                    string  `yaml:"vin"`
	LogicalAddress         uint16  `yaml:"logicalAddress"`
	EID                    *uint64 `yaml:"eid"`
	GID                    uint64  `yaml:"gid"`
	FurtherAction          byte    `yaml:"furtherAction"`
	AnnounceNum            int     `yaml:"announceNum"`
	AnnounceIntervalMs     int     `yaml:"announceIntervalMs"`
	TCPGeneralInactivityMs int     `yaml:"tcpGeneralInactivityMs"`
}

// LoadConfig reads doipserver.yaml and fills in the defaults for any field
// the document omits.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read doip config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse doip config %s: %w", path, err)
	}
	if cfg.VIN == "" {
		cfg.VIN = defaultVIN
	}
	if len(cfg.VIN) > 17 {
		cfg.VIN = cfg.VIN[:17]
	}
	if cfg.AnnounceNum == 0 {
		cfg.AnnounceNum = DefaultAnnounceNum
	}
	if cfg.AnnounceIntervalMs == 0 {
		cfg.AnnounceIntervalMs = DefaultAnnounceIntervalMs
	}
	if cfg.TCPGeneralInactivityMs == 0 {
		cfg.TCPGeneralInactivityMs = DefaultTCPInactivityMs
	}
	return cfg, nil
}

// vinBytes renders the (possibly short) configured VIN into the fixed
// 17-byte announcement field, space-padded on the right.
func (c Config) vinBytes() [17]byte {
	var out [17]byte
	for i := range out {
		out[i] = ' '
	}
	copy(out[:], c.VIN)
	return out
}

// eidBytes renders the configured EID, or derives a default from the
// gateway's logical address when EID is omitted; there is no burned-in
// entity ID to fall back to.
func (c Config) eidBytes() [6]byte {
	var out [6]byte
	if c.EID != nil {
		put48(out[:], *c.EID)
		return out
	}
	out[4] = byte(c.LogicalAddress >> 8)
	out[5] = byte(c.LogicalAddress)
	return out
}

func (c Config) gidBytes() [6]byte {
	var out [6]byte
	put48(out[:], c.GID)
	return out
}

func put48(b []byte, v uint64) {
	b[0] = byte(v >> 40)
	b[1] = byte(v >> 32)
	b[2] = byte(v >> 24)
	b[3] = byte(v >> 16)
	b[4] = byte(v >> 8)
	b[5] = byte(v)
}
