package scriptedecu

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultBroadcastID is the functional UDS request ID used when the config
// doesn't override broadcastId.
const DefaultBroadcastID uint32 = 0x7DF

// DIDTable is the ReadDataByIdentifier document: a flat hex-key -> value map
// for the Default session, plus the optional "programming"/"extended"
// session sub-tables.
type DIDTable struct {
	Default     map[string]string
	Programming map[string]string
	Extended    map[string]string
}

// UnmarshalYAML implements the mixed flat/nested table shape: sibling keys
// are DID entries unless they're literally "programming" or "extended", in
// which case the value is itself a nested DID table.
func (d *DIDTable) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("readDataByIdentifier: expected a mapping, got kind %d", value.Kind)
	}
	d.Default = make(map[string]string)
	for i := 0; i+1 < len(value.Content); i += 2 {
		key := value.Content[i].Value
		val := value.Content[i+1]
		switch strings.ToLower(key) {
		case "programming":
			var m map[string]string
			if err := val.Decode(&m); err != nil {
				return fmt.Errorf("readDataByIdentifier.programming: %w", err)
			}
			d.Programming = m
		case "extended":
			var m map[string]string
			if err := val.Decode(&m); err != nil {
				return fmt.Errorf("readDataByIdentifier.extended: %w", err)
			}
			d.Extended = m
		default:
			var s string
			if err := val.Decode(&s); err != nil {
				return fmt.Errorf("readDataByIdentifier[%q]: %w", key, err)
			}
			d.Default[key] = s
		}
	}
	return nil
}

// PGNEntry is one PGNs table cell: either a bare literal-payload string, or
// a {payload, cycleTime} table for cyclic broadcast entries.
type PGNEntry struct {
	Payload string
	CycleMs uint32
}

// UnmarshalYAML accepts both the bare-string and {payload, cycleTime} forms.
func (p *PGNEntry) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		return value.Decode(&p.Payload)
	}
	var aux struct {
		Payload   string `yaml:"payload"`
		CycleTime uint32 `yaml:"cycleTime"`
	}
	if err := value.Decode(&aux); err != nil {
		return fmt.Errorf("PGN entry: %w", err)
	}
	p.Payload = aux.Payload
	p.CycleMs = aux.CycleTime
	return nil
}

// Config is the on-disk shape of one scripted ECU document, unmarshaled
// from a "*.ecu.yaml" file.
type Config struct {
	Name                    string              `yaml:"name"`
	RequestID               *uint32             `yaml:"requestId"`
	ResponseID              *uint32             `yaml:"responseId"`
	BroadcastID             *uint32             `yaml:"broadcastId"`
	J1939SourceAddress      *int                `yaml:"j1939SourceAddress"`
	DoIPLogicalAddress      *uint32             `yaml:"doipLogicalAddress"`
	CompatGlobalAccumulator bool                `yaml:"compatGlobalAccumulator"`
	IntelHexImage           string              `yaml:"intelHexImage"`
	Raw                     map[string]string   `yaml:"raw"`
	ReadDataByIdentifier    DIDTable            `yaml:"readDataByIdentifier"`
	Seed                    map[string]string   `yaml:"seed"`
	PGNs                    map[string]PGNEntry `yaml:"pgns"`
}

// LoadConfig reads and parses one scripted-ECU document from path.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.BroadcastID == nil {
		id := DefaultBroadcastID
		cfg.BroadcastID = &id
	}
	return cfg, nil
}
