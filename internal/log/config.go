package log

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config tunes segment rollover and index sizing. Zero-value fields are defaulted by
// NewLog, so an empty Config is always usable.
type Config struct {
	Segment struct {
		MaxStoreBytes uint64 `yaml:"max_store_bytes"`
		MaxIndexBytes uint64 `yaml:"max_index_bytes"`
		InitialOffset uint64 `yaml:"initial_offset"`
	} `yaml:"segment"`
	Index struct {
		WarmBytes uint64 `yaml:"warm_bytes"`
	} `yaml:"index"`
}

// LoadConfig reads and unmarshals a YAML config file. Callers that already hold a Config
// value (tests, embedders) never need to call this.
func LoadConfig(path string) (Config, error) {
	var c Config
	data, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, err
	}
	return c, nil
}
