package index

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk form of a set of index definitions:
//
//	indexes:
//	  - bucket: orders
//	    prefix: order
//	    field: total
//	    type: float
type Config struct {
	Indexes []DefinitionConfig `yaml:"indexes"`
}

// DefinitionConfig describes one index definition
type DefinitionConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Field  string `yaml:"field"`
	Type   string `yaml:"type"`
}

// LoadDefinitions parses index definitions from YAML. Unknown fields are
// rejected. An empty document yields no definitions.
func LoadDefinitions(r io.Reader) ([]*Definition, error) {
	var cfg Config
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	defs := make([]*Definition, 0, len(cfg.Indexes))
	for i, ic := range cfg.Indexes {
		def, err := NewDefinition(ic.Bucket, ic.Prefix, ic.Field, ic.Type)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i+1, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// LoadDefinitionsFile reads index definitions from a YAML file
func LoadDefinitionsFile(path string) ([]*Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read index file: %w", err)
	}
	defer f.Close()

	return LoadDefinitions(f)
}

// MarshalDefinitions renders definitions in the format LoadDefinitions reads
func MarshalDefinitions(defs []*Definition) ([]byte, error) {
	cfg := Config{Indexes: make([]DefinitionConfig, 0, len(defs))}
	for _, d := range defs {
		cfg.Indexes = append(cfg.Indexes, DefinitionConfig{
			Bucket: d.bucket,
			Prefix: d.prefix,
			Field:  d.field,
			Type:   d.fieldType.String(),
		})
	}
	return yaml.Marshal(cfg)
}
