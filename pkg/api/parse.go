package api

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ReadDefinition reads a pipeline document (JSON or YAML) without validating it.
func ReadDefinition(filename string) (any, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading pipeline file: %w", err)
	}

	raw, err := DecodeDefinition(data)
	if err != nil {
		return nil, fmt.Errorf("parsing pipeline file %s: %w", filename, err)
	}
	return raw, nil
}

// DecodeDefinition decodes a JSON or YAML document into plain Go values.
func DecodeDefinition(data []byte) (any, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// LoadPipeline reads, validates and normalizes a pipeline file.
func LoadPipeline(filename string) (*Pipeline, error) {
	raw, err := ReadDefinition(filename)
	if err != nil {
		return nil, err
	}

	p, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("validating pipeline %s: %w", filename, err)
	}
	p.FilePath = filename

	return p, nil
}
