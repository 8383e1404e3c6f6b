package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Supported file formats.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// FromFile loads configuration from a file. The format is taken from the
// extension: .yaml, .yml or .json, in any case.
func FromFile(path string) (Config, error) {
	format, err := formatOf(path)
	if err != nil {
		return Config{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return FromBytes(data, format)
}

// FromBytes parses data in the given format.
func FromBytes(data []byte, format string) (Config, error) {
	switch format {
	case FormatYAML:
		return FromYAML(data)
	case FormatJSON:
		return FromJSON(data)
	default:
		return Config{}, fmt.Errorf("unsupported config format: %s", format)
	}
}

// FromYAML parses YAML data into a Config.
func FromYAML(data []byte) (Config, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	return New(m), nil
}

// FromJSON parses JSON data into a Config.
func FromJSON(data []byte) (Config, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse json: %w", err)
	}
	return New(m), nil
}

func formatOf(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported config file extension: %s", ext)
	}
}
