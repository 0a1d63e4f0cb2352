package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// formats maps a settings file extension to the decoder for its contents.
var formats = map[string]struct {
	name   string
	decode func([]byte, any) error
}{
	".yaml": {"yaml", yaml.Unmarshal},
	".yml":  {"yaml", yaml.Unmarshal},
	".json": {"json", json.Unmarshal},
}

// FromFile reads a .yaml, .yml or .json settings file. Environment
// references ($NAME or ${NAME}) are substituted into the raw text first, so
// secrets such as nats.url can stay out of the file.
func FromFile(path string) (Config, error) {
	ext := strings.ToLower(filepath.Ext(path))
	format, ok := formats[ext]
	if !ok {
		return Config{}, fmt.Errorf("unsupported config file extension: %s", ext)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return decode(format.name, format.decode, []byte(os.ExpandEnv(string(raw))))
}

// FromYAML decodes a YAML document. No environment substitution is done.
func FromYAML(data []byte) (Config, error) {
	return decode("yaml", yaml.Unmarshal, data)
}

// FromJSON decodes a JSON object. No environment substitution is done.
func FromJSON(data []byte) (Config, error) {
	return decode("json", json.Unmarshal, data)
}

func decode(name string, unmarshal func([]byte, any) error, data []byte) (Config, error) {
	var m map[string]any
	if err := unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", name, err)
	}
	return New(m), nil
}
