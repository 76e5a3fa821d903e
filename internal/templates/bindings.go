package templates

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// LoadBindings reads variable bindings from a .json, .yaml/.yml or .toml file.
func LoadBindings(path string) (map[string]any, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("bindings path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bindings %s: %w", path, err)
	}

	vars := map[string]any{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		err = dec.Decode(&vars)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &vars)
	case ".toml":
		_, err = toml.Decode(string(data), &vars)
	default:
		return nil, fmt.Errorf("unsupported bindings format %q (want .json, .yaml, .yml or .toml)", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse bindings %s: %w", path, err)
	}

	return vars, nil
}

// ParseVarFlags parses key=value pairs. Each entry may hold several pairs
// separated by commas. Values are kept as strings; comparisons in templates
// are numeric whenever both sides parse as numbers.
func ParseVarFlags(flags []string) (map[string]any, error) {
	vars := make(map[string]any)
	for _, flag := range flags {
		for _, pair := range strings.Split(flag, ",") {
			pair = strings.TrimSpace(pair)
			if pair == "" {
				continue
			}
			key, value, ok := strings.Cut(pair, "=")
			key = strings.TrimSpace(key)
			if !ok || key == "" {
				return nil, fmt.Errorf("invalid variable %q (expected key=value)", pair)
			}
			vars[key] = strings.TrimSpace(value)
		}
	}
	return vars, nil
}

// MergeBindings layers the given maps left to right; later maps win.
func MergeBindings(layers ...map[string]any) map[string]any {
	merged := make(map[string]any)
	for _, layer := range layers {
		for key, value := range layer {
			merged[key] = value
		}
	}
	return merged
}
