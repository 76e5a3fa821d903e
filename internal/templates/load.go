package templates

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/opencode-ai/reportsmith/internal/render"
	"gopkg.in/yaml.v3"
)

// LoadDefinition reads a single definition from disk.
func LoadDefinition(path string) (*Definition, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("definition path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition %s: %w", path, err)
	}

	def, err := parseDefinition(data)
	if err != nil {
		return nil, fmt.Errorf("parse definition %s: %w", path, err)
	}
	def.Source = path
	return def, nil
}

// LoadDefinitionsFromDir loads every .yaml/.yml definition in dir. A missing
// directory yields no definitions.
func LoadDefinitionsFromDir(dir string) ([]*Definition, error) {
	if strings.TrimSpace(dir) == "" {
		return []*Definition{}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*Definition{}, nil
		}
		return nil, fmt.Errorf("read definitions dir %s: %w", dir, err)
	}

	defs := make([]*Definition, 0)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		def, err := LoadDefinition(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}

	sort.Slice(defs, func(i, j int) bool {
		return defs[i].Title < defs[j].Title
	})

	return defs, nil
}

func parseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, err
	}

	def.Title = strings.TrimSpace(def.Title)
	if def.Title == "" {
		return nil, fmt.Errorf("definition title is required")
	}
	def.Description = strings.TrimSpace(def.Description)
	def.Instructions = strings.TrimSpace(def.Instructions)

	if strings.TrimSpace(def.Body) == "" {
		return nil, fmt.Errorf("definition body is required")
	}
	if _, err := render.Compile(def.Body); err != nil {
		return nil, fmt.Errorf("definition body: %w", err)
	}

	for name := range def.Variables {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("definition variable name is required")
		}
	}

	return &def, nil
}
