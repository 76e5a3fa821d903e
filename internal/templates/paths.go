package templates

import (
	"os"
	"path/filepath"
)

// DefinitionSearchPaths returns definition directories in precedence order.
func DefinitionSearchPaths(projectDir string) []string {
	paths := make([]string, 0, 2)
	if projectDir != "" {
		paths = append(paths, filepath.Join(projectDir, ".reportsmith", "templates"))
	}

	if home, err := os.UserHomeDir(); err == nil && home != "" {
		paths = append(paths, filepath.Join(home, ".config", "reportsmith", "templates"))
	}

	return paths
}

// LoadDefinitionsFromSearchPaths loads definitions from the search paths and
// the built-ins. The first definition seen for a title wins.
func LoadDefinitionsFromSearchPaths(projectDir string) ([]*Definition, error) {
	return loadDefinitions(DefinitionSearchPaths(projectDir))
}

func loadDefinitions(paths []string) ([]*Definition, error) {
	seen := make(map[string]*Definition)
	order := make([]string, 0)

	add := func(defs []*Definition) {
		for _, def := range defs {
			if _, exists := seen[def.Title]; exists {
				continue
			}
			seen[def.Title] = def
			order = append(order, def.Title)
		}
	}

	for _, path := range paths {
		defs, err := LoadDefinitionsFromDir(path)
		if err != nil {
			return nil, err
		}
		add(defs)
	}

	builtins, err := LoadBuiltinDefinitions()
	if err != nil {
		return nil, err
	}
	add(builtins)

	resolved := make([]*Definition, 0, len(order))
	for _, title := range order {
		resolved = append(resolved, seen[title])
	}

	return resolved, nil
}
