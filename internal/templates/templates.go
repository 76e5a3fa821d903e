// Package templates manages stored report templates and the YAML definition
// files they can be imported from.
package templates

// Definition is a template as written in a YAML definition file.
type Definition struct {
	Title        string         `yaml:"title" json:"title" jsonschema:"description=Unique human-readable name"`
	Description  string         `yaml:"description,omitempty" json:"description,omitempty"`
	Body         string         `yaml:"body" json:"body" jsonschema:"description=Template text with {{placeholders}} and {% if %} / {% for %} blocks"`
	Instructions string         `yaml:"instructions,omitempty" json:"instructions,omitempty" jsonschema:"description=Free-text notes for whoever fills the report"`
	Variables    map[string]any `yaml:"variables,omitempty" json:"variables,omitempty" jsonschema:"description=Sample bindings used when a render does not supply a value"`
	Tags         []string       `yaml:"tags,omitempty" json:"tags,omitempty"`
	Source       string         `yaml:"-" json:"-"` // file path or "builtin"
}
