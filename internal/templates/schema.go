package templates

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// DefinitionSchema returns the JSON Schema describing definition files.
func DefinitionSchema() *jsonschema.Schema {
	reflector := &jsonschema.Reflector{DoNotReference: true}
	schema := reflector.Reflect(&Definition{})
	schema.Title = "reportsmith template definition"
	return schema
}

// DefinitionSchemaJSON returns DefinitionSchema as indented JSON.
func DefinitionSchemaJSON() ([]byte, error) {
	return json.MarshalIndent(DefinitionSchema(), "", "  ")
}
