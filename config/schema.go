package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// GenerateSchema reflects Config into a JSON Schema document, the same
// way the teacher's config package documents grove.yml: a Reflector
// driven off the struct's own yaml tags, with one field intentionally
// left out (Extensions) since its shape is adapter-defined and can't be
// usefully constrained here.
func GenerateSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: true, // Extensions rides along as unknown top-level keys
		ExpandedStruct:            true,
		FieldNameTag:              "yaml",
	}

	schema := r.Reflect(&Config{})
	schema.Title = "agentctl daemon configuration"
	schema.Description = "Schema for agentctl.yaml / agentctl.toml."
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return json.MarshalIndent(schema, "", "  ")
}
