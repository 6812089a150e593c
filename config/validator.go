package config

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// Validator validates a Config against the schema generated by
// GenerateSchema.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the schema returned by GenerateSchema.
func NewValidator() (*Validator, error) {
	schemaData, err := GenerateSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("agentctl.json", strings.NewReader(string(schemaData))); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	schema, err := compiler.Compile("agentctl.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

// Validate checks cfg against the schema. Durations are validated only
// as strings here — ParseDurationOrDefault's fallback-on-malformed
// behavior, not a hard error, is what actually governs a bad "5zz"
// value at runtime; this pass exists to catch unknown-shaped config
// (wrong types, typo'd nesting) early and loudly.
func (v *Validator) Validate(cfg *Config) error {
	// Round-trip through YAML so the instance uses the same yaml-tag key
	// names that GenerateSchema puts in the schema.
	yamlData, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config for validation: %w", err)
	}

	var data interface{}
	if err := yaml.Unmarshal(yamlData, &data); err != nil {
		return fmt.Errorf("failed to unmarshal config for validation: %w", err)
	}

	if err := v.schema.Validate(data); err != nil {
		if validationErr, ok := err.(*jsonschema.ValidationError); ok {
			var messages []string
			collectErrors(validationErr, &messages)
			return fmt.Errorf("configuration validation failed:\n%s", strings.Join(messages, "\n"))
		}
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	return nil
}

// collectErrors flattens a jsonschema.ValidationError tree into
// human-readable lines.
func collectErrors(err *jsonschema.ValidationError, messages *[]string) {
	if err.InstanceLocation != "" {
		*messages = append(*messages, fmt.Sprintf("- %s: %s", err.InstanceLocation, err.Message))
	}
	for _, cause := range err.Causes {
		collectErrors(cause, messages)
	}
}
