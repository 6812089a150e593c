package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSchemaProducesValidJSON(t *testing.T) {
	data, err := GenerateSchema()
	require.NoError(t, err)
	assert.Contains(t, string(data), "agentctl daemon configuration")
}

func TestValidatorAcceptsDefaultedConfig(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	cfg := &Config{}
	cfg.SetDefaults()

	assert.NoError(t, v.Validate(cfg))
}

func TestValidatorAcceptsExtensions(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	cfg := &Config{Extensions: map[string]interface{}{"claude_code": map[string]interface{}{"binary": "/usr/local/bin/claude"}}}
	cfg.SetDefaults()

	assert.NoError(t, v.Validate(cfg))
}
