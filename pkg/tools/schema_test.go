package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hoverParams struct {
	File   string `json:"file" jsonschema:"path to the file"`
	Line   int    `json:"line" jsonschema:"zero-based line number"`
	Column int    `json:"column" jsonschema:"zero-based column"`
}

func TestMustSchemaFor(t *testing.T) {
	schema := MustSchemaFor[hoverParams]()

	require.NotNil(t, schema)
	assert.Equal(t, "object", schema.Type)
	require.Contains(t, schema.Properties, "file")
	assert.Equal(t, "string", schema.Properties["file"].Type)
	assert.Equal(t, "path to the file", schema.Properties["file"].Description)
	require.Contains(t, schema.Properties, "line")
	assert.Equal(t, "integer", schema.Properties["line"].Type)
}
