package tools

import "github.com/google/jsonschema-go/jsonschema"

// MustSchemaFor derives the JSON schema for T from its struct tags. Schema
// derivation failures are programming errors, hence the panic.
func MustSchemaFor[T any]() *jsonschema.Schema {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		panic(err)
	}
	return schema
}
