package toolloop

import "strings"

// jsonSchemaReader adapts a raw JSON Schema string to the io.Reader the
// jsonschema compiler's AddResource expects.
func jsonSchemaReader(schema string) *strings.Reader {
	return strings.NewReader(schema)
}
