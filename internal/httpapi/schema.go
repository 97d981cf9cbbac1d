package httpapi

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// remoteCallSchema describes the POST /api/v1/remote_call body. os_type is
// deliberately not an enum so unknown families surface as UNSUPPORTED_OS.
const remoteCallSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "required": ["os_type", "ip", "username"],
  "properties": {
    "os_type":     {"type": "string", "minLength": 1},
    "ip":          {"type": "string", "minLength": 1},
    "username":    {"type": "string", "minLength": 1, "pattern": "^[^\\s'\"\\\\=#]+$"},
    "password":    {"type": ["string", "null"], "pattern": "^[^\\s'\"\\\\=#]*$"},
    "port":        {"type": ["integer", "null"], "minimum": 1, "maximum": 65535},
    "command":     {"type": ["string", "null"]},
    "file_path":   {"type": ["string", "null"]},
    "use_bastion": {"type": ["boolean", "null"]}
  }
}`

var remoteCallSchemaLoader = gojsonschema.NewStringLoader(remoteCallSchema)

// schemaViolation lists every field that failed schema validation.
type schemaViolation struct {
	fields   []string
	messages []string
}

func (v *schemaViolation) Error() string {
	return "request validation failed: " + strings.Join(v.messages, "; ")
}

// validateSchema checks body against the remote call schema.
func validateSchema(body []byte) error {
	result, err := gojsonschema.Validate(remoteCallSchemaLoader, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}

	violation := &schemaViolation{}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if prop, ok := desc.Details()["property"].(string); ok && desc.Type() == "required" {
			field = prop
		}
		violation.fields = append(violation.fields, field)
		violation.messages = append(violation.messages, desc.String())
	}
	return violation
}
