package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const descriptorSchemaJSON = `{
  "type": "object",
  "required": ["jobId", "statusUrl", "downloadLink"],
  "properties": {
    "jobId": {"type": "string", "minLength": 1},
    "statusUrl": {"type": "string"},
    "downloadLink": {"type": "string"}
  }
}`

// The state enum is left open; unknown states are classified by the poller.
const statusSchemaJSON = `{
  "type": "object",
  "required": ["state"],
  "properties": {
    "state": {"type": "string"},
    "error": {"type": "string"},
    "result": {
      "type": ["object", "null"],
      "required": ["processingTimeMs", "departmentCount"],
      "properties": {
        "processingTimeMs": {"type": "integer", "minimum": 0},
        "departmentCount": {"type": "integer", "minimum": 0}
      }
    }
  }
}`

var (
	descriptorSchema = mustCompileSchema("descriptor.json", descriptorSchemaJSON)
	statusSchema     = mustCompileSchema("status.json", statusSchemaJSON)
)

func mustCompileSchema(name, src string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(src)); err != nil {
		panic(fmt.Sprintf("add schema %s: %v", name, err))
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("compile schema %s: %v", name, err))
	}
	return schema
}

// decodeValidated checks raw against schema, then decodes it into dst.
func decodeValidated(schema *jsonschema.Schema, raw []byte, dst any) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("response does not match schema: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}
