package streaming

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	eventSchemaBytes = []byte(`{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": {"enum": ["step", "message", "error", "end"]}
  },
  "allOf": [
    {
      "if": {"properties": {"type": {"const": "step"}}},
      "then": {
        "required": ["step", "total", "description"],
        "properties": {
          "step": {"type": "integer", "minimum": 1},
          "total": {"type": "integer", "minimum": 1},
          "description": {"type": "string"}
        }
      }
    },
    {
      "if": {"properties": {"type": {"const": "message"}}},
      "then": {
        "required": ["content", "step"],
        "properties": {
          "id": {"type": "string"},
          "content": {"type": "string"},
          "step": {"type": "string"},
          "searchResults": {"type": "string"}
        }
      }
    },
    {
      "if": {"properties": {"type": {"const": "error"}}},
      "then": {
        "required": ["message"],
        "properties": {
          "message": {"type": "string"},
          "step": {"type": "string"}
        }
      }
    }
  ]
}`)

	eventSchemaOnce     sync.Once
	eventSchemaCompiled *jsonschema.Schema
	eventSchemaErr      error
)

// EventSchema returns the raw JSON schema of a wire event.
func EventSchema() []byte {
	return append([]byte(nil), eventSchemaBytes...)
}

// ValidateEventDocument checks data against the wire event schema.
func ValidateEventDocument(data []byte) error {
	eventSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("event.json", bytes.NewReader(eventSchemaBytes)); err != nil {
			eventSchemaErr = fmt.Errorf("add event schema: %w", err)
			return
		}
		eventSchemaCompiled, eventSchemaErr = compiler.Compile("event.json")
	})
	if eventSchemaErr != nil {
		return eventSchemaErr
	}
	var payload interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("unmarshal event json: %w", err)
	}
	return eventSchemaCompiled.Validate(payload)
}
