package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const itemsSchema = `{
  "type": "object",
  "required": ["items"],
  "properties": {
    "items": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "itemCode":    {"type": ["string", "null"]},
          "description": {"type": ["string", "null"]},
          "notes":       {"type": ["string", "null"]},
          "thickness":   {"type": ["number", "null"]},
          "box": {
            "type": ["object", "null"],
            "required": ["left", "top", "right", "bottom"],
            "properties": {
              "left":   {"type": "number"},
              "top":    {"type": "number"},
              "right":  {"type": "number"},
              "bottom": {"type": "number"}
            }
          },
          "fields": {"type": ["object", "null"]}
        }
      }
    }
  }
}`

const rowsSchema = `{
  "type": "object",
  "required": ["results"],
  "properties": {
    "results": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["itemCode", "result"],
        "properties": {
          "itemCode":   {"type": ["string", "integer"]},
          "result":     {"type": "string"},
          "reason":     {"type": ["string", "null"]},
          "suggestion": {"type": ["string", "null"]}
        }
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledItems  *jsonschema.Schema
	compiledRows   *jsonschema.Schema
	schemaBuildErr error
)

func loadSchemas() error {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("items.json", strings.NewReader(itemsSchema)); err != nil {
			schemaBuildErr = fmt.Errorf("add items schema: %w", err)
			return
		}
		if err := compiler.AddResource("rows.json", strings.NewReader(rowsSchema)); err != nil {
			schemaBuildErr = fmt.Errorf("add rows schema: %w", err)
			return
		}
		if compiledItems, schemaBuildErr = compiler.Compile("items.json"); schemaBuildErr != nil {
			return
		}
		compiledRows, schemaBuildErr = compiler.Compile("rows.json")
	})
	return schemaBuildErr
}

func validate(schema func() *jsonschema.Schema, payload []byte) error {
	if err := loadSchemas(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return err
	}
	if err := schema().Validate(v); err != nil {
		return Fatal("llm output does not match schema", err)
	}
	return nil
}
