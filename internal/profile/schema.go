package profile

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// fileSchema rejects malformed profile files before unmarshalling, so a bad
// hot-reload edit never reaches the allocator.
const fileSchema = `{
  "type": "object",
  "properties": {
    "buckets": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "capital": {"type": "number", "exclusiveMinimum": 0},
          "max_positions": {"type": "integer", "minimum": 0},
          "max_position_pct": {"type": "number", "minimum": 0, "maximum": 100},
          "max_risk_pct": {"type": "number", "minimum": 0, "maximum": 100},
          "max_hold": {"type": "string"},
          "reinvest": {"type": "boolean"},
          "min_score": {"type": "number", "minimum": 0, "maximum": 100},
          "whale_only": {"type": "boolean"},
          "etf_only": {"type": "boolean"},
          "allowed_structures": {"type": "array", "items": {"type": "string"}},
          "trail_profile": {"type": "string"}
        },
        "required": ["capital"],
        "additionalProperties": false
      }
    },
    "trail_profiles": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "initial_stop_pct": {"type": "number", "exclusiveMinimum": 0},
          "t1_pct": {"type": "number", "exclusiveMinimum": 0},
          "t2_pct": {"type": "number", "exclusiveMinimum": 0},
          "breakeven_buf_pct": {"type": "number", "minimum": 0},
          "t2_trail_frac": {"type": "number", "minimum": 0, "maximum": 1},
          "runaway_trail_frac": {"type": "number", "minimum": 0, "maximum": 1},
          "runaway_mult": {"type": "number", "exclusiveMinimum": 0}
        },
        "additionalProperties": false
      }
    }
  },
  "required": ["buckets"],
  "additionalProperties": false
}`

var (
	schemaOnce     sync.Once
	schemaCompiled *jsonschema.Schema
	schemaErr      error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("profiles.json", strings.NewReader(fileSchema)); err != nil {
			schemaErr = err
			return
		}
		schemaCompiled, schemaErr = compiler.Compile("profiles.json")
	})
	return schemaCompiled, schemaErr
}

// validateSettings checks viper's parsed view of the file against the schema.
// The round-trip through JSON normalizes YAML types the validator expects.
func validateSettings(settings map[string]any) error {
	schema, err := compiledSchema()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	return schema.Validate(doc)
}
