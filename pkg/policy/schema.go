package policy

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/meshward/policyguard/pkg/policyerr"
)

// documentSchema is the JSON Schema for the policy document shape
// described in spec.md §6. It is evaluated against the generic
// JSON-decoded form of a policy document before the document is
// unmarshaled into typed Go structs, catching shape errors (wrong types,
// unknown enum members) with a single, uniform error path.
const documentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["id", "version", "name"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "version": {"type": "string", "minLength": 1},
    "name": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "combining_algorithm": {
      "enum": ["first_applicable", "deny_overrides", "allow_overrides", "unanimous_allow", "unanimous_deny"]
    },
    "default_effect": {"enum": ["allow", "deny"]},
    "metadata": {"type": "object"},
    "rules": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "effect"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "description": {"type": "string"},
          "effect": {"enum": ["allow", "deny"]},
          "priority": {"type": "integer"},
          "conditions": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["field", "operator"],
              "properties": {
                "field": {"type": "string", "minLength": 1},
                "operator": {
                  "enum": [
                    "equals", "not_equals", "contains", "not_contains",
                    "starts_with", "ends_with", "matches", "in", "not_in",
                    "greater_than", "less_than", "greater_than_or_equal",
                    "less_than_or_equal", "exists", "not_exists"
                  ]
                }
              }
            }
          }
        }
      }
    }
  }
}`

var compiledDocumentSchema *jsonschema.Schema

func init() {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("policy-document.json", bytes.NewReader([]byte(documentSchema))); err != nil {
		panic(fmt.Sprintf("policy: invalid embedded schema: %v", err))
	}
	compiledDocumentSchema = compiler.MustCompile("policy-document.json")
}

// ValidateDocumentShape validates raw JSON bytes against the policy
// document JSON Schema, independent of and prior to the Go-level
// invariant checks in Policy.Validate.
func ValidateDocumentShape(raw []byte) error {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: %v", policyerr.ErrParse, err)
	}
	if err := compiledDocumentSchema.Validate(doc); err != nil {
		return fmt.Errorf("%w: document shape: %v", policyerr.ErrValidation, err)
	}
	return nil
}
