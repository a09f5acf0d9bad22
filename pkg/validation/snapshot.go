package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/hexlane/reconchain/pkg/schema"
)

// snapshotSchemaJSON is the JSON Schema for stored graph snapshots.
// Embedded as a constant to avoid filesystem dependencies. It guards the
// hydration boundary: a preset fetched from a misbehaving backend is
// checked here before it reaches the graph model.
const snapshotSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://reconchain.dev/schemas/graph-snapshot.json",
  "type": "object",
  "required": ["nodes", "edges"],
  "properties": {
    "nodes": {
      "type": "array",
      "items": { "$ref": "#/$defs/node" }
    },
    "edges": {
      "type": "array",
      "items": { "$ref": "#/$defs/edge" }
    },
    "globals": {
      "type": "object",
      "additionalProperties": { "type": "string" }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "node": {
      "type": "object",
      "required": ["id", "tool_slug"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "tool_slug": { "type": "string", "minLength": 1 },
        "config": { "type": "object" },
        "x": { "type": "number" },
        "y": { "type": "number" }
      },
      "additionalProperties": false
    },
    "edge": {
      "type": "object",
      "required": ["from", "to"],
      "properties": {
        "from": { "type": "string", "minLength": 1 },
        "to": { "type": "string", "minLength": 1 }
      },
      "additionalProperties": false
    }
  }
}`

// SnapshotValidator validates stored graph snapshots against the
// embedded JSON Schema. Safe for concurrent use.
type SnapshotValidator struct {
	compiled *jsonschema.Schema
}

// NewSnapshotValidator compiles the snapshot schema.
func NewSnapshotValidator() (*SnapshotValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(snapshotSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal snapshot schema: %w", err)
	}
	if err := c.AddResource("https://reconchain.dev/schemas/graph-snapshot.json", doc); err != nil {
		return nil, fmt.Errorf("add snapshot schema resource: %w", err)
	}
	compiled, err := c.Compile("https://reconchain.dev/schemas/graph-snapshot.json")
	if err != nil {
		return nil, fmt.Errorf("compile snapshot schema: %w", err)
	}

	return &SnapshotValidator{compiled: compiled}, nil
}

// ValidateSnapshot checks a stored snapshot's shape plus the structural
// constraint JSON Schema cannot express: duplicate node IDs.
func (v *SnapshotValidator) ValidateSnapshot(snap *schema.GraphSnapshot) error {
	if snap == nil {
		return schema.NewError(schema.ErrCodeValidation, "graph snapshot is nil")
	}

	doc, err := toJSONValue(snap)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize graph snapshot").WithCause(err)
	}
	if err := v.compiled.Validate(doc); err != nil {
		return toReconError(err)
	}

	seen := make(map[string]struct{}, len(snap.Nodes))
	for _, n := range snap.Nodes {
		if _, exists := seen[n.ID]; exists {
			return schema.NewErrorf(schema.ErrCodeValidation, "duplicate node id %q", n.ID)
		}
		seen[n.ID] = struct{}{}
	}

	return nil
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toReconError converts a jsonschema.ValidationError into a ReconError
// with the leaf violations collected into readable messages.
func toReconError(err error) *schema.ReconError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}
	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("snapshot validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
