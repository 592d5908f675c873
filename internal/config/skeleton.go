package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/alebairos/supertask-pipeline/internal/supertask"
)

// ExampleSkeleton renders an illustrative example JSON document for the
// SupertaskDocument shape, for substitution as {target_json_structure}
// in the Stage-3 prompt (§4.4 step 4). It is rebuilt on every
// call by reflecting the Go struct through invopop/jsonschema rather than
// hand-maintaining a duplicate JSON literal — grounded on the same
// reflector usage as kadirpekel-hector's functiontool/schema.go.
func ExampleSkeleton() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	schema := reflector.Reflect(&supertask.Document{})

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return skeletonFromSchema(raw), nil
}

// skeletonFromSchema walks a (map-shaped) JSON Schema document and
// produces a representative example value: objects become example
// objects with one value per declared property, arrays become a
// one-element example slice, and scalar types become a placeholder
// of the right Go kind.
func skeletonFromSchema(schemaNode map[string]any) map[string]any {
	props, _ := schemaNode["properties"].(map[string]any)
	out := make(map[string]any, len(props))
	for name, raw := range props {
		propSchema, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		out[name] = exampleValue(propSchema)
	}
	return out
}

func exampleValue(propSchema map[string]any) any {
	if enum, ok := propSchema["enum"].([]any); ok && len(enum) > 0 {
		return enum[0]
	}
	switch propSchema["type"] {
	case "object":
		return skeletonFromSchema(propSchema)
	case "array":
		items, _ := propSchema["items"].(map[string]any)
		return []any{exampleValue(items)}
	case "integer":
		return 0
	case "number":
		return 0.0
	case "boolean":
		return false
	default:
		return "string"
	}
}
