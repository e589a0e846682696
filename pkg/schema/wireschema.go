package schema

import (
	"encoding/json"
	"fmt"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// ToJSONSchemaDoc renders a WireSchema as a plain JSON Schema document
// (draft 2020-12 vocabulary subset), suitable either as the `response_format`
// / `responseSchema` payload a Provider adapter sends natively, or as the
// resource compiled below for self-validation of a freeform-JSON reply.
func ToJSONSchemaDoc(ws *WireSchema) map[string]interface{} {
	props := make(map[string]interface{}, len(ws.Fields))
	required := make([]string, 0, len(ws.Fields))
	for _, f := range ws.Fields {
		props[f.Name] = fieldJSONSchema(f)
		required = append(required, f.Name)
	}
	return map[string]interface{}{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func fieldJSONSchema(f WireField) map[string]interface{} {
	switch f.Type {
	case TypeString:
		return map[string]interface{}{"type": "string"}
	case TypeEnum:
		return map[string]interface{}{"type": "string", "enum": f.Enum}
	case TypeInteger:
		return map[string]interface{}{"type": "integer"}
	case TypeFloat:
		m := map[string]interface{}{"type": "number"}
		if f.Minimum != nil {
			m["minimum"] = *f.Minimum
		}
		if f.Maximum != nil {
			m["maximum"] = *f.Maximum
		}
		return m
	case TypeBoolean:
		return map[string]interface{}{"type": "boolean"}
	case TypeEnumList:
		// No minItems/maxItems here: those bounds apply to the
		// dedupe_preserving_order(xs ∩ allowed_set) result (spec.md §4.1), not
		// to the raw reply this schema checks. A raw reply with duplicates or
		// values outside the allowed set still structurally validates; the
		// Validator enforces the post-dedupe bounds.
		return map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}}
	case TypeArray:
		m := map[string]interface{}{"type": "array"}
		if f.Element != nil {
			m["items"] = fieldJSONSchema(*f.Element)
		}
		if f.MinItems != nil {
			m["minItems"] = *f.MinItems
		}
		if f.MaxItems != nil {
			m["maxItems"] = *f.MaxItems
		}
		return m
	default:
		return map[string]interface{}{}
	}
}

// CompileJSONSchema compiles the WireSchema into a jsonschema.Schema, the
// way goadesign-goa-ai's registry.validatePayloadJSONAgainstSchema compiles
// an ad hoc schema document: marshal to JSON, decode back to `any`, register
// as an in-memory resource, compile. pkg/engine calls this once per Task and
// reuses the result as a defense-in-depth structural check on every row's
// decoded reply before it reaches the typed Validator — catching a
// freeform-JSON-prompted backend's wrong types or missing fields ahead of
// the Validator's per-field coercion.
func CompileJSONSchema(ws *WireSchema) (*jsonschema.Schema, error) {
	doc := ToJSONSchemaDoc(ws)
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal wire schema: %w", err)
	}
	var decoded interface{}
	if err := json.Unmarshal(b, &decoded); err != nil {
		return nil, fmt.Errorf("decode wire schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("wire_schema.json", decoded); err != nil {
		return nil, fmt.Errorf("add wire schema resource: %w", err)
	}
	sch, err := c.Compile("wire_schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile wire schema: %w", err)
	}
	return sch, nil
}
