package schema

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Compile turns a declarative schema mapping node — as decoded by yaml.v3
// from an enrichment config's `schema:` key — into a Descriptor and its
// WireSchema. A *yaml.Node is used instead of a plain map so that field
// declaration order survives (spec.md §4.1 requires deterministic WireSchema
// field ordering and stable error messages; a Go map would scramble it).
// Any backward-compatibility normalization (e.g. `number` -> `float`) is
// reported back as a warning string rather than failing compilation.
func Compile(node *yaml.Node) (*Descriptor, *WireSchema, []string, error) {
	if node == nil {
		return nil, nil, nil, fmt.Errorf("schema is required")
	}
	// A document node wraps the actual mapping; unwrap it like yaml.v3's own
	// Decode does internally.
	for node.Kind == yaml.DocumentNode && len(node.Content) == 1 {
		node = node.Content[0]
	}
	if node.Kind != yaml.MappingNode {
		return nil, nil, nil, fmt.Errorf("schema must be a mapping of field name to type descriptor")
	}

	var warnings []string
	desc := &Descriptor{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		field, warn, err := compileField(name, node.Content[i+1])
		if err != nil {
			return nil, nil, nil, fmt.Errorf("field %q: %w", name, err)
		}
		warnings = append(warnings, warn...)
		desc.Fields = append(desc.Fields, *field)
	}
	if len(desc.Fields) == 0 {
		return nil, nil, nil, fmt.Errorf("schema must declare at least one field")
	}
	return desc, desc.toWireSchema(), warnings, nil
}

func compileField(name string, node *yaml.Node) (*Field, []string, error) {
	if node.Kind == yaml.ScalarNode {
		return compileFieldFromMap(name, map[string]interface{}{"type": node.Value})
	}
	var raw map[string]interface{}
	if err := node.Decode(&raw); err != nil {
		return nil, nil, fmt.Errorf("decode field descriptor: %w", err)
	}
	return compileFieldFromMap(name, raw)
}

func compileFieldFromMap(name string, raw map[string]interface{}) (*Field, []string, error) {
	var warnings []string
	f := &Field{Name: name, CaseSensitive: true}

	if cs, ok := raw["case_sensitive"].(bool); ok {
		f.CaseSensitive = cs
	}
	if lang, ok := raw["lang"].(string); ok {
		switch Lang(lang) {
		case LangZH, LangEN:
			f.Lang = Lang(lang)
		default:
			return nil, nil, fmt.Errorf("unknown lang %q (want zh or en)", lang)
		}
	}
	if conv, ok := raw["convert"].(string); ok {
		f.Convert = conv
	}
	if min, ok := toFloat(raw["minimum"]); ok {
		f.Minimum = &min
	}
	if max, ok := toFloat(raw["maximum"]); ok {
		f.Maximum = &max
	}

	switch {
	case raw["enum_list"] != nil:
		values, err := toStringSlice(raw["enum_list"])
		if err != nil {
			return nil, nil, fmt.Errorf("enum_list: %w", err)
		}
		f.Type = TypeEnumList
		f.EnumValues = values
		minItems := 0
		if v, ok := toInt(raw["min_items"]); ok {
			minItems = v
		}
		maxItems := len(values)
		if v, ok := toInt(raw["max_items"]); ok {
			maxItems = v
		}
		f.MinItems = &minItems
		f.MaxItems = &maxItems

	case raw["enum"] != nil:
		values, err := toStringSlice(raw["enum"])
		if err != nil {
			return nil, nil, fmt.Errorf("enum: %w", err)
		}
		if len(values) == 0 {
			return nil, nil, fmt.Errorf("enum must declare at least one choice")
		}
		f.Type = TypeEnum
		f.EnumValues = values

	default:
		rawType, _ := raw["type"].(string)
		if rawType == "" {
			return nil, nil, fmt.Errorf("field must declare a type, enum, or enum_list")
		}
		if rawType == "number" {
			warnings = append(warnings, fmt.Sprintf("field %q: type \"number\" is deprecated, normalized to \"float\"", name))
			rawType = "float"
		}
		switch FieldType(rawType) {
		case TypeString, TypeInteger, TypeFloat, TypeBoolean:
			f.Type = FieldType(rawType)
		case TypeArray:
			itemsRaw, ok := raw["items"].(map[string]interface{})
			if !ok {
				return nil, nil, fmt.Errorf("array field requires an \"items\" descriptor")
			}
			elem, elemWarnings, err := compileFieldFromMap(name+".items", itemsRaw)
			if err != nil {
				return nil, nil, fmt.Errorf("items: %w", err)
			}
			if elem.Type != TypeString && elem.Type != TypeInteger && elem.Type != TypeFloat &&
				elem.Type != TypeBoolean && elem.Type != TypeEnum {
				return nil, nil, fmt.Errorf("array items must be a scalar or enum, got %s", elem.Type)
			}
			warnings = append(warnings, elemWarnings...)
			f.Type = TypeArray
			f.ElementType = elem
			if v, ok := toInt(raw["min_items"]); ok {
				f.MinItems = &v
			}
			if v, ok := toInt(raw["max_items"]); ok {
				f.MaxItems = &v
			}
		default:
			return nil, nil, fmt.Errorf("unknown type %q", rawType)
		}
	}

	return f, warnings, nil
}

func toStringSlice(v interface{}) ([]string, error) {
	items, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected a list of strings")
	}
	out := make([]string, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("expected a list of strings, element %d is %T", i, item)
		}
		out[i] = s
	}
	return out, nil
}

// toInt handles both int and float64, since yaml.v3 decodes plain integers
// as int but anything touched by arithmetic upstream may arrive as float64.
func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
