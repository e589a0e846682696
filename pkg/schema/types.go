// Package schema is the Schema Compiler (spec.md §4.1): it turns a
// declarative schema map into a (Validator, WireSchema) pair. The Validator
// runs structural validation, language checks, and registered conversions;
// the WireSchema is a provider-neutral description a Provider adapter uses
// to build a structured-output request.
package schema

// FieldType is one of the schema descriptor's scalar or composite tags.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeInteger FieldType = "integer"
	TypeFloat   FieldType = "float"
	TypeBoolean FieldType = "boolean"
	TypeEnum    FieldType = "enum"
	TypeEnumList FieldType = "enum_list"
	TypeArray   FieldType = "array"
)

// Lang is a language-presence assertion applied after conversion.
type Lang string

const (
	LangNone Lang = ""
	LangZH   Lang = "zh"
	LangEN   Lang = "en"
)

// Field is one entry of the declarative schema map (one output field).
type Field struct {
	Name string
	Type FieldType

	// enum / enum_list
	EnumValues    []string
	CaseSensitive bool // default true; false lowercases comparands

	// enum_list / array bounds
	MinItems *int
	MaxItems *int

	// array element type (scalar or enum only, per spec)
	ElementType *Field

	// numeric bounds (integer / float scalars only)
	Minimum *float64
	Maximum *float64

	// post-validation
	Lang    Lang
	Convert string // e.g. "chinese_to_pinyin"
}

// Descriptor is the declarative schema map keyed by field name, in the
// order fields were declared (order matters for deterministic WireSchema
// field ordering and for stable error messages).
type Descriptor struct {
	Fields []Field
}

// IsComplex reports whether this is a "complex" schema (>1 field), which
// per the Strategy Resolver rules requires a derived output table.
func (d *Descriptor) IsComplex() bool {
	return len(d.Fields) > 1
}

// FieldNames returns the declared field names in declaration order.
func (d *Descriptor) FieldNames() []string {
	names := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		names[i] = f.Name
	}
	return names
}

// WireSchema is the provider-neutral description of the compiled schema.
// It carries no Go-specific types, only the tag vocabulary from §4.1, so a
// Provider adapter can translate it into whatever structured-output request
// shape its backend expects (OpenAI JSON-schema response_format, Anthropic
// tool-use input_schema, Gemini response_schema, or a plain "reply in JSON"
// instruction for backends without native structured output).
type WireSchema struct {
	Fields []WireField `json:"fields"`
}

// WireField is one field of a WireSchema.
type WireField struct {
	Name     string     `json:"name"`
	Type     FieldType  `json:"type"`
	Enum     []string   `json:"enum,omitempty"`
	MinItems *int       `json:"min_items,omitempty"`
	MaxItems *int       `json:"max_items,omitempty"`
	Minimum  *float64   `json:"minimum,omitempty"`
	Maximum  *float64   `json:"maximum,omitempty"`
	Element  *WireField `json:"element,omitempty"`
}

// toWireSchema converts a compiled Descriptor into its provider-neutral
// WireSchema, preserving field declaration order.
func (d *Descriptor) toWireSchema() *WireSchema {
	ws := &WireSchema{Fields: make([]WireField, len(d.Fields))}
	for i, f := range d.Fields {
		ws.Fields[i] = fieldToWire(f)
	}
	return ws
}

func fieldToWire(f Field) WireField {
	wf := WireField{
		Name:     f.Name,
		Type:     f.Type,
		Enum:     f.EnumValues,
		MinItems: f.MinItems,
		MaxItems: f.MaxItems,
		Minimum:  f.Minimum,
		Maximum:  f.Maximum,
	}
	if f.ElementType != nil {
		elem := fieldToWire(*f.ElementType)
		wf.Element = &elem
	}
	return wf
}
