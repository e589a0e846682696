package schema

import (
	"fmt"
	"strings"

	"github.com/doctrail-go/enrichment-engine/pkg/engineerrors"
	"github.com/doctrail-go/enrichment-engine/pkg/jsonutil"
)

// Validator runs structural validation, conversion, and language checks
// against a compiled Descriptor. It is the runtime half of the Schema
// Compiler's output (spec.md §4.1); the WireSchema is the wire-format half.
type Validator struct {
	desc *Descriptor
}

// NewValidator wraps a compiled Descriptor for per-row validation.
func NewValidator(desc *Descriptor) *Validator {
	return &Validator{desc: desc}
}

// Validate parses and validates a decoded JSON object (one field per
// schema.Field) against the compiled schema. It applies, per field and in
// order: type coercion, convert, then lang — language validation runs after
// convert, per spec.md §4.1. The returned map holds typed Go values (string,
// int64, float64, bool, []string for enum_list, []interface{} for array)
// ready for JSON encoding into the audit log
// or projection into the derived table / direct column.
func (v *Validator) Validate(raw map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(v.desc.Fields))
	for _, f := range v.desc.Fields {
		val, ok := raw[f.Name]
		if !ok {
			return nil, engineerrors.NewSchemaValidationError(
				fmt.Sprintf("missing field %q in provider response", f.Name), nil)
		}
		coerced, err := validateField(f, val)
		if err != nil {
			return nil, err
		}
		out[f.Name] = coerced
	}
	return out, nil
}

func validateField(f Field, val interface{}) (interface{}, error) {
	switch f.Type {
	case TypeString:
		s := jsonutil.FlexibleValue(val)
		return applyConvertAndLang(f, s)
	case TypeInteger:
		n, ok := toIntValue(val)
		if !ok {
			return nil, engineerrors.NewSchemaValidationError(
				fmt.Sprintf("field %q: expected integer, got %T", f.Name, val), nil)
		}
		return n, nil
	case TypeFloat:
		n, ok := toFloatValue(val)
		if !ok {
			return nil, engineerrors.NewSchemaValidationError(
				fmt.Sprintf("field %q: expected number, got %T", f.Name, val), nil)
		}
		if f.Minimum != nil && n < *f.Minimum {
			return nil, engineerrors.NewSchemaValidationError(
				fmt.Sprintf("field %q: %v is below minimum %v", f.Name, n, *f.Minimum), nil)
		}
		if f.Maximum != nil && n > *f.Maximum {
			return nil, engineerrors.NewSchemaValidationError(
				fmt.Sprintf("field %q: %v exceeds maximum %v", f.Name, n, *f.Maximum), nil)
		}
		return n, nil
	case TypeBoolean:
		b, ok := toBoolValue(val)
		if !ok {
			return nil, engineerrors.NewSchemaValidationError(
				fmt.Sprintf("field %q: expected boolean, got %T", f.Name, val), nil)
		}
		return b, nil
	case TypeEnum:
		s := jsonutil.FlexibleValue(val)
		canonical, err := matchEnum(f, s)
		if err != nil {
			return nil, engineerrors.NewSchemaValidationError(fmt.Sprintf("field %q: %v", f.Name, err), nil)
		}
		return applyConvertAndLang(f, canonical)
	case TypeEnumList:
		items, err := toStringSliceValue(val)
		if err != nil {
			return nil, engineerrors.NewSchemaValidationError(fmt.Sprintf("field %q: %v", f.Name, err), nil)
		}
		filtered := IntersectAllowed(items, f.EnumValues)
		deduped := DedupePreserveOrder(filtered)
		if f.MinItems != nil && len(deduped) < *f.MinItems {
			return nil, engineerrors.NewSchemaValidationError(
				fmt.Sprintf("field %q: %d items after dedupe, below min_items %d", f.Name, len(deduped), *f.MinItems), nil)
		}
		if f.MaxItems != nil && len(deduped) > *f.MaxItems {
			deduped = deduped[:*f.MaxItems]
		}
		return deduped, nil
	case TypeArray:
		items, ok := val.([]interface{})
		if !ok {
			return nil, engineerrors.NewSchemaValidationError(
				fmt.Sprintf("field %q: expected array, got %T", f.Name, val), nil)
		}
		if f.MinItems != nil && len(items) < *f.MinItems {
			return nil, engineerrors.NewSchemaValidationError(
				fmt.Sprintf("field %q: %d items, below min_items %d", f.Name, len(items), *f.MinItems), nil)
		}
		if f.MaxItems != nil && len(items) > *f.MaxItems {
			items = items[:*f.MaxItems]
		}
		out := make([]interface{}, len(items))
		for i, item := range items {
			elemVal, err := validateField(*f.ElementType, item)
			if err != nil {
				return nil, err
			}
			out[i] = elemVal
		}
		return out, nil
	default:
		return nil, engineerrors.NewSchemaValidationError(fmt.Sprintf("field %q: unknown type %q", f.Name, f.Type), nil)
	}
}

// applyConvertAndLang runs the post-validation pipeline for a string-valued
// field: convert first, then the lang assertion against the converted value
// (spec.md §4.1: "Language validation runs after convert"). Conversion
// failures are non-recoverable; lang mismatches are recoverable (the only
// recoverable schema.Kind) so the engine can retry the whole provider call.
func applyConvertAndLang(f Field, s string) (string, error) {
	if f.Convert != "" {
		converted, err := Convert(f.Convert, s)
		if err != nil {
			return "", engineerrors.NewSchemaValidationError(
				fmt.Sprintf("field %q: convert %q failed", f.Name, f.Convert), err)
		}
		s = converted
	}
	if f.Lang != LangNone {
		if err := checkLang(f.Lang, s); err != nil {
			return "", engineerrors.NewLanguageValidationError(
				fmt.Sprintf("field %q", f.Name), err)
		}
	}
	return s, nil
}

func matchEnum(f Field, s string) (string, error) {
	for _, choice := range f.EnumValues {
		if f.CaseSensitive {
			if s == choice {
				return choice, nil
			}
		} else if strings.EqualFold(s, choice) {
			return choice, nil
		}
	}
	return "", fmt.Errorf("%q is not one of %v", s, f.EnumValues)
}

func toStringSliceValue(val interface{}) ([]string, error) {
	items, ok := val.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected an array of strings, got %T", val)
	}
	out := make([]string, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("element %d is %T, not a string", i, item)
		}
		out[i] = s
	}
	return out, nil
}

func toIntValue(val interface{}) (int64, bool) {
	switch n := val.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case string:
		var i int64
		if _, err := fmt.Sscanf(n, "%d", &i); err == nil {
			return i, true
		}
	}
	return 0, false
}

func toFloatValue(val interface{}) (float64, bool) {
	switch n := val.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case string:
		var f float64
		if _, err := fmt.Sscanf(n, "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

func toBoolValue(val interface{}) (bool, bool) {
	switch b := val.(type) {
	case bool:
		return b, true
	case string:
		switch strings.ToLower(b) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}
