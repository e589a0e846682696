package schema

import (
	"testing"

	"github.com/doctrail-go/enrichment-engine/pkg/engineerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileDescriptor(t *testing.T, doc string) *Descriptor {
	t.Helper()
	desc, _, _, err := Compile(mustNode(t, doc))
	require.NoError(t, err)
	return desc
}

func TestValidator_SimpleEnum(t *testing.T) {
	desc := compileDescriptor(t, `
sentiment:
  enum: [positive, negative, neutral]
`)
	v := NewValidator(desc)
	out, err := v.Validate(map[string]interface{}{"sentiment": "positive"})
	require.NoError(t, err)
	assert.Equal(t, "positive", out["sentiment"])
}

func TestValidator_EnumCaseInsensitiveReturnsCanonical(t *testing.T) {
	desc := compileDescriptor(t, `
sentiment:
  enum: [Positive, Negative]
  case_sensitive: false
`)
	v := NewValidator(desc)
	out, err := v.Validate(map[string]interface{}{"sentiment": "POSITIVE"})
	require.NoError(t, err)
	assert.Equal(t, "Positive", out["sentiment"])
}

func TestValidator_EnumMismatchIsNonRecoverable(t *testing.T) {
	desc := compileDescriptor(t, `
sentiment:
  enum: [positive, negative]
`)
	v := NewValidator(desc)
	_, err := v.Validate(map[string]interface{}{"sentiment": "mixed"})
	require.Error(t, err)
	assert.False(t, engineerrors.IsRecoverable(err))
}

// EnrichmentScenario 2.3 "Enum-list dedupe" from spec.md §8.
func TestValidator_EnumListDedupeLaw(t *testing.T) {
	desc := compileDescriptor(t, `
topics:
  enum_list: [a, b, c, d]
  min_items: 1
  max_items: 3
`)
	v := NewValidator(desc)
	out, err := v.Validate(map[string]interface{}{
		"topics": []interface{}{"a", "b", "a", "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out["topics"])
}

func TestValidator_EnumListEmptyViolatesMinItems(t *testing.T) {
	desc := compileDescriptor(t, `
topics:
  enum_list: [a, b, c, d]
  min_items: 1
  max_items: 3
`)
	v := NewValidator(desc)
	_, err := v.Validate(map[string]interface{}{
		"topics": []interface{}{},
	})
	require.Error(t, err)
	assert.False(t, engineerrors.IsRecoverable(err))
}

func TestValidator_EnumListExcludesDisallowedValues(t *testing.T) {
	desc := compileDescriptor(t, `
topics:
  enum_list: [a, b, c]
  min_items: 1
  max_items: 3
`)
	v := NewValidator(desc)
	out, err := v.Validate(map[string]interface{}{
		"topics": []interface{}{"a", "zzz", "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out["topics"])
}

// EnrichmentScenario 2.4 "Language retry" from spec.md §8.
func TestValidator_LangZH_MissingCJKIsRecoverable(t *testing.T) {
	desc := compileDescriptor(t, `
summary_zh:
  type: string
  lang: zh
`)
	v := NewValidator(desc)
	_, err := v.Validate(map[string]interface{}{"summary_zh": "Hello world"})
	require.Error(t, err)
	assert.True(t, engineerrors.IsRecoverable(err))
}

func TestValidator_LangZH_PresentCJKPasses(t *testing.T) {
	desc := compileDescriptor(t, `
summary_zh:
  type: string
  lang: zh
`)
	v := NewValidator(desc)
	out, err := v.Validate(map[string]interface{}{"summary_zh": "你好世界"})
	require.NoError(t, err)
	assert.Equal(t, "你好世界", out["summary_zh"])
}

func TestValidator_LangEN_RejectsCJK(t *testing.T) {
	desc := compileDescriptor(t, `
summary_en:
  type: string
  lang: en
`)
	v := NewValidator(desc)
	_, err := v.Validate(map[string]interface{}{"summary_en": "hello 你好"})
	require.Error(t, err)
	assert.True(t, engineerrors.IsRecoverable(err))
}

func TestValidator_FloatBounds(t *testing.T) {
	desc := compileDescriptor(t, `
score:
  type: float
  minimum: 0
  maximum: 1
`)
	v := NewValidator(desc)

	out, err := v.Validate(map[string]interface{}{"score": 0.5})
	require.NoError(t, err)
	assert.Equal(t, 0.5, out["score"])

	_, err = v.Validate(map[string]interface{}{"score": 1.5})
	require.Error(t, err)
	assert.False(t, engineerrors.IsRecoverable(err))
}

func TestValidator_ConvertRunsBeforeLang(t *testing.T) {
	desc := compileDescriptor(t, `
place:
  type: string
  convert: chinese_to_pinyin
  lang: en
`)
	v := NewValidator(desc)
	out, err := v.Validate(map[string]interface{}{"place": "北京"})
	require.NoError(t, err)
	assert.Equal(t, "Beijing", out["place"])
}

func TestValidator_MissingFieldFails(t *testing.T) {
	desc := compileDescriptor(t, `
sentiment:
  enum: [positive, negative]
`)
	v := NewValidator(desc)
	_, err := v.Validate(map[string]interface{}{})
	assert.Error(t, err)
}

func TestValidator_FlexibleStringCoercion(t *testing.T) {
	desc := compileDescriptor(t, `
label:
  type: string
`)
	v := NewValidator(desc)
	out, err := v.Validate(map[string]interface{}{"label": float64(7)})
	require.NoError(t, err)
	assert.Equal(t, "7", out["label"])
}

func TestValidator_ArrayElementValidation(t *testing.T) {
	desc := compileDescriptor(t, `
tags:
  type: array
  items:
    type: string
  max_items: 2
`)
	v := NewValidator(desc)
	out, err := v.Validate(map[string]interface{}{
		"tags": []interface{}{"a", "b", "c"},
	})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", "b"}, out["tags"])
}
