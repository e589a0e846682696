package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func mustNode(t *testing.T, doc string) *yaml.Node {
	t.Helper()
	var node yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(doc), &node))
	return &node
}

func TestCompile_SimpleEnum(t *testing.T) {
	node := mustNode(t, `
sentiment:
  enum: [positive, negative, neutral]
`)
	desc, ws, warnings, err := Compile(node)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.False(t, desc.IsComplex())
	require.Len(t, desc.Fields, 1)
	assert.Equal(t, TypeEnum, desc.Fields[0].Type)
	assert.Equal(t, []string{"positive", "negative", "neutral"}, desc.Fields[0].EnumValues)
	require.Len(t, ws.Fields, 1)
	assert.Equal(t, "sentiment", ws.Fields[0].Name)
}

func TestCompile_ComplexSchemaWithBounds(t *testing.T) {
	node := mustNode(t, `
sentiment:
  enum: ["+", "-", "="]
score:
  type: float
  minimum: 0
  maximum: 1
`)
	desc, _, _, err := Compile(node)
	require.NoError(t, err)
	assert.True(t, desc.IsComplex())
	assert.Equal(t, []string{"sentiment", "score"}, desc.FieldNames())
	require.NotNil(t, desc.Fields[1].Minimum)
	require.NotNil(t, desc.Fields[1].Maximum)
	assert.Equal(t, 0.0, *desc.Fields[1].Minimum)
	assert.Equal(t, 1.0, *desc.Fields[1].Maximum)
}

func TestCompile_NumberNormalizedToFloatWithWarning(t *testing.T) {
	node := mustNode(t, `
amount:
  type: number
`)
	desc, _, warnings, err := Compile(node)
	require.NoError(t, err)
	assert.Equal(t, TypeFloat, desc.Fields[0].Type)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "deprecated")
}

func TestCompile_EnumListDefaultBounds(t *testing.T) {
	node := mustNode(t, `
topics:
  enum_list: [a, b, c, d]
  min_items: 1
  max_items: 3
`)
	desc, _, _, err := Compile(node)
	require.NoError(t, err)
	f := desc.Fields[0]
	assert.Equal(t, TypeEnumList, f.Type)
	require.NotNil(t, f.MinItems)
	require.NotNil(t, f.MaxItems)
	assert.Equal(t, 1, *f.MinItems)
	assert.Equal(t, 3, *f.MaxItems)
}

func TestCompile_ArrayOfScalar(t *testing.T) {
	node := mustNode(t, `
tags:
  type: array
  items:
    type: string
  max_items: 5
`)
	desc, ws, _, err := Compile(node)
	require.NoError(t, err)
	f := desc.Fields[0]
	assert.Equal(t, TypeArray, f.Type)
	require.NotNil(t, f.ElementType)
	assert.Equal(t, TypeString, f.ElementType.Type)
	require.NotNil(t, ws.Fields[0].Element)
}

func TestCompile_MissingTypeFails(t *testing.T) {
	node := mustNode(t, `
summary: {}
`)
	_, _, _, err := Compile(node)
	assert.Error(t, err)
}

func TestCompile_UnknownLangFails(t *testing.T) {
	node := mustNode(t, `
summary:
  type: string
  lang: fr
`)
	_, _, _, err := Compile(node)
	assert.Error(t, err)
}

func TestCompile_ScalarShorthand(t *testing.T) {
	node := mustNode(t, `
summary: string
`)
	desc, _, _, err := Compile(node)
	require.NoError(t, err)
	assert.Equal(t, TypeString, desc.Fields[0].Type)
}

func TestCompile_EmptySchemaFails(t *testing.T) {
	node := mustNode(t, `{}`)
	_, _, _, err := Compile(node)
	assert.Error(t, err)
}
