package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToJSONSchemaDoc_SimpleEnum(t *testing.T) {
	node := mustNode(t, `
sentiment:
  enum: [positive, negative, neutral]
`)
	_, ws, _, err := Compile(node)
	require.NoError(t, err)

	doc := ToJSONSchemaDoc(ws)
	assert.Equal(t, "object", doc["type"])
	assert.Equal(t, false, doc["additionalProperties"])
	props, ok := doc["properties"].(map[string]interface{})
	require.True(t, ok)
	sentiment, ok := props["sentiment"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "string", sentiment["type"])
	assert.Equal(t, []string{"positive", "negative", "neutral"}, sentiment["enum"])
	assert.Contains(t, doc["required"], "sentiment")
}

func TestToJSONSchemaDoc_FloatWithBounds(t *testing.T) {
	node := mustNode(t, `
score:
  type: float
  minimum: 0
  maximum: 1
`)
	_, ws, _, err := Compile(node)
	require.NoError(t, err)

	doc := ToJSONSchemaDoc(ws)
	props := doc["properties"].(map[string]interface{})
	score := props["score"].(map[string]interface{})
	assert.Equal(t, "number", score["type"])
	assert.Equal(t, 0.0, score["minimum"])
	assert.Equal(t, 1.0, score["maximum"])
}

func TestToJSONSchemaDoc_ArrayOfScalar(t *testing.T) {
	node := mustNode(t, `
tags:
  type: array
  items:
    type: string
  max_items: 5
`)
	_, ws, _, err := Compile(node)
	require.NoError(t, err)

	doc := ToJSONSchemaDoc(ws)
	props := doc["properties"].(map[string]interface{})
	tags := props["tags"].(map[string]interface{})
	assert.Equal(t, "array", tags["type"])
	items := tags["items"].(map[string]interface{})
	assert.Equal(t, "string", items["type"])
	assert.Equal(t, 5, tags["maxItems"])
}

func TestCompileJSONSchema_ValidAndInvalidDocuments(t *testing.T) {
	node := mustNode(t, `
sentiment:
  enum: [positive, negative]
score:
  type: float
  minimum: 0
  maximum: 1
`)
	_, ws, _, err := Compile(node)
	require.NoError(t, err)

	sch, err := CompileJSONSchema(ws)
	require.NoError(t, err)

	err = sch.Validate(map[string]interface{}{"sentiment": "positive", "score": 0.2})
	assert.NoError(t, err)

	err = sch.Validate(map[string]interface{}{"sentiment": "mixed", "score": 0.2})
	assert.Error(t, err)

	err = sch.Validate(map[string]interface{}{"sentiment": "positive", "score": 3.0})
	assert.Error(t, err)

	err = sch.Validate(map[string]interface{}{})
	assert.Error(t, err, "missing required fields must fail validation")
}
