package cost

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doctrail-go/enrichment-engine/pkg/llm"
	"github.com/doctrail-go/enrichment-engine/pkg/schema"
)

// fakeProvider is a minimal llm.Provider stand-in with a fixed token count,
// following the pack's pattern of faking narrow interfaces over mocking
// frameworks.
type fakeProvider struct {
	model  string
	tokens int
}

func (f *fakeProvider) GenerateText(ctx context.Context, messages []llm.Message, temperature float64, maxTokens int) (*llm.Result, error) {
	return nil, nil
}

func (f *fakeProvider) GenerateStructured(ctx context.Context, messages []llm.Message, ws *schema.WireSchema, temperature float64, maxTokens int) (*llm.Result, error) {
	return nil, nil
}

func (f *fakeProvider) Model() string            { return f.model }
func (f *fakeProvider) CountTokens(s string) int  { return f.tokens }
func (f *fakeProvider) MaxContextTokens() int     { return 128000 }

func intPtr(n int) *int { return &n }

func TestEstimate_ScalarFieldsBaseCost(t *testing.T) {
	provider := &fakeProvider{model: "gpt-4o-mini", tokens: 100}
	desc := &schema.Descriptor{Fields: []schema.Field{
		{Name: "sentiment", Type: schema.TypeEnum, EnumValues: []string{"positive", "negative"}},
	}}

	b := Estimate(provider, "Classify: some text", desc, 10)

	require.Equal(t, "gpt-4o-mini", b.Model)
	assert.Equal(t, 10, b.RowCount)
	assert.Equal(t, 100+200, b.InputTokensPerRow)
	// scalar/enum field ~5 tokens + 50 framing base.
	assert.Equal(t, 55, b.OutputTokensPerRow)
	assert.Equal(t, (100+200)*10, b.TotalInputTokens)
	assert.Equal(t, 55*10, b.TotalOutputTokens)
	assert.InDelta(t, b.InputCost+b.OutputCost, b.TotalCost, 1e-9)
}

func TestEstimate_ArrayFieldScalesWithMaxItems(t *testing.T) {
	provider := &fakeProvider{model: "gpt-4o-mini", tokens: 0}
	desc := &schema.Descriptor{Fields: []schema.Field{
		{Name: "topics", Type: schema.TypeEnumList, MaxItems: intPtr(3)},
	}}

	b := Estimate(provider, "", desc, 1)

	// 50 framing + 3*10 = 80.
	assert.Equal(t, 80, b.OutputTokensPerRow)
}

func TestEstimate_StringFieldUsesAverageLength(t *testing.T) {
	provider := &fakeProvider{model: "gpt-4o-mini", tokens: 0}
	desc := &schema.Descriptor{Fields: []schema.Field{
		{Name: "summary", Type: schema.TypeString},
	}}

	b := Estimate(provider, "", desc, 1)

	assert.Equal(t, 50+200/8, b.OutputTokensPerRow)
}

func TestEstimate_UnrecognizedModelUsesFallbackPricing(t *testing.T) {
	provider := &fakeProvider{model: "some-unknown-model-xyz", tokens: 10}
	desc := &schema.Descriptor{Fields: []schema.Field{{Name: "x", Type: schema.TypeString}}}

	b := Estimate(provider, "hi", desc, 1)

	assert.Greater(t, b.TotalCost, 0.0)
}

func TestRequiresConfirmation(t *testing.T) {
	assert.False(t, RequiresConfirmation(4.99, DefaultThreshold))
	assert.True(t, RequiresConfirmation(5.01, DefaultThreshold))
	// threshold<=0 falls back to DefaultThreshold.
	assert.True(t, RequiresConfirmation(5.01, 0))
	assert.False(t, RequiresConfirmation(4.99, -1))
	// custom threshold.
	assert.True(t, RequiresConfirmation(1.5, 1.0))
}
