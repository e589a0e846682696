package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountTokensApprox(t *testing.T) {
	assert.Equal(t, 0, CountTokensApprox(""))
	assert.Equal(t, 1, CountTokensApprox("hi"))
	assert.Equal(t, 2, CountTokensApprox("12345678"))
}

func TestCountTokensExact_KnownOpenAIModel(t *testing.T) {
	n, ok := CountTokensExact("gpt-4o", "hello world")
	assert.True(t, ok)
	assert.Greater(t, n, 0)
}

func TestCountTokensExact_UnknownModelFallsBackToCl100kBase(t *testing.T) {
	// tiktoken-go's EncodingForModel errors on unregistered names; tokens.go
	// falls back to cl100k_base rather than reporting !ok, since any text
	// still tokenizes approximately the same way under that encoding.
	n, ok := CountTokensExact("some-unregistered-model-xyz", "hello world")
	assert.True(t, ok)
	assert.Greater(t, n, 0)
}

func TestModelContextWindow_KnownModel(t *testing.T) {
	assert.Equal(t, 128000, ModelContextWindow("gpt-4o"))
}

func TestModelContextWindow_PrefixMatch(t *testing.T) {
	assert.Equal(t, 128000, ModelContextWindow("gpt-4o-2024-08-06"))
}

func TestModelContextWindow_UnknownFallsBackToDefault(t *testing.T) {
	assert.Equal(t, defaultContextWindow, ModelContextWindow("some-made-up-model"))
}

func TestPricingFor_KnownModel(t *testing.T) {
	p := PricingFor("gpt-4o")
	assert.Equal(t, 2.50, p.InputPricePerMillion)
	assert.Equal(t, 10.00, p.OutputPricePerMillion)
}

func TestPricingFor_UnknownFallsBackToDefault(t *testing.T) {
	p := PricingFor("some-made-up-model")
	assert.Equal(t, defaultInputPricePerMillion, p.InputPricePerMillion)
	assert.Equal(t, defaultOutputPricePerMillion, p.OutputPricePerMillion)
}
