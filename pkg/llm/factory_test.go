package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/doctrail-go/enrichment-engine/pkg/config"
	"github.com/doctrail-go/enrichment-engine/pkg/schema"
)

func TestNewProvider_OpenAIMissingKeyErrors(t *testing.T) {
	_, err := NewProvider(context.Background(), "gpt-4o", config.ProviderConfig{}, nil, zap.NewNop())
	assert.Error(t, err)
	assert.Equal(t, ErrorTypeAuth, GetErrorType(err))
}

func TestNewProvider_AnthropicMissingKeyErrors(t *testing.T) {
	_, err := NewProvider(context.Background(), "claude-3-5-sonnet", config.ProviderConfig{}, nil, zap.NewNop())
	assert.Error(t, err)
	assert.Equal(t, ErrorTypeAuth, GetErrorType(err))
}

func TestNewProvider_GeminiMissingKeyErrors(t *testing.T) {
	_, err := NewProvider(context.Background(), "gemini-1.5-pro", config.ProviderConfig{}, nil, zap.NewNop())
	assert.Error(t, err)
	assert.Equal(t, ErrorTypeAuth, GetErrorType(err))
}

func TestNewProvider_UnrecognizedModelErrors(t *testing.T) {
	_, err := NewProvider(context.Background(), "mystery-model-9000", config.ProviderConfig{OpenAIAPIKey: "x", AnthropicAPIKey: "x", GoogleAPIKey: "x"}, nil, zap.NewNop())
	assert.Error(t, err)
	assert.Equal(t, ErrorTypeModel, GetErrorType(err))
}

func TestNewProvider_OpenAISucceedsWithKey(t *testing.T) {
	p, err := NewProvider(context.Background(), "gpt-4o", config.ProviderConfig{OpenAIAPIKey: "test-key"}, nil, zap.NewNop())
	assert.NoError(t, err)
	assert.Equal(t, "gpt-4o", p.Model())
}

func TestNewProvider_WrapsWithCircuitBreakerWhenProvided(t *testing.T) {
	breaker := NewCircuitBreaker(DefaultCircuitBreakerConfig())
	p, err := NewProvider(context.Background(), "gpt-4o", config.ProviderConfig{OpenAIAPIKey: "test-key"}, breaker, zap.NewNop())
	assert.NoError(t, err)

	_, isWrapped := p.(*circuitBreakerProvider)
	assert.True(t, isWrapped)
}

func TestCircuitBreakerProvider_OpenCircuitBlocksCalls(t *testing.T) {
	breaker := NewCircuitBreaker(CircuitBreakerConfig{Threshold: 1, ResetAfter: time.Minute})
	breaker.RecordFailure()

	inner := &fakeProvider{model: "fake-model"}
	wrapped := &circuitBreakerProvider{inner: inner, breaker: breaker}

	_, err := wrapped.GenerateText(context.Background(), nil, 0, 0)
	assert.Error(t, err)
	assert.False(t, inner.called)
}

func TestCircuitBreakerProvider_RecordsSuccessAndFailure(t *testing.T) {
	breaker := NewCircuitBreaker(DefaultCircuitBreakerConfig())
	inner := &fakeProvider{model: "fake-model"}
	wrapped := &circuitBreakerProvider{inner: inner, breaker: breaker}

	_, err := wrapped.GenerateText(context.Background(), nil, 0, 0)
	assert.NoError(t, err)
	assert.Equal(t, 0, breaker.ConsecutiveFailures())

	inner.shouldFail = true
	_, err = wrapped.GenerateText(context.Background(), nil, 0, 0)
	assert.Error(t, err)
	assert.Equal(t, 1, breaker.ConsecutiveFailures())
}

type fakeProvider struct {
	model      string
	called     bool
	shouldFail bool
}

func (f *fakeProvider) GenerateText(ctx context.Context, messages []Message, temperature float64, maxTokens int) (*Result, error) {
	f.called = true
	if f.shouldFail {
		return nil, NewError(ErrorTypeUnknown, "boom", false, nil)
	}
	return &Result{Content: "ok"}, nil
}

func (f *fakeProvider) GenerateStructured(ctx context.Context, messages []Message, wireSchema *schema.WireSchema, temperature float64, maxTokens int) (*Result, error) {
	return nil, nil
}

func (f *fakeProvider) Model() string             { return f.model }
func (f *fakeProvider) CountTokens(text string) int { return CountTokensApprox(text) }
func (f *fakeProvider) MaxContextTokens() int      { return 1000 }
