package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/doctrail-go/enrichment-engine/pkg/config"
	"github.com/doctrail-go/enrichment-engine/pkg/schema"
)

// NewProvider selects a backend by model name prefix and wraps it with a
// circuit breaker, generalizing the teacher's per-model client selection
// (pkg/llm/client.go picked vLLM vs OpenAI by endpoint) to the three
// registered families. Unlike the teacher, where each service held its own
// *CircuitBreaker and called Allow/RecordSuccess/RecordFailure around every
// LLM call (pkg/services/column_enrichment.go), the engine dispatches to
// Provider from one place per row, so that bookkeeping is centralized here
// in a single decorator instead of being repeated at each call site.
func NewProvider(ctx context.Context, model string, cfg config.ProviderConfig, breaker *CircuitBreaker, logger *zap.Logger) (Provider, error) {
	var (
		provider Provider
		err      error
	)

	switch {
	case strings.HasPrefix(model, "gpt-") || strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3"):
		if cfg.OpenAIAPIKey == "" {
			return nil, NewError(ErrorTypeAuth, "OPENAI_API_KEY not set", false, nil)
		}
		provider = NewOpenAIProvider(cfg.OpenAIEndpoint, model, cfg.OpenAIAPIKey, logger)

	case strings.HasPrefix(model, "claude-"):
		if cfg.AnthropicAPIKey == "" {
			return nil, NewError(ErrorTypeAuth, "ANTHROPIC_API_KEY not set", false, nil)
		}
		provider = NewAnthropicProvider(model, cfg.AnthropicAPIKey, logger)

	case strings.HasPrefix(model, "gemini-"):
		apiKey := cfg.GoogleAPIKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, NewError(ErrorTypeAuth, "GOOGLE_API_KEY or GEMINI_API_KEY not set", false, nil)
		}
		provider, err = NewGeminiProvider(ctx, model, apiKey, logger)
		if err != nil {
			return nil, err
		}

	default:
		return nil, NewError(ErrorTypeModel, fmt.Sprintf("unrecognized model %q: expected a gpt-/o1-/o3-, claude-, or gemini- prefixed name", model), false, nil)
	}

	if breaker == nil {
		return provider, nil
	}
	return &circuitBreakerProvider{inner: provider, breaker: breaker}, nil
}

// circuitBreakerProvider wraps a Provider with the teacher's circuit breaker
// protocol (Allow before the call, RecordSuccess/RecordFailure after).
type circuitBreakerProvider struct {
	inner   Provider
	breaker *CircuitBreaker
}

func (c *circuitBreakerProvider) guard() error {
	allowed, err := c.breaker.Allow()
	if !allowed {
		return NewError(ErrorTypeEndpoint, err.Error(), true, err)
	}
	return nil
}

func (c *circuitBreakerProvider) GenerateText(ctx context.Context, messages []Message, temperature float64, maxTokens int) (*Result, error) {
	if err := c.guard(); err != nil {
		return nil, err
	}
	result, err := c.inner.GenerateText(ctx, messages, temperature, maxTokens)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, err
	}
	c.breaker.RecordSuccess()
	return result, nil
}

func (c *circuitBreakerProvider) GenerateStructured(ctx context.Context, messages []Message, wireSchema *schema.WireSchema, temperature float64, maxTokens int) (*Result, error) {
	if err := c.guard(); err != nil {
		return nil, err
	}
	result, err := c.inner.GenerateStructured(ctx, messages, wireSchema, temperature, maxTokens)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, err
	}
	c.breaker.RecordSuccess()
	return result, nil
}

func (c *circuitBreakerProvider) Model() string               { return c.inner.Model() }
func (c *circuitBreakerProvider) CountTokens(text string) int  { return c.inner.CountTokens(text) }
func (c *circuitBreakerProvider) MaxContextTokens() int        { return c.inner.MaxContextTokens() }
