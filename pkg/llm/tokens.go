package llm

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// CountTokensApprox is the 4-chars/token fallback heuristic spec.md §4.5
// names for providers without an exact tokenizer (original_source's
// token_utils.py estimate_tokens uses the same ratio).
func CountTokensApprox(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		return 1
	}
	return n
}

var (
	encodingCacheMu sync.Mutex
	encodingCache   = map[string]*tiktoken.Tiktoken{}
)

// CountTokensExact returns an exact OpenAI token count via tiktoken-go,
// grounded on Tangerg-lynx/ai/core/tokenizer/tiktoken.go's
// GetEncoding-then-Encode pattern. A model name tiktoken-go does not know
// is counted with the cl100k_base encoding; ok is false only when that
// encoding cannot be loaded either, signalling the caller to fall back to
// CountTokensApprox.
func CountTokensExact(model, text string) (int, bool) {
	enc, ok := encodingForModel(model)
	if !ok {
		return 0, false
	}
	return len(enc.Encode(text, nil, nil)), true
}

func encodingForModel(model string) (*tiktoken.Tiktoken, bool) {
	encodingCacheMu.Lock()
	defer encodingCacheMu.Unlock()

	if enc, ok := encodingCache[model]; ok {
		return enc, true
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, false
		}
	}
	encodingCache[model] = enc
	return enc, true
}

// modelContextWindows is the spec.md §4.5 "max_context_tokens constant per
// registered model" table. Entries not present fall back to a conservative
// default so an unrecognized model name never panics a size calculation.
var modelContextWindows = map[string]int{
	"gpt-4o":              128000,
	"gpt-4o-mini":         128000,
	"gpt-4-turbo":         128000,
	"gpt-4":               8192,
	"gpt-3.5-turbo":       16385,
	"claude-3-5-sonnet":   200000,
	"claude-3-5-haiku":    200000,
	"claude-3-opus":       200000,
	"claude-opus-4":       200000,
	"gemini-1.5-pro":      2000000,
	"gemini-1.5-flash":    1000000,
	"gemini-2.0-flash":    1000000,
}

const defaultContextWindow = 32000

// ModelContextWindow returns the max context tokens for model, matching on
// the longest known prefix (provider SDKs commonly suffix versions/dates
// onto a base model name, e.g. "gpt-4o-2024-08-06").
func ModelContextWindow(model string) int {
	if n, ok := modelContextWindows[model]; ok {
		return n
	}
	best, bestLen := defaultContextWindow, 0
	for prefix, n := range modelContextWindows {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			best, bestLen = n, len(prefix)
		}
	}
	return best
}

// ModelPricing is the Cost Estimator's per-1M-token pricing table entry
// (spec.md §4.7).
type ModelPricing struct {
	InputPricePerMillion  float64
	OutputPricePerMillion float64
}

var modelPricing = map[string]ModelPricing{
	"gpt-4o":            {InputPricePerMillion: 2.50, OutputPricePerMillion: 10.00},
	"gpt-4o-mini":       {InputPricePerMillion: 0.15, OutputPricePerMillion: 0.60},
	"gpt-4-turbo":       {InputPricePerMillion: 10.00, OutputPricePerMillion: 30.00},
	"gpt-4":             {InputPricePerMillion: 30.00, OutputPricePerMillion: 60.00},
	"gpt-3.5-turbo":     {InputPricePerMillion: 0.50, OutputPricePerMillion: 1.50},
	"claude-3-5-sonnet": {InputPricePerMillion: 3.00, OutputPricePerMillion: 15.00},
	"claude-3-5-haiku":  {InputPricePerMillion: 0.80, OutputPricePerMillion: 4.00},
	"claude-3-opus":     {InputPricePerMillion: 15.00, OutputPricePerMillion: 75.00},
	"gemini-1.5-pro":    {InputPricePerMillion: 1.25, OutputPricePerMillion: 5.00},
	"gemini-1.5-flash":  {InputPricePerMillion: 0.075, OutputPricePerMillion: 0.30},
	"gemini-2.0-flash":  {InputPricePerMillion: 0.10, OutputPricePerMillion: 0.40},
}

const defaultInputPricePerMillion = 1.00
const defaultOutputPricePerMillion = 3.00

// PricingFor returns the pricing table entry for model (matching on the
// longest known prefix), or a conservative default if the model is
// unrecognized.
func PricingFor(model string) ModelPricing {
	if p, ok := modelPricing[model]; ok {
		return p
	}
	best := ModelPricing{InputPricePerMillion: defaultInputPricePerMillion, OutputPricePerMillion: defaultOutputPricePerMillion}
	bestLen := 0
	for prefix, p := range modelPricing {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			best, bestLen = p, len(prefix)
		}
	}
	return best
}
