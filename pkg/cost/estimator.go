// Package cost is the Cost Estimator (spec.md §4.7): a pre-flight estimate
// of what a run will cost, using a model-pricing table (pkg/llm) and a
// tokenizer/approximation (llm.Provider.CountTokens), returned as a
// breakdown plus a confirmation-threshold signal.
package cost

import (
	"github.com/doctrail-go/enrichment-engine/pkg/llm"
	"github.com/doctrail-go/enrichment-engine/pkg/schema"
)

// DefaultThreshold is spec.md §4.7's default confirmation threshold.
const DefaultThreshold = 5.0

// avgStringFieldChars is the assumed length of a string-typed output field
// when no per-field length bound is declared (the schema has no max-length
// annotation of its own to consult), used only for the output-token
// estimate's "strings ≈ maxLength/8" term.
const avgStringFieldChars = 200

// Breakdown is the Cost Estimator's per-run result (spec.md §4.7).
type Breakdown struct {
	Model              string
	RowCount           int
	InputTokensPerRow  int
	OutputTokensPerRow int
	TotalInputTokens   int
	TotalOutputTokens  int
	InputCost          float64
	OutputCost         float64
	TotalCost          float64
}

// Estimate computes the pre-flight cost breakdown for running model over
// rowCount rows, given the already-substituted sample prompt (one row's
// rendered prompt, representative of the rest) and the compiled output
// schema.
func Estimate(provider llm.Provider, sampleFullPrompt string, desc *schema.Descriptor, rowCount int) Breakdown {
	const systemOverheadTokens = 200

	inputTokens := provider.CountTokens(sampleFullPrompt) + systemOverheadTokens
	outputTokens := outputTokensPerRow(desc)

	pricing := llm.PricingFor(provider.Model())
	totalInput := inputTokens * rowCount
	totalOutput := outputTokens * rowCount

	inputCost := float64(totalInput) / 1_000_000 * pricing.InputPricePerMillion
	outputCost := float64(totalOutput) / 1_000_000 * pricing.OutputPricePerMillion

	return Breakdown{
		Model:              provider.Model(),
		RowCount:           rowCount,
		InputTokensPerRow:  inputTokens,
		OutputTokensPerRow: outputTokens,
		TotalInputTokens:   totalInput,
		TotalOutputTokens:  totalOutput,
		InputCost:          inputCost,
		OutputCost:         outputCost,
		TotalCost:          inputCost + outputCost,
	}
}

// outputTokensPerRow implements spec.md §4.7's output-token formula: scalars
// ≈5 tokens, strings ≈ maxLength/8, arrays ≈ maxItems × 10, plus a base of
// 50 tokens for JSON framing.
func outputTokensPerRow(desc *schema.Descriptor) int {
	const jsonFramingTokens = 50
	total := jsonFramingTokens
	for _, f := range desc.Fields {
		total += fieldOutputTokens(f)
	}
	return total
}

func fieldOutputTokens(f schema.Field) int {
	switch f.Type {
	case schema.TypeString:
		return avgStringFieldChars / 8
	case schema.TypeEnumList, schema.TypeArray:
		maxItems := 5
		if f.MaxItems != nil {
			maxItems = *f.MaxItems
		}
		return maxItems * 10
	default:
		return 5
	}
}

// RequiresConfirmation reports whether total exceeds threshold (spec.md
// §4.7's pre-flight confirmation gate). A threshold <= 0 falls back to
// DefaultThreshold.
func RequiresConfirmation(total float64, threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return total > threshold
}
