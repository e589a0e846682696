// Package llm is the Provider Adapter: a uniform interface over OpenAI,
// Anthropic, and Gemini, translating role-tagged messages and a compiled
// wire schema into either a structured call or a text-generation call.
package llm

import (
	"context"

	"github.com/doctrail-go/enrichment-engine/pkg/schema"
)

// Role is a message role in the provider-neutral conversation model.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a role-tagged conversation.
type Message struct {
	Role    Role
	Content string
}

// Result contains a generated response and its usage metadata.
type Result struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Provider is the single interface every backend adapter implements:
// plain text generation, and schema-constrained structured generation.
// Backends that accept a schema natively submit the WireSchema directly;
// backends that don't request JSON and let the caller validate it against
// the compiled schema.Validator.
type Provider interface {
	// GenerateText produces free-form text from a message sequence.
	GenerateText(ctx context.Context, messages []Message, temperature float64, maxTokens int) (*Result, error)

	// GenerateStructured produces a response conforming to wireSchema. If the
	// backend has no native structured-output mode, it returns the raw JSON
	// string in Result.Content for the caller to validate and parse.
	GenerateStructured(ctx context.Context, messages []Message, wireSchema *schema.WireSchema, temperature float64, maxTokens int) (*Result, error)

	// Model returns the configured model name.
	Model() string

	// CountTokens returns the token count for text: exact if the provider has
	// a tokenizer wired in, approximate (4 chars/token) otherwise.
	CountTokens(text string) int

	// MaxContextTokens returns the model's context window size.
	MaxContextTokens() int
}
