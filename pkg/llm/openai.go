package llm

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/doctrail-go/enrichment-engine/pkg/schema"
)

// OpenAIProvider implements Provider over api.openai.com and OpenAI-compatible
// endpoints. Grounded on the teacher's pkg/llm/client.go: same config shape
// (Endpoint/Model/APIKey), same request timing + structured logging, same
// ClassifyError-on-failure path.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewOpenAIProvider constructs an OpenAIProvider for model against endpoint
// (empty endpoint means the default https://api.openai.com/v1).
func NewOpenAIProvider(endpoint, model, apiKey string, logger *zap.Logger) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if endpoint != "" {
		cfg.BaseURL = strings.TrimSuffix(endpoint, "/")
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger.Named("llm.openai"),
	}
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
	}
	return out
}

// GenerateText implements Provider.
func (p *OpenAIProvider) GenerateText(ctx context.Context, messages []Message, temperature float64, maxTokens int) (*Result, error) {
	start := time.Now()
	p.logger.Debug("request", zap.String("model", p.model), zap.Int("messages", len(messages)))

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    toOpenAIMessages(messages),
		Temperature: float32(temperature),
		MaxTokens:   maxTokens,
	})
	if err != nil {
		p.logger.Error("request failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return nil, ClassifyError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, NewError(ErrorTypeUnknown, "no choices in response", false, nil)
	}

	p.logger.Info("request completed",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return &Result{
		Content:          resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}, nil
}

// GenerateStructured implements Provider: submits the WireSchema as a native
// json_schema response_format (OpenAI's structured-output feature) per
// spec.md §4.5 "if the backend accepts a schema natively, submit the
// WireSchema and parse the returned object directly".
func (p *OpenAIProvider) GenerateStructured(ctx context.Context, messages []Message, wireSchema *schema.WireSchema, temperature float64, maxTokens int) (*Result, error) {
	doc := schema.ToJSONSchemaDoc(wireSchema)

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    toOpenAIMessages(messages),
		Temperature: float32(temperature),
		MaxTokens:   maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "enrichment_output",
				Schema: jsonSchemaMarshaler{doc},
				Strict: true,
			},
		},
	})
	if err != nil {
		p.logger.Error("structured request failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return nil, ClassifyError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, NewError(ErrorTypeUnknown, "no choices in response", false, nil)
	}

	return &Result{
		Content:          resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}, nil
}

// Model implements Provider.
func (p *OpenAIProvider) Model() string { return p.model }

// CountTokens implements Provider: exact counts are provided by tokens.go's
// tiktoken wrapper (cl100k_base for model names tiktoken-go does not know);
// this falls back to the 4-chars/token heuristic only when no encoding can
// be loaded.
func (p *OpenAIProvider) CountTokens(text string) int {
	if n, ok := CountTokensExact(p.model, text); ok {
		return n
	}
	return CountTokensApprox(text)
}

// MaxContextTokens implements Provider.
func (p *OpenAIProvider) MaxContextTokens() int {
	return ModelContextWindow(p.model)
}

// jsonSchemaMarshaler adapts a map[string]interface{} JSON Schema document to
// go-openai's json.Marshaler-typed Schema field.
type jsonSchemaMarshaler struct {
	doc map[string]interface{}
}

func (j jsonSchemaMarshaler) MarshalJSON() ([]byte, error) {
	return json.Marshal(j.doc)
}
