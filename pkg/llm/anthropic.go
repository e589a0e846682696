package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/doctrail-go/enrichment-engine/pkg/schema"
)

// AnthropicProvider implements Provider over the Anthropic Messages API.
// Grounded on the teacher's scripts/assess-extraction and
// scripts/assess-ontology (the pack's only go-anthropic/v2 call sites): a
// single anthropic.Client, anthropic.MessagesRequest with a user message
// built from a prompt string, and usage read off resp.Usage.
type AnthropicProvider struct {
	client *anthropic.Client
	model  string
	logger *zap.Logger
}

// NewAnthropicProvider constructs an AnthropicProvider for model.
func NewAnthropicProvider(model, apiKey string, logger *zap.Logger) *AnthropicProvider {
	return &AnthropicProvider{
		client: anthropic.NewClient(apiKey),
		model:  model,
		logger: logger.Named("llm.anthropic"),
	}
}

func toAnthropicMessages(messages []Message) (string, []anthropic.Message) {
	var system strings.Builder
	var out []anthropic.Message
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system.Len() > 0 {
				system.WriteString("\n")
			}
			system.WriteString(m.Content)
			continue
		}
		role := anthropic.RoleUser
		if m.Role == RoleAssistant {
			role = anthropic.RoleAssistant
		}
		content := m.Content
		out = append(out, anthropic.Message{
			Role:    role,
			Content: []anthropic.MessageContent{{Type: "text", Text: &content}},
		})
	}
	return system.String(), out
}

func extractAnthropicText(resp anthropic.MessagesResponse) string {
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			sb.WriteString(*block.Text)
		}
	}
	return sb.String()
}

// GenerateText implements Provider.
func (p *AnthropicProvider) GenerateText(ctx context.Context, messages []Message, temperature float64, maxTokens int) (*Result, error) {
	system, anthropicMessages := toAnthropicMessages(messages)

	start := time.Now()
	p.logger.Debug("request", zap.String("model", p.model), zap.Int("messages", len(anthropicMessages)))

	temp := float32(temperature)
	resp, err := p.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       p.model,
		System:      system,
		Messages:    anthropicMessages,
		MaxTokens:   maxTokens,
		Temperature: &temp,
	})
	if err != nil {
		p.logger.Error("request failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return nil, ClassifyError(err)
	}

	content := extractAnthropicText(resp)
	if content == "" {
		return nil, NewError(ErrorTypeUnknown, "no text content in response", false, nil)
	}

	p.logger.Info("request completed",
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return &Result{
		Content:          content,
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}, nil
}

// GenerateStructured implements Provider. go-anthropic/v2 has no call site
// anywhere in the pack using tool-use or a schema-constrained response mode
// (the two teacher scripts that use it both request freeform JSON and parse
// it by hand), so this follows that same grounded pattern: the WireSchema is
// rendered as a JSON Schema document and appended to the prompt as an
// instruction, the model is asked to return only JSON, and the raw text is
// handed back in Result.Content for the caller to extract and validate
// against schema.Validator.
func (p *AnthropicProvider) GenerateStructured(ctx context.Context, messages []Message, wireSchema *schema.WireSchema, temperature float64, maxTokens int) (*Result, error) {
	doc := schema.ToJSONSchemaDoc(wireSchema)
	instruction := fmt.Sprintf(
		"\n\nYour response must be a single JSON object conforming to this JSON Schema:\n%s\n\nReturn ONLY the JSON object, with no surrounding prose or markdown fences.",
		mustMarshalJSON(doc),
	)

	augmented := make([]Message, len(messages))
	copy(augmented, messages)
	if len(augmented) > 0 {
		last := len(augmented) - 1
		augmented[last].Content += instruction
	}

	result, err := p.GenerateText(ctx, augmented, temperature, maxTokens)
	if err != nil {
		return nil, err
	}
	result.Content = extractJSONObject(result.Content)
	return result, nil
}

// mustMarshalJSON renders doc as JSON for prompt embedding, falling back to
// a Go-syntax dump in the unreachable case that a schema document (built
// entirely from maps, slices, strings, and numbers) fails to marshal.
func mustMarshalJSON(doc map[string]interface{}) string {
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Sprintf("%v", doc)
	}
	return string(b)
}

// extractJSONObject pulls the outermost {...} span out of text, mirroring
// the teacher's extractJSON helper (scripts/assess-extraction/main.go):
// models asked for "ONLY JSON" still sometimes wrap it in prose or fences.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

// Model implements Provider.
func (p *AnthropicProvider) Model() string { return p.model }

// CountTokens implements Provider. Anthropic models have no tiktoken
// encoding registered, so this always uses the 4-chars/token approximation.
func (p *AnthropicProvider) CountTokens(text string) int {
	return CountTokensApprox(text)
}

// MaxContextTokens implements Provider.
func (p *AnthropicProvider) MaxContextTokens() int {
	return ModelContextWindow(p.model)
}
