package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/doctrail-go/enrichment-engine/pkg/schema"
)

// GeminiProvider implements Provider over the Gemini API via the official
// google.golang.org/genai SDK. Grounded on the pack's two direct callers of
// that SDK (other_examples' vivaneiona-genkit-unstruct and
// cloudshipai-station faker enricher): genai.NewClient with a ClientConfig,
// client.Models.GenerateContent(ctx, model, contents, config), and reading
// the answer off resp.Candidates[0].Content.Parts[0].Text.
type GeminiProvider struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// NewGeminiProvider constructs a GeminiProvider for model. ctx is used only
// to establish the client connection, mirroring cloudshipai-station's
// AIEnricher constructor.
func NewGeminiProvider(ctx context.Context, model, apiKey string, logger *zap.Logger) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiProvider{client: client, model: model, logger: logger.Named("llm.gemini")}, nil
}

func toGeminiContents(messages []Message) []*genai.Content {
	var contents []*genai.Content
	for _, m := range messages {
		role := genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromParts(
			[]*genai.Part{genai.NewPartFromText(m.Content)}, role))
	}
	return contents
}

func usageFrom(resp *genai.GenerateContentResponse) (prompt, completion int) {
	if resp == nil || resp.UsageMetadata == nil {
		return 0, 0
	}
	return int(resp.UsageMetadata.PromptTokenCount), int(resp.UsageMetadata.CandidatesTokenCount)
}

func firstCandidateText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", NewError(ErrorTypeUnknown, "no candidates in response", false, nil)
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", NewError(ErrorTypeUnknown, "no parts in candidate content", false, nil)
	}
	return candidate.Content.Parts[0].Text, nil
}

// GenerateText implements Provider.
func (p *GeminiProvider) GenerateText(ctx context.Context, messages []Message, temperature float64, maxTokens int) (*Result, error) {
	contents := toGeminiContents(messages)

	temp := float32(temperature)
	config := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: int32(maxTokens),
	}

	start := time.Now()
	p.logger.Debug("request", zap.String("model", p.model), zap.Int("messages", len(messages)))

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		p.logger.Error("request failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return nil, ClassifyError(err)
	}

	text, err := firstCandidateText(resp)
	if err != nil {
		return nil, err
	}

	promptTokens, completionTokens := usageFrom(resp)
	p.logger.Info("request completed",
		zap.Int("prompt_tokens", promptTokens),
		zap.Int("completion_tokens", completionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return &Result{
		Content:          text,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}, nil
}

// GenerateStructured implements Provider via genai's native JSON response
// mode (ResponseMIMEType: "application/json", demonstrated in
// other_examples' unstruct.go GenerateBytes). The WireSchema is rendered as
// a JSON Schema document and embedded in the prompt as an instruction so the
// model knows the shape to fill in; the caller still validates the returned
// JSON against schema.Validator.
func (p *GeminiProvider) GenerateStructured(ctx context.Context, messages []Message, wireSchema *schema.WireSchema, temperature float64, maxTokens int) (*Result, error) {
	doc := schema.ToJSONSchemaDoc(wireSchema)
	instruction := fmt.Sprintf(
		"\n\nRespond with a single JSON object conforming to this JSON Schema:\n%s",
		mustMarshalJSON(doc),
	)

	augmented := make([]Message, len(messages))
	copy(augmented, messages)
	if len(augmented) > 0 {
		last := len(augmented) - 1
		augmented[last].Content += instruction
	}

	contents := toGeminiContents(augmented)

	temp := float32(temperature)
	config := &genai.GenerateContentConfig{
		Temperature:      &temp,
		MaxOutputTokens:  int32(maxTokens),
		ResponseMIMEType: "application/json",
	}

	start := time.Now()
	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		p.logger.Error("structured request failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return nil, ClassifyError(err)
	}

	text, err := firstCandidateText(resp)
	if err != nil {
		return nil, err
	}

	promptTokens, completionTokens := usageFrom(resp)
	return &Result{
		Content:          text,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}, nil
}

// Model implements Provider.
func (p *GeminiProvider) Model() string { return p.model }

// CountTokens implements Provider. No registered tiktoken-go encoding covers
// Gemini models, so this always approximates.
func (p *GeminiProvider) CountTokens(text string) int {
	return CountTokensApprox(text)
}

// MaxContextTokens implements Provider.
func (p *GeminiProvider) MaxContextTokens() int {
	return ModelContextWindow(p.model)
}
