package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/genai"
)

func TestToGeminiContents_MapsRolesAndText(t *testing.T) {
	contents := toGeminiContents([]Message{
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: "hi there"},
	})

	if assert.Len(t, contents, 2) {
		assert.Equal(t, genai.RoleUser, contents[0].Role)
		assert.Equal(t, genai.RoleModel, contents[1].Role)
	}
}

func TestFirstCandidateText_NoCandidatesErrors(t *testing.T) {
	_, err := firstCandidateText(&genai.GenerateContentResponse{})
	assert.Error(t, err)
}

func TestFirstCandidateText_NilResponseErrors(t *testing.T) {
	_, err := firstCandidateText(nil)
	assert.Error(t, err)
}

func TestFirstCandidateText_EmptyContentPartsErrors(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: nil}},
		},
	}
	_, err := firstCandidateText(resp)
	assert.Error(t, err)
}

func TestFirstCandidateText_ReturnsTextFromFirstPart(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []*genai.Part{{Text: "hello world"}}}},
		},
	}
	text, err := firstCandidateText(resp)
	assert.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestUsageFrom_NilMetadataReturnsZero(t *testing.T) {
	prompt, completion := usageFrom(&genai.GenerateContentResponse{})
	assert.Equal(t, 0, prompt)
	assert.Equal(t, 0, completion)
}

func TestUsageFrom_NilResponseReturnsZero(t *testing.T) {
	prompt, completion := usageFrom(nil)
	assert.Equal(t, 0, prompt)
	assert.Equal(t, 0, completion)
}

func TestUsageFrom_ReadsPromptAndCandidateTokens(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     10,
			CandidatesTokenCount: 20,
		},
	}
	prompt, completion := usageFrom(resp)
	assert.Equal(t, 10, prompt)
	assert.Equal(t, 20, completion)
}

func TestGeminiProvider_ModelAndContextWindow(t *testing.T) {
	p := &GeminiProvider{model: "gemini-1.5-pro"}
	assert.Equal(t, "gemini-1.5-pro", p.Model())
	assert.Equal(t, 2000000, p.MaxContextTokens())
}

func TestGeminiProvider_CountTokensUsesApproximation(t *testing.T) {
	p := &GeminiProvider{model: "gemini-1.5-pro"}
	assert.Equal(t, CountTokensApprox("hello world"), p.CountTokens("hello world"))
}
