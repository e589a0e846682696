package llm

import (
	"testing"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/stretchr/testify/assert"
)

func TestToAnthropicMessages_SplitsSystemFromConversation(t *testing.T) {
	system, msgs := toAnthropicMessages([]Message{
		{Role: RoleSystem, Content: "be terse"},
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: "hi there"},
	})

	assert.Equal(t, "be terse", system)
	if assert.Len(t, msgs, 2) {
		assert.Equal(t, anthropic.RoleUser, msgs[0].Role)
		assert.Equal(t, "hello", *msgs[0].Content[0].Text)
		assert.Equal(t, anthropic.RoleAssistant, msgs[1].Role)
		assert.Equal(t, "hi there", *msgs[1].Content[0].Text)
	}
}

func TestToAnthropicMessages_MultipleSystemMessagesJoined(t *testing.T) {
	system, _ := toAnthropicMessages([]Message{
		{Role: RoleSystem, Content: "first"},
		{Role: RoleSystem, Content: "second"},
	})
	assert.Equal(t, "first\nsecond", system)
}

func TestExtractAnthropicText_ConcatenatesTextBlocks(t *testing.T) {
	a, b := "hello ", "world"
	resp := anthropic.MessagesResponse{
		Content: []anthropic.MessageContent{
			{Type: "text", Text: &a},
			{Type: "text", Text: &b},
		},
	}
	assert.Equal(t, "hello world", extractAnthropicText(resp))
}

func TestExtractJSONObject_StripsSurroundingProse(t *testing.T) {
	text := "Sure, here you go:\n```json\n{\"a\": 1}\n```\nLet me know if that helps."
	assert.Equal(t, `{"a": 1}`, extractJSONObject(text))
}

func TestExtractJSONObject_NoBracesReturnsInputUnchanged(t *testing.T) {
	assert.Equal(t, "no json here", extractJSONObject("no json here"))
}

func TestAnthropicProvider_ModelAndContextWindow(t *testing.T) {
	p := &AnthropicProvider{model: "claude-3-5-sonnet"}
	assert.Equal(t, "claude-3-5-sonnet", p.Model())
	assert.Equal(t, 200000, p.MaxContextTokens())
}

func TestAnthropicProvider_CountTokensUsesApproximation(t *testing.T) {
	p := &AnthropicProvider{model: "claude-3-5-sonnet"}
	assert.Equal(t, CountTokensApprox("hello world"), p.CountTokens("hello world"))
}

func TestMustMarshalJSON_RendersDocument(t *testing.T) {
	out := mustMarshalJSON(map[string]interface{}{"type": "object"})
	assert.Equal(t, `{"type":"object"}`, out)
}
