package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSystemPromptKnownAndFallback(t *testing.T) {
	for _, name := range []string{"news", "calendar", "tech", "newsletter", "coordinator"} {
		assert.NotEmpty(t, systemPrompts[name], name)
		assert.Equal(t, systemPrompts[name], SystemPrompt(name))
	}
	assert.Contains(t, SystemPrompt("unknown"), "data analyst")
}

func TestUserPromptEmbedsPayloadAndContext(t *testing.T) {
	out := UserPrompt(map[string]any{"items": []string{"a"}}, map[string]any{"location": "Oslo"})
	assert.Contains(t, out, `"items"`)
	assert.Contains(t, out, `"Oslo"`)
}
