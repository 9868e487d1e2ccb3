package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"daybrief/internal/domain/digest"
	"daybrief/internal/infra/ai/prompt"
)

const maxTokens = 2048

// Analyzer implements digest.Analyzer on the OpenAI chat completion API
// with a per-analyzer system prompt
type Analyzer struct {
	client *openai.Client
	model  string
	system string
}

func NewAnalyzer(apiKey, model, name string) *Analyzer {
	return &Analyzer{
		client: openai.NewClient(apiKey),
		model:  model,
		system: prompt.SystemPrompt(name),
	}
}

func (a *Analyzer) Analyze(ctx context.Context, data digest.Data, runCtx digest.Data) (digest.Data, error) {
	model := a.model
	if model == "" {
		model = "gpt-4o-mini"
	}
	req := openai.ChatCompletionRequest{
		Model: model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: a.system},
			{Role: openai.ChatMessageRoleUser, Content: prompt.UserPrompt(data, runCtx)},
		},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	content := resp.Choices[0].Message.Content
	var out digest.Data
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		// Model ignored the schema; keep the raw text usable downstream
		return digest.Data{"summary": content}, nil
	}
	return out, nil
}
