package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	oaioption "github.com/openai/openai-go/option"
)

// OpenAICompleter calls the chat completions API of OpenAI or of any
// server compatible with it, selected by baseURL
type OpenAICompleter struct {
	client openai.Client
}

func NewOpenAICompleter(apiKey, baseURL string, opts ...oaioption.RequestOption) *OpenAICompleter {
	base := []oaioption.RequestOption{oaioption.WithAPIKey(apiKey)}
	if baseURL != "" {
		base = append(base, oaioption.WithBaseURL(baseURL))
	}
	return &OpenAICompleter{
		client: openai.NewClient(append(base, opts...)...),
	}
}

func (p *OpenAICompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	completion, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(req.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
		MaxTokens:   openai.Int(int64(req.MaxTokens)),
		Temperature: openai.Float(req.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("openai API call failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("openai API returned no choices")
	}
	return completion.Choices[0].Message.Content, nil
}
