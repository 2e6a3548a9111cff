package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	goopenai "github.com/sashabaranov/go-openai"

	"lorekeeper/internal/extract"
)

const DefaultModel = "gpt-4o"

type Options struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float32
	MaxTokens   int
}

// Extractor asks an OpenAI-compatible chat completion endpoint for a JSON
// candidate payload.
type Extractor struct {
	client      *goopenai.Client
	model       string
	temperature float32
	maxTokens   int
}

var _ extract.Extractor = (*Extractor)(nil)

func New(opts Options) (*Extractor, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("openai extractor requires an API key (OPENAI_API_KEY)")
	}
	config := goopenai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		config.BaseURL = opts.BaseURL
	}
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	temperature := opts.Temperature
	if temperature == 0 {
		temperature = extract.DefaultTemperature
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = extract.DefaultMaxTokens
	}
	return &Extractor{
		client:      goopenai.NewClientWithConfig(config),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}, nil
}

func (e *Extractor) Extract(ctx context.Context, storyID, text string) (*extract.Batch, error) {
	if err := extract.CheckInput(text); err != nil {
		return nil, err
	}
	req := goopenai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: e.temperature,
		MaxTokens:   e.maxTokens,
		Messages: []goopenai.ChatCompletionMessage{
			{
				Role:    goopenai.ChatMessageRoleSystem,
				Content: extract.SystemPrompt(),
			},
			{
				Role:    goopenai.ChatMessageRoleUser,
				Content: extract.UserPrompt(storyID, text),
			},
		},
	}
	resp, err := e.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, classify(fmt.Errorf("openai chat completion: %w", err))
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}
	return extract.ParsePayload(resp.Choices[0].Message.Content)
}

// classify marks client errors other than rate limiting and timeouts as
// permanent.
func classify(err error) error {
	status := 0
	var apiErr *goopenai.APIError
	var reqErr *goopenai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status >= 400 && status < 500 && status != http.StatusTooManyRequests && status != http.StatusRequestTimeout {
		return extract.Permanent(err)
	}
	return err
}
