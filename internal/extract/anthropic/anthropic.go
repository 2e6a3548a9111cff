package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"lorekeeper/internal/extract"
)

const DefaultModel = "claude-sonnet-4-5"

type Options struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int64
}

// Extractor asks the Anthropic Messages API for a JSON candidate payload.
type Extractor struct {
	client    sdk.Client
	model     string
	maxTokens int64
}

var _ extract.Extractor = (*Extractor)(nil)

func New(opts Options) (*Extractor, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("anthropic extractor requires an API key (ANTHROPIC_API_KEY)")
	}
	requestOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		requestOpts = append(requestOpts, option.WithBaseURL(opts.BaseURL))
	}
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	return &Extractor{
		client:    sdk.NewClient(requestOpts...),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

func (e *Extractor) Extract(ctx context.Context, storyID, text string) (*extract.Batch, error) {
	if err := extract.CheckInput(text); err != nil {
		return nil, err
	}
	resp, err := e.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:       sdk.Model(e.model),
		MaxTokens:   e.maxTokens,
		Temperature: sdk.Float(extract.DefaultTemperature),
		System: []sdk.TextBlockParam{
			{Text: extract.SystemPrompt()},
		},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(extract.UserPrompt(storyID, text))),
		},
	})
	if err != nil {
		return nil, classify(fmt.Errorf("anthropic messages: %w", err))
	}

	var responseText strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			responseText.WriteString(block.Text)
		}
	}
	return extract.ParsePayload(responseText.String())
}

func classify(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		status := apiErr.StatusCode
		if status >= 400 && status < 500 && status != http.StatusTooManyRequests && status != http.StatusRequestTimeout {
			return extract.Permanent(err)
		}
	}
	return err
}
