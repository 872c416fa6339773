package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
)

const (
	// DefaultAnthropicModel is used when neither the client nor the
	// request names a model.
	DefaultAnthropicModel = "claude-sonnet-4-20250514"

	// anthropicDefaultMaxTokens applies when the request leaves
	// MaxTokens unset; the Anthropic API requires a positive value.
	anthropicDefaultMaxTokens = 1024
)

// AnthropicClient implements the LLM interface using the Anthropic
// messages API.
type AnthropicClient struct {
	client anthropic.Client
	model  string
}

// AnthropicOption is a functional option for configuring AnthropicClient.
type AnthropicOption func(*AnthropicClient)

// WithAnthropicModel sets the default model for the client.
func WithAnthropicModel(model string) AnthropicOption {
	return func(c *AnthropicClient) {
		c.model = model
	}
}

// NewAnthropicClient creates a new Anthropic LLM client.
func NewAnthropicClient(apiKey string, opts ...AnthropicOption) *AnthropicClient {
	c := &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  DefaultAnthropicModel,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Generate sends a prompt to Anthropic and returns the complete response.
func (c *AnthropicClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	model := opts.Model
	if model == "" {
		model = c.model
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model: anthropic.Model(model),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		MaxTokens: int64(maxTokens),
	}
	if opts.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: opts.SystemPrompt}}
	}
	if opts.Temperature > 0 {
		params.Temperature = param.NewOpt(float64(opts.Temperature))
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic API error: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("anthropic returned no text content")
	}

	return sb.String(), nil
}

// Ensure AnthropicClient implements LLM interface.
var _ LLM = (*AnthropicClient)(nil)
