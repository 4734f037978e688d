// Package anthropic provides an alternate cloud provider backed by the
// Anthropic Claude API, selectable via configuration.
package anthropic

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"interviewd/pkg/llm"
	"interviewd/pkg/llm/llmerrors"
)

// ProviderName identifies this client in router metadata.
const ProviderName = "anthropic"

// Client wraps the Anthropic SDK to implement llm.Client.
type Client struct {
	client anthropic.Client
	model  anthropic.Model
}

// New creates an Anthropic client for the given model
// (e.g. "claude-3-5-haiku-latest").
func New(apiKey, model string) *Client {
	return &Client{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
	}
}

// Name implements llm.Client.
func (c *Client) Name() string {
	return ProviderName
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if len(in.Messages) == 0 {
		return llm.CompletionResponse{}, llmerrors.New(llmerrors.ErrorTypeInvalidResponse, "message list cannot be empty")
	}

	var system string
	messages := make([]anthropic.MessageParam, 0, len(in.Messages))
	for i := range in.Messages {
		msg := &in.Messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
		case llm.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	// The API requires a user turn to respond to.
	if len(messages) == 0 || messages[0].Role != anthropic.MessageParamRoleUser {
		opening := anthropic.NewUserMessage(anthropic.NewTextBlock("Please begin the interview."))
		messages = append([]anthropic.MessageParam{opening}, messages...)
	}

	params := anthropic.MessageNewParams{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   int64(in.MaxTokens),
		Temperature: anthropic.Float(float64(in.Temperature)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(ctx, err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return llm.CompletionResponse{}, llmerrors.New(llmerrors.ErrorTypeInvalidResponse, "empty response from Claude API")
	}

	var text strings.Builder
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}

	content := strings.TrimSpace(text.String())
	if content == "" {
		return llm.CompletionResponse{}, llmerrors.New(llmerrors.ErrorTypeInvalidResponse, "response contained no text blocks")
	}

	return llm.CompletionResponse{Content: content}, nil
}

func classifyError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return llmerrors.Wrap(llmerrors.ErrorTypeTimeout, err, "Claude request timed out")
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "connection refused"), strings.Contains(errStr, "no such host"):
		return llmerrors.Wrap(llmerrors.ErrorTypeUnavailable, err, "Claude API not reachable")
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline"):
		return llmerrors.Wrap(llmerrors.ErrorTypeTimeout, err, "Claude request timed out")
	default:
		return llmerrors.Wrap(llmerrors.ErrorTypeUnknown, err, "Claude API error")
	}
}
