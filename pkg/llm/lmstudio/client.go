// Package lmstudio provides a local-model provider speaking the
// OpenAI-compatible API exposed by LM Studio (and similar local runtimes),
// using the official OpenAI Go package.
package lmstudio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"interviewd/pkg/llm"
	"interviewd/pkg/llm/llmerrors"
)

// ProviderName identifies this client in router metadata.
const ProviderName = "lmstudio"

// Client implements llm.Client against an OpenAI-compatible endpoint.
type Client struct {
	client openai.Client
	model  string
}

// New creates a client for an OpenAI-compatible server. baseURL should
// include the /v1 suffix (e.g. "http://localhost:1234/v1"). LM Studio
// ignores the API key but the header must be present.
func New(baseURL, model string) *Client {
	client := openai.NewClient(
		option.WithAPIKey("lm-studio"),
		option.WithBaseURL(baseURL),
	)
	return &Client{client: client, model: model}
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

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(in.Messages))
	for i := range in.Messages {
		msg := &in.Messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case llm.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    messages,
		Temperature: openai.Float(float64(in.Temperature)),
		MaxTokens:   openai.Int(int64(in.MaxTokens)),
	})
	if err != nil {
		return llm.CompletionResponse{}, classifyError(ctx, err)
	}

	if len(resp.Choices) == 0 {
		return llm.CompletionResponse{}, llmerrors.New(llmerrors.ErrorTypeInvalidResponse, "response contained no choices")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return llm.CompletionResponse{}, llmerrors.New(llmerrors.ErrorTypeInvalidResponse, "empty completion content")
	}

	return llm.CompletionResponse{Content: content}, nil
}

func classifyError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return llmerrors.Wrap(llmerrors.ErrorTypeTimeout, err, "request timed out")
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode >= 500 {
			return llmerrors.Wrap(llmerrors.ErrorTypeUnavailable, err, fmt.Sprintf("server error (status %d)", apiErr.StatusCode))
		}
		return llmerrors.Wrap(llmerrors.ErrorTypeUnknown, err, fmt.Sprintf("API error (status %d)", apiErr.StatusCode))
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "connection refused"), strings.Contains(errStr, "no such host"):
		return llmerrors.Wrap(llmerrors.ErrorTypeUnavailable, err, "server not reachable")
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline"):
		return llmerrors.Wrap(llmerrors.ErrorTypeTimeout, err, "request timed out")
	default:
		return llmerrors.Wrap(llmerrors.ErrorTypeUnknown, err, "API error")
	}
}
