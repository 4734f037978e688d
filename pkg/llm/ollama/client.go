// Package ollama provides the local-model provider backed by an Ollama
// runtime.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"interviewd/pkg/llm"
	"interviewd/pkg/llm/llmerrors"
)

// ProviderName identifies this client in router metadata.
const ProviderName = "ollama"

// Client wraps the Ollama API client to implement llm.Client.
type Client struct {
	client *api.Client
	model  string
}

// New creates an Ollama client. hostURL is the Ollama server URL
// (e.g. "http://localhost:11434").
func New(hostURL, model string) *Client {
	parsedURL, err := url.Parse(hostURL)
	if err != nil {
		parsedURL, _ = url.Parse("http://localhost:11434")
	}
	return &Client{
		client: api.NewClient(parsedURL, http.DefaultClient),
		model:  model,
	}
}

// Name implements llm.Client.
func (o *Client) Name() string {
	return ProviderName
}

// Complete implements llm.Client.
func (o *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	messages, err := convertMessages(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.Wrap(llmerrors.ErrorTypeInvalidResponse, err, "message conversion error")
	}

	stream := false
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": in.Temperature,
			"num_predict": in.MaxTokens,
		},
	}

	var response api.ChatResponse
	err = o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return llm.CompletionResponse{}, classifyError(ctx, err)
	}

	content := strings.TrimSpace(response.Message.Content)
	if content == "" {
		return llm.CompletionResponse{}, llmerrors.New(llmerrors.ErrorTypeInvalidResponse, "empty response from Ollama")
	}

	return llm.CompletionResponse{Content: content}, nil
}

func convertMessages(messages []llm.CompletionMessage) ([]api.Message, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("message list cannot be empty")
	}

	result := make([]api.Message, len(messages))
	for i := range messages {
		result[i] = api.Message{
			Role:    string(messages[i].Role),
			Content: messages[i].Content,
		}
	}
	return result, nil
}

// classifyError converts Ollama errors to classified provider errors.
func classifyError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return llmerrors.Wrap(llmerrors.ErrorTypeTimeout, err, "Ollama request timed out")
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "connection refused"), strings.Contains(errStr, "no such host"):
		return llmerrors.Wrap(llmerrors.ErrorTypeUnavailable, err, "Ollama server not reachable")
	case strings.Contains(errStr, "timeout"):
		return llmerrors.Wrap(llmerrors.ErrorTypeTimeout, err, "Ollama request timed out")
	default:
		return llmerrors.Wrap(llmerrors.ErrorTypeUnknown, err, "Ollama API error")
	}
}
