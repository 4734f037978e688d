// Package gemini provides the cloud provider backed by the Google Gemini
// API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"interviewd/pkg/llm"
	"interviewd/pkg/llm/llmerrors"
)

// ProviderName identifies this client in router metadata.
const ProviderName = "gemini"

// Client wraps the Google GenAI client to implement llm.Client.
type Client struct {
	mu     sync.Mutex
	client *genai.Client // created lazily; genai.NewClient requires a context
	apiKey string
	model  string
}

// New creates a Gemini client for the given model
// (e.g. "gemini-2.0-flash").
func New(apiKey, model string) *Client {
	return &Client{apiKey: apiKey, model: model}
}

// Name implements llm.Client.
func (g *Client) Name() string {
	return ProviderName
}

func (g *Client) getClient(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client != nil {
		return g.client, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, llmerrors.Wrap(llmerrors.ErrorTypeUnavailable, err, "failed to create Gemini client")
	}
	g.client = client
	return client, nil
}

// Complete implements llm.Client.
func (g *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	client, err := g.getClient(ctx)
	if err != nil {
		return llm.CompletionResponse{}, err
	}

	contents, systemInstruction, err := convertMessages(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.Wrap(llmerrors.ErrorTypeInvalidResponse, err, "message conversion error")
	}

	//nolint:gosec // MaxTokens bounded by config validation
	maxTokens := int32(in.MaxTokens)
	config := &genai.GenerateContentConfig{
		Temperature:     &in.Temperature,
		MaxOutputTokens: maxTokens,
	}
	if systemInstruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		}
	}

	result, err := client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(ctx, err)
	}
	if result == nil {
		return llm.CompletionResponse{}, llmerrors.New(llmerrors.ErrorTypeInvalidResponse, "nil response from Gemini API")
	}

	content := strings.TrimSpace(result.Text())
	if content == "" {
		return llm.CompletionResponse{}, llmerrors.New(llmerrors.ErrorTypeInvalidResponse, "empty response from Gemini API")
	}

	return llm.CompletionResponse{Content: content}, nil
}

// convertMessages converts completion messages to Gemini Content values.
// System messages become the system instruction.
func convertMessages(messages []llm.CompletionMessage) ([]*genai.Content, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("message list cannot be empty")
	}

	var systemInstruction string
	contents := make([]*genai.Content, 0, len(messages))

	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			if systemInstruction != "" {
				systemInstruction += "\n\n"
			}
			systemInstruction += msg.Content
		case llm.RoleAssistant:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		}
	}

	// Gemini requires the conversation to open with a user turn.
	if len(contents) == 0 || contents[0].Role != genai.RoleUser {
		opening := &genai.Content{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{{Text: "Please begin the interview."}},
		}
		contents = append([]*genai.Content{opening}, contents...)
	}

	return contents, systemInstruction, nil
}

func classifyError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return llmerrors.Wrap(llmerrors.ErrorTypeTimeout, err, "Gemini request timed out")
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "connection refused"), strings.Contains(errStr, "no such host"):
		return llmerrors.Wrap(llmerrors.ErrorTypeUnavailable, err, "Gemini API not reachable")
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline"):
		return llmerrors.Wrap(llmerrors.ErrorTypeTimeout, err, "Gemini request timed out")
	default:
		return llmerrors.Wrap(llmerrors.ErrorTypeUnknown, err, "Gemini API error")
	}
}
