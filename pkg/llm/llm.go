// Package llm defines the provider contract for interview text generation
// and the router that fails over between providers.
package llm

import (
	"context"
)

// CompletionRole represents the role of a message in a conversation.
type CompletionRole string

const (
	// RoleSystem provides instructions or context to the model.
	RoleSystem CompletionRole = "system"
	// RoleUser is the candidate side of the conversation.
	RoleUser CompletionRole = "user"
	// RoleAssistant is the interviewer side of the conversation.
	RoleAssistant CompletionRole = "assistant"
)

// Mode selects what the provider should generate.
type Mode string

const (
	// ModeQuestion asks for the next interviewer question.
	ModeQuestion Mode = "question"
	// ModeFeedback asks for the final feedback and score.
	ModeFeedback Mode = "feedback"
)

// CompletionMessage is one message in a completion request.
type CompletionMessage struct {
	Role    CompletionRole
	Content string
}

// CompletionRequest is a request to generate a completion.
type CompletionRequest struct {
	Messages    []CompletionMessage
	Mode        Mode
	Temperature float32
	MaxTokens   int
}

// CompletionResponse is the provider's answer.
type CompletionResponse struct {
	Content string
}

// Client is the uniform interface to a text-generation backend. Clients hold
// no per-call state and are safe for concurrent use across sessions.
type Client interface {
	// Name identifies the provider for session metadata and observability.
	Name() string

	// Complete generates a completion synchronously. Failures are classified
	// llmerrors values.
	Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error)
}

// NewCompletionRequest creates a completion request with default generation
// parameters.
func NewCompletionRequest(messages []CompletionMessage, mode Mode) CompletionRequest {
	return CompletionRequest{
		Messages:    messages,
		Mode:        mode,
		MaxTokens:   1024,
		Temperature: 0.7,
	}
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleUser, Content: content}
}
