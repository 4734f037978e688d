package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockClient provides a controllable Client implementation for testing.
// Each call consumes the next scripted error (if non-nil) or response.
type MockClient struct {
	mu            sync.Mutex
	name          string
	responses     []CompletionResponse
	responseIndex int
	errors        []error
	errorIndex    int
	calls         int
}

// NewMockClient creates a mock with predefined responses and errors.
func NewMockClient(name string, responses []CompletionResponse, errors []error) *MockClient {
	return &MockClient{
		name:      name,
		responses: responses,
		errors:    errors,
	}
}

// Name implements Client.
func (m *MockClient) Name() string {
	return m.name
}

// Complete returns the next scripted response or error.
func (m *MockClient) Complete(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if m.errorIndex < len(m.errors) {
		err := m.errors[m.errorIndex]
		m.errorIndex++
		if err != nil {
			return CompletionResponse{}, err
		}
	}

	if m.responseIndex >= len(m.responses) {
		return CompletionResponse{}, fmt.Errorf("mock client %s: no more responses", m.name)
	}

	resp := m.responses[m.responseIndex]
	m.responseIndex++
	return resp, nil
}

// Calls returns how many times Complete was invoked.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
