package llm

import (
	"fmt"
	"strings"
)

// ProviderSpec describes one provider entry in the router's preference list.
type ProviderSpec struct {
	Name     string // "ollama", "lmstudio", "gemini", "anthropic"
	Endpoint string // base URL for local runtimes
	Model    string
	APIKey   string // cloud providers only
}

// ClientBuilder constructs a raw client for one provider spec. Concrete
// builders are registered by the client subpackages at wiring time, keeping
// this package free of SDK imports.
type ClientBuilder func(spec ProviderSpec) (Client, error)

// Factory creates provider clients with a consistent middleware stack.
type Factory struct {
	builders    map[string]ClientBuilder
	middlewares []Middleware
}

// NewFactory creates a factory. The given middlewares wrap every client it
// builds (metrics, logging).
func NewFactory(middlewares ...Middleware) *Factory {
	return &Factory{
		builders:    make(map[string]ClientBuilder),
		middlewares: middlewares,
	}
}

// Register adds a builder for a provider name.
func (f *Factory) Register(name string, builder ClientBuilder) {
	f.builders[strings.ToLower(name)] = builder
}

// CreateClient builds the wrapped client for one spec.
func (f *Factory) CreateClient(spec ProviderSpec) (Client, error) {
	builder, ok := f.builders[strings.ToLower(spec.Name)]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", spec.Name)
	}
	client, err := builder(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", spec.Name, err)
	}
	return Chain(client, f.middlewares...), nil
}

// CreateClients builds the full preference-ordered client list.
func (f *Factory) CreateClients(specs []ProviderSpec) ([]Client, error) {
	clients := make([]Client, 0, len(specs))
	for _, spec := range specs {
		client, err := f.CreateClient(spec)
		if err != nil {
			return nil, err
		}
		clients = append(clients, client)
	}
	return clients, nil
}
