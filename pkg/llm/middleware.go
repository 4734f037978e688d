package llm

import (
	"context"
	"strings"
	"time"

	"interviewd/pkg/llm/llmerrors"
	"interviewd/pkg/logx"
)

// Middleware wraps a Client with additional behavior. Middlewares are
// composed with Chain(); earlier middlewares are outermost.
type Middleware func(next Client) Client

// clientFunc adapts a function to the Client interface while preserving the
// wrapped client's name.
type clientFunc struct {
	name     string
	complete func(context.Context, CompletionRequest) (CompletionResponse, error)
}

func (f clientFunc) Name() string {
	return f.name
}

func (f clientFunc) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	return f.complete(ctx, req)
}

// Chain composes middlewares around a base client:
// Chain(client, mw1, mw2) yields the call stack mw1 -> mw2 -> client.
func Chain(base Client, middlewares ...Middleware) Client {
	client := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		client = middlewares[i](client)
	}
	return client
}

// Recorder receives one observation per provider attempt.
type Recorder interface {
	ObserveCall(provider string, mode Mode, promptText, completionText string, err error, duration time.Duration)
}

// WithMetrics records every attempt against a Recorder.
func WithMetrics(recorder Recorder) Middleware {
	return func(next Client) Client {
		return clientFunc{
			name: next.Name(),
			complete: func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				start := time.Now()
				resp, err := next.Complete(ctx, req)
				recorder.ObserveCall(next.Name(), req.Mode, joinContent(req.Messages), resp.Content, err, time.Since(start))
				return resp, err
			},
		}
	}
}

// WithLogging logs attempt outcomes at debug level and failures at warn.
func WithLogging() Middleware {
	return func(next Client) Client {
		logger := logx.NewLogger("llm." + next.Name())
		return clientFunc{
			name: next.Name(),
			complete: func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				start := time.Now()
				resp, err := next.Complete(ctx, req)
				if err != nil {
					logger.Warn("completion failed after %v (%s): %v", time.Since(start), llmerrors.TypeOf(err), err)
					return resp, err
				}
				logger.Debug("completion in %v (%d messages, %d chars)", time.Since(start), len(req.Messages), len(resp.Content))
				return resp, nil
			},
		}
	}
}

func joinContent(messages []CompletionMessage) string {
	var b strings.Builder
	for i := range messages {
		b.WriteString(messages[i].Content)
		b.WriteByte('\n')
	}
	return b.String()
}
