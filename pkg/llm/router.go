package llm

import (
	"context"
	"time"

	"interviewd/pkg/llm/llmerrors"
	"interviewd/pkg/logx"
	"interviewd/pkg/proto"
)

// DefaultAttemptTimeout bounds a single provider attempt when no timeout is
// configured.
const DefaultAttemptTimeout = 30 * time.Second

// Result is a successful routed generation.
type Result struct {
	Text     string
	Provider string // name of the client that served the call
}

// Router selects a provider per call with automatic failover. The preference
// order is fixed at construction and re-applied on every call: a transient
// primary failure on one turn never pins later turns to the fallback, so the
// session self-heals once the primary recovers.
type Router struct {
	clients        []Client
	attemptTimeout time.Duration
	logger         *logx.Logger
}

// NewRouter creates a router over an ordered preference list of clients.
func NewRouter(clients []Client, attemptTimeout time.Duration) *Router {
	if attemptTimeout <= 0 {
		attemptTimeout = DefaultAttemptTimeout
	}
	return &Router{
		clients:        clients,
		attemptTimeout: attemptTimeout,
		logger:         logx.NewLogger("router"),
	}
}

// Providers returns the preference-ordered provider names.
func (r *Router) Providers() []string {
	names := make([]string, len(r.clients))
	for i, c := range r.clients {
		names[i] = c.Name()
	}
	return names
}

// Generate routes one generation call. Attempts are strictly sequential and
// each provider is tried at most once, bounding worst-case latency to the sum
// of per-provider timeouts. Recoverable failures (unavailable, timeout,
// invalid response) move to the next provider; anything else surfaces
// immediately. When the whole list fails the caller receives an
// *llmerrors.AllFailedError, never a silent fallback.
func (r *Router) Generate(ctx context.Context, turns []proto.Turn, mode Mode) (Result, error) {
	req := NewCompletionRequest(BuildMessages(turns, mode), mode)

	causes := make(map[string]error, len(r.clients))
	for _, client := range r.clients {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
		resp, err := client.Complete(attemptCtx, req)
		cancel()

		if err == nil {
			r.logger.Debug("call served by %s (mode=%s, turns=%d)", client.Name(), mode, len(turns))
			return Result{Text: resp.Content, Provider: client.Name()}, nil
		}

		if !llmerrors.Recoverable(err) {
			return Result{}, err
		}

		r.logger.Warn("provider %s failed (%s), trying next: %v", client.Name(), llmerrors.TypeOf(err), err)
		causes[client.Name()] = err
	}

	err := llmerrors.NewAllFailedError(causes)
	r.logger.Error("%v", err)
	return Result{}, err
}
