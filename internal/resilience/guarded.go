package resilience

import "context"

// toolCaller is the narrow shape *toolclient.Client satisfies. Kept
// unexported and minimal so this package never imports internal/toolclient
// (resilience sits below toolclient in the dependency graph; tying the
// guard to a concrete client would invert that).
type toolCaller interface {
	CallTool(ctx context.Context, toolName string, arguments map[string]any, dest any) error
	Name() string
}

// GuardedToolCaller wraps a remote tool client with the circuit breaker
// registry (C2) and retry executor (C3), so every agent and the price
// ticker loop (C11) calls through the same resilience fabric instead of
// hand-wiring breaker+retry at each call site. Grounded on spec.md
// section 2's data-flow line: "Agents inside workflows reach outward
// through C1 guarded by C2 and C3."
type GuardedToolCaller struct {
	client  toolCaller
	breaker *Registry
	profile RetryConfig
}

// NewGuardedToolCaller builds a GuardedToolCaller over client, keying
// circuit breaker state on client.Name() and retrying per profile (the
// "mcp" profile by default for every tool-server call, per spec.md
// section 4.3).
func NewGuardedToolCaller(client toolCaller, breaker *Registry, profile RetryConfig) *GuardedToolCaller {
	return &GuardedToolCaller{client: client, breaker: breaker, profile: profile}
}

// CallTool runs a single tool invocation through the breaker, retrying
// transient failures inside each breaker-permitted attempt. A CircuitOpen
// rejection short-circuits before any retry attempt is made.
func (g *GuardedToolCaller) CallTool(ctx context.Context, toolName string, arguments map[string]any, dest any) error {
	return g.breaker.Execute(ctx, g.client.Name(), func() error {
		return Retry(ctx, g.profile, func() error {
			return g.client.CallTool(ctx, toolName, arguments, dest)
		})
	})
}
