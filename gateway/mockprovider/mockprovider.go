// Package mockprovider is an in-process transport.Transport implementation
// for tests and the load simulator, configurable for latency and error
// rate without a real network call.
package mockprovider

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/BaSui01/agentflow-gateway/gateway/transport"
	"github.com/BaSui01/agentflow-gateway/gateway/types"
)

// Provider is a configurable fake upstream: it can be told to sleep before
// responding and to fail every Nth call. Safe for concurrent use.
type Provider struct {
	// Latency is how long Call sleeps before returning, simulating network
	// and inference time. Zero means return immediately.
	Latency time.Duration

	// FailEvery, if > 0, makes every FailEvery-th call return an error
	// instead of a response (call counter starts at 1).
	FailEvery int

	// FailKind is the transport.Kind reported when FailEvery triggers. Its
	// zero value is transport.Timeout; set explicitly for other kinds.
	FailKind transport.Kind

	calls atomic.Uint64
}

// Call implements transport.Transport.
func (p *Provider) Call(ctx context.Context, provider types.ProviderDescriptor, req types.Request) (types.Response, error) {
	n := p.calls.Add(1)

	if p.Latency > 0 {
		timer := time.NewTimer(p.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return types.Response{}, &transport.Error{Kind: transport.Timeout, Cause: ctx.Err()}
		case <-timer.C:
		}
	}

	if p.FailEvery > 0 && n%uint64(p.FailEvery) == 0 {
		return types.Response{}, &transport.Error{Kind: p.FailKind, Cause: errors.New("mockprovider: simulated failure")}
	}

	return types.Response{
		ProviderID: provider.ID,
		Text:       "mock response to: " + req.Prompt,
		Usage:      types.Usage{PromptTokens: len(req.Prompt), CompletionTokens: 8},
	}, nil
}

// Calls returns the number of times Call has been invoked.
func (p *Provider) Calls() uint64 {
	return p.calls.Load()
}

var _ transport.Transport = (*Provider)(nil)
