// Package pipeline orchestrates a single request end to end: fingerprint,
// cache lookup, router selection, provider invocation, stats update, cache
// write, reply. The pipeline surfaces the single-attempt outcome: it never
// retries or falls back to a second provider, so its latency stays flat
// and predictable. Upstream clients retry, or a retry policy wraps it.
package pipeline

import (
	"context"
	"time"

	"github.com/BaSui01/agentflow-gateway/gateway/cache"
	"github.com/BaSui01/agentflow-gateway/gateway/router"
	"github.com/BaSui01/agentflow-gateway/gateway/transport"
	"github.com/BaSui01/agentflow-gateway/gateway/types"
	"github.com/BaSui01/agentflow-gateway/internal/metrics"
	"go.uber.org/zap"
)

// cacheType labels every metric this pipeline's cache emits; there is only
// one cache instance per pipeline today, but the label keeps room for a
// future secondary cache tier without an incompatible metric rename.
const cacheType = "semantic"

// DefaultCallTimeout is the per-call deadline applied to the transport
// invocation when Pipeline.CallTimeout is zero.
const DefaultCallTimeout = 5 * time.Second

// Pipeline wires the router, cache, transport, and stats flow for one
// request, plus the metrics.Collector it is uniquely positioned to feed
// the provider-call and cache-hit/miss dimensions of (the HTTP dimension
// is recorded by cmd/agentflow-gateway's MetricsMiddleware instead, since
// only the HTTP layer sees request/response byte sizes). The zero value is
// not usable; build with New.
type Pipeline struct {
	Router      *router.Router
	Cache       *cache.Cache
	Transport   transport.Transport
	Metrics     *metrics.Collector
	Logger      *zap.Logger
	CallTimeout time.Duration
}

// New builds a Pipeline. A nil logger is replaced with a no-op logger; a
// zero CallTimeout falls back to DefaultCallTimeout at call time. A nil
// collector is valid (metrics recording is skipped entirely), so tests
// that don't care about metrics can pass nil.
func New(r *router.Router, c *cache.Cache, t transport.Transport, collector *metrics.Collector, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{Router: r, Cache: c, Transport: t, Metrics: collector, Logger: logger}
}

// Execute handles one request end to end: fingerprint, cache lookup
// (short-circuiting on a hit without touching stats or the router),
// provider selection, the timed transport call, stats update, and the
// cache write. Failures surface after the stats update; they are never
// cached.
func (p *Pipeline) Execute(ctx context.Context, req types.Request) (types.Response, error) {
	start := time.Now()
	fp := cache.NewFingerprint(req.Model, req.Prompt)

	if resp, ok := p.Cache.Get(fp); ok {
		if p.Metrics != nil {
			p.Metrics.RecordCacheHit(cacheType)
		}
		totalUs := elapsedUs(start)
		p.Logger.Info("cache hit",
			zap.String("model", req.Model),
			zap.Uint64("total_us", totalUs),
		)
		return resp, nil
	}
	if p.Metrics != nil {
		p.Metrics.RecordCacheMiss(cacheType)
	}

	entry, err := p.Router.Select(req)
	if err != nil {
		p.Logger.Warn("no healthy provider", zap.String("model", req.Model), zap.Error(err))
		return types.Response{}, ErrNoHealthyProvider
	}

	timeout := p.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	t0 := time.Now()
	resp, err := p.Transport.Call(callCtx, entry.Descriptor, req)
	dtUs := elapsedUs(t0)

	if err != nil {
		entry.Stats.RecordError()
		if p.Metrics != nil {
			p.Metrics.RecordProviderRequest(entry.Descriptor.ID, req.Model, "error", time.Duration(dtUs)*time.Microsecond, 0, 0)
		}
		p.Logger.Warn("provider call failed",
			zap.String("provider_id", entry.Descriptor.ID),
			zap.Error(err),
		)
		return types.Response{}, &ProviderError{ProviderID: entry.Descriptor.ID, Cause: err}
	}

	entry.Stats.RecordSuccess(dtUs)
	if p.Metrics != nil {
		p.Metrics.RecordProviderRequest(entry.Descriptor.ID, req.Model, "ok", time.Duration(dtUs)*time.Microsecond,
			resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}

	// A client cancellation observed only after the transport call itself
	// already succeeded still counts as success for routing purposes (the
	// call completed), but the response is for a request nobody is waiting
	// on anymore: skip the cache write.
	if ctx.Err() != nil {
		p.Logger.Info("request cancelled after provider success; skipping cache write",
			zap.String("provider_id", entry.Descriptor.ID),
		)
		return resp, nil
	}

	p.Cache.Put(fp, resp)

	totalUs := elapsedUs(start)
	p.Logger.Info("pipeline completed",
		zap.String("provider_id", entry.Descriptor.ID),
		zap.Uint64("dt_us", dtUs),
		zap.Uint64("overhead_us", totalUs-dtUs),
		zap.Uint64("total_us", totalUs),
	)

	return resp, nil
}

func elapsedUs(since time.Time) uint64 {
	d := time.Since(since).Microseconds()
	if d < 0 {
		return 0
	}
	return uint64(d)
}
