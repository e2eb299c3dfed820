// Command agentflow-simulate drives synthetic load through a gateway
// pipeline wired to in-process mockprovider.Provider transports, so
// routing, caching, and breaker behavior can be observed end to end
// without any real upstream.
package main

import (
	"context"
	"flag"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BaSui01/agentflow-gateway/gateway/cache"
	"github.com/BaSui01/agentflow-gateway/gateway/mockprovider"
	"github.com/BaSui01/agentflow-gateway/gateway/pipeline"
	"github.com/BaSui01/agentflow-gateway/gateway/router"
	"github.com/BaSui01/agentflow-gateway/gateway/stats"
	"github.com/BaSui01/agentflow-gateway/gateway/transport"
	"github.com/BaSui01/agentflow-gateway/gateway/types"
	"go.uber.org/zap"
)

func main() {
	concurrency := flag.Int("concurrency", 16, "number of concurrent simulated clients")
	requests := flag.Int("requests", 2000, "total requests to send")
	models := flag.String("model", "gpt-4o-mini", "model name every request asks for")
	promptPool := flag.Int("prompt-pool", 50, "number of distinct prompts to cycle through (smaller pool raises cache hit rate)")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	r := router.New(demoSnapshot(), 5)
	pl := pipeline.New(r, cache.New(cache.DefaultCapacity, cache.DefaultTTL), demoTransport{}, nil, logger)

	var (
		ok, failed uint64
		wg         sync.WaitGroup
		sem        = make(chan struct{}, *concurrency)
	)

	start := time.Now()
	for i := 0; i < *requests; i++ {
		sem <- struct{}{}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			req := types.Request{
				Model:  *models,
				Prompt: fmt.Sprintf("prompt-%d", i%*promptPool),
			}
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()

			if _, err := pl.Execute(ctx, req); err != nil {
				atomic.AddUint64(&failed, 1)
			} else {
				atomic.AddUint64(&ok, 1)
			}
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	fmt.Printf("requests=%d ok=%d failed=%d elapsed=%s rps=%.1f\n",
		*requests, ok, failed, elapsed, float64(*requests)/elapsed.Seconds())

	for _, e := range r.Snapshot().Entries {
		v := e.Stats.Snapshot()
		fmt.Printf("provider=%-10s requests=%-6d errors=%-4d ewma_latency_us=%-8d\n",
			e.Descriptor.ID, v.Requests, v.Errors, v.EWMALatencyUs)
	}
}

// demoSnapshot configures three providers spanning the cheap/slow,
// expensive/fast, and flaky corners of the scoring space, so a simulated
// run exercises both the router's cost/latency tradeoff and the breaker's
// fallback path.
func demoSnapshot() router.Snapshot {
	return router.Snapshot{
		Entries: []router.Entry{
			{
				Descriptor: types.ProviderDescriptor{
					ID:              "cheap-slow",
					SupportedModels: []string{"gpt-4o-mini"},
					CostPer1kMicro:  200,
					Kind:            types.KindOpenAI,
				},
				Stats: &stats.Tracker{},
			},
			{
				Descriptor: types.ProviderDescriptor{
					ID:              "pricey-fast",
					SupportedModels: []string{"gpt-4o-mini"},
					CostPer1kMicro:  4000,
					Kind:            types.KindOpenAI,
				},
				Stats: &stats.Tracker{},
			},
			{
				Descriptor: types.ProviderDescriptor{
					ID:              "flaky",
					SupportedModels: []string{"gpt-4o-mini"},
					CostPer1kMicro:  100,
					Kind:            types.KindAnthropic,
				},
				Stats: &stats.Tracker{},
			},
		},
	}
}

// demoTransport dispatches each call to a per-provider mockprovider.Provider
// tuned to match the latency/failure profile its ID implies.
type demoTransport struct{}

var providers = map[string]*mockprovider.Provider{
	"cheap-slow":  {Latency: 120 * time.Millisecond},
	"pricey-fast": {Latency: 15 * time.Millisecond},
	"flaky":       {Latency: 25 * time.Millisecond, FailEvery: 4, FailKind: transport.ProviderHTTPError},
}

func (demoTransport) Call(ctx context.Context, provider types.ProviderDescriptor, req types.Request) (types.Response, error) {
	p, ok := providers[provider.ID]
	if !ok {
		return types.Response{}, fmt.Errorf("agentflow-simulate: no mock wired for provider %q", provider.ID)
	}
	return p.Call(ctx, provider, req)
}

var _ transport.Transport = demoTransport{}
