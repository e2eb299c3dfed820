// Package types holds the immutable request/response/provider records shared
// across the gateway's cache, router, and pipeline packages.
package types

// ProviderKind tags which wire format the transport layer should use when
// talking to a provider's endpoint.
type ProviderKind string

const (
	KindOpenAI    ProviderKind = "openai"
	KindAnthropic ProviderKind = "anthropic"
	KindGeneric   ProviderKind = "generic"
)

// Request is an immutable completion request. Fields beyond Model and Prompt
// are copied through to the provider but never influence routing or the
// cache fingerprint.
type Request struct {
	Model       string
	Prompt      string
	Temperature float32
	MaxTokens   int
}

// Usage holds token counters. The transport may leave these zero when it
// cannot parse them from a provider's response body.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Response is an immutable completion result.
type Response struct {
	ProviderID string
	Text       string
	Usage      Usage
}

// ProviderDescriptor is the immutable configuration for one upstream
// provider. CostPer1kMicro is a non-negative rational expressed in
// micro-units of currency per 1000 tokens, so that routing scores stay
// integer arithmetic.
type ProviderDescriptor struct {
	ID              string
	Endpoint        string
	SupportedModels []string
	CostPer1kMicro  uint64
	Kind            ProviderKind
}

// SupportsModel reports whether the descriptor serves the given model.
func (d ProviderDescriptor) SupportsModel(model string) bool {
	for _, m := range d.SupportedModels {
		if m == model {
			return true
		}
	}
	return false
}
