package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/BaSui01/agentflow-gateway/gateway/breaker"
	"github.com/BaSui01/agentflow-gateway/gateway/types"
	"go.uber.org/zap"
)

// openAICompatRequest is the minimal OpenAI-compatible chat completion
// body, limited to the fields the gateway's Request type carries.
type openAICompatRequest struct {
	Model       string                `json:"model"`
	Messages    []openAICompatMessage `json:"messages"`
	Temperature float32               `json:"temperature,omitempty"`
	MaxTokens   int                   `json:"max_tokens,omitempty"`
}

type openAICompatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAICompatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// anthropicRequest is the minimal Anthropic messages-API body.
type anthropicRequest struct {
	Model       string                `json:"model"`
	Messages    []openAICompatMessage `json:"messages"`
	Temperature float32               `json:"temperature,omitempty"`
	MaxTokens   int                   `json:"max_tokens"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// formatStrategy builds the outbound body and parses the inbound one for a
// single ProviderKind.
type formatStrategy struct {
	buildBody func(req types.Request) (any, error)
	parseBody func(body []byte) (types.Response, error)
}

var strategies = map[types.ProviderKind]formatStrategy{
	types.KindOpenAI:    {buildBody: openaiFormat, parseBody: openaiParse},
	types.KindGeneric:   {buildBody: openaiFormat, parseBody: openaiParse},
	types.KindAnthropic: {buildBody: anthropicFormat, parseBody: anthropicParse},
}

func openaiFormat(req types.Request) (any, error) {
	if req.MaxTokens < 0 {
		return nil, errors.New("transport: negative max_tokens")
	}
	return openAICompatRequest{
		Model:       req.Model,
		Messages:    []openAICompatMessage{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}, nil
}

func openaiParse(body []byte) (types.Response, error) {
	var parsed openAICompatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return types.Response{}, err
	}
	if len(parsed.Choices) == 0 {
		return types.Response{}, errors.New("transport: no choices in response")
	}
	return types.Response{
		Text: parsed.Choices[0].Message.Content,
		Usage: types.Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
		},
	}, nil
}

func anthropicFormat(req types.Request) (any, error) {
	if req.MaxTokens < 0 {
		return nil, errors.New("transport: negative max_tokens")
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}
	return anthropicRequest{
		Model:       req.Model,
		Messages:    []openAICompatMessage{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
		MaxTokens:   maxTokens,
	}, nil
}

func anthropicParse(body []byte) (types.Response, error) {
	var parsed anthropicResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return types.Response{}, err
	}
	if len(parsed.Content) == 0 {
		return types.Response{}, errors.New("transport: no content in response")
	}
	return types.Response{
		Text: parsed.Content[0].Text,
		Usage: types.Usage{
			PromptTokens:     parsed.Usage.InputTokens,
			CompletionTokens: parsed.Usage.OutputTokens,
		},
	}, nil
}

// HTTPTransport is a concrete Transport backed by net/http, formatting the
// outbound body per ProviderKind via the strategy table above.
//
// When built via NewHTTPTransportWithBreaker, Call additionally wraps each
// outbound dial in a per-provider breaker.StateMachine with half-open,
// probe-based recovery. This is strictly an optional outer guard: the
// router's health filtering and the pipeline's stats bookkeeping work the
// same with or without it, and a provider the breaker has opened still
// participates in routing decisions; only this transport refuses to dial
// it until its reset timeout elapses.
type HTTPTransport struct {
	client *http.Client

	breakerCfg *breaker.MachineConfig
	logger     *zap.Logger
	breakersMu sync.Mutex
	breakers   map[string]*breaker.StateMachine
}

// NewHTTPTransport builds an HTTPTransport with no per-provider circuit
// breaker guard; Call relies solely on the router's health-based filtering
// (gateway/breaker.Healthy over gateway/stats) to steer traffic away from
// failing providers. A nil client defaults to &http.Client{} with no
// client-side timeout; the deadline on ctx passed to Call is what actually
// bounds the request.
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPTransport{client: client}
}

// NewHTTPTransportWithBreaker builds an HTTPTransport that wraps every
// outbound call in a per-provider breaker.StateMachine, constructed
// lazily on first use. A nil cfg uses breaker.DefaultMachineConfig; a nil
// logger is replaced with a no-op logger.
func NewHTTPTransportWithBreaker(client *http.Client, cfg *breaker.MachineConfig, logger *zap.Logger) *HTTPTransport {
	t := NewHTTPTransport(client)
	if cfg == nil {
		cfg = breaker.DefaultMachineConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	t.breakerCfg = cfg
	t.logger = logger
	t.breakers = make(map[string]*breaker.StateMachine)
	return t
}

func (t *HTTPTransport) breakerFor(providerID string) *breaker.StateMachine {
	t.breakersMu.Lock()
	defer t.breakersMu.Unlock()
	b, ok := t.breakers[providerID]
	if !ok {
		b = breaker.NewStateMachine(t.breakerCfg, t.logger.With(zap.String("provider_id", providerID)))
		t.breakers[providerID] = b
	}
	return b
}

// Call implements Transport. If this HTTPTransport was built with a
// breaker guard, the dial is routed through that provider's StateMachine;
// otherwise it dials directly.
func (t *HTTPTransport) Call(ctx context.Context, provider types.ProviderDescriptor, req types.Request) (types.Response, error) {
	if t.breakers == nil {
		return t.dial(ctx, provider, req)
	}

	var resp types.Response
	callErr := t.breakerFor(provider.ID).Call(ctx, func(callCtx context.Context) error {
		var err error
		resp, err = t.dial(callCtx, provider, req)
		return err
	})
	if callErr == nil {
		return resp, nil
	}

	var transportErr *Error
	if errors.As(callErr, &transportErr) {
		return types.Response{}, transportErr
	}
	if errors.Is(callErr, breaker.ErrOpen) || errors.Is(callErr, breaker.ErrTooManyHalfOpenCalls) {
		return types.Response{}, &Error{Kind: NetworkError, Cause: callErr}
	}
	// Anything else reaching here is the StateMachine's own timeout wrap.
	return types.Response{}, &Error{Kind: Timeout, Cause: callErr}
}

// dial performs the actual marshal/POST/unmarshal sequence against one
// provider, with no circuit-breaker involvement.
func (t *HTTPTransport) dial(ctx context.Context, provider types.ProviderDescriptor, req types.Request) (types.Response, error) {
	strategy, ok := strategies[provider.Kind]
	if !ok {
		strategy = strategies[types.KindGeneric]
	}

	body, err := strategy.buildBody(req)
	if err != nil {
		return types.Response{}, &Error{Kind: MalformedResponse, Cause: err}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return types.Response{}, &Error{Kind: MalformedResponse, Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, provider.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return types.Response{}, &Error{Kind: NetworkError, Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return types.Response{}, &Error{Kind: Timeout, Cause: ctx.Err()}
		}
		return types.Response{}, &Error{Kind: NetworkError, Cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.Response{}, &Error{Kind: NetworkError, Cause: err}
	}

	if resp.StatusCode >= 400 {
		return types.Response{}, &Error{
			Kind:       ProviderHTTPError,
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("provider returned status %d", resp.StatusCode),
		}
	}

	parsed, err := strategy.parseBody(respBody)
	if err != nil {
		return types.Response{}, &Error{Kind: MalformedResponse, Cause: err}
	}
	parsed.ProviderID = provider.ID
	return parsed, nil
}
