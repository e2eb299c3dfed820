// Package transport is the gateway's external collaborator boundary: the
// single capability the pipeline needs from the outside world, a call to an
// upstream provider that honors a deadline and reports one of a closed set
// of failure kinds.
package transport

import (
	"context"
	"fmt"

	"github.com/BaSui01/agentflow-gateway/gateway/types"
)

// Transport performs a single completion call against an upstream provider.
// Implementations must honor ctx's deadline and return an *Error for every
// failure so the pipeline can classify the outcome without inspecting
// implementation-specific error types.
type Transport interface {
	Call(ctx context.Context, provider types.ProviderDescriptor, req types.Request) (types.Response, error)
}

// Kind enumerates the failure classes the pipeline distinguishes.
type Kind int

const (
	Timeout Kind = iota
	NetworkError
	ProviderHTTPError
	MalformedResponse
)

func (k Kind) String() string {
	switch k {
	case Timeout:
		return "timeout"
	case NetworkError:
		return "network_error"
	case ProviderHTTPError:
		return "provider_http_error"
	case MalformedResponse:
		return "malformed_response"
	default:
		return "unknown"
	}
}

// Error is the single error type every Transport implementation returns.
// StatusCode is only meaningful when Kind == ProviderHTTPError.
type Error struct {
	Kind       Kind
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	if e.Kind == ProviderHTTPError {
		return fmt.Sprintf("transport: %s (status=%d): %v", e.Kind, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("transport: %s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
