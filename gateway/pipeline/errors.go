package pipeline

import (
	"errors"
	"fmt"

	"github.com/BaSui01/agentflow-gateway/gateway/transport"
)

// ErrNoHealthyProvider is returned when the router cannot find any provider
// supporting the requested model.
var ErrNoHealthyProvider = errors.New("pipeline: no healthy provider available")

// ErrMalformedRequest is reserved for upstream framing errors before the
// pipeline is entered; the pipeline itself never returns it, but callers
// (the HTTP front end) may wrap it the same way for a uniform error surface.
var ErrMalformedRequest = errors.New("pipeline: malformed request")

// ProviderError wraps a single failed provider attempt, carrying the
// provider id and the transport-level cause.
type ProviderError struct {
	ProviderID string
	Cause      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("pipeline: provider %s failed: %v", e.ProviderID, e.Cause)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// TransportKind extracts the transport.Kind from a ProviderError's cause,
// if any, so the HTTP front end can map timeouts to 504 and other provider
// failures to 502 without its own type switch.
func TransportKind(err error) (transport.Kind, bool) {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return 0, false
	}
	var tErr *transport.Error
	if !errors.As(pe.Cause, &tErr) {
		return 0, false
	}
	return tErr.Kind, true
}
