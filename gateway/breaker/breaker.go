// Package breaker derives provider health from the stats package's
// consecutive-error counter. There is no half-open state in this core
// predicate; recovery is implicit: the first recorded success resets
// consecutive_errors to 0, which immediately restores health. A richer
// closed/open/half-open machine lives in statemachine.go as an opt-in
// outer guard for callers that want probe-based recovery.
package breaker

import "github.com/BaSui01/agentflow-gateway/gateway/stats"

// DefaultThreshold is the consecutive-error count that trips the breaker;
// the next success clears it.
const DefaultThreshold = 5

// Healthy reports whether a provider is eligible for routing given its
// current stats view. It is a pure predicate over already-read counters,
// never itself a stored state.
func Healthy(v stats.View, threshold uint64) bool {
	return v.ConsecutiveErrors < threshold
}
