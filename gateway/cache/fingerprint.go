package cache

import "lukechampine.com/blake3"

// fingerprintDomain separates this cache's fingerprints from any other use
// of BLAKE3 elsewhere in a process, and pins the hash to the routing-salient
// shape of a request (model then prompt) regardless of future field order.
const fingerprintDomain = "agentflow-gateway/semantic-cache/v1\x00"

// Fingerprint is the 32-byte cache key derived from a request's model and
// prompt. Generation parameters (temperature, max tokens) and any
// request-id/trace metadata never enter the hash.
type Fingerprint [32]byte

// NewFingerprint hashes the routing-salient fields of a request: the domain
// prefix, the model identifier, a NUL separator, and the prompt text.
func NewFingerprint(model, prompt string) Fingerprint {
	h := blake3.New(32, nil)
	_, _ = h.Write([]byte(fingerprintDomain))
	_, _ = h.Write([]byte(model))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(prompt))

	var fp Fingerprint
	copy(fp[:], h.Sum(nil))
	return fp
}
