// Command agentflow-gateway runs the HTTP front end for the latency-optimized
// LLM gateway: POST /v1/chat/completions, backed by gateway/pipeline.
//
// Usage:
//
//	agentflow-gateway -config gateway.yaml
//	agentflow-gateway -bind :9000
package main
