package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/agentflow-gateway/gateway/pipeline"
	"github.com/BaSui01/agentflow-gateway/gateway/router"
	"github.com/BaSui01/agentflow-gateway/gateway/transport"
	"github.com/BaSui01/agentflow-gateway/gateway/types"
	"github.com/BaSui01/agentflow-gateway/internal/metrics"
	"github.com/BaSui01/agentflow-gateway/internal/obscfg"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server is the gateway's HTTP front end: a thin net/http layer that
// normalizes a chat-completion request, hands it to gateway/pipeline, and
// maps the outcome back to a status code (503 when no provider is
// available, 504 on provider timeout, 502 on other provider failures).
type Server struct {
	cfg    *obscfg.Config
	logger *zap.Logger

	pipeline  *pipeline.Pipeline
	router    *router.Router
	collector *metrics.Collector

	httpSrv    *http.Server
	metricsSrv *http.Server
}

// NewServer wires a Server from its collaborators.
func NewServer(cfg *obscfg.Config, r *router.Router, pl *pipeline.Pipeline, collector *metrics.Collector, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, router: r, pipeline: pl, collector: collector, logger: logger}
}

// Start launches the HTTP and metrics listeners in background goroutines
// and returns immediately, without waiting for either to bind; a listen
// error is logged, not returned.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/ready", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleHealth)
	mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)

	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
	)

	s.httpSrv = &http.Server{
		Addr:         s.cfg.Server.BindAddr,
		Handler:      handler,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	s.metricsSrv = &http.Server{Addr: ":9091", Handler: metricsMux}

	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", zap.Error(err))
		}
	}()
	go func() {
		if err := s.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	return nil
}

// Shutdown gracefully stops both listeners, bounded by ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var errs []error
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.metricsSrv != nil {
		if err := s.metricsSrv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// chatCompletionRequest is the inbound body: model plus either a messages
// array or a bare prompt.
type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Prompt      string        `json:"prompt"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Content  string       `json:"content"`
	Provider string       `json:"provider"`
	Usage    *types.Usage `json:"usage,omitempty"`
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body chatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if body.Model == "" {
		writeJSONError(w, http.StatusBadRequest, "model is required")
		return
	}

	req := types.Request{
		Model:       body.Model,
		Prompt:      normalizePrompt(body),
		Temperature: body.Temperature,
		MaxTokens:   body.MaxTokens,
	}

	resp, err := s.pipeline.Execute(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, chatCompletionResponse{
		Content:  resp.Text,
		Provider: resp.ProviderID,
		Usage:    &resp.Usage,
	})
}

// normalizePrompt collapses the inbound messages array (if present) into a
// single prompt string for fingerprinting and provider dispatch.
func normalizePrompt(body chatCompletionRequest) string {
	if len(body.Messages) == 0 {
		return body.Prompt
	}
	var b strings.Builder
	for i, m := range body.Messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, pipeline.ErrNoHealthyProvider) {
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	if kind, ok := pipeline.TransportKind(err); ok {
		switch kind {
		case transport.Timeout:
			writeJSONError(w, http.StatusGatewayTimeout, err.Error())
		default:
			writeJSONError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	writeJSONError(w, http.StatusBadGateway, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
