// =============================================================================
// agentflow-gateway 主入口
// =============================================================================
// HTTP front end for the gateway pipeline: loads the static provider
// configuration, wires stats/cache/router/transport into a pipeline.Pipeline,
// and serves POST /v1/chat/completions until signaled to stop.
// =============================================================================

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/BaSui01/agentflow-gateway/gateway/cache"
	"github.com/BaSui01/agentflow-gateway/gateway/pipeline"
	"github.com/BaSui01/agentflow-gateway/gateway/router"
	"github.com/BaSui01/agentflow-gateway/gateway/stats"
	"github.com/BaSui01/agentflow-gateway/gateway/transport"
	"github.com/BaSui01/agentflow-gateway/gateway/types"
	"github.com/BaSui01/agentflow-gateway/internal/metrics"
	"github.com/BaSui01/agentflow-gateway/internal/obscfg"
	"github.com/BaSui01/agentflow-gateway/internal/telemetry"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	fs := flag.NewFlagSet("agentflow-gateway", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	bindOverride := fs.String("bind", "", "override the configured HTTP bind address")
	fs.Parse(os.Args[1:])

	loader := obscfg.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *bindOverride != "" {
		cfg.Server.BindAddr = *bindOverride
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("starting agentflow-gateway",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	r := router.New(snapshotFromConfig(cfg), cfg.Router.HealthThreshold)
	c := cache.New(cfg.Cache.Capacity, cfg.Cache.TTL)
	tr := transport.NewHTTPTransportWithBreaker(nil, nil, logger)
	collector := metrics.NewCollector("agentflow_gateway", logger)
	pl := pipeline.New(r, c, tr, collector, logger)

	srv := NewServer(cfg, r, pl, collector, logger)
	if err := srv.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
	logger.Info("server started", zap.String("bind_addr", cfg.Server.BindAddr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reloadOnSIGHUP(ctx, *configPath, r, logger)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx := context.Background()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	if err := otelProviders.Shutdown(shutdownCtx); err != nil {
		logger.Error("telemetry shutdown error", zap.Error(err))
	}
	logger.Info("agentflow-gateway stopped")
}

// snapshotFromConfig builds the router's initial Snapshot from the
// configured provider descriptors, one fresh stats.Tracker per provider.
func snapshotFromConfig(cfg *obscfg.Config) router.Snapshot {
	entries := make([]router.Entry, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		entries = append(entries, router.Entry{
			Descriptor: types.ProviderDescriptor{
				ID:              p.ID,
				Endpoint:        p.Endpoint,
				SupportedModels: p.SupportedModels,
				CostPer1kMicro:  p.CostPer1kMicro,
				Kind:            types.ProviderKind(p.Kind),
			},
			Stats: &stats.Tracker{},
		})
	}
	return router.Snapshot{Entries: entries}
}

// reloadOnSIGHUP re-reads the config file and atomically swaps the router's
// snapshot on SIGHUP. Existing per-provider stats are reset on reload since
// a reloaded descriptor set may add, remove, or repoint providers.
func reloadOnSIGHUP(ctx context.Context, configPath string, r *router.Router, logger *zap.Logger) {
	if configPath == "" {
		return
	}
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sighup:
				cfg, err := obscfg.NewLoader().WithConfigPath(configPath).Load()
				if err != nil {
					logger.Error("config reload failed", zap.Error(err))
					continue
				}
				r.Reload(snapshotFromConfig(cfg))
				logger.Info("router snapshot reloaded", zap.Int("providers", len(cfg.Providers)))
			}
		}
	}()
}

func initLogger(cfg obscfg.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoding = "console"
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapConfig.Build(zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
