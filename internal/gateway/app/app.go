package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"shiyin/internal/gateway/config"
	"shiyin/internal/gateway/handler"
	"shiyin/internal/gateway/server"
	"shiyin/internal/gateway/service/session"
	"shiyin/internal/generation"
	"shiyin/internal/llm"
	llmclient "shiyin/internal/llmClient"
	"shiyin/internal/orchestrator"
)

type App struct {
	server      *server.Server
	sessions    *session.Manager
	collections *collectionStore
	llm         llmclient.LLMClient
	log         *zap.Logger
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	a, err := build(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

func build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := llm.NewMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	raw, err := llmclient.New(ctx, llmclient.ProviderConfig{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize llm client: %w", err)
	}
	cli := llm.Stack(raw, llm.StackConfig{
		RPS:            cfg.LLM.RPS,
		Burst:          cfg.LLM.Burst,
		MaxAttempts:    cfg.LLM.MaxAttempts,
		BaseDelay:      500 * time.Millisecond,
		AttemptTimeout: cfg.LLM.Timeout,
		Breaker:        llm.BreakerConfig{ConsecutiveFailures: 5, OpenFor: 30 * time.Second},
		Metrics:        metrics,
		Logger:         logger.Named("llm"),
	})
	logger.Info("llm client ready", zap.String("client", raw.Name()))

	collections, err := initCollectionStore(ctx, cfg.Collection, logger)
	if err != nil {
		_ = cli.Close()
		return nil, err
	}

	genOpts := []generation.Option{generation.WithLogger(logger.Named("generation"))}
	if dir := strings.TrimSpace(cfg.LLM.PromptDir); dir != "" {
		rec, err := llm.NewPromptRecorder(dir, logger.Named("prompts"))
		if err != nil {
			_ = collections.Close()
			_ = cli.Close()
			return nil, err
		}
		genOpts = append(genOpts, generation.WithPromptRecorder(rec))
		logger.Info("recording llm prompts", zap.String("dir", dir))
	}

	sessions, err := session.NewManager(
		generation.New(cli, genOpts...),
		collections.store,
		session.Config{
			MaxSessions:  cfg.Session.Max,
			Orchestrator: orchestratorConfig(cfg.Session),
			Logger:       logger.Named("session"),
		},
	)
	if err != nil {
		_ = collections.Close()
		_ = cli.Close()
		return nil, err
	}

	router := server.NewRouter(server.RouterConfig{
		Sessions:       handler.NewSessionHandler(sessions, logger.Named("http")),
		Health:         handler.Health(sessions),
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Logger:         logger.Named("http"),
	})

	return &App{
		server:      server.New(cfg.Port, router, logger),
		sessions:    sessions,
		collections: collections,
		llm:         cli,
		log:         logger,
	}, nil
}

// orchestratorConfig maps the session settings; an explicit zero pacing
// delay disables pacing rather than selecting the default.
func orchestratorConfig(s config.SessionConfig) orchestrator.Config {
	pacing := s.PacingDelay
	if pacing == 0 {
		pacing = -1
	}
	return orchestrator.Config{
		PacingDelay:   pacing,
		ToastDuration: s.ToastDuration,
		StampDuration: s.StampDuration,
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	var zc zap.Config
	if strings.EqualFold(cfg.Env, "production") {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	if lvl := strings.TrimSpace(cfg.LogLevel); lvl != "" {
		level, err := zap.ParseAtomicLevel(lvl)
		if err != nil {
			return nil, err
		}
		zc.Level = level
	}
	return zc.Build()
}

func (a *App) Logger() *zap.Logger { return a.log }

func (a *App) Start() error {
	return a.server.Start()
}

// Shutdown stops accepting requests, then ends every session so pending
// collection saves land before the stores close.
func (a *App) Shutdown(ctx context.Context) error {
	errs := []error{a.server.Shutdown(ctx)}
	errs = append(errs, a.sessions.Close())
	errs = append(errs, a.collections.Close())
	errs = append(errs, a.llm.Close())
	m := a.collections.store.Metrics()
	a.log.Info("collection cache",
		zap.Uint64("hits", m.Hits),
		zap.Uint64("misses", m.Misses),
		zap.Uint64("origin_write_errors", m.OriginWriteErr))
	_ = a.log.Sync()
	return errors.Join(errs...)
}
