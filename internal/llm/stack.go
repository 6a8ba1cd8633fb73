package llm

import (
	"time"

	llmclient "shiyin/internal/llmClient"

	"go.uber.org/zap"
)

// StackConfig configures the default middleware chain around a provider.
type StackConfig struct {
	RPS         float64
	Burst       int
	MaxAttempts int
	BaseDelay   time.Duration
	// AttemptTimeout bounds a single provider call.
	AttemptTimeout time.Duration
	Breaker        BreakerConfig
	Metrics        *Metrics
	Logger         *zap.Logger
}

// Stack wraps inner as
// Hooks -> Logging -> Metrics -> Retry -> Breaker -> RateLimit -> Timeout -> inner.
func Stack(inner llmclient.LLMClient, cfg StackConfig) llmclient.LLMClient {
	if cfg.Breaker.Logger == nil {
		cfg.Breaker.Logger = cfg.Logger
	}
	return Wrap(inner,
		WithHooks(),
		WithLogging(cfg.Logger),
		cfg.Metrics.Middleware(),
		Retry(cfg.MaxAttempts, cfg.BaseDelay),
		Breaker(cfg.Breaker),
		RateLimit(cfg.RPS, cfg.Burst),
		Timeout(cfg.AttemptTimeout),
	)
}
