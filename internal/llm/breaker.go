package llm

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	llmclient "shiyin/internal/llmClient"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerConfig tunes the circuit breaker around a provider.
type BreakerConfig struct {
	// ConsecutiveFailures trips the breaker. 0 disables the middleware.
	ConsecutiveFailures uint32
	// OpenFor is how long the breaker stays open before probing again.
	OpenFor time.Duration
	Logger  *zap.Logger
}

// Breaker stops calling the provider after repeated failures. While open,
// calls fail fast with a PermanentError so Retry does not spin on it.
// Caller cancellation does not count as a provider failure.
func Breaker(cfg BreakerConfig) Middleware {
	return func(next llmclient.LLMClient) llmclient.LLMClient {
		if cfg.ConsecutiveFailures == 0 {
			return next
		}
		logger := cfg.Logger
		if logger == nil {
			logger = zap.NewNop()
		}
		cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        next.Name(),
			MaxRequests: 1,
			Timeout:     cfg.OpenFor,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Info("llm breaker state change",
					zap.String("client", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
		return &breaker{next: next, cb: cb}
	}
}

type breaker struct {
	next llmclient.LLMClient
	cb   *gobreaker.CircuitBreaker
}

func (b *breaker) Name() string { return b.next.Name() }
func (b *breaker) Close() error { return b.next.Close() }
func (b *breaker) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.GenerateJSON(ctx, prompt, input)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, llmclient.NewPermanentError(err)
		}
		return nil, err
	}
	raw, _ := out.(json.RawMessage)
	return raw, nil
}
