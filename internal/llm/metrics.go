package llm

import (
	"context"
	"encoding/json"
	"time"

	llmclient "shiyin/internal/llmClient"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts requests and observes latency per phase and outcome.
type Metrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewMetrics registers the LLM collectors on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shiyin",
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "LLM requests by phase and outcome.",
		}, []string{"phase", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "shiyin",
			Subsystem: "llm",
			Name:      "request_seconds",
			Help:      "LLM request latency by phase.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
		}, []string{"phase"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.requests, m.latency} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// Middleware records every call passing through it.
func (m *Metrics) Middleware() Middleware {
	return func(next llmclient.LLMClient) llmclient.LLMClient {
		if m == nil {
			return next
		}
		return &metered{next: next, m: m}
	}
}

type metered struct {
	next llmclient.LLMClient
	m    *Metrics
}

func (c *metered) Name() string { return c.next.Name() }
func (c *metered) Close() error { return c.next.Close() }
func (c *metered) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	phase := PhaseFrom(ctx)
	start := time.Now()
	raw, err := c.next.GenerateJSON(ctx, prompt, input)
	c.m.latency.WithLabelValues(phase).Observe(time.Since(start).Seconds())
	outcome := "ok"
	switch {
	case err == nil:
	case ctx.Err() != nil:
		outcome = "canceled"
	case llmclient.IsPermanent(err):
		outcome = "permanent_error"
	default:
		outcome = "error"
	}
	c.m.requests.WithLabelValues(phase, outcome).Inc()
	return raw, err
}
