package llm

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	llmclient "shiyin/internal/llmClient"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClient returns errs in order, then succeeds.
type scriptedClient struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (s *scriptedClient) Name() string { return "scripted" }
func (s *scriptedClient) Close() error { return nil }
func (s *scriptedClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	return json.RawMessage(`{"ok":true}`), nil
}

func (s *scriptedClient) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestWrapOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next llmclient.LLMClient) llmclient.LLMClient {
			return &tagged{next: next, name: name, order: &order}
		}
	}
	cli := Wrap(&scriptedClient{}, tag("A"), nil, tag("B"))
	_, err := cli.GenerateJSON(context.Background(), "p", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, order)
}

type tagged struct {
	next  llmclient.LLMClient
	name  string
	order *[]string
}

func (t *tagged) Name() string { return t.next.Name() }
func (t *tagged) Close() error { return t.next.Close() }
func (t *tagged) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	*t.order = append(*t.order, t.name)
	return t.next.GenerateJSON(ctx, prompt, input)
}

func TestRetryRecoversFromTransientErrors(t *testing.T) {
	inner := &scriptedClient{errs: []error{errors.New("503"), errors.New("503")}}
	cli := Wrap(inner, Retry(3, time.Millisecond))
	raw, err := cli.GenerateJSON(context.Background(), "p", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(raw))
	assert.Equal(t, 3, inner.Calls())
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	inner := &scriptedClient{errs: []error{llmclient.NewPermanentError(errors.New("bad key"))}}
	cli := Wrap(inner, Retry(5, time.Millisecond))
	_, err := cli.GenerateJSON(context.Background(), "p", nil)
	require.Error(t, err)
	assert.True(t, llmclient.IsPermanent(err))
	assert.Equal(t, 1, inner.Calls())
}

func TestRetryStopsWhenCallerCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	inner := &scriptedClient{errs: []error{errors.New("boom"), errors.New("boom")}}
	cli := Wrap(inner, Retry(5, time.Millisecond))
	_, err := cli.GenerateJSON(ctx, "p", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, inner.Calls())
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	boom := errors.New("boom")
	inner := &scriptedClient{errs: []error{boom, boom, boom, boom}}
	cli := Wrap(inner, Breaker(BreakerConfig{ConsecutiveFailures: 2, OpenFor: time.Minute}))

	for i := 0; i < 2; i++ {
		_, err := cli.GenerateJSON(context.Background(), "p", nil)
		assert.ErrorIs(t, err, boom)
	}
	_, err := cli.GenerateJSON(context.Background(), "p", nil)
	require.Error(t, err)
	assert.True(t, llmclient.IsPermanent(err), "open breaker should fail fast")
	assert.Equal(t, 2, inner.Calls())
}

type recordingHook struct {
	before, after []string
}

func (h *recordingHook) Before(_ context.Context, phase, _ string, _ any) {
	h.before = append(h.before, phase)
}
func (h *recordingHook) After(_ context.Context, phase string, _ json.RawMessage, _ error) {
	h.after = append(h.after, phase)
}

func TestHooksSeePhase(t *testing.T) {
	hook := &recordingHook{}
	ctx := WithHook(WithPhase(context.Background(), "poem"), hook)
	cli := Wrap(&scriptedClient{}, WithHooks())
	_, err := cli.GenerateJSON(ctx, "p", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"poem"}, hook.before)
	assert.Equal(t, []string{"poem"}, hook.after)
	assert.Equal(t, "unknown", PhaseFrom(context.Background()))
}

func TestTimeoutBoundsAttempt(t *testing.T) {
	cli := Wrap(&blockingClient{}, Timeout(10*time.Millisecond))
	_, err := cli.GenerateJSON(context.Background(), "p", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type blockingClient struct{}

func (blockingClient) Name() string { return "blocking" }
func (blockingClient) Close() error { return nil }
func (blockingClient) GenerateJSON(ctx context.Context, _ string, _ any) (json.RawMessage, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestMetricsCountOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	inner := &scriptedClient{errs: []error{errors.New("boom")}}
	cli := Wrap(inner, m.Middleware())
	ctx := WithPhase(context.Background(), "letter")
	_, _ = cli.GenerateJSON(ctx, "p", nil)
	_, _ = cli.GenerateJSON(ctx, "p", nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("letter", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("letter", "ok")))
}

func TestRateLimitSpacing(t *testing.T) {
	cli := Wrap(&scriptedClient{}, RateLimit(20, 1))
	t.Cleanup(func() { _ = cli.Close() })

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := cli.GenerateJSON(context.Background(), "p", nil)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}
