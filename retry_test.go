package acontext

import (
	"context"
	"errors"
	"testing"
	"time"
)

// flakyProvider fails the first failures calls with the given error, then
// succeeds.
type flakyProvider struct {
	failures int
	err      error
	calls    int
}

func (p *flakyProvider) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	p.calls++
	if p.calls <= p.failures {
		return ChatResponse{}, p.err
	}
	return ChatResponse{Content: "done"}, nil
}

func (p *flakyProvider) Name() string { return "flaky" }

func TestRetryRecoversFromTransientErrors(t *testing.T) {
	inner := &flakyProvider{failures: 2, err: &ErrHTTP{Status: 429, Body: "slow down"}}
	p := WithRetry(inner, RetryMaxAttempts(3), RetryBaseDelay(time.Millisecond))

	resp, err := p.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "done" {
		t.Errorf("content = %q", resp.Content)
	}
	if inner.calls != 3 {
		t.Errorf("inner called %d times, want 3", inner.calls)
	}
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	inner := &flakyProvider{failures: 10, err: &ErrHTTP{Status: 503, Body: "unavailable"}}
	p := WithRetry(inner, RetryMaxAttempts(2), RetryBaseDelay(time.Millisecond))

	_, err := p.Chat(context.Background(), ChatRequest{})
	var httpErr *ErrHTTP
	if !errors.As(err, &httpErr) || httpErr.Status != 503 {
		t.Fatalf("err = %v, want last http 503", err)
	}
	if inner.calls != 2 {
		t.Errorf("inner called %d times, want 2", inner.calls)
	}
}

func TestRetryDoesNotRetryPermanentErrors(t *testing.T) {
	inner := &flakyProvider{failures: 10, err: &ErrHTTP{Status: 401, Body: "bad key"}}
	p := WithRetry(inner, RetryMaxAttempts(3), RetryBaseDelay(time.Millisecond))

	_, err := p.Chat(context.Background(), ChatRequest{})
	var httpErr *ErrHTTP
	if !errors.As(err, &httpErr) || httpErr.Status != 401 {
		t.Fatalf("err = %v, want http 401", err)
	}
	if inner.calls != 1 {
		t.Errorf("inner called %d times, want 1", inner.calls)
	}
}

func TestRetryStopsWhenContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inner := &flakyProvider{failures: 10, err: &ErrHTTP{Status: 429}}
	p := WithRetry(inner, RetryMaxAttempts(3), RetryBaseDelay(time.Hour))

	_, err := p.Chat(ctx, ChatRequest{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if inner.calls != 1 {
		t.Errorf("inner called %d times, want 1", inner.calls)
	}
}

func TestRetryDelayHonorsRetryAfter(t *testing.T) {
	base := 10 * time.Millisecond
	err := &ErrHTTP{Status: 429, RetryAfter: time.Minute}
	if got := retryDelay(base, 0, err); got != time.Minute {
		t.Errorf("delay = %v, want Retry-After floor of 1m", got)
	}
	// Without Retry-After the delay is pure backoff.
	noHeader := &ErrHTTP{Status: 429}
	if got := retryDelay(base, 0, noHeader); got < base || got > base+base/2 {
		t.Errorf("delay = %v, want within [%v, %v]", got, base, base+base/2)
	}
}

func TestRetryBackoffDoubles(t *testing.T) {
	base := 8 * time.Millisecond
	for i := 0; i < 4; i++ {
		exp := base * (1 << i)
		got := retryBackoff(base, i)
		if got < exp || got > exp+exp/2 {
			t.Errorf("backoff(%d) = %v, want within [%v, %v]", i, got, exp, exp+exp/2)
		}
	}
}

type flakyEmbedder struct {
	failures int
	calls    int
}

func (e *flakyEmbedder) Embed(ctx context.Context, texts []string, phase EmbedPhase) ([][]float32, error) {
	e.calls++
	if e.calls <= e.failures {
		return nil, &ErrHTTP{Status: 429}
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1}
	}
	return out, nil
}

func (e *flakyEmbedder) Dimensions() int { return 1 }
func (e *flakyEmbedder) Name() string    { return "flaky-embed" }

func TestEmbeddingRetryRecovers(t *testing.T) {
	inner := &flakyEmbedder{failures: 1}
	p := WithEmbeddingRetry(inner, RetryMaxAttempts(3), RetryBaseDelay(time.Millisecond))

	vecs, err := p.Embed(context.Background(), []string{"a", "b"}, PhaseQuery)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 2 {
		t.Errorf("got %d vectors, want 2", len(vecs))
	}
	if inner.calls != 2 {
		t.Errorf("inner called %d times, want 2", inner.calls)
	}
	if p.Dimensions() != 1 || p.Name() != "flaky-embed" {
		t.Error("wrapper does not delegate Name/Dimensions")
	}
}
