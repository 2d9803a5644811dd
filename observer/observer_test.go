package observer

import (
	"context"
	"errors"
	"testing"

	acontext "github.com/slyt3/Acontext"
)

// mockProvider for observer tests.
type mockProvider struct {
	name     string
	chatResp acontext.ChatResponse
	chatErr  error
}

func (m *mockProvider) Name() string { return m.name }
func (m *mockProvider) Chat(_ context.Context, _ acontext.ChatRequest) (acontext.ChatResponse, error) {
	return m.chatResp, m.chatErr
}

// mockEmbedding for observer tests.
type mockEmbedding struct {
	name  string
	dims  int
	vecs  [][]float32
	err   error
	phase acontext.EmbedPhase
}

func (m *mockEmbedding) Name() string    { return m.name }
func (m *mockEmbedding) Dimensions() int { return m.dims }
func (m *mockEmbedding) Embed(_ context.Context, _ []string, phase acontext.EmbedPhase) ([][]float32, error) {
	m.phase = phase
	return m.vecs, m.err
}

// testInstruments creates a no-op Instruments using the global OTEL
// providers, which are no-ops by default. Safe for testing delegation
// behavior without a real backend.
func testInstruments(t *testing.T) *Instruments {
	t.Helper()
	inst, err := newInstruments(nil)
	if err != nil {
		t.Fatalf("newInstruments: %v", err)
	}
	return inst
}

func TestObservedProviderName(t *testing.T) {
	inner := &mockProvider{name: "test-provider"}
	op := WrapProvider(inner, "test-model", testInstruments(t))

	if got := op.Name(); got != "test-provider" {
		t.Errorf("Name() = %q, want %q", got, "test-provider")
	}
}

func TestObservedProviderChat(t *testing.T) {
	want := acontext.ChatResponse{
		Content: "hello from LLM",
		Usage:   acontext.Usage{InputTokens: 10, OutputTokens: 5},
	}
	inner := &mockProvider{name: "p", chatResp: want}
	op := WrapProvider(inner, "m", testInstruments(t))

	got, err := op.Chat(context.Background(), acontext.ChatRequest{})
	if err != nil {
		t.Fatalf("Chat returned unexpected error: %v", err)
	}
	if got.Content != want.Content {
		t.Errorf("Content = %q, want %q", got.Content, want.Content)
	}
	if got.Usage != want.Usage {
		t.Errorf("Usage = %+v, want %+v", got.Usage, want.Usage)
	}
}

func TestObservedProviderChatError(t *testing.T) {
	wantErr := errors.New("provider unavailable")
	inner := &mockProvider{name: "p", chatErr: wantErr}
	op := WrapProvider(inner, "m", testInstruments(t))

	_, err := op.Chat(context.Background(), acontext.ChatRequest{})
	if !errors.Is(err, wantErr) {
		t.Errorf("Chat error = %v, want %v", err, wantErr)
	}
}

func TestObservedEmbeddingDelegates(t *testing.T) {
	inner := &mockEmbedding{name: "e", dims: 3, vecs: [][]float32{{1, 2, 3}}}
	oe := WrapEmbedding(inner, "embed-model", testInstruments(t))

	if oe.Dimensions() != 3 {
		t.Errorf("Dimensions() = %d, want 3", oe.Dimensions())
	}
	vecs, err := oe.Embed(context.Background(), []string{"x"}, acontext.PhaseQuery)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 1 || len(vecs[0]) != 3 {
		t.Errorf("vecs = %v", vecs)
	}
	if inner.phase != acontext.PhaseQuery {
		t.Errorf("phase = %q, want query", inner.phase)
	}
}

func TestObservedEmbeddingError(t *testing.T) {
	wantErr := errors.New("embedding down")
	inner := &mockEmbedding{name: "e", dims: 3, err: wantErr}
	oe := WrapEmbedding(inner, "embed-model", testInstruments(t))

	_, err := oe.Embed(context.Background(), []string{"x"}, acontext.PhaseDocument)
	if !errors.Is(err, wantErr) {
		t.Errorf("Embed error = %v, want %v", err, wantErr)
	}
}

func TestStartRunEndIsSafe(t *testing.T) {
	inst := testInstruments(t)

	ctx, end := inst.StartRun(context.Background(), "task_extract")
	if ctx == nil {
		t.Fatal("StartRun returned nil context")
	}
	end(nil)

	_, end = inst.StartRun(context.Background(), "sop_abstract")
	end(errors.New("run failed"))
}
