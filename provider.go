package acontext

import "context"

// Provider abstracts the LLM backend.
type Provider interface {
	// Chat sends a request and returns a complete response. When req.Tools
	// is non-empty, the response may contain ToolCalls.
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	// Name returns the provider name (e.g. "openai").
	Name() string
}

// EmbedPhase selects how texts are embedded. Query and document vectors
// must live in the same space but providers may prefix differently.
type EmbedPhase string

const (
	PhaseQuery    EmbedPhase = "query"
	PhaseDocument EmbedPhase = "document"
)

// EmbeddingProvider abstracts text embedding.
type EmbeddingProvider interface {
	// Embed returns one vector per input text.
	Embed(ctx context.Context, texts []string, phase EmbedPhase) ([][]float32, error)
	// Dimensions returns the embedding vector size.
	Dimensions() int
	// Name returns the provider name.
	Name() string
}
