package openaicompat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/slyt3/Acontext"
)

// Embedding implements acontext.EmbeddingProvider over the OpenAI
// embeddings API (POST /embeddings).
//
// Some embedding models are asymmetric and expect a task prefix on the
// input text. Phase prefixes configure that: queries get the query prefix,
// documents the document prefix. Both default to empty for symmetric
// models.
type Embedding struct {
	apiKey      string
	model       string
	baseURL     string
	dims        int
	client      *http.Client
	name        string
	queryPre    string
	documentPre string
}

// EmbeddingOption configures an Embedding instance.
type EmbeddingOption func(*Embedding)

// WithEmbeddingName sets the provider name (default "openai").
func WithEmbeddingName(name string) EmbeddingOption {
	return func(e *Embedding) { e.name = name }
}

// WithEmbeddingHTTPClient sets a custom HTTP client.
func WithEmbeddingHTTPClient(c *http.Client) EmbeddingOption {
	return func(e *Embedding) { e.client = c }
}

// WithPhasePrefixes sets the text prefixes prepended per embed phase, for
// asymmetric models (e.g. "search_query: " / "search_document: ").
func WithPhasePrefixes(query, document string) EmbeddingOption {
	return func(e *Embedding) {
		e.queryPre = query
		e.documentPre = document
	}
}

// NewEmbedding creates an OpenAI-compatible embedding provider. dims is the
// vector size the model produces (and is sent as the dimensions parameter
// for models that support truncation).
func NewEmbedding(apiKey, model, baseURL string, dims int, opts ...EmbeddingOption) *Embedding {
	e := &Embedding{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		dims:    dims,
		client:  &http.Client{},
		name:    "openai",
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name returns the provider name.
func (e *Embedding) Name() string { return e.name }

// Dimensions returns the embedding vector size.
func (e *Embedding) Dimensions() int { return e.dims }

// Embed returns one vector per input text, in input order.
func (e *Embedding) Embed(ctx context.Context, texts []string, phase acontext.EmbedPhase) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	prefix := e.documentPre
	if phase == acontext.PhaseQuery {
		prefix = e.queryPre
	}
	input := make([]string, len(texts))
	for i, t := range texts {
		input[i] = prefix + t
	}

	body := EmbeddingRequest{Model: e.model, Input: input, Dimensions: e.dims}
	resp, err := e.sendHTTP(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, httpErr(resp)
	}

	var embResp EmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, &acontext.ErrLLM{Provider: e.name, Message: fmt.Sprintf("decode response: %v", err)}
	}
	if len(embResp.Data) != len(texts) {
		return nil, &acontext.ErrLLM{Provider: e.name, Message: fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(embResp.Data))}
	}

	// The API documents data in input order but indexes are authoritative.
	sort.Slice(embResp.Data, func(i, j int) bool { return embResp.Data[i].Index < embResp.Data[j].Index })
	out := make([][]float32, len(embResp.Data))
	for i, d := range embResp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

func (e *Embedding) sendHTTP(ctx context.Context, body EmbeddingRequest) (*http.Response, error) {
	p := &Provider{apiKey: e.apiKey, baseURL: e.baseURL, client: e.client, name: e.name}
	return p.sendHTTP(ctx, "/embeddings", body)
}

// Compile-time interface check.
var _ acontext.EmbeddingProvider = (*Embedding)(nil)
