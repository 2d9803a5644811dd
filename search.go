package acontext

import (
	"context"
	"log/slog"
	"math"
	"strings"
)

const (
	// DefaultSearchThreshold is the maximum cosine distance for a hit.
	DefaultSearchThreshold = 0.8
	// DefaultSearchTopK is the number of results returned when unspecified.
	DefaultSearchTopK = 10
	// DefaultFetchRatio over-fetches before dedup so duplicates from
	// multi-embedding blocks do not starve the final top-k.
	DefaultFetchRatio = 1.5
)

// Searcher runs embedding similarity search over space blocks.
type Searcher struct {
	store     Store
	embedder  EmbeddingProvider
	threshold float64
	fetchRat  float64
	logger    *slog.Logger
}

// SearchOption customizes a Searcher.
type SearchOption func(*Searcher)

// WithSearchThreshold overrides the default distance threshold.
func WithSearchThreshold(t float64) SearchOption {
	return func(s *Searcher) { s.threshold = t }
}

// WithFetchRatio overrides the over-fetch multiplier.
func WithFetchRatio(r float64) SearchOption {
	return func(s *Searcher) { s.fetchRat = r }
}

// WithSearchLogger sets the logger.
func WithSearchLogger(l *slog.Logger) SearchOption {
	return func(s *Searcher) { s.logger = l }
}

// NewSearcher builds a Searcher over the given store and embedder.
func NewSearcher(store Store, embedder EmbeddingProvider, opts ...SearchOption) *Searcher {
	s := &Searcher{
		store:     store,
		embedder:  embedder,
		threshold: DefaultSearchThreshold,
		fetchRat:  DefaultFetchRatio,
		logger:    nopLogger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SemanticGlob searches path blocks (folders and pages) by title similarity.
func (s *Searcher) SemanticGlob(ctx context.Context, spaceID, query string, topk int, threshold *float64) ([]SearchHit, error) {
	return s.search(ctx, spaceID, query, PathBlockTypes, topk, threshold)
}

// SemanticGrep searches content blocks (text and sop) by content similarity.
func (s *Searcher) SemanticGrep(ctx context.Context, spaceID, query string, topk int, threshold *float64) ([]SearchHit, error) {
	return s.search(ctx, spaceID, query, ContentBlockTypes, topk, threshold)
}

func (s *Searcher) search(ctx context.Context, spaceID, query string, types []string, topk int, threshold *float64) ([]SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, Validation("query must not be empty")
	}
	if topk <= 0 {
		topk = DefaultSearchTopK
	}
	th := s.threshold
	if threshold != nil {
		th = *threshold
	}

	vecs, err := s.embedder.Embed(ctx, []string{query}, PhaseQuery)
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, Internal("embedder returned unexpected vector count", nil)
	}

	fetch := int(math.Ceil(float64(topk) * s.fetchRat))
	hits, err := s.store.SearchBlockEmbeddings(ctx, spaceID, vecs[0], types, fetch, th)
	if err != nil {
		return nil, err
	}

	// A block with both title and content embeddings can match twice. Hits
	// arrive in ascending distance order, so the first occurrence wins.
	seen := make(map[string]bool, len(hits))
	out := make([]SearchHit, 0, topk)
	for _, h := range hits {
		if seen[h.Block.ID] {
			continue
		}
		seen[h.Block.ID] = true
		out = append(out, h)
		if len(out) == topk {
			break
		}
	}
	s.logger.Debug("semantic search",
		"space_id", spaceID,
		"types", types,
		"fetched", len(hits),
		"returned", len(out))
	return out, nil
}
