package acontext

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Block embedding phases. Every block indexes its title; content blocks also
// index their rendered props so semantic_grep can match on the body.
const (
	EmbeddingPhaseTitle   = "title"
	EmbeddingPhaseContent = "content"
)

// Indexer embeds block text and writes the vectors to the store. Writers call
// it inline after each block write so new blocks are searchable immediately.
type Indexer struct {
	store    Store
	embedder EmbeddingProvider
	logger   *slog.Logger
}

// IndexerOption customizes an Indexer.
type IndexerOption func(*Indexer)

// WithIndexLogger sets the logger.
func WithIndexLogger(l *slog.Logger) IndexerOption {
	return func(ix *Indexer) { ix.logger = l }
}

// NewIndexer builds an Indexer over the given store and embedder.
func NewIndexer(store Store, embedder EmbeddingProvider, opts ...IndexerOption) *Indexer {
	ix := &Indexer{store: store, embedder: embedder, logger: nopLogger}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// IndexBlock embeds the block with the document phase and upserts one vector
// per embedding phase.
func (ix *Indexer) IndexBlock(ctx context.Context, block Block) error {
	phases := []string{EmbeddingPhaseTitle}
	texts := []string{block.Title}

	if IsContentBlockType(block.Type) {
		props, err := ix.store.RenderBlockProps(ctx, block)
		if err != nil {
			return err
		}
		body, err := json.Marshal(props)
		if err != nil {
			return fmt.Errorf("index: marshal props: %w", err)
		}
		phases = append(phases, EmbeddingPhaseContent)
		texts = append(texts, block.Title+"\n"+string(body))
	}

	vecs, err := ix.embedder.Embed(ctx, texts, PhaseDocument)
	if err != nil {
		return err
	}
	if len(vecs) != len(texts) {
		return Internal("embedder returned unexpected vector count", nil)
	}

	for i, phase := range phases {
		if err := ix.store.UpsertBlockEmbedding(ctx, block.ID, phase, vecs[i]); err != nil {
			return err
		}
	}
	ix.logger.Debug("indexed block", "block_id", block.ID, "type", block.Type, "phases", len(phases))
	return nil
}

// IndexBlockID fetches the block and indexes it.
func (ix *Indexer) IndexBlockID(ctx context.Context, blockID string) error {
	b, err := ix.store.FetchBlock(ctx, blockID)
	if err != nil {
		return err
	}
	return ix.IndexBlock(ctx, b)
}
