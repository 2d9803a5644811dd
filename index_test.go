package acontext

import (
	"context"
	"testing"
)

// stubIndexStore records embedding upserts; the embedded interface panics on
// anything the indexer should not touch.
type stubIndexStore struct {
	Store
	blocks map[string]Block

	upserts map[string][]float32 // keyed blockID/phase
}

func (s *stubIndexStore) FetchBlock(ctx context.Context, blockID string) (Block, error) {
	b, ok := s.blocks[blockID]
	if !ok {
		return Block{}, NotFoundf("block %s not found", blockID)
	}
	return b, nil
}

func (s *stubIndexStore) RenderBlockProps(ctx context.Context, block Block) (map[string]any, error) {
	return block.Props, nil
}

func (s *stubIndexStore) UpsertBlockEmbedding(ctx context.Context, blockID, phase string, vec []float32) error {
	if s.upserts == nil {
		s.upserts = make(map[string][]float32)
	}
	s.upserts[blockID+"/"+phase] = vec
	return nil
}

// phaseEmbedder records the embed phase and returns one unit vector per text.
type phaseEmbedder struct {
	gotPhase EmbedPhase
	gotTexts []string
}

func (e *phaseEmbedder) Embed(ctx context.Context, texts []string, phase EmbedPhase) ([][]float32, error) {
	e.gotPhase = phase
	e.gotTexts = texts
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (e *phaseEmbedder) Dimensions() int { return 3 }
func (e *phaseEmbedder) Name() string    { return "phase" }

func TestIndexBlockPathBlockTitleOnly(t *testing.T) {
	store := &stubIndexStore{}
	emb := &phaseEmbedder{}
	ix := NewIndexer(store, emb)

	b := Block{ID: "b1", Type: BlockTypeFolder, Title: "guides"}
	if err := ix.IndexBlock(context.Background(), b); err != nil {
		t.Fatalf("IndexBlock: %v", err)
	}
	if emb.gotPhase != PhaseDocument {
		t.Errorf("phase = %v, want document", emb.gotPhase)
	}
	if len(store.upserts) != 1 {
		t.Fatalf("upserts = %v, want title only", store.upserts)
	}
	if _, ok := store.upserts["b1/"+EmbeddingPhaseTitle]; !ok {
		t.Errorf("missing title upsert: %v", store.upserts)
	}
}

func TestIndexBlockContentBlockBothPhases(t *testing.T) {
	store := &stubIndexStore{}
	emb := &phaseEmbedder{}
	ix := NewIndexer(store, emb)

	b := Block{
		ID:    "b2",
		Type:  BlockTypeSOP,
		Title: "when deploying",
		Props: map[string]any{"preferences": "use staging first"},
	}
	if err := ix.IndexBlock(context.Background(), b); err != nil {
		t.Fatalf("IndexBlock: %v", err)
	}
	if emb.gotPhase != PhaseDocument {
		t.Errorf("phase = %v, want document", emb.gotPhase)
	}
	if len(store.upserts) != 2 {
		t.Fatalf("upserts = %v, want title and content", store.upserts)
	}
	if _, ok := store.upserts["b2/"+EmbeddingPhaseContent]; !ok {
		t.Errorf("missing content upsert: %v", store.upserts)
	}
	if len(emb.gotTexts) != 2 || emb.gotTexts[0] != "when deploying" {
		t.Errorf("texts = %v", emb.gotTexts)
	}
}

func TestIndexBlockIDFetchesThenIndexes(t *testing.T) {
	store := &stubIndexStore{blocks: map[string]Block{
		"b3": {ID: "b3", Type: BlockTypePage, Title: "deploy"},
	}}
	ix := NewIndexer(store, &phaseEmbedder{})

	if err := ix.IndexBlockID(context.Background(), "b3"); err != nil {
		t.Fatalf("IndexBlockID: %v", err)
	}
	if _, ok := store.upserts["b3/"+EmbeddingPhaseTitle]; !ok {
		t.Errorf("upserts = %v", store.upserts)
	}

	if err := ix.IndexBlockID(context.Background(), "ghost"); !IsKind(err, KindNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}
