package openaicompat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/slyt3/Acontext"
)

func TestEmbedding(t *testing.T) {
	var gotBody EmbeddingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatal(err)
		}
		// Return vectors out of order; the client must sort by index.
		json.NewEncoder(w).Encode(EmbeddingResponse{Data: []EmbeddingData{
			{Index: 1, Embedding: []float32{0.3, 0.4}},
			{Index: 0, Embedding: []float32{0.1, 0.2}},
		}})
	}))
	defer srv.Close()

	e := NewEmbedding("sk", "text-embedding-3-small", srv.URL, 2,
		WithPhasePrefixes("search_query: ", "search_document: "))

	vecs, err := e.Embed(context.Background(), []string{"a", "b"}, acontext.PhaseQuery)
	if err != nil {
		t.Fatal(err)
	}
	if gotBody.Dimensions != 2 {
		t.Errorf("dimensions = %d", gotBody.Dimensions)
	}
	if len(gotBody.Input) != 2 || gotBody.Input[0] != "search_query: a" {
		t.Errorf("input = %v", gotBody.Input)
	}
	if len(vecs) != 2 || vecs[0][0] != 0.1 || vecs[1][1] != 0.4 {
		t.Errorf("vecs = %v", vecs)
	}
}

func TestEmbeddingDocumentPhase(t *testing.T) {
	var gotBody EmbeddingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(EmbeddingResponse{Data: []EmbeddingData{
			{Index: 0, Embedding: []float32{1}},
		}})
	}))
	defer srv.Close()

	e := NewEmbedding("", "m", srv.URL, 1,
		WithPhasePrefixes("q: ", "d: "))
	if _, err := e.Embed(context.Background(), []string{"x"}, acontext.PhaseDocument); err != nil {
		t.Fatal(err)
	}
	if gotBody.Input[0] != "d: x" {
		t.Errorf("input = %v", gotBody.Input)
	}
}

func TestEmbeddingCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(EmbeddingResponse{Data: nil})
	}))
	defer srv.Close()

	e := NewEmbedding("", "m", srv.URL, 1)
	_, err := e.Embed(context.Background(), []string{"x"}, acontext.PhaseQuery)
	if err == nil {
		t.Fatal("want error on count mismatch")
	}
}

func TestEmbeddingEmptyInput(t *testing.T) {
	e := NewEmbedding("", "m", "http://unused", 4)
	vecs, err := e.Embed(context.Background(), nil, acontext.PhaseQuery)
	if err != nil || vecs != nil {
		t.Errorf("vecs = %v, err = %v", vecs, err)
	}
	if e.Dimensions() != 4 {
		t.Errorf("dims = %d", e.Dimensions())
	}
}
