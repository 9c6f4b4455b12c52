package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fixedEmbedder struct {
	vector []float32
	err    error
}

func (f *fixedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, f.err
}

func (f *fixedEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return f.vector, f.err
}

func TestDenseSearchSendsNamedVector(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/collections/docs/points/search" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"result":[
			{"id":"p-1","score":0.91,"payload":{"chunk_id":"chunk-1","text":"first","source":"a.md"}},
			{"id":7,"score":0.42,"payload":{"text":"second"}}
		]}`))
	}))
	defer server.Close()

	client := New(server.URL, "docs", &fixedEmbedder{vector: []float32{0.1, 0.2}})
	candidates, err := client.DenseSearch(context.Background(), "refund policy", 5)
	if err != nil {
		t.Fatalf("DenseSearch() error = %v", err)
	}

	vector, ok := captured["vector"].(map[string]any)
	if !ok || vector["name"] != denseVectorName {
		t.Fatalf("expected named dense vector, got %v", captured["vector"])
	}
	if captured["limit"] != float64(5) {
		t.Fatalf("expected limit 5, got %v", captured["limit"])
	}

	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	if candidates[0].ID != "chunk-1" || candidates[0].Source != "a.md" || candidates[0].Score != 0.91 {
		t.Fatalf("unexpected first candidate %+v", candidates[0])
	}
	// Fall back to the point id when the payload carries no chunk id.
	if candidates[1].ID != "7" {
		t.Fatalf("expected point id fallback, got %q", candidates[1].ID)
	}
}

func TestSparseSearchSendsIndicesAndValues(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"result":[]}`))
	}))
	defer server.Close()

	client := New(server.URL, "docs", &fixedEmbedder{})
	if _, err := client.SparseSearch(context.Background(), "refund policy", 5); err != nil {
		t.Fatalf("SparseSearch() error = %v", err)
	}

	vector, ok := captured["vector"].(map[string]any)
	if !ok || vector["name"] != sparseVectorName {
		t.Fatalf("expected named sparse vector, got %v", captured["vector"])
	}
	inner, ok := vector["vector"].(map[string]any)
	if !ok {
		t.Fatalf("expected sparse vector body, got %v", vector["vector"])
	}
	indices, _ := inner["indices"].([]any)
	values, _ := inner["values"].([]any)
	if len(indices) != 2 || len(values) != 2 {
		t.Fatalf("expected 2 sparse terms for a 2-token query, got %d/%d", len(indices), len(values))
	}
}

func TestSparseSearchEmptyQuerySkipsRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected for an empty query")
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(server.URL, "docs", &fixedEmbedder{})
	candidates, err := client.SparseSearch(context.Background(), "!!!", 5)
	if err != nil {
		t.Fatalf("SparseSearch() error = %v", err)
	}
	if candidates != nil {
		t.Fatalf("expected no candidates, got %+v", candidates)
	}
}

func TestSearchIncludesResponseBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "collection not found", http.StatusNotFound)
	}))
	defer server.Close()

	client := New(server.URL, "docs", &fixedEmbedder{vector: []float32{0.1}})
	_, err := client.DenseSearch(context.Background(), "q", 5)
	if err == nil || !strings.Contains(err.Error(), "collection not found") {
		t.Fatalf("expected error to include body, got %v", err)
	}
}
