package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"hexmem/internal/config"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a    []float32
		b    []float32
		want float64
	}{
		{"Identical", []float32{1, 0, 0}, []float32{1, 0, 0}, 1.0},
		{"Orthogonal", []float32{1, 0, 0}, []float32{0, 1, 0}, 0.0},
		{"Opposite", []float32{1, 0, 0}, []float32{-1, 0, 0}, -1.0},
		{"ZeroVector", []float32{0, 0, 0}, []float32{1, 0, 0}, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CosineSimilarity(tt.a, tt.b)
			if err != nil {
				t.Fatalf("CosineSimilarity: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineSimilarity = %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := CosineSimilarity([]float32{1}, []float32{1, 2}); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestNewEngineDisabled(t *testing.T) {
	engine, err := NewEngine(config.EmbeddingConfig{Provider: ""})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if engine != nil {
		t.Error("empty provider should return nil engine")
	}
}

func TestNewEngineUnknownProvider(t *testing.T) {
	if _, err := NewEngine(config.EmbeddingConfig{Provider: "qdrant"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestOllamaEngine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req ollamaEmbedRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	engine, err := NewOllamaEngine(srv.URL, "embeddinggemma", 3)
	if err != nil {
		t.Fatalf("NewOllamaEngine: %v", err)
	}

	vec, err := engine.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("vector length = %d, want 3", len(vec))
	}

	batch, err := engine.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(batch) != 2 {
		t.Errorf("batch length = %d, want 2", len(batch))
	}

	if engine.Name() != "ollama:embeddinggemma" {
		t.Errorf("Name = %q", engine.Name())
	}
	if engine.Dimensions() != 3 {
		t.Errorf("Dimensions = %d", engine.Dimensions())
	}
}

func TestOllamaEngineServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	engine, _ := NewOllamaEngine(srv.URL, "", 0)
	if _, err := engine.Embed(context.Background(), "hello"); err == nil {
		t.Error("expected error on non-200 response")
	}
}

func TestOpenAIEngineBatchOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer header")
		}
		// Respond out of order to exercise the index sort.
		w.Write([]byte(`{"data":[{"index":1,"embedding":[2,2]},{"index":0,"embedding":[1,1]}]}`))
	}))
	defer srv.Close()

	engine, err := NewOpenAIEngine(srv.URL, "test-key", "text-embedding-3-small", 2)
	if err != nil {
		t.Fatalf("NewOpenAIEngine: %v", err)
	}

	batch, err := engine.EmbedBatch(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if batch[0][0] != 1 || batch[1][0] != 2 {
		t.Errorf("batch not reordered by index: %v", batch)
	}
}

func TestOpenAIEngineRequiresKey(t *testing.T) {
	if _, err := NewOpenAIEngine("", "", "", 0); err == nil {
		t.Error("expected error without API key")
	}
}
