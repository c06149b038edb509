package embedding

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	sim, err := CosineSimilarity([]float32{1, 0, 0}, []float32{1, 0, 0})
	if err != nil {
		t.Fatalf("CosineSimilarity failed: %v", err)
	}
	if sim < 0.999 {
		t.Errorf("identical vectors should score ~1.0, got %f", sim)
	}

	sim, _ = CosineSimilarity([]float32{1, 0}, []float32{0, 1})
	if sim > 0.001 {
		t.Errorf("orthogonal vectors should score ~0, got %f", sim)
	}

	if _, err := CosineSimilarity([]float32{1}, []float32{1, 2}); err == nil {
		t.Error("expected dimension mismatch error")
	}

	sim, err = CosineSimilarity([]float32{0, 0}, []float32{1, 1})
	if err != nil || sim != 0 {
		t.Errorf("zero vector should score 0 without error, got %f, %v", sim, err)
	}
}

func TestOllamaEngine_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"embedding": [0.1, 0.2, 0.3]}`))
	}))
	defer srv.Close()

	e, err := NewOllamaEngine(srv.URL, "")
	if err != nil {
		t.Fatalf("NewOllamaEngine failed: %v", err)
	}
	vec, err := e.Embed(context.Background(), "run the binary")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("expected 3-dim vector, got %v", vec)
	}
}

func TestNewEngine_UnknownProvider(t *testing.T) {
	if _, err := NewEngine(Config{Provider: "mystery"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
