// Package embedding generates vector embeddings for plan-step similarity.
// Two backends: Google GenAI (cloud) and Ollama (local).
package embedding

import (
	"context"
	"fmt"
	"math"

	"binsleuth/internal/logging"
)

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Name returns the engine name.
	Name() string
}

// Config selects and configures an embedding backend.
type Config struct {
	// Provider is "genai" or "ollama".
	Provider string `json:"provider" yaml:"provider"`

	// GenAI settings.
	GenAIAPIKey string `json:"genai_api_key,omitempty" yaml:"genai_api_key"`
	GenAIModel  string `json:"genai_model,omitempty" yaml:"genai_model"`

	// Ollama settings.
	OllamaEndpoint string `json:"ollama_endpoint,omitempty" yaml:"ollama_endpoint"`
	OllamaModel    string `json:"ollama_model,omitempty" yaml:"ollama_model"`
}

// NewEngine creates the configured embedding engine.
func NewEngine(cfg Config) (Engine, error) {
	switch cfg.Provider {
	case "genai", "":
		return NewGenAIEngine(cfg.GenAIAPIKey, cfg.GenAIModel)
	case "ollama":
		return NewOllamaEngine(cfg.OllamaEndpoint, cfg.OllamaModel)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %q", cfg.Provider)
	}
}

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns a value in [-1, 1]; 1.0 means identical direction.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector dimension mismatch: %d != %d", len(a), len(b))
	}

	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}

	if magA == 0 || magB == 0 {
		logging.EmbeddingWarn("cosine similarity on zero-magnitude vector")
		return 0, nil
	}

	result := dot / (math.Sqrt(magA) * math.Sqrt(magB))
	logging.EmbeddingDebug("cosine similarity: %.6f (dim %d)", result, len(a))
	return result, nil
}
