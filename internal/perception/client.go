// Package perception implements the decision-function boundary: the LLM
// clients that turn analysis state into plans and verdicts, and the decoders
// that parse their structured responses. The orchestration engine treats all
// of this as an opaque synchronous call; everything provider-specific stays
// behind the DecisionClient interface.
package perception

import (
	"context"
	"time"
)

// DecisionClient defines the interface for LLM providers.
type DecisionClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Provider represents an LLM provider.
type Provider string

const (
	ProviderGroq   Provider = "groq"
	ProviderGemini Provider = "gemini"
)

// ClientConfig holds provider-independent client settings.
type ClientConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}
