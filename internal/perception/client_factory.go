package perception

import (
	"fmt"

	"binsleuth/internal/config"
	"binsleuth/internal/logging"
)

// NewClientFromConfig builds a DecisionClient for the configured provider.
func NewClientFromConfig(cfg *config.Config) (DecisionClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	llm := cfg.LLM
	if llm.APIKey == "" {
		return nil, fmt.Errorf("no API key configured for provider %q", llm.Provider)
	}

	switch Provider(llm.Provider) {
	case ProviderGroq, "":
		cc := DefaultGroqConfig(llm.APIKey)
		applyOverrides(&cc, cfg)
		logging.API("decision client: groq model=%s", cc.Model)
		return NewGroqClientWithConfig(cc), nil
	case ProviderGemini:
		cc := DefaultGeminiConfig(llm.APIKey)
		applyOverrides(&cc, cfg)
		logging.API("decision client: gemini model=%s", cc.Model)
		return NewGeminiClientWithConfig(cc), nil
	default:
		return nil, fmt.Errorf("unknown provider: %q", llm.Provider)
	}
}

func applyOverrides(cc *ClientConfig, cfg *config.Config) {
	if cfg.LLM.Model != "" {
		cc.Model = cfg.LLM.Model
	}
	if cfg.LLM.BaseURL != "" {
		cc.BaseURL = cfg.LLM.BaseURL
	}
	if t := cfg.GetLLMTimeout(); t > 0 {
		cc.Timeout = t
	}
	if cfg.LLM.MaxRetries > 0 {
		cc.MaxRetries = cfg.LLM.MaxRetries
	}
}
