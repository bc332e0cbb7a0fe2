package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sitbrief/internal/config"
	"sitbrief/internal/ports"
)

const systemPrompt = "You are a geopolitical analyst who classifies news articles into an existing topic taxonomy. Answer with a single JSON object."

// New selects the classifier implementation for cfg.Provider.
func New(ctx context.Context, cfg config.ClassifierConfig) (ports.Classifier, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case config.ProviderClaude, "":
		return NewClaudeClient(cfg), nil
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg), nil
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported classifier provider %q", cfg.Provider)
	}
}

func requestTimeout(cfg config.ClassifierConfig) time.Duration {
	if cfg.Timeout > 0 {
		return cfg.Timeout
	}
	return 60 * time.Second
}
