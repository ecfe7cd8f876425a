package llm

import (
	"context"
	"fmt"

	"github.com/vigilstack/vigil-healer/internal/config"
)

// Reasoner is the single interface every reasoning-service backend
// implements. The concrete backend is chosen once at startup from
// configuration, never at call time.
type Reasoner interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Provider() string
	Model() string
}

// New resolves the configured reasoning backend.
func New(cfg config.ReasonerConfig) (Reasoner, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIReasoner(cfg)
	case "ollama":
		return NewOllamaReasoner(cfg)
	default:
		return nil, fmt.Errorf("unknown reasoner provider %q", cfg.Provider)
	}
}
