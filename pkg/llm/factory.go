package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/paoliniluis/similarity/pkg/config"
)

// NewClientFromConfig builds a Client for the configured provider.
func NewClientFromConfig(cfg *config.LLMConfig, logger *zap.Logger) (*Client, error) {
	var provider Provider
	switch cfg.Provider {
	case "openai":
		provider = NewOpenAIProvider(cfg)
	case "anthropic":
		provider = NewAnthropicProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
	return NewClient(cfg, provider, logger), nil
}
