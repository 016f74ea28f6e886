package ai

import (
	"fmt"

	"docpipe/internal/ai/deepseek"
	"docpipe/internal/ai/mock"
	"docpipe/internal/ai/openai"
	"docpipe/internal/config"
	"docpipe/pkg/models"
)

// NewProvider constructs the appropriate AI provider based on config.
// Called once at server startup.
func NewProvider(cfg config.AIConfig) (models.AIProvider, error) {
	switch cfg.Provider {
	case "deepseek":
		return deepseek.NewProvider(cfg.DeepSeek), nil
	case "openai":
		return openai.NewProvider(cfg.OpenAI), nil
	case "mock":
		return mock.NewProvider(), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of deepseek, openai, mock", cfg.Provider)
	}
}
