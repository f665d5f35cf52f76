package embedding

import (
	"github.com/vaultmind/memcore/internal/config"
	"github.com/vaultmind/memcore/pkg/types"
)

// New builds the configured embedding Client from cfg.embedding.provider.
func New(cfg config.EmbeddingConfig) (Client, error) {
	switch cfg.Provider {
	case "openai":
		if cfg.APIKey == "" {
			return nil, types.NewConfigError("embedding.api_key is required for provider %q", cfg.Provider)
		}
		return NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.Dimensions), nil
	case "azure":
		if cfg.APIKey == "" || cfg.Endpoint == "" {
			return nil, types.NewConfigError("embedding.api_key and embedding.endpoint are required for provider %q", cfg.Provider)
		}
		return NewAzureClient(cfg.APIKey, cfg.Endpoint, cfg.Model, cfg.Dimensions), nil
	case "local":
		return NewLocalClient(cfg.Dimensions), nil
	default:
		return nil, types.NewConfigError("unsupported embedding.provider %q", cfg.Provider)
	}
}
