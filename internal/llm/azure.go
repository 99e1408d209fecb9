package llm

import (
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"

	"fossmate.app/fossmate/core/config"
)

// newAzureProvider builds an Azure OpenAI adapter. Azure speaks the same
// chat protocol behind deployment-scoped URLs, so it reuses the
// OpenAI-compatible provider with azure request options.
func newAzureProvider(cfg config.LLMConfig) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for provider azure_openai")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("azure_openai requires the resource endpoint")
	}

	apiVersion := cfg.AzureAPIVersion
	if apiVersion == "" {
		apiVersion = "2024-10-21"
	}

	client := openai.NewClient(
		azure.WithEndpoint(cfg.BaseURL, apiVersion),
		azure.WithAPIKey(cfg.APIKey),
	)

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &openaiProvider{
		client:         client,
		name:           "azure_openai",
		model:          model,
		embeddingModel: cfg.EmbeddingModel,
	}, nil
}
