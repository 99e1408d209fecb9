// Package llm abstracts the generation backends behind one provider
// interface so the review pipeline never depends on a specific vendor
// protocol.
package llm

import (
	"context"
	"fmt"

	"github.com/invopop/jsonschema"

	"fossmate.app/fossmate/core/config"
)

// Capabilities are static per-adapter feature flags.
type Capabilities struct {
	Streaming        bool
	StructuredOutput bool
	Embeddings       bool
}

// TokenStream is a lazy, finite, one-shot sequence of generated text
// tokens. Call Next until it returns false, then check Err. Streams are
// not restartable.
type TokenStream interface {
	Next() bool
	Token() string
	Err() error
}

// Provider is the uniform generation contract. Generate and Embed are
// atomic calls; StreamGenerate yields tokens incrementally.
type Provider interface {
	Generate(ctx context.Context, prompt, systemPrompt string) (string, error)
	StreamGenerate(ctx context.Context, prompt, systemPrompt string) (TokenStream, error)
	Embed(ctx context.Context, text string) ([]float64, error)
	Capabilities() Capabilities
	ProviderName() string
	ModelName() string
}

// StructuredGenerator is implemented by providers whose backend enforces
// a JSON schema on the response. Callers probe for it and keep the plain
// prompt-and-parse path as fallback.
type StructuredGenerator interface {
	GenerateStructured(ctx context.Context, prompt, systemPrompt, schemaName string, schema any) (string, error)
}

// SchemaFor reflects a strict response schema from a Go type for
// structured generation.
func SchemaFor[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

// New builds the adapter named by cfg.Provider.
func New(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case "openai", "openrouter", "deepseek", "custom":
		return newOpenAIProvider(cfg)
	case "azure_openai":
		return newAzureProvider(cfg)
	case "anthropic":
		return newAnthropicProvider(cfg)
	case "ollama":
		return newOllamaProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
