package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"fossmate.app/fossmate/core/config"
)

// openaiProvider serves every OpenAI-compatible backend: openai proper,
// openrouter, deepseek and self-hosted gateways ("custom"), selected by
// base URL.
type openaiProvider struct {
	client         openai.Client
	name           string
	model          string
	embeddingModel string
}

func newOpenAIProvider(cfg config.LLMConfig) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for provider %s", cfg.Provider)
	}

	baseURL := cfg.BaseURL
	switch cfg.Provider {
	case "openrouter":
		if baseURL == "" {
			baseURL = "https://openrouter.ai/api/v1"
		}
	case "deepseek":
		if baseURL == "" {
			baseURL = "https://api.deepseek.com/v1"
		}
	case "custom":
		if baseURL == "" {
			return nil, fmt.Errorf("custom provider requires an endpoint")
		}
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &openaiProvider{
		client:         openai.NewClient(opts...),
		name:           cfg.Provider,
		model:          model,
		embeddingModel: cfg.EmbeddingModel,
	}, nil
}

func (p *openaiProvider) Generate(ctx context.Context, prompt, systemPrompt string) (string, error) {
	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, p.chatParams(prompt, systemPrompt))
	if err != nil {
		return "", fmt.Errorf("%s generate: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s generate: no choices in response", p.name)
	}

	slog.DebugContext(ctx, "generation completed",
		"provider", p.name,
		"model", p.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	return resp.Choices[0].Message.Content, nil
}

// GenerateStructured constrains the response to a strict JSON schema.
func (p *openaiProvider) GenerateStructured(ctx context.Context, prompt, systemPrompt, schemaName string, schema any) (string, error) {
	params := p.chatParams(prompt, systemPrompt)
	params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
			JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:        schemaName,
				Description: openai.String("Structured response schema"),
				Schema:      schema,
				Strict:      openai.Bool(true),
			},
		},
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%s structured generate: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s structured generate: no choices in response", p.name)
	}
	return resp.Choices[0].Message.Content, nil
}

func (p *openaiProvider) StreamGenerate(ctx context.Context, prompt, systemPrompt string) (TokenStream, error) {
	stream := p.client.Chat.Completions.NewStreaming(ctx, p.chatParams(prompt, systemPrompt))
	return &openaiTokenStream{stream: stream}, nil
}

func (p *openaiProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	model := p.embeddingModel
	if model == "" {
		model = "text-embedding-3-small"
	}

	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%s embed: %w", p.name, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%s embed: empty response", p.name)
	}
	return resp.Data[0].Embedding, nil
}

func (p *openaiProvider) Capabilities() Capabilities {
	return Capabilities{Streaming: true, StructuredOutput: true, Embeddings: true}
}

func (p *openaiProvider) ProviderName() string { return p.name }
func (p *openaiProvider) ModelName() string    { return p.model }

func (p *openaiProvider) chatParams(prompt, systemPrompt string) openai.ChatCompletionNewParams {
	var messages []openai.ChatCompletionMessageParamUnion
	if systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	messages = append(messages, openai.UserMessage(prompt))

	return openai.ChatCompletionNewParams{
		Model:    p.model,
		Messages: messages,
	}
}

type openaiTokenStream struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
	token  string
}

func (s *openaiTokenStream) Next() bool {
	for s.stream.Next() {
		chunk := s.stream.Current()
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			s.token = chunk.Choices[0].Delta.Content
			return true
		}
	}
	return false
}

func (s *openaiTokenStream) Token() string { return s.token }
func (s *openaiTokenStream) Err() error    { return s.stream.Err() }
