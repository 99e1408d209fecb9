package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"fossmate.app/fossmate/core/config"
)

const anthropicMaxTokens = 4096

type anthropicProvider struct {
	client anthropic.Client
	model  string
}

func newAnthropicProvider(cfg config.LLMConfig) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for provider anthropic")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-5-20250514"
	}

	return &anthropicProvider{
		client: anthropic.NewClient(opts...),
		model:  model,
	}, nil
}

func (p *anthropicProvider) Generate(ctx context.Context, prompt, systemPrompt string) (string, error) {
	start := time.Now()
	resp, err := p.client.Messages.New(ctx, p.messageParams(prompt, systemPrompt))
	if err != nil {
		return "", fmt.Errorf("anthropic generate: %w", err)
	}

	slog.DebugContext(ctx, "generation completed",
		"provider", "anthropic",
		"model", p.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens)

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}

// GenerateStructured forces a single schema-bearing tool call and
// returns its JSON input. The Messages API has no response-format
// parameter, so tool use is the schema enforcement mechanism.
func (p *anthropicProvider) GenerateStructured(ctx context.Context, prompt, systemPrompt, schemaName string, schema any) (string, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return "", fmt.Errorf("anthropic structured generate: encoding schema: %w", err)
	}
	var parsed struct {
		Properties map[string]any `json:"properties"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("anthropic structured generate: decoding schema: %w", err)
	}

	params := p.messageParams(prompt, systemPrompt)
	params.Tools = []anthropic.ToolUnionParam{{
		OfTool: &anthropic.ToolParam{
			Name:        schemaName,
			Description: anthropic.String("Structured response schema"),
			InputSchema: anthropic.ToolInputSchemaParam{
				Type:       "object",
				Properties: parsed.Properties,
			},
		},
	}}
	params.ToolChoice = anthropic.ToolChoiceUnionParam{
		OfTool: &anthropic.ToolChoiceToolParam{Name: schemaName},
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic structured generate: %w", err)
	}
	for _, block := range resp.Content {
		if block.Type == "tool_use" {
			return string(block.Input), nil
		}
	}
	return "", fmt.Errorf("anthropic structured generate: no tool output in response")
}

func (p *anthropicProvider) StreamGenerate(ctx context.Context, prompt, systemPrompt string) (TokenStream, error) {
	stream := p.client.Messages.NewStreaming(ctx, p.messageParams(prompt, systemPrompt))
	return &anthropicTokenStream{stream: stream}, nil
}

// Embed always fails: the Messages API has no embedding surface, so the
// fallback chain advances to a provider that does.
func (p *anthropicProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	return nil, fmt.Errorf("anthropic does not support embeddings")
}

func (p *anthropicProvider) Capabilities() Capabilities {
	return Capabilities{Streaming: true, StructuredOutput: true, Embeddings: false}
}

func (p *anthropicProvider) ProviderName() string { return "anthropic" }
func (p *anthropicProvider) ModelName() string    { return p.model }

func (p *anthropicProvider) messageParams(prompt, systemPrompt string) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: anthropicMaxTokens,
		Messages: []anthropic.MessageParam{
			{
				Role:    anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(prompt)},
			},
		},
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: systemPrompt}}
	}
	return params
}

type anthropicTokenStream struct {
	stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
	token  string
}

func (s *anthropicTokenStream) Next() bool {
	for s.stream.Next() {
		event := s.stream.Current()
		if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if text, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && text.Text != "" {
				s.token = text.Text
				return true
			}
		}
	}
	return false
}

func (s *anthropicTokenStream) Token() string { return s.token }
func (s *anthropicTokenStream) Err() error    { return s.stream.Err() }
