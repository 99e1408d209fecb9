package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// FallbackProvider tries an ordered list of providers, primary first.
// Generate and Embed are atomic, so they may restart on the next provider
// after any failure. StreamGenerate only falls through while no token has
// been yielded; once partial output is emitted the stream simply stops on
// failure rather than silently re-streaming from another backend.
type FallbackProvider struct {
	providers []Provider
}

func NewFallbackProvider(providers ...Provider) (*FallbackProvider, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("at least one provider is required")
	}
	return &FallbackProvider{providers: providers}, nil
}

func (f *FallbackProvider) Generate(ctx context.Context, prompt, systemPrompt string) (string, error) {
	var lastErr error
	for _, p := range f.providers {
		text, err := p.Generate(ctx, prompt, systemPrompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		slog.WarnContext(ctx, "provider generate failed, trying next",
			"provider", p.ProviderName(), "error", err)
	}
	return "", fmt.Errorf("all providers failed, last error: %w", lastErr)
}

func (f *FallbackProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	var lastErr error
	for _, p := range f.providers {
		vector, err := p.Embed(ctx, text)
		if err == nil {
			return vector, nil
		}
		lastErr = err
		slog.WarnContext(ctx, "provider embed failed, trying next",
			"provider", p.ProviderName(), "error", err)
	}
	return nil, fmt.Errorf("all providers failed, last error: %w", lastErr)
}

// GenerateStructured falls through to the first provider whose backend
// supports schema-constrained output.
func (f *FallbackProvider) GenerateStructured(ctx context.Context, prompt, systemPrompt, schemaName string, schema any) (string, error) {
	var lastErr error
	for _, p := range f.providers {
		sg, ok := p.(StructuredGenerator)
		if !ok {
			continue
		}
		text, err := sg.GenerateStructured(ctx, prompt, systemPrompt, schemaName, schema)
		if err == nil {
			return text, nil
		}
		lastErr = err
		slog.WarnContext(ctx, "provider structured generate failed, trying next",
			"provider", p.ProviderName(), "error", err)
	}
	if lastErr == nil {
		return "", fmt.Errorf("no provider supports structured output")
	}
	return "", fmt.Errorf("all providers failed, last error: %w", lastErr)
}

func (f *FallbackProvider) StreamGenerate(ctx context.Context, prompt, systemPrompt string) (TokenStream, error) {
	return &fallbackTokenStream{
		ctx:          ctx,
		providers:    f.providers,
		prompt:       prompt,
		systemPrompt: systemPrompt,
	}, nil
}

// Capabilities reports the union of what any provider in the chain can
// serve, since calls fall through until one succeeds.
func (f *FallbackProvider) Capabilities() Capabilities {
	var caps Capabilities
	for _, p := range f.providers {
		pc := p.Capabilities()
		caps.Streaming = caps.Streaming || pc.Streaming
		caps.StructuredOutput = caps.StructuredOutput || pc.StructuredOutput
		caps.Embeddings = caps.Embeddings || pc.Embeddings
	}
	return caps
}

func (f *FallbackProvider) ProviderName() string {
	names := make([]string, len(f.providers))
	for i, p := range f.providers {
		names[i] = p.ProviderName()
	}
	return "fallback(" + strings.Join(names, ",") + ")"
}

// ModelName reports the primary's model; Primary exposes the provider
// actually used for run attribution.
func (f *FallbackProvider) ModelName() string {
	return f.providers[0].ModelName()
}

func (f *FallbackProvider) Primary() Provider {
	return f.providers[0]
}

// fallbackTokenStream tries each provider lazily on the first Next call
// and locks onto the first one that yields a token.
type fallbackTokenStream struct {
	ctx          context.Context
	providers    []Provider
	prompt       string
	systemPrompt string

	active  TokenStream
	started bool
	token   string
	err     error
}

func (s *fallbackTokenStream) Next() bool {
	if s.active != nil {
		if s.active.Next() {
			s.token = s.active.Token()
			return true
		}
		// Mid-stream failure: tokens already emitted are not retracted
		// and no other provider restarts the stream.
		s.err = s.active.Err()
		return false
	}

	if s.started {
		return false
	}
	s.started = true

	var lastErr error
	for _, p := range s.providers {
		stream, err := p.StreamGenerate(s.ctx, s.prompt, s.systemPrompt)
		if err != nil {
			lastErr = err
			slog.WarnContext(s.ctx, "provider stream failed to open, trying next",
				"provider", p.ProviderName(), "error", err)
			continue
		}
		if stream.Next() {
			s.active = stream
			s.token = stream.Token()
			return true
		}
		if streamErr := stream.Err(); streamErr != nil {
			lastErr = streamErr
			slog.WarnContext(s.ctx, "provider stream failed before first token, trying next",
				"provider", p.ProviderName(), "error", streamErr)
			continue
		}
		// Clean end with no tokens counts as a successful empty stream.
		return false
	}

	if lastErr != nil {
		s.err = fmt.Errorf("all providers failed, last error: %w", lastErr)
	}
	return false
}

func (s *fallbackTokenStream) Token() string { return s.token }
func (s *fallbackTokenStream) Err() error    { return s.err }
