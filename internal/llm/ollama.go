package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"fossmate.app/fossmate/core/config"
)

// ollamaProvider talks to a local Ollama daemon over its native HTTP API.
// No client library: the API is two JSON endpoints.
type ollamaProvider struct {
	baseURL string
	model   string
	client  *http.Client
}

func newOllamaProvider(cfg config.LLMConfig) Provider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	model := cfg.Model
	if model == "" {
		model = "llama3.1"
	}
	return &ollamaProvider{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (p *ollamaProvider) Generate(ctx context.Context, prompt, systemPrompt string) (string, error) {
	resp, err := p.post(ctx, "/api/generate", ollamaGenerateRequest{
		Model:  p.model,
		Prompt: prompt,
		System: systemPrompt,
		Stream: false,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ollama generate: decoding response: %w", err)
	}
	return out.Response, nil
}

func (p *ollamaProvider) StreamGenerate(ctx context.Context, prompt, systemPrompt string) (TokenStream, error) {
	resp, err := p.post(ctx, "/api/generate", ollamaGenerateRequest{
		Model:  p.model,
		Prompt: prompt,
		System: systemPrompt,
		Stream: true,
	})
	if err != nil {
		return nil, err
	}
	// Streaming responses are newline-delimited JSON objects.
	return &ollamaTokenStream{
		body:    resp.Body,
		scanner: bufio.NewScanner(resp.Body),
	}, nil
}

func (p *ollamaProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := p.post(ctx, "/api/embeddings", map[string]any{
		"model":  p.model,
		"prompt": text,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ollama embed: decoding response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("ollama embed: empty embedding")
	}
	return out.Embedding, nil
}

func (p *ollamaProvider) Capabilities() Capabilities {
	return Capabilities{Streaming: true, StructuredOutput: false, Embeddings: true}
}

func (p *ollamaProvider) ProviderName() string { return "ollama" }
func (p *ollamaProvider) ModelName() string    { return p.model }

func (p *ollamaProvider) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("ollama: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("ollama: %s returned %d: %s", path, resp.StatusCode, string(data))
	}
	return resp, nil
}

type ollamaTokenStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	token   string
	err     error
	done    bool
}

func (s *ollamaTokenStream) Next() bool {
	if s.done {
		return false
	}
	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ollamaGenerateResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			s.err = fmt.Errorf("ollama stream: decoding chunk: %w", err)
			s.close()
			return false
		}
		if chunk.Done {
			s.close()
			if chunk.Response == "" {
				return false
			}
		}
		if chunk.Response != "" {
			s.token = chunk.Response
			return true
		}
	}
	if err := s.scanner.Err(); err != nil && s.err == nil {
		s.err = err
	}
	s.close()
	return false
}

func (s *ollamaTokenStream) Token() string { return s.token }
func (s *ollamaTokenStream) Err() error    { return s.err }

func (s *ollamaTokenStream) close() {
	if !s.done {
		s.done = true
		s.body.Close()
	}
}
