// Package gemini provides an embedding provider backed by Google's
// Gemini API. The default model is gemini-embedding-001 (768
// dimensions when truncated output is requested).
package gemini

import (
	"context"
	"fmt"
	"os"

	"google.golang.org/genai"
)

// Config holds Gemini-specific configuration.
type Config struct {
	// Optional. API key; defaults to the GEMINI_API_KEY environment
	// variable.
	APIKey string

	// Optional. Vector dimensionality to request from the API.
	// Defaults to 768.
	Dimensions int
}

// Option configures the Gemini provider.
type Option func(*Config)

// WithConfig replaces the default configuration.
func WithConfig(cfg *Config) Option {
	return func(c *Config) {
		if cfg != nil {
			*c = *cfg
		}
	}
}

// Provider implements embed.Provider against the Gemini embedding API.
type Provider struct {
	client *genai.Client
	model  string
	dims   int
}

// New creates a Gemini embedding provider for the given model.
//
// Example:
//
//	provider, err := gemini.New("gemini-embedding-001")
//	client := embed.New(provider)
func New(ctx context.Context, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		model = "gemini-embedding-001"
	}

	cfg := &Config{Dimensions: 768}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &Provider{client: client, model: model, dims: cfg.Dimensions}, nil
}

// Embed returns one vector per input text using a single batched call.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	dims := int32(p.dims)
	resp, err := p.client.Models.EmbedContent(ctx, p.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini returned %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		vectors[i] = emb.Values
	}
	return vectors, nil
}

// Model returns the model identifier.
func (p *Provider) Model() string { return p.model }

// Dimensions returns the configured vector dimensionality.
func (p *Provider) Dimensions() int { return p.dims }
