// Package openai provides an embedding provider backed by the OpenAI
// embeddings API. The default model is text-embedding-3-small (1536
// dimensions).
package openai

import (
	"context"
	"fmt"
	"os"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// Config holds OpenAI-specific configuration.
type Config struct {
	// Optional. API key; defaults to the OPENAI_API_KEY environment
	// variable.
	APIKey string

	// Optional. Override the API base URL (Azure, proxies, local
	// OpenAI-compatible servers).
	BaseURL string

	// Optional. Vector dimensionality. Defaults per known model;
	// 1536 otherwise.
	Dimensions int
}

// Option configures the OpenAI provider.
type Option func(*Config)

// WithConfig replaces the default configuration.
func WithConfig(cfg *Config) Option {
	return func(c *Config) {
		if cfg != nil {
			*c = *cfg
		}
	}
}

// Provider implements embed.Provider against the OpenAI embeddings API.
type Provider struct {
	client openai.Client
	model  string
	dims   int
}

// New creates an OpenAI embedding provider for the given model.
//
// Example:
//
//	provider, err := openai.New("text-embedding-3-small")
//	client := embed.New(provider, embed.WithCache(cache))
func New(model string, opts ...Option) (*Provider, error) {
	if model == "" {
		model = string(openai.EmbeddingModelTextEmbedding3Small)
	}

	cfg := &Config{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required (set OPENAI_API_KEY)")
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = defaultDimensions(model)
	}

	requestOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		requestOpts = append(requestOpts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Provider{
		client: openai.NewClient(requestOpts...),
		model:  model,
		dims:   cfg.Dimensions,
	}, nil
}

// Embed returns one vector per input text using a single batched call.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(resp.Data))
	for _, item := range resp.Data {
		vec := make([]float32, len(item.Embedding))
		for j, f := range item.Embedding {
			vec[j] = float32(f)
		}
		vectors[int(item.Index)] = vec
	}
	return vectors, nil
}

// Model returns the model identifier.
func (p *Provider) Model() string { return p.model }

// Dimensions returns the configured vector dimensionality.
func (p *Provider) Dimensions() int { return p.dims }

func defaultDimensions(model string) int {
	switch model {
	case string(openai.EmbeddingModelTextEmbedding3Large):
		return 3072
	case string(openai.EmbeddingModelTextEmbeddingAda002),
		string(openai.EmbeddingModelTextEmbedding3Small):
		return 1536
	default:
		return 1536
	}
}
