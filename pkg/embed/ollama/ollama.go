// Package ollama provides an embedding provider backed by a local or
// remote Ollama server. The default model is nomic-embed-text, which
// produces 768-dimensional embeddings.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

// Config holds Ollama-specific configuration. All fields are optional
// with sensible defaults.
type Config struct {
	// Optional. Ollama server host (defaults to localhost:11434 or
	// the OLLAMA_HOST environment variable).
	Host string

	// Optional. Vector dimensionality the model produces. Defaults to
	// 768 for nomic-embed-text; used to fail closed on mismatches.
	Dimensions int

	// Optional. HTTP client for the Ollama API.
	HTTPClient *http.Client
}

// Option configures the Ollama provider.
type Option func(*Config)

// WithConfig replaces the default configuration.
func WithConfig(cfg *Config) Option {
	return func(c *Config) {
		if cfg != nil {
			*c = *cfg
		}
	}
}

// WithHost sets the Ollama server host URL.
func WithHost(host string) Option {
	return func(c *Config) { c.Host = host }
}

// Provider implements embed.Provider against the Ollama embed API.
type Provider struct {
	client *api.Client
	model  string
	dims   int
}

// New creates an Ollama embedding provider for the given model.
//
// Requires an Ollama server with the model pulled; use
// `ollama pull nomic-embed-text` for the default.
//
// Example:
//
//	provider, err := ollama.New("nomic-embed-text")
//	client := embed.New(provider)
func New(model string, opts ...Option) (*Provider, error) {
	if model == "" {
		model = "nomic-embed-text"
	}

	cfg := &Config{Dimensions: 768}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}

	var client *api.Client
	if cfg.Host != "" {
		base, err := url.Parse(cfg.Host)
		if err != nil {
			return nil, fmt.Errorf("invalid ollama host %q: %w", cfg.Host, err)
		}
		client = api.NewClient(base, cfg.HTTPClient)
	} else {
		var err error
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
	}

	return &Provider{client: client, model: model, dims: cfg.Dimensions}, nil
}

// Embed returns one vector per input text using a single batched call.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := p.client.Embed(ctx, &api.EmbedRequest{
		Model: p.model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}

	return resp.Embeddings, nil
}

// Model returns the model identifier.
func (p *Provider) Model() string { return p.model }

// Dimensions returns the configured vector dimensionality.
func (p *Provider) Dimensions() int { return p.dims }
