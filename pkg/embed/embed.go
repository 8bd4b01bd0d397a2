// Package embed turns chunk and query text into fixed-dimension
// vectors. The client batches texts, retries failed batches with
// bounded exponential backoff, caches results per (model, text) pair,
// and can substitute deterministic placeholder vectors so ingestion
// completes in degraded mode when the embedding backend is down.
// Queries never receive placeholders; a fabricated query vector would
// silently return garbage, which is worse than an explicit error.
package embed

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Yaswanth-ampolu/productdemo-sub001/pkg/rag"
)

// Provider is an embedding backend: one remote call per batch of texts,
// one vector per text. Calls must be idempotent per (model, text) pair
// for the cache to be valid.
type Provider interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Model identifies the embedding model, used for cache keys and
	// the same-model query invariant.
	Model() string

	// Dimensions is the vector dimensionality the model produces.
	Dimensions() int
}

// Config holds embedding client configuration.
type Config struct {
	// BatchSize bounds how many texts go into one backend call.
	BatchSize int

	// MaxAttempts bounds retries per batch, first try included.
	MaxAttempts int

	// Concurrency bounds how many batches are in flight at once.
	Concurrency int

	// CacheTTL is how long cached vectors stay valid. Zero disables
	// expiry; unchanged chunk text embeds identically forever.
	CacheTTL time.Duration

	// InitialBackoff is the first retry delay.
	InitialBackoff time.Duration
}

// DefaultConfig returns the defaults used by the ingestion pipeline.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      8,
		MaxAttempts:    4,
		Concurrency:    4,
		CacheTTL:       0,
		InitialBackoff: 500 * time.Millisecond,
	}
}

// Option configures the embedding client.
type Option func(*Client)

// WithCache sets the cache store for embedding results.
func WithCache(store CacheStore) Option {
	return func(c *Client) { c.cache = store }
}

// WithConfig replaces the default configuration.
func WithConfig(cfg *Config) Option {
	return func(c *Client) {
		if cfg != nil {
			c.cfg = *cfg
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// Client batches, caches and retries embedding calls against a Provider.
type Client struct {
	provider Provider
	cache    CacheStore
	cfg      Config
	log      zerolog.Logger
}

// New creates an embedding client for the given provider.
//
// Example:
//
//	provider, _ := ollama.New("nomic-embed-text")
//	client := embed.New(provider, embed.WithCache(embed.NewMemoryCache()))
func New(provider Provider, opts ...Option) *Client {
	c := &Client{
		provider: provider,
		cfg:      *DefaultConfig(),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cfg.BatchSize <= 0 {
		c.cfg.BatchSize = 8
	}
	if c.cfg.MaxAttempts <= 0 {
		c.cfg.MaxAttempts = 1
	}
	if c.cfg.Concurrency <= 0 {
		c.cfg.Concurrency = 1
	}
	return c
}

// Model returns the provider's model identifier.
func (c *Client) Model() string { return c.provider.Model() }

// Dimensions returns the provider's vector dimensionality.
func (c *Client) Dimensions() int { return c.provider.Dimensions() }

// Result is the outcome of a degradable embedding run. Placeholder[i]
// is true when Vectors[i] is a deterministic stand-in because the
// backend stayed down through all retries for that batch.
type Result struct {
	Vectors     [][]float32
	Placeholder []bool
	CacheHits   int
}

// Degraded reports whether any vector is a placeholder.
func (r *Result) Degraded() bool {
	for _, p := range r.Placeholder {
		if p {
			return true
		}
	}
	return false
}

// EmbedQuery embeds a single query text. Strict: no placeholder is
// ever substituted on this path.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedStrict(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedStrict embeds texts and fails on any batch that exhausts its
// retries.
func (c *Client) EmbedStrict(ctx context.Context, texts []string) ([][]float32, error) {
	result, err := c.run(ctx, texts, false)
	if err != nil {
		return nil, err
	}
	return result.Vectors, nil
}

// EmbedDegradable embeds texts for the ingestion write path: a batch
// that exhausts its retries gets deterministic placeholder vectors of
// the correct dimensionality, flagged in the Result so the caller can
// mark affected chunks for later backfill.
func (c *Client) EmbedDegradable(ctx context.Context, texts []string) (*Result, error) {
	return c.run(ctx, texts, true)
}

func (c *Client) run(ctx context.Context, texts []string, placeholderOnFailure bool) (*Result, error) {
	result := &Result{
		Vectors:     make([][]float32, len(texts)),
		Placeholder: make([]bool, len(texts)),
	}
	if len(texts) == 0 {
		return result, nil
	}

	model := c.provider.Model()
	missing := make([]int, 0, len(texts))
	for i, text := range texts {
		if vec := c.cacheGet(model, text); vec != nil {
			result.Vectors[i] = vec
			result.CacheHits++
			continue
		}
		missing = append(missing, i)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)

	for start := 0; start < len(missing); start += c.cfg.BatchSize {
		end := start + c.cfg.BatchSize
		if end > len(missing) {
			end = len(missing)
		}
		batch := missing[start:end]

		g.Go(func() error {
			batchTexts := make([]string, len(batch))
			for j, idx := range batch {
				batchTexts[j] = texts[idx]
			}

			vectors, err := c.embedBatch(gctx, batchTexts)
			if err != nil {
				if !placeholderOnFailure {
					return err
				}
				c.log.Warn().Err(err).Int("batch_size", len(batch)).
					Msg("embedding batch failed, substituting placeholder vectors")
				for _, idx := range batch {
					result.Vectors[idx] = PlaceholderVector(model, texts[idx], c.provider.Dimensions())
					result.Placeholder[idx] = true
				}
				return nil
			}

			for j, idx := range batch {
				result.Vectors[idx] = vectors[j]
				c.cacheSet(model, texts[idx], vectors[j])
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// embedBatch issues one backend call with bounded exponential backoff.
// Dimension mismatches are permanent: retrying a deterministic model
// mismatch cannot succeed.
func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	operation := func() ([][]float32, error) {
		vectors, err := c.provider.Embed(ctx, texts)
		if err != nil {
			if !rag.IsRetryable(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if len(vectors) != len(texts) {
			return nil, backoff.Permanent(fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), len(texts)))
		}
		want := c.provider.Dimensions()
		for _, vec := range vectors {
			if want > 0 && len(vec) != want {
				return nil, backoff.Permanent(&rag.DimensionError{Want: want, Got: len(vec)})
			}
		}
		return vectors, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialBackoff

	vectors, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(c.cfg.MaxAttempts)))
	if err != nil {
		return nil, &rag.EmbeddingError{Model: c.provider.Model(), Attempts: c.cfg.MaxAttempts, Err: err}
	}
	return vectors, nil
}

func (c *Client) cacheGet(model, text string) []float32 {
	if c.cache == nil {
		return nil
	}
	data, err := c.cache.Get(CacheKey(model, text))
	if err != nil || data == nil {
		return nil
	}
	vec, err := decodeVector(data)
	if err != nil {
		return nil
	}
	if want := c.provider.Dimensions(); want > 0 && len(vec) != want {
		return nil // stale entry from a different model configuration
	}
	return vec
}

func (c *Client) cacheSet(model, text string, vec []float32) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(CacheKey(model, text), encodeVector(vec), c.cfg.CacheTTL); err != nil {
		c.log.Debug().Err(err).Msg("embedding cache write failed")
	}
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("malformed cached vector: %d bytes", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
