// Package retrieve implements the query pipeline: embed the query,
// search the vector store, re-rank the hits, assemble a bounded
// context block and score confidence. The output is a ContextPackage
// the caller splices into a chat prompt, with citations back to the
// source chunks.
package retrieve

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hbollon/go-edlib"
	"github.com/rs/zerolog"

	"github.com/Yaswanth-ampolu/productdemo-sub001/pkg/embed"
	"github.com/Yaswanth-ampolu/productdemo-sub001/pkg/rag"
	"github.com/Yaswanth-ampolu/productdemo-sub001/pkg/vectorstore"
)

// chunkSeparator joins chunks in the assembled context text.
const chunkSeparator = "\n\n---\n\n"

// previewRunes bounds citation previews.
const previewRunes = 160

// Config holds query pipeline configuration.
type Config struct {
	// TopK bounds how many chunks make it into the context.
	TopK int

	// Threshold is the similarity floor. Hits below it are dropped
	// unless nothing clears it, in which case the best hits are kept
	// and the package is flagged low-confidence.
	Threshold float64

	// TokenBudget bounds the assembled context size, estimated at four
	// characters per token. Chunks that do not fit are skipped whole,
	// never truncated mid-chunk.
	TokenBudget int

	// CandidateMultiplier controls how many extra hits are fetched for
	// re-ranking (TopK * multiplier).
	CandidateMultiplier int
}

// DefaultConfig returns the defaults used by the query pipeline.
func DefaultConfig() *Config {
	return &Config{
		TopK:                5,
		Threshold:           0.7,
		TokenBudget:         2000,
		CandidateMultiplier: 3,
	}
}

// SessionView reports which documents a session-scoped search must
// skip because a later upload superseded them. The ingestion session
// registry implements it.
type SessionView interface {
	Superseded(sessionID string) []string
}

// Option configures the pipeline.
type Option func(*Pipeline)

// WithConfig replaces the default configuration.
func WithConfig(cfg *Config) Option {
	return func(p *Pipeline) {
		if cfg != nil {
			p.cfg = *cfg
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(p *Pipeline) { p.log = log }
}

// WithSessionView excludes superseded session documents from search.
// Without it, session-scoped queries see every document in the session.
func WithSessionView(view SessionView) Option {
	return func(p *Pipeline) { p.sessions = view }
}

// Pipeline answers queries against ingested documents.
type Pipeline struct {
	embedder *embed.Client
	store    vectorstore.Store
	sessions SessionView
	cfg      Config
	log      zerolog.Logger
}

// New creates a query pipeline.
//
// Example:
//
//	pipeline := retrieve.New(embedClient, store)
//	pkg, err := pipeline.Retrieve(ctx, "what does the contract say about termination?", sessionID)
func New(embedder *embed.Client, store vectorstore.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		embedder: embedder,
		store:    store,
		cfg:      *DefaultConfig(),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.cfg.TopK <= 0 {
		p.cfg.TopK = 5
	}
	if p.cfg.CandidateMultiplier <= 0 {
		p.cfg.CandidateMultiplier = 3
	}
	return p
}

// Retrieve runs the full query pipeline. An empty result set is a
// valid outcome, returned as an empty package with confidence zero;
// errors are reserved for pipeline failures (query embedding, or both
// storage backends down).
func (p *Pipeline) Retrieve(ctx context.Context, query, sessionID string) (*rag.ContextPackage, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &rag.RetrievalError{Stage: "embed", Err: fmt.Errorf("query is empty")}
	}

	vector, err := p.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, &rag.RetrievalError{Stage: "embed", Err: err}
	}

	// Overfetch so re-ranking has candidates beyond the final TopK.
	// The backend threshold stays off; the cutoff is applied after
	// re-ranking so near misses can still be flagged low-confidence
	// instead of silently vanishing.
	search := vectorstore.SearchQuery{
		Vector:    vector,
		Limit:     p.cfg.TopK * p.cfg.CandidateMultiplier,
		SessionID: sessionID,
	}
	if sessionID != "" && p.sessions != nil {
		search.ExcludeDocuments = p.sessions.Superseded(sessionID)
	}
	hits, err := p.store.Search(ctx, search)
	if err != nil {
		return nil, &rag.RetrievalError{Stage: "search", Err: err}
	}
	if len(hits) == 0 {
		p.log.Debug().Str("session_id", sessionID).Msg("no hits for query")
		return &rag.ContextPackage{}, nil
	}

	ranked := p.rerank(query, hits)

	// Similarity cutoff after re-ranking
	selected := make([]rag.RetrievalResult, 0, p.cfg.TopK)
	for _, r := range ranked {
		if r.Score >= p.cfg.Threshold {
			selected = append(selected, r)
		}
		if len(selected) == p.cfg.TopK {
			break
		}
	}
	lowConfidence := false
	if len(selected) == 0 {
		// Nothing clears the bar; surface the best hits anyway but say so
		lowConfidence = true
		n := min(p.cfg.TopK, len(ranked))
		selected = ranked[:n]
	}

	contextText, included := p.assemble(selected)
	pkg := &rag.ContextPackage{
		ContextText:   contextText,
		Results:       included,
		Sources:       citations(included),
		Confidence:    p.confidence(included),
		LowConfidence: lowConfidence,
	}

	p.log.Debug().
		Int("candidates", len(hits)).
		Int("included", len(included)).
		Float64("confidence", pkg.Confidence).
		Bool("low_confidence", pkg.LowConfidence).
		Msg("query answered")
	return pkg, nil
}

// Augment splices retrieved context into a chat prompt. With an empty
// package the question passes through unchanged.
func Augment(question string, pkg *rag.ContextPackage) string {
	if pkg.Empty() {
		return question
	}
	var b strings.Builder
	b.WriteString("Use the following context to answer the question. ")
	b.WriteString("If the context does not contain the answer, say so.\n\n")
	b.WriteString("Context:\n")
	b.WriteString(pkg.ContextText)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	return b.String()
}

// rerank orders candidates by a blend of vector similarity, lexical
// overlap with the query and recency. Similarity dominates; the other
// signals break near-ties between chunks the embedding model scores
// alike. Ties fall back to backend rank, keeping the sort stable.
func (p *Pipeline) rerank(query string, hits []rag.RetrievalResult) []rag.RetrievalResult {
	type scored struct {
		result   rag.RetrievalResult
		combined float64
		rank     int
	}

	now := time.Now()
	items := make([]scored, len(hits))
	for i, hit := range hits {
		lexical := float64(edlib.JaccardSimilarity(strings.ToLower(query), strings.ToLower(hit.Text), 0))
		items[i] = scored{
			result:   hit,
			combined: 0.8*hit.Score + 0.1*lexical + 0.1*recency(hit.Metadata, now),
			rank:     i,
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].combined != items[j].combined {
			return items[i].combined > items[j].combined
		}
		return items[i].rank < items[j].rank
	})

	ranked := make([]rag.RetrievalResult, len(items))
	for i, item := range items {
		ranked[i] = item.result
	}
	return ranked
}

// recency maps the chunk's ingestion time to [0,1] with a 30-day
// linear decay. Chunks without a timestamp score neutral 0.5.
func recency(metadata map[string]any, now time.Time) float64 {
	created, _ := metadata[rag.MetaCreated].(string)
	if created == "" {
		return 0.5
	}
	t, err := time.Parse(time.RFC3339, created)
	if err != nil {
		return 0.5
	}
	age := now.Sub(t)
	if age <= 0 {
		return 1
	}
	const horizon = 30 * 24 * time.Hour
	if age >= horizon {
		return 0
	}
	return 1 - float64(age)/float64(horizon)
}

// assemble concatenates chunks separated by the chunk separator until
// the token budget is reached. A chunk that would blow the budget is
// skipped, not truncated, and assembly moves on to the next.
func (p *Pipeline) assemble(results []rag.RetrievalResult) (string, []rag.RetrievalResult) {
	var b strings.Builder
	included := make([]rag.RetrievalResult, 0, len(results))
	budget := p.cfg.TokenBudget

	for _, r := range results {
		cost := estimateTokens(r.Text)
		if len(included) > 0 {
			cost += estimateTokens(chunkSeparator)
		}
		if budget > 0 && cost > budget {
			continue
		}
		if len(included) > 0 {
			b.WriteString(chunkSeparator)
		}
		b.WriteString(r.Text)
		included = append(included, r)
		if budget > 0 {
			budget -= cost
		}
	}
	return b.String(), included
}

// estimateTokens approximates tokens as one per four characters.
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// confidence blends the best similarity, the mean similarity of the
// included chunks and how many of them clear the threshold.
func (p *Pipeline) confidence(included []rag.RetrievalResult) float64 {
	if len(included) == 0 {
		return 0
	}

	top := included[0].Score
	var sum float64
	cleared := 0
	for _, r := range included {
		if r.Score > top {
			top = r.Score
		}
		sum += r.Score
		if r.Score >= p.cfg.Threshold {
			cleared++
		}
	}
	mean := sum / float64(len(included))
	thresholdBonus := float64(cleared) / float64(len(included))

	score := 0.6*top + 0.25*mean + 0.15*thresholdBonus
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func citations(included []rag.RetrievalResult) []rag.Citation {
	sources := make([]rag.Citation, 0, len(included))
	for _, r := range included {
		docID, _ := r.Metadata[rag.MetaDocumentID].(string)
		filename, _ := r.Metadata[rag.MetaFilename].(string)
		ordinal := 0
		switch v := r.Metadata[rag.MetaOrdinal].(type) {
		case int:
			ordinal = v
		case int64:
			ordinal = int(v)
		case float64:
			ordinal = int(v)
		}
		sources = append(sources, rag.Citation{
			DocumentID:   docID,
			Filename:     filename,
			ChunkOrdinal: ordinal,
			Preview:      preview(r.Text),
			Score:        r.Score,
		})
	}
	return sources
}

func preview(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= previewRunes {
		return string(runes)
	}
	return string(runes[:previewRunes]) + "…"
}
