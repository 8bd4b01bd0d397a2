// Package rag defines the shared data model for the document retrieval
// pipeline: documents and their ingestion lifecycle, chunks, persisted
// vector records, per-query retrieval results and the assembled context
// package handed to the chat collaborator.
package rag

import (
	"fmt"
	"time"
)

// IngestStatus tracks a document generation through the ingestion
// state machine. Transitions are one-directional; Ready and Failed
// are terminal.
type IngestStatus string

const (
	// StatusPending means the document is registered but not yet processed.
	StatusPending IngestStatus = "pending"
	// StatusExtracting means text extraction is in progress.
	StatusExtracting IngestStatus = "extracting"
	// StatusChunking means the extracted text is being split into chunks.
	StatusChunking IngestStatus = "chunking"
	// StatusEmbedding means chunk embeddings are being generated and stored.
	StatusEmbedding IngestStatus = "embedding"
	// StatusReady means all chunks are searchable.
	StatusReady IngestStatus = "ready"
	// StatusFailed means ingestion stopped with an error.
	StatusFailed IngestStatus = "failed"
)

// Terminal reports whether the status is a final state.
func (s IngestStatus) Terminal() bool {
	return s == StatusReady || s == StatusFailed
}

// Document identifies one uploaded source file for a single ingestion
// generation. Re-ingestion creates a fresh Document with a new
// Generation id rather than mutating the old one in place.
type Document struct {
	ID         string       `json:"id"`
	Generation string       `json:"generation"`
	Owner      string       `json:"owner,omitempty"`
	SessionID  string       `json:"session_id,omitempty"`
	Filename   string       `json:"filename"`
	Path       string       `json:"path"`
	Status     IngestStatus `json:"status"`
	Progress   int          `json:"progress"`
	Error      string       `json:"error,omitempty"`
	ChunkCount int          `json:"chunk_count"`
	// Superseded marks a document replaced by a later upload in its
	// session. Its vectors stay reachable by document id, but default
	// session-scoped search skips them.
	Superseded bool      `json:"superseded,omitempty"`
	Created    time.Time `json:"created"`
	Updated    time.Time `json:"updated"`
}

// Chunk is a contiguous span of a document's extracted text. Ordinals
// are contiguous starting at 0 within one generation.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	SessionID  string    `json:"session_id,omitempty"`
	Ordinal    int       `json:"ordinal"`
	Text       string    `json:"text"`
	Start      int       `json:"start"` // rune offset into the extracted text
	End        int       `json:"end"`
	Vector     []float32 `json:"vector,omitempty"`
}

// ChunkID derives the deterministic record id for a chunk.
func ChunkID(documentID string, ordinal int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, ordinal)
}

// VectorRecord is the unit persisted by the vector store: one chunk,
// its embedding, and the metadata needed for filtering and citations.
// Records are written once per generation and never partially updated.
type VectorRecord struct {
	ID       string         `json:"id"`
	Vector   []float32      `json:"vector"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Well-known metadata keys carried on every VectorRecord.
const (
	MetaDocumentID  = "document_id"
	MetaGeneration  = "generation"
	MetaSessionID   = "session_id"
	MetaFilename    = "filename"
	MetaOrdinal     = "ordinal"
	MetaCreated     = "created"
	MetaPlaceholder = "placeholder_embedding"
)

// RetrievalResult is one search hit: the chunk text, its metadata and
// the similarity score reported by the backend. Ephemeral, per query.
type RetrievalResult struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score"`
}

// Citation maps an included chunk back to its source for display.
type Citation struct {
	DocumentID   string  `json:"document_id"`
	Filename     string  `json:"filename"`
	ChunkOrdinal int     `json:"chunk_ordinal"`
	Preview      string  `json:"preview"`
	Score        float64 `json:"score"`
}

// ContextPackage is the query pipeline output: the assembled context
// text bounded by the token budget, the results that made it in, a
// 0-1 confidence score and citations for each included chunk.
//
// An empty package (no results, confidence zero) is a valid outcome
// and signals the caller to proceed without augmentation.
type ContextPackage struct {
	ContextText   string            `json:"context_text"`
	Results       []RetrievalResult `json:"results"`
	Sources       []Citation        `json:"sources"`
	Confidence    float64           `json:"confidence"`
	LowConfidence bool              `json:"low_confidence"`
}

// Empty reports whether the package carries no retrieved context.
func (p *ContextPackage) Empty() bool {
	return p == nil || len(p.Results) == 0 || p.ContextText == ""
}
