// Package vectorstore defines the storage abstraction for chunk
// embeddings and a failover wrapper that keeps ingestion and retrieval
// available when the primary backend is down. Backend implementations
// live in subpackages (qdrant, pgvector, filestore).
package vectorstore

import (
	"context"

	"github.com/Yaswanth-ampolu/productdemo-sub001/pkg/rag"
)

// SearchQuery describes one similarity search.
type SearchQuery struct {
	// Vector is the query embedding. Required.
	Vector []float32

	// Limit bounds the number of hits returned.
	Limit int

	// Threshold drops hits scoring below it. Zero disables the cutoff.
	Threshold float64

	// SessionID restricts hits to records carrying the same session
	// metadata. Empty matches all sessions.
	SessionID string

	// DocumentID restricts hits to one document. Empty matches all.
	DocumentID string

	// ExcludeDocuments drops records belonging to any of these
	// documents. Session-scoped searches use it to hide superseded
	// uploads while keeping their records reachable by DocumentID.
	ExcludeDocuments []string
}

// Store persists chunk embeddings and answers similarity searches.
//
// Upsert is idempotent per record ID: re-writing a chunk replaces its
// vector and metadata. Implementations must return hits in descending
// score order.
type Store interface {
	// Name identifies the backend for logs and error context.
	Name() string

	// Upsert writes records, replacing any with the same ID.
	Upsert(ctx context.Context, records []rag.VectorRecord) error

	// Search returns the closest records to the query vector, best
	// first, honoring the query's limit, threshold and filters.
	Search(ctx context.Context, query SearchQuery) ([]rag.RetrievalResult, error)

	// DeleteByDocument removes every record belonging to the document.
	DeleteByDocument(ctx context.Context, documentID string) error

	// Health reports whether the backend is reachable.
	Health(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
