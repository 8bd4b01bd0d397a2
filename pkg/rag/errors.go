package rag

import (
	"errors"
	"fmt"
)

// ExtractionError reports an unsupported or unreadable source document.
// Terminal for that document's generation; never aborts sibling ingestions.
type ExtractionError struct {
	Filename string
	Format   string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s (%s): %v", e.Filename, e.Format, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// EmbeddingError reports an embedding backend failure after retries are
// exhausted. On the ingestion write path the caller may substitute a
// placeholder vector; on the query path it is always fatal.
type EmbeddingError struct {
	Model    string
	Attempts int
	Err      error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embed with %s after %d attempts: %v", e.Model, e.Attempts, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// DimensionError reports vectors that do not match the collection's
// dimensionality. Comparing incompatible vector spaces fails closed.
type DimensionError struct {
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: want %d, got %d", e.Want, e.Got)
}

// StoreError reports a vector store backend failure. Backend is the
// backend that failed; when the failover wrapper exhausts both backends
// it wraps the fallback's StoreError.
type StoreError struct {
	Backend string
	Op      string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("vector store %s: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// RetrievalError reports a fatal query pipeline failure: either query
// embedding failed, or the store was unreachable on both backends.
// Empty or low-confidence results are not retrieval errors.
type RetrievalError struct {
	Stage string
	Err   error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieve: %s: %v", e.Stage, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// IsRetryable reports whether an error may succeed on retry. Dimension
// mismatches and extraction failures are deterministic and never retried.
func IsRetryable(err error) bool {
	var de *DimensionError
	var xe *ExtractionError
	if errors.As(err, &de) || errors.As(err, &xe) {
		return false
	}
	return err != nil
}
