package vectorstore

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/Yaswanth-ampolu/productdemo-sub001/pkg/rag"
)

// Route identifies which backend served an operation.
type Route string

const (
	// RoutePrimary means the primary backend served the operation.
	RoutePrimary Route = "primary"
	// RouteFallback means the fallback backend served it because the
	// primary failed.
	RouteFallback Route = "fallback"
)

// Failover wraps a primary and a fallback Store. Every operation tries
// the primary first and falls back on error, so an unreachable vector
// database degrades retrieval quality instead of taking the pipeline
// down. Deletes go to both backends: after a transient primary outage,
// records for one document may exist in either.
//
// Failover itself implements Store, so callers that don't care about
// routing can use it transparently.
type Failover struct {
	primary  Store
	fallback Store
	log      zerolog.Logger
	degraded atomic.Bool
}

// NewFailover wraps primary with fallback. Primary is required; a nil
// fallback disables failover and errors pass through unchanged.
func NewFailover(primary, fallback Store, log zerolog.Logger) *Failover {
	return &Failover{primary: primary, fallback: fallback, log: log}
}

// Name identifies the composite backend.
func (f *Failover) Name() string { return "failover(" + f.primary.Name() + ")" }

// Degraded reports whether the most recent operation was served by the
// fallback backend.
func (f *Failover) Degraded() bool { return f.degraded.Load() }

// Upsert writes records to the primary, or to the fallback when the
// primary is unreachable.
func (f *Failover) Upsert(ctx context.Context, records []rag.VectorRecord) error {
	_, err := f.UpsertVia(ctx, records)
	return err
}

// UpsertVia is Upsert plus the route that served the write.
func (f *Failover) UpsertVia(ctx context.Context, records []rag.VectorRecord) (Route, error) {
	primaryErr := f.primary.Upsert(ctx, records)
	if primaryErr == nil {
		f.degraded.Store(false)
		return RoutePrimary, nil
	}
	if f.fallback == nil {
		return RoutePrimary, &rag.StoreError{Backend: f.primary.Name(), Op: "upsert", Err: primaryErr}
	}

	f.log.Warn().Err(primaryErr).
		Str("primary", f.primary.Name()).
		Str("fallback", f.fallback.Name()).
		Int("records", len(records)).
		Msg("primary vector store unavailable, writing to fallback")

	if err := f.fallback.Upsert(ctx, records); err != nil {
		return RouteFallback, &rag.StoreError{
			Backend: f.fallback.Name(),
			Op:      "upsert",
			Err:     errors.Join(primaryErr, err),
		}
	}
	f.degraded.Store(true)
	return RouteFallback, nil
}

// Search queries the primary, or the fallback when the primary is
// unreachable.
func (f *Failover) Search(ctx context.Context, query SearchQuery) ([]rag.RetrievalResult, error) {
	results, _, err := f.SearchVia(ctx, query)
	return results, err
}

// SearchVia is Search plus the route that served the query, so callers
// can surface degraded-mode results to the user.
func (f *Failover) SearchVia(ctx context.Context, query SearchQuery) ([]rag.RetrievalResult, Route, error) {
	results, primaryErr := f.primary.Search(ctx, query)
	if primaryErr == nil {
		f.degraded.Store(false)
		return results, RoutePrimary, nil
	}
	if f.fallback == nil {
		return nil, RoutePrimary, &rag.StoreError{Backend: f.primary.Name(), Op: "search", Err: primaryErr}
	}

	f.log.Warn().Err(primaryErr).
		Str("primary", f.primary.Name()).
		Str("fallback", f.fallback.Name()).
		Msg("primary vector store unavailable, searching fallback")

	results, err := f.fallback.Search(ctx, query)
	if err != nil {
		return nil, RouteFallback, &rag.StoreError{
			Backend: f.fallback.Name(),
			Op:      "search",
			Err:     errors.Join(primaryErr, err),
		}
	}
	f.degraded.Store(true)
	return results, RouteFallback, nil
}

// DeleteByDocument removes the document's records from both backends.
// A missing document is not an error, so deleting from a backend that
// never saw the document is harmless.
func (f *Failover) DeleteByDocument(ctx context.Context, documentID string) error {
	primaryErr := f.primary.DeleteByDocument(ctx, documentID)
	var fallbackErr error
	if f.fallback != nil {
		fallbackErr = f.fallback.DeleteByDocument(ctx, documentID)
	}

	if primaryErr != nil && fallbackErr != nil {
		return &rag.StoreError{
			Backend: f.Name(),
			Op:      "delete",
			Err:     errors.Join(primaryErr, fallbackErr),
		}
	}
	if primaryErr != nil {
		// Fallback succeeded; the primary copy must still go when the
		// backend comes back, so surface the failure.
		return &rag.StoreError{Backend: f.primary.Name(), Op: "delete", Err: primaryErr}
	}
	if fallbackErr != nil {
		return &rag.StoreError{Backend: f.fallback.Name(), Op: "delete", Err: fallbackErr}
	}
	return nil
}

// Health reports healthy when either backend is reachable.
func (f *Failover) Health(ctx context.Context) error {
	primaryErr := f.primary.Health(ctx)
	if primaryErr == nil {
		return nil
	}
	if f.fallback == nil {
		return &rag.StoreError{Backend: f.primary.Name(), Op: "health", Err: primaryErr}
	}
	if err := f.fallback.Health(ctx); err != nil {
		return &rag.StoreError{Backend: f.Name(), Op: "health", Err: errors.Join(primaryErr, err)}
	}
	return nil
}

// Close closes both backends and returns the first error.
func (f *Failover) Close() error {
	err := f.primary.Close()
	if f.fallback != nil {
		if ferr := f.fallback.Close(); err == nil {
			err = ferr
		}
	}
	return err
}
