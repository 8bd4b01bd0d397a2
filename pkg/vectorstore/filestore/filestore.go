// Package filestore provides a zero-dependency vector store backed by
// an append-only JSONL file and brute-force cosine search. It exists
// as the failover target when the real vector database is unreachable:
// slower and unindexed, but always available and durable across
// restarts.
package filestore

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Yaswanth-ampolu/productdemo-sub001/pkg/rag"
	"github.com/Yaswanth-ampolu/productdemo-sub001/pkg/vectorstore"
)

const dataFile = "vectors.jsonl"

// line is one persisted JSONL entry. Tombstones carry Deleted and a
// document id instead of a record.
type line struct {
	Record  *rag.VectorRecord `json:"record,omitempty"`
	Deleted string            `json:"deleted,omitempty"`
}

// Store is a file-backed vector store. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	path    string
	records map[string]rag.VectorRecord
	appends int
	log     zerolog.Logger
}

// Option configures the file store.
type Option func(*Store)

// WithLogger sets the structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// New opens (or creates) a file store rooted at dir and replays the
// existing log. Later entries win, so a replayed upsert of an existing
// ID replaces the older record and a tombstone removes a document.
func New(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create filestore dir: %w", err)
	}

	s := &Store{
		path:    filepath.Join(dir, dataFile),
		records: make(map[string]rag.VectorRecord),
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.replay(); err != nil {
		return nil, err
	}
	return s, nil
}

// Name identifies the backend.
func (s *Store) Name() string { return "filestore" }

// Upsert appends records to the log and updates the in-memory index.
func (s *Store) Upsert(ctx context.Context, records []rag.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return &rag.StoreError{Backend: s.Name(), Op: "upsert", Err: err}
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for i := range records {
		r := records[i]
		if err := enc.Encode(line{Record: &r}); err != nil {
			return &rag.StoreError{Backend: s.Name(), Op: "upsert", Err: err}
		}
	}
	if err := w.Flush(); err != nil {
		return &rag.StoreError{Backend: s.Name(), Op: "upsert", Err: err}
	}

	for _, r := range records {
		s.records[r.ID] = r
	}
	s.appends += len(records)
	return nil
}

// Search scans every record and ranks by cosine similarity.
func (s *Store) Search(ctx context.Context, query vectorstore.SearchQuery) ([]rag.RetrievalResult, error) {
	if len(query.Vector) == 0 {
		return nil, &rag.StoreError{Backend: s.Name(), Op: "search", Err: fmt.Errorf("query vector is required")}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]rag.RetrievalResult, 0, query.Limit)
	for _, r := range s.records {
		if !matches(r.Metadata, query) {
			continue
		}
		score := cosineSimilarity(query.Vector, r.Vector)
		if query.Threshold > 0 && score < query.Threshold {
			continue
		}
		results = append(results, rag.RetrievalResult{
			ID:       r.ID,
			Text:     r.Text,
			Metadata: r.Metadata,
			Score:    score,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if query.Limit > 0 && len(results) > query.Limit {
		results = results[:query.Limit]
	}
	return results, nil
}

// DeleteByDocument drops the document's records and appends a
// tombstone so the removal survives restarts. The log is compacted
// once tombstones and overwrites dominate it.
func (s *Store) DeleteByDocument(ctx context.Context, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, r := range s.records {
		if docID, _ := r.Metadata[rag.MetaDocumentID].(string); docID == documentID {
			delete(s.records, id)
			removed++
		}
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return &rag.StoreError{Backend: s.Name(), Op: "delete", Err: err}
	}
	writeErr := json.NewEncoder(f).Encode(line{Deleted: documentID})
	closeErr := f.Close()
	if writeErr != nil {
		return &rag.StoreError{Backend: s.Name(), Op: "delete", Err: writeErr}
	}
	if closeErr != nil {
		return &rag.StoreError{Backend: s.Name(), Op: "delete", Err: closeErr}
	}
	s.appends++

	if removed > 0 {
		s.log.Debug().Str("document_id", documentID).Int("records", removed).
			Msg("removed document from filestore")
	}
	if s.appends > 2*len(s.records)+64 {
		if err := s.compactLocked(); err != nil {
			s.log.Warn().Err(err).Msg("filestore compaction failed")
		}
	}
	return nil
}

// Health checks that the data directory is writable.
func (s *Store) Health(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return &rag.StoreError{Backend: s.Name(), Op: "health", Err: err}
	}
	return f.Close()
}

// Close compacts the log so the next open replays only live records.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compactLocked()
}

func (s *Store) replay() error {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open filestore log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var l line
		if err := json.Unmarshal(scanner.Bytes(), &l); err != nil {
			// A torn final line from a crash mid-append is expected;
			// anything already replayed is intact.
			s.log.Warn().Err(err).Msg("skipping malformed filestore log line")
			continue
		}
		switch {
		case l.Record != nil:
			s.records[l.Record.ID] = *l.Record
			s.appends++
		case l.Deleted != "":
			for id, r := range s.records {
				if docID, _ := r.Metadata[rag.MetaDocumentID].(string); docID == l.Deleted {
					delete(s.records, id)
				}
			}
			s.appends++
		}
	}
	return scanner.Err()
}

// compactLocked rewrites the log with only live records. Caller holds mu.
func (s *Store) compactLocked() error {
	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create compaction file: %w", err)
	}

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for id := range s.records {
		r := s.records[id]
		if err := enc.Encode(line{Record: &r}); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("write compaction file: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("flush compaction file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close compaction file: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("swap compacted log: %w", err)
	}
	s.appends = len(s.records)
	return nil
}

func matches(metadata map[string]any, query vectorstore.SearchQuery) bool {
	if query.SessionID != "" {
		if sid, _ := metadata[rag.MetaSessionID].(string); sid != query.SessionID {
			return false
		}
	}
	if query.DocumentID != "" {
		if docID, _ := metadata[rag.MetaDocumentID].(string); docID != query.DocumentID {
			return false
		}
	}
	if len(query.ExcludeDocuments) > 0 {
		docID, _ := metadata[rag.MetaDocumentID].(string)
		for _, excluded := range query.ExcludeDocuments {
			if docID == excluded {
				return false
			}
		}
	}
	return true
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
