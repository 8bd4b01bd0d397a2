package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Yaswanth-ampolu/productdemo-sub001/pkg/chunk"
	"github.com/Yaswanth-ampolu/productdemo-sub001/pkg/embed"
	"github.com/Yaswanth-ampolu/productdemo-sub001/pkg/rag"
	"github.com/Yaswanth-ampolu/productdemo-sub001/pkg/retrieve"
	"github.com/Yaswanth-ampolu/productdemo-sub001/pkg/vectorstore"
)

// memStore is an in-memory vectorstore.Store that records operations.
type memStore struct {
	mu         sync.Mutex
	records    map[string]rag.VectorRecord
	deleted    []string
	upsertFail error
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]rag.VectorRecord)}
}

func (m *memStore) Name() string { return "mem" }

func (m *memStore) Upsert(_ context.Context, records []rag.VectorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertFail != nil {
		return m.upsertFail
	}
	for _, r := range records {
		m.records[r.ID] = r
	}
	return nil
}

func (m *memStore) Search(_ context.Context, query vectorstore.SearchQuery) ([]rag.RetrievalResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []rag.RetrievalResult
	for _, r := range m.records {
		docID, _ := r.Metadata[rag.MetaDocumentID].(string)
		if query.SessionID != "" {
			if sid, _ := r.Metadata[rag.MetaSessionID].(string); sid != query.SessionID {
				continue
			}
		}
		if query.DocumentID != "" && docID != query.DocumentID {
			continue
		}
		excluded := false
		for _, ex := range query.ExcludeDocuments {
			if docID == ex {
				excluded = true
				break
			}
		}
		if excluded {
			continue
		}
		out = append(out, rag.RetrievalResult{ID: r.ID, Text: r.Text, Metadata: r.Metadata, Score: 1})
	}
	return out, nil
}

func (m *memStore) DeleteByDocument(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, documentID)
	for id, r := range m.records {
		if docID, _ := r.Metadata[rag.MetaDocumentID].(string); docID == documentID {
			delete(m.records, id)
		}
	}
	return nil
}

func (m *memStore) Health(_ context.Context) error { return nil }
func (m *memStore) Close() error                   { return nil }

func (m *memStore) recordsForDocument(documentID string) []rag.VectorRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []rag.VectorRecord
	for _, r := range m.records {
		if docID, _ := r.Metadata[rag.MetaDocumentID].(string); docID == documentID {
			out = append(out, r)
		}
	}
	return out
}

// constProvider embeds every text to the same dimensionality and can
// be forced down.
type constProvider struct {
	mu   sync.Mutex
	fail error
}

func (c *constProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return nil, c.fail
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0, 0, 0}
	}
	return vectors, nil
}

func (c *constProvider) Model() string   { return "const-model" }
func (c *constProvider) Dimensions() int { return 4 }

// eventRecorder collects progress events in order.
type eventRecorder struct {
	mu     sync.Mutex
	events []rag.ProgressEvent
}

func (e *eventRecorder) Publish(event rag.ProgressEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

func (e *eventRecorder) all() []rag.ProgressEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]rag.ProgressEvent(nil), e.events...)
}

func fastEmbedder(provider embed.Provider) *embed.Client {
	return embed.New(provider, embed.WithConfig(&embed.Config{
		BatchSize:      8,
		MaxAttempts:    2,
		Concurrency:    2,
		InitialBackoff: time.Millisecond,
	}))
}

func staticExtractor(text string) Extractor {
	return func(_ context.Context, _ string) (string, error) {
		return text, nil
	}
}

const sampleText = `Reactor maintenance follows a strict inspection schedule.

Coolant loops are flushed quarterly and sensors recalibrated.

Emergency shutdown drills run twice a year with full staffing.`

func TestIngestHappyPath(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	events := &eventRecorder{}
	pipeline := New(chunk.New(&chunk.Options{Size: 60, Overlap: 10}), fastEmbedder(&constProvider{}), store,
		WithProgress(events),
		WithExtractor(staticExtractor(sampleText)))

	doc, err := pipeline.Ingest(context.Background(), Request{
		Path:      "/tmp/reactor.txt",
		SessionID: "session-1",
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if doc.Status != rag.StatusReady {
		t.Errorf("Status = %v, want ready", doc.Status)
	}
	if doc.Progress != 100 {
		t.Errorf("Progress = %d, want 100", doc.Progress)
	}
	if doc.Filename != "reactor.txt" {
		t.Errorf("Filename = %q, want reactor.txt (derived from path)", doc.Filename)
	}

	records := store.recordsForDocument(doc.ID)
	if len(records) != doc.ChunkCount {
		t.Errorf("stored %d records, document reports %d chunks", len(records), doc.ChunkCount)
	}
	for _, r := range records {
		if !strings.HasPrefix(r.ID, doc.ID+"_chunk_") {
			t.Errorf("record id %q does not follow the chunk id scheme", r.ID)
		}
		if r.Metadata[rag.MetaSessionID] != "session-1" {
			t.Errorf("record %s missing session metadata", r.ID)
		}
		if _, flagged := r.Metadata[rag.MetaPlaceholder]; flagged {
			t.Errorf("record %s flagged placeholder with a healthy backend", r.ID)
		}
	}

	// Progress only moves forward and ends at ready
	all := events.all()
	if len(all) == 0 {
		t.Fatal("no progress events published")
	}
	last := -1
	for _, event := range all {
		if event.Progress < last {
			t.Errorf("progress regressed: %d after %d", event.Progress, last)
		}
		last = event.Progress
	}
	if final := all[len(all)-1]; final.Status != rag.StatusReady || final.Progress != 100 {
		t.Errorf("final event = %+v, want ready at 100", final)
	}
}

func TestIngestExtractionFailure(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	events := &eventRecorder{}
	boom := errors.New("unreadable file")
	pipeline := New(chunk.New(nil), fastEmbedder(&constProvider{}), store,
		WithProgress(events),
		WithExtractor(func(_ context.Context, _ string) (string, error) { return "", boom }))

	doc, err := pipeline.Ingest(context.Background(), Request{Path: "/tmp/bad.pdf"})
	if !errors.Is(err, boom) {
		t.Fatalf("Ingest() error = %v, want the extraction error", err)
	}
	if doc.Status != rag.StatusFailed {
		t.Errorf("Status = %v, want failed", doc.Status)
	}
	if doc.Error == "" {
		t.Error("failed document carries no error message")
	}
	if len(store.recordsForDocument(doc.ID)) != 0 {
		t.Error("failed ingestion left records in the store")
	}

	all := events.all()
	if final := all[len(all)-1]; final.Status != rag.StatusFailed {
		t.Errorf("final event status = %v, want failed", final.Status)
	}
}

func TestIngestEmbeddingOutageDegrades(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	provider := &constProvider{fail: errors.New("connection refused")}
	pipeline := New(chunk.New(&chunk.Options{Size: 60, Overlap: 10}), fastEmbedder(provider), store,
		WithExtractor(staticExtractor(sampleText)))

	doc, err := pipeline.Ingest(context.Background(), Request{Path: "/tmp/reactor.txt"})
	if err != nil {
		t.Fatalf("Ingest() error = %v, outage must not fail ingestion", err)
	}
	if doc.Status != rag.StatusReady {
		t.Errorf("Status = %v, want ready in degraded mode", doc.Status)
	}

	records := store.recordsForDocument(doc.ID)
	if len(records) == 0 {
		t.Fatal("no records stored in degraded mode")
	}
	for _, r := range records {
		if flagged, _ := r.Metadata[rag.MetaPlaceholder].(bool); !flagged {
			t.Errorf("record %s not flagged as placeholder", r.ID)
		}
		if len(r.Vector) != 4 {
			t.Errorf("placeholder vector has %d dims, want 4", len(r.Vector))
		}
	}
}

func TestIngestStoreFailureRollsBack(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.upsertFail = errors.New("store down")
	pipeline := New(chunk.New(&chunk.Options{Size: 60, Overlap: 10}), fastEmbedder(&constProvider{}), store,
		WithExtractor(staticExtractor(sampleText)))

	doc, err := pipeline.Ingest(context.Background(), Request{Path: "/tmp/reactor.txt"})
	if err == nil {
		t.Fatal("expected error when the vector store rejects the write")
	}
	if doc.Status != rag.StatusFailed {
		t.Errorf("Status = %v, want failed", doc.Status)
	}

	store.mu.Lock()
	rolledBack := false
	for _, id := range store.deleted {
		if id == doc.ID {
			rolledBack = true
		}
	}
	store.mu.Unlock()
	if !rolledBack {
		t.Error("no rollback delete issued for the failed generation")
	}
}

func TestIngestSupersedesPreviousGeneration(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	pipeline := New(chunk.New(&chunk.Options{Size: 60, Overlap: 10}), fastEmbedder(&constProvider{}), store,
		WithExtractor(staticExtractor(sampleText)))

	first, err := pipeline.Ingest(context.Background(), Request{
		Path:      "/tmp/reactor.txt",
		SessionID: "session-1",
	})
	if err != nil {
		t.Fatalf("first Ingest() error = %v", err)
	}

	second, err := pipeline.Ingest(context.Background(), Request{
		Path:      "/tmp/reactor.txt",
		SessionID: "session-1",
	})
	if err != nil {
		t.Fatalf("second Ingest() error = %v", err)
	}

	if first.ID == second.ID || first.Generation == second.Generation {
		t.Error("re-ingestion must produce a fresh document generation")
	}
	// Superseded records are excluded from session search, not deleted:
	// they stay reachable by document id.
	if len(store.recordsForDocument(first.ID)) == 0 {
		t.Error("superseded generation no longer reachable by document id")
	}
	if len(store.recordsForDocument(second.ID)) == 0 {
		t.Error("new generation has no records")
	}

	active, ok := pipeline.Registry().Active("session-1")
	if !ok || active.ID != second.ID {
		t.Errorf("active document = %+v, want the second generation", active)
	}
	if got := pipeline.Registry().Superseded("session-1"); len(got) != 1 || got[0] != first.ID {
		t.Errorf("Superseded() = %v, want the first generation", got)
	}
}

func TestSessionSearchExcludesSupersededDocuments(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	pipeline := New(chunk.New(&chunk.Options{Size: 60, Overlap: 10}), fastEmbedder(&constProvider{}), store,
		WithExtractor(staticExtractor(sampleText)))

	first, err := pipeline.Ingest(context.Background(), Request{
		Path:      "/tmp/a.txt",
		SessionID: "session-1",
	})
	if err != nil {
		t.Fatalf("first Ingest() error = %v", err)
	}
	second, err := pipeline.Ingest(context.Background(), Request{
		Path:      "/tmp/b.txt",
		SessionID: "session-1",
	})
	if err != nil {
		t.Fatalf("second Ingest() error = %v", err)
	}

	retriever := retrieve.New(fastEmbedder(&constProvider{}), store,
		retrieve.WithSessionView(pipeline.Registry()))

	pkg, err := retriever.Retrieve(context.Background(), "inspection schedule", "session-1")
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if pkg.Empty() {
		t.Fatal("session-scoped search returned nothing for the live document")
	}
	for _, r := range pkg.Results {
		docID, _ := r.Metadata[rag.MetaDocumentID].(string)
		if docID == first.ID {
			t.Errorf("session-scoped search returned chunk %s from superseded document", r.ID)
		}
		if docID != second.ID {
			t.Errorf("chunk %s belongs to unexpected document %s", r.ID, docID)
		}
	}

	// The superseded document stays reachable by document id.
	hits, err := store.Search(context.Background(), vectorstore.SearchQuery{
		Vector:     []float32{1, 0, 0, 0},
		DocumentID: first.ID,
	})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) == 0 {
		t.Error("superseded document no longer reachable by document id")
	}
}

func TestIngestCancellation(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	pipeline := New(chunk.New(nil), fastEmbedder(&constProvider{}), store,
		WithExtractor(staticExtractor(sampleText)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	doc, err := pipeline.Ingest(ctx, Request{Path: "/tmp/reactor.txt"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Ingest() error = %v, want context.Canceled", err)
	}
	if doc.Status != rag.StatusFailed {
		t.Errorf("Status = %v, want failed", doc.Status)
	}
	if len(store.recordsForDocument(doc.ID)) != 0 {
		t.Error("cancelled ingestion left records in the store")
	}
}

func TestRemoveSession(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	pipeline := New(chunk.New(&chunk.Options{Size: 60, Overlap: 10}), fastEmbedder(&constProvider{}), store,
		WithExtractor(staticExtractor(sampleText)))

	doc, err := pipeline.Ingest(context.Background(), Request{
		Path:      "/tmp/reactor.txt",
		SessionID: "session-gone",
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if err := pipeline.RemoveSession(context.Background(), "session-gone"); err != nil {
		t.Fatalf("RemoveSession() error = %v", err)
	}
	if len(store.recordsForDocument(doc.ID)) != 0 {
		t.Error("session removal left records in the store")
	}
	if docs := pipeline.Registry().Documents("session-gone"); len(docs) != 0 {
		t.Errorf("registry still tracks %d documents for the removed session", len(docs))
	}
}
