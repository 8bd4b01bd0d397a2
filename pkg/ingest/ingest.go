// Package ingest orchestrates the document ingestion pipeline:
// extraction, chunking, embedding and vector storage, with progress
// events on every state transition. Each upload runs as one
// generation; failures roll back so a document is either fully
// searchable or not searchable at all.
package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Yaswanth-ampolu/productdemo-sub001/pkg/chunk"
	"github.com/Yaswanth-ampolu/productdemo-sub001/pkg/embed"
	"github.com/Yaswanth-ampolu/productdemo-sub001/pkg/extract"
	"github.com/Yaswanth-ampolu/productdemo-sub001/pkg/rag"
	"github.com/Yaswanth-ampolu/productdemo-sub001/pkg/vectorstore"
)

// Progress milestones per stage. Progress within one generation only
// moves forward.
const (
	progressPending    = 0
	progressExtracting = 10
	progressChunking   = 30
	progressEmbedding  = 50
	progressStoring    = 80
	progressReady      = 100
)

// Extractor turns a file into plain text. The default is
// extract.Extract; tests substitute their own.
type Extractor func(ctx context.Context, path string) (string, error)

// Request describes one document upload.
type Request struct {
	// Path to the uploaded file on disk. Required.
	Path string

	// Filename shown to users and used for supersession. Defaults to
	// the base name of Path.
	Filename string

	// Owner is an opaque user identifier carried on the document.
	Owner string

	// SessionID scopes the document's chunks to one conversation.
	SessionID string
}

// Option configures the pipeline.
type Option func(*Pipeline)

// WithProgress sets the progress event sink.
func WithProgress(sink rag.ProgressSink) Option {
	return func(p *Pipeline) { p.progress = sink }
}

// WithLogger sets the structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(p *Pipeline) { p.log = log }
}

// WithRegistry sets the session registry. Callers that share one
// registry across pipelines pass it here; otherwise the pipeline owns
// a private one.
func WithRegistry(registry *SessionRegistry) Option {
	return func(p *Pipeline) { p.registry = registry }
}

// WithExtractor replaces the file text extractor.
func WithExtractor(fn Extractor) Option {
	return func(p *Pipeline) { p.extract = fn }
}

// Pipeline runs document ingestion end to end.
type Pipeline struct {
	chunker  *chunk.Chunker
	embedder *embed.Client
	store    vectorstore.Store
	registry *SessionRegistry
	progress rag.ProgressSink
	extract  Extractor
	log      zerolog.Logger
}

// New creates an ingestion pipeline.
//
// Example:
//
//	pipeline := ingest.New(chunk.New(nil), embedClient, store,
//	    ingest.WithProgress(progressBuffer))
//	doc, err := pipeline.Ingest(ctx, ingest.Request{Path: "report.pdf"})
func New(chunker *chunk.Chunker, embedder *embed.Client, store vectorstore.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		progress: rag.NopProgress(),
		extract:  extract.Extract,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.registry == nil {
		p.registry = NewSessionRegistry()
	}
	return p
}

// Registry returns the session registry backing this pipeline.
func (p *Pipeline) Registry() *SessionRegistry { return p.registry }

// Ingest processes one document through extraction, chunking,
// embedding and storage. It returns the terminal document state; the
// returned error is non-nil exactly when the document ended Failed.
//
// An embedding backend outage does not fail ingestion: affected chunks
// are stored with flagged placeholder vectors and the document still
// reaches Ready. A vector store write failure rolls back any partial
// write before failing.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (*rag.Document, error) {
	if req.Path == "" {
		return nil, fmt.Errorf("ingest: path is required")
	}
	if req.Filename == "" {
		req.Filename = filepath.Base(req.Path)
	}

	now := time.Now()
	doc := &rag.Document{
		ID:         uuid.NewString(),
		Generation: uuid.NewString(),
		Owner:      req.Owner,
		SessionID:  req.SessionID,
		Filename:   req.Filename,
		Path:       req.Path,
		Status:     rag.StatusPending,
		Created:    now,
		Updated:    now,
	}
	p.registry.Register(doc)
	p.publish(doc, rag.StatusPending, progressPending, "document registered")

	log := p.log.With().
		Str("document_id", doc.ID).
		Str("filename", doc.Filename).
		Str("session_id", doc.SessionID).
		Logger()

	// Extraction
	if err := ctx.Err(); err != nil {
		return p.fail(doc, progressPending, err)
	}
	p.publish(doc, rag.StatusExtracting, progressExtracting, "extracting text")
	text, err := p.extract(ctx, req.Path)
	if err != nil {
		log.Error().Err(err).Msg("text extraction failed")
		return p.fail(doc, progressExtracting, err)
	}

	// Chunking
	if err := ctx.Err(); err != nil {
		return p.fail(doc, progressExtracting, err)
	}
	p.publish(doc, rag.StatusChunking, progressChunking, "splitting into chunks")
	chunks := p.chunker.Split(doc.ID, doc.SessionID, text)
	if len(chunks) == 0 {
		return p.fail(doc, progressChunking, fmt.Errorf("no chunks produced from %s", doc.Filename))
	}
	log.Debug().Int("chunks", len(chunks)).Msg("document chunked")

	// Embedding
	if err := ctx.Err(); err != nil {
		return p.fail(doc, progressChunking, err)
	}
	p.publish(doc, rag.StatusEmbedding, progressEmbedding,
		fmt.Sprintf("embedding %d chunks", len(chunks)))

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	result, err := p.embedder.EmbedDegradable(ctx, texts)
	if err != nil {
		log.Error().Err(err).Msg("embedding failed")
		return p.fail(doc, progressEmbedding, err)
	}
	if result.Degraded() {
		log.Warn().Msg("embedding backend degraded, some chunks stored with placeholder vectors")
	}

	// Storage: all chunks of a generation land together or not at all
	if err := ctx.Err(); err != nil {
		return p.fail(doc, progressEmbedding, err)
	}
	p.publish(doc, rag.StatusEmbedding, progressStoring, "storing vectors")
	records := p.buildRecords(doc, chunks, result)
	if err := p.store.Upsert(ctx, records); err != nil {
		log.Error().Err(err).Msg("vector store write failed, rolling back")
		if delErr := p.store.DeleteByDocument(context.WithoutCancel(ctx), doc.ID); delErr != nil {
			log.Warn().Err(delErr).Msg("rollback delete failed")
		}
		return p.fail(doc, progressStoring, err)
	}

	// Supersession: the new document becomes the session's live one and
	// prior documents drop out of session-scoped search. Their vectors
	// stay, still reachable by document id, until the session is removed.
	if superseded := p.registry.Activate(doc.ID); len(superseded) > 0 {
		log.Info().Strs("superseded_ids", superseded).Msg("superseded previous session documents")
	}

	doc.Status = rag.StatusReady
	doc.Progress = progressReady
	doc.ChunkCount = len(chunks)
	doc.Updated = time.Now()
	p.registry.Update(doc.ID, func(d *rag.Document) {
		d.Status = doc.Status
		d.Progress = doc.Progress
		d.ChunkCount = doc.ChunkCount
		d.Updated = doc.Updated
	})
	p.progress.Publish(rag.ProgressEvent{
		DocumentID: doc.ID,
		Status:     rag.StatusReady,
		Progress:   progressReady,
		Message:    fmt.Sprintf("%d chunks searchable", len(chunks)),
	})
	log.Info().Int("chunks", len(chunks)).Bool("degraded", result.Degraded()).
		Msg("document ingested")
	return doc, nil
}

// RemoveSession purges every document of a session from the registry
// and the vector store.
func (p *Pipeline) RemoveSession(ctx context.Context, sessionID string) error {
	var firstErr error
	for _, docID := range p.registry.ClearSession(sessionID) {
		if err := p.store.DeleteByDocument(ctx, docID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (p *Pipeline) buildRecords(doc *rag.Document, chunks []rag.Chunk, result *embed.Result) []rag.VectorRecord {
	created := doc.Created.UTC().Format(time.RFC3339)
	records := make([]rag.VectorRecord, len(chunks))
	for i, c := range chunks {
		metadata := map[string]any{
			rag.MetaDocumentID: doc.ID,
			rag.MetaGeneration: doc.Generation,
			rag.MetaFilename:   doc.Filename,
			rag.MetaOrdinal:    c.Ordinal,
			rag.MetaCreated:    created,
		}
		if doc.SessionID != "" {
			metadata[rag.MetaSessionID] = doc.SessionID
		}
		if result.Placeholder[i] {
			metadata[rag.MetaPlaceholder] = true
		}
		records[i] = rag.VectorRecord{
			ID:       c.ID,
			Vector:   result.Vectors[i],
			Text:     c.Text,
			Metadata: metadata,
		}
	}
	return records
}

func (p *Pipeline) publish(doc *rag.Document, status rag.IngestStatus, progress int, message string) {
	doc.Status = status
	doc.Progress = progress
	doc.Updated = time.Now()
	p.registry.Update(doc.ID, func(d *rag.Document) {
		d.Status = status
		d.Progress = progress
		d.Updated = doc.Updated
	})
	p.progress.Publish(rag.ProgressEvent{
		DocumentID: doc.ID,
		Status:     status,
		Progress:   progress,
		Message:    message,
	})
}

// fail marks the document Failed at the progress it reached.
func (p *Pipeline) fail(doc *rag.Document, progress int, err error) (*rag.Document, error) {
	doc.Status = rag.StatusFailed
	doc.Progress = progress
	doc.Error = err.Error()
	doc.Updated = time.Now()
	p.registry.Update(doc.ID, func(d *rag.Document) {
		d.Status = rag.StatusFailed
		d.Progress = progress
		d.Error = doc.Error
		d.Updated = doc.Updated
	})
	p.progress.Publish(rag.ProgressEvent{
		DocumentID: doc.ID,
		Status:     rag.StatusFailed,
		Progress:   progress,
		Message:    err.Error(),
	})
	return doc, err
}
