// Package qdrant implements the vector store against a Qdrant server.
// It is the default primary backend for chunk embeddings.
package qdrant

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	qd "github.com/qdrant/go-client/qdrant"

	"github.com/Yaswanth-ampolu/productdemo-sub001/pkg/rag"
	"github.com/Yaswanth-ampolu/productdemo-sub001/pkg/vectorstore"
)

// payload key for the original record id; Qdrant point ids must be
// UUIDs or integers, so the chunk id travels in the payload and the
// point id is derived from it.
const payloadChunkID = "chunk_id"

// payloadText is the payload key carrying the chunk text.
const payloadText = "text"

// pointNamespace seeds deterministic point UUIDs so re-upserting a
// chunk overwrites the existing point instead of duplicating it.
var pointNamespace = uuid.MustParse("9f2c3a44-7a1e-4d7b-9f53-0b54a2f6c1de")

// Config holds Qdrant client configuration.
type Config struct {
	// Qdrant server URL, e.g. "http://localhost:6334".
	URL string

	// Collection name for chunk embeddings. Defaults to "chunks".
	CollectionName string

	// Vector dimensionality, used when the collection must be created.
	// Defaults to 768.
	Dimensions int

	// Optional API key for authentication.
	APIKey string
}

// Store is a Qdrant-backed vector store.
type Store struct {
	client     *qd.Client
	collection string
	dims       int
}

// New creates a Qdrant vector store.
//
// Example:
//
//	store, err := qdrant.New(&qdrant.Config{
//	    URL:            "http://localhost:6334",
//	    CollectionName: "chunks",
//	    Dimensions:     768,
//	})
func New(config *Config) (*Store, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("qdrant URL is required")
	}
	if config.CollectionName == "" {
		config.CollectionName = "chunks"
	}
	if config.Dimensions <= 0 {
		config.Dimensions = 768
	}

	parsedURL, err := url.Parse(config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid qdrant URL: %w", err)
	}

	port := 6334
	if parsedURL.Port() != "" {
		p, err := strconv.ParseInt(parsedURL.Port(), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid qdrant port: %w", err)
		}
		port = int(p)
	}

	client, err := qd.NewClient(&qd.Config{
		Host:   parsedURL.Hostname(),
		Port:   port,
		APIKey: config.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &Store{
		client:     client,
		collection: config.CollectionName,
		dims:       config.Dimensions,
	}, nil
}

// Name identifies the backend.
func (s *Store) Name() string { return "qdrant" }

// Upsert writes records in batches, creating the collection on first use.
func (s *Store) Upsert(ctx context.Context, records []rag.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := s.ensureCollectionExists(ctx); err != nil {
		return &rag.StoreError{Backend: s.Name(), Op: "upsert", Err: err}
	}

	const batchSize = 100
	for i := 0; i < len(records); i += batchSize {
		end := i + batchSize
		if end > len(records) {
			end = len(records)
		}
		if err := s.upsertBatch(ctx, records[i:end]); err != nil {
			return &rag.StoreError{Backend: s.Name(), Op: "upsert", Err: err}
		}
	}
	return nil
}

func (s *Store) upsertBatch(ctx context.Context, records []rag.VectorRecord) error {
	points := make([]*qd.PointStruct, 0, len(records))
	for _, r := range records {
		points = append(points, &qd.PointStruct{
			Id: pointID(r.ID),
			Vectors: &qd.Vectors{
				VectorsOptions: &qd.Vectors_Vector{
					Vector: &qd.Vector{Data: r.Vector},
				},
			},
			Payload: buildPayload(r),
		})
	}

	wait := true
	_, err := s.client.Upsert(ctx, &qd.UpsertPoints{
		CollectionName: s.collection,
		Points:         points,
		Wait:           &wait,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %d points to collection %s: %w", len(points), s.collection, err)
	}
	return nil
}

// Search performs similarity search with optional session and document
// filters.
func (s *Store) Search(ctx context.Context, query vectorstore.SearchQuery) ([]rag.RetrievalResult, error) {
	if len(query.Vector) == 0 {
		return nil, &rag.StoreError{Backend: s.Name(), Op: "search", Err: fmt.Errorf("query vector is required")}
	}

	request := &qd.QueryPoints{
		CollectionName: s.collection,
		Query:          qd.NewQuery(query.Vector...),
		WithPayload:    qd.NewWithPayload(true),
	}
	if query.Limit > 0 {
		limit := uint64(query.Limit)
		request.Limit = &limit
	}
	if query.Threshold > 0 {
		threshold := float32(query.Threshold)
		request.ScoreThreshold = &threshold
	}
	if filter := buildFilter(query); filter != nil {
		request.Filter = filter
	}

	points, err := s.client.Query(ctx, request)
	if err != nil {
		return nil, &rag.StoreError{Backend: s.Name(), Op: "search", Err: err}
	}

	results := make([]rag.RetrievalResult, 0, len(points))
	for _, point := range points {
		results = append(results, convertPoint(point))
	}
	return results, nil
}

// DeleteByDocument removes every point whose payload carries the
// document id. Filter-based deletion avoids listing point ids first.
func (s *Store) DeleteByDocument(ctx context.Context, documentID string) error {
	wait := true
	_, err := s.client.Delete(ctx, &qd.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: &qd.PointsSelector{
			PointsSelectorOneOf: &qd.PointsSelector_Filter{
				Filter: &qd.Filter{
					Must: []*qd.Condition{qd.NewMatch(rag.MetaDocumentID, documentID)},
				},
			},
		},
	})
	if err != nil {
		return &rag.StoreError{Backend: s.Name(), Op: "delete", Err: err}
	}
	return nil
}

// Health checks if the Qdrant server is available and responsive.
func (s *Store) Health(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return &rag.StoreError{Backend: s.Name(), Op: "health", Err: err}
	}
	return nil
}

// Close releases the underlying gRPC connection.
func (s *Store) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close qdrant client: %w", err)
	}
	return nil
}

func (s *Store) ensureCollectionExists(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", s.collection, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qd.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qd.NewVectorsConfig(&qd.VectorParams{
			Size:     uint64(s.dims),
			Distance: qd.Distance_Cosine,
		}),
		ShardNumber: qd.PtrOf(uint32(2)),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", s.collection, err)
	}
	return nil
}

// pointID derives a stable UUID point id from the record id.
func pointID(recordID string) *qd.PointId {
	return &qd.PointId{
		PointIdOptions: &qd.PointId_Uuid{
			Uuid: uuid.NewSHA1(pointNamespace, []byte(recordID)).String(),
		},
	}
}

func buildPayload(r rag.VectorRecord) map[string]*qd.Value {
	payload := make(map[string]*qd.Value, len(r.Metadata)+2)
	payload[payloadChunkID] = qd.NewValueString(r.ID)
	payload[payloadText] = qd.NewValueString(r.Text)

	for key, value := range r.Metadata {
		switch v := value.(type) {
		case string:
			payload[key] = qd.NewValueString(v)
		case int:
			payload[key] = qd.NewValueInt(int64(v))
		case int64:
			payload[key] = qd.NewValueInt(v)
		case float64:
			payload[key] = qd.NewValueDouble(v)
		case bool:
			payload[key] = qd.NewValueBool(v)
		default:
			payload[key] = qd.NewValueString(fmt.Sprintf("%v", v))
		}
	}
	return payload
}

func buildFilter(query vectorstore.SearchQuery) *qd.Filter {
	var conditions []*qd.Condition
	if query.SessionID != "" {
		conditions = append(conditions, qd.NewMatch(rag.MetaSessionID, query.SessionID))
	}
	if query.DocumentID != "" {
		conditions = append(conditions, qd.NewMatch(rag.MetaDocumentID, query.DocumentID))
	}
	var excluded []*qd.Condition
	for _, id := range query.ExcludeDocuments {
		excluded = append(excluded, qd.NewMatch(rag.MetaDocumentID, id))
	}
	if len(conditions) == 0 && len(excluded) == 0 {
		return nil
	}
	return &qd.Filter{Must: conditions, MustNot: excluded}
}

func convertPoint(point *qd.ScoredPoint) rag.RetrievalResult {
	result := rag.RetrievalResult{
		Score:    float64(point.Score),
		Metadata: make(map[string]any),
	}
	if point.Id != nil {
		result.ID = point.Id.String()
	}

	for key, value := range point.Payload {
		switch key {
		case payloadChunkID:
			if id := value.GetStringValue(); id != "" {
				result.ID = id
			}
			continue
		case payloadText:
			result.Text = value.GetStringValue()
			continue
		}

		switch v := value.GetKind().(type) {
		case *qd.Value_StringValue:
			result.Metadata[key] = v.StringValue
		case *qd.Value_IntegerValue:
			result.Metadata[key] = v.IntegerValue
		case *qd.Value_DoubleValue:
			result.Metadata[key] = v.DoubleValue
		case *qd.Value_BoolValue:
			result.Metadata[key] = v.BoolValue
		}
	}
	return result
}
