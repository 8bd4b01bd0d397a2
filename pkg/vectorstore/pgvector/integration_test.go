//go:build integration

package pgvector

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Yaswanth-ampolu/productdemo-sub001/pkg/rag"
	"github.com/Yaswanth-ampolu/productdemo-sub001/pkg/vectorstore"
)

// pgContainer holds the testcontainer for PostgreSQL with pgvector
type pgContainer struct {
	Container testcontainers.Container
	ConnStr   string
}

// setupPgContainer starts a pgvector-enabled PostgreSQL container
func setupPgContainer(ctx context.Context) (*pgContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "vectordb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get mapped port: %w", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	return &pgContainer{
		Container: container,
		ConnStr: fmt.Sprintf("postgres://test:test@%s:%s/vectordb?sslmode=disable",
			host, port.Port()),
	}, nil
}

func (pc *pgContainer) teardown(ctx context.Context) error {
	if pc.Container != nil {
		return pc.Container.Terminate(ctx)
	}
	return nil
}

func testRecord(docID string, ordinal, dims int) rag.VectorRecord {
	id := rag.ChunkID(docID, ordinal)
	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = float32((len(id)+i)%100) / 100.0
	}
	return rag.VectorRecord{
		ID:     id,
		Vector: vec,
		Text:   "content of " + id,
		Metadata: map[string]any{
			rag.MetaDocumentID: docID,
			rag.MetaSessionID:  "session-int",
			rag.MetaOrdinal:    ordinal,
		},
	}
}

func setupStore(ctx context.Context, t *testing.T, dims int) (*Store, func()) {
	t.Helper()

	pc, err := setupPgContainer(ctx)
	if err != nil {
		t.Fatalf("Failed to setup postgres container: %v", err)
	}

	// The pgvector image ships the extension but it must be created
	pool, err := pgxpool.New(ctx, pc.ConnStr)
	if err != nil {
		pc.teardown(ctx)
		t.Fatalf("failed to connect for extension setup: %v", err)
	}
	_, err = pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	pool.Close()
	if err != nil {
		pc.teardown(ctx)
		t.Fatalf("failed to create vector extension: %v", err)
	}

	store, err := New(&Config{
		ConnectionString: pc.ConnStr,
		TableName:        "test_chunks",
		Dimensions:       dims,
	})
	if err != nil {
		pc.teardown(ctx)
		t.Fatalf("New() error = %v", err)
	}

	return store, func() {
		store.Close()
		pc.teardown(ctx)
	}
}

func TestPgvectorRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	const dims = 8
	store, cleanup := setupStore(ctx, t, dims)
	defer cleanup()

	if err := store.Health(ctx); err != nil {
		t.Fatalf("Health() error = %v", err)
	}

	records := []rag.VectorRecord{
		testRecord("doc-a", 0, dims),
		testRecord("doc-a", 1, dims),
		testRecord("doc-b", 0, dims),
	}
	if err := store.Upsert(ctx, records); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	results, err := store.Search(ctx, vectorstore.SearchQuery{
		Vector: records[0].Vector,
		Limit:  5,
	})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) == 0 {
		t.Fatal("Search() returned no results")
	}
	if results[0].ID != records[0].ID {
		t.Errorf("top hit = %s, want %s", results[0].ID, records[0].ID)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Error("results not in descending score order")
		}
	}

	// Session filter
	results, err = store.Search(ctx, vectorstore.SearchQuery{
		Vector:    records[0].Vector,
		Limit:     5,
		SessionID: "other-session",
	})
	if err != nil {
		t.Fatalf("filtered Search() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("session filter leaked %d results", len(results))
	}

	// Delete removes all of doc-a
	if err := store.DeleteByDocument(ctx, "doc-a"); err != nil {
		t.Fatalf("DeleteByDocument() error = %v", err)
	}
	results, err = store.Search(ctx, vectorstore.SearchQuery{
		Vector: records[2].Vector,
		Limit:  10,
	})
	if err != nil {
		t.Fatalf("Search() after delete error = %v", err)
	}
	for _, r := range results {
		if r.Metadata[rag.MetaDocumentID] == "doc-a" {
			t.Errorf("deleted document still searchable: %s", r.ID)
		}
	}
}
