package qdrant

import (
	"strings"
	"testing"

	qd "github.com/qdrant/go-client/qdrant"

	"github.com/Yaswanth-ampolu/productdemo-sub001/pkg/rag"
	"github.com/Yaswanth-ampolu/productdemo-sub001/pkg/vectorstore"
)

func TestNewRequiresURL(t *testing.T) {
	t.Parallel()

	if _, err := New(&Config{}); err == nil {
		t.Error("expected error for missing URL")
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	store, err := New(&Config{URL: "http://localhost:6334"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()

	if store.collection != "chunks" {
		t.Errorf("collection = %q, want chunks", store.collection)
	}
	if store.dims != 768 {
		t.Errorf("dims = %d, want 768", store.dims)
	}
}

func TestPointIDDeterministic(t *testing.T) {
	t.Parallel()

	a := pointID("doc-1_chunk_0")
	b := pointID("doc-1_chunk_0")
	c := pointID("doc-1_chunk_1")

	if a.GetUuid() != b.GetUuid() {
		t.Error("same record id produced different point ids")
	}
	if a.GetUuid() == c.GetUuid() {
		t.Error("different record ids produced the same point id")
	}
	if !strings.Contains(a.GetUuid(), "-") {
		t.Errorf("point id %q is not a UUID", a.GetUuid())
	}
}

func TestBuildPayloadTypes(t *testing.T) {
	t.Parallel()

	payload := buildPayload(rag.VectorRecord{
		ID:   "doc_chunk_3",
		Text: "chunk text",
		Metadata: map[string]any{
			rag.MetaDocumentID:  "doc",
			rag.MetaOrdinal:     3,
			rag.MetaPlaceholder: true,
			"score_hint":        0.5,
		},
	})

	if got := payload[payloadChunkID].GetStringValue(); got != "doc_chunk_3" {
		t.Errorf("chunk_id = %q, want doc_chunk_3", got)
	}
	if got := payload[payloadText].GetStringValue(); got != "chunk text" {
		t.Errorf("text = %q, want chunk text", got)
	}
	if got := payload[rag.MetaOrdinal].GetIntegerValue(); got != 3 {
		t.Errorf("ordinal = %d, want 3", got)
	}
	if !payload[rag.MetaPlaceholder].GetBoolValue() {
		t.Error("placeholder flag lost in payload conversion")
	}
	if got := payload["score_hint"].GetDoubleValue(); got != 0.5 {
		t.Errorf("score_hint = %v, want 0.5", got)
	}
}

func TestBuildFilter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		query       vectorstore.SearchQuery
		wantMust    int
		wantMustNot int
	}{
		{"no filters", vectorstore.SearchQuery{}, 0, 0},
		{"session only", vectorstore.SearchQuery{SessionID: "s1"}, 1, 0},
		{"document only", vectorstore.SearchQuery{DocumentID: "d1"}, 1, 0},
		{"both", vectorstore.SearchQuery{SessionID: "s1", DocumentID: "d1"}, 2, 0},
		{"exclusions only", vectorstore.SearchQuery{ExcludeDocuments: []string{"d1", "d2"}}, 0, 2},
		{"session with exclusions", vectorstore.SearchQuery{SessionID: "s1", ExcludeDocuments: []string{"d1"}}, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			filter := buildFilter(tt.query)
			if tt.wantMust == 0 && tt.wantMustNot == 0 {
				if filter != nil {
					t.Errorf("filter = %v, want nil", filter)
				}
				return
			}
			if filter == nil {
				t.Fatalf("filter = nil, want %d must / %d must-not clauses", tt.wantMust, tt.wantMustNot)
			}
			if len(filter.Must) != tt.wantMust {
				t.Errorf("must clauses = %d, want %d", len(filter.Must), tt.wantMust)
			}
			if len(filter.MustNot) != tt.wantMustNot {
				t.Errorf("must-not clauses = %d, want %d", len(filter.MustNot), tt.wantMustNot)
			}
		})
	}
}

func TestConvertPoint(t *testing.T) {
	t.Parallel()

	point := &qd.ScoredPoint{
		Id:    pointID("doc_chunk_0"),
		Score: 0.87,
		Payload: map[string]*qd.Value{
			payloadChunkID:     qd.NewValueString("doc_chunk_0"),
			payloadText:        qd.NewValueString("some chunk"),
			rag.MetaDocumentID: qd.NewValueString("doc"),
			rag.MetaOrdinal:    qd.NewValueInt(0),
		},
	}

	result := convertPoint(point)
	if result.ID != "doc_chunk_0" {
		t.Errorf("ID = %q, want doc_chunk_0", result.ID)
	}
	if result.Text != "some chunk" {
		t.Errorf("Text = %q, want some chunk", result.Text)
	}
	if result.Score != float64(float32(0.87)) {
		t.Errorf("Score = %v, want 0.87", result.Score)
	}
	if result.Metadata[rag.MetaDocumentID] != "doc" {
		t.Errorf("document_id metadata = %v, want doc", result.Metadata[rag.MetaDocumentID])
	}
	if got, ok := result.Metadata[rag.MetaOrdinal]; !ok || got != int64(0) {
		t.Errorf("ordinal metadata = %v (present=%v), want 0", got, ok)
	}
	if _, ok := result.Metadata[payloadText]; ok {
		t.Error("chunk text leaked into metadata")
	}
}

func TestConvertPointKeepsZeroValues(t *testing.T) {
	t.Parallel()

	point := &qd.ScoredPoint{
		Id:    pointID("doc_chunk_0"),
		Score: 0.5,
		Payload: map[string]*qd.Value{
			payloadChunkID:      qd.NewValueString("doc_chunk_0"),
			rag.MetaOrdinal:     qd.NewValueInt(0),
			rag.MetaPlaceholder: qd.NewValueBool(false),
			"weight":            qd.NewValueDouble(0),
		},
	}

	result := convertPoint(point)
	if got, ok := result.Metadata[rag.MetaOrdinal]; !ok || got != int64(0) {
		t.Errorf("ordinal = %v (present=%v), want 0", got, ok)
	}
	if got, ok := result.Metadata[rag.MetaPlaceholder]; !ok || got != false {
		t.Errorf("placeholder flag = %v (present=%v), want false", got, ok)
	}
	if got, ok := result.Metadata["weight"]; !ok || got != float64(0) {
		t.Errorf("weight = %v (present=%v), want 0", got, ok)
	}
}
