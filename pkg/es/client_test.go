package es

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"llm-eval-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T, handler http.HandlerFunc) *QAPairIndex {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(config.ElasticsearchConfig{Addresses: srv.URL})
	require.NoError(t, err)
	return NewQAPairIndex(client, "qa_pairs")
}

func TestIndex(t *testing.T) {
	var got QAPairDocument
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/qa_pairs/_doc/p1", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	})

	err := idx.Index(context.Background(), QAPairDocument{ID: "p1", CatalogID: "c1", Question: "q", ExpectedOutput: "a"})
	require.NoError(t, err)
	assert.Equal(t, "c1", got.CatalogID)
	assert.Equal(t, "q", got.Question)
}

func TestIndexError(t *testing.T) {
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"mapper_parsing_exception"}`))
	})
	assert.Error(t, idx.Index(context.Background(), QAPairDocument{ID: "p1"}))
}

func TestSearch(t *testing.T) {
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/qa_pairs/_search", r.URL.Path)
		var q map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&q))
		filter := q["query"].(map[string]any)["bool"].(map[string]any)["filter"].(map[string]any)
		assert.Equal(t, "c1", filter["term"].(map[string]any)["catalog_id"])
		assert.Equal(t, float64(5), q["size"])
		_, _ = w.Write([]byte(`{"hits":{"hits":[
			{"_score": 2.5, "_source": {"id":"p1","catalog_id":"c1","question":"what","expected_output":"that"}}
		]}}`))
	})

	hits, err := idx.Search(context.Background(), "c1", "what", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "p1", hits[0].Document.ID)
	assert.Equal(t, 2.5, hits[0].Score)
}

func TestEnsureIndexCreatesMissingIndex(t *testing.T) {
	var created bool
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			created = true
			_, _ = w.Write([]byte(`{"acknowledged":true}`))
		}
	})
	require.NoError(t, idx.EnsureIndex(context.Background()))
	assert.True(t, created)
}

func TestDeleteByCatalog(t *testing.T) {
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/qa_pairs/_delete_by_query", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"query":{"term":{"catalog_id":"c1"}}}`, string(body))
		_, _ = w.Write([]byte(`{"deleted":3}`))
	})
	require.NoError(t, idx.DeleteByCatalog(context.Background(), "c1"))
}
