package vectorindex

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	method string
	path   string
	query  string
	body   map[string]any
}

func newTestIndex(t *testing.T, handler http.HandlerFunc) (*Qdrant, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery}
		if data, _ := io.ReadAll(r.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &rec.body)
		}
		requests = append(requests, rec)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return New(Config{URL: srv.URL, Collection: "docs"}), &requests
}

func TestEnsureCollectionExisting(t *testing.T) {
	q, requests := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, q.EnsureCollection(context.Background()))
	require.Len(t, *requests, 1)
	assert.Equal(t, http.MethodGet, (*requests)[0].method)
	assert.Equal(t, "/collections/docs", (*requests)[0].path)
}

func TestEnsureCollectionCreatesWhenMissing(t *testing.T) {
	q, requests := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, q.EnsureCollection(context.Background()))
	require.Len(t, *requests, 2)

	create := (*requests)[1]
	assert.Equal(t, http.MethodPut, create.method)
	assert.Equal(t, "/collections/docs", create.path)
	vectors := create.body["vectors"].(map[string]any)
	assert.Equal(t, float64(VectorSize), vectors["size"])
	assert.Equal(t, "Cosine", vectors["distance"])
}

func TestUpsertWritesDeterministicPoints(t *testing.T) {
	q, requests := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	chunks := []ChunkPoint{
		{Index: 0, Text: "alpha", Vector: []float32{0.1}},
		{Index: 1, Text: "beta", Vector: []float32{0.2}},
	}
	require.NoError(t, q.Upsert(context.Background(), "doc-42", "owner-a", chunks))

	require.Len(t, *requests, 1)
	req := (*requests)[0]
	assert.Equal(t, http.MethodPut, req.method)
	assert.Equal(t, "/collections/docs/points", req.path)
	assert.Equal(t, "wait=true", req.query, "writes must wait for durability")

	points := req.body["points"].([]any)
	require.Len(t, points, 2)

	first := points[0].(map[string]any)
	assert.Equal(t, "doc-42_0", first["id"])
	payload := first["payload"].(map[string]any)
	assert.Equal(t, "owner-a", payload["user_id"])
	assert.Equal(t, "doc-42", payload["document_id"])
	assert.Equal(t, float64(0), payload["chunk_index"])
	assert.Equal(t, "alpha", payload["text"])

	second := points[1].(map[string]any)
	assert.Equal(t, "doc-42_1", second["id"])
}

func TestSearchAlwaysFiltersByOwner(t *testing.T) {
	q, requests := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"result": []map[string]any{
				{"score": 0.91, "payload": map[string]any{"text": "hit one", "document_id": "doc-1"}},
				{"score": 0.84, "payload": map[string]any{"text": "hit two", "document_id": "doc-2"}},
			},
		})
	})

	results, err := q.Search(context.Background(), "owner-a", []float32{0.5}, 8)
	require.NoError(t, err)

	require.Len(t, *requests, 1)
	body := (*requests)[0].body
	filter := body["filter"].(map[string]any)
	must := filter["must"].([]any)
	require.Len(t, must, 1)
	cond := must[0].(map[string]any)
	assert.Equal(t, "user_id", cond["key"])
	assert.Equal(t, "owner-a", cond["match"].(map[string]any)["value"])
	assert.Equal(t, float64(8), body["limit"])

	require.Len(t, results, 2)
	assert.Equal(t, SearchResult{Text: "hit one", Score: 0.91, DocumentID: "doc-1"}, results[0])
	assert.Equal(t, SearchResult{Text: "hit two", Score: 0.84, DocumentID: "doc-2"}, results[1])
}

func TestDeleteByDocument(t *testing.T) {
	q, requests := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, q.DeleteByDocument(context.Background(), "doc-42"))

	require.Len(t, *requests, 1)
	req := (*requests)[0]
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "/collections/docs/points/delete", req.path)
	assert.Equal(t, "wait=true", req.query)

	must := req.body["filter"].(map[string]any)["must"].([]any)
	cond := must[0].(map[string]any)
	assert.Equal(t, "document_id", cond["key"])
	assert.Equal(t, "doc-42", cond["match"].(map[string]any)["value"])
}

func TestSearchErrorStatus(t *testing.T) {
	q, _ := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := q.Search(context.Background(), "owner-a", []float32{0.5}, 8)
	assert.Error(t, err)
}
