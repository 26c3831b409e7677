package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// VectorSize is the dimensionality of text-embedding-3-small vectors.
const VectorSize = 1536

// ChunkPoint is one passage to index: its position in the document, its text
// and its embedding.
type ChunkPoint struct {
	Index  int
	Text   string
	Vector []float32
}

// SearchResult is one retrieved passage with its similarity score.
type SearchResult struct {
	Text       string
	Score      float64
	DocumentID string
}

// Qdrant is a minimal REST client to a Qdrant collection using cosine
// distance. Every search is filtered to the owning user's points; that
// filter is the tenant-isolation boundary of the index and is never optional.
type Qdrant struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func New(cfg Config) *Qdrant {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Qdrant{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// EnsureCollection creates the collection if it does not exist yet. Safe to
// call repeatedly; an existing collection is left untouched.
func (q *Qdrant) EnsureCollection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/collections/%s", q.url, q.collection), nil)
	if err != nil {
		return err
	}
	q.setHeaders(req)
	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant collection check failed: %w", err)
	}
	resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		body := map[string]any{
			"vectors": map[string]any{
				"size":     VectorSize,
				"distance": "Cosine",
			},
		}
		return q.putJSON(ctx, fmt.Sprintf("%s/collections/%s", q.url, q.collection), body)
	default:
		return fmt.Errorf("qdrant collection check failed: %s", resp.Status)
	}
}

// Upsert writes one point per chunk. Point ids are {documentID}_{chunkIndex},
// so re-ingesting the same document id overwrites instead of duplicating.
// The write waits for the index to acknowledge durability.
func (q *Qdrant) Upsert(ctx context.Context, documentID, ownerID string, chunks []ChunkPoint) error {
	if len(chunks) == 0 {
		return errors.New("no chunks to upsert")
	}
	points := make([]map[string]any, len(chunks))
	for i, ch := range chunks {
		points[i] = map[string]any{
			"id":     fmt.Sprintf("%s_%d", documentID, ch.Index),
			"vector": ch.Vector,
			"payload": map[string]any{
				"user_id":     ownerID,
				"document_id": documentID,
				"chunk_index": ch.Index,
				"text":        ch.Text,
			},
		}
	}
	body := map[string]any{"points": points}
	return q.putJSON(ctx, fmt.Sprintf("%s/collections/%s/points?wait=true", q.url, q.collection), body)
}

// Search returns up to limit nearest points whose payload owner matches
// ownerID, ordered by descending similarity.
func (q *Qdrant) Search(ctx context.Context, ownerID string, vector []float32, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 8
	}
	body := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "user_id", "match": map[string]any{"value": ownerID}},
			},
		},
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := q.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/search", q.url, q.collection), body, &resp); err != nil {
		return nil, err
	}
	results := make([]SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		res := SearchResult{Score: r.Score}
		if v, ok := r.Payload["text"].(string); ok {
			res.Text = v
		}
		if v, ok := r.Payload["document_id"].(string); ok {
			res.DocumentID = v
		}
		results = append(results, res)
	}
	return results, nil
}

// DeleteByDocument removes every point belonging to the document.
func (q *Qdrant) DeleteByDocument(ctx context.Context, documentID string) error {
	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "document_id", "match": map[string]any{"value": documentID}},
			},
		},
	}
	return q.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/delete?wait=true", q.url, q.collection), body, nil)
}

func (q *Qdrant) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
}

func (q *Qdrant) putJSON(ctx context.Context, url string, body any) error {
	data, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	q.setHeaders(req)
	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant PUT failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant PUT %s failed: %s", url, resp.Status)
	}
	return nil
}

func (q *Qdrant) postJSON(ctx context.Context, url string, body any, out any) error {
	data, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	q.setHeaders(req)
	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant POST failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant POST %s failed: %s", url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
