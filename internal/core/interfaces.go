package core

import (
	"context"

	"lexchat/internal/chunker"
	"lexchat/internal/store"
	"lexchat/internal/vectorindex"
)

// Collaborator contracts consumed by the orchestrators. The concrete
// implementations live in their own packages; tests substitute fakes.

type Chunker interface {
	Chunk(text string) []chunker.Chunk
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type VectorIndex interface {
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, documentID, ownerID string, chunks []vectorindex.ChunkPoint) error
	Search(ctx context.Context, ownerID string, vector []float32, limit int) ([]vectorindex.SearchResult, error)
	DeleteByDocument(ctx context.Context, documentID string) error
}

type BlobStore interface {
	Put(path string, data []byte) error
	Remove(path string) error
}

type Registry interface {
	InsertDocument(doc *store.Document) error
	GetDocument(id, ownerID string) (*store.Document, error)
	ListDocuments(ownerID string, limit, offset int) ([]store.Document, error)
	DeleteDocument(id, ownerID string) error
}

// Completer streams a chat completion as incremental text fragments.
type Completer interface {
	StreamChat(ctx context.Context, messages []ChatMessage) (<-chan Fragment, error)
}
