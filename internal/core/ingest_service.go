package core

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"lexchat/internal/blob"
	"lexchat/internal/parser"
	"lexchat/internal/store"
	"lexchat/internal/vectorindex"
)

const defaultMaxUploadBytes = 20 << 20

var allowedExtensions = map[string]struct{}{
	"pdf":  {},
	"docx": {},
	"txt":  {},
}

// IngestService runs the upload pipeline: validate, store the raw bytes,
// parse, chunk, embed, index, register. A failure after the blob or index
// write triggers best-effort compensating deletes so no unregistered chunks
// stay reachable by retrieval.
type IngestService struct {
	registry       Registry
	blobs          BlobStore
	chunker        Chunker
	embedder       Embedder
	index          VectorIndex
	parse          func(data []byte, filename string) (string, error)
	maxUploadBytes int64
}

func NewIngestService(registry Registry, blobs BlobStore, ch Chunker, embedder Embedder, index VectorIndex, maxUploadMB int) *IngestService {
	maxBytes := int64(maxUploadMB) << 20
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadBytes
	}
	return &IngestService{
		registry:       registry,
		blobs:          blobs,
		chunker:        ch,
		embedder:       embedder,
		index:          index,
		parse:          parser.Parse,
		maxUploadBytes: maxBytes,
	}
}

// IngestResult is the upload response payload.
type IngestResult struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ChunkCount int    `json:"chunk_count"`
}

func (s *IngestService) Ingest(ctx context.Context, ownerID, filename string, data []byte) (*IngestResult, error) {
	// Validation fails fast, before any write.
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if _, ok := allowedExtensions[ext]; !ok {
		return nil, fmt.Errorf("%w: allowed types are pdf, docx, txt", ErrInvalidUpload)
	}
	if int64(len(data)) > s.maxUploadBytes {
		return nil, fmt.Errorf("%w: max file size is %d MB", ErrInvalidUpload, s.maxUploadBytes>>20)
	}

	documentID := uuid.NewString()
	storagePath := blob.ObjectPath(ownerID, documentID, filename)
	if err := s.blobs.Put(storagePath, data); err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	text, err := s.parse(data, filename)
	if err != nil {
		s.removeBlob(storagePath)
		return nil, fmt.Errorf("failed to parse %s: %w", filename, err)
	}
	if strings.TrimSpace(text) == "" {
		s.removeBlob(storagePath)
		return nil, ErrNoExtractableText
	}

	chunks := s.chunker.Chunk(text)
	if len(chunks) == 0 {
		s.removeBlob(storagePath)
		return nil, ErrNoChunksProduced
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		s.removeBlob(storagePath)
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}

	if err := s.index.EnsureCollection(ctx); err != nil {
		s.removeBlob(storagePath)
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}
	points := make([]vectorindex.ChunkPoint, len(chunks))
	for i, ch := range chunks {
		points[i] = vectorindex.ChunkPoint{Index: ch.Index, Text: ch.Text, Vector: vectors[i]}
	}
	if err := s.index.Upsert(ctx, documentID, ownerID, points); err != nil {
		s.rollback(ctx, documentID, storagePath)
		return nil, fmt.Errorf("failed to index chunks: %w", err)
	}

	doc := &store.Document{
		ID:          documentID,
		OwnerID:     ownerID,
		Name:        filename,
		StoragePath: storagePath,
		ChunkCount:  len(chunks),
	}
	if err := s.registry.InsertDocument(doc); err != nil {
		// Indexed but unregistered chunks must not survive.
		s.rollback(ctx, documentID, storagePath)
		return nil, fmt.Errorf("failed to register document: %w", err)
	}

	return &IngestResult{ID: documentID, Name: filename, ChunkCount: len(chunks)}, nil
}

// Delete removes a document's blob, index points and registry row, scoped to
// the caller's own documents.
func (s *IngestService) Delete(ctx context.Context, ownerID, documentID string) error {
	doc, err := s.registry.GetDocument(documentID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to look up document: %w", err)
	}
	if doc == nil {
		return ErrNotFound
	}

	if err := s.blobs.Remove(doc.StoragePath); err != nil {
		log.Printf("Failed to remove blob %s for document %s: %v", doc.StoragePath, documentID, err)
	}
	if err := s.index.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("failed to delete index points: %w", err)
	}
	if err := s.registry.DeleteDocument(documentID, ownerID); err != nil {
		return fmt.Errorf("failed to delete document record: %w", err)
	}
	return nil
}

func (s *IngestService) List(ownerID string, limit, offset int) ([]store.Document, error) {
	return s.registry.ListDocuments(ownerID, limit, offset)
}

func (s *IngestService) Get(ownerID, documentID string) (*store.Document, error) {
	doc, err := s.registry.GetDocument(documentID, ownerID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrNotFound
	}
	return doc, nil
}

// rollback undoes the index and blob writes after a later step failed. Its
// own failures are logged, never returned; the pipeline error takes
// precedence.
func (s *IngestService) rollback(ctx context.Context, documentID, storagePath string) {
	if err := s.index.DeleteByDocument(ctx, documentID); err != nil {
		log.Printf("Rollback: failed to delete index points for document %s: %v", documentID, err)
	}
	s.removeBlob(storagePath)
}

func (s *IngestService) removeBlob(storagePath string) {
	if err := s.blobs.Remove(storagePath); err != nil {
		log.Printf("Rollback: failed to remove blob %s: %v", storagePath, err)
	}
}
