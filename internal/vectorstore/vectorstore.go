// Package vectorstore provides interfaces and implementations for vector similarity search.
package vectorstore

import (
	"context"
)

// Chunk represents a document chunk with its embedding.
type Chunk struct {
	ID         string
	DocumentID string
	Content    string
	Index      int       // Position of the chunk within its document
	Vector     []float32 // Dense vector from embedding model
	Metadata   map[string]string
}

// SearchResult represents a search result from the vector store.
type SearchResult struct {
	ID         string
	DocumentID string
	Content    string
	ChunkIndex int
	FileName   string
	Score      float32
	Metadata   map[string]string
}

// VectorStore defines the interface for vector storage operations.
// The namespace argument is the physical collection name in the store;
// every knowledge collection owns exactly one namespace.
type VectorStore interface {
	// CreateCollection creates the namespace for a knowledge collection.
	CreateCollection(ctx context.Context, namespace string, dimension int) error

	// DeleteCollection deletes a namespace and everything in it.
	DeleteCollection(ctx context.Context, namespace string) error

	// CollectionExists checks if a namespace exists.
	CollectionExists(ctx context.Context, namespace string) (bool, error)

	// Upsert inserts or updates chunks in the namespace.
	Upsert(ctx context.Context, namespace string, chunks []Chunk) error

	// Search performs dense similarity search, dropping results that
	// score below minScore.
	Search(ctx context.Context, namespace string, vector []float32, topK int, minScore float32) ([]SearchResult, error)

	// Delete removes all chunks belonging to a document.
	Delete(ctx context.Context, namespace string, documentID string) error

	// DeleteByIDs removes specific chunks by their IDs.
	DeleteByIDs(ctx context.Context, namespace string, ids []string) error
}
