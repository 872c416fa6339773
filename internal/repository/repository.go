// Package repository defines domain models and data access interfaces for users, collections, and documents.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert breaches a uniqueness rule:
// user email, collection name per owner, or content hash per collection.
var ErrDuplicate = errors.New("already exists")

// TierFree is the tier assigned to new accounts.
const TierFree = "free"

// Collection statuses. A collection is queryable only when ready.
const (
	CollectionStatusCreating   = "creating"
	CollectionStatusReady      = "ready"
	CollectionStatusProcessing = "processing"
	CollectionStatusFailed     = "failed"
)

// Document statuses.
const (
	DocumentStatusProcessing = "processing"
	DocumentStatusReady      = "ready"
	DocumentStatusFailed     = "failed"
)

// User represents an account that owns collections and holds an API key.
// APIKeyHash is the SHA-256 of the issued key; the plaintext key is
// shown once at creation and never stored.
type User struct {
	ID           uuid.UUID
	Email        string
	Name         string
	APIKeyHash   string
	PasswordHash string
	Tier         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Collection represents a knowledge collection owned by a user. Every
// collection maps to one vector store namespace.
type Collection struct {
	ID              uuid.UUID
	OwnerID         uuid.UUID
	Name            string
	Description     string
	Status          string
	VectorNamespace string
	DocumentCount   int
	ChunkCount      int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Document represents an uploaded document within a collection.
type Document struct {
	ID           uuid.UUID
	CollectionID uuid.UUID
	FileName     string
	ContentType  string
	SizeBytes    int64
	SHA256       string
	ChunkCount   int
	Status       string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DocumentChunk represents a chunk of a document, kept relationally for
// listing and inspection; the embedded copy lives in the vector store.
type DocumentChunk struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	ChunkIndex int
	Content    string
	CreatedAt  time.Time
}

// UserStats holds per-user usage counters.
type UserStats struct {
	CollectionCount int `json:"collection_count"`
	DocumentCount   int `json:"document_count"`
	ChunkCount      int `json:"chunk_count"`
}

// UserRepository defines operations for user persistence
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByAPIKeyHash(ctx context.Context, keyHash string) (*User, error)
	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, id uuid.UUID) error
	UpdateAPIKeyHash(ctx context.Context, id uuid.UUID, keyHash string) error
	Stats(ctx context.Context, id uuid.UUID) (*UserStats, error)
}

// CollectionRepository defines operations for collection persistence
type CollectionRepository interface {
	Create(ctx context.Context, col *Collection) error
	GetByID(ctx context.Context, id uuid.UUID) (*Collection, error)
	List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*Collection, int, error)
	Update(ctx context.Context, col *Collection) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// DocumentRepository defines operations for document persistence
type DocumentRepository interface {
	Create(ctx context.Context, doc *Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*Document, error)
	GetBySHA256(ctx context.Context, collectionID uuid.UUID, hash string) (*Document, error)
	List(ctx context.Context, collectionID uuid.UUID, status string, limit, offset int) ([]*Document, int, error)
	Update(ctx context.Context, doc *Document) error
	Delete(ctx context.Context, id uuid.UUID) error

	// Chunk operations
	CreateChunks(ctx context.Context, chunks []*DocumentChunk) error
	GetChunks(ctx context.Context, documentID uuid.UUID, limit, offset int) ([]*DocumentChunk, error)
	DeleteChunks(ctx context.Context, documentID uuid.UUID) error
}
