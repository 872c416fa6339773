package server

// Wire views of the persistence models. Storage rows carry fields the
// API must never serialize (credential hashes, vector namespaces), so
// handlers convert instead of marshaling repository types directly.

import (
	"time"

	"github.com/tkohara/ragchat/internal/repository"
)

type userView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Tier      string    `json:"tier"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserView(u *repository.User) userView {
	return userView{
		ID:        u.ID.String(),
		Email:     u.Email,
		Name:      u.Name,
		Tier:      u.Tier,
		CreatedAt: u.CreatedAt,
	}
}

type collectionView struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Status        string    `json:"status"`
	DocumentCount int       `json:"document_count"`
	ChunkCount    int       `json:"chunk_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toCollectionView(c *repository.Collection) collectionView {
	return collectionView{
		ID:            c.ID.String(),
		Name:          c.Name,
		Description:   c.Description,
		Status:        c.Status,
		DocumentCount: c.DocumentCount,
		ChunkCount:    c.ChunkCount,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func toCollectionViews(cols []*repository.Collection) []collectionView {
	out := make([]collectionView, len(cols))
	for i, c := range cols {
		out[i] = toCollectionView(c)
	}
	return out
}

type documentView struct {
	ID           string    `json:"id"`
	CollectionID string    `json:"collection_id"`
	FileName     string    `json:"file_name"`
	ContentType  string    `json:"content_type,omitempty"`
	SizeBytes    int64     `json:"size_bytes"`
	SHA256       string    `json:"sha256"`
	ChunkCount   int       `json:"chunk_count"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toDocumentView(d *repository.Document) documentView {
	return documentView{
		ID:           d.ID.String(),
		CollectionID: d.CollectionID.String(),
		FileName:     d.FileName,
		ContentType:  d.ContentType,
		SizeBytes:    d.SizeBytes,
		SHA256:       d.SHA256,
		ChunkCount:   d.ChunkCount,
		Status:       d.Status,
		ErrorMessage: d.ErrorMessage,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func toDocumentViews(docs []*repository.Document) []documentView {
	out := make([]documentView, len(docs))
	for i, d := range docs {
		out[i] = toDocumentView(d)
	}
	return out
}

type chunkView struct {
	ID         string `json:"id"`
	ChunkIndex int    `json:"chunk_index"`
	Content    string `json:"content"`
}

func toChunkViews(chunks []*repository.DocumentChunk) []chunkView {
	out := make([]chunkView, len(chunks))
	for i, c := range chunks {
		out[i] = chunkView{
			ID:         c.ID.String(),
			ChunkIndex: c.ChunkIndex,
			Content:    c.Content,
		}
	}
	return out
}
