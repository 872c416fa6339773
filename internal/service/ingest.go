package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tkohara/ragchat/internal/auth"
	"github.com/tkohara/ragchat/internal/embedder"
	"github.com/tkohara/ragchat/internal/errdefs"
	"github.com/tkohara/ragchat/internal/guardrails"
	"github.com/tkohara/ragchat/internal/ingestion"
	"github.com/tkohara/ragchat/internal/observability"
	"github.com/tkohara/ragchat/internal/repository"
	"github.com/tkohara/ragchat/internal/vectorstore"
)

// MaxUploadBytes caps a single document upload.
const MaxUploadBytes = 10 << 20

// DocumentService handles document upload, ingestion, and lifecycle.
// Ingestion runs asynchronously: Upload returns once the document row
// exists, and a background pass embeds and indexes the chunks.
type DocumentService struct {
	docs        repository.DocumentRepository
	collections repository.CollectionRepository
	embedder    embedder.Embedder
	vectorDB    vectorstore.VectorStore
	guard       *guardrails.Engine
	pipeline    *ingestion.Pipeline
	sink        observability.Sink
}

// NewDocumentService creates the document service.
func NewDocumentService(
	docs repository.DocumentRepository,
	collections repository.CollectionRepository,
	embed embedder.Embedder,
	vectorDB vectorstore.VectorStore,
	guard *guardrails.Engine,
	chunker ingestion.ChunkerConfig,
	sink observability.Sink,
) *DocumentService {
	if sink == nil {
		sink = observability.NopSink{}
	}
	return &DocumentService{
		docs:        docs,
		collections: collections,
		embedder:    embed,
		vectorDB:    vectorDB,
		guard:       guard,
		pipeline:    ingestion.NewPipeline(chunker),
		sink:        sink,
	}
}

// Upload accepts raw document bytes, extracts and screens the text,
// and registers the document for indexing. A document whose content
// hash already exists in the collection is returned as-is instead of
// being indexed twice. The returned document is in processing state;
// indexing completes in the background.
func (s *DocumentService) Upload(ctx context.Context, collectionID uuid.UUID, fileName, contentType string, data []byte) (*repository.Document, error) {
	identity, err := auth.RequireIdentity(ctx)
	if err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return nil, errdefs.E(errdefs.InvalidArgument, errdefs.CodeInvalidParameter, "file is empty")
	}
	if len(data) > MaxUploadBytes {
		return nil, errdefs.E(errdefs.InvalidArgument, errdefs.CodeInvalidParameter,
			fmt.Sprintf("file exceeds %d byte limit", MaxUploadBytes))
	}
	if fileName == "" {
		fileName = "untitled"
	}

	col, err := ownedCollection(ctx, s.collections, identity, collectionID)
	if err != nil {
		return nil, err
	}
	if col.Status != repository.CollectionStatusReady && col.Status != repository.CollectionStatusProcessing {
		return nil, errdefs.E(errdefs.FailedPrecondition, errdefs.CodeCollectionNotReady,
			fmt.Sprintf("collection is %s and cannot accept uploads", col.Status))
	}

	text, err := ingestion.ExtractText(contentType, data)
	if err != nil {
		if errors.Is(err, ingestion.ErrUnsupportedType) {
			return nil, errdefs.Wrap(err, errdefs.InvalidArgument, errdefs.CodeInvalidRequest,
				fmt.Sprintf("unsupported content type %q", contentType))
		}
		return nil, errdefs.Wrap(err, errdefs.InvalidArgument, errdefs.CodeInvalidRequest, "failed to extract text")
	}

	text, err = s.screenUpload(text)
	if err != nil {
		return nil, err
	}

	result, err := s.pipeline.Process(ctx, text)
	if err != nil {
		if errors.Is(err, ingestion.ErrEmptyContent) {
			return nil, errdefs.Wrap(err, errdefs.InvalidArgument, errdefs.CodeInvalidRequest, "document has no indexable text")
		}
		return nil, errdefs.Wrap(err, errdefs.Internal, errdefs.CodeProcessingError, "failed to process document")
	}

	if existing, err := s.docs.GetBySHA256(ctx, col.ID, result.ContentHash); err == nil {
		return existing, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, errdefs.Wrap(err, errdefs.Internal, errdefs.CodeInternal, "failed to check for duplicate content")
	}

	now := time.Now()
	doc := &repository.Document{
		ID:           uuid.New(),
		CollectionID: col.ID,
		FileName:     fileName,
		ContentType:  contentType,
		SizeBytes:    int64(len(data)),
		SHA256:       result.ContentHash,
		Status:       repository.DocumentStatusProcessing,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// Lost a race against a concurrent upload of the same bytes.
			if existing, gerr := s.docs.GetBySHA256(ctx, col.ID, result.ContentHash); gerr == nil {
				return existing, nil
			}
		}
		return nil, errdefs.Wrap(err, errdefs.Internal, errdefs.CodeInternal, "failed to create document")
	}

	_ = s.collections.UpdateStatus(ctx, col.ID, repository.CollectionStatusProcessing)

	// Detached from the request context so a client disconnect does not
	// abandon a half-indexed document. The goroutine gets its own copy
	// of the row; the caller keeps the processing snapshot.
	go s.process(context.Background(), identity.UserID, *doc, col, result.Chunks)

	return doc, nil
}

// screenUpload validates upload text against the content policy.
// Toxic or threatening content blocks the upload outright; detected
// confidential data is redacted and the sanitized text is indexed.
func (s *DocumentService) screenUpload(text string) (string, error) {
	result := s.guard.Validate(text, guardrails.ContentKnowledgeUpload)
	if result.Valid {
		return text, nil
	}

	blocking := false
	pairs := make([]string, 0, len(result.Violations))
	for _, v := range result.Violations {
		if v.Kind == guardrails.ToxicContent || v.Kind == guardrails.Threat {
			blocking = true
		}
		pairs = append(pairs, fmt.Sprintf("%s:%s", v.Kind, v.Pattern))
	}
	if !blocking {
		return result.Sanitized, nil
	}

	return "", errdefs.E(errdefs.PolicyViolation, errdefs.CodePolicyViolation,
		"content policy violation: upload contains prohibited content").
		WithDetail("violations", pairs).
		WithDetail("content_type", string(guardrails.ContentKnowledgeUpload))
}

// process embeds and indexes a document's chunks, then marks the
// document and its collection ready. Any failure marks the document
// failed and releases the collection.
func (s *DocumentService) process(ctx context.Context, userID uuid.UUID, doc repository.Document, col *repository.Collection, chunks []ingestion.Chunk) {
	start := time.Now()

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		s.failDocument(ctx, userID, &doc, col, fmt.Errorf("embedding failed: %w", err))
		return
	}
	if len(vectors) != len(chunks) {
		s.failDocument(ctx, userID, &doc, col, fmt.Errorf("embedding returned %d vectors for %d chunks", len(vectors), len(chunks)))
		return
	}

	rows := ingestion.ChunksToDocumentChunks(chunks, doc.ID)

	points := make([]vectorstore.Chunk, len(chunks))
	for i, c := range chunks {
		points[i] = vectorstore.Chunk{
			ID:         rows[i].ID.String(),
			DocumentID: doc.ID.String(),
			Content:    c.Content,
			Index:      c.Index,
			Vector:     vectors[i],
			Metadata:   map[string]string{"file_name": doc.FileName},
		}
	}

	if err := s.vectorDB.Upsert(ctx, col.VectorNamespace, points); err != nil {
		s.failDocument(ctx, userID, &doc, col, fmt.Errorf("vector upsert failed: %w", err))
		return
	}

	if err := s.docs.CreateChunks(ctx, rows); err != nil {
		s.failDocument(ctx, userID, &doc, col, fmt.Errorf("chunk storage failed: %w", err))
		return
	}

	doc.Status = repository.DocumentStatusReady
	doc.ChunkCount = len(chunks)
	if err := s.docs.Update(ctx, &doc); err != nil {
		s.failDocument(ctx, userID, &doc, col, fmt.Errorf("status update failed: %w", err))
		return
	}

	_ = s.collections.UpdateStatus(ctx, col.ID, repository.CollectionStatusReady)

	emitEvent(ctx, s.sink, observability.Event{
		Type:   observability.EventDocumentIngested,
		UserID: userID.String(),
		Fields: map[string]any{
			"document_id":   doc.ID.String(),
			"collection_id": col.ID.String(),
			"file_name":     doc.FileName,
			"chunks":        len(chunks),
			"bytes":         doc.SizeBytes,
			"duration_ms":   time.Since(start).Milliseconds(),
		},
	})
}

// failDocument records an ingestion failure on the document and moves
// the collection back to ready so other uploads are not blocked.
func (s *DocumentService) failDocument(ctx context.Context, userID uuid.UUID, doc *repository.Document, col *repository.Collection, cause error) {
	doc.Status = repository.DocumentStatusFailed
	doc.ErrorMessage = cause.Error()
	_ = s.docs.Update(ctx, doc)
	_ = s.collections.UpdateStatus(ctx, col.ID, repository.CollectionStatusReady)

	emitEvent(ctx, s.sink, observability.Event{
		Type:   observability.EventPipelineError,
		UserID: userID.String(),
		Fields: map[string]any{
			"stage":       "ingest",
			"document_id": doc.ID.String(),
			"error":       cause.Error(),
		},
	})
}

// Get returns one of the caller's documents.
func (s *DocumentService) Get(ctx context.Context, id uuid.UUID) (*repository.Document, error) {
	identity, err := auth.RequireIdentity(ctx)
	if err != nil {
		return nil, err
	}

	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errdefs.E(errdefs.NotFound, errdefs.CodeNotFound, "document not found")
		}
		return nil, errdefs.Wrap(err, errdefs.Internal, errdefs.CodeInternal, "failed to load document")
	}

	if _, err := ownedCollection(ctx, s.collections, identity, doc.CollectionID); err != nil {
		return nil, err
	}
	return doc, nil
}

// List returns the caller's documents in a collection, optionally
// filtered by status, newest first.
func (s *DocumentService) List(ctx context.Context, collectionID uuid.UUID, status string, limit, offset int) ([]*repository.Document, int, error) {
	identity, err := auth.RequireIdentity(ctx)
	if err != nil {
		return nil, 0, err
	}

	if _, err := ownedCollection(ctx, s.collections, identity, collectionID); err != nil {
		return nil, 0, err
	}

	limit, offset = clampPage(limit, offset)
	docs, total, err := s.docs.List(ctx, collectionID, status, limit, offset)
	if err != nil {
		return nil, 0, errdefs.Wrap(err, errdefs.Internal, errdefs.CodeInternal, "failed to list documents")
	}
	return docs, total, nil
}

// Chunks returns the stored text chunks of one of the caller's
// documents, in document order.
func (s *DocumentService) Chunks(ctx context.Context, documentID uuid.UUID, limit, offset int) ([]*repository.DocumentChunk, error) {
	doc, err := s.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}

	limit, offset = clampPage(limit, offset)
	chunks, err := s.docs.GetChunks(ctx, doc.ID, limit, offset)
	if err != nil {
		return nil, errdefs.Wrap(err, errdefs.Internal, errdefs.CodeInternal, "failed to load chunks")
	}
	return chunks, nil
}

// Delete removes a document, its stored chunks, and its vectors.
// Vector deletion is best effort; the rows go regardless.
func (s *DocumentService) Delete(ctx context.Context, id uuid.UUID) error {
	identity, err := auth.RequireIdentity(ctx)
	if err != nil {
		return err
	}

	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return errdefs.E(errdefs.NotFound, errdefs.CodeNotFound, "document not found")
		}
		return errdefs.Wrap(err, errdefs.Internal, errdefs.CodeInternal, "failed to load document")
	}

	col, err := ownedCollection(ctx, s.collections, identity, doc.CollectionID)
	if err != nil {
		return err
	}

	_ = s.vectorDB.Delete(ctx, col.VectorNamespace, doc.ID.String())

	if err := s.docs.DeleteChunks(ctx, doc.ID); err != nil {
		return errdefs.Wrap(err, errdefs.Internal, errdefs.CodeInternal, "failed to delete chunks")
	}
	if err := s.docs.Delete(ctx, doc.ID); err != nil {
		return errdefs.Wrap(err, errdefs.Internal, errdefs.CodeInternal, "failed to delete document")
	}

	emitEvent(ctx, s.sink, observability.Event{
		Type:   observability.EventAudit,
		UserID: identity.UserID.String(),
		Fields: map[string]any{
			"action":      "document_deleted",
			"document_id": doc.ID.String(),
			"file_name":   doc.FileName,
		},
	})

	return nil
}
