package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tkohara/ragchat/internal/auth"
	"github.com/tkohara/ragchat/internal/embedder"
	"github.com/tkohara/ragchat/internal/errdefs"
	"github.com/tkohara/ragchat/internal/observability"
	"github.com/tkohara/ragchat/internal/repository"
	"github.com/tkohara/ragchat/internal/vectorstore"
)

// CollectionService manages knowledge base collections and their
// backing vector namespaces.
type CollectionService struct {
	collections repository.CollectionRepository
	vectorDB    vectorstore.VectorStore
	embedder    embedder.Embedder
	sink        observability.Sink
}

// NewCollectionService creates the collection service.
func NewCollectionService(
	collections repository.CollectionRepository,
	vectorDB vectorstore.VectorStore,
	embed embedder.Embedder,
	sink observability.Sink,
) *CollectionService {
	if sink == nil {
		sink = observability.NopSink{}
	}
	return &CollectionService{
		collections: collections,
		vectorDB:    vectorDB,
		embedder:    embed,
		sink:        sink,
	}
}

// Create registers a collection and provisions its vector namespace.
// The collection is ready on return; if provisioning fails it is left
// in failed state and the error reports the store outage.
func (s *CollectionService) Create(ctx context.Context, name, description string) (*repository.Collection, error) {
	identity, err := auth.RequireIdentity(ctx)
	if err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errdefs.E(errdefs.InvalidArgument, errdefs.CodeInvalidParameter, "name is required")
	}

	ns, err := newNamespace()
	if err != nil {
		return nil, errdefs.Wrap(err, errdefs.Internal, errdefs.CodeInternal, "failed to generate namespace")
	}

	now := time.Now()
	col := &repository.Collection{
		ID:              uuid.New(),
		OwnerID:         identity.UserID,
		Name:            name,
		Description:     description,
		Status:          repository.CollectionStatusCreating,
		VectorNamespace: ns,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.collections.Create(ctx, col); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, errdefs.E(errdefs.FailedPrecondition, errdefs.CodeAlreadyExists,
				fmt.Sprintf("collection %q already exists", name))
		}
		return nil, errdefs.Wrap(err, errdefs.Internal, errdefs.CodeInternal, "failed to create collection")
	}

	if err := s.vectorDB.CreateCollection(ctx, ns, s.embedder.Dimension()); err != nil {
		_ = s.collections.UpdateStatus(ctx, col.ID, repository.CollectionStatusFailed)
		return nil, errdefs.Wrap(err, errdefs.Unavailable, errdefs.CodeProcessingError, "failed to provision vector storage")
	}

	if err := s.collections.UpdateStatus(ctx, col.ID, repository.CollectionStatusReady); err != nil {
		return nil, errdefs.Wrap(err, errdefs.Internal, errdefs.CodeInternal, "failed to activate collection")
	}
	col.Status = repository.CollectionStatusReady

	emitEvent(ctx, s.sink, observability.Event{
		Type:   observability.EventAudit,
		UserID: identity.UserID.String(),
		Fields: map[string]any{
			"action":        "collection_created",
			"collection_id": col.ID.String(),
			"name":          col.Name,
		},
	})

	return col, nil
}

// Get returns one of the caller's collections.
func (s *CollectionService) Get(ctx context.Context, id uuid.UUID) (*repository.Collection, error) {
	identity, err := auth.RequireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	return ownedCollection(ctx, s.collections, identity, id)
}

// List returns the caller's collections, newest first.
func (s *CollectionService) List(ctx context.Context, limit, offset int) ([]*repository.Collection, int, error) {
	identity, err := auth.RequireIdentity(ctx)
	if err != nil {
		return nil, 0, err
	}

	limit, offset = clampPage(limit, offset)
	cols, total, err := s.collections.List(ctx, identity.UserID, limit, offset)
	if err != nil {
		return nil, 0, errdefs.Wrap(err, errdefs.Internal, errdefs.CodeInternal, "failed to list collections")
	}
	return cols, total, nil
}

// Delete removes a collection, its documents, and its vector
// namespace. Namespace deletion is best effort.
func (s *CollectionService) Delete(ctx context.Context, id uuid.UUID) error {
	identity, err := auth.RequireIdentity(ctx)
	if err != nil {
		return err
	}

	col, err := ownedCollection(ctx, s.collections, identity, id)
	if err != nil {
		return err
	}

	_ = s.vectorDB.DeleteCollection(ctx, col.VectorNamespace)

	if err := s.collections.Delete(ctx, col.ID); err != nil {
		return errdefs.Wrap(err, errdefs.Internal, errdefs.CodeInternal, "failed to delete collection")
	}

	emitEvent(ctx, s.sink, observability.Event{
		Type:   observability.EventAudit,
		UserID: identity.UserID.String(),
		Fields: map[string]any{
			"action":        "collection_deleted",
			"collection_id": col.ID.String(),
			"name":          col.Name,
		},
	})

	return nil
}

// newNamespace generates the vector store namespace for a collection.
// Namespaces are random so collection renames never touch the store.
func newNamespace() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "kb_" + hex.EncodeToString(b), nil
}

// clampPage normalizes pagination inputs to sane bounds.
func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
