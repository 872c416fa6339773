package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tkohara/ragchat/internal/repository"
)

// CollectionRepo implements repository.CollectionRepository
type CollectionRepo struct {
	db *DB
}

// NewCollectionRepo creates a new collection repository
func NewCollectionRepo(db *DB) *CollectionRepo {
	return &CollectionRepo{db: db}
}

// Document and chunk counters are derived from the documents table on
// every read rather than maintained as columns.
const collectionColumns = `
	c.id, c.owner_id, c.name, c.description, c.status, c.vector_namespace,
	(SELECT COUNT(*) FROM documents d WHERE d.collection_id = c.id),
	(SELECT COALESCE(SUM(d.chunk_count), 0) FROM documents d WHERE d.collection_id = c.id),
	c.created_at, c.updated_at
`

// Create creates a new collection
func (r *CollectionRepo) Create(ctx context.Context, col *repository.Collection) error {
	query := `
		INSERT INTO collections (id, owner_id, name, description, status, vector_namespace, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (owner_id, name) DO NOTHING
	`
	result, err := r.db.Pool.Exec(ctx, query,
		col.ID, col.OwnerID, col.Name, col.Description, col.Status,
		col.VectorNamespace, col.CreatedAt, col.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("collection %q: %w", col.Name, repository.ErrDuplicate)
	}
	return nil
}

// GetByID retrieves a collection by ID
func (r *CollectionRepo) GetByID(ctx context.Context, id uuid.UUID) (*repository.Collection, error) {
	query := `SELECT ` + collectionColumns + ` FROM collections c WHERE c.id = $1`

	var col repository.Collection
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&col.ID, &col.OwnerID, &col.Name, &col.Description, &col.Status,
		&col.VectorNamespace, &col.DocumentCount, &col.ChunkCount,
		&col.CreatedAt, &col.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}

	return &col, nil
}

// List retrieves a user's collections with pagination
func (r *CollectionRepo) List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*repository.Collection, int, error) {
	var total int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM collections WHERE owner_id = $1`, ownerID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count collections: %w", err)
	}

	query := `
		SELECT ` + collectionColumns + `
		FROM collections c
		WHERE c.owner_id = $1
		ORDER BY c.created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Pool.Query(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	var cols []*repository.Collection
	for rows.Next() {
		var col repository.Collection
		if err := rows.Scan(&col.ID, &col.OwnerID, &col.Name, &col.Description, &col.Status,
			&col.VectorNamespace, &col.DocumentCount, &col.ChunkCount,
			&col.CreatedAt, &col.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan collection: %w", err)
		}
		cols = append(cols, &col)
	}

	return cols, total, nil
}

// Update updates a collection's mutable fields
func (r *CollectionRepo) Update(ctx context.Context, col *repository.Collection) error {
	query := `
		UPDATE collections
		SET name = $2, description = $3, status = $4, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Pool.Exec(ctx, query, col.ID, col.Name, col.Description, col.Status)
	if err != nil {
		return fmt.Errorf("failed to update collection: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdateStatus transitions a collection's processing status
func (r *CollectionRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	result, err := r.db.Pool.Exec(ctx,
		`UPDATE collections SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, status)
	if err != nil {
		return fmt.Errorf("failed to update collection status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete deletes a collection
func (r *CollectionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM collections WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Ensure CollectionRepo implements the interface
var _ repository.CollectionRepository = (*CollectionRepo)(nil)
