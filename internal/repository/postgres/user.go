package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tkohara/ragchat/internal/repository"
)

// UserRepo implements repository.UserRepository
type UserRepo struct {
	db *DB
}

// NewUserRepo creates a new user repository
func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{db: db}
}

// Create creates a new user
func (r *UserRepo) Create(ctx context.Context, user *repository.User) error {
	query := `
		INSERT INTO users (id, email, name, api_key_hash, password_hash, tier, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (email) DO NOTHING
	`
	result, err := r.db.Pool.Exec(ctx, query,
		user.ID, user.Email, user.Name, user.APIKeyHash, user.PasswordHash,
		user.Tier, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("email %s: %w", user.Email, repository.ErrDuplicate)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*repository.User, error) {
	query := `
		SELECT id, email, name, api_key_hash, password_hash, tier, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	return r.scanUser(ctx, query, id)
}

// GetByEmail retrieves a user by email
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*repository.User, error) {
	query := `
		SELECT id, email, name, api_key_hash, password_hash, tier, created_at, updated_at
		FROM users
		WHERE email = $1
	`
	return r.scanUser(ctx, query, email)
}

// GetByAPIKeyHash retrieves a user by the hash of their API key
func (r *UserRepo) GetByAPIKeyHash(ctx context.Context, keyHash string) (*repository.User, error) {
	query := `
		SELECT id, email, name, api_key_hash, password_hash, tier, created_at, updated_at
		FROM users
		WHERE api_key_hash = $1
	`
	return r.scanUser(ctx, query, keyHash)
}

func (r *UserRepo) scanUser(ctx context.Context, query string, args ...any) (*repository.User, error) {
	var user repository.User

	err := r.db.Pool.QueryRow(ctx, query, args...).Scan(
		&user.ID, &user.Email, &user.Name, &user.APIKeyHash, &user.PasswordHash,
		&user.Tier, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// Update updates a user's mutable fields
func (r *UserRepo) Update(ctx context.Context, user *repository.User) error {
	query := `
		UPDATE users
		SET email = $2, name = $3, tier = $4, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Pool.Exec(ctx, query, user.ID, user.Email, user.Name, user.Tier)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete deletes a user
func (r *UserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdateAPIKeyHash rotates a user's API key hash
func (r *UserRepo) UpdateAPIKeyHash(ctx context.Context, id uuid.UUID, keyHash string) error {
	result, err := r.db.Pool.Exec(ctx,
		`UPDATE users SET api_key_hash = $2, updated_at = NOW() WHERE id = $1`,
		id, keyHash)
	if err != nil {
		return fmt.Errorf("failed to update API key hash: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Stats computes usage counters across the user's collections
func (r *UserRepo) Stats(ctx context.Context, id uuid.UUID) (*repository.UserStats, error) {
	var stats repository.UserStats

	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM collections WHERE owner_id = $1
	`, id).Scan(&stats.CollectionCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count collections: %w", err)
	}

	err = r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(d.chunk_count), 0)
		FROM documents d
		JOIN collections c ON c.id = d.collection_id
		WHERE c.owner_id = $1
	`, id).Scan(&stats.DocumentCount, &stats.ChunkCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}

	return &stats, nil
}

// Ensure UserRepo implements the interface
var _ repository.UserRepository = (*UserRepo)(nil)
