package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/tkohara/ragchat/internal/auth"
	"github.com/tkohara/ragchat/internal/errdefs"
	"github.com/tkohara/ragchat/internal/observability"
	"github.com/tkohara/ragchat/internal/repository"
)

const minPasswordLength = 8

// UserService handles registration, login, and API key management.
type UserService struct {
	users repository.UserRepository
	jwt   *auth.JWTManager
	sink  observability.Sink
}

// NewUserService creates the user service.
func NewUserService(users repository.UserRepository, jwt *auth.JWTManager, sink observability.Sink) *UserService {
	if sink == nil {
		sink = observability.NopSink{}
	}
	return &UserService{users: users, jwt: jwt, sink: sink}
}

// RegisterResult carries the new account and its API key. The key is
// returned exactly once; only its hash is stored.
type RegisterResult struct {
	User   *repository.User
	APIKey string
}

// TokenResult carries a session token and its expiry.
type TokenResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Register creates an account on the free tier.
func (s *UserService) Register(ctx context.Context, email, name, password string) (*RegisterResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, errdefs.E(errdefs.InvalidArgument, errdefs.CodeInvalidParameter, "a valid email is required")
	}
	if len(password) < minPasswordLength {
		return nil, errdefs.E(errdefs.InvalidArgument, errdefs.CodeInvalidParameter, "password must be at least 8 characters")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errdefs.Wrap(err, errdefs.Internal, errdefs.CodeInternal, "failed to hash password")
	}

	apiKey, err := auth.GenerateAPIKey()
	if err != nil {
		return nil, errdefs.Wrap(err, errdefs.Internal, errdefs.CodeInternal, "failed to generate API key")
	}

	now := time.Now()
	user := &repository.User{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		APIKeyHash:   auth.HashAPIKey(apiKey),
		PasswordHash: string(passwordHash),
		Tier:         repository.TierFree,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, errdefs.E(errdefs.FailedPrecondition, errdefs.CodeAlreadyExists, "email already registered")
		}
		return nil, errdefs.Wrap(err, errdefs.Internal, errdefs.CodeInternal, "failed to create user")
	}

	emitEvent(ctx, s.sink, observability.Event{
		Type:   observability.EventAudit,
		UserID: user.ID.String(),
		Fields: map[string]any{"action": "user_registered", "email": email},
	})

	return &RegisterResult{User: user, APIKey: apiKey}, nil
}

// Login verifies credentials and issues a session token.
func (s *UserService) Login(ctx context.Context, email, password string) (*TokenResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errdefs.E(errdefs.Unauthorized, errdefs.CodeUnauthorized, "invalid credentials")
		}
		return nil, errdefs.Wrap(err, errdefs.Internal, errdefs.CodeInternal, "failed to load user")
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, errdefs.E(errdefs.Unauthorized, errdefs.CodeUnauthorized, "invalid credentials")
	}

	return s.issueToken(user)
}

// Refresh exchanges a valid token for a fresh one.
func (s *UserService) Refresh(ctx context.Context, token string) (*TokenResult, error) {
	refreshed, err := s.jwt.RefreshToken(token)
	if err != nil {
		return nil, errdefs.Wrap(err, errdefs.Unauthorized, errdefs.CodeUnauthorized, "invalid token")
	}

	expiry, err := s.jwt.TokenExpiry(refreshed)
	if err != nil {
		return nil, errdefs.Wrap(err, errdefs.Internal, errdefs.CodeInternal, "failed to read token expiry")
	}
	return &TokenResult{Token: refreshed, ExpiresAt: expiry}, nil
}

func (s *UserService) issueToken(user *repository.User) (*TokenResult, error) {
	token, err := s.jwt.GenerateToken(user.ID, user.Email)
	if err != nil {
		return nil, errdefs.Wrap(err, errdefs.Internal, errdefs.CodeInternal, "failed to issue token")
	}
	expiry, err := s.jwt.TokenExpiry(token)
	if err != nil {
		return nil, errdefs.Wrap(err, errdefs.Internal, errdefs.CodeInternal, "failed to read token expiry")
	}
	return &TokenResult{Token: token, ExpiresAt: expiry}, nil
}

// RotateAPIKey replaces the caller's API key and returns the new key.
// The old key stops working immediately.
func (s *UserService) RotateAPIKey(ctx context.Context) (string, error) {
	identity, err := auth.RequireIdentity(ctx)
	if err != nil {
		return "", err
	}

	apiKey, err := auth.GenerateAPIKey()
	if err != nil {
		return "", errdefs.Wrap(err, errdefs.Internal, errdefs.CodeInternal, "failed to generate API key")
	}

	if err := s.users.UpdateAPIKeyHash(ctx, identity.UserID, auth.HashAPIKey(apiKey)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", errdefs.E(errdefs.NotFound, errdefs.CodeNotFound, "user not found")
		}
		return "", errdefs.Wrap(err, errdefs.Internal, errdefs.CodeInternal, "failed to rotate API key")
	}

	emitEvent(ctx, s.sink, observability.Event{
		Type:   observability.EventAudit,
		UserID: identity.UserID.String(),
		Fields: map[string]any{"action": "api_key_rotated"},
	})

	return apiKey, nil
}

// Me returns the caller's account.
func (s *UserService) Me(ctx context.Context) (*repository.User, error) {
	identity, err := auth.RequireIdentity(ctx)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, identity.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errdefs.E(errdefs.NotFound, errdefs.CodeNotFound, "user not found")
		}
		return nil, errdefs.Wrap(err, errdefs.Internal, errdefs.CodeInternal, "failed to load user")
	}
	return user, nil
}

// Stats returns usage counters for the caller's account.
func (s *UserService) Stats(ctx context.Context) (*repository.UserStats, error) {
	identity, err := auth.RequireIdentity(ctx)
	if err != nil {
		return nil, err
	}

	stats, err := s.users.Stats(ctx, identity.UserID)
	if err != nil {
		return nil, errdefs.Wrap(err, errdefs.Internal, errdefs.CodeInternal, "failed to load stats")
	}
	return stats, nil
}
