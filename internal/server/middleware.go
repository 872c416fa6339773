package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/tkohara/ragchat/internal/auth"
	"github.com/tkohara/ragchat/internal/errdefs"
	"github.com/tkohara/ragchat/internal/repository"
)

// requestLogging logs one line per request.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote_addr", r.RemoteAddr,
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// corsHandler handles CORS headers and preflight requests. An empty
// origin list allows everything, which suits development.
func corsHandler(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			if len(allowedOrigins) == 0 {
				allowed = true
				origin = "*"
			} else {
				for _, o := range allowedOrigins {
					if o == "*" || o == origin {
						allowed = true
						break
					}
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID, X-API-Key")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// authenticate resolves the caller from either an API key (X-API-Key
// header, or a Bearer value that looks like one) or a JWT, and stores
// the identity on the request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		credential := r.Header.Get("X-API-Key")
		if credential == "" {
			header := r.Header.Get("Authorization")
			if header == "" {
				respondError(w, s.logger, errdefs.E(errdefs.Unauthorized, errdefs.CodeUnauthorized, "missing credentials"))
				return
			}
			credential = strings.TrimPrefix(header, "Bearer ")
		}

		var (
			user *repository.User
			err  error
		)
		if auth.LooksLikeAPIKey(credential) {
			user, err = s.userLookup.GetByAPIKeyHash(ctx, auth.HashAPIKey(credential))
		} else {
			user, err = s.userFromToken(ctx, credential)
		}
		if err != nil {
			respondError(w, s.logger, errdefs.E(errdefs.Unauthorized, errdefs.CodeUnauthorized, "invalid credentials"))
			return
		}

		ctx = auth.WithIdentity(ctx, &auth.Identity{
			UserID: user.ID,
			Email:  user.Email,
			Name:   user.Name,
			Tier:   user.Tier,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) userFromToken(ctx context.Context, token string) (*repository.User, error) {
	claims, err := s.jwt.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, err
	}
	return s.userLookup.GetByID(ctx, userID)
}

// rateLimit throttles per user. A limiter backend failure fails open.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		identity, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		allowed, err := s.limiter.Allow(r.Context(), identity.UserID.String())
		if err != nil {
			s.logger.Warn("rate limiter unavailable", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			respondError(w, s.logger, errdefs.E(errdefs.RateLimited, errdefs.CodeRateLimited, "rate limit exceeded"))
			return
		}

		next.ServeHTTP(w, r)
	})
}
