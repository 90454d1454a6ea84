package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	apperrors "github.com/laviou/backend/internal/errors"
	"github.com/laviou/backend/internal/web"
)

type contextKey string

const userContextKey contextKey = "auth_user"

// UserContext is the authenticated identity placed on the request context.
type UserContext struct {
	UserID uuid.UUID
	Email  string
}

// Middleware rejects requests without a valid bearer access token and
// attaches the authenticated user to the context.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := bearerToken(r)
		if err != nil {
			web.Error(w, r, err)
			return
		}

		claims, err := s.ValidateAccessToken(tokenString)
		if err != nil {
			web.Error(w, r, mapServiceError(err))
			return
		}

		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			web.Error(w, r, apperrors.InvalidToken("invalid token"))
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, &UserContext{
			UserID: userID,
			Email:  claims.Email,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserFromContext returns the authenticated user set by Middleware.
func GetUserFromContext(ctx context.Context) (*UserContext, error) {
	user, ok := ctx.Value(userContextKey).(*UserContext)
	if !ok || user == nil {
		return nil, apperrors.Unauthorized("authentication required")
	}
	return user, nil
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", apperrors.Unauthorized("missing authorization header")
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", apperrors.Unauthorized("invalid authorization header")
	}
	return parts[1], nil
}
